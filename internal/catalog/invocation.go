package catalog

// StackInstanceInvocation is the request body for creating a Stack
// Instance.
type StackInstanceInvocation struct {
	StackInstanceName          string            `json:"stack_instance_name" yaml:"stack_instance_name"`
	StackInfrastructureTemplate string           `json:"stack_infrastructure_template" yaml:"stack_infrastructure_template"`
	StackApplicationTemplate   string            `json:"stack_application_template" yaml:"stack_application_template"`
	Params                     map[string]any    `json:"params,omitempty" yaml:"params,omitempty"`
	Replicas                   map[string]int    `json:"replicas,omitempty" yaml:"replicas,omitempty"`
	Secrets                    map[string]string `json:"secrets,omitempty" yaml:"secrets,omitempty"`
	ServiceParams              map[string]map[string]any `json:"service_params,omitempty" yaml:"service_params,omitempty"`
	ServiceSecrets             map[string]map[string]string `json:"service_secrets,omitempty" yaml:"service_secrets,omitempty"`
	Services                   []string          `json:"services,omitempty" yaml:"services,omitempty"`
	Stages                     []Stage           `json:"stages,omitempty" yaml:"stages,omitempty"`
	Tags                       map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// InfrastructureTarget, if set, bypasses the constraint solver: every
	// service binds to this target directly, and the only check performed
	// is that the target exists in the SIT.
	InfrastructureTarget string `json:"infrastructure_target,omitempty" yaml:"infrastructure_target,omitempty"`
}

// StackInstanceUpdate is the request body for updating an existing Stack
// Instance. It carries the same fields as an invocation plus
// DisableInvocation, which suppresses job emission for this update.
type StackInstanceUpdate struct {
	StackInstanceInvocation `yaml:",inline"`
	DisableInvocation bool `json:"disable_invocation,omitempty" yaml:"disable_invocation,omitempty"`
}
