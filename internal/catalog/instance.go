package catalog

// FunctionalRequirementStatus is one status entry tracking provisioning
// progress for a single functional requirement of a bound service.
type FunctionalRequirementStatus struct {
	Name         string `yaml:"name" json:"name"`
	Status       Status `yaml:"status" json:"status"`
	ErrorMessage string `yaml:"error_message,omitempty" json:"error_message,omitempty"`
}

// Status is the provisioning status of a functional requirement, service
// binding, or whole instance.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// ServiceBinding is the resolved placement of one service: the chosen
// infrastructure target, its final merged provisioning parameters, and the
// ordered per-functional-requirement status list.
type ServiceBinding struct {
	InfrastructureTarget   string                        `yaml:"infrastructure_target" json:"infrastructure_target"`
	ProvisioningParameters map[string]any                `yaml:"provisioning_parameters,omitempty" json:"provisioning_parameters,omitempty"`
	Status                 []FunctionalRequirementStatus `yaml:"status" json:"status"`
}

// ServiceStatus returns the roll-up status of a binding: ready iff every FR
// is ready, failed if any FR failed, otherwise in_progress.
func (b ServiceBinding) ServiceStatus() Status {
	if len(b.Status) == 0 {
		return StatusInProgress
	}
	allReady := true
	for _, fr := range b.Status {
		if fr.Status == StatusFailed {
			return StatusFailed
		}
		if fr.Status != StatusReady {
			allReady = false
		}
	}
	if allReady {
		return StatusReady
	}
	return StatusInProgress
}

// StackInstance is a bound, persistent record of which infrastructure
// target each service runs on, plus per-functional-requirement status.
type StackInstance struct {
	Name                        string                    `yaml:"name" json:"name"`
	StackApplicationTemplate    string                    `yaml:"stack_application_template" json:"stack_application_template"`
	StackInfrastructureTemplate string                    `yaml:"stack_infrastructure_template" json:"stack_infrastructure_template"`
	Services                    map[string]ServiceBinding `yaml:"services" json:"services"`

	Tags     map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Secrets  map[string]string `yaml:"secrets,omitempty" json:"secrets,omitempty"`
	Stages   []Stage           `yaml:"stages,omitempty" json:"stages,omitempty"`
	Policies map[string][]any  `yaml:"policies,omitempty" json:"policies,omitempty"`

	// Dependencies maps a service alias to the aliases its "service"
	// requirement key named at solve time. The dispatcher emits create
	// jobs in forward dependency order and delete jobs in reverse.
	Dependencies map[string][]string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	// Version is bumped on every write, used for optimistic-CAS conflict
	// detection by the document store's StackInstance path.
	Version uint64 `yaml:"version" json:"version"`

	// NextSequence is the monotonic component of the next job idempotency
	// key emitted for this instance.
	NextSequence uint64 `yaml:"next_sequence" json:"next_sequence"`
}

// InstanceStatus returns the roll-up status of the whole instance: ready
// iff every service is ready, failed if any service failed, otherwise
// in_progress. An instance with no services is ready (fully drained,
// pending removal by the status reducer).
func (si StackInstance) InstanceStatus() Status {
	if len(si.Services) == 0 {
		return StatusReady
	}
	allReady := true
	for _, b := range si.Services {
		switch b.ServiceStatus() {
		case StatusFailed:
			return StatusFailed
		case StatusInProgress:
			allReady = false
		}
	}
	if allReady {
		return StatusReady
	}
	return StatusInProgress
}

// Clone returns a deep copy of si.
func (si StackInstance) Clone() StackInstance {
	out := si
	if si.Services != nil {
		out.Services = make(map[string]ServiceBinding, len(si.Services))
		for name, b := range si.Services {
			nb := b
			nb.ProvisioningParameters = cloneAnyMap(b.ProvisioningParameters)
			nb.Status = append([]FunctionalRequirementStatus(nil), b.Status...)
			out.Services[name] = nb
		}
	}
	if si.Tags != nil {
		out.Tags = make(map[string]string, len(si.Tags))
		for k, v := range si.Tags {
			out.Tags[k] = v
		}
	}
	if si.Secrets != nil {
		out.Secrets = make(map[string]string, len(si.Secrets))
		for k, v := range si.Secrets {
			out.Secrets[k] = v
		}
	}
	out.Stages = append([]Stage(nil), si.Stages...)
	if si.Policies != nil {
		out.Policies = make(map[string][]any, len(si.Policies))
		for k, v := range si.Policies {
			out.Policies[k] = append([]any(nil), v...)
		}
	}
	if si.Dependencies != nil {
		out.Dependencies = make(map[string][]string, len(si.Dependencies))
		for k, v := range si.Dependencies {
			out.Dependencies[k] = append([]string(nil), v...)
		}
	}
	return out
}
