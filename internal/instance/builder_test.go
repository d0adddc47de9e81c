package instance

import (
	"testing"

	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/constraint"
)

func TestBuild_MergesProvisioningParametersInPrecedenceOrder(t *testing.T) {
	result := constraint.Result{
		Targets:      map[string]string{"web": "aws.eu.z1"},
		CatalogNames: map[string]string{"web": "web"},
		AliasOrder:   []string{"web"},
	}
	resolvedSIT := catalog.StackInfrastructureTemplate{
		InfrastructureCapabilities: map[string]map[string]any{
			"aws.eu.z1": {"k": "from_target", "only_target": "t"},
		},
	}
	services := map[string]catalog.Service{
		"web": {
			Name:                   "web",
			FunctionalRequirements: []string{"nginx"},
			Params:                 map[string]any{"k": "from_service", "only_service": "s"},
		},
	}
	frs := map[string]catalog.FunctionalRequirement{
		"nginx": {Name: "nginx", Params: map[string]any{"k": "from_fr", "only_fr": "f"}},
	}
	inv := catalog.StackInstanceInvocation{
		Params: map[string]any{"k": "from_user", "only_user": "u"},
	}

	si, err := Build("inst1", "sat1", "sit1", result, resolvedSIT, services, frs, inv)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	params := si.Services["web"].ProvisioningParameters
	if params["k"] != "from_user" {
		t.Errorf("expected user params to win precedence, got %v", params["k"])
	}
	for _, key := range []string{"only_target", "only_service", "only_fr", "only_user"} {
		if _, ok := params[key]; !ok {
			t.Errorf("expected merged params to contain %q, got %v", key, params)
		}
	}
}

func TestBuild_InitializesInProgressStatusForEveryFR(t *testing.T) {
	result := constraint.Result{
		Targets:      map[string]string{"web": "aws.eu.z1"},
		CatalogNames: map[string]string{"web": "web"},
		AliasOrder:   []string{"web"},
	}
	services := map[string]catalog.Service{
		"web": {Name: "web", FunctionalRequirements: []string{"nginx", "tls"}},
	}
	frs := map[string]catalog.FunctionalRequirement{
		"nginx": {Name: "nginx"},
		"tls":   {Name: "tls"},
	}

	si, err := Build("inst1", "sat1", "sit1", result, catalog.StackInfrastructureTemplate{}, services, frs, catalog.StackInstanceInvocation{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	statuses := si.Services["web"].Status
	if len(statuses) != 2 {
		t.Fatalf("expected 2 FR statuses, got %d", len(statuses))
	}
	for _, s := range statuses {
		if s.Status != catalog.StatusInProgress {
			t.Errorf("expected in_progress, got %q for %q", s.Status, s.Name)
		}
	}
}

func TestBuild_AttachesTopLevelTagsAndSecrets(t *testing.T) {
	result := constraint.Result{
		Targets:      map[string]string{"web": "t"},
		CatalogNames: map[string]string{"web": "web"},
		AliasOrder:   []string{"web"},
	}
	services := map[string]catalog.Service{"web": {Name: "web"}}
	inv := catalog.StackInstanceInvocation{
		Tags:    map[string]string{"env": "prod"},
		Secrets: map[string]string{"api_key": "shh"},
	}

	si, err := Build("inst1", "sat1", "sit1", result, catalog.StackInfrastructureTemplate{}, services, nil, inv)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if si.Tags["env"] != "prod" {
		t.Errorf("expected tags attached, got %v", si.Tags)
	}
	if si.Secrets["api_key"] != "shh" {
		t.Errorf("expected secrets attached, got %v", si.Secrets)
	}
}

func TestBuild_ServiceParamsOverlayAppliesOnlyToNamedService(t *testing.T) {
	result := constraint.Result{
		Targets:      map[string]string{"web": "t", "db": "t"},
		CatalogNames: map[string]string{"web": "web", "db": "db"},
		AliasOrder:   []string{"web", "db"},
	}
	services := map[string]catalog.Service{
		"web": {Name: "web"},
		"db":  {Name: "db"},
	}
	inv := catalog.StackInstanceInvocation{
		ServiceParams: map[string]map[string]any{
			"web": {"override": "web-only"},
		},
	}

	si, err := Build("inst1", "sat1", "sit1", result, catalog.StackInfrastructureTemplate{}, services, nil, inv)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if si.Services["web"].ProvisioningParameters["override"] != "web-only" {
		t.Errorf("expected overlay applied to web")
	}
	if _, ok := si.Services["db"].ProvisioningParameters["override"]; ok {
		t.Errorf("expected overlay not applied to db")
	}
}
