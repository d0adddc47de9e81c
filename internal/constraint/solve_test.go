package constraint

import (
	"testing"

	"github.com/stackl-io/stackl-core/internal/catalog"
)

func resolvedSIT(targets []string, caps map[string]map[string]any) catalog.StackInfrastructureTemplate {
	return catalog.StackInfrastructureTemplate{
		Name:                       "sit1",
		InfrastructureTargets:      targets,
		InfrastructureCapabilities: caps,
	}
}

func TestSolve_SingleTargetHappyPath(t *testing.T) {
	sit := resolvedSIT([]string{"aws.eu.z1", "vmw.eu.z1"}, map[string]map[string]any{
		"aws.eu.z1": {"config": []string{"Ubuntu"}},
		"vmw.eu.z1": {"config": []string{"nginx"}},
	})
	sat := catalog.StackApplicationTemplate{
		Name:     "sat1",
		Services: []catalog.ApplicationService{{Name: "web", Service: "web"}},
	}
	services := map[string]catalog.Service{
		"web": {Name: "web", FunctionalRequirements: []string{"nginx"}},
	}

	result, err := Solve(sat, services, sit, catalog.StackInstanceInvocation{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if result.Targets["web"] != "vmw.eu.z1" {
		t.Errorf("expected web bound to vmw.eu.z1, got %q", result.Targets["web"])
	}
}

func TestSolve_CPUFailureReturnsResolutionError(t *testing.T) {
	sit := resolvedSIT([]string{"aws.eu.z1"}, map[string]map[string]any{
		"aws.eu.z1": {"CPU": "4GHz"},
	})
	sat := catalog.StackApplicationTemplate{
		Services: []catalog.ApplicationService{{Name: "web", Service: "web"}},
	}
	services := map[string]catalog.Service{
		"web": {Name: "web", NonFunctionalRequirements: map[string]any{"CPU": "8GHz"}},
	}

	_, err := Solve(sat, services, sit, catalog.StackInstanceInvocation{})
	if err == nil {
		t.Fatalf("expected resolution error")
	}
}

func TestSolve_ZoneCoLocationBindsToSameTarget(t *testing.T) {
	sit := resolvedSIT([]string{"aws.eu.z1", "vmw.eu.z1"}, map[string]map[string]any{
		"aws.eu.z1": {"zone": "green"},
		"vmw.eu.z1": {"zone": "green"},
	})
	sat := catalog.StackApplicationTemplate{
		Services: []catalog.ApplicationService{
			{Name: "app", Service: "app"},
			{Name: "db", Service: "db"},
		},
	}
	services := map[string]catalog.Service{
		"app": {Name: "app", NonFunctionalRequirements: map[string]any{"zone": "green"}},
		"db":  {Name: "db", NonFunctionalRequirements: map[string]any{"zone": "green"}},
	}

	result, err := Solve(sat, services, sit, catalog.StackInstanceInvocation{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if result.Targets["app"] != result.Targets["db"] {
		t.Errorf("expected app and db to bind to the same target, got %q and %q", result.Targets["app"], result.Targets["db"])
	}
	if result.Targets["app"] != "aws.eu.z1" {
		t.Errorf("expected lexicographically smallest target aws.eu.z1, got %q", result.Targets["app"])
	}
}

func TestSolve_ZoneCoLocationFailsWhenNoSharedTarget(t *testing.T) {
	sit := resolvedSIT([]string{"aws.eu.z1", "vmw.eu.z1"}, map[string]map[string]any{
		"aws.eu.z1": {"zone": "green", "config": []string{"Ubuntu"}},
		"vmw.eu.z1": {"zone": "green", "config": []string{"nginx"}},
	})
	sat := catalog.StackApplicationTemplate{
		Services: []catalog.ApplicationService{
			{Name: "app", Service: "app"},
			{Name: "db", Service: "db"},
		},
	}
	services := map[string]catalog.Service{
		"app": {Name: "app", FunctionalRequirements: []string{"Ubuntu"}, NonFunctionalRequirements: map[string]any{"zone": "green"}},
		"db":  {Name: "db", FunctionalRequirements: []string{"nginx"}, NonFunctionalRequirements: map[string]any{"zone": "green"}},
	}

	_, err := Solve(sat, services, sit, catalog.StackInstanceInvocation{})
	if err == nil {
		t.Fatalf("expected zone conflict resolution error")
	}
}

func TestSolve_ReplicaExpansionProducesNumberedAliases(t *testing.T) {
	sit := resolvedSIT([]string{"aws.eu.z1"}, map[string]map[string]any{"aws.eu.z1": {}})
	sat := catalog.StackApplicationTemplate{
		Services: []catalog.ApplicationService{{Name: "worker", Service: "worker"}},
	}
	services := map[string]catalog.Service{
		"worker": {Name: "worker", NonFunctionalRequirements: map[string]any{"count": 3}},
	}

	result, err := Solve(sat, services, sit, catalog.StackInstanceInvocation{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for _, alias := range []string{"worker0", "worker1", "worker2"} {
		if _, ok := result.Targets[alias]; !ok {
			t.Errorf("expected alias %q in result, got %v", alias, result.Targets)
		}
	}
	if len(result.Targets) != 3 {
		t.Errorf("expected exactly 3 bindings, got %d", len(result.Targets))
	}
}

func TestSolve_ReplicasInvocationOverridesCatalogCount(t *testing.T) {
	sit := resolvedSIT([]string{"aws.eu.z1"}, map[string]map[string]any{"aws.eu.z1": {}})
	sat := catalog.StackApplicationTemplate{
		Services: []catalog.ApplicationService{{Name: "worker", Service: "worker"}},
	}
	services := map[string]catalog.Service{
		"worker": {Name: "worker", NonFunctionalRequirements: map[string]any{"count": 3}},
	}

	result, err := Solve(sat, services, sit, catalog.StackInstanceInvocation{Replicas: map[string]int{"worker": 2}})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(result.Targets) != 2 {
		t.Errorf("expected invocation replicas to override catalog count, got %d bindings", len(result.Targets))
	}
}

func TestSolve_ExplicitTargetBypassesSolver(t *testing.T) {
	sit := resolvedSIT([]string{"aws.eu.z1", "vmw.eu.z1"}, map[string]map[string]any{
		"aws.eu.z1": {},
		"vmw.eu.z1": {},
	})
	sat := catalog.StackApplicationTemplate{
		Services: []catalog.ApplicationService{{Name: "web", Service: "web"}},
	}
	services := map[string]catalog.Service{
		"web": {Name: "web", NonFunctionalRequirements: map[string]any{"CPU": "999GHz"}},
	}

	result, err := Solve(sat, services, sit, catalog.StackInstanceInvocation{InfrastructureTarget: "vmw.eu.z1"})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if result.Targets["web"] != "vmw.eu.z1" {
		t.Errorf("expected bypass to bind to explicit target, got %q", result.Targets["web"])
	}
}

func TestSolve_UnresolvedServiceDependencyFails(t *testing.T) {
	sit := resolvedSIT([]string{"aws.eu.z1"}, map[string]map[string]any{"aws.eu.z1": {}})
	sat := catalog.StackApplicationTemplate{
		Services: []catalog.ApplicationService{{Name: "app", Service: "app"}},
	}
	services := map[string]catalog.Service{
		"app": {Name: "app", NonFunctionalRequirements: map[string]any{"service": "missing"}},
	}

	_, err := Solve(sat, services, sit, catalog.StackInstanceInvocation{})
	if err == nil {
		t.Fatalf("expected unresolved dependency error")
	}
}

func TestSolve_ServiceDependencyCycleDetected(t *testing.T) {
	sit := resolvedSIT([]string{"aws.eu.z1"}, map[string]map[string]any{"aws.eu.z1": {}})
	sat := catalog.StackApplicationTemplate{
		Services: []catalog.ApplicationService{
			{Name: "a", Service: "a"},
			{Name: "b", Service: "b"},
		},
	}
	services := map[string]catalog.Service{
		"a": {Name: "a", NonFunctionalRequirements: map[string]any{"service": "b"}},
		"b": {Name: "b", NonFunctionalRequirements: map[string]any{"service": "a"}},
	}

	_, err := Solve(sat, services, sit, catalog.StackInstanceInvocation{})
	if err == nil {
		t.Fatalf("expected dependency cycle error")
	}
}

func TestSolve_NoEligibleTargetFailsWithNoTargetReason(t *testing.T) {
	sit := resolvedSIT([]string{"aws.eu.z1"}, map[string]map[string]any{"aws.eu.z1": {"config": []string{"Ubuntu"}}})
	sat := catalog.StackApplicationTemplate{
		Services: []catalog.ApplicationService{{Name: "web", Service: "web"}},
	}
	services := map[string]catalog.Service{
		"web": {Name: "web", FunctionalRequirements: []string{"nginx"}},
	}

	_, err := Solve(sat, services, sit, catalog.StackInstanceInvocation{})
	if err == nil {
		t.Fatalf("expected no-target resolution error")
	}
}
