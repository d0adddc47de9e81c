// Package instance implements the Stack Instance Builder: turning a
// solved constraint-solver Result plus user parameters/secrets/tags into
// a StackInstance document with initial per-service statuses.
package instance

import (
	"fmt"
	"sort"

	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/constraint"
)

// Build constructs a StackInstance from a solved binding. services and
// functionalRequirements must contain every catalog entry the binding
// references.
func Build(
	instanceName string,
	satName, sitName string,
	result constraint.Result,
	resolvedSIT catalog.StackInfrastructureTemplate,
	services map[string]catalog.Service,
	functionalRequirements map[string]catalog.FunctionalRequirement,
	inv catalog.StackInstanceInvocation,
) (catalog.StackInstance, error) {
	aliasOrder := append([]string(nil), result.AliasOrder...)
	sort.Strings(aliasOrder)

	si := catalog.StackInstance{
		Name:                        instanceName,
		StackApplicationTemplate:    satName,
		StackInfrastructureTemplate: sitName,
		Services:                    make(map[string]catalog.ServiceBinding, len(aliasOrder)),
		Tags:                        inv.Tags,
		Secrets:                     inv.Secrets,
		Stages:                      inv.Stages,
		Dependencies:                result.Dependencies,
	}

	for _, alias := range aliasOrder {
		target := result.Targets[alias]
		catalogName := result.CatalogNames[alias]
		svc, ok := services[catalogName]
		if !ok {
			return catalog.StackInstance{}, fmt.Errorf("building instance: unknown catalog service %q for alias %q", catalogName, alias)
		}

		params, err := mergeProvisioningParameters(resolvedSIT, target, svc, functionalRequirements, inv, alias)
		if err != nil {
			return catalog.StackInstance{}, err
		}

		statuses := make([]catalog.FunctionalRequirementStatus, len(svc.FunctionalRequirements))
		for i, fr := range svc.FunctionalRequirements {
			statuses[i] = catalog.FunctionalRequirementStatus{Name: fr, Status: catalog.StatusInProgress}
		}

		si.Services[alias] = catalog.ServiceBinding{
			InfrastructureTarget:   target,
			ProvisioningParameters: params,
			Status:                 statuses,
		}
	}

	return si, nil
}

// mergeProvisioningParameters computes provisioning_parameters per the
// invariant: merge(target capabilities, service.params, ∀fr: fr.params,
// user parameters), later overriding earlier, then applies the
// per-service service_params/service_secrets overlay for alias only.
func mergeProvisioningParameters(
	resolvedSIT catalog.StackInfrastructureTemplate,
	target string,
	svc catalog.Service,
	functionalRequirements map[string]catalog.FunctionalRequirement,
	inv catalog.StackInstanceInvocation,
	alias string,
) (map[string]any, error) {
	merged := make(map[string]any)

	for k, v := range resolvedSIT.InfrastructureCapabilities[target] {
		merged[k] = v
	}
	for k, v := range svc.Params {
		merged[k] = v
	}
	for _, frName := range svc.FunctionalRequirements {
		fr, ok := functionalRequirements[frName]
		if !ok {
			return nil, fmt.Errorf("building instance: unknown functional requirement %q", frName)
		}
		for k, v := range fr.Params {
			merged[k] = v
		}
	}
	for k, v := range inv.Params {
		merged[k] = v
	}

	if overlay, ok := inv.ServiceParams[alias]; ok {
		for k, v := range overlay {
			merged[k] = v
		}
	}
	if overlay, ok := inv.ServiceSecrets[alias]; ok {
		for k, v := range overlay {
			merged[k] = v
		}
	}

	return merged, nil
}
