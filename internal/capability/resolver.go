// Package capability implements the Capability Resolver: expanding each
// SIT target (a dotted env.location.zone triple) into a flat capability
// map by composing the three infrastructure base documents, then applying
// a pluggable post-processing rule list, honoring a freshness policy that
// decides whether a previously-cached capability map may be reused.
package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/document"
)

// UpdatePolicy selects how aggressively the resolver rebuilds cached
// capabilities. Modeled as a three-valued enum compared by value, per the
// source's "update is <string>" identity-comparison bug being called out
// as incorrect and replaced here.
type UpdatePolicy string

const (
	UpdateForce UpdatePolicy = "force"
	UpdateSkip  UpdatePolicy = "skip"
	UpdateAuto  UpdatePolicy = "auto"
)

// FreshnessPolicy decides, for UpdateAuto, whether a SIT's cached
// capabilities should be rebuilt. The default heuristicFreshness
// preserves the original "rebuild unless every existing target already
// has more than three keys" contract; TTLFreshness is the recommended
// explicit replacement.
type FreshnessPolicy interface {
	ShouldRebuild(sit catalog.StackInfrastructureTemplate) bool
}

// heuristicFreshness reproduces the original opaque heuristic: stale
// unless every existing target's capability map already has more than
// three keys.
type heuristicFreshness struct{}

func (heuristicFreshness) ShouldRebuild(sit catalog.StackInfrastructureTemplate) bool {
	if len(sit.InfrastructureCapabilities) == 0 {
		return true
	}
	for _, target := range sit.InfrastructureTargets {
		caps, ok := sit.InfrastructureCapabilities[target]
		if !ok || len(caps) <= 3 {
			return true
		}
	}
	return false
}

// HeuristicFreshness is the default-preserved legacy policy.
func HeuristicFreshness() FreshnessPolicy { return heuristicFreshness{} }

// TTLFreshness rebuilds whenever no explicit version/TTL bookkeeping is
// available, i.e. it always signals staleness unless the caller tracks
// last-build-time externally and only invokes Resolve when the TTL has
// elapsed. It exists to give callers an explicit, documented freshness
// contract instead of the opaque length heuristic.
type TTLFreshness struct{}

func (TTLFreshness) ShouldRebuild(sit catalog.StackInfrastructureTemplate) bool {
	return true
}

// CapabilityRule is a pluggable post-processing predicate applied to a
// target's composed capability map after merging its base documents.
type CapabilityRule struct {
	Name  string
	Match func(targetName string) bool
	Apply func(caps map[string]any)
}

// DefaultRules returns the two rules present in the reference
// implementation this resolver is grounded on.
func DefaultRules() []CapabilityRule {
	return []CapabilityRule{
		{
			Name:  "aws",
			Match: func(name string) bool { return strings.Contains(name, "aws") },
			Apply: func(caps map[string]any) {
				caps["config"] = []string{"Ubuntu", "Alpine", "DatabaseConfig"}
				caps["CPU"] = "2GHz"
				caps["RAM"] = "2GB"
			},
		},
		{
			Name:  "vmw",
			Match: func(name string) bool { return strings.Contains(name, "vmw") },
			Apply: func(caps map[string]any) {
				caps["config"] = []string{"linux", "nginx"}
				caps["CPU"] = "4GHz"
				caps["RAM"] = "4GB"
			},
		},
	}
}

// Resolver expands SIT targets into capability maps.
type Resolver struct {
	store    document.Store
	freshness map[UpdatePolicy]FreshnessPolicy
	rules    []CapabilityRule
}

// New constructs a Resolver. rules defaults to DefaultRules() when nil.
func New(store document.Store, rules []CapabilityRule) *Resolver {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Resolver{
		store: store,
		freshness: map[UpdatePolicy]FreshnessPolicy{
			UpdateAuto: HeuristicFreshness(),
		},
		rules: rules,
	}
}

// WithFreshnessPolicy overrides the policy consulted for UpdateAuto.
func (r *Resolver) WithFreshnessPolicy(p FreshnessPolicy) *Resolver {
	r.freshness[UpdateAuto] = p
	return r
}

// Resolve expands sit's targets into infrastructure_capabilities per
// update, and persists the SIT via the document store whenever it
// rebuilds the capabilities.
func (r *Resolver) Resolve(ctx context.Context, sit catalog.StackInfrastructureTemplate, update UpdatePolicy) (catalog.StackInfrastructureTemplate, error) {
	switch update {
	case UpdateSkip:
		return sit, nil
	case UpdateAuto:
		policy := r.freshness[UpdateAuto]
		if policy == nil {
			policy = HeuristicFreshness()
		}
		if !policy.ShouldRebuild(sit) {
			return sit, nil
		}
	case UpdateForce:
		// always rebuild
	default:
		return sit, fmt.Errorf("unknown capability update policy %q", update)
	}

	caps := make(map[string]map[string]any, len(sit.InfrastructureTargets))
	for _, target := range sit.InfrastructureTargets {
		merged, err := r.resolveTarget(ctx, target)
		if err != nil {
			return sit, err
		}
		caps[target] = merged
	}

	sit.InfrastructureCapabilities = caps
	if err := document.WriteSIT(ctx, r.store, sit); err != nil {
		return sit, err
	}
	return sit, nil
}

// resolveTarget merges the environment/location/zone base documents named
// by the dotted triple target and applies matching post-processing rules.
func (r *Resolver) resolveTarget(ctx context.Context, target string) (map[string]any, error) {
	parts := strings.SplitN(target, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid infrastructure target %q: expected env.location.zone", target)
	}
	env, location, zone := parts[0], parts[1], parts[2]

	// Order matters: later entries override earlier ones on a parameter
	// key collision, so zone beats location beats environment. A map
	// literal would iterate in randomized order and make that precedence
	// nondeterministic.
	baseDocs := []struct {
		docType catalog.DocType
		name    string
	}{
		{catalog.DocTypeEnvironment, env},
		{catalog.DocTypeLocation, location},
		{catalog.DocTypeZone, zone},
	}

	merged := make(map[string]any)
	for _, p := range baseDocs {
		base, err := document.GetInfraBase(ctx, r.store, p.docType, p.name)
		if err != nil {
			return nil, fmt.Errorf("resolving %s %q for target %q: %w", p.docType, p.name, target, err)
		}
		for k, v := range base.Params {
			merged[k] = v
		}
	}

	for _, rule := range r.rules {
		if rule.Match(target) {
			rule.Apply(merged)
		}
	}

	return merged, nil
}

// SortedTargetNames returns sit's target names sorted lexicographically,
// used by the constraint solver's deterministic selection rule.
func SortedTargetNames(sit catalog.StackInfrastructureTemplate) []string {
	out := append([]string(nil), sit.InfrastructureTargets...)
	sort.Strings(out)
	return out
}
