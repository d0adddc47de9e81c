package constraint

import (
	"fmt"
	"sort"

	"github.com/stackl-io/stackl-core/internal/capability"
	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/stackerrors"
)

// maxRestarts bounds the replica-expansion restart loop. Each expansion
// strictly removes "count" from every service it touches, so in practice
// this terminates after a single restart; the bound exists only as a
// defensive backstop against a malformed catalog.
const maxRestarts = 64

// serviceEntry is one (possibly replica-expanded) unit of the working SAT
// during solving.
type serviceEntry struct {
	Alias       string
	CatalogName string
	NFR         map[string]any
}

// workItem is a fully-assembled per-service requirement set (serv_req in
// the reference terminology), ready for target-eligibility evaluation.
type workItem struct {
	Alias       string
	CatalogName string
	Req         map[string]any
}

// Solve binds every service named in sat to exactly one target in
// resolvedSIT, per the requirement-key rules, replica expansion,
// zone co-location, and service-dependency checks. services must contain
// the catalog Service document for every name referenced by sat.Services.
func Solve(
	sat catalog.StackApplicationTemplate,
	services map[string]catalog.Service,
	resolvedSIT catalog.StackInfrastructureTemplate,
	inv catalog.StackInstanceInvocation,
) (Result, error) {
	entries, err := initialEntries(sat, services, inv.Replicas)
	if err != nil {
		return Result{}, err
	}

	entries, err = expandReplicas(entries)
	if err != nil {
		return Result{}, err
	}

	items, err := buildWorkItems(entries, services, sat.ExtraFunctionalRequirements)
	if err != nil {
		return Result{}, err
	}

	if inv.InfrastructureTarget != "" {
		return bypassSolver(items, resolvedSIT, inv.InfrastructureTarget)
	}

	return solveItems(items, resolvedSIT)
}

func initialEntries(sat catalog.StackApplicationTemplate, services map[string]catalog.Service, replicas map[string]int) ([]serviceEntry, error) {
	entries := make([]serviceEntry, 0, len(sat.Services))
	for _, appSvc := range sat.Services {
		svc, ok := services[appSvc.Service]
		if !ok {
			return nil, stackerrors.Validation(fmt.Sprintf("SAT references unknown service %q", appSvc.Service))
		}
		nfr := cloneAnyMap(svc.NonFunctionalRequirements)
		if n, ok := replicas[appSvc.Name]; ok {
			nfr["count"] = n
		}
		entries = append(entries, serviceEntry{Alias: appSvc.Name, CatalogName: appSvc.Service, NFR: nfr})
	}
	return entries, nil
}

// expandReplicas repeatedly expands any entry whose NFR carries a "count"
// key into `count` copies named alias0...alias{count-1}, each with count
// stripped, until no entry carries a count key.
func expandReplicas(entries []serviceEntry) ([]serviceEntry, error) {
	for restart := 0; restart < maxRestarts; restart++ {
		expanded := false
		next := make([]serviceEntry, 0, len(entries))
		for _, e := range entries {
			countVal, has := e.NFR["count"]
			if !has {
				next = append(next, e)
				continue
			}
			n, ok := toInt(countVal)
			if !ok || n < 0 {
				return nil, stackerrors.Validation(fmt.Sprintf("service %q has non-integer count %v", e.Alias, countVal))
			}
			expanded = true
			for i := 0; i < n; i++ {
				childNFR := cloneAnyMap(e.NFR)
				delete(childNFR, "count")
				next = append(next, serviceEntry{
					Alias:       fmt.Sprintf("%s%d", e.Alias, i),
					CatalogName: e.CatalogName,
					NFR:         childNFR,
				})
			}
		}
		entries = next
		if !expanded {
			return entries, nil
		}
	}
	return nil, stackerrors.Validation("replica expansion did not terminate within the restart budget")
}

func buildWorkItems(entries []serviceEntry, services map[string]catalog.Service, extra map[string]any) ([]workItem, error) {
	items := make([]workItem, 0, len(entries))
	for _, e := range entries {
		svc := services[e.CatalogName]
		req := map[string]any{"config": append([]string(nil), svc.FunctionalRequirements...)}
		for k, v := range e.NFR {
			req[k] = v
		}
		for k, v := range extra {
			req[k] = v
		}
		items = append(items, workItem{Alias: e.Alias, CatalogName: e.CatalogName, Req: req})
	}
	return items, nil
}

func bypassSolver(items []workItem, resolvedSIT catalog.StackInfrastructureTemplate, target string) (Result, error) {
	found := false
	for _, t := range resolvedSIT.InfrastructureTargets {
		if t == target {
			found = true
			break
		}
	}
	if !found {
		return Result{}, stackerrors.Resolution(stackerrors.ReasonNoTarget)
	}

	result := Result{
		Targets:      make(map[string]string, len(items)),
		Candidates:   make(map[string][]string, len(items)),
		CatalogNames: make(map[string]string, len(items)),
	}
	for _, item := range items {
		result.Targets[item.Alias] = target
		result.Candidates[item.Alias] = []string{target}
		result.CatalogNames[item.Alias] = item.CatalogName
		result.AliasOrder = append(result.AliasOrder, item.Alias)
	}
	return result, nil
}

func solveItems(items []workItem, resolvedSIT catalog.StackInfrastructureTemplate) (Result, error) {
	targets := capability.SortedTargetNames(resolvedSIT)

	candidates := make(map[string][]string, len(items))
	zoneGroups := make(map[string][]string)
	serviceDeps := make(map[string][]string)

	for _, item := range items {
		var eligible []string
		for _, target := range targets {
			if targetSatisfies(resolvedSIT.InfrastructureCapabilities[target], item.Req) {
				eligible = append(eligible, target)
			}
		}
		candidates[item.Alias] = eligible

		if zoneVal, ok := item.Req["zone"]; ok {
			if zoneStr, ok := toStringValue(zoneVal); ok {
				zoneGroups[zoneStr] = append(zoneGroups[zoneStr], item.Alias)
			}
		}
		if depVal, ok := item.Req["service"]; ok {
			if depStr, ok := toStringValue(depVal); ok {
				serviceDeps[item.Alias] = append(serviceDeps[item.Alias], depStr)
			}
		}
	}

	if hasCycle(serviceDeps) {
		return Result{}, stackerrors.Resolution(stackerrors.ReasonDependencyCycle)
	}

	if err := filterZoneCoLocation(candidates, zoneGroups); err != nil {
		return Result{}, err
	}

	for _, item := range items {
		if len(candidates[item.Alias]) == 0 {
			return Result{}, stackerrors.Resolution(stackerrors.ReasonNoTarget)
		}
	}

	aliasSet := make(map[string]bool, len(items))
	for _, item := range items {
		aliasSet[item.Alias] = true
	}
	for _, deps := range serviceDeps {
		for _, dep := range deps {
			if !aliasSet[dep] {
				return Result{}, stackerrors.Resolution(stackerrors.ReasonUnresolvedDep)
			}
		}
	}

	result := Result{
		Targets:      make(map[string]string, len(items)),
		Candidates:   candidates,
		CatalogNames: make(map[string]string, len(items)),
		Dependencies: serviceDeps,
	}
	for _, item := range items {
		chosen := append([]string(nil), candidates[item.Alias]...)
		sort.Strings(chosen)
		result.Targets[item.Alias] = chosen[0]
		result.CatalogNames[item.Alias] = item.CatalogName
		result.AliasOrder = append(result.AliasOrder, item.Alias)
	}
	return result, nil
}

// filterZoneCoLocation intersects the candidate sets of every zone group
// with more than one member, mutating candidates in place.
func filterZoneCoLocation(candidates map[string][]string, zoneGroups map[string][]string) error {
	for _, members := range zoneGroups {
		if len(members) < 2 {
			continue
		}
		inter := toSet(candidates[members[0]])
		for _, m := range members[1:] {
			inter = intersect(inter, toSet(candidates[m]))
		}
		if len(inter) == 0 {
			return stackerrors.Resolution(stackerrors.ReasonZoneConflict)
		}
		list := fromSet(inter)
		for _, m := range members {
			candidates[m] = append([]string(nil), list...)
		}
	}
	return nil
}

func targetSatisfies(caps map[string]any, req map[string]any) bool {
	for key, val := range req {
		switch key {
		case "config":
			names, _ := val.([]string)
			if !configSubset(names, caps["config"]) {
				return false
			}
		case "CPU", "RAM":
			reqStr, ok := toQuantityString(val)
			if !ok {
				return false
			}
			availStr, ok := toQuantityString(caps[key])
			if !ok {
				return false
			}
			if !quantityFitsWithin(reqStr, availStr) {
				return false
			}
		case "count", "zone", "service":
			// count is resolved before this point; zone/service are
			// recorded for post-pass handling, not eligibility checks.
			continue
		default:
			continue
		}
	}
	return true
}

func configSubset(required []string, available any) bool {
	if len(required) == 0 {
		return true
	}
	have := map[string]bool{}
	switch v := available.(type) {
	case []string:
		for _, s := range v {
			have[s] = true
		}
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok {
				have[str] = true
			}
		}
	default:
		return false
	}
	for _, name := range required {
		if !have[name] {
			return false
		}
	}
	return true
}

func cloneAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toSet(vals []string) map[string]bool {
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func fromSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
