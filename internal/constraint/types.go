// Package constraint implements the Constraint Solver: given a Stack
// Application Template, its catalog service definitions, and a resolved
// Stack Infrastructure Template, it binds every service to exactly one
// infrastructure target, or reports a closed-set failure reason.
package constraint

// Result is the output of a successful Solve: the chosen target for every
// expanded service alias, the candidate set each alias was chosen from
// (useful for diagnostics and tests), and the catalog service name each
// alias resolves to.
type Result struct {
	// Targets maps a (possibly replica-expanded) service alias name to its
	// single chosen infrastructure target.
	Targets map[string]string
	// Candidates maps alias to the full eligible-target set it was chosen
	// from, prior to selection.
	Candidates map[string][]string
	// CatalogNames maps alias to the catalog Service name it binds to.
	CatalogNames map[string]string
	// AliasOrder preserves the deterministic order aliases were produced
	// in (declaration order, with replica expansion inserted in place).
	AliasOrder []string
	// Dependencies maps alias to the aliases named by its "service"
	// requirement key, as recorded during solving. Empty when the
	// explicit-target bypass path was used.
	Dependencies map[string][]string
}
