package constraint

// hasCycle reports whether the directed graph of alias -> dependency
// alias edges in deps contains a cycle, so a cyclic dependency graph is
// rejected explicitly rather than causing the dispatcher to loop forever.
func hasCycle(deps map[string][]string) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(deps))

	var visit func(node string) bool
	visit = func(node string) bool {
		switch color[node] {
		case gray:
			return true
		case black:
			return false
		}
		color[node] = gray
		for _, next := range deps[node] {
			if visit(next) {
				return true
			}
		}
		color[node] = black
		return false
	}

	for node := range deps {
		if color[node] == white {
			if visit(node) {
				return true
			}
		}
	}
	return false
}
