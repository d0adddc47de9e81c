package stackmanager

import "github.com/stackl-io/stackl-core/internal/catalog"

// diffServices computes the to_be_added/to_be_deleted/to_be_kept service
// sets between an existing instance and the freshly solved replacement,
// keyed by service alias (the post-replica-expansion binding name).
func diffServices(existing, next catalog.StackInstance) (added, removed, kept map[string]bool) {
	added = make(map[string]bool)
	removed = make(map[string]bool)
	kept = make(map[string]bool)

	for alias := range next.Services {
		if _, ok := existing.Services[alias]; ok {
			kept[alias] = true
		} else {
			added[alias] = true
		}
	}
	for alias := range existing.Services {
		if _, ok := next.Services[alias]; !ok {
			removed[alias] = true
		}
	}
	return added, removed, kept
}
