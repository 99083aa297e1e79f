package ranking

import (
	"fmt"
	"sort"
)

// HierarchyPolicy decides which of an ancestor and a descendant passage
// survives when both match overlapping query terms.
type HierarchyPolicy string

const (
	PreferDeepest  HierarchyPolicy = "prefer-deepest"
	PreferAncestor HierarchyPolicy = "prefer-ancestor"
	KeepAll        HierarchyPolicy = "keep-all"
)

func ParseHierarchyPolicy(s string) (HierarchyPolicy, error) {
	switch p := HierarchyPolicy(s); p {
	case PreferDeepest, PreferAncestor, KeepAll:
		return p, nil
	case "":
		return PreferDeepest, nil
	default:
		return "", fmt.Errorf("unknown hierarchy policy %q", s)
	}
}

// collapseHierarchy removes from scored the passages that lose to a
// related passage under policy. parents maps passage id to parent id for
// the whole content set, so ancestry is followed through passages that did
// not match. A walk that revisits an id is a ParentID cycle: its drop
// decisions are discarded and the walk's start id is returned in cycles.
func collapseHierarchy(scored map[string]*ScoredPassage, parents map[string]string, policy HierarchyPolicy) (cycles []string) {
	if policy == KeepAll || len(scored) < 2 {
		return nil
	}
	drop := make(map[string]struct{})
	for id, d := range scored {
		seen := map[string]struct{}{id: {}}
		var walk []string
		looped := false
		for anc := parents[id]; anc != ""; anc = parents[anc] {
			if _, loop := seen[anc]; loop {
				looped = true
				break
			}
			seen[anc] = struct{}{}
			a, ok := scored[anc]
			if !ok || !overlaps(a.Terms, d.Terms) {
				continue
			}
			if policy == PreferDeepest {
				walk = append(walk, anc)
			} else {
				walk = append(walk, id)
			}
		}
		if looped {
			cycles = append(cycles, id)
			continue
		}
		for _, w := range walk {
			drop[w] = struct{}{}
		}
	}
	for id := range drop {
		delete(scored, id)
	}
	sort.Strings(cycles)
	return cycles
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
