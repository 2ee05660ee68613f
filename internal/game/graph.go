package game

import "sort"

// Graph maps scene ids to scenes. It is built once and only read afterwards,
// so any number of goroutines may share it without locking.
type Graph map[string]*Scene

// Scene returns the scene with the given id.
func (g Graph) Scene(id string) (*Scene, bool) {
	s, ok := g[id]
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

// IDs returns the scene ids in sorted order.
func (g Graph) IDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DanglingRef is a choice or autonext target with no scene behind it.
type DanglingRef struct {
	From   string
	Target string
}

// DanglingTargets lists every reference to a scene id that is not in the
// graph, ordered by source scene id and then by position in the scene.
func (g Graph) DanglingTargets() []DanglingRef {
	var out []DanglingRef
	for _, id := range g.IDs() {
		s := g[id]
		if s == nil {
			continue
		}
		for _, ch := range s.Choices {
			if _, ok := g.Scene(ch.Target); !ok {
				out = append(out, DanglingRef{From: id, Target: ch.Target})
			}
		}
		if s.Autonext != "" {
			if _, ok := g.Scene(s.Autonext); !ok {
				out = append(out, DanglingRef{From: id, Target: s.Autonext})
			}
		}
	}
	return out
}
