package rule

import (
	"slices"

	"groove/cas"
	"groove/graph"
)

// orderedSet keeps insertion order and drops duplicates.
type orderedSet[T comparable] struct {
	items []T
	index map[T]int
}

func newOrderedSet[T comparable]() *orderedSet[T] {
	return &orderedSet[T]{index: make(map[T]int)}
}

func (s *orderedSet[T]) add(v T) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = len(s.items)
	s.items = append(s.items, v)
	return true
}

func (s *orderedSet[T]) addAll(vs []T) {
	for _, v := range vs {
		s.add(v)
	}
}

func (s *orderedSet[T]) has(v T) bool {
	_, ok := s.index[v]
	return ok
}

func (s *orderedSet[T]) slice() []T {
	return slices.Clone(s.items)
}

// Anchor is the minimal set of rule elements whose images determine the
// effect of a rule application. Element order is the insertion order of
// the anchor computation; Key is independent of it.
type Anchor struct {
	Nodes []graph.Node
	Edges []graph.Edge
	Vars  []graph.Node
	key   cas.Digest
}

func newAnchor(nodes *orderedSet[graph.Node], edges *orderedSet[graph.Edge]) *Anchor {
	a := &Anchor{}
	for _, n := range nodes.items {
		if n.IsVariable() {
			a.Vars = append(a.Vars, n)
		} else {
			a.Nodes = append(a.Nodes, n)
		}
	}
	a.Edges = edges.slice()

	nodeKeys := make([]graph.Node, 0, len(a.Nodes)+len(a.Vars))
	nodeKeys = append(nodeKeys, a.Nodes...)
	nodeKeys = append(nodeKeys, a.Vars...)
	slices.SortFunc(nodeKeys, graph.CompareNodes)
	edgeKeys := slices.Clone(a.Edges)
	slices.SortFunc(edgeKeys, graph.CompareEdges)

	h := cas.NewHasher().Int(len(nodeKeys))
	for _, n := range nodeKeys {
		hashNode(h, n)
	}
	h.Int(len(edgeKeys))
	for _, e := range edgeKeys {
		hashNode(h, e.Source)
		h.String(e.Label)
		hashNode(h, e.Target)
	}
	a.key = h.Sum()
	return a
}

func hashNode(h *cas.Hasher, n graph.Node) {
	h.Int(n.Number).String(n.Type).String(n.Value).String(n.Var)
}

// Key identifies the anchor's element set regardless of order. Matchers
// use it as an equality key for caching.
func (a *Anchor) Key() cas.Digest {
	return a.key
}

// Size returns the number of anchor elements.
func (a *Anchor) Size() int {
	return len(a.Nodes) + len(a.Edges) + len(a.Vars)
}

// ContainsNode reports whether n (a node or variable) is in the anchor.
func (a *Anchor) ContainsNode(n graph.Node) bool {
	return slices.Contains(a.Nodes, n) || slices.Contains(a.Vars, n)
}

// ContainsEdge reports whether e is in the anchor.
func (a *Anchor) ContainsEdge(e graph.Edge) bool {
	return slices.Contains(a.Edges, e)
}
