// Package iso decides graph isomorphism for state collapsing. Graphs are
// first summarised by a certificate computed through iterated neighbourhood
// hashing; equal certificates are then confirmed by constructing an
// explicit isomorphism.
//
// Value nodes are identified by their value and only map to themselves.
// Bound nodes (control variable values) are distinguished by position and
// must map pointwise.
package iso

import (
	"encoding/binary"
	"sort"

	"groove/cas"
	"groove/graph"
)

// Mode selects how hard the checker tries to confirm an isomorphism.
type Mode int

const (
	// Weak accepts only isomorphisms found without backtracking. It never
	// reports non-isomorphic graphs as isomorphic but may miss some
	// isomorphisms of highly symmetric graphs.
	Weak Mode = iota
	// Strong performs a complete backtracking search.
	Strong
)

func (m Mode) String() string {
	if m == Strong {
		return "strong"
	}
	return "weak"
}

type color uint64

// Certificate is an isomorphism-invariant summary of a graph plus its
// bound nodes.
type Certificate struct {
	g       *graph.Graph
	bound   []graph.Node
	digest  cas.Digest
	colors  map[graph.Node]color
	classes map[color][]graph.Node
}

// Digest is equal for isomorphic graphs.
func (c *Certificate) Digest() cas.Digest { return c.digest }

// Graph returns the certified graph.
func (c *Certificate) Graph() *graph.Graph { return c.g }

// Certify computes the certificate of g with the given bound nodes.
func Certify(g *graph.Graph, bound []graph.Node) *Certificate {
	nodes := g.Nodes()
	positions := make(map[graph.Node][]int)
	for i, n := range bound {
		positions[n] = append(positions[n], i)
	}

	colors := make(map[graph.Node]color, len(nodes))
	for _, n := range nodes {
		h := cas.NewHasher().String(n.Type)
		if n.IsValue() {
			h.String("v").String(n.Value)
		}
		h.Int(len(positions[n]))
		for _, p := range positions[n] {
			h.Int(p)
		}
		colors[n] = toColor(h.Sum())
	}

	classCount := countClasses(colors)
	for round := 0; round < len(nodes); round++ {
		next := make(map[graph.Node]color, len(nodes))
		for _, n := range nodes {
			var sigs []color
			for _, e := range g.OutEdges(n) {
				sigs = append(sigs, edgeSig(1, e.Label, colors[e.Target]))
			}
			for _, e := range g.InEdges(n) {
				sigs = append(sigs, edgeSig(2, e.Label, colors[e.Source]))
			}
			sort.Slice(sigs, func(i, j int) bool { return sigs[i] < sigs[j] })
			h := cas.NewHasher().Bytes(colorBytes(colors[n])).Int(len(sigs))
			for _, s := range sigs {
				h.Bytes(colorBytes(s))
			}
			next[n] = toColor(h.Sum())
		}
		colors = next
		nc := countClasses(colors)
		if nc == classCount {
			break
		}
		classCount = nc
	}

	c := &Certificate{
		g:       g,
		bound:   bound,
		colors:  colors,
		classes: make(map[color][]graph.Node),
	}
	all := make([]color, 0, len(nodes))
	for _, n := range nodes {
		col := colors[n]
		c.classes[col] = append(c.classes[col], n)
		all = append(all, col)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	h := cas.NewHasher().Int(len(all)).Int(g.EdgeCount()).Int(len(bound))
	for _, col := range all {
		h.Bytes(colorBytes(col))
	}
	c.digest = h.Sum()
	return c
}

func edgeSig(dir int, label string, other color) color {
	return toColor(cas.NewHasher().Int(dir).String(label).Bytes(colorBytes(other)).Sum())
}

func toColor(d cas.Digest) color {
	return color(binary.LittleEndian.Uint64(d[:8]))
}

func colorBytes(c color) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(c))
	return b[:]
}

func countClasses(colors map[graph.Node]color) int {
	seen := make(map[color]struct{}, len(colors))
	for _, c := range colors {
		seen[c] = struct{}{}
	}
	return len(seen)
}

// Checker confirms isomorphisms between certified graphs.
type Checker struct {
	mode Mode
}

// NewChecker returns a checker with the given mode.
func NewChecker(mode Mode) *Checker {
	return &Checker{mode: mode}
}

// Mode returns the checker mode.
func (c *Checker) Mode() Mode { return c.mode }

// Isomorphic reports whether an isomorphism from a's graph to b's graph
// exists that maps a's bound nodes pointwise to b's.
func (c *Checker) Isomorphic(a, b *Certificate) bool {
	_, ok := c.Find(a, b)
	return ok
}

// Find returns an isomorphism from a's graph to b's graph, if one is found.
func (c *Checker) Find(a, b *Certificate) (map[graph.Node]graph.Node, bool) {
	if a.digest != b.digest || len(a.bound) != len(b.bound) {
		return nil, false
	}
	if a.g.NodeCount() != b.g.NodeCount() || a.g.EdgeCount() != b.g.EdgeCount() {
		return nil, false
	}
	for col, nodes := range a.classes {
		if len(b.classes[col]) != len(nodes) {
			return nil, false
		}
	}
	s := &isoSearch{
		a:       a,
		b:       b,
		mapping: make(map[graph.Node]graph.Node),
		used:    make(map[graph.Node]bool),
		strong:  c.mode == Strong,
	}
	for i, n := range a.bound {
		m := b.bound[i]
		if cur, ok := s.mapping[n]; ok {
			if cur != m {
				return nil, false
			}
			continue
		}
		if a.colors[n] != b.colors[m] || s.used[m] {
			return nil, false
		}
		s.mapping[n] = m
		s.used[m] = true
	}
	for _, n := range a.g.Nodes() {
		if n.IsValue() {
			if !b.g.HasNode(n) {
				return nil, false
			}
			if _, ok := s.mapping[n]; !ok {
				s.mapping[n] = n
				s.used[n] = true
			}
		}
	}
	for n := range s.mapping {
		if !s.consistent(n, s.mapping[n]) {
			return nil, false
		}
	}
	for _, n := range a.g.Nodes() {
		if _, ok := s.mapping[n]; !ok {
			s.order = append(s.order, n)
		}
	}
	// small classes first keeps the search shallow
	sort.SliceStable(s.order, func(i, j int) bool {
		return len(a.classes[a.colors[s.order[i]]]) < len(a.classes[a.colors[s.order[j]]])
	})
	if !s.run(0) {
		return nil, false
	}
	return s.mapping, true
}

type isoSearch struct {
	a, b    *Certificate
	order   []graph.Node
	mapping map[graph.Node]graph.Node
	used    map[graph.Node]bool
	strong  bool
}

func (s *isoSearch) run(i int) bool {
	if i == len(s.order) {
		return true
	}
	n := s.order[i]
	for _, m := range s.b.classes[s.a.colors[n]] {
		if s.used[m] {
			continue
		}
		s.mapping[n] = m
		s.used[m] = true
		if s.consistent(n, m) {
			if s.run(i + 1) {
				return true
			}
			if !s.strong {
				// weak mode never revisits a locally consistent choice
				delete(s.mapping, n)
				delete(s.used, m)
				return false
			}
		}
		delete(s.mapping, n)
		delete(s.used, m)
	}
	return false
}

// consistent checks every edge of n whose other end is already mapped.
func (s *isoSearch) consistent(n, m graph.Node) bool {
	for _, e := range s.a.g.EdgesOf(n) {
		src, ok := s.mapping[e.Source]
		if !ok {
			continue
		}
		tgt, ok := s.mapping[e.Target]
		if !ok {
			continue
		}
		if !s.b.g.HasEdge(graph.NewEdge(src, e.Label, tgt)) {
			return false
		}
	}
	return true
}
