package graph

import (
	"fmt"
	"slices"
	"strings"
)

// Graph is a mutable set of nodes and edges with incidence indexes.
// A graph can be fixed, after which every mutation panics.
type Graph struct {
	name     string
	nodes    map[Node]struct{}
	numbers  map[int]Node
	edges    map[Edge]struct{}
	incident map[Node]map[Edge]struct{}
	errors   []error
	fixed    bool
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		name:     name,
		nodes:    make(map[Node]struct{}),
		numbers:  make(map[int]Node),
		edges:    make(map[Edge]struct{}),
		incident: make(map[Node]map[Edge]struct{}),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// SetName renames the graph.
func (g *Graph) SetName(name string) {
	g.name = name
}

// SetFixed makes the graph immutable.
func (g *Graph) SetFixed() {
	g.fixed = true
}

// IsFixed reports whether the graph has been fixed.
func (g *Graph) IsFixed() bool {
	return g.fixed
}

func (g *Graph) checkMutable() {
	if g.fixed {
		panic(fmt.Sprintf("graph %q is fixed", g.name))
	}
}

// AddNode adds n and reports whether it was new. Adding a non-value node
// whose number is already taken by a different node panics.
func (g *Graph) AddNode(n Node) bool {
	g.checkMutable()
	if _, ok := g.nodes[n]; ok {
		return false
	}
	if !n.IsValue() {
		if other, ok := g.numbers[n.Number]; ok {
			panic(fmt.Sprintf("graph %q: node number %d already used by %s", g.name, n.Number, other))
		}
		g.numbers[n.Number] = n
	}
	g.nodes[n] = struct{}{}
	return true
}

// RemoveNode removes n together with its incident edges, which are
// returned. It returns nil if n is not in the graph.
func (g *Graph) RemoveNode(n Node) []Edge {
	g.checkMutable()
	if _, ok := g.nodes[n]; !ok {
		return nil
	}
	dangling := g.EdgesOf(n)
	for _, e := range dangling {
		g.removeEdge(e)
	}
	delete(g.nodes, n)
	delete(g.incident, n)
	if !n.IsValue() {
		delete(g.numbers, n.Number)
	}
	return dangling
}

// AddEdge adds e, adding its end nodes when missing, and reports whether
// the edge was new.
func (g *Graph) AddEdge(e Edge) bool {
	g.checkMutable()
	if _, ok := g.edges[e]; ok {
		return false
	}
	g.AddNode(e.Source)
	g.AddNode(e.Target)
	g.edges[e] = struct{}{}
	g.link(e.Source, e)
	g.link(e.Target, e)
	return true
}

func (g *Graph) link(n Node, e Edge) {
	set := g.incident[n]
	if set == nil {
		set = make(map[Edge]struct{})
		g.incident[n] = set
	}
	set[e] = struct{}{}
}

// RemoveEdge removes e and reports whether it was present.
func (g *Graph) RemoveEdge(e Edge) bool {
	g.checkMutable()
	return g.removeEdge(e)
}

func (g *Graph) removeEdge(e Edge) bool {
	if _, ok := g.edges[e]; !ok {
		return false
	}
	delete(g.edges, e)
	if set := g.incident[e.Source]; set != nil {
		delete(set, e)
	}
	if set := g.incident[e.Target]; set != nil {
		delete(set, e)
	}
	return true
}

// MergeNodes redirects every edge of drop to keep and removes drop.
func (g *Graph) MergeNodes(keep, drop Node) {
	g.checkMutable()
	if keep == drop {
		return
	}
	for _, e := range g.RemoveNode(drop) {
		src, tgt := e.Source, e.Target
		if src == drop {
			src = keep
		}
		if tgt == drop {
			tgt = keep
		}
		g.AddEdge(NewEdge(src, e.Label, tgt))
	}
}

// HasNode reports whether n is in the graph.
func (g *Graph) HasNode(n Node) bool {
	_, ok := g.nodes[n]
	return ok
}

// NodeByNumber returns the non-value node with the given number.
func (g *Graph) NodeByNumber(number int) (Node, bool) {
	n, ok := g.numbers[number]
	return n, ok
}

// HasEdge reports whether e is in the graph.
func (g *Graph) HasEdge(e Edge) bool {
	_, ok := g.edges[e]
	return ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Size returns the number of nodes plus edges.
func (g *Graph) Size() int {
	return len(g.nodes) + len(g.edges)
}

// IsEmpty reports whether the graph has no nodes.
func (g *Graph) IsEmpty() bool {
	return len(g.nodes) == 0
}

// Nodes returns the nodes in deterministic order.
func (g *Graph) Nodes() []Node {
	result := make([]Node, 0, len(g.nodes))
	for n := range g.nodes {
		result = append(result, n)
	}
	slices.SortFunc(result, CompareNodes)
	return result
}

// Edges returns the edges in deterministic order.
func (g *Graph) Edges() []Edge {
	result := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		result = append(result, e)
	}
	slices.SortFunc(result, CompareEdges)
	return result
}

// EdgesOf returns the edges incident to n in deterministic order.
func (g *Graph) EdgesOf(n Node) []Edge {
	set := g.incident[n]
	result := make([]Edge, 0, len(set))
	for e := range set {
		result = append(result, e)
	}
	slices.SortFunc(result, CompareEdges)
	return result
}

// OutEdges returns the edges leaving n.
func (g *Graph) OutEdges(n Node) []Edge {
	var result []Edge
	for _, e := range g.EdgesOf(n) {
		if e.Source == n {
			result = append(result, e)
		}
	}
	return result
}

// InEdges returns the edges entering n.
func (g *Graph) InEdges(n Node) []Edge {
	var result []Edge
	for _, e := range g.EdgesOf(n) {
		if e.Target == n {
			result = append(result, e)
		}
	}
	return result
}

// Degree returns the number of edges incident to n.
func (g *Graph) Degree(n Node) int {
	return len(g.incident[n])
}

// EachNode calls f for every node, in no particular order, until f
// returns false.
func (g *Graph) EachNode(f func(Node) bool) {
	for n := range g.nodes {
		if !f(n) {
			return
		}
	}
}

// EachEdge calls f for every edge, in no particular order, until f
// returns false.
func (g *Graph) EachEdge(f func(Edge) bool) {
	for e := range g.edges {
		if !f(e) {
			return
		}
	}
}

// FreshNumbers returns the count smallest non-negative node numbers not
// used by the graph, in increasing order. The result depends only on the
// graph's node set.
func (g *Graph) FreshNumbers(count int) []int {
	result := make([]int, 0, count)
	for i := 0; len(result) < count; i++ {
		if _, ok := g.numbers[i]; !ok {
			result = append(result, i)
		}
	}
	return result
}

// Clone returns an unfixed copy without diagnostic errors.
func (g *Graph) Clone() *Graph {
	result := New(g.name)
	for n := range g.nodes {
		result.AddNode(n)
	}
	for e := range g.edges {
		result.AddEdge(e)
	}
	return result
}

// Equal reports whether both graphs have the same node and edge sets.
func (g *Graph) Equal(o *Graph) bool {
	if len(g.nodes) != len(o.nodes) || len(g.edges) != len(o.edges) {
		return false
	}
	for n := range g.nodes {
		if !o.HasNode(n) {
			return false
		}
	}
	for e := range g.edges {
		if !o.HasEdge(e) {
			return false
		}
	}
	return true
}

// AddError attaches a diagnostic error. Allowed on fixed graphs.
func (g *Graph) AddError(err error) {
	g.errors = append(g.errors, err)
}

// Errors returns the attached diagnostic errors.
func (g *Graph) Errors() []error {
	return g.errors
}

// HasErrors reports whether diagnostic errors are attached.
func (g *Graph) HasErrors() bool {
	return len(g.errors) > 0
}

// Labels returns the set of node types and edge labels occurring in g.
func (g *Graph) Labels() map[string]struct{} {
	result := make(map[string]struct{})
	for n := range g.nodes {
		if n.Type != "" {
			result[n.Type] = struct{}{}
		}
	}
	for e := range g.edges {
		result[e.Label] = struct{}{}
	}
	return result
}

func (g *Graph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s{", g.name)
	for i, n := range g.Nodes() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n.String())
	}
	b.WriteString("; ")
	for i, e := range g.Edges() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.String())
	}
	b.WriteString("}")
	return b.String()
}
