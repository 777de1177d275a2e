package rule

import (
	"fmt"
	"sort"

	"groove/graph"
)

// Grammar is a fixed set of top-level rules sharing grammar properties,
// together with their dependency analysis and an optional type graph.
type Grammar struct {
	name  string
	rules []*Rule
	index map[string]*Rule
	props Properties
	deps  *Dependencies
	types *TypeGraph
}

// NewGrammar bundles rules. Rule names must be unique and every rule must
// be top-level.
func NewGrammar(name string, props Properties, types *TypeGraph, rules ...*Rule) (*Grammar, error) {
	errs := &formatErrors{subject: "grammar " + name}
	g := &Grammar{
		name:  name,
		index: make(map[string]*Rule, len(rules)),
		props: props,
		types: types,
	}
	for _, r := range rules {
		if !r.IsTop() {
			errs.add("rule %s is not a top-level rule", r.name)
			continue
		}
		if _, ok := g.index[r.name]; ok {
			errs.add("duplicate rule name %s", r.name)
			continue
		}
		g.index[r.name] = r
		g.rules = append(g.rules, r)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	g.deps = NewDependencies(g.rules)
	return g, nil
}

// Name returns the grammar name.
func (g *Grammar) Name() string { return g.name }

// Rules returns the top-level rules in declaration order.
func (g *Grammar) Rules() []*Rule { return g.rules }

// Rule returns the rule with the given name.
func (g *Grammar) Rule(name string) (*Rule, bool) {
	r, ok := g.index[name]
	return r, ok
}

// Properties returns the grammar properties.
func (g *Grammar) Properties() Properties { return g.props }

// Dependencies returns the enabler/disabler relation.
func (g *Grammar) Dependencies() *Dependencies { return g.deps }

// TypeGraph returns the type graph, or nil if the grammar is untyped.
func (g *Grammar) TypeGraph() *TypeGraph { return g.types }

// PropertyRules returns the forbidden and invariant rules.
func (g *Grammar) PropertyRules() []*Rule {
	var result []*Rule
	for _, r := range g.rules {
		if r.role.IsProperty() {
			result = append(result, r)
		}
	}
	return result
}

// Transformers returns the modifying transformer rules.
func (g *Grammar) Transformers() []*Rule {
	var result []*Rule
	for _, r := range g.rules {
		if r.role == RoleTransformer && r.modifying {
			result = append(result, r)
		}
	}
	return result
}

// TypeGraph constrains host graphs: allowed node types and allowed
// (source type, label, target type) edge signatures. Value nodes are
// typed by their value type.
type TypeGraph struct {
	nodes map[string]bool
	edges map[edgeSig]bool
}

type edgeSig struct {
	source, label, target string
}

// NewTypeGraph creates an empty type graph.
func NewTypeGraph() *TypeGraph {
	return &TypeGraph{nodes: make(map[string]bool), edges: make(map[edgeSig]bool)}
}

// AddNodeType allows nodes of the given type.
func (t *TypeGraph) AddNodeType(typ string) *TypeGraph {
	t.nodes[typ] = true
	return t
}

// AddEdgeType allows edges with the given signature.
func (t *TypeGraph) AddEdgeType(source, label, target string) *TypeGraph {
	t.nodes[source] = true
	t.nodes[target] = true
	t.edges[edgeSig{source, label, target}] = true
	return t
}

// TypeError is a type-constraint violation found in a host graph.
type TypeError struct {
	Node *graph.Node
	Edge *graph.Edge
	Msg  string
}

func (e *TypeError) Error() string {
	switch {
	case e.Edge != nil:
		return fmt.Sprintf("edge %s: %s", e.Edge, e.Msg)
	case e.Node != nil:
		return fmt.Sprintf("node %s: %s", e.Node, e.Msg)
	}
	return e.Msg
}

// Check returns the type errors of host, in deterministic order.
func (t *TypeGraph) Check(host *graph.Graph) []error {
	var errs []error
	for _, n := range host.Nodes() {
		if !t.nodes[n.Type] {
			n := n
			errs = append(errs, &TypeError{Node: &n, Msg: fmt.Sprintf("undeclared node type %q", n.Type)})
		}
	}
	for _, e := range host.Edges() {
		if !t.edges[edgeSig{e.Source.Type, e.Label, e.Target.Type}] {
			e := e
			errs = append(errs, &TypeError{Edge: &e, Msg: fmt.Sprintf("undeclared edge type %q", e.Label)})
		}
	}
	return errs
}

func sortedKeys(m map[string]bool) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
