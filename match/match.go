// Package match defines the contract between the state-space engine and
// subgraph matchers: bindings of rule elements to host elements, proofs
// witnessing that a condition holds, and rule events that record the
// part of a proof needed to replay a rule's effect.
package match

import (
	"context"

	"groove/graph"
	"groove/rule"
)

// Oracle supplies values for rule parameters that are not determined by
// the host graph. It is the only component allowed to block.
type Oracle = rule.Oracle

// Binding maps rule nodes and edges to host nodes and edges.
type Binding struct {
	Nodes map[graph.Node]graph.Node
	Edges map[graph.Edge]graph.Edge
}

// NewBinding returns an empty binding.
func NewBinding() Binding {
	return Binding{
		Nodes: make(map[graph.Node]graph.Node),
		Edges: make(map[graph.Edge]graph.Edge),
	}
}

// Clone returns a copy that can be extended independently.
func (b Binding) Clone() Binding {
	c := Binding{
		Nodes: make(map[graph.Node]graph.Node, len(b.Nodes)),
		Edges: make(map[graph.Edge]graph.Edge, len(b.Edges)),
	}
	for k, v := range b.Nodes {
		c.Nodes[k] = v
	}
	for k, v := range b.Edges {
		c.Edges[k] = v
	}
	return c
}

// Node returns the image of a rule node. Constants denote their own value
// node whether or not they are bound.
func (b Binding) Node(n graph.Node) (graph.Node, bool) {
	if img, ok := b.Nodes[n]; ok {
		return img, true
	}
	if n.Value != "" {
		return graph.ValueNode(n.Type, n.Value), true
	}
	return graph.Node{}, false
}

// Restrict returns the part of the binding whose domain lies in g.
func (b Binding) Restrict(g *graph.Graph) Binding {
	r := NewBinding()
	for k, v := range b.Nodes {
		if g.HasNode(k) {
			r.Nodes[k] = v
		}
	}
	for k, v := range b.Edges {
		if g.HasEdge(k) {
			r.Edges[k] = v
		}
	}
	return r
}

// Len returns the number of bound elements.
func (b Binding) Len() int {
	return len(b.Nodes) + len(b.Edges)
}

// Proof witnesses that a condition holds in a host graph: a binding of
// the condition's pattern plus proofs of the sub-conditions that carry a
// match of their own (EXISTS, FORALL and sub-rules).
type Proof struct {
	Cond    *rule.Condition
	Binding Binding
	Subs    []*Proof
}

// Rule returns the rule whose condition is proved, or nil.
func (p *Proof) Rule() *rule.Rule {
	return p.Cond.Rule()
}

// SubRuleProofs returns the sub-proofs belonging to sub-rules, in a
// deterministic order.
func (p *Proof) SubRuleProofs() []*Proof {
	var result []*Proof
	for _, s := range p.Subs {
		if s.Cond.Rule() != nil {
			result = append(result, s)
		}
	}
	return result
}

// Matcher enumerates proofs of a condition in a host graph. Implementations
// must call visit for every proof extending seed until visit returns false,
// and must return ctx.Err() (possibly wrapped) when interrupted.
type Matcher interface {
	Traverse(ctx context.Context, host *graph.Graph, cond *rule.Condition, seed Binding, visit func(*Proof) bool) error
}

// Collect is a convenience wrapper returning all proofs of cond.
func Collect(ctx context.Context, m Matcher, host *graph.Graph, cond *rule.Condition, seed Binding) ([]*Proof, error) {
	var result []*Proof
	err := m.Traverse(ctx, host, cond, seed, func(p *Proof) bool {
		result = append(result, p)
		return true
	})
	return result, err
}

// Exists reports whether cond has at least one proof.
func Exists(ctx context.Context, m Matcher, host *graph.Graph, cond *rule.Condition, seed Binding) (bool, error) {
	found := false
	err := m.Traverse(ctx, host, cond, seed, func(*Proof) bool {
		found = true
		return false
	})
	return found, err
}
