package rule

import (
	"fmt"

	"groove/graph"
)

// Op is the operator of a condition node.
type Op int

const (
	OpExists Op = iota
	OpForall
	OpNot
	OpAnd
	OpOr
	OpTrue
	OpFalse
)

var opNames = [...]string{"EXISTS", "FORALL", "NOT", "AND", "OR", "TRUE", "FALSE"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// HasPattern reports whether conditions with this operator match a
// pattern of their own.
func (o Op) HasPattern() bool {
	return o == OpExists || o == OpForall || o == OpNot
}

// Condition is an immutable node of an application-condition tree. Its
// pattern must be matched in the context of its root, which is shared
// with the parent condition.
type Condition struct {
	name      string
	op        Op
	root      *graph.Graph
	pattern   *graph.Graph
	seedNodes []graph.Node
	seedEdges []graph.Edge
	subs      []*Condition
	rule      *Rule
}

// Name returns the condition name.
func (c *Condition) Name() string { return c.name }

// Op returns the condition operator.
func (c *Condition) Op() Op { return c.op }

// Root returns the context graph shared with the parent.
func (c *Condition) Root() *graph.Graph { return c.root }

// Pattern returns the graph to be matched.
func (c *Condition) Pattern() *graph.Graph { return c.pattern }

// SeedNodes returns the nodes in both root and pattern.
func (c *Condition) SeedNodes() []graph.Node { return c.seedNodes }

// SeedEdges returns the edges in both root and pattern.
func (c *Condition) SeedEdges() []graph.Edge { return c.seedEdges }

// Subs returns the sub-conditions.
func (c *Condition) Subs() []*Condition { return c.subs }

// Rule returns the rule whose effect this condition carries, if any.
func (c *Condition) Rule() *Rule { return c.rule }

// IsGround reports whether the condition has an empty root.
func (c *Condition) IsGround() bool { return c.root.IsEmpty() }

func (c *Condition) String() string {
	return fmt.Sprintf("%s %s", c.op, c.name)
}

// ConditionBuilder assembles a condition. It is consumed by Build (or by
// the enclosing builder); calling any method afterwards panics.
type ConditionBuilder struct {
	name     string
	op       Op
	root     *graph.Graph
	pattern  *graph.Graph
	subs     []*ConditionBuilder
	rule     *Rule
	ruleSubs []*Condition
	attached bool
	built    bool
}

// NewCondition starts a condition with the given operator and pattern.
// The pattern may be nil for AND, OR, TRUE and FALSE.
func NewCondition(name string, op Op, pattern *graph.Graph) *ConditionBuilder {
	return &ConditionBuilder{name: name, op: op, pattern: pattern}
}

func (b *ConditionBuilder) checkMutable() {
	if b.built {
		panic(fmt.Sprintf("condition %q is already fixed", b.name))
	}
}

// SetRoot sets the context graph explicitly. By default the root of a
// sub-condition is the pattern of its parent.
func (b *ConditionBuilder) SetRoot(root *graph.Graph) *ConditionBuilder {
	b.checkMutable()
	b.root = root
	return b
}

// AddSub adds a sub-condition. A builder can be added only once.
func (b *ConditionBuilder) AddSub(sub *ConditionBuilder) *ConditionBuilder {
	b.checkMutable()
	if sub.attached {
		panic(fmt.Sprintf("condition %q already has a parent", sub.name))
	}
	if !b.op.HasPattern() && b.op != OpAnd && b.op != OpOr {
		panic(fmt.Sprintf("condition %q: %s cannot have sub-conditions", b.name, b.op))
	}
	sub.attached = true
	b.subs = append(b.subs, sub)
	return b
}

// Build fixes a ground condition tree.
func (b *ConditionBuilder) Build() (*Condition, error) {
	if b.root == nil {
		b.root = graph.New(b.name + "-root")
	}
	return b.build(nil, nil)
}

// build fixes the condition. parentPattern is the default root; bound
// holds the nodes already resolved by enclosing conditions or parameters.
func (b *ConditionBuilder) build(parentPattern *graph.Graph, bound map[graph.Node]bool) (*Condition, error) {
	b.checkMutable()
	b.built = true
	errs := &formatErrors{subject: "condition " + b.name}

	root := b.root
	if root == nil {
		if parentPattern != nil {
			root = parentPattern
		} else {
			root = graph.New(b.name + "-root")
		}
	}
	pattern := b.pattern
	if pattern == nil || !b.op.HasPattern() {
		if pattern != nil && !pattern.IsEmpty() {
			errs.add("%s condition cannot have a pattern", b.op)
		}
		pattern = root
	}

	c := &Condition{
		name:    b.name,
		op:      b.op,
		root:    fixedCopy(root),
		pattern: fixedCopy(pattern),
		rule:    b.rule,
	}
	for _, n := range c.pattern.Nodes() {
		if c.root.HasNode(n) {
			c.seedNodes = append(c.seedNodes, n)
		}
	}
	for _, e := range c.pattern.Edges() {
		if c.root.HasEdge(e) {
			c.seedEdges = append(c.seedEdges, e)
		}
	}

	resolved := resolveVariables(c.root, c.pattern, bound)
	for _, n := range c.pattern.Nodes() {
		if n.IsVariable() && !resolved[n] {
			errs.add("unresolved variable %s", n)
		}
	}

	switch b.op {
	case OpTrue, OpFalse:
		if len(b.subs) > 0 || len(b.ruleSubs) > 0 {
			errs.add("%s condition cannot have sub-conditions", b.op)
		}
	}

	for _, sb := range b.subs {
		sub, err := sb.build(c.pattern, resolved)
		if err != nil {
			errs.merge(err)
			continue
		}
		c.subs = append(c.subs, sub)
	}
	c.subs = append(c.subs, b.ruleSubs...)

	if err := errs.err(); err != nil {
		return nil, err
	}
	return c, nil
}

// resolveVariables returns the set of nodes whose images are determined
// once the pattern is matched: non-value nodes, constants, root nodes,
// externally bound nodes, and variables reachable from any of these
// through a pattern edge.
func resolveVariables(root, pattern *graph.Graph, bound map[graph.Node]bool) map[graph.Node]bool {
	resolved := make(map[graph.Node]bool)
	for n := range bound {
		resolved[n] = true
	}
	for _, n := range root.Nodes() {
		resolved[n] = true
	}
	for _, n := range pattern.Nodes() {
		if !n.IsVariable() {
			resolved[n] = true
		}
	}
	edges := pattern.Edges()
	for changed := true; changed; {
		changed = false
		for _, e := range edges {
			if resolved[e.Source] && !resolved[e.Target] {
				resolved[e.Target] = true
				changed = true
			} else if resolved[e.Target] && !resolved[e.Source] {
				resolved[e.Source] = true
				changed = true
			}
		}
	}
	return resolved
}

func fixedCopy(g *graph.Graph) *graph.Graph {
	if g.IsFixed() {
		return g
	}
	c := g.Clone()
	c.SetFixed()
	return c
}
