// Package rule models graph-rewrite rules and their application
// conditions, and derives the sets of elements a rule erases, creates and
// merges together with the minimal anchor needed to replay its effect.
package rule

import (
	"context"
	"fmt"
	"slices"

	"groove/graph"
)

// ParamKind distinguishes rule parameters.
type ParamKind int

const (
	// ParamIn is bound by the caller before matching.
	ParamIn ParamKind = iota
	// ParamOut is reported to the caller after matching.
	ParamOut
	// ParamAsk is a value supplied by the oracle during matching.
	ParamAsk
)

func (k ParamKind) String() string {
	switch k {
	case ParamIn:
		return "in"
	case ParamOut:
		return "out"
	case ParamAsk:
		return "ask"
	}
	return fmt.Sprintf("ParamKind(%d)", int(k))
}

// Param is a rule parameter: a rule node exposed to the control program.
type Param struct {
	Index int
	Kind  ParamKind
	Node  graph.Node
}

// Role classifies rules by how exploration uses them.
type Role int

const (
	// RoleTransformer rules are applied by the control program.
	RoleTransformer Role = iota
	// RoleForbidden rules must never match a reachable state.
	RoleForbidden
	// RoleInvariant rules must match every reachable state.
	RoleInvariant
	// RoleCondition rules are tests without effect.
	RoleCondition
)

func (r Role) String() string {
	switch r {
	case RoleTransformer:
		return "transformer"
	case RoleForbidden:
		return "forbidden"
	case RoleInvariant:
		return "invariant"
	case RoleCondition:
		return "condition"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// IsProperty reports whether rules of this role are checked on every state.
func (r Role) IsProperty() bool {
	return r == RoleForbidden || r == RoleInvariant
}

// Oracle supplies values for ParamAsk parameters. Calls may block on
// external input; implementations must honour ctx.
type Oracle interface {
	// Accepts reports whether the oracle can produce values of the type.
	Accepts(valueType string) bool
	// Value returns the value for parameter p of rule r.
	Value(ctx context.Context, r *Rule, p Param) (graph.Node, error)
}

// Properties are grammar-wide settings shared by all rules.
type Properties struct {
	// CheckDangling rejects matches that would implicitly delete edges
	// incident to an erased node.
	CheckDangling bool
	// Injective requires distinct pattern nodes to match distinct host
	// nodes.
	Injective bool
	// Oracle resolves ParamAsk parameters.
	Oracle Oracle
}

// Rule is an immutable rewrite rule: a left-hand side to be matched, a
// right-hand side describing the result, and an application condition.
// All derived sets are computed when the rule is built.
type Rule struct {
	name     string
	lhs      *graph.Graph
	rhs      *graph.Graph
	parent   *Rule
	cond     *Condition
	params   []Param
	priority int
	role     Role
	props    Properties
	subRules []*Rule

	eraserNodes  []graph.Node
	eraserEdges  []graph.Edge
	creatorNodes []graph.Node
	creatorEdges []graph.Edge
	creatorVars  []graph.Node
	lhsMergers   []graph.Edge
	rhsMergers   []graph.Edge
	modifierEnds []graph.Node
	anchor       *Anchor
	modifying    bool
	labels       labelUse
}

// Name returns the rule name.
func (r *Rule) Name() string { return r.name }

// LHS returns the left-hand side.
func (r *Rule) LHS() *graph.Graph { return r.lhs }

// RHS returns the right-hand side.
func (r *Rule) RHS() *graph.Graph { return r.rhs }

// Parent returns the enclosing rule, or r itself for top-level rules.
func (r *Rule) Parent() *Rule {
	if r.parent == nil {
		return r
	}
	return r.parent
}

// IsTop reports whether r is a top-level rule.
func (r *Rule) IsTop() bool { return r.parent == nil }

// Condition returns the application condition; its pattern is the LHS.
func (r *Rule) Condition() *Condition { return r.cond }

// Params returns the parameters in signature order.
func (r *Rule) Params() []Param { return r.params }

// Priority returns the rule priority; higher values win.
func (r *Rule) Priority() int { return r.priority }

// Role returns the rule role.
func (r *Rule) Role() Role { return r.role }

// Properties returns the grammar properties the rule was built with.
func (r *Rule) Properties() Properties { return r.props }

// SubRules returns the nested rules applied together with r.
func (r *Rule) SubRules() []*Rule { return r.subRules }

// EraserNodes returns the LHS nodes missing from the RHS.
func (r *Rule) EraserNodes() []graph.Node { return r.eraserNodes }

// EraserEdges returns the LHS edges missing from the RHS.
func (r *Rule) EraserEdges() []graph.Edge { return r.eraserEdges }

// CreatorNodes returns the RHS nodes missing from the LHS that are not
// created by an enclosing rule.
func (r *Rule) CreatorNodes() []graph.Node { return r.creatorNodes }

// CreatorEdges returns the non-merger RHS edges missing from the LHS that
// are not created by an enclosing rule.
func (r *Rule) CreatorEdges() []graph.Edge { return r.creatorEdges }

// CreatorVars returns the RHS variables that do not occur in the LHS.
func (r *Rule) CreatorVars() []graph.Node { return r.creatorVars }

// LHSMergers returns merger edges between two LHS nodes.
func (r *Rule) LHSMergers() []graph.Edge { return r.lhsMergers }

// RHSMergers returns merger edges with at least one creator end.
func (r *Rule) RHSMergers() []graph.Edge { return r.rhsMergers }

// ModifierEnds returns the LHS nodes touched by an eraser, creator or
// merger edge.
func (r *Rule) ModifierEnds() []graph.Node { return r.modifierEnds }

// Anchor returns the minimal element set determining the rule's effect.
func (r *Rule) Anchor() *Anchor { return r.anchor }

// IsModifying reports whether the rule or any sub-rule erases, creates or
// merges anything.
func (r *Rule) IsModifying() bool { return r.modifying }

// HasParams reports whether the rule has parameters.
func (r *Rule) HasParams() bool { return len(r.params) > 0 }

// Param returns the parameter with the given index.
func (r *Rule) Param(index int) (Param, bool) {
	for _, p := range r.params {
		if p.Index == index {
			return p, true
		}
	}
	return Param{}, false
}

func (r *Rule) String() string { return r.name }

// IsValidPatternMap reports whether a match with the given node and edge
// images may be applied to host. When the grammar checks dangling edges,
// every host edge incident to the image of an eraser node must itself be
// the image of an eraser edge.
func (r *Rule) IsValidPatternMap(host *graph.Graph, nodes map[graph.Node]graph.Node, edges map[graph.Edge]graph.Edge) bool {
	if !r.props.CheckDangling || len(r.eraserNodes) == 0 {
		return true
	}
	erased := make(map[graph.Edge]bool, len(r.eraserEdges))
	for _, e := range r.eraserEdges {
		if img, ok := edges[e]; ok {
			erased[img] = true
		}
	}
	for _, n := range r.eraserNodes {
		img, ok := nodes[n]
		if !ok {
			continue
		}
		for _, e := range host.EdgesOf(img) {
			if !erased[e] {
				return false
			}
		}
	}
	return true
}

// RuleBuilder assembles a rule. It is consumed by Build; every method
// panics afterwards.
type RuleBuilder struct {
	name     string
	lhs      *graph.Graph
	rhs      *graph.Graph
	params   []Param
	priority int
	role     Role
	props    Properties
	conds    []*ConditionBuilder
	subs     []subRuleSpec
	attached bool
	built    bool
}

type subRuleSpec struct {
	op Op
	b  *RuleBuilder
}

// NewRule starts a rule with the given sides. Elements preserved by the
// rule occur in both graphs.
func NewRule(name string, lhs, rhs *graph.Graph) *RuleBuilder {
	return &RuleBuilder{name: name, lhs: lhs, rhs: rhs}
}

func (b *RuleBuilder) checkMutable() {
	if b.built {
		panic(fmt.Sprintf("rule %q is already fixed", b.name))
	}
}

// AddParam appends a parameter.
func (b *RuleBuilder) AddParam(kind ParamKind, n graph.Node) *RuleBuilder {
	b.checkMutable()
	b.params = append(b.params, Param{Index: len(b.params), Kind: kind, Node: n})
	return b
}

// SetPriority sets the priority.
func (b *RuleBuilder) SetPriority(priority int) *RuleBuilder {
	b.checkMutable()
	b.priority = priority
	return b
}

// SetRole sets the role.
func (b *RuleBuilder) SetRole(role Role) *RuleBuilder {
	b.checkMutable()
	b.role = role
	return b
}

// SetProperties sets the grammar properties.
func (b *RuleBuilder) SetProperties(props Properties) *RuleBuilder {
	b.checkMutable()
	b.props = props
	return b
}

// AddCondition adds an application condition, typically a NOT (negative)
// or EXISTS (positive) condition over the LHS.
func (b *RuleBuilder) AddCondition(c *ConditionBuilder) *RuleBuilder {
	b.checkMutable()
	if c.attached {
		panic(fmt.Sprintf("condition %q already has a parent", c.name))
	}
	c.attached = true
	b.conds = append(b.conds, c)
	return b
}

// AddSubRule nests a rule that is applied for every (OpForall) or for one
// (OpExists) match extending the match of this rule.
func (b *RuleBuilder) AddSubRule(op Op, sub *RuleBuilder) *RuleBuilder {
	b.checkMutable()
	if op != OpForall && op != OpExists {
		panic(fmt.Sprintf("rule %q: sub-rule operator must be FORALL or EXISTS, got %s", b.name, op))
	}
	if sub.attached {
		panic(fmt.Sprintf("rule %q already has a parent", sub.name))
	}
	sub.attached = true
	b.subs = append(b.subs, subRuleSpec{op: op, b: sub})
	return b
}

// Build fixes the rule and all its sub-rules. Configuration problems are
// reported as a *FormatError.
func (b *RuleBuilder) Build() (*Rule, error) {
	return b.build(nil, OpExists, b.props)
}

func (b *RuleBuilder) build(parent *Rule, op Op, props Properties) (*Rule, error) {
	b.checkMutable()
	b.built = true
	errs := &formatErrors{subject: "rule " + b.name}

	r := &Rule{
		name:     b.name,
		lhs:      fixedCopy(b.lhs),
		rhs:      fixedCopy(b.rhs),
		parent:   parent,
		params:   slices.Clone(b.params),
		priority: b.priority,
		role:     b.role,
		props:    props,
	}
	if parent != nil {
		r.role = parent.role
	}

	bound := b.validateParams(r, errs)
	b.validateSides(r, errs)

	var ruleConds []*Condition
	for _, s := range b.subs {
		sub, err := s.b.build(r, s.op, props)
		if err != nil {
			errs.merge(err)
			continue
		}
		r.subRules = append(r.subRules, sub)
		ruleConds = append(ruleConds, sub.cond)
	}

	cb := NewCondition(b.name, op, r.lhs)
	if parent != nil {
		cb.root = parent.lhs
	} else {
		cb.root = graph.New(b.name + "-root")
	}
	cb.rule = r
	cb.ruleSubs = ruleConds
	for _, c := range b.conds {
		cb.subs = append(cb.subs, c)
	}
	cond, err := cb.build(nil, bound)
	if err != nil {
		errs.merge(err)
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	r.cond = cond
	r.computeDerived()
	return r, nil
}

// validateParams checks the signature and returns the nodes bound by it.
func (b *RuleBuilder) validateParams(r *Rule, errs *formatErrors) map[graph.Node]bool {
	bound := make(map[graph.Node]bool)
	seen := make(map[graph.Node]bool)
	for _, p := range r.params {
		if seen[p.Node] {
			errs.add("node %s used by more than one parameter", p.Node)
		}
		seen[p.Node] = true
		switch p.Kind {
		case ParamIn, ParamOut:
			if !r.lhs.HasNode(p.Node) {
				errs.add("parameter %d (%s) must be an LHS node", p.Index, p.Node)
			}
			if p.Kind == ParamIn {
				bound[p.Node] = true
			}
		case ParamAsk:
			if !p.Node.IsVariable() {
				errs.add("parameter %d (%s) must be a variable", p.Index, p.Node)
				continue
			}
			if r.props.Oracle == nil {
				errs.add("parameter %d (%s) needs a value oracle", p.Index, p.Node)
				continue
			}
			if !r.props.Oracle.Accepts(p.Node.Type) {
				errs.add("value oracle does not accept type %q of parameter %d", p.Node.Type, p.Index)
				continue
			}
			bound[p.Node] = true
		}
	}
	return bound
}

func (b *RuleBuilder) validateSides(r *Rule, errs *formatErrors) {
	for _, e := range r.rhs.Edges() {
		if e.IsMerger() && (e.Source.IsValue() || e.Target.IsValue()) {
			errs.add("merger %s may not touch a value node", e)
		}
	}
	asked := make(map[graph.Node]bool)
	for _, p := range r.params {
		if p.Kind == ParamAsk {
			asked[p.Node] = true
		}
	}
	for _, n := range r.rhs.Nodes() {
		if n.IsVariable() && !r.lhs.HasNode(n) && !asked[n] {
			if r.parent != nil && r.parent.rhs.HasNode(n) {
				continue
			}
			errs.add("unresolved variable %s in RHS", n)
		}
	}
}

func (r *Rule) computeDerived() {
	var parentLHS, parentRHS *graph.Graph
	if r.parent != nil {
		parentLHS, parentRHS = r.parent.lhs, r.parent.rhs
	}
	inParent := func(g *graph.Graph, n graph.Node) bool { return g != nil && g.HasNode(n) }
	inParentEdge := func(g *graph.Graph, e graph.Edge) bool { return g != nil && g.HasEdge(e) }

	for _, n := range r.lhs.Nodes() {
		if !n.IsValue() && !r.rhs.HasNode(n) && !inParent(parentLHS, n) {
			r.eraserNodes = append(r.eraserNodes, n)
		}
	}
	for _, e := range r.lhs.Edges() {
		if !r.rhs.HasEdge(e) && !inParentEdge(parentLHS, e) {
			r.eraserEdges = append(r.eraserEdges, e)
		}
	}
	for _, n := range r.rhs.Nodes() {
		if r.lhs.HasNode(n) || inParent(parentRHS, n) {
			continue
		}
		if n.IsVariable() {
			r.creatorVars = append(r.creatorVars, n)
		} else if !n.IsValue() {
			r.creatorNodes = append(r.creatorNodes, n)
		}
	}
	for _, e := range r.rhs.Edges() {
		if r.lhs.HasEdge(e) || inParentEdge(parentRHS, e) {
			continue
		}
		switch {
		case !e.IsMerger():
			r.creatorEdges = append(r.creatorEdges, e)
		case r.lhs.HasNode(e.Source) && r.lhs.HasNode(e.Target):
			r.lhsMergers = append(r.lhsMergers, e)
		default:
			r.rhsMergers = append(r.rhsMergers, e)
		}
	}

	ends := newOrderedSet[graph.Node]()
	addEnd := func(n graph.Node) {
		if r.lhs.HasNode(n) && !n.IsConstant() {
			ends.add(n)
		}
	}
	for _, e := range r.eraserEdges {
		addEnd(e.Source)
		addEnd(e.Target)
	}
	for _, e := range r.creatorEdges {
		addEnd(e.Source)
		addEnd(e.Target)
	}
	for _, e := range r.lhsMergers {
		addEnd(e.Source)
		addEnd(e.Target)
	}
	for _, e := range r.rhsMergers {
		addEnd(e.Source)
		addEnd(e.Target)
	}
	r.modifierEnds = ends.slice()

	r.modifying = len(r.eraserNodes)+len(r.eraserEdges)+len(r.creatorNodes)+
		len(r.creatorEdges)+len(r.lhsMergers)+len(r.rhsMergers) > 0
	for _, s := range r.subRules {
		if s.modifying {
			r.modifying = true
		}
	}

	r.anchor = r.computeAnchor()
	r.labels = computeLabelUse(r)
}

// computeAnchor collects, in order: the seed, eraser nodes, eraser edges
// not implied by an erased end, modifier ends, creator variables,
// parameters and the parts of sub-rule anchors lying in this LHS.
func (r *Rule) computeAnchor() *Anchor {
	nodes := newOrderedSet[graph.Node]()
	edges := newOrderedSet[graph.Edge]()
	addNode := func(n graph.Node) {
		if !n.IsConstant() {
			nodes.add(n)
		}
	}

	for _, n := range r.cond.seedNodes {
		addNode(n)
	}
	edges.addAll(r.cond.seedEdges)
	erased := make(map[graph.Node]bool, len(r.eraserNodes))
	for _, n := range r.eraserNodes {
		addNode(n)
		erased[n] = true
	}
	for _, e := range r.eraserEdges {
		if !erased[e.Source] && !erased[e.Target] {
			edges.add(e)
		}
	}
	for _, n := range r.modifierEnds {
		addNode(n)
	}
	for _, n := range r.creatorVars {
		addNode(n)
	}
	for _, p := range r.params {
		addNode(p.Node)
	}
	for _, s := range r.subRules {
		for _, n := range s.anchor.Nodes {
			if r.lhs.HasNode(n) {
				addNode(n)
			}
		}
		for _, n := range s.anchor.Vars {
			if r.lhs.HasNode(n) {
				addNode(n)
			}
		}
		for _, e := range s.anchor.Edges {
			if r.lhs.HasEdge(e) {
				edges.add(e)
			}
		}
	}
	return newAnchor(nodes, edges)
}
