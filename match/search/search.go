// Package search is a backtracking reference implementation of
// match.Matcher. It handles the full condition language (EXISTS, FORALL,
// NOT, AND, OR, TRUE, FALSE), sub-rules, dangling-edge checks, injective
// matching and value oracles.
package search

import (
	"context"
	"fmt"

	"groove/graph"
	"groove/match"
	"groove/rule"
)

// Matcher finds condition proofs by plain backtracking over pattern
// edges. The zero value is usable.
type Matcher struct {
	// Injective forces injective matching regardless of rule properties.
	Injective bool
	// Oracle resolves ask parameters when the rule properties carry none.
	Oracle match.Oracle
}

// New returns a matcher.
func New() *Matcher {
	return &Matcher{}
}

var _ match.Matcher = (*Matcher)(nil)

// Traverse enumerates the proofs of cond extending seed. For rule
// conditions, ask parameters are first resolved through the oracle and
// matches rejected by the dangling-edge check are skipped.
func (m *Matcher) Traverse(ctx context.Context, host *graph.Graph, cond *rule.Condition, seed match.Binding, visit func(*match.Proof) bool) error {
	if seed.Nodes == nil {
		seed = match.NewBinding()
	} else {
		seed = seed.Clone()
	}
	if r := cond.Rule(); r != nil {
		if err := m.resolveAsk(ctx, r, seed); err != nil {
			return err
		}
	}
	s := &searcher{m: m, ctx: ctx, host: host}
	return s.proofs(cond, seed, visit)
}

func (m *Matcher) resolveAsk(ctx context.Context, r *rule.Rule, seed match.Binding) error {
	for _, p := range r.Params() {
		if p.Kind != rule.ParamAsk {
			continue
		}
		if _, ok := seed.Nodes[p.Node]; ok {
			continue
		}
		oracle := r.Properties().Oracle
		if oracle == nil {
			oracle = m.Oracle
		}
		if oracle == nil {
			return fmt.Errorf("rule %s: no oracle for parameter %d", r.Name(), p.Index)
		}
		v, err := oracle.Value(ctx, r, p)
		if err != nil {
			return fmt.Errorf("rule %s: resolving parameter %d: %w", r.Name(), p.Index, err)
		}
		seed.Nodes[p.Node] = v
	}
	return nil
}

type searcher struct {
	m    *Matcher
	ctx  context.Context
	host *graph.Graph
	err  error
}

// proofs enumerates bindings of c's pattern whose sub-conditions hold.
func (s *searcher) proofs(c *rule.Condition, seed match.Binding, visit func(*match.Proof) bool) error {
	return s.bindings(c, seed, func(b match.Binding) bool {
		subs, ok := s.subsHold(c, b)
		if s.err != nil || !ok {
			return s.err == nil
		}
		return visit(&match.Proof{Cond: c, Binding: b, Subs: subs})
	})
}

func (s *searcher) subsHold(c *rule.Condition, b match.Binding) ([]*match.Proof, bool) {
	var result []*match.Proof
	for _, sub := range c.Subs() {
		ps, ok := s.holds(sub, b)
		if !ok {
			return nil, false
		}
		result = append(result, ps...)
	}
	return result, true
}

// holds evaluates a sub-condition under the binding of its parent.
func (s *searcher) holds(c *rule.Condition, b match.Binding) ([]*match.Proof, bool) {
	if s.err != nil {
		return nil, false
	}
	seed := b.Restrict(c.Root())
	switch c.Op() {
	case rule.OpTrue:
		return nil, true
	case rule.OpFalse:
		return nil, false
	case rule.OpAnd:
		return s.subsHold(c, seed)
	case rule.OpOr:
		for _, sub := range c.Subs() {
			if ps, ok := s.holds(sub, seed); ok {
				return ps, true
			}
		}
		return nil, false
	case rule.OpNot:
		found := false
		s.fail(s.proofs(c, seed, func(*match.Proof) bool {
			found = true
			return false
		}))
		return nil, !found
	case rule.OpExists:
		var first *match.Proof
		s.fail(s.proofs(c, seed, func(p *match.Proof) bool {
			first = p
			return false
		}))
		if first == nil {
			return nil, false
		}
		return []*match.Proof{first}, true
	case rule.OpForall:
		var all []*match.Proof
		ok := true
		s.fail(s.bindings(c, seed, func(bb match.Binding) bool {
			subs, holds := s.subsHold(c, bb)
			if !holds {
				ok = false
				return false
			}
			all = append(all, &match.Proof{Cond: c, Binding: bb, Subs: subs})
			return true
		}))
		if !ok {
			return nil, false
		}
		return all, true
	}
	return nil, false
}

func (s *searcher) fail(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}

// bindings enumerates the bindings of c's pattern that extend seed.
func (s *searcher) bindings(c *rule.Condition, seed match.Binding, yield func(match.Binding) bool) error {
	if s.err != nil {
		return s.err
	}
	r := c.Rule()
	injective := s.m.Injective
	if r != nil && r.Properties().Injective {
		injective = true
	}
	st := &state{
		searcher:  s,
		pattern:   c.Pattern(),
		binding:   seed.Clone(),
		injective: injective,
		used:      make(map[graph.Node]int),
	}
	for _, img := range st.binding.Nodes {
		if !img.IsValue() {
			st.used[img]++
		}
	}
	st.plan()
	st.yield = func() bool {
		b := st.binding.Clone()
		if r != nil && !r.IsValidPatternMap(s.host, b.Nodes, b.Edges) {
			return true
		}
		return yield(b)
	}
	st.run(0)
	if s.err != nil {
		return s.err
	}
	return nil
}

// state is one backtracking search over a single pattern.
type state struct {
	*searcher
	pattern   *graph.Graph
	binding   match.Binding
	injective bool
	used      map[graph.Node]int
	edges     []graph.Edge
	nodes     []graph.Node
	yield     func() bool
}

// plan orders pattern edges so that each edge after the first shares an
// end with an earlier one or with the seed whenever possible, followed by
// the nodes no edge reaches.
func (st *state) plan() {
	known := make(map[graph.Node]bool)
	for n := range st.binding.Nodes {
		known[n] = true
	}
	var pending []graph.Edge
	for _, e := range st.pattern.Edges() {
		if _, ok := st.binding.Edges[e]; !ok {
			pending = append(pending, e)
		} else {
			st.edges = append(st.edges, e)
		}
	}
	for len(pending) > 0 {
		pick := 0
		for i, e := range pending {
			if known[e.Source] || known[e.Target] || e.Source.IsConstant() || e.Target.IsConstant() {
				pick = i
				break
			}
		}
		e := pending[pick]
		pending = append(pending[:pick], pending[pick+1:]...)
		st.edges = append(st.edges, e)
		known[e.Source] = true
		known[e.Target] = true
	}
	for _, n := range st.pattern.Nodes() {
		if !known[n] {
			st.nodes = append(st.nodes, n)
		}
	}
}

// run matches st.edges[i:] and then the isolated nodes. It returns false
// when the enumeration must stop.
func (st *state) run(i int) bool {
	if st.err != nil {
		return false
	}
	if err := st.ctx.Err(); err != nil {
		st.fail(fmt.Errorf("matching interrupted: %w", err))
		return false
	}
	if i == len(st.edges) {
		return st.runNodes(0)
	}
	e := st.edges[i]
	if img, ok := st.binding.Edges[e]; ok {
		if !st.host.HasEdge(img) {
			return true
		}
		return st.run(i + 1)
	}
	src, srcBound := st.binding.Node(e.Source)
	tgt, tgtBound := st.binding.Node(e.Target)
	var candidates []graph.Edge
	switch {
	case srcBound:
		candidates = st.host.OutEdges(src)
	case tgtBound:
		candidates = st.host.InEdges(tgt)
	default:
		candidates = st.host.Edges()
	}
	for _, h := range candidates {
		if h.Label != e.Label {
			continue
		}
		if srcBound && h.Source != src || tgtBound && h.Target != tgt {
			continue
		}
		if !st.tryEdge(e, h, i) {
			return false
		}
	}
	return true
}

// tryEdge binds e to h, recurses, and undoes the binding.
func (st *state) tryEdge(e, h graph.Edge, i int) bool {
	var bound []graph.Node
	ok := true
	for _, pair := range [][2]graph.Node{{e.Source, h.Source}, {e.Target, h.Target}} {
		n, img := pair[0], pair[1]
		if cur, isBound := st.binding.Node(n); isBound {
			if cur != img {
				ok = false
				break
			}
			continue
		}
		if !st.bindNode(n, img) {
			ok = false
			break
		}
		bound = append(bound, n)
	}
	cont := true
	if ok {
		st.binding.Edges[e] = h
		cont = st.run(i + 1)
		delete(st.binding.Edges, e)
	}
	for _, n := range bound {
		st.unbindNode(n)
	}
	return cont
}

func (st *state) runNodes(i int) bool {
	if i == len(st.nodes) {
		return st.yield()
	}
	n := st.nodes[i]
	if _, ok := st.binding.Node(n); ok {
		return st.runNodes(i + 1)
	}
	if n.IsValue() {
		// an isolated variable cannot be enumerated
		return true
	}
	for _, h := range st.host.Nodes() {
		if !st.bindNode(n, h) {
			continue
		}
		cont := st.runNodes(i + 1)
		st.unbindNode(n)
		if !cont {
			return false
		}
	}
	return true
}

func (st *state) bindNode(n, h graph.Node) bool {
	if !compatible(n, h) {
		return false
	}
	if !h.IsValue() && st.injective && st.used[h] > 0 {
		return false
	}
	st.binding.Nodes[n] = h
	if !h.IsValue() {
		st.used[h]++
	}
	return true
}

func (st *state) unbindNode(n graph.Node) {
	h := st.binding.Nodes[n]
	delete(st.binding.Nodes, n)
	if !h.IsValue() {
		st.used[h]--
	}
}

// compatible reports whether rule node n may be matched to host node h.
func compatible(n, h graph.Node) bool {
	switch {
	case n.Value != "":
		return h == graph.ValueNode(n.Type, n.Value)
	case n.Var != "":
		return h.IsValue() && (n.Type == "" || n.Type == h.Type)
	default:
		return !h.IsValue() && (n.Type == "" || n.Type == h.Type)
	}
}
