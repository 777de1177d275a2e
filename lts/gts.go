package lts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"groove/cas"
	"groove/control"
	"groove/graph"
	"groove/iso"
	"groove/match"
	"groove/rule"
)

// Listener is notified of changes to a GTS. Callbacks run synchronously on
// the exploring goroutine and must not modify the GTS.
type Listener interface {
	AddedState(g *GTS, s *GraphState)
	AddedTransition(g *GTS, t *Transition)
	StatusChanged(g *GTS, s *GraphState, old Flag)
}

// GTS is the graph transition system under construction.
type GTS struct {
	session *Session
	grammar *rule.Grammar
	matcher match.Matcher
	checker *iso.Checker

	states    []*GraphState
	buckets   map[cas.Digest][]int
	recipes   map[recipeKey]*Transition
	listeners []Listener
}

// New creates a GTS whose start state has the given graph and control
// frame. The start graph is checked like any other state; a check
// interrupted by ctx fails the construction.
func New(ctx context.Context, session *Session, grammar *rule.Grammar, matcher match.Matcher, start *graph.Graph, frame *control.Frame) (*GTS, error) {
	if frame == nil || !frame.IsPrime() {
		return nil, fmt.Errorf("start frame %v is not a prime frame", frame)
	}
	g := &GTS{
		session: session,
		grammar: grammar,
		matcher: matcher,
		buckets: make(map[cas.Digest][]int),
		recipes: make(map[recipeKey]*Transition),
	}
	switch session.Config.Collapse {
	case CollapseIsoWeak:
		g.checker = iso.NewChecker(iso.Weak)
	case CollapseIsoStrong:
		g.checker = iso.NewChecker(iso.Strong)
	}
	host := start.Clone()
	s := g.newState(nil, nil, nil, frame, nil, host)
	frozen := graph.Freeze(host)
	s.frozen = &frozen
	if _, err := g.AddState(ctx, s); err != nil {
		return nil, fmt.Errorf("adding start state: %w", err)
	}
	return g, nil
}

// Session returns the session the GTS reports to.
func (g *GTS) Session() *Session { return g.session }

// Grammar returns the explored grammar.
func (g *GTS) Grammar() *rule.Grammar { return g.grammar }

// Matcher returns the matcher used for checks and match collection.
func (g *GTS) Matcher() match.Matcher { return g.matcher }

// AddListener registers l for future changes.
func (g *GTS) AddListener(l Listener) {
	g.listeners = append(g.listeners, l)
}

// Start returns the start state.
func (g *GTS) Start() *GraphState { return g.states[0] }

// State returns the state with the given number.
func (g *GTS) State(number int) *GraphState { return g.states[number] }

// StateCount returns the number of states in the raw GTS.
func (g *GTS) StateCount() int { return len(g.states) }

// States returns all states, absent and internal ones included.
func (g *GTS) States() []*GraphState {
	return append([]*GraphState(nil), g.states...)
}

// RealStates returns the states that are neither absent nor internal.
func (g *GTS) RealStates() []*GraphState {
	var result []*GraphState
	for _, s := range g.states {
		if s.IsReal() {
			result = append(result, s)
		}
	}
	return result
}

// FinalStates returns the real final states.
func (g *GTS) FinalStates() []*GraphState {
	var result []*GraphState
	for _, s := range g.states {
		if s.IsReal() && s.IsFinal() {
			result = append(result, s)
		}
	}
	return result
}

// Transitions returns every rule and recipe transition.
func (g *GTS) Transitions() []*Transition {
	var result []*Transition
	for _, s := range g.states {
		result = append(result, s.Transitions()...)
		result = append(result, s.recipes...)
	}
	return result
}

// RealTransitions returns the transitions of the real state space: recipe
// transitions and non-partial rule transitions between real states.
func (g *GTS) RealTransitions() []*Transition {
	var result []*Transition
	for _, t := range g.Transitions() {
		if t.IsReal() {
			result = append(result, t)
		}
	}
	return result
}

func (g *GTS) newState(parent *GraphState, event *match.Event, added []graph.Node, frame *control.Frame, values control.Values, host *graph.Graph) *GraphState {
	s := &GraphState{
		gts:     g,
		number:  -1,
		parent:  -1,
		frame:   frame,
		prime:   frame,
		values:  values,
		event:   event,
		added:   added,
		cache:   host,
		absence: frame.Transience(),
	}
	if parent != nil {
		s.parent = parent.number
		s.depth = parent.depth + 1
	}
	return s
}

// AddState adds candidate unless an equivalent state exists, in which case
// the existing state is returned and the candidate is discarded. A nil
// result means the candidate was added and numbered. Checks run before the
// candidate is committed, so an error leaves the GTS unchanged.
func (g *GTS) AddState(ctx context.Context, candidate *GraphState) (*GraphState, error) {
	if candidate.number >= 0 {
		panic(fmt.Sprintf("state %s already added", candidate))
	}
	host := candidate.cache
	collapse := g.session.Config.Collapse != CollapseNone
	var (
		key  cas.Digest
		cert *iso.Certificate
	)
	if collapse {
		key, cert = g.stateKey(candidate, host)
		for _, n := range g.buckets[key] {
			if g.equivalent(g.states[n], candidate, host, cert) {
				return g.states[n], nil
			}
		}
	}
	if err := g.checkNew(ctx, candidate, host); err != nil {
		return nil, err
	}

	candidate.number = len(g.states)
	candidate.cert = cert
	g.states = append(g.states, candidate)
	if collapse {
		g.buckets[key] = append(g.buckets[key], candidate.number)
	}
	if candidate.frame.IsTransient() {
		candidate.set(FlagTransient | FlagInternal)
		candidate.trans = newTransience()
	}
	if candidate.frame.IsError() {
		candidate.set(FlagError)
	}
	host.SetName(candidate.String())
	host.SetFixed()
	g.session.Stats.States++
	if candidate.IsAbsent() {
		g.session.Stats.AbsentStates++
	}
	g.session.Logger.Debug("state added",
		zap.Int("state", candidate.number),
		zap.String("frame", candidate.frame.Name()),
		zap.Stringer("flags", candidate.flags))
	for _, l := range g.listeners {
		l.AddedState(g, candidate)
	}
	return nil, nil
}

// stateKey hashes what identifies a state under the collapse mode. Under
// isomorphism collapse it also returns the candidate's certificate.
func (g *GTS) stateKey(s *GraphState, host *graph.Graph) (cas.Digest, *iso.Certificate) {
	h := cas.NewHasher().Int(s.prime.Number()).Int(len(s.values))
	for _, frame := range s.values {
		h.Int(len(frame))
	}
	switch g.session.Config.Collapse {
	case CollapseIsoWeak, CollapseIsoStrong:
		cert := iso.Certify(host, s.values.Nodes())
		return h.Digest(cert.Digest()).Sum(), cert
	default:
		for _, n := range s.values.Nodes() {
			hashNode(h, n)
		}
		h.Int(host.NodeCount())
		for _, n := range host.Nodes() {
			hashNode(h, n)
		}
		h.Int(host.EdgeCount())
		for _, e := range host.Edges() {
			hashNode(h, e.Source)
			h.String(e.Label)
			hashNode(h, e.Target)
		}
		return h.Sum(), nil
	}
}

func hashNode(h *cas.Hasher, n graph.Node) {
	h.Int(n.Number).String(n.Type).String(n.Value)
}

func (g *GTS) equivalent(existing, candidate *GraphState, host *graph.Graph, cert *iso.Certificate) bool {
	if existing.prime != candidate.prime {
		return false
	}
	if cert == nil {
		return existing.values.Equal(candidate.values) && existing.Graph().Equal(host)
	}
	g.session.Stats.IsoChecks++
	other := existing.cert
	if other == nil {
		other = iso.Certify(existing.Graph(), existing.values.Nodes())
		existing.cert = other
	}
	if !g.checker.Isomorphic(cert, other) {
		return false
	}
	g.session.Stats.IsoHits++
	return true
}

// addTransition records a rule transition from an open state. An equal
// transition already present is returned instead.
func (g *GTS) addTransition(t *Transition) *Transition {
	source := g.states[t.source]
	if source.IsClosed() {
		panic(fmt.Sprintf("adding transition %s to closed state", t))
	}
	for _, x := range source.out {
		if x.step == t.step && x.target == t.target && x.event.Equal(t.event) {
			return x
		}
	}
	source.out = append(source.out, t)
	g.session.Stats.Transitions++
	g.session.Logger.Debug("transition added", zap.Stringer("transition", t))
	for _, l := range g.listeners {
		l.AddedTransition(g, t)
	}
	if t.IsPartial() {
		g.linkPartial(t)
	}
	return t
}

// addRecipeTransition materializes the recipe transition from root to
// target unless it exists.
func (g *GTS) addRecipeTransition(root int, via *Transition, target int) {
	recipe := via.step.Recipe()
	key := recipeKey{root: root, recipe: recipe, target: target}
	if _, ok := g.recipes[key]; ok {
		return
	}
	t := &Transition{
		gts:     g,
		kind:    RecipeKind,
		source:  root,
		target:  target,
		recipe:  recipe,
		initial: via,
	}
	g.recipes[key] = t
	r := g.states[root]
	r.recipes = append(r.recipes, t)
	g.session.Stats.RecipeTransitions++
	g.session.Logger.Debug("recipe transition added", zap.Stringer("transition", t))
	for _, l := range g.listeners {
		l.AddedTransition(g, t)
	}
}

func (g *GTS) setFlags(s *GraphState, f Flag) {
	old := s.flags
	s.set(f)
	g.notify(s, old)
}

func (g *GTS) notify(s *GraphState, old Flag) {
	if s.flags == old {
		return
	}
	for _, l := range g.listeners {
		l.StatusChanged(g, s, old)
	}
}
