package lts

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// MatchApplier turns matches into transitions, adding target states to the
// GTS as needed.
type MatchApplier struct {
	gts *GTS
}

// NewMatchApplier returns an applier for g.
func NewMatchApplier(g *GTS) *MatchApplier {
	return &MatchApplier{gts: g}
}

// Apply applies m to the open state source and returns the resulting
// transition. If ctx is done, or a check on the new state is interrupted,
// the returned error wraps ErrInterrupted and the GTS is unchanged.
func (a *MatchApplier) Apply(ctx context.Context, source *GraphState, m MatchResult) (*Transition, error) {
	if err := ctx.Err(); err != nil {
		return nil, interrupted(fmt.Sprintf("applying %s", m), err)
	}
	if source.IsClosed() {
		panic(fmt.Sprintf("applying %s to closed state %s", m, source))
	}
	g := a.gts
	t := &Transition{
		gts:    g,
		kind:   RuleKind,
		source: source.number,
		event:  m.Event,
		step:   m.Step,
	}

	if !m.Event.IsModifying() && !m.Step.IsModifying() {
		t.target = source.number
		return g.addTransition(t), nil
	}

	if target, ok := a.confluent(source, m); ok {
		t.target = target
		t.symmetry = true
		g.session.Stats.ConfluentDiamonds++
		g.session.Logger.Debug("confluent diamond", zap.Stringer("state", source), zap.Stringer("match", m))
		return g.addTransition(t), nil
	}

	host := source.Graph().Clone()
	added, err := m.Event.Apply(host, nil)
	if err != nil {
		return nil, fmt.Errorf("applying %s to %s: %w", m, source, err)
	}
	values, err := m.Step.Apply(source.values, m.Event)
	if err != nil {
		return nil, fmt.Errorf("applying %s to %s: %w", m, source, err)
	}
	candidate := g.newState(source, m.Event, added, m.Step.Target(), values, host)
	existing, err := g.AddState(ctx, candidate)
	if err != nil {
		return nil, err
	}
	t.added = added
	if existing == nil {
		t.target = candidate.number
		candidate.incoming = t
	} else {
		t.target = existing.number
		if g.session.Config.Collapse.IsIso() {
			t.symmetry = !existing.Graph().Equal(host) || !existing.values.Equal(values)
		}
	}
	return g.addTransition(t), nil
}

// confluent looks for a target of m in source that is already known from
// a commuting diamond: source was reached from p by the incoming event e0,
// m was inherited from the transition p --e1--> q, and q has a transition
// for e0. Applying e1 in source then leads to a state isomorphic to that
// transition's target.
func (a *MatchApplier) confluent(source *GraphState, m MatchResult) (int, bool) {
	if !a.gts.session.Config.Collapse.IsIso() || m.Origin == nil {
		return 0, false
	}
	t0, t1 := source.incoming, m.Origin
	if t0 == nil || t0.kind != RuleKind {
		return 0, false
	}
	for _, t := range []*Transition{t0, t1} {
		if t.step.IsModifying() || t.step.IsPartial() {
			return 0, false
		}
	}
	if t0.event.Conflicts(t1.event) {
		return 0, false
	}
	q := t1.Target()
	for _, t := range q.Transitions() {
		if t.step == t0.step && t.event.Equal(t0.event) {
			return t.target, true
		}
	}
	return 0, false
}
