package lts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"groove/cas"
	"groove/control"
	"groove/match"
)

// MatchResult is an applicable rule match for one control step.
type MatchResult struct {
	Step  *control.Step
	Event *match.Event
	// Origin is the parent transition the match was inherited from, or nil
	// if the match was computed on the state itself.
	Origin *Transition
}

func (m MatchResult) String() string {
	return fmt.Sprintf("%s@%s", m.Event, m.Step)
}

type resultKey struct {
	step  *control.Step
	event cas.Digest
}

// MatchFilter decides whether a match may be applied in a state. An error
// rejects the match and is recorded as a diagnostic on the state's graph.
type MatchFilter func(ctx context.Context, s *GraphState, m MatchResult) (bool, error)

// MatchCollector computes the matches offered by the current frame of a
// state, inheriting them from the parent state where the incoming rule
// cannot have changed them.
type MatchCollector struct {
	gts    *GTS
	filter MatchFilter
}

// NewMatchCollector returns a collector for g. filter may be nil.
func NewMatchCollector(g *GTS, filter MatchFilter) *MatchCollector {
	return &MatchCollector{gts: g, filter: filter}
}

// Collect returns the matches of every step offered by the frame of s,
// without duplicates and without matches of rules outranked by a matching
// rule of higher priority.
func (c *MatchCollector) Collect(ctx context.Context, s *GraphState) ([]MatchResult, error) {
	attempt := s.frame.Attempt()
	if attempt == nil {
		return nil, nil
	}
	stats := &c.gts.session.Stats
	var (
		results []MatchResult
		seen    = make(map[resultKey]bool)
		best    int
		first   = true
	)
	add := func(m MatchResult) {
		k := resultKey{step: m.Step, event: m.Event.Key()}
		if seen[k] {
			return
		}
		seen[k] = true
		results = append(results, m)
		if p := m.Step.Rule().Priority(); first || p > best {
			best = p
			first = false
		}
	}

	reuse := c.parentMatches(s, attempt)
	for _, step := range attempt.Steps() {
		var found []MatchResult
		if origins, ok := reuse[step]; ok {
			for _, t := range origins {
				found = append(found, MatchResult{Step: step, Event: t.event, Origin: t})
			}
			stats.ReusedMatches += len(found)
		} else {
			var err error
			found, err = c.compute(ctx, s, step)
			if err != nil {
				return nil, err
			}
			stats.FreshMatches += len(found)
		}
		for _, m := range found {
			ok, err := c.accept(ctx, s, m)
			if err != nil {
				return nil, err
			}
			if ok {
				add(m)
			}
		}
	}

	kept := results[:0]
	for _, m := range results {
		if m.Step.Rule().Priority() == best {
			kept = append(kept, m)
		}
	}
	return kept, nil
}

// parentMatches returns, per step, the parent transitions whose events are
// still matches in s. Steps missing from the result must be matched anew.
func (c *MatchCollector) parentMatches(s *GraphState, attempt *control.StepAttempt) map[*control.Step][]*Transition {
	in := s.incoming
	if in == nil || in.kind != RuleKind || c.filter != nil || !uniformPriority(attempt) {
		return nil
	}
	// the parent offered the same steps if it started in the same frame
	parent := in.Source()
	if !parent.IsClosed() || parent.truncated || s.frame != s.prime || parent.prime != s.prime || !parent.values.Equal(s.values) {
		return nil
	}
	deps := c.gts.grammar.Dependencies()
	inRule := in.Rule()
	result := make(map[*control.Step][]*Transition)
	for _, step := range attempt.Steps() {
		if deps.Enables(inRule, step.Rule()) || deps.Disables(inRule, step.Rule()) {
			continue
		}
		result[step] = nil
	}
	for _, t := range parent.Transitions() {
		if _, ok := result[t.step]; ok {
			result[t.step] = append(result[t.step], t)
		}
	}
	return result
}

// uniformPriority reports whether all rules of the attempt share one
// priority. Otherwise the parent's transitions may omit outranked matches.
func uniformPriority(a *control.StepAttempt) bool {
	steps := a.Steps()
	for _, st := range steps[1:] {
		if st.Rule().Priority() != steps[0].Rule().Priority() {
			return false
		}
	}
	return true
}

// compute matches the rule of step in the graph of s, binding its input
// parameters from the control values.
func (c *MatchCollector) compute(ctx context.Context, s *GraphState, step *control.Step) ([]MatchResult, error) {
	r := step.Rule()
	seed := match.NewBinding()
	for _, arg := range step.Args() {
		p, ok := r.Param(arg.Param)
		if !ok {
			return nil, fmt.Errorf("step %s: rule has no parameter %d", step, arg.Param)
		}
		v, err := arg.Source.Eval(s.values, nil)
		if err != nil {
			return nil, fmt.Errorf("step %s in %s: %w", step, s, err)
		}
		seed.Nodes[p.Node] = v
	}
	var (
		result []MatchResult
		evErr  error
	)
	err := c.gts.matcher.Traverse(ctx, s.Graph(), r.Condition(), seed, func(p *match.Proof) bool {
		ev, err := match.NewEvent(r, p)
		if err != nil {
			evErr = err
			return false
		}
		result = append(result, MatchResult{Step: step, Event: ev})
		return true
	})
	if err != nil {
		return nil, interrupted(fmt.Sprintf("matching %s in %s", r.Name(), s), err)
	}
	if evErr != nil {
		return nil, fmt.Errorf("matching %s in %s: %w", r.Name(), s, evErr)
	}
	return result, nil
}

func (c *MatchCollector) accept(ctx context.Context, s *GraphState, m MatchResult) (bool, error) {
	if c.filter == nil {
		return true, nil
	}
	ok, err := c.filter(ctx, s, m)
	if err == nil {
		return ok, nil
	}
	if ctx.Err() != nil {
		return false, interrupted(fmt.Sprintf("filtering %s", m), err)
	}
	s.Graph().AddError(fmt.Errorf("match %s rejected: %w", m, err))
	c.gts.session.Stats.FilterErrors++
	c.gts.session.Logger.Warn("match filter failed",
		zap.Stringer("state", s),
		zap.Stringer("match", m),
		zap.Error(err))
	return false, nil
}
