package lts

import (
	"context"
)

// Explorer fully explores single states: it runs the attempts of the
// state's frames, applying the matches of each attempt and following the
// success or failure verdict, and closes the state when no frame remains.
type Explorer struct {
	gts       *GTS
	collector *MatchCollector
	applier   *MatchApplier
	// Limit bounds the number of matches applied per attempt; 0 means all.
	Limit int
}

// NewExplorer returns an explorer for g. filter may be nil.
func NewExplorer(g *GTS, filter MatchFilter) *Explorer {
	return &Explorer{
		gts:       g,
		collector: NewMatchCollector(g, filter),
		applier:   NewMatchApplier(g),
	}
}

// GTS returns the explored transition system.
func (e *Explorer) GTS() *GTS { return e.gts }

// Explore explores and closes s, returning the transitions added. On error
// s stays open; transitions added before the error are kept.
func (e *Explorer) Explore(ctx context.Context, s *GraphState) ([]*Transition, error) {
	var added []*Transition
	for !s.IsClosed() {
		attempt := s.Frame().Attempt()
		if attempt == nil || s.IsAbsent() {
			return added, e.gts.Close(ctx, s)
		}
		matches, err := e.collector.Collect(ctx, s)
		if err != nil {
			return added, err
		}
		if e.Limit > 0 && len(matches) > e.Limit {
			matches = matches[:e.Limit]
			s.truncated = true
		}
		for _, m := range matches {
			t, err := e.applier.Apply(ctx, s, m)
			if err != nil {
				return added, err
			}
			added = append(added, t)
		}
		next := attempt.OnFailure()
		if len(matches) > 0 {
			next = attempt.OnSuccess()
		}
		if next == nil || next == s.Frame() {
			return added, e.gts.Close(ctx, s)
		}
		e.gts.SetFrame(s, next)
	}
	return added, nil
}

// IsNew reports whether t created its target state.
func IsNew(t *Transition) bool {
	return t.kind == RuleKind && t.Target().incoming == t
}
