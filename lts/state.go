package lts

import (
	"fmt"
	"math"
	"strings"

	"groove/control"
	"groove/graph"
	"groove/iso"
	"groove/match"
)

// Flag is a bit in the status word of a state.
type Flag uint16

const (
	// FlagAbsent marks states excluded from the real state space.
	FlagAbsent Flag = 1 << iota
	// FlagClosed marks states whose outgoing transitions are complete.
	FlagClosed
	// FlagDone marks closed states whose transient descendants are all
	// closed; their absence is final.
	FlagDone
	// FlagError marks states violating a constraint.
	FlagError
	// FlagFinal marks states resting in a final control frame.
	FlagFinal
	// FlagInternal marks states reached inside a recipe and not yet left
	// it.
	FlagInternal
	// FlagTransient marks states whose frame lies inside a recipe.
	FlagTransient
	// FlagKnown marks done states known to be present.
	FlagKnown
)

var flagNames = []string{"absent", "closed", "done", "error", "final", "internal", "transient", "known"}

func (f Flag) String() string {
	var parts []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// AbsenceMax is the absence level of states that can never be present.
const AbsenceMax = math.MaxInt32

// GraphState is a state of the GTS. States live in the GTS arena and refer
// to each other by number.
type GraphState struct {
	gts     *GTS
	number  int
	flags   Flag
	absence int

	frame  *control.Frame
	prime  *control.Frame
	values control.Values

	// delta from the parent; parent < 0 for the start state
	parent int
	event  *match.Event
	added  []graph.Node
	depth  int

	cache      *graph.Graph
	frozen     *graph.Frozen
	compressed []byte
	// kept under isomorphism collapse
	cert *iso.Certificate

	incoming *Transition
	out      []*Transition
	stubs    []stub
	recipes  []*Transition

	// some matches were left unapplied, so out is no match inventory
	truncated bool

	trans *transience
}

// Number returns the arena index of the state.
func (s *GraphState) Number() int { return s.number }

// GTS returns the owning transition system.
func (s *GraphState) GTS() *GTS { return s.gts }

// Flags returns the status word.
func (s *GraphState) Flags() Flag { return s.flags }

// Has reports whether all bits of f are set.
func (s *GraphState) Has(f Flag) bool { return s.flags&f == f }

func (s *GraphState) set(f Flag) { s.flags |= f }

func (s *GraphState) clear(f Flag) { s.flags &^= f }

// Absence returns the absence level: 0 for present states, positive while
// the state is not known to reach a surface state.
func (s *GraphState) Absence() int { return s.absence }

// IsAbsent reports whether the state is excluded from the real state space.
func (s *GraphState) IsAbsent() bool { return s.Has(FlagAbsent) }

// IsClosed reports whether all outgoing transitions are known.
func (s *GraphState) IsClosed() bool { return s.Has(FlagClosed) }

// IsDone reports whether the state and its transient descendants are closed.
func (s *GraphState) IsDone() bool { return s.Has(FlagDone) }

// IsError reports whether the state violates a constraint.
func (s *GraphState) IsError() bool { return s.Has(FlagError) }

// IsFinal reports whether the state rests in a final frame.
func (s *GraphState) IsFinal() bool { return s.Has(FlagFinal) }

// IsInternal reports whether the state lies inside a recipe.
func (s *GraphState) IsInternal() bool { return s.Has(FlagInternal) }

// IsTransient reports whether the state's frame lies inside a recipe.
func (s *GraphState) IsTransient() bool { return s.Has(FlagTransient) }

// IsKnown reports whether the state is done and present.
func (s *GraphState) IsKnown() bool { return s.Has(FlagKnown) }

// IsReal reports whether the state belongs to the real state space.
func (s *GraphState) IsReal() bool { return !s.IsAbsent() && !s.IsInternal() }

// Frame returns the actual control frame.
func (s *GraphState) Frame() *control.Frame { return s.frame }

// PrimeFrame returns the frame the state was created in.
func (s *GraphState) PrimeFrame() *control.Frame { return s.prime }

// Values returns the bound control values.
func (s *GraphState) Values() control.Values { return s.values }

// Parent returns the state this one's graph is derived from, or nil.
func (s *GraphState) Parent() *GraphState {
	if s.parent < 0 {
		return nil
	}
	return s.gts.states[s.parent]
}

// Incoming returns the transition that created the state, or nil for the
// start state.
func (s *GraphState) Incoming() *Transition { return s.incoming }

// Event returns the event deriving the graph from the parent's.
func (s *GraphState) Event() *match.Event { return s.event }

// Added returns the nodes created by the event.
func (s *GraphState) Added() []graph.Node { return s.added }

// Depth returns the length of the delta chain to the start state.
func (s *GraphState) Depth() int { return s.depth }

// IsFrozen reports whether the state keeps a frozen graph.
func (s *GraphState) IsFrozen() bool { return s.frozen != nil || s.compressed != nil }

// IsCached reports whether the state's graph is held in memory.
func (s *GraphState) IsCached() bool { return s.cache != nil }

// Transitions returns the outgoing rule transitions. For closed states they
// are materialized from their compact form on each call.
func (s *GraphState) Transitions() []*Transition {
	if s.stubs == nil {
		return s.out
	}
	result := make([]*Transition, len(s.stubs))
	for i, st := range s.stubs {
		result[i] = st.materialize(s)
	}
	return result
}

// RecipeTransitions returns the recipe transitions leaving the state.
func (s *GraphState) RecipeTransitions() []*Transition { return s.recipes }

func (s *GraphState) String() string {
	return fmt.Sprintf("s%d", s.number)
}

// transitionCount returns the number of outgoing rule transitions.
func (s *GraphState) transitionCount() int {
	if s.stubs != nil {
		return len(s.stubs)
	}
	return len(s.out)
}
