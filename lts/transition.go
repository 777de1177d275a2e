package lts

import (
	"fmt"

	"groove/control"
	"groove/graph"
	"groove/match"
	"groove/rule"
)

// Kind distinguishes rule transitions from recipe transitions.
type Kind int

const (
	// RuleKind is a single rule application.
	RuleKind Kind = iota
	// RecipeKind summarises a complete recipe execution.
	RecipeKind
)

func (k Kind) String() string {
	if k == RecipeKind {
		return "recipe"
	}
	return "rule"
}

// Transition is an edge of the GTS.
//
// Rule transitions carry the applied event, the control step and the nodes
// the event created. Recipe transitions lead from the state where a recipe
// was entered to a surface state where it completed, and remember the rule
// transition that entered the recipe.
type Transition struct {
	gts    *GTS
	kind   Kind
	source int
	target int

	event    *match.Event
	step     *control.Step
	added    []graph.Node
	symmetry bool
	// added is recomputed from the source graph on first use
	replay bool

	recipe  *control.Recipe
	initial *Transition
}

// Kind returns the transition kind.
func (t *Transition) Kind() Kind { return t.kind }

// Source returns the source state.
func (t *Transition) Source() *GraphState { return t.gts.states[t.source] }

// Target returns the target state.
func (t *Transition) Target() *GraphState { return t.gts.states[t.target] }

// Event returns the applied event; nil for recipe transitions.
func (t *Transition) Event() *match.Event { return t.event }

// Rule returns the applied rule; nil for recipe transitions.
func (t *Transition) Rule() *rule.Rule {
	if t.event == nil {
		return nil
	}
	return t.event.Rule()
}

// Step returns the control step; nil for recipe transitions.
func (t *Transition) Step() *control.Step { return t.step }

// Added returns the nodes created by the event. It is nil for transitions
// that reuse a target found through a confluent diamond.
func (t *Transition) Added() []graph.Node {
	if t.replay {
		t.replay = false
		added, err := t.event.Apply(t.Source().Graph().Clone(), nil)
		if err != nil {
			panic(fmt.Sprintf("replaying %s: %v", t, err))
		}
		t.added = added
	}
	return t.added
}

// IsSymmetry reports whether the target graph is isomorphic but not equal
// to the result of applying the event.
func (t *Transition) IsSymmetry() bool { return t.symmetry }

// Recipe returns the summarised recipe, or nil for rule transitions.
func (t *Transition) Recipe() *control.Recipe { return t.recipe }

// Initial returns the rule transition entering the recipe.
func (t *Transition) Initial() *Transition { return t.initial }

// IsPartial reports whether the transition is one step of a recipe.
func (t *Transition) IsPartial() bool {
	return t.kind == RuleKind && t.step.IsPartial()
}

// IsLoop reports whether source and target coincide.
func (t *Transition) IsLoop() bool { return t.source == t.target }

// IsReal reports whether the transition belongs to the real state space:
// both ends are real and it is not a recipe step.
func (t *Transition) IsReal() bool {
	return !t.IsPartial() && t.Source().IsReal() && t.Target().IsReal()
}

// Label returns the rule or recipe name.
func (t *Transition) Label() string {
	if t.kind == RecipeKind {
		return t.recipe.Name()
	}
	return t.event.Rule().Name()
}

func (t *Transition) String() string {
	if t.kind == RecipeKind {
		return fmt.Sprintf("s%d--<%s>-->s%d", t.source, t.recipe.Name(), t.target)
	}
	return fmt.Sprintf("s%d--%s-->s%d", t.source, t.event, t.target)
}

// Steps returns the rule transitions the transition consists of. For a
// recipe transition this is a shortest path of recipe steps from the
// initial transition to the target; nil if the path can no longer be
// found.
func (t *Transition) Steps() []*Transition {
	if t.kind == RuleKind {
		return []*Transition{t}
	}
	start := t.initial
	if start.target == t.target {
		return []*Transition{start}
	}
	prev := map[int]*Transition{start.target: start}
	queue := []int{start.target}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, x := range t.gts.states[n].Transitions() {
			if !x.IsPartial() {
				continue
			}
			if _, seen := prev[x.target]; seen {
				continue
			}
			prev[x.target] = x
			if x.target == t.target {
				return pathTo(prev, start, t.target)
			}
			if t.gts.states[x.target].IsTransient() {
				queue = append(queue, x.target)
			}
		}
	}
	return nil
}

func pathTo(prev map[int]*Transition, start *Transition, target int) []*Transition {
	var rev []*Transition
	for cur := target; cur != start.target; {
		x := prev[cur]
		rev = append(rev, x)
		cur = x.source
	}
	path := make([]*Transition, 0, len(rev)+1)
	path = append(path, start)
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path
}

// stub is the compact form of a rule transition kept by closed states.
// Created nodes are not kept; they are replayed when asked for.
type stub struct {
	target int
	event  *match.Event
	step   *control.Step
	flags  uint8
}

const (
	stubSymmetry uint8 = 1 << iota
	stubCreates
)

func toStub(t *Transition) stub {
	st := stub{target: t.target, event: t.event, step: t.step}
	if t.symmetry {
		st.flags |= stubSymmetry
	}
	if len(t.added) > 0 || t.replay {
		st.flags |= stubCreates
	}
	return st
}

func (st stub) materialize(source *GraphState) *Transition {
	return &Transition{
		gts:      source.gts,
		kind:     RuleKind,
		source:   source.number,
		target:   st.target,
		event:    st.event,
		step:     st.step,
		symmetry: st.flags&stubSymmetry != 0,
		replay:   st.flags&stubCreates != 0,
	}
}

type recipeKey struct {
	root   int
	recipe *control.Recipe
	target int
}
