package control

import (
	"fmt"

	"groove/rule"
)

// Frame is a fixed position in the control automaton: a location together
// with the prime frame at which the current state entered it. States are
// only ever identified across equal prime frames.
type Frame struct {
	number   int
	location *Location
	prime    *Frame
	template *Template
	attempt  *StepAttempt
}

// Number is unique among the frames of one template.
func (f *Frame) Number() int { return f.number }

// Name returns a readable identifier.
func (f *Frame) Name() string {
	if f.prime == f {
		return f.location.name
	}
	return f.location.name + "@" + f.prime.location.name
}

func (f *Frame) String() string { return f.Name() }

// Template returns the owning template.
func (f *Frame) Template() *Template { return f.template }

// Prime returns the frame at which the current location sequence was
// entered through a step.
func (f *Frame) Prime() *Frame { return f.prime }

// IsPrime reports whether f is its own prime.
func (f *Frame) IsPrime() bool { return f.prime == f }

// Attempt returns the calls to try, or nil if the frame is dead.
func (f *Frame) Attempt() *StepAttempt { return f.attempt }

// IsDead reports whether no further rule calls are offered.
func (f *Frame) IsDead() bool { return f.attempt == nil }

// IsFinal reports whether a state resting in this frame is final.
func (f *Frame) IsFinal() bool { return f.attempt == nil && f.location.final }

// IsError reports whether a state resting in this frame is erroneous.
func (f *Frame) IsError() bool { return f.location.erroneous }

// Transience returns the depth of nested atomic blocks.
func (f *Frame) Transience() int { return f.location.transience }

// IsTransient reports whether the frame lies inside an atomic block.
func (f *Frame) IsTransient() bool { return f.location.transience > 0 }

// Recipe returns the innermost recipe being executed, or nil.
func (f *Frame) Recipe() *Recipe {
	if f.location.transience == 0 {
		return nil
	}
	return f.location.recipe
}

// StepAttempt is the choice of steps offered by a frame, with the frames
// taken after the attempt succeeded or failed.
type StepAttempt struct {
	steps     []*Step
	onSuccess *Frame
	onFailure *Frame
}

// Steps returns the steps in declaration order.
func (a *StepAttempt) Steps() []*Step { return a.steps }

// OnSuccess returns the frame after at least one step applied, or nil.
func (a *StepAttempt) OnSuccess() *Frame { return a.onSuccess }

// OnFailure returns the frame after no step applied, or nil.
func (a *StepAttempt) OnFailure() *Frame { return a.onFailure }

// Step is a rule call between two frames.
type Step struct {
	source      *Frame
	rule        *rule.Rule
	args        []Arg
	target      *Frame
	assignments []Assignment
	recipe      *Recipe
}

func newStep(source *Frame, c *Call, target *Frame) *Step {
	s := &Step{
		source:      source,
		rule:        c.rule,
		args:        c.args,
		target:      target,
		assignments: c.assignments,
	}
	switch {
	case target.IsTransient():
		s.recipe = target.Recipe()
	case source.IsTransient():
		s.recipe = source.Recipe()
	}
	return s
}

// Source returns the frame the step leaves.
func (s *Step) Source() *Frame { return s.source }

// Rule returns the called rule.
func (s *Step) Rule() *rule.Rule { return s.rule }

// Args returns the input arguments.
func (s *Step) Args() []Arg { return s.args }

// Target returns the frame the step enters.
func (s *Step) Target() *Frame { return s.target }

// Assignments returns the variable updates performed by the step.
func (s *Step) Assignments() []Assignment { return s.assignments }

// Recipe returns the recipe the step belongs to, or nil.
func (s *Step) Recipe() *Recipe { return s.recipe }

// IsPartial reports whether the step is part of a recipe.
func (s *Step) IsPartial() bool { return s.recipe != nil }

// IsRecipeEntry reports whether the step enters an atomic block from the
// surface.
func (s *Step) IsRecipeEntry() bool {
	return !s.source.IsTransient() && s.target.IsTransient()
}

// IsModifying reports whether taking the step changes the control state:
// it leaves the source's prime frame or updates variables.
func (s *Step) IsModifying() bool {
	return s.target != s.source.prime || len(s.assignments) > 0
}

// Apply computes the control values after the step.
func (s *Step) Apply(values Values, outputs Outputs) (Values, error) {
	var err error
	for _, a := range s.assignments {
		values, err = a.Apply(values, outputs)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", s, err)
		}
	}
	return values, nil
}

func (s *Step) String() string {
	return fmt.Sprintf("%s--%s-->%s", s.source, s.rule.Name(), s.target)
}
