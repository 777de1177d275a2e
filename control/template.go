// Package control is the control automaton that schedules rule
// applications. A Template of Locations is built into a finite set of
// Frames; each frame offers a StepAttempt (a choice of rule calls) with
// verdict frames for success and failure. Atomic recipes are regions of
// locations with positive transience.
package control

import (
	"errors"
	"fmt"

	"groove/rule"
)

// Recipe is an atomic procedure whose intermediate states are transient.
type Recipe struct {
	name string
}

// NewRecipe returns a recipe.
func NewRecipe(name string) *Recipe {
	return &Recipe{name: name}
}

// Name returns the recipe name.
func (r *Recipe) Name() string { return r.name }

func (r *Recipe) String() string { return r.name }

// Arg binds a rule parameter for a call.
type Arg struct {
	Param  int
	Source Source
}

// Call is a rule invocation leaving a location.
type Call struct {
	rule        *rule.Rule
	target      *Location
	args        []Arg
	assignments []Assignment
}

// AddAssignment appends an assignment performed after the call.
func (c *Call) AddAssignment(a Assignment) *Call {
	c.assignments = append(c.assignments, a)
	return c
}

// Location is a mutable control location of a template.
type Location struct {
	template   *Template
	name       string
	calls      []*Call
	onSuccess  *Location
	onFailure  *Location
	transience int
	recipe     *Recipe
	final      bool
	erroneous  bool
}

// Name returns the location name.
func (l *Location) Name() string { return l.name }

func (l *Location) checkMutable() {
	if l.template.built {
		panic(fmt.Sprintf("template %q is already built", l.template.name))
	}
}

// AddCall adds a rule call to the location's attempt.
func (l *Location) AddCall(r *rule.Rule, target *Location, args ...Arg) *Call {
	l.checkMutable()
	c := &Call{rule: r, target: target, args: args}
	l.calls = append(l.calls, c)
	return c
}

// SetVerdicts sets the locations reached when the attempt succeeds (at
// least one call applied) and when it fails. Nil means the location is
// dead after that verdict.
func (l *Location) SetVerdicts(onSuccess, onFailure *Location) *Location {
	l.checkMutable()
	l.onSuccess, l.onFailure = onSuccess, onFailure
	return l
}

// SetFinal marks states that end up here as final.
func (l *Location) SetFinal() *Location {
	l.checkMutable()
	l.final = true
	return l
}

// SetError marks states that end up here as erroneous.
func (l *Location) SetError() *Location {
	l.checkMutable()
	l.erroneous = true
	return l
}

// SetTransience places the location inside depth nested atomic blocks,
// the innermost of which executes recipe.
func (l *Location) SetTransience(depth int, recipe *Recipe) *Location {
	l.checkMutable()
	l.transience = depth
	l.recipe = recipe
	return l
}

// Template is a control program under construction.
type Template struct {
	name      string
	start     *Location
	locations []*Location
	frames    []*Frame
	built     bool
}

// NewTemplate creates a template with a start location.
func NewTemplate(name string) *Template {
	t := &Template{name: name}
	t.start = t.AddLocation("start")
	return t
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Start returns the start location.
func (t *Template) Start() *Location { return t.start }

// Frames returns the frames of a built template, in number order.
func (t *Template) Frames() []*Frame { return t.frames }

// AddLocation adds a location.
func (t *Template) AddLocation(name string) *Location {
	if t.built {
		panic(fmt.Sprintf("template %q is already built", t.name))
	}
	l := &Location{template: t, name: name}
	t.locations = append(t.locations, l)
	return l
}

// ErrInvalidTemplate is wrapped by all Build errors.
var ErrInvalidTemplate = errors.New("invalid control template")

type frameKey struct {
	loc   *Location
	prime *Location
}

// Build fixes the template and returns the start frame. Every reachable
// (location, prime) pair becomes exactly one frame.
func (t *Template) Build() (*Frame, error) {
	if t.built {
		panic(fmt.Sprintf("template %q is already built", t.name))
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	t.built = true

	frames := make(map[frameKey]*Frame)
	var order []*Frame
	var get func(loc, prime *Location) *Frame
	get = func(loc, prime *Location) *Frame {
		key := frameKey{loc, prime}
		if f, ok := frames[key]; ok {
			return f
		}
		f := &Frame{number: len(order), location: loc, template: t}
		frames[key] = f
		order = append(order, f)
		if prime == loc {
			f.prime = f
		} else {
			f.prime = get(prime, prime)
		}
		return f
	}
	start := get(t.start, t.start)
	for i := 0; i < len(order); i++ {
		f := order[i]
		loc := f.location
		primeLoc := f.prime.location
		if len(loc.calls) == 0 {
			continue
		}
		attempt := &StepAttempt{}
		for _, c := range loc.calls {
			target := get(c.target, c.target)
			attempt.steps = append(attempt.steps, newStep(f, c, target))
		}
		if loc.onSuccess != nil {
			attempt.onSuccess = get(loc.onSuccess, primeLoc)
		}
		if loc.onFailure != nil {
			attempt.onFailure = get(loc.onFailure, primeLoc)
		}
		f.attempt = attempt
	}
	t.frames = order
	return start, nil
}

func (t *Template) validate() error {
	var problems []string
	for _, l := range t.locations {
		if l.transience < 0 {
			problems = append(problems, fmt.Sprintf("location %s has negative transience", l.name))
		}
		if l.transience > 0 && l.recipe == nil {
			problems = append(problems, fmt.Sprintf("transient location %s has no recipe", l.name))
		}
		for _, c := range l.calls {
			if c.rule == nil || c.target == nil {
				problems = append(problems, fmt.Sprintf("location %s has an incomplete call", l.name))
				continue
			}
			if c.target.template != t {
				problems = append(problems, fmt.Sprintf("call %s from %s leaves the template", c.rule.Name(), l.name))
			}
			for _, a := range c.args {
				p, ok := c.rule.Param(a.Param)
				if !ok {
					problems = append(problems, fmt.Sprintf("call %s from %s: no parameter %d", c.rule.Name(), l.name, a.Param))
					continue
				}
				if p.Kind != rule.ParamIn {
					problems = append(problems, fmt.Sprintf("call %s from %s: parameter %d is not an input", c.rule.Name(), l.name, a.Param))
				}
			}
		}
		if len(l.calls) == 0 && (l.onSuccess != nil || l.onFailure != nil) {
			problems = append(problems, fmt.Sprintf("location %s has verdicts but no calls", l.name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w %s: %v", ErrInvalidTemplate, t.name, problems)
	}
	return nil
}
