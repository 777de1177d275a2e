package control

import (
	"fmt"
	"slices"

	"groove/graph"
)

// Values is the stack of control-variable values bound in a state. The
// last element holds the variables of the innermost call.
type Values [][]graph.Node

// Top returns the innermost variables.
func (v Values) Top() []graph.Node {
	if len(v) == 0 {
		return nil
	}
	return v[len(v)-1]
}

// Equal reports whether both stacks hold the same values.
func (v Values) Equal(o Values) bool {
	return slices.EqualFunc(v, o, func(a, b []graph.Node) bool { return slices.Equal(a, b) })
}

// Nodes returns every bound node, outermost first.
func (v Values) Nodes() []graph.Node {
	var result []graph.Node
	for _, frame := range v {
		result = append(result, frame...)
	}
	return result
}

// Clone returns a deep copy.
func (v Values) Clone() Values {
	result := make(Values, len(v))
	for i, frame := range v {
		result[i] = slices.Clone(frame)
	}
	return result
}

// SourceKind says where a value comes from.
type SourceKind int

const (
	// SourceVar reads a variable of the innermost call.
	SourceVar SourceKind = iota
	// SourceParam reads the image of a rule parameter after matching.
	SourceParam
	// SourceConst is a fixed value node.
	SourceConst
)

// Source describes a value used as a rule argument or assigned to a
// control variable.
type Source struct {
	Kind  SourceKind
	Index int
	Value graph.Node
}

// Var reads control variable i.
func Var(i int) Source { return Source{Kind: SourceVar, Index: i} }

// Param reads the image of rule parameter i.
func Param(i int) Source { return Source{Kind: SourceParam, Index: i} }

// Const is a constant value.
func Const(n graph.Node) Source { return Source{Kind: SourceConst, Value: n} }

// Outputs gives access to the parameter images of an applied rule.
type Outputs interface {
	ParamImage(index int) (graph.Node, bool)
}

// Eval resolves the source. outputs may be nil when no rule was applied.
func (s Source) Eval(values Values, outputs Outputs) (graph.Node, error) {
	switch s.Kind {
	case SourceVar:
		top := values.Top()
		if s.Index < 0 || s.Index >= len(top) {
			return graph.Node{}, fmt.Errorf("control variable %d is not bound", s.Index)
		}
		return top[s.Index], nil
	case SourceParam:
		if outputs == nil {
			return graph.Node{}, fmt.Errorf("parameter %d read without a rule application", s.Index)
		}
		n, ok := outputs.ParamImage(s.Index)
		if !ok {
			return graph.Node{}, fmt.Errorf("parameter %d has no image", s.Index)
		}
		return n, nil
	case SourceConst:
		return s.Value, nil
	}
	return graph.Node{}, fmt.Errorf("unknown source kind %d", s.Kind)
}

// AssignKind is the stack operation of an assignment.
type AssignKind int

const (
	// AssignModify replaces the innermost variables.
	AssignModify AssignKind = iota
	// AssignPush opens a new call with the given variables.
	AssignPush
	// AssignPop closes the innermost call; its sources are evaluated
	// against the closed call and appended to the variables of the caller.
	AssignPop
)

func (k AssignKind) String() string {
	switch k {
	case AssignModify:
		return "modify"
	case AssignPush:
		return "push"
	case AssignPop:
		return "pop"
	}
	return fmt.Sprintf("AssignKind(%d)", int(k))
}

// Assignment changes the control-variable stack after a step.
type Assignment struct {
	Kind    AssignKind
	Sources []Source
}

// Apply returns the values after the assignment; values is not modified.
func (a Assignment) Apply(values Values, outputs Outputs) (Values, error) {
	computed := make([]graph.Node, 0, len(a.Sources))
	for _, s := range a.Sources {
		n, err := s.Eval(values, outputs)
		if err != nil {
			return nil, fmt.Errorf("%s assignment: %w", a.Kind, err)
		}
		computed = append(computed, n)
	}
	result := values.Clone()
	switch a.Kind {
	case AssignModify:
		if len(result) == 0 {
			result = append(result, computed)
		} else {
			result[len(result)-1] = computed
		}
	case AssignPush:
		result = append(result, computed)
	case AssignPop:
		if len(result) == 0 {
			return nil, fmt.Errorf("pop assignment on an empty stack")
		}
		result = result[:len(result)-1]
		if len(result) == 0 {
			result = append(result, computed)
		} else {
			result[len(result)-1] = append(result[len(result)-1], computed...)
		}
	}
	return result, nil
}
