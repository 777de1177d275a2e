// Package graph provides the node/edge model shared by host graphs (the
// states of an exploration) and rule graphs (left- and right-hand sides).
package graph

import (
	"fmt"
	"strconv"
)

// MergeLabel labels right-hand-side edges that merge their two end nodes.
const MergeLabel = ""

// Node is a graph node. Nodes are plain values and can be used as map keys.
//
// Host nodes are identified by Number. Value nodes carry a data Value and
// are identified by Type and Value alone (their Number is zero). In rule
// graphs a node with a non-empty Var is a variable that binds to a value
// node when the rule is matched.
type Node struct {
	Number int    `json:"n"`
	Type   string `json:"t,omitempty"`
	Value  string `json:"v,omitempty"`
	Var    string `json:"x,omitempty"`
}

// ValueNode returns the host node representing a data value.
func ValueNode(typ, value string) Node {
	return Node{Type: typ, Value: value}
}

// IsValue reports whether n denotes a data value: a constant, a host
// value node or a rule variable.
func (n Node) IsValue() bool {
	return n.Value != "" || n.Var != ""
}

// IsVariable reports whether n is a rule variable without a constant value.
func (n Node) IsVariable() bool {
	return n.Var != "" && n.Value == ""
}

// IsConstant reports whether n is a rule node with a fixed value.
func (n Node) IsConstant() bool {
	return n.Value != "" && n.Var == ""
}

func (n Node) String() string {
	switch {
	case n.Var != "":
		return "$" + n.Var
	case n.Value != "":
		return n.Type + ":" + strconv.Quote(n.Value)
	case n.Type != "":
		return "n" + strconv.Itoa(n.Number) + ":" + n.Type
	default:
		return "n" + strconv.Itoa(n.Number)
	}
}

// less orders nodes deterministically: host nodes by number first, then
// value nodes by type and value.
func (n Node) less(o Node) bool {
	nv, ov := n.IsValue(), o.IsValue()
	if nv != ov {
		return !nv
	}
	if n.Number != o.Number {
		return n.Number < o.Number
	}
	if n.Type != o.Type {
		return n.Type < o.Type
	}
	if n.Value != o.Value {
		return n.Value < o.Value
	}
	return n.Var < o.Var
}

// CompareNodes is a three-way comparison usable with slices.SortFunc.
func CompareNodes(a, b Node) int {
	switch {
	case a == b:
		return 0
	case a.less(b):
		return -1
	default:
		return 1
	}
}

// Edge is a labelled, directed binary edge. A graph contains at most one
// edge per (source, label, target) triple.
type Edge struct {
	Source Node   `json:"s"`
	Label  string `json:"l"`
	Target Node   `json:"t"`
}

// NewEdge creates an edge.
func NewEdge(source Node, label string, target Node) Edge {
	return Edge{Source: source, Label: label, Target: target}
}

// IsMerger reports whether e is a merger edge.
func (e Edge) IsMerger() bool {
	return e.Label == MergeLabel
}

// IsLoop reports whether e starts and ends at the same node.
func (e Edge) IsLoop() bool {
	return e.Source == e.Target
}

// Incident reports whether n is an end of e.
func (e Edge) Incident(n Node) bool {
	return e.Source == n || e.Target == n
}

// Opposite returns the end of e that is not n (n itself for loops).
func (e Edge) Opposite(n Node) Node {
	if e.Source == n {
		return e.Target
	}
	return e.Source
}

func (e Edge) String() string {
	label := e.Label
	if e.IsMerger() {
		label = "="
	}
	return fmt.Sprintf("%s-%s->%s", e.Source, label, e.Target)
}

// CompareEdges is a three-way comparison usable with slices.SortFunc.
func CompareEdges(a, b Edge) int {
	if c := CompareNodes(a.Source, b.Source); c != 0 {
		return c
	}
	if a.Label != b.Label {
		if a.Label < b.Label {
			return -1
		}
		return 1
	}
	return CompareNodes(a.Target, b.Target)
}
