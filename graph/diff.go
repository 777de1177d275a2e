package graph

import (
	"fmt"
	"strings"
)

// Action represents the type of change to a graph element.
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

// NodeChange is a node added or removed between two graphs.
type NodeChange struct {
	Action Action `json:"action"`
	Node   Node   `json:"node"`
}

// EdgeChange is an edge added or removed between two graphs.
type EdgeChange struct {
	Action Action `json:"action"`
	Edge   Edge   `json:"edge"`
}

// DiffSummary provides aggregate statistics.
type DiffSummary struct {
	NodesAdded   int `json:"nodesAdded"`
	NodesRemoved int `json:"nodesRemoved"`
	EdgesAdded   int `json:"edgesAdded"`
	EdgesRemoved int `json:"edgesRemoved"`
}

// Diff lists the element-level changes from a before graph to an after
// graph, in deterministic order.
type Diff struct {
	Nodes   []NodeChange `json:"nodes,omitempty"`
	Edges   []EdgeChange `json:"edges,omitempty"`
	Summary DiffSummary  `json:"summary"`
}

// Compare computes the diff from before to after.
func Compare(before, after *Graph) *Diff {
	d := &Diff{}
	for _, n := range before.Nodes() {
		if !after.HasNode(n) {
			d.Nodes = append(d.Nodes, NodeChange{Action: ActionRemoved, Node: n})
		}
	}
	for _, n := range after.Nodes() {
		if !before.HasNode(n) {
			d.Nodes = append(d.Nodes, NodeChange{Action: ActionAdded, Node: n})
		}
	}
	for _, e := range before.Edges() {
		if !after.HasEdge(e) {
			d.Edges = append(d.Edges, EdgeChange{Action: ActionRemoved, Edge: e})
		}
	}
	for _, e := range after.Edges() {
		if !before.HasEdge(e) {
			d.Edges = append(d.Edges, EdgeChange{Action: ActionAdded, Edge: e})
		}
	}
	d.ComputeSummary()
	return d
}

// ComputeSummary calculates the summary from the changes.
func (d *Diff) ComputeSummary() {
	d.Summary = DiffSummary{}
	for _, c := range d.Nodes {
		switch c.Action {
		case ActionAdded:
			d.Summary.NodesAdded++
		case ActionRemoved:
			d.Summary.NodesRemoved++
		}
	}
	for _, c := range d.Edges {
		switch c.Action {
		case ActionAdded:
			d.Summary.EdgesAdded++
		case ActionRemoved:
			d.Summary.EdgesRemoved++
		}
	}
}

// IsEmpty reports whether the two compared graphs were equal.
func (d *Diff) IsEmpty() bool {
	return len(d.Nodes) == 0 && len(d.Edges) == 0
}

// Apply replays the diff on g.
func (d *Diff) Apply(g *Graph) {
	for _, c := range d.Edges {
		if c.Action == ActionRemoved {
			g.RemoveEdge(c.Edge)
		}
	}
	for _, c := range d.Nodes {
		if c.Action == ActionRemoved {
			g.RemoveNode(c.Node)
		}
	}
	for _, c := range d.Nodes {
		if c.Action == ActionAdded {
			g.AddNode(c.Node)
		}
	}
	for _, c := range d.Edges {
		if c.Action == ActionAdded {
			g.AddEdge(c.Edge)
		}
	}
}

func (d *Diff) String() string {
	var b strings.Builder
	for _, c := range d.Nodes {
		fmt.Fprintf(&b, "%s node %s\n", c.Action, c.Node)
	}
	for _, c := range d.Edges {
		fmt.Fprintf(&b, "%s edge %s\n", c.Action, c.Edge)
	}
	return b.String()
}
