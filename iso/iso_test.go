package iso

import (
	"testing"

	"groove/graph"
)

func node(n int, typ string) graph.Node {
	return graph.Node{Number: n, Type: typ}
}

func chain(numbers ...int) *graph.Graph {
	g := graph.New("")
	for i := 0; i+1 < len(numbers); i++ {
		g.AddEdge(graph.NewEdge(node(numbers[i], "N"), "next", node(numbers[i+1], "N")))
	}
	return g
}

func TestIsomorphic_Renumbered(t *testing.T) {
	a := chain(0, 1, 2)
	b := chain(7, 3, 5)
	for _, mode := range []Mode{Weak, Strong} {
		c := NewChecker(mode)
		ca, cb := Certify(a, nil), Certify(b, nil)
		if ca.Digest() != cb.Digest() {
			t.Fatalf("%s: isomorphic graphs have different certificates", mode)
		}
		m, ok := c.Find(ca, cb)
		if !ok {
			t.Fatalf("%s: isomorphism not found", mode)
		}
		if m[node(0, "N")] != node(7, "N") {
			t.Errorf("%s: wrong image for chain head: %v", mode, m[node(0, "N")])
		}
	}
}

func TestIsomorphic_Different(t *testing.T) {
	a := chain(0, 1, 2)
	b := chain(0, 1)
	b.AddEdge(graph.NewEdge(node(0, "N"), "next", node(2, "N")))
	c := NewChecker(Strong)
	if c.Isomorphic(Certify(a, nil), Certify(b, nil)) {
		t.Error("a chain is not isomorphic to a fork")
	}

	// same shape, different labels
	d := graph.New("")
	d.AddEdge(graph.NewEdge(node(0, "N"), "next", node(1, "N")))
	d.AddEdge(graph.NewEdge(node(1, "N"), "prev", node(2, "N")))
	if c.Isomorphic(Certify(a, nil), Certify(d, nil)) {
		t.Error("labels must be preserved")
	}
}

func TestIsomorphic_Values(t *testing.T) {
	mk := func(n int, v string) *graph.Graph {
		g := graph.New("")
		g.AddEdge(graph.NewEdge(node(n, "A"), "val", graph.ValueNode("int", v)))
		return g
	}
	c := NewChecker(Strong)
	if !c.Isomorphic(Certify(mk(0, "1"), nil), Certify(mk(4, "1"), nil)) {
		t.Error("graphs equal up to numbering should be isomorphic")
	}
	if c.Isomorphic(Certify(mk(0, "1"), nil), Certify(mk(0, "2"), nil)) {
		t.Error("different values must not be identified")
	}
}

func TestIsomorphic_Bound(t *testing.T) {
	// two unconnected nodes of the same type, one of them bound
	g := graph.New("")
	g.AddNode(node(0, "A"))
	g.AddNode(node(1, "A"))
	c := NewChecker(Strong)
	if !c.Isomorphic(Certify(g, []graph.Node{node(0, "A")}), Certify(g, []graph.Node{node(1, "A")})) {
		t.Error("swapping symmetric nodes should be an isomorphism")
	}

	h := graph.New("")
	h.AddEdge(graph.NewEdge(node(0, "A"), "x", node(1, "A")))
	if c.Isomorphic(Certify(h, []graph.Node{node(0, "A")}), Certify(h, []graph.Node{node(1, "A")})) {
		t.Error("bound nodes must be mapped pointwise")
	}
}

// symmetric graph: two disjoint 2-cycles of identical nodes, where weak
// mode may give up but strong mode must succeed.
func TestIsomorphic_Symmetric(t *testing.T) {
	mk := func(p, q, r, s int) *graph.Graph {
		g := graph.New("")
		g.AddEdge(graph.NewEdge(node(p, "N"), "e", node(q, "N")))
		g.AddEdge(graph.NewEdge(node(q, "N"), "e", node(p, "N")))
		g.AddEdge(graph.NewEdge(node(r, "N"), "e", node(s, "N")))
		g.AddEdge(graph.NewEdge(node(s, "N"), "e", node(r, "N")))
		return g
	}
	a := Certify(mk(0, 1, 2, 3), nil)
	b := Certify(mk(0, 2, 1, 3), nil)
	if !NewChecker(Strong).Isomorphic(a, b) {
		t.Error("strong mode must find the isomorphism")
	}
	// weak mode may fail, but must never claim a false isomorphism
	other := graph.New("")
	for i := 0; i < 4; i++ {
		other.AddEdge(graph.NewEdge(node(i, "N"), "e", node((i+1)%4, "N")))
	}
	if NewChecker(Weak).Isomorphic(a, Certify(other, nil)) {
		t.Error("a 4-cycle is not two 2-cycles")
	}
}
