package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testGraph() *Graph {
	g := New("test")
	a := Node{Number: 0, Type: "A"}
	b := Node{Number: 1, Type: "B"}
	c := Node{Number: 2, Type: "B"}
	g.AddEdge(NewEdge(a, "next", b))
	g.AddEdge(NewEdge(b, "next", c))
	g.AddEdge(NewEdge(c, "val", ValueNode("int", "3")))
	return g
}

func TestGraph_AddRemove(t *testing.T) {
	g := testGraph()
	if g.NodeCount() != 4 {
		t.Fatalf("NodeCount = %d, want 4", g.NodeCount())
	}
	if g.EdgeCount() != 3 {
		t.Fatalf("EdgeCount = %d, want 3", g.EdgeCount())
	}

	b, ok := g.NodeByNumber(1)
	if !ok {
		t.Fatal("node 1 not found")
	}
	dangling := g.RemoveNode(b)
	if len(dangling) != 2 {
		t.Errorf("RemoveNode returned %d edges, want 2", len(dangling))
	}
	if g.EdgeCount() != 1 {
		t.Errorf("EdgeCount after removal = %d, want 1", g.EdgeCount())
	}
	if g.RemoveNode(b) != nil {
		t.Error("removing an absent node should return nil")
	}
}

func TestGraph_NumberClashPanics(t *testing.T) {
	g := New("clash")
	g.AddNode(Node{Number: 3, Type: "A"})
	defer func() {
		if recover() == nil {
			t.Error("expected panic for clashing node number")
		}
	}()
	g.AddNode(Node{Number: 3, Type: "B"})
}

func TestGraph_FixedPanics(t *testing.T) {
	g := testGraph()
	g.SetFixed()
	g.AddError(nil) // allowed
	defer func() {
		if recover() == nil {
			t.Error("expected panic when mutating a fixed graph")
		}
	}()
	g.AddNode(Node{Number: 9})
}

func TestGraph_FreshNumbers(t *testing.T) {
	g := New("fresh")
	g.AddNode(Node{Number: 0})
	g.AddNode(Node{Number: 2})
	g.AddNode(ValueNode("int", "0"))

	got := g.FreshNumbers(3)
	want := []int{1, 3, 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FreshNumbers mismatch (-want +got):\n%s", diff)
	}
}

func TestGraph_MergeNodes(t *testing.T) {
	g := New("merge")
	a := Node{Number: 0}
	b := Node{Number: 1}
	c := Node{Number: 2}
	g.AddEdge(NewEdge(a, "x", c))
	g.AddEdge(NewEdge(c, "y", b))
	g.AddEdge(NewEdge(b, "z", b))

	g.MergeNodes(a, b)

	if g.HasNode(b) {
		t.Error("dropped node still present")
	}
	for _, e := range []Edge{NewEdge(a, "x", c), NewEdge(c, "y", a), NewEdge(a, "z", a)} {
		if !g.HasEdge(e) {
			t.Errorf("missing redirected edge %s", e)
		}
	}
}

func TestGraph_CloneEqual(t *testing.T) {
	g := testGraph()
	c := g.Clone()
	if !g.Equal(c) {
		t.Fatal("clone should equal original")
	}
	c.AddNode(Node{Number: 7})
	if g.Equal(c) {
		t.Error("graphs with different node sets should differ")
	}
}

func TestFrozen_RoundTrip(t *testing.T) {
	g := testGraph()
	f := Freeze(g)
	if f.Size() != g.Size() {
		t.Fatalf("frozen size = %d, want %d", f.Size(), g.Size())
	}
	if !f.Thaw("thawed").Equal(g) {
		t.Error("thawed graph differs from original")
	}

	data, err := f.Compress()
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	back, err := Decompress(data)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !back.Equal(f) {
		t.Errorf("decompressed snapshot differs:\n%s", cmp.Diff(f, back))
	}
}

func TestDecompress_Garbage(t *testing.T) {
	if _, err := Decompress([]byte("not zstd")); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestCompare_Apply(t *testing.T) {
	before := testGraph()
	after := before.Clone()
	n1, _ := after.NodeByNumber(1)
	after.RemoveNode(n1)
	after.AddEdge(NewEdge(Node{Number: 0, Type: "A"}, "next", Node{Number: 5, Type: "B"}))

	d := Compare(before, after)
	want := DiffSummary{NodesAdded: 1, NodesRemoved: 1, EdgesAdded: 1, EdgesRemoved: 2}
	if d.Summary != want {
		t.Errorf("summary = %+v, want %+v", d.Summary, want)
	}

	replayed := before.Clone()
	d.Apply(replayed)
	if !replayed.Equal(after) {
		t.Errorf("applying diff did not reproduce target:\n%s", Compare(replayed, after))
	}
	if !Compare(after, after).IsEmpty() {
		t.Error("self diff should be empty")
	}
}
