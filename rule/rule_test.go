package rule

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"groove/graph"
)

var (
	nA = graph.Node{Number: 0, Type: "A"}
	nB = graph.Node{Number: 1, Type: "B"}
	nC = graph.Node{Number: 2, Type: "C"}
	vX = graph.Node{Type: "int", Var: "x"}
)

func build(nodes []graph.Node, edges ...graph.Edge) *graph.Graph {
	g := graph.New("")
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		g.AddEdge(e)
	}
	return g
}

func mustBuild(t *testing.T, b *RuleBuilder) *Rule {
	t.Helper()
	r, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return r
}

// eraseEdge: A -next-> B becomes A, B.
func eraseEdge(t *testing.T) *Rule {
	lhs := build(nil, graph.NewEdge(nA, "next", nB))
	rhs := build([]graph.Node{nA, nB})
	return mustBuild(t, NewRule("eraseEdge", lhs, rhs))
}

func TestRule_EraserEdgeAnchor(t *testing.T) {
	r := eraseEdge(t)

	if !r.IsModifying() {
		t.Error("expected rule to be modifying")
	}
	if diff := cmp.Diff([]graph.Edge{graph.NewEdge(nA, "next", nB)}, r.EraserEdges()); diff != "" {
		t.Errorf("eraser edges mismatch (-want +got):\n%s", diff)
	}
	if len(r.EraserNodes()) != 0 {
		t.Errorf("expected no eraser nodes, got %v", r.EraserNodes())
	}
	// the ends of the erased edge must be in the anchor, and the edge itself
	a := r.Anchor()
	if !a.ContainsNode(nA) || !a.ContainsNode(nB) {
		t.Errorf("anchor %v misses modifier ends", a.Nodes)
	}
	if !a.ContainsEdge(graph.NewEdge(nA, "next", nB)) {
		t.Errorf("anchor %v misses eraser edge", a.Edges)
	}
}

func TestRule_ErasedNodeImpliesEdges(t *testing.T) {
	e := graph.NewEdge(nA, "next", nB)
	lhs := build(nil, e)
	rhs := build([]graph.Node{nA})
	r := mustBuild(t, NewRule("eraseNode", lhs, rhs))

	if diff := cmp.Diff([]graph.Node{nB}, r.EraserNodes()); diff != "" {
		t.Errorf("eraser nodes mismatch (-want +got):\n%s", diff)
	}
	if r.Anchor().ContainsEdge(e) {
		t.Error("edge incident to an erased node should not be anchored")
	}
	if !r.Anchor().ContainsNode(nB) {
		t.Error("erased node should be anchored")
	}
}

func TestRule_CreatorAndReadOnly(t *testing.T) {
	lhs := build([]graph.Node{nA})
	rhs := build(nil, graph.NewEdge(nA, "has", nC))
	r := mustBuild(t, NewRule("create", lhs, rhs))

	if diff := cmp.Diff([]graph.Node{nC}, r.CreatorNodes()); diff != "" {
		t.Errorf("creator nodes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]graph.Node{nA}, r.ModifierEnds()); diff != "" {
		t.Errorf("modifier ends mismatch (-want +got):\n%s", diff)
	}
	if r.Anchor().ContainsNode(nC) {
		t.Error("creator node must not be anchored")
	}

	test := mustBuild(t, NewRule("test", build([]graph.Node{nA}), build([]graph.Node{nA})))
	if test.IsModifying() {
		t.Error("read-only rule reported as modifying")
	}
	if test.Anchor().Size() != 0 {
		t.Errorf("read-only rule without seed should have an empty anchor, got %d elements", test.Anchor().Size())
	}
}

func TestRule_Mergers(t *testing.T) {
	merge := graph.NewEdge(nA, graph.MergeLabel, nB)
	lhs := build([]graph.Node{nA, nB})
	rhs := build(nil, merge)
	r := mustBuild(t, NewRule("merge", lhs, rhs))

	if diff := cmp.Diff([]graph.Edge{merge}, r.LHSMergers()); diff != "" {
		t.Errorf("LHS mergers mismatch (-want +got):\n%s", diff)
	}
	if len(r.CreatorEdges()) != 0 {
		t.Errorf("merger counted as creator edge: %v", r.CreatorEdges())
	}

	bad := build(nil, graph.NewEdge(nA, graph.MergeLabel, vX))
	_, err := NewRule("badMerge", build([]graph.Node{nA, vX}), bad).Build()
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestRule_AnchorKeyOrderInsensitive(t *testing.T) {
	e1 := graph.NewEdge(nA, "x", nB)
	e2 := graph.NewEdge(nB, "y", nC)
	r1 := mustBuild(t, NewRule("r1", build(nil, e1, e2), build([]graph.Node{nA, nB, nC})))
	r2 := mustBuild(t, NewRule("r2", build(nil, e2, e1), build([]graph.Node{nC, nB, nA})))
	if r1.Anchor().Key() != r2.Anchor().Key() {
		t.Error("anchor keys differ for the same element set")
	}
	r3 := eraseEdge(t)
	if r1.Anchor().Key() == r3.Anchor().Key() {
		t.Error("anchor keys collide for different element sets")
	}
}

func TestRule_UnresolvedVariable(t *testing.T) {
	// $x is not connected to anything in the LHS
	lhs := build([]graph.Node{nA, vX})
	_, err := NewRule("loose", lhs, lhs.Clone()).Build()
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if !strings.Contains(fe.Error(), "unresolved variable") {
		t.Errorf("unexpected message: %v", fe)
	}

	lhs = build(nil, graph.NewEdge(nA, "val", vX))
	if _, err := NewRule("bound", lhs, lhs.Clone()).Build(); err != nil {
		t.Errorf("variable reachable by an edge should resolve: %v", err)
	}
}

type intOracle struct{}

func (intOracle) Accepts(valueType string) bool { return valueType == "int" }

func (intOracle) Value(ctx context.Context, r *Rule, p Param) (graph.Node, error) {
	return graph.ValueNode("int", "7"), nil
}

func TestRule_AskParamNeedsOracle(t *testing.T) {
	lhs := build([]graph.Node{nA, vX})
	rhs := build(nil, graph.NewEdge(nA, "val", vX))

	_, err := NewRule("ask", lhs, rhs).AddParam(ParamAsk, vX).Build()
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError without oracle, got %v", err)
	}

	r, err := NewRule("ask", lhs, rhs).
		AddParam(ParamAsk, vX).
		SetProperties(Properties{Oracle: intOracle{}}).
		Build()
	if err != nil {
		t.Fatalf("Build with oracle failed: %v", err)
	}
	if !r.Anchor().ContainsNode(vX) {
		t.Error("ask parameter should be anchored")
	}

	strVar := graph.Node{Type: "string", Var: "s"}
	_, err = NewRule("askString", build([]graph.Node{nA, strVar}), build([]graph.Node{nA, strVar})).
		AddParam(ParamAsk, strVar).
		SetProperties(Properties{Oracle: intOracle{}}).
		Build()
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError for unsupported type, got %v", err)
	}
}

func TestRule_BuilderPanics(t *testing.T) {
	b := NewRule("r", build([]graph.Node{nA}), build([]graph.Node{nA}))
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	assertPanics(t, "SetPriority after Build", func() { b.SetPriority(1) })
	assertPanics(t, "second Build", func() { _, _ = b.Build() })

	nac := NewCondition("nac", OpNot, build([]graph.Node{nA, nB}))
	b2 := NewRule("r2", build([]graph.Node{nA}), build([]graph.Node{nA})).AddCondition(nac)
	b3 := NewRule("r3", build([]graph.Node{nA}), build([]graph.Node{nA}))
	assertPanics(t, "re-attached condition", func() { b3.AddCondition(nac) })
	_ = b2

	assertPanics(t, "sub-condition of TRUE", func() {
		NewCondition("t", OpTrue, nil).AddSub(NewCondition("x", OpNot, nil))
	})
	assertPanics(t, "NOT sub-rule", func() {
		NewRule("p", graph.New(""), graph.New("")).AddSubRule(OpNot, NewRule("s", graph.New(""), graph.New("")))
	})
}

func assertPanics(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	f()
}

func TestRule_SubRules(t *testing.T) {
	// for every B connected to A, erase the connection and mark A
	lhs := build([]graph.Node{nA})
	rhs := build([]graph.Node{nA})
	e := graph.NewEdge(nA, "to", nB)
	sub := NewRule("each", build(nil, e), build([]graph.Node{nA, nB}))
	r := mustBuild(t, NewRule("all", lhs, rhs).AddSubRule(OpForall, sub))

	if len(r.SubRules()) != 1 {
		t.Fatalf("expected 1 sub-rule, got %d", len(r.SubRules()))
	}
	s := r.SubRules()[0]
	if s.Parent() != r || r.Parent() != r {
		t.Error("parent links are wrong")
	}
	if len(s.EraserNodes()) != 0 {
		t.Errorf("parent LHS node counted as sub-rule eraser: %v", s.EraserNodes())
	}
	if !r.IsModifying() {
		t.Error("rule with modifying sub-rule should be modifying")
	}
	// A lies in the sub-rule anchor and in the parent LHS
	if !r.Anchor().ContainsNode(nA) {
		t.Error("sub-rule anchor not lifted into parent anchor")
	}
	if r.Anchor().ContainsNode(nB) {
		t.Error("sub-rule element outside the parent LHS lifted into the anchor")
	}
	subs := r.Condition().Subs()
	if len(subs) != 1 || subs[0].Op() != OpForall || subs[0].Rule() != s {
		t.Errorf("sub-rule condition missing from condition tree: %v", subs)
	}
	if diff := cmp.Diff([]graph.Node{nA}, subs[0].SeedNodes()); diff != "" {
		t.Errorf("seed mismatch (-want +got):\n%s", diff)
	}
}

func TestRule_IsValidPatternMap(t *testing.T) {
	lhs := build([]graph.Node{nB})
	r := mustBuild(t, NewRule("dropB", lhs, graph.New("")).
		SetProperties(Properties{CheckDangling: true}))

	host := build(nil, graph.NewEdge(nA, "next", nB))
	nodes := map[graph.Node]graph.Node{nB: nB}
	if r.IsValidPatternMap(host, nodes, nil) {
		t.Error("dangling edge should invalidate the match")
	}
	host = build([]graph.Node{nA, nB})
	if !r.IsValidPatternMap(host, nodes, nil) {
		t.Error("match without dangling edges rejected")
	}
}

func TestDependencies(t *testing.T) {
	addNext := mustBuild(t, NewRule("addNext",
		build([]graph.Node{nA, nB}),
		build(nil, graph.NewEdge(nA, "next", nB))))
	useNext := mustBuild(t, NewRule("useNext",
		build(nil, graph.NewEdge(nA, "next", nB)),
		build(nil, graph.NewEdge(nA, "next", nB))))
	dropNext := eraseEdge(t)
	guarded := mustBuild(t, NewRule("guarded",
		build([]graph.Node{nA}), build([]graph.Node{nA})).
		AddCondition(NewCondition("noNext", OpNot, build(nil, graph.NewEdge(nA, "next", nB)))))

	d := NewDependencies([]*Rule{addNext, useNext, dropNext, guarded})

	tests := []struct {
		name     string
		a, b     *Rule
		enables  bool
		disables bool
	}{
		{"create enables positive use", addNext, useNext, true, false},
		{"create disables negative use", addNext, guarded, false, true},
		{"erase disables positive use", dropNext, useNext, false, true},
		{"erase enables negative use", dropNext, guarded, true, false},
		{"read-only affects nothing", useNext, addNext, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Enables(tt.a, tt.b); got != tt.enables {
				t.Errorf("Enables = %v, want %v", got, tt.enables)
			}
			if got := d.Disables(tt.a, tt.b); got != tt.disables {
				t.Errorf("Disables = %v, want %v", got, tt.disables)
			}
		})
	}
	if diff := cmp.Diff([]string{"eraseEdge", "useNext"}, d.Enabled(addNext)); diff != "" {
		t.Errorf("Enabled mismatch (-want +got):\n%s", diff)
	}
}

func TestDependencies_UntypedNodes(t *testing.T) {
	untyped := graph.Node{Number: 3}
	addB := mustBuild(t, NewRule("addB",
		build([]graph.Node{nA}),
		build(nil, graph.NewEdge(nA, "b", nB))))
	dropC := mustBuild(t, NewRule("dropC",
		build([]graph.Node{nC}), build(nil)))
	mark := mustBuild(t, NewRule("mark",
		build([]graph.Node{untyped}),
		build(nil, graph.NewEdge(untyped, "m", untyped))).
		AddCondition(NewCondition("unmarked", OpNot, build(nil, graph.NewEdge(untyped, "m", untyped)))))
	createAny := mustBuild(t, NewRule("createAny",
		build([]graph.Node{nA}),
		build(nil, graph.NewEdge(nA, "r", untyped))))
	useC := mustBuild(t, NewRule("useC",
		build([]graph.Node{nC}), build([]graph.Node{nC})))

	d := NewDependencies([]*Rule{addB, dropC, mark, createAny, useC})
	if !d.Enables(addB, mark) {
		t.Error("creating a B node should enable a rule matching any node")
	}
	if !d.Disables(dropC, mark) {
		t.Error("erasing a C node should disable a rule matching any node")
	}
	if !d.Enables(createAny, useC) {
		t.Error("creating an untyped node should enable a rule matching C")
	}
	if d.Enables(mark, useC) || d.Disables(mark, useC) {
		t.Error("adding an m loop should not affect a rule on C nodes")
	}
}

func TestGrammar(t *testing.T) {
	r := eraseEdge(t)
	_, err := NewGrammar("g", Properties{}, nil, r, r)
	if err == nil {
		t.Fatal("expected error for duplicate rule names")
	}

	forbidden := mustBuild(t, NewRule("bad", build([]graph.Node{nC}), build([]graph.Node{nC})).SetRole(RoleForbidden))
	g, err := NewGrammar("g", Properties{}, nil, r, forbidden)
	if err != nil {
		t.Fatalf("NewGrammar failed: %v", err)
	}
	if diff := cmp.Diff([]*Rule{forbidden}, g.PropertyRules(), cmp.Comparer(func(a, b *Rule) bool { return a == b })); diff != "" {
		t.Errorf("property rules mismatch (-want +got):\n%s", diff)
	}
	if got, ok := g.Rule("eraseEdge"); !ok || got != r {
		t.Error("rule lookup failed")
	}
}

func TestTypeGraph_Check(t *testing.T) {
	tg := NewTypeGraph().AddEdgeType("A", "next", "B")
	ok := build(nil, graph.NewEdge(nA, "next", nB))
	if errs := tg.Check(ok); len(errs) != 0 {
		t.Errorf("unexpected type errors: %v", errs)
	}
	bad := build(nil, graph.NewEdge(nA, "prev", nC))
	errs := tg.Check(bad)
	if len(errs) != 2 {
		t.Fatalf("expected 2 type errors, got %v", errs)
	}
	var te *TypeError
	if !errors.As(errs[0], &te) || te.Node == nil {
		t.Errorf("expected node type error first, got %v", errs[0])
	}
}
