package explore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"groove/control"
	"groove/graph"
	"groove/lts"
	"groove/match/search"
	"groove/rule"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	nA = graph.Node{Number: 0, Type: "A"}
	nX = graph.Node{Number: 1}
)

func graphOf(nodes []graph.Node, edges ...graph.Edge) *graph.Graph {
	g := graph.New("")
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		g.AddEdge(e)
	}
	return g
}

// adder creates A -label-> typ unless A already has such an edge.
func adder(t *testing.T, name, label, typ string) *rule.Rule {
	t.Helper()
	x := nX
	x.Type = typ
	edge := graph.NewEdge(nA, label, x)
	nac := rule.NewCondition("no-"+name, rule.OpNot, graphOf(nil, edge))
	r, err := rule.NewRule(name, graphOf([]graph.Node{nA}), graphOf(nil, edge)).AddCondition(nac).Build()
	if err != nil {
		t.Fatalf("Build(%s) failed: %v", name, err)
	}
	return r
}

type grammarKind int

const (
	// both rules as long as possible
	alap grammarKind = iota
	// one of the rules, once
	choice
)

func newGTS(t *testing.T, kind grammarKind) *lts.GTS {
	t.Helper()
	b := adder(t, "addB", "b", "B")
	c := adder(t, "addC", "c", "C")
	tmpl := control.NewTemplate("test")
	end := tmpl.AddLocation("end").SetFinal()
	switch kind {
	case alap:
		tmpl.Start().AddCall(b, tmpl.Start())
		tmpl.Start().AddCall(c, tmpl.Start())
		tmpl.Start().SetVerdicts(nil, end)
	case choice:
		tmpl.Start().AddCall(b, end)
		tmpl.Start().AddCall(c, end)
	}
	frame, err := tmpl.Build()
	if err != nil {
		t.Fatalf("template Build failed: %v", err)
	}
	grammar, err := rule.NewGrammar("test", rule.Properties{}, nil, b, c)
	if err != nil {
		t.Fatalf("NewGrammar failed: %v", err)
	}
	g, err := lts.New(context.Background(), lts.NewSession(), grammar, search.New(), graphOf([]graph.Node{nA}), frame)
	if err != nil {
		t.Fatalf("lts.New failed: %v", err)
	}
	return g
}

func TestStrategies(t *testing.T) {
	tests := []struct {
		strategy    Strategy
		states      int
		transitions int
	}{
		{BFS, 4, 4},
		{DFS, 4, 4},
		{Linear, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			g := newGTS(t, alap)
			res, err := New(g, Options{Strategy: tt.strategy}).Run(context.Background())
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if !res.Complete {
				t.Error("exploration should be complete")
			}
			if g.StateCount() != tt.states {
				t.Errorf("expected %d states, got %d", tt.states, g.StateCount())
			}
			if n := len(g.Transitions()); n != tt.transitions {
				t.Errorf("expected %d transitions, got %d", tt.transitions, n)
			}
			if res.Explored != tt.states {
				t.Errorf("expected %d explored states, got %d", tt.states, res.Explored)
			}
			if len(res.Final) != 1 {
				t.Fatalf("expected 1 final state, got %d", len(res.Final))
			}
			if n := res.Final[0].Graph().NodeCount(); n != 3 {
				t.Errorf("final graph should have A, B and C, got %d nodes", n)
			}
			for _, s := range g.States() {
				if !s.IsClosed() {
					t.Errorf("state %s left open", s)
				}
			}
		})
	}
}

func TestMaxStatesAndResume(t *testing.T) {
	g := newGTS(t, alap)
	res, err := New(g, Options{MaxStates: 2}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Complete || res.Explored != 1 || g.StateCount() != 3 {
		t.Fatalf("bounded run: complete=%v explored=%d states=%d, want false/1/3", res.Complete, res.Explored, g.StateCount())
	}

	res, err = New(g, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("resumed Run failed: %v", err)
	}
	if !res.Complete || res.Explored != 3 || g.StateCount() != 4 {
		t.Errorf("resumed run: complete=%v explored=%d states=%d, want true/3/4", res.Complete, res.Explored, g.StateCount())
	}
}

func TestStopAfter(t *testing.T) {
	g := newGTS(t, choice)
	res, err := New(g, Options{Strategy: DFS, StopAfter: 1}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Complete {
		t.Error("run should stop before exploring every state")
	}
	got := make([]int, len(res.Final))
	for i, s := range res.Final {
		got[i] = s.Number()
	}
	if diff := cmp.Diff([]int{1}, got); diff != "" {
		t.Errorf("final states mismatch (-want +got):\n%s", diff)
	}
}

func TestFilter(t *testing.T) {
	g := newGTS(t, alap)
	noC := func(_ context.Context, _ *lts.GraphState, m lts.MatchResult) (bool, error) {
		return m.Step.Rule().Name() != "addC", nil
	}
	res, err := New(g, Options{Filter: noC}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if g.StateCount() != 2 || len(res.Final) != 1 {
		t.Errorf("expected 2 states and 1 final state, got %d and %d", g.StateCount(), len(res.Final))
	}
}

func TestInterrupted(t *testing.T) {
	g := newGTS(t, alap)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(g, Options{}).Run(ctx)
	if !errors.Is(err, lts.ErrInterrupted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected an interruption, got %v", err)
	}
	if res.Explored != 0 || res.Complete {
		t.Errorf("unexpected result %+v", res)
	}
	if g.Start().IsClosed() {
		t.Error("start state should stay open")
	}
}

func TestRunAll(t *testing.T) {
	var xs []*Exploration
	for _, st := range []Strategy{BFS, DFS, Linear, BFS} {
		xs = append(xs, New(newGTS(t, alap), Options{Strategy: st}))
	}
	results, err := RunAll(context.Background(), 2, xs...)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	var got []int
	for i, res := range results {
		if res == nil {
			t.Fatalf("result %d missing", i)
		}
		got = append(got, xs[i].GTS().StateCount())
	}
	if diff := cmp.Diff([]int{4, 4, 3, 4}, got); diff != "" {
		t.Errorf("state counts mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	xs := []*Exploration{New(newGTS(t, alap), Options{}), New(newGTS(t, choice), Options{})}
	results, err := RunAll(ctx, 0, xs...)
	if !errors.Is(err, lts.ErrInterrupted) {
		t.Fatalf("expected an interruption, got %v", err)
	}
	for i, res := range results {
		if res != nil {
			t.Errorf("result %d should be missing", i)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for _, st := range []Strategy{BFS, DFS, Linear} {
		got, err := ParseStrategy(st.String())
		if err != nil || got != st {
			t.Errorf("ParseStrategy(%q) = %v, %v", st.String(), got, err)
		}
	}
	if _, err := ParseStrategy("random"); err == nil {
		t.Error("expected an error for an unknown strategy")
	}
}
