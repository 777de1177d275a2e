package control

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"groove/graph"
	"groove/rule"
)

func testRule(t *testing.T, name string, params ...rule.ParamKind) *rule.Rule {
	t.Helper()
	n := graph.Node{Number: 0, Type: "A"}
	lhs := graph.New("")
	lhs.AddNode(n)
	b := rule.NewRule(name, lhs, lhs.Clone())
	for _, k := range params {
		b.AddParam(k, n)
	}
	r, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return r
}

func TestTemplate_AsLongAsPossible(t *testing.T) {
	r := testRule(t, "r")
	tmpl := NewTemplate("alap")
	done := tmpl.AddLocation("done").SetFinal()
	tmpl.Start().AddCall(r, tmpl.Start())
	tmpl.Start().SetVerdicts(nil, done)

	start, err := tmpl.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !start.IsPrime() || start.IsDead() {
		t.Fatal("start frame should be a live prime frame")
	}
	a := start.Attempt()
	if len(a.Steps()) != 1 {
		t.Fatalf("expected 1 step, got %d", len(a.Steps()))
	}
	step := a.Steps()[0]
	if step.Target() != start {
		t.Error("loop step should return to the start frame")
	}
	if step.IsModifying() {
		t.Error("loop step without assignments should not be modifying")
	}
	if a.OnSuccess() != nil {
		t.Error("success verdict should be dead")
	}
	fail := a.OnFailure()
	if fail == nil || !fail.IsFinal() || fail.Prime() != start {
		t.Errorf("failure verdict %v should be final with prime start", fail)
	}
	if got := fail.Name(); got != "done@start" {
		t.Errorf("unexpected frame name %q", got)
	}
	if len(tmpl.Frames()) != 2 {
		t.Errorf("expected 2 frames, got %d", len(tmpl.Frames()))
	}
}

func TestTemplate_Recipe(t *testing.T) {
	r := testRule(t, "r")
	rec := NewRecipe("triple")
	tmpl := NewTemplate("recipe")
	l1 := tmpl.AddLocation("l1").SetTransience(1, rec)
	l2 := tmpl.AddLocation("l2").SetTransience(1, rec)
	end := tmpl.AddLocation("end").SetFinal()
	tmpl.Start().AddCall(r, l1)
	l1.AddCall(r, l2)
	l2.AddCall(r, end)

	start, err := tmpl.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	entry := start.Attempt().Steps()[0]
	if !entry.IsRecipeEntry() || !entry.IsPartial() || entry.Recipe() != rec {
		t.Error("first step should enter the recipe")
	}
	f1 := entry.Target()
	if !f1.IsTransient() || f1.Transience() != 1 || f1.Recipe() != rec {
		t.Error("l1 frame should be transient in the recipe")
	}
	exit := f1.Attempt().Steps()[0].Target().Attempt().Steps()[0]
	if !exit.IsPartial() || exit.IsRecipeEntry() {
		t.Error("last step belongs to the recipe without entering it")
	}
	if exit.Target().IsTransient() || !exit.Target().IsFinal() {
		t.Error("recipe exit should be a final surface frame")
	}
}

func TestTemplate_Invalid(t *testing.T) {
	in := testRule(t, "in", rule.ParamOut)
	tmpl := NewTemplate("bad")
	tmpl.AddLocation("t").SetTransience(1, nil)
	tmpl.Start().AddCall(in, tmpl.Start(), Arg{Param: 0, Source: Var(0)})
	_, err := tmpl.Build()
	if !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate, got %v", err)
	}

	ok := NewTemplate("ok")
	if _, err := ok.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic when modifying a built template")
		}
	}()
	ok.Start().SetFinal()
}

type outputs map[int]graph.Node

func (o outputs) ParamImage(i int) (graph.Node, bool) {
	n, ok := o[i]
	return n, ok
}

func TestAssignments(t *testing.T) {
	one := graph.ValueNode("int", "1")
	a0 := graph.Node{Number: 0, Type: "A"}
	var values Values

	values, err := Assignment{Kind: AssignPush, Sources: []Source{Const(one), Param(0)}}.Apply(values, outputs{0: a0})
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if diff := cmp.Diff(Values{{one, a0}}, values); diff != "" {
		t.Errorf("after push (-want +got):\n%s", diff)
	}

	values, err = Assignment{Kind: AssignModify, Sources: []Source{Var(1)}}.Apply(values, nil)
	if err != nil {
		t.Fatalf("modify failed: %v", err)
	}
	if diff := cmp.Diff(Values{{a0}}, values); diff != "" {
		t.Errorf("after modify (-want +got):\n%s", diff)
	}

	values = append(values, []graph.Node{one})
	values, err = Assignment{Kind: AssignPop, Sources: []Source{Var(0)}}.Apply(values, nil)
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	if diff := cmp.Diff(Values{{a0, one}}, values); diff != "" {
		t.Errorf("after pop (-want +got):\n%s", diff)
	}

	if _, err := (Assignment{Kind: AssignModify, Sources: []Source{Var(5)}}).Apply(values, nil); err == nil {
		t.Error("expected error for unbound variable")
	}
	if _, err := (Assignment{Kind: AssignModify, Sources: []Source{Param(0)}}).Apply(values, nil); err == nil {
		t.Error("expected error for parameter without outputs")
	}
}

func TestStep_ModifyingWithAssignment(t *testing.T) {
	r := testRule(t, "r", rule.ParamOut)
	tmpl := NewTemplate("assign")
	tmpl.Start().AddCall(r, tmpl.Start()).AddAssignment(Assignment{Kind: AssignModify, Sources: []Source{Param(0)}})
	start, err := tmpl.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	step := start.Attempt().Steps()[0]
	if !step.IsModifying() {
		t.Error("step with assignment should be modifying")
	}
	a0 := graph.Node{Number: 3, Type: "A"}
	values, err := step.Apply(nil, outputs{0: a0})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if diff := cmp.Diff(Values{{a0}}, values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}
