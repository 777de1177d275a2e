package grammar

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"groove/explore"
	"groove/lts"
	"groove/match/search"
	"groove/rule"
)

const adders = `
name: adders
types:
  nodes: [A, B, C]
  edges:
    - {source: A, label: b, target: B}
    - {source: A, label: c, target: C}
start:
  nodes: [{id: a, type: A}]
rules:
  - name: addB
    lhs:
      nodes: [{id: a, type: A}]
    rhs:
      nodes: [{id: a, type: A}, {id: x, type: B}]
      edges: [{source: a, label: b, target: x}]
    nacs:
      - nodes: [{id: a, type: A}, {id: y, type: B}]
        edges: [{source: a, label: b, target: y}]
  - name: addC
    lhs:
      nodes: [{id: a, type: A}]
    rhs:
      nodes: [{id: a, type: A}, {id: x, type: C}]
      edges: [{source: a, label: c, target: x}]
    nacs:
      - nodes: [{id: a, type: A}, {id: y, type: C}]
        edges: [{source: a, label: c, target: y}]
`

func explored(t *testing.T, g *Grammar) *lts.GTS {
	t.Helper()
	gts, err := lts.New(context.Background(), lts.NewSession(), g.Rules, search.New(), g.Start, g.Frame)
	if err != nil {
		t.Fatalf("lts.New failed: %v", err)
	}
	if _, err := explore.New(gts, explore.Options{}).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return gts
}

func ruleNames(g *rule.Grammar) []string {
	var names []string
	for _, r := range g.Rules() {
		names = append(names, r.Name())
	}
	return names
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adders.yaml")
	if err := os.WriteFile(path, []byte(adders), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := Load(path, rule.Properties{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff([]string{"addB", "addC"}, ruleNames(g.Rules)); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}
	if g.Start.NodeCount() != 1 {
		t.Errorf("start graph should have one node, got %v", g.Start)
	}
	gts := explored(t, g)
	if gts.StateCount() != 4 || len(gts.FinalStates()) != 1 {
		t.Errorf("expected 4 states and 1 final state, got %d and %d", gts.StateCount(), len(gts.FinalStates()))
	}
}

func TestParse_RulePatterns(t *testing.T) {
	g, err := Parse([]byte(adders), rule.Properties{}, "*B")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if diff := cmp.Diff([]string{"addB"}, ruleNames(g.Rules)); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}
	if gts := explored(t, g); gts.StateCount() != 2 {
		t.Errorf("expected 2 states, got %d", gts.StateCount())
	}
}

func TestParse_Recipe(t *testing.T) {
	src := adders + `
control:
  locations:
    - name: start
      calls: [{rule: addB, target: mid}]
    - name: mid
      transience: 1
      recipe: both
      calls: [{rule: addC, target: end}]
    - name: end
      final: true
`
	g, err := Parse([]byte(src), rule.Properties{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	gts := explored(t, g)
	var recipes []string
	for _, tr := range gts.RealTransitions() {
		recipes = append(recipes, tr.Label())
	}
	if diff := cmp.Diff([]string{"both"}, recipes); diff != "" {
		t.Errorf("real transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]struct {
		src     string
		pattern string
		want    string
	}{
		"yaml":    {src: "rules: [", want: "parsing grammar"},
		"pattern": {src: adders, pattern: "add[", want: "invalid rule pattern"},
		"role":    {src: "rules:\n  - name: r\n    role: wizard\n", want: "unknown rule role"},
		"edge": {
			src:  "start:\n  nodes: [{id: a, type: A}]\n  edges: [{source: a, label: e, target: b}]\n",
			want: "unknown target",
		},
		"call": {
			src:  adders + "control:\n  locations:\n    - name: start\n      calls: [{rule: addD, target: start}]\n",
			want: "unknown or disabled rule",
		},
		"redeclared": {
			src:  "start:\n  nodes: [{id: a, type: A}, {id: a, type: B}]\n",
			want: "redeclared",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var patterns []string
			if tt.pattern != "" {
				patterns = append(patterns, tt.pattern)
			}
			_, err := Parse([]byte(tt.src), rule.Properties{}, patterns...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected an error containing %q, got %v", tt.want, err)
			}
		})
	}
}
