package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

const grower = `
name: grower
start:
  nodes: [{id: a, type: A}]
rules:
  - name: grow
    lhs:
      nodes: [{id: a, type: A}]
    rhs:
      nodes: [{id: a, type: A}, {id: b, type: B}]
      edges: [{source: a, label: b, target: b}]
    nacs:
      - nodes: [{id: a, type: A}, {id: b, type: B}]
        edges: [{source: a, label: b, target: b}]
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("groove %s failed: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "groove" {
		t.Errorf("expected Use 'groove', got %q", rootCmd.Use)
	}
	for _, c := range []string{"explore", "show", "version"} {
		if cmd, _, err := rootCmd.Find([]string{c}); err != nil || cmd.Name() != c {
			t.Errorf("command %s not registered", c)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	if out := execute(t, "version"); !strings.Contains(out, Version) {
		t.Errorf("version output %q lacks %s", out, Version)
	}
}

func TestExploreAndShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grower.yaml")
	if err := os.WriteFile(path, []byte(grower), 0o644); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(dir, "runs.db")

	out := execute(t, "explore", path, "--db", db, "--strategy", "dfs", "--log-level", "error")
	if !strings.Contains(out, "2 states, 1 transitions, 1 final, complete=true") {
		t.Errorf("unexpected explore output:\n%s", out)
	}
	m := regexp.MustCompile(`saved as run ([0-9a-f-]{36})`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no run id in output:\n%s", out)
	}

	out = execute(t, "show", m[1], "--db", db, "--log-level", "error")
	for _, want := range []string{"strategy: dfs", "s0 --rule/grow--> s1", "final"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output lacks %q:\n%s", want, out)
		}
	}
}

func TestExplore_BadStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grower.yaml")
	if err := os.WriteFile(path, []byte(grower), 0o644); err != nil {
		t.Fatal(err)
	}
	rootCmd.SetArgs([]string{"explore", path, "--strategy", "sideways", "--log-level", "error"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected an error for an unknown strategy")
	}
}
