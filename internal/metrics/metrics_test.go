package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"groove/explore"
	"groove/internal/grammar"
	"groove/lts"
	"groove/match/search"
	"groove/rule"
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

func run(t *testing.T, m *Metrics) *explore.Result {
	t.Helper()
	g, err := grammar.Parse([]byte(grower), rule.Properties{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	gts, err := lts.New(context.Background(), lts.NewSession(), g.Rules, search.New(), g.Start, g.Frame)
	if err != nil {
		t.Fatalf("lts.New failed: %v", err)
	}
	gts.AddListener(m.Listener())
	res, err := explore.New(gts, explore.Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	m.ObserveRun(res)
	return res
}

func TestListenerAndRun(t *testing.T) {
	m := New()
	run(t, m)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"states", testutil.ToFloat64(m.states), 1},
		{"rule transitions", testutil.ToFloat64(m.transitions.WithLabelValues("rule")), 1},
		{"final", testutil.ToFloat64(m.statuses.WithLabelValues("final")), 1},
		{"done", testutil.ToFloat64(m.statuses.WithLabelValues("done")), 2},
		{"runs", testutil.ToFloat64(m.runs.WithLabelValues("bfs", "true")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	run(t, m)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"groove_states_total", "groove_runs_total", "groove_engine_events_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("exposition lacks %s", name)
		}
	}
}

func TestServe_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New().Serve(ctx, "127.0.0.1:0", zap.NewNop()) }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v", err)
	}
}
