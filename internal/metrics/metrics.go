// Package metrics exposes exploration progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"groove/explore"
	"groove/lts"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry    *prometheus.Registry
	states      prometheus.Counter
	transitions *prometheus.CounterVec
	statuses    *prometheus.CounterVec
	engine      *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		states: f.NewCounter(prometheus.CounterOpts{
			Name: "groove_states_total",
			Help: "States added to explored transition systems",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "groove_transitions_total",
			Help: "Transitions added, by kind (rule, recipe)",
		}, []string{"kind"}),
		statuses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "groove_state_status_total",
			Help: "States reaching a status (final, absent, error, done)",
		}, []string{"status"}),
		engine: f.NewCounterVec(prometheus.CounterOpts{
			Name: "groove_engine_events_total",
			Help: "Engine events of finished runs, by event",
		}, []string{"event"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "groove_runs_total",
			Help: "Finished exploration runs, by strategy and completeness",
		}, []string{"strategy", "complete"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "groove_run_duration_seconds",
			Help:    "Duration of exploration runs",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Listener returns a GTS listener counting states, transitions and
// status changes. One listener may serve several GTSs.
func (m *Metrics) Listener() lts.Listener { return listener{m} }

type listener struct{ m *Metrics }

func (l listener) AddedState(*lts.GTS, *lts.GraphState) { l.m.states.Inc() }

func (l listener) AddedTransition(_ *lts.GTS, t *lts.Transition) {
	l.m.transitions.WithLabelValues(t.Kind().String()).Inc()
}

var tracked = []struct {
	flag lts.Flag
	name string
}{
	{lts.FlagFinal, "final"},
	{lts.FlagAbsent, "absent"},
	{lts.FlagError, "error"},
	{lts.FlagDone, "done"},
}

func (l listener) StatusChanged(_ *lts.GTS, s *lts.GraphState, old lts.Flag) {
	for _, t := range tracked {
		if s.Has(t.flag) && old&t.flag == 0 {
			l.m.statuses.WithLabelValues(t.name).Inc()
		}
	}
}

// ObserveRun records a finished run and the engine statistics it reports.
// Statistics are cumulative per session, so each session should be
// observed once, after its last run.
func (m *Metrics) ObserveRun(res *explore.Result) {
	complete := "false"
	if res.Complete {
		complete = "true"
	}
	m.runs.WithLabelValues(res.Strategy.String(), complete).Inc()
	m.duration.Observe(res.Elapsed.Seconds())
	st := res.Stats
	for event, n := range map[string]int{
		"confluent_diamond": st.ConfluentDiamonds,
		"reconstruction":    st.Reconstructions,
		"frozen_graph":      st.FrozenGraphs,
		"iso_check":         st.IsoChecks,
		"iso_hit":           st.IsoHits,
		"reused_match":      st.ReusedMatches,
		"fresh_match":       st.FreshMatches,
		"filter_error":      st.FilterErrors,
		"violation":         st.Violations,
		"recipe_transition": st.RecipeTransitions,
	} {
		m.engine.WithLabelValues(event).Add(float64(n))
	}
}

// Serve serves the metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		<-errc
		return nil
	}
}
