package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"groove/explore"
	"groove/internal/grammar"
	"groove/internal/metrics"
	"groove/internal/store"
	"groove/lts"
	"groove/match/search"
)

var exploreCmd = &cobra.Command{
	Use:   "explore <grammar.yaml>...",
	Short: "Explore the state spaces of one or more grammars",
	Long: `Explore builds the transition system of each grammar file. Grammars are
explored in parallel, each in its own session. With --db the results are
exported to SQLite.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplore,
}

var exploreRules []string

func init() {
	f := exploreCmd.Flags()
	f.StringSliceVar(&exploreRules, "rules", nil, "enable only rules matching these glob patterns")
	f.String("strategy", "", "exploration strategy (bfs, dfs, linear)")
	f.String("collapse", "", "state collapse mode (none, equal, iso-weak, iso-strong)")
	f.Int("max-states", 0, "stop once this many states exist")
	f.Int("workers", 0, "grammars explored at the same time")
	f.String("db", "", "SQLite file to export results to")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address while exploring")
}

// applyFlags overrides the configuration with flags set on the command line.
func applyFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	for name, dst := range map[string]*string{
		"strategy":     &cfg.Strategy,
		"collapse":     &cfg.Collapse,
		"db":           &cfg.DBPath,
		"metrics-addr": &cfg.MetricsAddr,
	} {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	for name, dst := range map[string]*int{
		"max-states": &cfg.MaxStates,
		"workers":    &cfg.Workers,
	} {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	return cfg.Validate()
}

func runExplore(cmd *cobra.Command, args []string) error {
	if err := applyFlags(cmd); err != nil {
		return err
	}
	engine, err := cfg.Engine()
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		mctx, cancel := context.WithCancel(ctx)
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := m.Serve(mctx, cfg.MetricsAddr, logger); err != nil {
				logger.Warn("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			cancel()
			<-served
		}()
	}

	xs := make([]*explore.Exploration, len(args))
	for i, path := range args {
		g, err := grammar.Load(path, cfg.Properties(), exploreRules...)
		if err != nil {
			return err
		}
		session := lts.NewSession(lts.WithConfig(engine), lts.WithLogger(logger.With(zap.String("grammar", path))))
		gts, err := lts.New(ctx, session, g.Rules, &search.Matcher{Injective: cfg.Injective}, g.Start, g.Frame)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if m != nil {
			gts.AddListener(m.Listener())
		}
		xs[i] = explore.New(gts, opts)
	}

	results, runErr := explore.RunAll(ctx, cfg.Workers, xs...)
	out := cmd.OutOrStdout()
	for i, res := range results {
		if res == nil {
			continue
		}
		if m != nil {
			m.ObserveRun(res)
		}
		gts := xs[i].GTS()
		fmt.Fprintf(out, "%s: %d states, %d transitions, %d final, complete=%v (%s)\n",
			args[i], len(gts.RealStates()), len(gts.RealTransitions()), len(res.Final), res.Complete,
			res.Elapsed.Round(time.Millisecond))
	}
	if runErr != nil {
		return runErr
	}

	if cfg.DBPath == "" {
		return nil
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	for i, res := range results {
		run, err := db.SaveRun(ctx, xs[i].GTS(), res.Strategy.String(), res.Complete)
		if err != nil {
			return fmt.Errorf("saving %s: %w", args[i], err)
		}
		fmt.Fprintf(out, "%s: saved as run %s\n", args[i], run.ID)
	}
	return nil
}
