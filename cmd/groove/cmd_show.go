package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"groove/internal/store"
)

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a run stored by explore --db",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var showGraphs bool

func init() {
	showCmd.Flags().String("db", "", "SQLite file holding the run")
	showCmd.Flags().BoolVar(&showGraphs, "graphs", false, "also print state graphs")
}

func runShow(cmd *cobra.Command, args []string) error {
	if err := applyFlags(cmd); err != nil {
		return err
	}
	if cfg.DBPath == "" {
		return fmt.Errorf("no database given (--db or db_path)")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}
	states, err := db.States(ctx, id)
	if err != nil {
		return err
	}
	transitions, err := db.Transitions(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s\n", run.ID)
	fmt.Fprintf(out, "  grammar:  %s\n", run.Grammar)
	fmt.Fprintf(out, "  strategy: %s (collapse %s)\n", run.Strategy, run.Collapse)
	fmt.Fprintf(out, "  states:   %d (complete=%v)\n", run.States, run.Complete)
	for _, s := range states {
		fmt.Fprintf(out, "s%d\t%s\t%s\tabsence=%d\tgraph=%s\n", s.Number, s.Frame, s.Flags, s.Absence, s.Graph.Short())
		if showGraphs {
			payload, err := db.GraphPayload(ctx, s.Graph)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\t%s\n", payload)
		}
	}
	for _, t := range transitions {
		sym := ""
		if t.Symmetry {
			sym = " (symmetry)"
		}
		fmt.Fprintf(out, "s%d --%s/%s--> s%d%s\n", t.Source, t.Kind, t.Label, t.Target, sym)
	}
	return nil
}
