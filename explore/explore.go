// Package explore drives the exploration of a GTS: it decides which open
// state is explored next and when to stop.
package explore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"groove/lts"
)

// Strategy orders the exploration of open states.
type Strategy int

const (
	// BFS explores states in the order they were found.
	BFS Strategy = iota
	// DFS explores the most recently found state first.
	DFS
	// Linear applies one match per attempt and follows it depth first.
	Linear
)

var strategyNames = map[Strategy]string{
	BFS:    "bfs",
	DFS:    "dfs",
	Linear: "linear",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy parses the String form of a strategy.
func ParseStrategy(s string) (Strategy, error) {
	for st, name := range strategyNames {
		if strings.EqualFold(s, name) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

// Options bound an exploration.
type Options struct {
	Strategy Strategy
	// MaxStates stops the exploration once the GTS has this many states;
	// 0 means no bound.
	MaxStates int
	// StopAfter stops the exploration once this many final states were
	// found; 0 means no bound.
	StopAfter int
	// Filter may veto matches; nil accepts all.
	Filter lts.MatchFilter
}

// Result summarizes a run.
type Result struct {
	Strategy Strategy
	// Explored counts the states closed by this run.
	Explored int
	// Complete is set if no open state was left.
	Complete bool
	// Final lists the real final states of the GTS.
	Final   []*lts.GraphState
	Stats   lts.Stats
	Elapsed time.Duration
}

// Exploration runs a strategy over one GTS.
type Exploration struct {
	gts      *lts.GTS
	opts     Options
	explorer *lts.Explorer
	acceptor *acceptor
}

// New prepares an exploration of g.
func New(g *lts.GTS, opts Options) *Exploration {
	e := lts.NewExplorer(g, opts.Filter)
	if opts.Strategy == Linear {
		e.Limit = 1
	}
	a := &acceptor{seen: make(map[int]bool)}
	g.AddListener(a)
	return &Exploration{gts: g, opts: opts, explorer: e, acceptor: a}
}

// GTS returns the explored transition system.
func (x *Exploration) GTS() *lts.GTS { return x.gts }

// Run explores the open states of the GTS until none is left or a bound
// is hit. A run that stopped early can be resumed by another Run. On
// error the result covers the work done so far.
func (x *Exploration) Run(ctx context.Context) (*Result, error) {
	g := x.gts
	log := g.Session().Logger
	begin := time.Now()
	res := &Result{Strategy: x.opts.Strategy}
	x.acceptor.found = 0

	var pool []*lts.GraphState
	for _, s := range g.States() {
		if !s.IsClosed() {
			pool = append(pool, s)
		}
	}
	if x.opts.Strategy != BFS {
		slices.Reverse(pool)
	}

	finish := func() *Result {
		res.Complete = len(pool) == 0
		res.Final = g.FinalStates()
		res.Stats = g.Session().Stats
		res.Elapsed = time.Since(begin)
		log.Info("exploration finished",
			zap.Stringer("strategy", x.opts.Strategy),
			zap.Int("explored", res.Explored),
			zap.Int("states", g.StateCount()),
			zap.Int("final", len(res.Final)),
			zap.Bool("complete", res.Complete),
			zap.Duration("elapsed", res.Elapsed))
		return res
	}

	for len(pool) > 0 {
		if err := ctx.Err(); err != nil {
			return finish(), fmt.Errorf("exploring: %w: %w", lts.ErrInterrupted, err)
		}
		if x.bounded() {
			break
		}
		var s *lts.GraphState
		if x.opts.Strategy == BFS {
			s, pool = pool[0], pool[1:]
		} else {
			s, pool = pool[len(pool)-1], pool[:len(pool)-1]
		}
		if s.IsClosed() {
			continue
		}
		added, err := x.explorer.Explore(ctx, s)
		if err != nil {
			pool = append(pool, s)
			return finish(), fmt.Errorf("exploring %s: %w", s, err)
		}
		res.Explored++
		var fresh []*lts.GraphState
		for _, t := range added {
			if lts.IsNew(t) {
				fresh = append(fresh, t.Target())
			}
		}
		if x.opts.Strategy != BFS {
			slices.Reverse(fresh)
		}
		pool = append(pool, fresh...)
	}
	return finish(), nil
}

func (x *Exploration) bounded() bool {
	if x.opts.MaxStates > 0 && x.gts.StateCount() >= x.opts.MaxStates {
		return true
	}
	return x.opts.StopAfter > 0 && x.acceptor.found >= x.opts.StopAfter
}

// acceptor counts the final states settled during a run.
type acceptor struct {
	seen  map[int]bool
	found int
}

func (a *acceptor) AddedState(*lts.GTS, *lts.GraphState)      {}
func (a *acceptor) AddedTransition(*lts.GTS, *lts.Transition) {}

func (a *acceptor) StatusChanged(_ *lts.GTS, s *lts.GraphState, _ lts.Flag) {
	if s.IsKnown() && s.IsFinal() && s.IsReal() && !a.seen[s.Number()] {
		a.seen[s.Number()] = true
		a.found++
	}
}
