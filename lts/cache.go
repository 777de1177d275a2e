package lts

import (
	"fmt"

	"go.uber.org/zap"

	"groove/graph"
)

// Graph returns the state's host graph. Open states keep it in memory.
// Other states rebuild it by replaying the events from the nearest
// ancestor whose graph is available. A closed state whose replay chain is
// longer than the freeze bound keeps a frozen copy afterwards. The result
// is fixed and must not be modified; clone it first.
func (s *GraphState) Graph() *graph.Graph {
	if s.cache != nil {
		return s.cache
	}
	g := s.gts
	host, depth := s.reconstruct()
	g.session.Stats.Reconstructions++

	switch {
	case !s.IsClosed():
		s.cache = host
	case depth > g.session.Config.FreezeBound && !s.IsFrozen():
		s.freeze(host)
	}
	if s.IsDone() && s.IsError() {
		g.recheck(s, host)
	}
	host.SetName(s.String())
	host.SetFixed()
	return host
}

// reconstruct replays the delta chain of s onto a copy of the nearest
// stored graph and returns the result together with the number of events
// replayed.
func (s *GraphState) reconstruct() (*graph.Graph, int) {
	var chain []*GraphState
	cur := s
	var base *graph.Graph
	for {
		if b := cur.stored(); b != nil {
			base = b
			break
		}
		chain = append(chain, cur)
		if cur.parent < 0 {
			panic(fmt.Sprintf("state %s has no stored graph and no parent", cur))
		}
		cur = cur.gts.states[cur.parent]
	}
	for i := len(chain) - 1; i >= 0; i-- {
		st := chain[i]
		if _, err := st.event.Apply(base, st.added); err != nil {
			panic(fmt.Sprintf("replaying %s onto %s: %v", st.event, st, err))
		}
	}
	return base, len(chain)
}

// stored returns a mutable copy of the graph kept by s, or nil if s keeps
// none.
func (s *GraphState) stored() *graph.Graph {
	switch {
	case s.cache != nil:
		return s.cache.Clone()
	case s.frozen != nil:
		return s.frozen.Thaw(s.String())
	case s.compressed != nil:
		f, err := graph.Decompress(s.compressed)
		if err != nil {
			panic(fmt.Sprintf("state %s: %v", s, err))
		}
		return f.Thaw(s.String())
	}
	return nil
}

func (s *GraphState) freeze(host *graph.Graph) {
	g := s.gts
	f := graph.Freeze(host)
	if g.session.Config.CompressFrozen {
		data, err := f.Compress()
		if err == nil {
			s.compressed = data
			g.session.Stats.FrozenGraphs++
			return
		}
		g.session.Logger.Warn("compressing frozen graph", zap.Stringer("state", s), zap.Error(err))
	}
	s.frozen = &f
	g.session.Stats.FrozenGraphs++
}

// release drops the in-memory graph of a state being closed.
func (s *GraphState) release() {
	s.cache = nil
}
