package lts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"groove/control"
)

// transience is the propagation record of a transient state or of a
// surface state from which a recipe was entered.
type transience struct {
	// partial transitions into the state, while it is not done
	links []*Transition
	// surface states reachable through recipe steps
	surface map[int]bool
	// open transient descendants, never the state itself
	open map[int]bool
}

func newTransience() *transience {
	return &transience{
		surface: make(map[int]bool),
		open:    make(map[int]bool),
	}
}

func (s *GraphState) transience() *transience {
	if s.trans == nil {
		s.trans = newTransience()
	}
	return s.trans
}

// update is what one state reports to its raw parents.
type update struct {
	via     *Transition
	surface []int
	open    []int
	absence int
}

// linkPartial records the recipe step t and pushes what is known about its
// target to its source.
func (g *GTS) linkPartial(t *Transition) {
	target := g.states[t.target]
	if !target.IsTransient() {
		if target.IsClosed() {
			g.propagate(reached(target, t))
			return
		}
		// the target may still be removed when it is closed
		tr := target.transience()
		tr.links = append(tr.links, t)
		g.propagate(update{via: t, open: []int{target.number}, absence: AbsenceMax})
		return
	}
	tr := target.transience()
	if !target.IsDone() {
		tr.links = append(tr.links, t)
	}
	u := update{via: t, absence: target.absence, surface: keys(tr.surface), open: keys(tr.open)}
	if !target.IsClosed() {
		u.open = append(u.open, target.number)
	}
	g.propagate(u)
}

// reached is what a recipe step into the closed surface state s reports
// to its source.
func reached(s *GraphState, via *Transition) update {
	if s.IsAbsent() {
		return update{via: via, absence: AbsenceMax}
	}
	return update{via: via, surface: []int{s.number}}
}

// propagate merges updates upward through raw-parent links until a
// surface state is reached or nothing changes. At a surface state every
// absent-free surface target yields a recipe transition.
func (g *GTS) propagate(first update) {
	work := []update{first}
	for len(work) > 0 {
		u := work[0]
		work = work[1:]
		parent := g.states[u.via.source]
		if parent.IsDone() {
			continue
		}
		tr := parent.transience()
		if !parent.IsTransient() {
			for _, n := range u.surface {
				if !g.states[n].IsAbsent() {
					g.addRecipeTransition(parent.number, u.via, n)
				}
			}
			for _, n := range u.open {
				if n != parent.number {
					tr.open[n] = true
				}
			}
			continue
		}
		next := update{absence: parent.absence}
		changed := false
		if u.absence < parent.absence {
			parent.absence = u.absence
			next.absence = u.absence
			changed = true
		}
		for _, n := range u.surface {
			if !tr.surface[n] {
				tr.surface[n] = true
				next.surface = append(next.surface, n)
				changed = true
			}
		}
		for _, n := range u.open {
			if n != parent.number && !tr.open[n] {
				tr.open[n] = true
				next.open = append(next.open, n)
				changed = true
			}
		}
		if !changed {
			continue
		}
		for _, link := range tr.links {
			next.via = link
			work = append(work, next)
		}
	}
}

// Close marks s as fully explored: its outgoing transitions are final and
// are kept in compact form, its graph is released, and its transient
// ancestors are told it is no longer open. Deadlock checking matches the
// transformer rules and may be interrupted, in which case s stays open.
func (g *GTS) Close(ctx context.Context, s *GraphState) error {
	if s.IsClosed() {
		return nil
	}
	policy := g.session.Config.DeadlockCheck
	if policy != PolicyOff && !s.IsAbsent() {
		host := s.Graph()
		dead, err := g.deadlocked(ctx, s, host)
		if err != nil {
			return err
		}
		if dead {
			wasAbsent := s.IsAbsent()
			g.enforce(s, host, policy, []error{&Violation{Kind: CheckDeadlock, Err: errDeadlock}})
			if !wasAbsent && s.IsAbsent() {
				g.session.Stats.AbsentStates++
			}
		}
	}

	old := s.flags
	if s.frame.IsFinal() {
		s.set(FlagFinal)
	}
	s.set(FlagClosed)
	s.stubs = make([]stub, 0, len(s.out))
	for _, t := range s.out {
		s.stubs = append(s.stubs, toStub(t))
	}
	s.out = nil
	s.release()
	g.notify(s, old)
	g.session.Logger.Debug("state closed", zap.Stringer("state", s), zap.Int("transitions", len(s.stubs)))

	if !s.IsTransient() && s.trans != nil {
		for _, link := range s.trans.links {
			g.propagate(reached(s, link))
		}
	}
	g.leaveOpen(s)
	if !s.IsTransient() && s.trans != nil {
		s.trans.links = nil
	}
	if s.trans == nil || len(s.trans.open) == 0 {
		g.markDone(s)
	}
	return nil
}

// leaveOpen removes s from the open sets of its ancestors, marking those
// that become done.
func (g *GTS) leaveOpen(s *GraphState) {
	if s.trans == nil || len(s.trans.links) == 0 {
		return
	}
	visited := map[int]bool{s.number: true}
	queue := parentsOf(s)
	for len(queue) > 0 {
		a := g.states[queue[0]]
		queue = queue[1:]
		if visited[a.number] {
			continue
		}
		visited[a.number] = true
		if a.trans == nil {
			continue
		}
		up := parentsOf(a)
		delete(a.trans.open, s.number)
		if a.IsClosed() && !a.IsDone() && len(a.trans.open) == 0 {
			g.markDone(a)
		}
		if a.IsTransient() {
			queue = append(queue, up...)
		}
	}
}

func parentsOf(s *GraphState) []int {
	if s.trans == nil {
		return nil
	}
	result := make([]int, 0, len(s.trans.links))
	for _, t := range s.trans.links {
		result = append(result, t.source)
	}
	return result
}

// markDone settles the absence of s.
func (g *GTS) markDone(s *GraphState) {
	old := s.flags
	s.set(FlagDone)
	if s.absence > 0 {
		if !s.IsAbsent() {
			g.session.Stats.AbsentStates++
		}
		s.set(FlagAbsent)
	} else {
		s.set(FlagKnown)
	}
	if s.trans != nil {
		s.trans.links = nil
	}
	g.notify(s, old)
}

// SetFrame moves s to another frame with the same prime frame, typically
// the verdict frame of its attempt. Leaving all recipes makes a transient
// state a surface state, which its recipe roots learn about once it is
// closed.
func (g *GTS) SetFrame(s *GraphState, f *control.Frame) {
	if f == s.frame {
		return
	}
	if f.Prime() != s.prime {
		panic(fmt.Sprintf("state %s: frame %s does not belong to prime frame %s", s, f, s.prime))
	}
	if s.IsClosed() {
		panic(fmt.Sprintf("state %s: changing the frame of a closed state", s))
	}
	old := s.flags
	s.frame = f
	if f.IsError() {
		s.set(FlagError)
	}
	if s.IsTransient() {
		if f.IsTransient() {
			if f.Transience() < s.absence {
				s.absence = f.Transience()
				g.pushUp(s, update{absence: s.absence})
			}
		} else {
			g.surface(s)
		}
	}
	g.notify(s, old)
}

// surface turns a transient state into a surface state. It stays open in
// its ancestors, keeping its links, until Close settles its absence.
func (g *GTS) surface(s *GraphState) {
	s.absence = 0
	s.clear(FlagTransient | FlagInternal)
}

// pushUp sends u to every raw parent of s.
func (g *GTS) pushUp(s *GraphState, u update) {
	if s.trans == nil {
		return
	}
	for _, link := range s.trans.links {
		u.via = link
		g.propagate(u)
	}
}

func keys(m map[int]bool) []int {
	result := make([]int, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	return result
}
