package match

import (
	"fmt"
	"sort"

	"groove/cas"
	"groove/graph"
	"groove/rule"
)

// Event is the replayable part of a rule match: the images of the rule's
// anchor plus the events of the sub-rules matched along with it. Two
// matches with the same event have the same effect on any host graph.
type Event struct {
	rule  *rule.Rule
	nodes []graph.Node
	vars  []graph.Node
	edges []graph.Edge
	subs  []*Event
	key   cas.Digest
}

// NewEvent extracts the event of a rule proof.
func NewEvent(r *rule.Rule, p *Proof) (*Event, error) {
	a := r.Anchor()
	e := &Event{rule: r}
	for _, n := range a.Nodes {
		img, ok := p.Binding.Node(n)
		if !ok {
			return nil, fmt.Errorf("rule %s: anchor node %s is unbound", r.Name(), n)
		}
		e.nodes = append(e.nodes, img)
	}
	for _, n := range a.Vars {
		img, ok := p.Binding.Node(n)
		if !ok {
			return nil, fmt.Errorf("rule %s: anchor variable %s is unbound", r.Name(), n)
		}
		e.vars = append(e.vars, img)
	}
	for _, edge := range a.Edges {
		img, ok := p.Binding.Edges[edge]
		if !ok {
			return nil, fmt.Errorf("rule %s: anchor edge %s is unbound", r.Name(), edge)
		}
		e.edges = append(e.edges, img)
	}

	seen := make(map[cas.Digest]bool)
	for _, sp := range p.SubRuleProofs() {
		sub, err := NewEvent(sp.Rule(), sp)
		if err != nil {
			return nil, err
		}
		if seen[sub.key] {
			continue
		}
		seen[sub.key] = true
		e.subs = append(e.subs, sub)
	}
	sort.Slice(e.subs, func(i, j int) bool {
		if e.subs[i].rule.Name() != e.subs[j].rule.Name() {
			return e.subs[i].rule.Name() < e.subs[j].rule.Name()
		}
		return e.subs[i].key.Hex() < e.subs[j].key.Hex()
	})
	e.key = e.computeKey()
	return e, nil
}

func (e *Event) computeKey() cas.Digest {
	h := cas.NewHasher().String(e.rule.Name())
	h.Int(len(e.nodes))
	for _, n := range e.nodes {
		hashNode(h, n)
	}
	h.Int(len(e.vars))
	for _, n := range e.vars {
		hashNode(h, n)
	}
	h.Int(len(e.edges))
	for _, edge := range e.edges {
		hashNode(h, edge.Source)
		h.String(edge.Label)
		hashNode(h, edge.Target)
	}
	h.Int(len(e.subs))
	for _, s := range e.subs {
		h.Digest(s.key)
	}
	return h.Sum()
}

func hashNode(h *cas.Hasher, n graph.Node) {
	h.Int(n.Number).String(n.Type).String(n.Value)
}

// Rule returns the applied rule.
func (e *Event) Rule() *rule.Rule { return e.rule }

// Key identifies the event: equal keys mean equal rule and anchor images.
func (e *Event) Key() cas.Digest { return e.key }

// Subs returns the sub-rule events.
func (e *Event) Subs() []*Event { return e.subs }

// Equal reports whether both events have the same key.
func (e *Event) Equal(o *Event) bool {
	return o != nil && e.key == o.key
}

func (e *Event) String() string {
	return fmt.Sprintf("%s%v", e.rule.Name(), e.nodes)
}

// Image returns the host image of an anchored rule node, resolving
// constants to their value node.
func (e *Event) Image(n graph.Node) (graph.Node, bool) {
	if n.Value != "" && n.Var == "" {
		return graph.ValueNode(n.Type, n.Value), true
	}
	a := e.rule.Anchor()
	for i, an := range a.Nodes {
		if an == n {
			return e.nodes[i], true
		}
	}
	for i, av := range a.Vars {
		if av == n {
			return e.vars[i], true
		}
	}
	return graph.Node{}, false
}

// ParamImage returns the host image of the rule parameter with the given
// index.
func (e *Event) ParamImage(index int) (graph.Node, bool) {
	p, ok := e.rule.Param(index)
	if !ok {
		return graph.Node{}, false
	}
	return e.Image(p.Node)
}

// CreatedCount returns the number of nodes the event creates, sub-events
// included.
func (e *Event) CreatedCount() int {
	n := len(e.rule.CreatorNodes())
	for _, s := range e.subs {
		n += s.CreatedCount()
	}
	return n
}

// IsModifying reports whether applying the event changes the host graph.
func (e *Event) IsModifying() bool {
	return e.rule.IsModifying()
}

// Effect is the host-level effect of an event on a particular graph.
type Effect struct {
	ErasedNodes  []graph.Node
	ErasedEdges  []graph.Edge
	Created      []graph.Node
	CreatedEdges []graph.Edge
	Merges       [][2]graph.Node
}

// Effect resolves the event against host. Created nodes take the numbers
// in added when given (replay) and otherwise the smallest numbers unused
// in host, so the result depends only on the event and the host.
func (e *Event) Effect(host *graph.Graph, added []graph.Node) (*Effect, error) {
	count := e.CreatedCount()
	if added == nil {
		for _, num := range host.FreshNumbers(count) {
			added = append(added, graph.Node{Number: num})
		}
	} else if len(added) != count {
		return nil, fmt.Errorf("event %s: expected %d added nodes, got %d", e, count, len(added))
	}
	eff := &Effect{}
	next := 0
	if err := e.collect(nil, eff, added, &next); err != nil {
		return nil, err
	}
	return eff, nil
}

func (e *Event) collect(parent map[graph.Node]graph.Node, eff *Effect, added []graph.Node, next *int) error {
	img := make(map[graph.Node]graph.Node, len(parent)+len(e.nodes)+len(e.vars))
	for k, v := range parent {
		img[k] = v
	}
	a := e.rule.Anchor()
	for i, n := range a.Nodes {
		img[n] = e.nodes[i]
	}
	for i, n := range a.Vars {
		img[n] = e.vars[i]
	}
	for _, n := range e.rule.CreatorNodes() {
		c := added[*next]
		*next++
		if c.Type == "" {
			c.Type = n.Type
		} else if c.Type != n.Type {
			return fmt.Errorf("event %s: added node %s does not match creator %s", e, c, n)
		}
		img[n] = c
		eff.Created = append(eff.Created, c)
	}
	resolve := func(n graph.Node) (graph.Node, error) {
		if n.Value != "" && n.Var == "" {
			return graph.ValueNode(n.Type, n.Value), nil
		}
		if v, ok := img[n]; ok {
			return v, nil
		}
		return graph.Node{}, fmt.Errorf("event %s: no image for %s", e, n)
	}
	resolveEdge := func(edge graph.Edge) (graph.Edge, error) {
		src, err := resolve(edge.Source)
		if err != nil {
			return graph.Edge{}, err
		}
		tgt, err := resolve(edge.Target)
		if err != nil {
			return graph.Edge{}, err
		}
		return graph.NewEdge(src, edge.Label, tgt), nil
	}

	for _, n := range e.rule.EraserNodes() {
		h, err := resolve(n)
		if err != nil {
			return err
		}
		eff.ErasedNodes = append(eff.ErasedNodes, h)
	}
	erased := make(map[graph.Node]bool, len(e.rule.EraserNodes()))
	for _, n := range e.rule.EraserNodes() {
		erased[n] = true
	}
	for _, edge := range e.rule.EraserEdges() {
		if erased[edge.Source] || erased[edge.Target] {
			continue
		}
		h, err := resolveEdge(edge)
		if err != nil {
			return err
		}
		eff.ErasedEdges = append(eff.ErasedEdges, h)
	}
	for _, edge := range e.rule.CreatorEdges() {
		h, err := resolveEdge(edge)
		if err != nil {
			return err
		}
		eff.CreatedEdges = append(eff.CreatedEdges, h)
	}
	for _, list := range [][]graph.Edge{e.rule.LHSMergers(), e.rule.RHSMergers()} {
		for _, edge := range list {
			h, err := resolveEdge(edge)
			if err != nil {
				return err
			}
			eff.Merges = append(eff.Merges, [2]graph.Node{h.Source, h.Target})
		}
	}
	for _, s := range e.subs {
		if err := s.collect(img, eff, added, next); err != nil {
			return err
		}
	}
	return nil
}

// Apply applies the effect to host, which must be mutable.
func (eff *Effect) Apply(host *graph.Graph) {
	touched := make(map[graph.Node]bool)
	for _, edge := range eff.ErasedEdges {
		if host.RemoveEdge(edge) {
			touched[edge.Source] = true
			touched[edge.Target] = true
		}
	}
	for _, n := range eff.ErasedNodes {
		for _, edge := range host.RemoveNode(n) {
			touched[edge.Opposite(n)] = true
		}
	}
	for _, n := range eff.Created {
		host.AddNode(n)
	}
	for _, edge := range eff.CreatedEdges {
		host.AddEdge(edge)
	}
	if len(eff.Merges) > 0 {
		created := make(map[graph.Node]bool, len(eff.Created))
		for _, n := range eff.Created {
			created[n] = true
		}
		merged := make(map[graph.Node]graph.Node)
		find := func(n graph.Node) graph.Node {
			for {
				m, ok := merged[n]
				if !ok {
					return n
				}
				n = m
			}
		}
		for _, pair := range eff.Merges {
			a, b := find(pair[0]), find(pair[1])
			if a == b {
				continue
			}
			keep, drop := a, b
			if created[keep] && !created[drop] || created[keep] == created[drop] && graph.CompareNodes(drop, keep) < 0 {
				keep, drop = drop, keep
			}
			host.MergeNodes(keep, drop)
			merged[drop] = keep
		}
	}
	// value nodes only exist as edge ends
	for n := range touched {
		if n.IsValue() && host.HasNode(n) && host.Degree(n) == 0 {
			host.RemoveNode(n)
		}
	}
}

// Apply computes the effect of e on host and applies it in place. It
// returns the created nodes, which replay the same effect when passed back
// as added.
func (e *Event) Apply(host *graph.Graph, added []graph.Node) ([]graph.Node, error) {
	eff, err := e.Effect(host, added)
	if err != nil {
		return nil, err
	}
	eff.Apply(host)
	return eff.Created, nil
}

// footprint collects the host elements e reads and the ones it removes.
type footprint struct {
	used        map[graph.Node]bool
	usedEdges   map[graph.Edge]bool
	erased      map[graph.Node]bool
	erasedEdges map[graph.Edge]bool
	merges      bool
}

func (e *Event) footprint() footprint {
	fp := footprint{
		used:        make(map[graph.Node]bool),
		usedEdges:   make(map[graph.Edge]bool),
		erased:      make(map[graph.Node]bool),
		erasedEdges: make(map[graph.Edge]bool),
	}
	e.addFootprint(&fp)
	return fp
}

func (e *Event) addFootprint(fp *footprint) {
	for _, n := range e.nodes {
		fp.used[n] = true
	}
	for _, edge := range e.edges {
		fp.usedEdges[edge] = true
		fp.used[edge.Source] = true
		fp.used[edge.Target] = true
	}
	for _, n := range e.rule.EraserNodes() {
		if h, ok := e.Image(n); ok {
			fp.erased[h] = true
		}
	}
	for _, edge := range e.rule.EraserEdges() {
		src, ok1 := e.Image(edge.Source)
		tgt, ok2 := e.Image(edge.Target)
		if ok1 && ok2 {
			fp.erasedEdges[graph.NewEdge(src, edge.Label, tgt)] = true
		}
	}
	if len(e.rule.LHSMergers())+len(e.rule.RHSMergers()) > 0 {
		fp.merges = true
	}
	for _, s := range e.subs {
		s.addFootprint(fp)
	}
}

// Conflicts reports whether applying one event may invalidate the other,
// so that the two cannot be assumed to commute: one erases an element the
// other reads, or either merges nodes.
func (e *Event) Conflicts(o *Event) bool {
	a, b := e.footprint(), o.footprint()
	if a.merges || b.merges {
		return true
	}
	return removes(a, b) || removes(b, a)
}

func removes(a, b footprint) bool {
	for n := range a.erased {
		if b.used[n] {
			return true
		}
	}
	for edge := range a.erasedEdges {
		if b.usedEdges[edge] {
			return true
		}
	}
	return false
}
