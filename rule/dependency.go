package rule

import (
	"strings"

	"groove/graph"
)

const (
	typePrefix = "T:"
	edgePrefix = "E:"
	anyNode    = typePrefix + "*"
	anyEdge    = edgePrefix + "*"
)

// labelUse records which labels a rule produces, consumes, and tests
// positively or negatively.
type labelUse struct {
	produces map[string]bool
	consumes map[string]bool
	positive map[string]bool
	negative map[string]bool
	merges   bool
}

func newLabelUse() labelUse {
	return labelUse{
		produces: make(map[string]bool),
		consumes: make(map[string]bool),
		positive: make(map[string]bool),
		negative: make(map[string]bool),
	}
}

// nodeKey is the label key of a node. Untyped nodes match nodes of any
// type and get the wildcard key.
func nodeKey(n graph.Node) (string, bool) {
	switch {
	case n.IsValue():
		return "", false
	case n.Type == "":
		return anyNode, true
	}
	return typePrefix + n.Type, true
}

func edgeKey(e graph.Edge) string {
	return edgePrefix + e.Label
}

func computeLabelUse(r *Rule) labelUse {
	u := newLabelUse()
	collectEffects(r, &u)
	collectCondition(r.cond, true, &u)
	return u
}

func collectEffects(r *Rule, u *labelUse) {
	for _, n := range r.creatorNodes {
		if k, ok := nodeKey(n); ok {
			u.produces[k] = true
		}
	}
	for _, e := range r.creatorEdges {
		u.produces[edgeKey(e)] = true
	}
	for _, n := range r.eraserNodes {
		if k, ok := nodeKey(n); ok {
			u.consumes[k] = true
		}
	}
	if len(r.eraserNodes) > 0 && !r.props.CheckDangling {
		u.consumes[anyEdge] = true
	}
	for _, e := range r.eraserEdges {
		u.consumes[edgeKey(e)] = true
	}
	if len(r.lhsMergers)+len(r.rhsMergers) > 0 {
		u.merges = true
	}
	for _, s := range r.subRules {
		collectEffects(s, u)
	}
}

// collectCondition adds the labels a condition's own pattern tests, with
// the given polarity, and recurses into sub-conditions.
func collectCondition(c *Condition, positive bool, u *labelUse) {
	target := u.negative
	if positive {
		target = u.positive
	}
	for _, n := range c.pattern.Nodes() {
		if c.root.HasNode(n) {
			continue
		}
		if k, ok := nodeKey(n); ok {
			target[k] = true
		}
	}
	for _, e := range c.pattern.Edges() {
		if !c.root.HasEdge(e) {
			target[edgeKey(e)] = true
		}
	}
	for _, sub := range c.subs {
		switch sub.op {
		case OpNot:
			collectCondition(sub, !positive, u)
		case OpForall:
			// the set of sub-matches matters in both directions
			collectCondition(sub, positive, u)
			collectCondition(sub, !positive, u)
		default:
			collectCondition(sub, positive, u)
		}
	}
}

func intersects(a, b map[string]bool) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if b[k] {
			return true
		}
	}
	return wildcard(a, b, anyNode, typePrefix) || wildcard(b, a, anyNode, typePrefix) ||
		wildcard(a, b, anyEdge, edgePrefix) || wildcard(b, a, anyEdge, edgePrefix)
}

func wildcard(a, b map[string]bool, wild, prefix string) bool {
	return a[wild] && hasPrefixKey(b, prefix)
}

func hasPrefixKey(m map[string]bool, prefix string) bool {
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Dependencies is the enabler/disabler relation over a set of rules. Rule
// a may enable rule b if applying a can create a match of b that did not
// exist before; a may disable b if applying a can destroy a match of b.
type Dependencies struct {
	rules     map[string]*Rule
	enablers  map[string]map[string]bool
	disablers map[string]map[string]bool
}

// NewDependencies analyses the given rules.
func NewDependencies(rules []*Rule) *Dependencies {
	d := &Dependencies{
		rules:     make(map[string]*Rule, len(rules)),
		enablers:  make(map[string]map[string]bool, len(rules)),
		disablers: make(map[string]map[string]bool, len(rules)),
	}
	for _, r := range rules {
		d.rules[r.name] = r
	}
	for _, a := range rules {
		en := make(map[string]bool)
		dis := make(map[string]bool)
		if a.modifying {
			for _, b := range rules {
				if a.labels.merges ||
					intersects(a.labels.produces, b.labels.positive) ||
					intersects(a.labels.consumes, b.labels.negative) {
					en[b.name] = true
				}
				if a.labels.merges ||
					intersects(a.labels.consumes, b.labels.positive) ||
					intersects(a.labels.produces, b.labels.negative) {
					dis[b.name] = true
				}
			}
		}
		d.enablers[a.name] = en
		d.disablers[a.name] = dis
	}
	return d
}

// Enables reports whether applying a may create new matches of b. Unknown
// rules are conservatively assumed to enable everything.
func (d *Dependencies) Enables(a, b *Rule) bool {
	en, ok := d.enablers[a.name]
	if !ok {
		return true
	}
	return en[b.name]
}

// Disables reports whether applying a may destroy matches of b.
func (d *Dependencies) Disables(a, b *Rule) bool {
	dis, ok := d.disablers[a.name]
	if !ok {
		return true
	}
	return dis[b.name]
}

// Enabled returns the names of the rules a may enable.
func (d *Dependencies) Enabled(a *Rule) []string {
	return sortedKeys(d.enablers[a.name])
}

// Disabled returns the names of the rules a may disable.
func (d *Dependencies) Disabled(a *Rule) []string {
	return sortedKeys(d.disablers[a.name])
}
