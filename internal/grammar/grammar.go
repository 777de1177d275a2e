// Package grammar loads graph grammars from YAML files: a type graph,
// rules with negative conditions, a start graph and a control program.
package grammar

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"groove/control"
	"groove/graph"
	"groove/rule"
)

// File is the YAML form of a grammar.
type File struct {
	Name    string       `yaml:"name"`
	Types   *TypesSpec   `yaml:"types"`
	Start   GraphSpec    `yaml:"start"`
	Rules   []RuleSpec   `yaml:"rules"`
	Control *ControlSpec `yaml:"control"`
}

// TypesSpec declares the allowed node types and edges.
type TypesSpec struct {
	Nodes []string   `yaml:"nodes"`
	Edges []EdgeSpec `yaml:"edges"`
}

// GraphSpec is a graph whose nodes are referred to by id.
type GraphSpec struct {
	Nodes []NodeSpec `yaml:"nodes"`
	Edges []EdgeSpec `yaml:"edges"`
}

// NodeSpec declares a node. Value nodes carry a value; rule variables a
// var name.
type NodeSpec struct {
	ID    string `yaml:"id"`
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
	Var   string `yaml:"var"`
}

// EdgeSpec is an edge between node ids, or between node types in a
// type graph.
type EdgeSpec struct {
	Source string `yaml:"source"`
	Label  string `yaml:"label"`
	Target string `yaml:"target"`
}

// RuleSpec declares a rule. NACs are negative conditions over the LHS.
type RuleSpec struct {
	Name     string      `yaml:"name"`
	Role     string      `yaml:"role"`
	Priority int         `yaml:"priority"`
	LHS      GraphSpec   `yaml:"lhs"`
	RHS      GraphSpec   `yaml:"rhs"`
	NACs     []GraphSpec `yaml:"nacs"`
}

// ControlSpec is a control program. Without one, all enabled transformer
// rules are applied as long as possible.
type ControlSpec struct {
	Locations []LocationSpec `yaml:"locations"`
}

// LocationSpec declares a control location. The location named start is
// where exploration begins.
type LocationSpec struct {
	Name       string     `yaml:"name"`
	Calls      []CallSpec `yaml:"calls"`
	OnSuccess  string     `yaml:"on_success"`
	OnFailure  string     `yaml:"on_failure"`
	Final      bool       `yaml:"final"`
	Error      bool       `yaml:"error"`
	Transience int        `yaml:"transience"`
	Recipe     string     `yaml:"recipe"`
}

// CallSpec calls a rule and moves to target.
type CallSpec struct {
	Rule   string `yaml:"rule"`
	Target string `yaml:"target"`
}

// Grammar is a loaded grammar ready for exploration.
type Grammar struct {
	Rules *rule.Grammar
	Start *graph.Graph
	Frame *control.Frame
}

// Load reads a grammar file. Only rules whose names match one of the
// doublestar patterns are enabled; no patterns enables all rules.
func Load(path string, props rule.Properties, patterns ...string) (*Grammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading grammar: %w", err)
	}
	g, err := Parse(data, props, patterns...)
	if err != nil {
		return nil, fmt.Errorf("grammar %s: %w", path, err)
	}
	return g, nil
}

// Parse builds a grammar from its YAML form.
func Parse(data []byte, props rule.Properties, patterns ...string) (*Grammar, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing grammar: %w", err)
	}
	if f.Name == "" {
		f.Name = "grammar"
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid rule pattern %q", p)
		}
	}

	var rules []*rule.Rule
	for _, spec := range f.Rules {
		if !enabled(spec.Name, patterns) {
			continue
		}
		r, err := buildRule(spec, props)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}

	var types *rule.TypeGraph
	if f.Types != nil {
		types = rule.NewTypeGraph()
		for _, n := range f.Types.Nodes {
			types.AddNodeType(n)
		}
		for _, e := range f.Types.Edges {
			types.AddEdgeType(e.Source, e.Label, e.Target)
		}
	}

	rg, err := rule.NewGrammar(f.Name, props, types, rules...)
	if err != nil {
		return nil, err
	}
	start, _, err := buildGraph(f.Name+"-start", f.Start, nil)
	if err != nil {
		return nil, fmt.Errorf("start graph: %w", err)
	}

	var tmpl *control.Template
	if f.Control == nil {
		tmpl = asLongAsPossible(f.Name, rg)
	} else if tmpl, err = buildControl(f.Name, f.Control, rg); err != nil {
		return nil, err
	}
	frame, err := tmpl.Build()
	if err != nil {
		return nil, err
	}
	return &Grammar{Rules: rg, Start: start, Frame: frame}, nil
}

func enabled(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func parseRole(s string) (rule.Role, error) {
	if s == "" {
		return rule.RoleTransformer, nil
	}
	for _, r := range []rule.Role{rule.RoleTransformer, rule.RoleForbidden, rule.RoleInvariant, rule.RoleCondition} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rule role %q", s)
}

func buildRule(spec RuleSpec, props rule.Properties) (*rule.Rule, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("rule without a name")
	}
	role, err := parseRole(spec.Role)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", spec.Name, err)
	}
	ids := make(map[string]graph.Node)
	lhs, ids, err := buildGraph(spec.Name+"-lhs", spec.LHS, ids)
	if err != nil {
		return nil, fmt.Errorf("rule %s: lhs: %w", spec.Name, err)
	}
	rhs, ids, err := buildGraph(spec.Name+"-rhs", spec.RHS, ids)
	if err != nil {
		return nil, fmt.Errorf("rule %s: rhs: %w", spec.Name, err)
	}
	b := rule.NewRule(spec.Name, lhs, rhs).SetRole(role).SetPriority(spec.Priority).SetProperties(props)
	for i, nac := range spec.NACs {
		pattern, _, err := buildGraph(fmt.Sprintf("%s-nac%d", spec.Name, i), nac, ids)
		if err != nil {
			return nil, fmt.Errorf("rule %s: nac %d: %w", spec.Name, i, err)
		}
		b.AddCondition(rule.NewCondition(fmt.Sprintf("%s-nac%d", spec.Name, i), rule.OpNot, pattern))
	}
	return b.Build()
}

// buildGraph resolves node ids against known and numbers new ones after
// the known host nodes. Nodes declared again must agree with their first
// declaration.
func buildGraph(name string, spec GraphSpec, known map[string]graph.Node) (*graph.Graph, map[string]graph.Node, error) {
	ids := make(map[string]graph.Node, len(known)+len(spec.Nodes))
	next := 0
	for id, n := range known {
		ids[id] = n
		if !n.IsValue() && n.Number >= next {
			next = n.Number + 1
		}
	}
	g := graph.New(name)
	for _, ns := range spec.Nodes {
		if ns.ID == "" {
			return nil, nil, fmt.Errorf("node without an id")
		}
		var n graph.Node
		if ns.Value != "" || ns.Var != "" {
			n = graph.Node{Type: ns.Type, Value: ns.Value, Var: ns.Var}
		} else {
			n = graph.Node{Number: next, Type: ns.Type}
		}
		if prev, ok := ids[ns.ID]; ok {
			if prev.Type != n.Type || prev.Value != n.Value || prev.Var != n.Var {
				return nil, nil, fmt.Errorf("node %s redeclared as %s", ns.ID, n)
			}
			n = prev
		} else {
			ids[ns.ID] = n
			if !n.IsValue() {
				next++
			}
		}
		g.AddNode(n)
	}
	for _, es := range spec.Edges {
		src, ok := ids[es.Source]
		if !ok {
			return nil, nil, fmt.Errorf("edge %s: unknown source %q", es.Label, es.Source)
		}
		tgt, ok := ids[es.Target]
		if !ok {
			return nil, nil, fmt.Errorf("edge %s: unknown target %q", es.Label, es.Target)
		}
		g.AddEdge(graph.NewEdge(src, es.Label, tgt))
	}
	return g, ids, nil
}

func asLongAsPossible(name string, g *rule.Grammar) *control.Template {
	tmpl := control.NewTemplate(name)
	done := tmpl.AddLocation("done").SetFinal()
	for _, r := range g.Transformers() {
		tmpl.Start().AddCall(r, tmpl.Start())
	}
	if len(g.Transformers()) > 0 {
		tmpl.Start().SetVerdicts(nil, done)
	} else {
		tmpl.Start().SetFinal()
	}
	return tmpl
}

func buildControl(name string, spec *ControlSpec, g *rule.Grammar) (*control.Template, error) {
	tmpl := control.NewTemplate(name)
	locs := map[string]*control.Location{"start": tmpl.Start()}
	for _, ls := range spec.Locations {
		if ls.Name == "" {
			return nil, fmt.Errorf("control location without a name")
		}
		if _, ok := locs[ls.Name]; !ok {
			locs[ls.Name] = tmpl.AddLocation(ls.Name)
		}
	}
	lookup := func(n string) (*control.Location, error) {
		if n == "" {
			return nil, nil
		}
		l, ok := locs[n]
		if !ok {
			return nil, fmt.Errorf("unknown control location %q", n)
		}
		return l, nil
	}
	recipes := make(map[string]*control.Recipe)
	for _, ls := range spec.Locations {
		l := locs[ls.Name]
		for _, cs := range ls.Calls {
			r, ok := g.Rule(cs.Rule)
			if !ok {
				return nil, fmt.Errorf("location %s calls unknown or disabled rule %q", ls.Name, cs.Rule)
			}
			target, err := lookup(cs.Target)
			if err != nil || target == nil {
				return nil, fmt.Errorf("location %s: call %s needs a known target", ls.Name, cs.Rule)
			}
			l.AddCall(r, target)
		}
		onSuccess, err := lookup(ls.OnSuccess)
		if err != nil {
			return nil, err
		}
		onFailure, err := lookup(ls.OnFailure)
		if err != nil {
			return nil, err
		}
		if onSuccess != nil || onFailure != nil {
			l.SetVerdicts(onSuccess, onFailure)
		}
		if ls.Final {
			l.SetFinal()
		}
		if ls.Error {
			l.SetError()
		}
		if ls.Transience > 0 {
			rec, ok := recipes[ls.Recipe]
			if !ok {
				rec = control.NewRecipe(ls.Recipe)
				recipes[ls.Recipe] = rec
			}
			l.SetTransience(ls.Transience, rec)
		}
	}
	return tmpl, nil
}
