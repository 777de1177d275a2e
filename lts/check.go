package lts

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"groove/graph"
	"groove/match"
	"groove/rule"
)

// CheckKind names the kind of a constraint check.
type CheckKind string

const (
	CheckType     CheckKind = "type"
	CheckProperty CheckKind = "property"
	CheckDeadlock CheckKind = "deadlock"
)

// Violation is a constraint violation attached to a state graph.
type Violation struct {
	Kind CheckKind
	Rule string
	Err  error
}

func (v *Violation) Error() string {
	if v.Rule != "" {
		return fmt.Sprintf("%s violation (%s): %v", v.Kind, v.Rule, v.Err)
	}
	return fmt.Sprintf("%s violation: %v", v.Kind, v.Err)
}

func (v *Violation) Unwrap() error { return v.Err }

var (
	errForbidden = errors.New("forbidden pattern matches")
	errInvariant = errors.New("invariant does not hold")
	errDeadlock  = errors.New("no transformer rule is applicable")
)

// checkNew runs the type and property checks on a candidate state and
// applies the configured policies to it.
func (g *GTS) checkNew(ctx context.Context, s *GraphState, host *graph.Graph) error {
	cfg := g.session.Config
	if cfg.TypeCheck != PolicyOff {
		g.enforce(s, host, cfg.TypeCheck, g.typeViolations(host))
	}
	if cfg.PropertyCheck != PolicyOff {
		vs, err := g.propertyViolations(ctx, host)
		if err != nil {
			return err
		}
		g.enforce(s, host, cfg.PropertyCheck, vs)
	}
	return nil
}

func (g *GTS) typeViolations(host *graph.Graph) []error {
	tg := g.grammar.TypeGraph()
	if tg == nil {
		return nil
	}
	var result []error
	for _, err := range tg.Check(host) {
		result = append(result, &Violation{Kind: CheckType, Err: err})
	}
	return result
}

func (g *GTS) propertyViolations(ctx context.Context, host *graph.Graph) ([]error, error) {
	var result []error
	for _, r := range g.grammar.PropertyRules() {
		found, err := match.Exists(ctx, g.matcher, host, r.Condition(), match.NewBinding())
		if err != nil {
			return nil, interrupted(fmt.Sprintf("checking property %s", r.Name()), err)
		}
		switch {
		case r.Role() == rule.RoleForbidden && found:
			result = append(result, &Violation{Kind: CheckProperty, Rule: r.Name(), Err: errForbidden})
		case r.Role() == rule.RoleInvariant && !found:
			result = append(result, &Violation{Kind: CheckProperty, Rule: r.Name(), Err: errInvariant})
		}
	}
	return result, nil
}

// deadlocked reports whether s has no outgoing transitions and no
// transformer rule matches its graph.
func (g *GTS) deadlocked(ctx context.Context, s *GraphState, host *graph.Graph) (bool, error) {
	if s.transitionCount() > 0 {
		return false, nil
	}
	for _, r := range g.grammar.Transformers() {
		found, err := match.Exists(ctx, g.matcher, host, r.Condition(), match.NewBinding())
		if err != nil {
			return false, interrupted(fmt.Sprintf("checking deadlock of %s", s), err)
		}
		if found {
			return false, nil
		}
	}
	return true, nil
}

// enforce attaches violations to host and applies the policy to s.
func (g *GTS) enforce(s *GraphState, host *graph.Graph, policy CheckPolicy, violations []error) {
	if len(violations) == 0 || policy == PolicyOff {
		return
	}
	for _, v := range violations {
		host.AddError(v)
	}
	g.session.Stats.Violations += len(violations)
	g.session.Logger.Warn("constraint violated",
		zap.Stringer("state", s),
		zap.Stringer("policy", policy),
		zap.Errors("violations", violations))
	old := s.flags
	switch policy {
	case PolicyError:
		s.set(FlagError)
	case PolicyRemove:
		s.set(FlagError | FlagAbsent)
		s.absence = AbsenceMax
	}
	if s.number >= 0 {
		g.notify(s, old)
	}
}

// recheck recomputes the violations of a done erroneous state on a freshly
// reconstructed graph.
func (g *GTS) recheck(s *GraphState, host *graph.Graph) {
	cfg := g.session.Config
	ctx := context.Background()
	var errs []error
	if cfg.TypeCheck != PolicyOff {
		errs = append(errs, g.typeViolations(host)...)
	}
	if cfg.PropertyCheck != PolicyOff {
		vs, err := g.propertyViolations(ctx, host)
		if err == nil {
			errs = append(errs, vs...)
		}
	}
	if cfg.DeadlockCheck != PolicyOff {
		if dead, err := g.deadlocked(ctx, s, host); err == nil && dead {
			errs = append(errs, &Violation{Kind: CheckDeadlock, Err: errDeadlock})
		}
	}
	for _, err := range errs {
		host.AddError(err)
	}
}

func interrupted(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", what, ErrInterrupted, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
