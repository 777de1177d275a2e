// Package lts builds the labelled transition system of a graph grammar:
// states with delta-encoded graphs, rule and recipe transitions, state
// collapsing, match collection and application, and the propagation of
// absence and recipe targets through transient (in-recipe) states.
//
// A GTS is single-writer: none of its methods may be called concurrently.
// Independent GTS instances share nothing and may be explored in parallel.
package lts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInterrupted is wrapped by errors returned when matching or
// application was cancelled. The affected state is still open and
// nothing was added to the GTS.
var ErrInterrupted = errors.New("exploration interrupted")

// CollapseMode selects how new states are identified with existing ones.
type CollapseMode int

const (
	// CollapseNone never identifies states.
	CollapseNone CollapseMode = iota
	// CollapseEqual identifies states with equal node and edge sets.
	CollapseEqual
	// CollapseIsoWeak identifies states found isomorphic without
	// backtracking; some isomorphic states may stay distinct.
	CollapseIsoWeak
	// CollapseIsoStrong identifies exactly the isomorphic states.
	CollapseIsoStrong
)

var collapseNames = map[CollapseMode]string{
	CollapseNone:      "none",
	CollapseEqual:     "equal",
	CollapseIsoWeak:   "iso-weak",
	CollapseIsoStrong: "iso-strong",
}

func (m CollapseMode) String() string {
	if s, ok := collapseNames[m]; ok {
		return s
	}
	return fmt.Sprintf("CollapseMode(%d)", int(m))
}

// IsIso reports whether the mode uses isomorphism checking.
func (m CollapseMode) IsIso() bool {
	return m == CollapseIsoWeak || m == CollapseIsoStrong
}

// ParseCollapseMode parses the String form of a mode.
func ParseCollapseMode(s string) (CollapseMode, error) {
	for m, name := range collapseNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown collapse mode %q", s)
}

// CheckPolicy says what happens when a state violates a constraint.
type CheckPolicy int

const (
	// PolicyOff skips the check.
	PolicyOff CheckPolicy = iota
	// PolicySilent attaches the violation to the graph only.
	PolicySilent
	// PolicyError also flags the state as erroneous.
	PolicyError
	// PolicyRemove also removes the state from the real state space.
	PolicyRemove
)

var policyNames = map[CheckPolicy]string{
	PolicyOff:    "off",
	PolicySilent: "silent",
	PolicyError:  "error",
	PolicyRemove: "remove",
}

func (p CheckPolicy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("CheckPolicy(%d)", int(p))
}

// ParseCheckPolicy parses the String form of a policy.
func ParseCheckPolicy(s string) (CheckPolicy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown check policy %q", s)
}

// Config holds the engine settings of a session.
type Config struct {
	Collapse CollapseMode
	// FreezeBound is the replay depth beyond which a closed state's graph
	// is frozen when it is reconstructed.
	FreezeBound int
	// CompressFrozen stores frozen graphs zstd-compressed.
	CompressFrozen bool

	TypeCheck     CheckPolicy
	PropertyCheck CheckPolicy
	DeadlockCheck CheckPolicy
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Collapse:      CollapseIsoStrong,
		FreezeBound:   8,
		TypeCheck:     PolicyError,
		PropertyCheck: PolicyError,
		DeadlockCheck: PolicyOff,
	}
}

// Stats counts engine events. They are diagnostics only.
type Stats struct {
	States            int
	Transitions       int
	RecipeTransitions int
	ConfluentDiamonds int
	Reconstructions   int
	FrozenGraphs      int
	IsoChecks         int
	IsoHits           int
	ReusedMatches     int
	FreshMatches      int
	FilterErrors      int
	Violations        int
	AbsentStates      int
}

// Session carries the settings, logger and statistics shared by the
// components exploring one GTS.
type Session struct {
	ID     uuid.UUID
	Config Config
	Logger *zap.Logger
	Stats  Stats
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.Logger = l
		}
	}
}

// WithConfig sets the configuration.
func WithConfig(c Config) SessionOption {
	return func(s *Session) {
		s.Config = c
	}
}

// NewSession returns a session with a fresh ID, the default configuration
// and a no-op logger unless overridden.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		ID:     uuid.New(),
		Config: DefaultConfig(),
		Logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Logger = s.Logger.With(zap.String("session", s.ID.String()))
	return s
}
