// Package store exports explored transition systems to SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"groove/cas"
	"groove/graph"
	"groove/lts"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

// ErrNotFound is returned when a run or graph does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Run describes one stored exploration.
type Run struct {
	ID        uuid.UUID
	Session   uuid.UUID
	Grammar   string
	Strategy  string
	Collapse  string
	Complete  bool
	States    int
	CreatedAt int64
}

// State is a stored state.
type State struct {
	Number  int
	Flags   string
	Absence int
	Frame   string
	Graph   cas.Digest
}

// Transition is a stored transition.
type Transition struct {
	Source   int
	Target   int
	Kind     string
	Label    string
	Symmetry bool
}

type graphPayload struct {
	Nodes []graph.Node `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

// SaveRun stores the states and transitions of g under a new run id. Graphs
// already stored by earlier runs are shared.
func (db *DB) SaveRun(ctx context.Context, g *lts.GTS, strategy string, complete bool) (*Run, error) {
	session := g.Session()
	run := &Run{
		ID:        uuid.New(),
		Session:   session.ID,
		Grammar:   g.Grammar().Name(),
		Strategy:  strategy,
		Collapse:  session.Config.Collapse.String(),
		Complete:  complete,
		States:    g.StateCount(),
		CreatedAt: time.Now().UnixMilli(),
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, session, grammar, strategy, collapse, complete, states, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID.String(), run.Session.String(), run.Grammar, run.Strategy, run.Collapse, run.Complete, run.States, run.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}

	for _, s := range g.States() {
		digest, err := insertGraph(ctx, tx, s.Graph())
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", s, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO states (run, number, flags, absence, frame, graph)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.ID.String(), s.Number(), s.Flags().String(), s.Absence(), s.Frame().String(), digest[:]); err != nil {
			return nil, fmt.Errorf("inserting state %s: %w", s, err)
		}
	}

	for i, t := range g.Transitions() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transitions (run, seq, source, target, kind, label, symmetry)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID.String(), i, t.Source().Number(), t.Target().Number(), t.Kind().String(), t.Label(), t.IsSymmetry()); err != nil {
			return nil, fmt.Errorf("inserting transition %s: %w", t, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing run: %w", err)
	}
	return run, nil
}

// insertGraph stores host idempotently and returns its digest.
func insertGraph(ctx context.Context, tx *sql.Tx, host *graph.Graph) (cas.Digest, error) {
	payload, err := cas.CanonicalJSON(graphPayload{Nodes: host.Nodes(), Edges: host.Edges()})
	if err != nil {
		return cas.Digest{}, fmt.Errorf("marshaling graph: %w", err)
	}
	digest := cas.Sum(payload)
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO graphs (digest, nodes, edges, payload)
		VALUES (?, ?, ?, ?)
	`, digest[:], host.NodeCount(), host.EdgeCount(), string(payload)); err != nil {
		return cas.Digest{}, fmt.Errorf("inserting graph: %w", err)
	}
	return digest, nil
}

// GetRun retrieves a run by id.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var run Run
	var session, runID string
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, session, grammar, strategy, collapse, complete, states, created_at
		FROM runs WHERE id = ?
	`, id.String()).Scan(&runID, &session, &run.Grammar, &run.Strategy, &run.Collapse, &run.Complete, &run.States, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	if run.ID, err = uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	if run.Session, err = uuid.Parse(session); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	return &run, nil
}

// States returns the states of a run in number order.
func (db *DB) States(ctx context.Context, run uuid.UUID) ([]State, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT number, flags, absence, frame, graph FROM states
		WHERE run = ? ORDER BY number
	`, run.String())
	if err != nil {
		return nil, fmt.Errorf("querying states: %w", err)
	}
	defer rows.Close()

	var result []State
	for rows.Next() {
		var (
			s      State
			digest []byte
		)
		if err := rows.Scan(&s.Number, &s.Flags, &s.Absence, &s.Frame, &digest); err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		copy(s.Graph[:], digest)
		result = append(result, s)
	}
	return result, rows.Err()
}

// Transitions returns the transitions of a run in insertion order.
func (db *DB) Transitions(ctx context.Context, run uuid.UUID) ([]Transition, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT source, target, kind, label, symmetry FROM transitions
		WHERE run = ? ORDER BY seq
	`, run.String())
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var result []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.Source, &t.Target, &t.Kind, &t.Label, &t.Symmetry); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// GraphPayload returns the canonical JSON of a stored graph.
func (db *DB) GraphPayload(ctx context.Context, digest cas.Digest) (string, error) {
	var payload string
	err := db.conn.QueryRowContext(ctx, `SELECT payload FROM graphs WHERE digest = ?`, digest[:]).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("graph %s: %w", digest.Short(), ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying graph: %w", err)
	}
	return payload, nil
}
