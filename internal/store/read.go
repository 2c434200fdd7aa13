package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/flyxxxxx/prototype-sub001/internal/engine"
)

// Invocation is the journal row of one invocation.
type Invocation struct {
	ID        string
	ParentID  string
	Class     string
	Operation string
	State     engine.State

	// StartSeq and EndSeq are the sequence numbers of the started and
	// terminal events. EndSeq is 0 while the invocation is running.
	StartSeq int64
	EndSeq   int64

	Worker string
	Error  string
}

// PlanRecord is the journal row of one compiled plan.
type PlanRecord struct {
	Class       string
	Fingerprint string
	Description string
}

// EventFilter selects journal events. Zero fields match everything.
type EventFilter struct {
	InvocationID string
	Class        string
	Operation    string
	Types        []engine.EventType

	// AfterSeq returns only events with a larger sequence number.
	AfterSeq int64

	// Limit caps the number of events returned when positive.
	Limit int
}

// ReadEvents returns the events matching f ordered by seq ASC.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, f EventFilter) ([]engine.Event, error) {
	var where []string
	var args []any
	if f.InvocationID != "" {
		where = append(where, "invocation_id = ?")
		args = append(args, f.InvocationID)
	}
	if f.Class != "" {
		where = append(where, "class = ?")
		args = append(args, f.Class)
	}
	if f.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, f.Operation)
	}
	if len(f.Types) > 0 {
		marks := make([]string, len(f.Types))
		for i, t := range f.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(marks, ", ")+")")
	}
	if f.AfterSeq > 0 {
		where = append(where, "seq > ?")
		args = append(args, f.AfterSeq)
	}

	query := `
		SELECT seq, type, invocation_id, parent_id, class, operation, state, target, worker, error
		FROM events`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY seq ASC"
	if f.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []engine.Event{}
	for rows.Next() {
		var e engine.Event
		var typ, state string
		if err := rows.Scan(&e.Seq, &typ, &e.InvocationID, &e.ParentID, &e.Class, &e.Operation, &state, &e.Target, &e.Worker, &e.Error); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = engine.EventType(typ)
		e.State = engine.State(state)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

const invocationColumns = `id, parent_id, class, operation, state, start_seq, end_seq, worker, error`

// ReadInvocation retrieves a single invocation by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadInvocation(ctx context.Context, id string) (Invocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invocationColumns+`
		FROM invocations
		WHERE id = ?
	`, id)
	return scanInvocation(row)
}

// ReadInvocations returns the top-level invocations ordered by start seq.
func (s *Store) ReadInvocations(ctx context.Context) ([]Invocation, error) {
	return s.queryInvocations(ctx, `
		SELECT `+invocationColumns+`
		FROM invocations
		WHERE parent_id = ''
		ORDER BY start_seq ASC
	`)
}

// ReadTree returns the invocation id followed by every invocation it started,
// directly or through its targets, ordered by start seq.
//
// Returns an empty slice (not nil) if id is unknown.
func (s *Store) ReadTree(ctx context.Context, id string) ([]Invocation, error) {
	return s.queryInvocations(ctx, `
		WITH RECURSIVE tree(id) AS (
			SELECT id FROM invocations WHERE id = ?
			UNION ALL
			SELECT i.id FROM invocations i JOIN tree t ON i.parent_id = t.id
		)
		SELECT `+invocationColumns+`
		FROM invocations
		WHERE id IN (SELECT id FROM tree)
		ORDER BY start_seq ASC
	`, id)
}

func (s *Store) queryInvocations(ctx context.Context, query string, args ...any) ([]Invocation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	invocations := []Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return invocations, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (Invocation, error) {
	var inv Invocation
	var state string
	err := row.Scan(&inv.ID, &inv.ParentID, &inv.Class, &inv.Operation, &state, &inv.StartSeq, &inv.EndSeq, &inv.Worker, &inv.Error)
	if err == sql.ErrNoRows {
		return Invocation{}, err
	}
	if err != nil {
		return Invocation{}, fmt.Errorf("scan invocation: %w", err)
	}
	inv.State = engine.State(state)
	return inv, nil
}

// ReadPlans returns every recorded plan ordered by class name.
func (s *Store) ReadPlans(ctx context.Context) ([]PlanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT class, fingerprint, description
		FROM plans
		ORDER BY class ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	plans := []PlanRecord{}
	for rows.Next() {
		var p PlanRecord
		if err := rows.Scan(&p.Class, &p.Fingerprint, &p.Description); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

// LastSeq returns the largest journaled sequence number, or 0 for an empty
// journal. An engine resuming a journal starts its clock there.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq.Int64, nil
}
