package store

import (
	"context"
	"fmt"

	"github.com/flyxxxxx/prototype-sub001/internal/engine"
	"github.com/flyxxxxx/prototype-sub001/internal/plan"
)

// WriteEvent appends a bus event to the journal and maintains the invocation
// row it concerns.
//
// Uses ON CONFLICT(seq) DO NOTHING for idempotency - writing the same event
// twice is silently ignored. invocation.started opens the invocation row;
// terminal events close it with their state and error.
func (s *Store) WriteEvent(ctx context.Context, e engine.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write event: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(seq, type, invocation_id, parent_id, class, operation, state, target, worker, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		e.Seq,
		string(e.Type),
		e.InvocationID,
		e.ParentID,
		e.Class,
		e.Operation,
		string(e.State),
		e.Target,
		e.Worker,
		errorText(e),
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	switch e.Type {
	case engine.EventInvocationStarted:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invocations
			(id, parent_id, class, operation, state, start_seq, worker)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`,
			e.InvocationID,
			e.ParentID,
			e.Class,
			e.Operation,
			string(e.State),
			e.Seq,
			e.Worker,
		)
	case engine.EventInvocationCompleted, engine.EventInvocationFailed, engine.EventInvocationRejected:
		_, err = tx.ExecContext(ctx, `
			UPDATE invocations
			SET state = ?, end_seq = ?, error = ?
			WHERE id = ?
		`,
			string(e.State),
			e.Seq,
			errorText(e),
			e.InvocationID,
		)
	}
	if err != nil {
		return fmt.Errorf("write event: update invocation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write event: commit: %w", err)
	}
	return nil
}

func errorText(e engine.Event) string {
	if e.Error != "" {
		return e.Error
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// WritePlan records the fingerprint and description of a compiled plan.
// A recompiled class replaces its previous row.
func (s *Store) WritePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (class, fingerprint, description)
		VALUES (?, ?, ?)
		ON CONFLICT(class) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			description = excluded.description
	`,
		p.Class.Name,
		p.Fingerprint(),
		plan.Describe(p),
	)
	if err != nil {
		return fmt.Errorf("write plan %s: %w", p.Class.Name, err)
	}
	return nil
}
