package journal

import (
	"context"
	"fmt"

	"github.com/roach88/reactstore/store"
	"github.com/roach88/reactstore/value"
)

var _ store.Recorder = (*Journal)(nil)

// RecordCycle writes r and its firings in one transaction.
// A cycle whose seq is already journaled is ignored.
func (j *Journal) RecordCycle(ctx context.Context, r store.CycleReport) error {
	delta, err := value.MarshalCanonical(r.Delta)
	if err != nil {
		return fmt.Errorf("record cycle %d: marshal delta: %w", r.Seq, err)
	}

	errText := ""
	if r.Err != nil {
		errText = r.Err.Error()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record cycle %d: begin: %w", r.Seq, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO cycles (seq, delta, outcome, iterations, notified, committed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		r.Seq,
		string(delta),
		string(r.Outcome),
		r.Iterations,
		r.Notified,
		boolToInt(r.Committed),
		errText,
	)
	if err != nil {
		return fmt.Errorf("record cycle %d: %w", r.Seq, err)
	}

	// Duplicate seq: keep the first row and its firings.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tx.Commit()
	}

	for i, f := range r.Fired {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO firings (seq, ordinal, observer_key, phase)
			VALUES (?, ?, ?, ?)
		`, r.Seq, i, f.Key, string(f.Phase)); err != nil {
			return fmt.Errorf("record firing %d of cycle %d: %w", i, r.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record cycle %d: commit: %w", r.Seq, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
