package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/reactstore/store"
)

// ErrCycleNotFound is returned by Cycle for an unknown seq.
var ErrCycleNotFound = errors.New("journal: cycle not found")

// Entry is one journaled cycle.
type Entry struct {
	Seq        int64          `json:"seq"`
	Delta      string         `json:"delta"` // canonical JSON
	Outcome    store.Outcome  `json:"outcome"`
	Iterations int            `json:"iterations"`
	Notified   int            `json:"notified"`
	Committed  bool           `json:"committed"`
	Error      string         `json:"error,omitempty"`
	Fired      []store.Firing `json:"fired"`
}

// Cycles returns every journaled cycle ordered by seq.
// Returns an empty slice (not nil) for an empty journal.
func (j *Journal) Cycles(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, delta, outcome, iterations, notified, committed, error
		FROM cycles
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}

	firings, err := j.firingsBySeq(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Fired = firings[entries[i].Seq]
		if entries[i].Fired == nil {
			entries[i].Fired = []store.Firing{}
		}
	}
	return entries, nil
}

// Cycle returns the cycle with the given seq, or ErrCycleNotFound.
func (j *Journal) Cycle(ctx context.Context, seq int64) (Entry, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT seq, delta, outcome, iterations, notified, committed, error
		FROM cycles
		WHERE seq = ?
	`, seq)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("cycle %d: %w", seq, ErrCycleNotFound)
	}
	if err != nil {
		return Entry{}, err
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT observer_key, phase
		FROM firings
		WHERE seq = ?
		ORDER BY ordinal ASC
	`, seq)
	if err != nil {
		return Entry{}, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	e.Fired = []store.Firing{}
	for rows.Next() {
		var f store.Firing
		var phase string
		if err := rows.Scan(&f.Key, &phase); err != nil {
			return Entry{}, fmt.Errorf("scan firing: %w", err)
		}
		f.Phase = store.Phase(phase)
		e.Fired = append(e.Fired, f)
	}
	if err := rows.Err(); err != nil {
		return Entry{}, fmt.Errorf("iterate firings: %w", err)
	}
	return e, nil
}

// FiringCounts returns how often the observer with key fired, per phase.
func (j *Journal) FiringCounts(ctx context.Context, key string) (map[store.Phase]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT phase, COUNT(*)
		FROM firings
		WHERE observer_key = ?
		GROUP BY phase
		ORDER BY phase ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query firing counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[store.Phase]int)
	for rows.Next() {
		var phase string
		var n int
		if err := rows.Scan(&phase, &n); err != nil {
			return nil, fmt.Errorf("scan firing count: %w", err)
		}
		counts[store.Phase(phase)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firing counts: %w", err)
	}
	return counts, nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
// Pass it to store.NewClockFrom to resume numbering.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM cycles`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

func (j *Journal) firingsBySeq(ctx context.Context) (map[int64][]store.Firing, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, observer_key, phase
		FROM firings
		ORDER BY seq ASC, ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]store.Firing)
	for rows.Next() {
		var seq int64
		var f store.Firing
		var phase string
		if err := rows.Scan(&seq, &f.Key, &phase); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		f.Phase = store.Phase(phase)
		out[seq] = append(out[seq], f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var outcome string
	var committed int
	if err := s.Scan(&e.Seq, &e.Delta, &outcome, &e.Iterations, &e.Notified, &committed, &e.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan cycle: %w", err)
	}
	e.Outcome = store.Outcome(outcome)
	e.Committed = committed != 0
	return e, nil
}
