package store

import (
	"context"
	"errors"

	"github.com/roach88/reactstore/value"
)

// Outcome classifies how an update cycle ended.
type Outcome string

const (
	// OutcomeApplied means the merged state was committed and dispatched.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoop means the delta was already contained in the state.
	OutcomeNoop Outcome = "noop"
	// OutcomeFailed means a callback or the iteration limit aborted the cycle.
	OutcomeFailed Outcome = "failed"
)

// Firing records one callback invocation during a cycle.
type Firing struct {
	Key   string `json:"key"`
	Phase Phase  `json:"phase"`
}

// CycleReport describes one update cycle.
type CycleReport struct {
	Seq        int64        `json:"seq"`
	Delta      value.Object `json:"delta"`
	Outcome    Outcome      `json:"outcome"`
	Iterations int          `json:"iterations"` // mutable passes that produced a delta
	Fired      []Firing     `json:"fired,omitempty"`
	Notified   int          `json:"notified"`
	Committed  bool         `json:"committed"`
	Err        error        `json:"-"`
}

// Count returns how many callbacks fired in phase p.
func (r CycleReport) Count(p Phase) int {
	n := 0
	for _, f := range r.Fired {
		if f.Phase == p {
			n++
		}
	}
	return n
}

func (r *CycleReport) fire(key string, p Phase) {
	r.Fired = append(r.Fired, Firing{Key: key, Phase: p})
}

// Recorder receives a report for every update cycle, on the goroutine that
// ran the cycle. A recorder error is returned from Update.
type Recorder interface {
	RecordCycle(ctx context.Context, r CycleReport) error
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, r CycleReport) error

// RecordCycle calls f.
func (f RecorderFunc) RecordCycle(ctx context.Context, r CycleReport) error {
	return f(ctx, r)
}

// MultiRecorder fans a report out to every recorder in order and joins their
// errors. Nil recorders are skipped.
func MultiRecorder(recorders ...Recorder) Recorder {
	return multiRecorder(recorders)
}

type multiRecorder []Recorder

func (m multiRecorder) RecordCycle(ctx context.Context, r CycleReport) error {
	var errs []error
	for _, rec := range m {
		if rec == nil {
			continue
		}
		if err := rec.RecordCycle(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
