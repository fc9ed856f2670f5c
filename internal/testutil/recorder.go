package testutil

import (
	"context"
	"sync"

	"github.com/roach88/reactstore/store"
)

// CycleLog is a store.Recorder that keeps every report in memory.
// Set Fail to make RecordCycle return an error.
type CycleLog struct {
	mu      sync.Mutex
	reports []store.CycleReport

	Fail error
}

// RecordCycle appends r.
func (l *CycleLog) RecordCycle(_ context.Context, r store.CycleReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, r)
	return l.Fail
}

// Reports returns a copy of the recorded reports in cycle order.
func (l *CycleLog) Reports() []store.CycleReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]store.CycleReport(nil), l.reports...)
}

// Last returns the most recent report. ok is false when nothing was recorded.
func (l *CycleLog) Last() (store.CycleReport, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.reports) == 0 {
		return store.CycleReport{}, false
	}
	return l.reports[len(l.reports)-1], true
}

// Outcomes returns the outcome of every recorded cycle.
func (l *CycleLog) Outcomes() []store.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]store.Outcome, len(l.reports))
	for i, r := range l.reports {
		out[i] = r.Outcome
	}
	return out
}
