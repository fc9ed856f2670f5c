package harness

import (
	"github.com/roach88/reactstore/store"
	"github.com/roach88/reactstore/value"
)

// TraceEvent is one update cycle as it appears in the trace.
type TraceEvent struct {
	Seq        int64        `json:"seq"`
	Outcome    string       `json:"outcome"`
	Delta      value.Object `json:"delta"`
	Iterations int          `json:"iterations"`
	Fired      []string     `json:"fired"` // "key:phase"
	Notified   int          `json:"notified"`
	Committed  bool         `json:"committed"`
	Error      string       `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every update behaved as declared and every assertion
	// matched.
	Pass bool `json:"pass"`

	// Trace holds every cycle in seq order, including cycles started by
	// initializers and async callbacks.
	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// State is the store state after all updates and async work settled.
	State value.Object `json:"state"`

	// Notifications counts state-changed events across all subscribers.
	Notifications int `json:"notifications"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  value.Object{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Event looks up the cycle with the given seq.
func (r *Result) Event(seq int64) (TraceEvent, bool) {
	for _, ev := range r.Trace {
		if ev.Seq == seq {
			return ev, true
		}
	}
	return TraceEvent{}, false
}

func traceEvent(rep store.CycleReport) TraceEvent {
	fired := make([]string, len(rep.Fired))
	for i, f := range rep.Fired {
		fired[i] = f.Key + ":" + string(f.Phase)
	}
	delta := rep.Delta
	if delta == nil {
		delta = value.Object{}
	}
	ev := TraceEvent{
		Seq:        rep.Seq,
		Outcome:    string(rep.Outcome),
		Delta:      delta,
		Iterations: rep.Iterations,
		Fired:      fired,
		Notified:   rep.Notified,
		Committed:  rep.Committed,
	}
	if rep.Err != nil {
		ev.Error = rep.Err.Error()
	}
	return ev
}
