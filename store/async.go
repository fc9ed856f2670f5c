package store

import (
	"context"
	"errors"
	"sync"
)

// tracker counts in-flight async callbacks and collects their errors.
//
// sync.WaitGroup is not used because Wait may be called while callbacks are
// still launching new ones; idle is replaced each time the count leaves zero.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{} // closed while n == 0
	errs []error
}

func newTracker() *tracker {
	idle := make(chan struct{})
	close(idle)
	return &tracker{idle: idle}
}

func (t *tracker) add() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
}

func (t *tracker) done(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.errs = append(t.errs, err)
	}
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

// wait blocks until no callback is in flight, then returns and clears the
// collected errors.
func (t *tracker) wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
	}

	t.mu.Lock()
	errs := t.errs
	t.errs = nil
	t.mu.Unlock()
	return errors.Join(errs...)
}
