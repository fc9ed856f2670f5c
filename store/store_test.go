package store_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactstore/internal/testutil"
	"github.com/roach88/reactstore/observer"
	"github.com/roach88/reactstore/store"
	"github.com/roach88/reactstore/value"
)

// testObserver is a keyed observer whose callbacks are registered by each test.
type testObserver struct {
	observer.Base
}

func newTestObserver(key string) *testObserver {
	p := &testObserver{}
	p.SetKey(key)
	return p
}

func newTestStore(t *testing.T, initial value.Object, opts ...store.Option) *store.Store {
	t.Helper()
	base := []store.Option{
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		store.WithClock(testutil.NewDeterministicClock()),
		store.WithIDGenerator(testutil.NewSequenceIDs("")),
	}
	return store.New(initial, append(base, opts...)...)
}

// countNotifications counts state-changed signals on a fresh subscriber.
func countNotifications(s *store.Store) (*store.Subscriber, func() int) {
	sub := s.CreateSubscriber()
	var mu sync.Mutex
	n := 0
	sub.OnStateChanged(func(value.Object) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	return sub, func() int {
		mu.Lock()
		defer mu.Unlock()
		return n
	}
}

func intAt(t *testing.T, state value.Object, path string) int {
	t.Helper()
	v, ok := value.Lookup(state, path)
	require.True(t, ok, "missing %s", path)
	n, ok := v.(int)
	require.True(t, ok, "%s is %T, not int", path, v)
	return n
}

func TestNew_NilInitialIsEmptyObject(t *testing.T) {
	s := store.New(nil)
	assert.NotNil(t, s.State())
	assert.Empty(t, s.State())
	assert.Equal(t, store.DefaultMaxIterations, s.Config().MaxIterations)
}

func TestNew_Options(t *testing.T) {
	s := store.New(nil, store.WithMaxIterations(5))
	assert.Equal(t, 5, s.Config().MaxIterations)

	s = store.New(nil, store.WithMaxIterations(0))
	assert.Equal(t, store.DefaultMaxIterations, s.Config().MaxIterations)

	s = store.New(nil, store.WithConfig(store.Config{MaxIterations: 42}))
	assert.Equal(t, 42, s.Config().MaxIterations)
}

func TestUpdate_MergePreservesUntouchedBranches(t *testing.T) {
	initial := value.Object{
		"data1": value.Object{"prop1": "a", "prop2": 1},
		"data2": value.Object{"x": 9},
	}
	s := newTestStore(t, initial)
	_, notified := countNotifications(s)

	require.NoError(t, s.Update(context.Background(), value.Object{
		"data1": value.Object{"prop1": "b"},
	}))

	state := s.State()
	prop1, _ := value.Lookup(state, "data1.prop1")
	assert.Equal(t, "b", prop1)
	assert.Equal(t, 1, intAt(t, state, "data1.prop2"))
	assert.True(t, value.Same(initial["data2"], state["data2"]), "data2 must keep its reference")
	assert.Equal(t, 1, notified())

	// The initial tree is never mutated.
	assert.Equal(t, "a", initial["data1"].(value.Object)["prop1"])
}

func TestUpdate_ContainedDeltaIsNoop(t *testing.T) {
	s := newTestStore(t, value.Object{"a": value.Object{"b": 1, "c": 2}})
	_, notified := countNotifications(s)

	p := newTestObserver("watcher")
	plainCalls := 0
	p.RegisterPlain(func(_, _ value.Object) error {
		plainCalls++
		return nil
	})
	require.NoError(t, s.RegisterObserver(context.Background(), p, nil))

	before := s.State()
	require.NoError(t, s.Update(context.Background(), value.Object{"a": value.Object{"b": 1}}))
	require.NoError(t, s.Update(context.Background(), value.Object{}))
	require.NoError(t, s.Update(context.Background(), nil))

	assert.True(t, value.Same(before, s.State()), "state reference must not change")
	assert.Zero(t, notified())
	assert.Zero(t, plainCalls)
}

func TestUpdate_DependencyGating(t *testing.T) {
	s := newTestStore(t, value.Object{"x": 1, "y": 1})

	xs, ys := 0, 0
	px := newTestObserver("x-watcher")
	px.RegisterPlain(func(_, _ value.Object) error { xs++; return nil }, value.Select("x"))
	py := newTestObserver("y-watcher")
	py.RegisterPlain(func(_, _ value.Object) error { ys++; return nil }, value.Select("y"))

	ctx := context.Background()
	require.NoError(t, s.RegisterObserver(ctx, px, nil))
	require.NoError(t, s.RegisterObserver(ctx, py, nil))

	require.NoError(t, s.Update(ctx, value.Object{"x": 2}))
	assert.Equal(t, 1, xs)
	assert.Equal(t, 0, ys)

	require.NoError(t, s.Update(ctx, value.Object{"y": 5, "z": 1}))
	assert.Equal(t, 1, xs)
	assert.Equal(t, 1, ys)
}

func TestUpdate_PlainSeesWholeTransition(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0, "b": 0})
	ctx := context.Background()

	derive := newTestObserver("derive")
	derive.RegisterMutable(func(state, _ value.Object) (value.Object, error) {
		return value.Object{"b": state["a"].(int) * 10}, nil
	}, value.Select("a"))

	var gotOld, gotNew value.Object
	watch := newTestObserver("watch")
	watch.RegisterPlain(func(state, old value.Object) error {
		gotNew, gotOld = state, old
		return nil
	}, value.Select("b"))

	require.NoError(t, s.RegisterObserver(ctx, derive, nil))
	require.NoError(t, s.RegisterObserver(ctx, watch, nil))
	require.NoError(t, s.Update(ctx, value.Object{"a": 3}))

	assert.Equal(t, 0, intAt(t, gotOld, "b"))
	assert.Equal(t, 30, intAt(t, gotNew, "b"))
	assert.True(t, value.Same(gotNew, s.State()))
}

func TestUpdate_MutableChainConverges(t *testing.T) {
	log := &testutil.CycleLog{}
	s := newTestStore(t, value.Object{"a": 0, "b": 0, "c": 0}, store.WithRecorder(log))
	_, notified := countNotifications(s)
	ctx := context.Background()

	a := newTestObserver("a-to-b")
	a.RegisterMutable(func(state, _ value.Object) (value.Object, error) {
		return value.Object{"b": state["a"].(int) + 1}, nil
	}, value.Select("a"))
	b := newTestObserver("b-to-c")
	b.RegisterMutable(func(state, _ value.Object) (value.Object, error) {
		return value.Object{"c": state["b"].(int) + 1}, nil
	}, value.Select("b"))

	require.NoError(t, s.RegisterObserver(ctx, a, nil))
	require.NoError(t, s.RegisterObserver(ctx, b, nil))
	require.NoError(t, s.Update(ctx, value.Object{"a": 1}))

	state := s.State()
	assert.Equal(t, 1, intAt(t, state, "a"))
	assert.Equal(t, 2, intAt(t, state, "b"))
	assert.Equal(t, 3, intAt(t, state, "c"))
	assert.Equal(t, 1, notified())

	report, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, store.OutcomeApplied, report.Outcome)
	assert.Equal(t, 2, report.Iterations)
	assert.Equal(t, []store.Firing{
		{Key: "a-to-b", Phase: store.PhaseMutable},
		{Key: "b-to-c", Phase: store.PhaseMutable},
	}, report.Fired)
}

func TestUpdate_CyclicMutablesHitIterationLimit(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0, "b": 0}, store.WithMaxIterations(10))
	_, notified := countNotifications(s)
	ctx := context.Background()

	ping := newTestObserver("ping")
	ping.RegisterMutable(func(state, _ value.Object) (value.Object, error) {
		return value.Object{"b": state["b"].(int) + 1}, nil
	}, value.Select("a"))
	pong := newTestObserver("pong")
	pong.RegisterMutable(func(state, _ value.Object) (value.Object, error) {
		return value.Object{"a": state["a"].(int) + 1}, nil
	}, value.Select("b"))

	require.NoError(t, s.RegisterObserver(ctx, ping, nil))
	require.NoError(t, s.RegisterObserver(ctx, pong, nil))

	before := s.State()
	err := s.Update(ctx, value.Object{"a": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrIterationLimit)
	assert.True(t, store.IsIterationLimitError(err))

	var limitErr *store.IterationLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 10, limitErr.Limit)
	assert.Equal(t, 11, limitErr.Iterations)

	assert.True(t, value.Same(before, s.State()), "nothing is committed")
	assert.Zero(t, notified())

	// The store stays usable.
	require.NoError(t, s.Update(ctx, value.Object{"c": 1}))
	assert.Equal(t, 1, intAt(t, s.State(), "c"))
}

func TestUpdate_MutableErrorKeepsPreviousState(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0})
	_, notified := countNotifications(s)
	ctx := context.Background()

	boom := errors.New("boom")
	p := newTestObserver("failing")
	p.RegisterMutable(func(_, _ value.Object) (value.Object, error) {
		return nil, boom
	}, value.Select("a"))
	require.NoError(t, s.RegisterObserver(ctx, p, nil))

	before := s.State()
	err := s.Update(ctx, value.Object{"a": 1})
	require.ErrorIs(t, err, boom)

	var cbErr *store.CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, "failing", cbErr.Key)
	assert.Equal(t, store.PhaseMutable, cbErr.Phase)
	assert.True(t, value.Same(before, s.State()))
	assert.Zero(t, notified())
}

func TestUpdate_PlainErrorCommitsWithoutNotifying(t *testing.T) {
	log := &testutil.CycleLog{}
	s := newTestStore(t, value.Object{"a": 0}, store.WithRecorder(log))
	_, notified := countNotifications(s)
	ctx := context.Background()

	p := newTestObserver("failing")
	p.RegisterPlain(func(_, _ value.Object) error {
		return errors.New("render failed")
	}, value.Select("a"))
	require.NoError(t, s.RegisterObserver(ctx, p, nil))

	err := s.Update(ctx, value.Object{"a": 1})
	require.Error(t, err)

	var cbErr *store.CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, store.PhasePlain, cbErr.Phase)
	assert.Equal(t, 1, intAt(t, s.State(), "a"))
	assert.Zero(t, notified())

	report, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, store.OutcomeFailed, report.Outcome)
	assert.True(t, report.Committed)
	assert.Error(t, report.Err)
}

func TestUpdate_ReentrantUpdateIsQueued(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0, "b": 0})
	sub := s.CreateSubscriber()
	var seen []int
	sub.OnStateChanged(func(state value.Object) {
		seen = append(seen, state["b"].(int))
	})
	ctx := context.Background()

	p := newTestObserver("reentrant")
	var inner error
	p.RegisterPlain(func(state, _ value.Object) error {
		inner = p.Update(ctx, value.Object{"b": state["a"].(int) * 10})
		// The queued update has not been applied yet.
		assert.Equal(t, 0, s.State()["b"])
		return nil
	}, value.Select("a"))
	require.NoError(t, s.RegisterObserver(ctx, p, nil))

	require.NoError(t, s.Update(ctx, value.Object{"a": 2}))
	require.NoError(t, inner)

	assert.Equal(t, 20, intAt(t, s.State(), "b"))
	assert.Equal(t, []int{0, 20}, seen)
}

func TestUpdate_CommittedFailureKeepsQueuedUpdates(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0})
	ctx := context.Background()

	p := newTestObserver("queue-then-fail")
	p.RegisterPlain(func(_, _ value.Object) error {
		require.NoError(t, p.Update(ctx, value.Object{"queued": true}))
		return errors.New("fail")
	}, value.Select("a"))
	require.NoError(t, s.RegisterObserver(ctx, p, nil))

	err := s.Update(ctx, value.Object{"a": 1})
	var cbErr *store.CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, store.PhasePlain, cbErr.Phase)
	assert.NotErrorIs(t, err, store.ErrUpdateDropped)

	// The failed cycle committed, so the update it queued still ran.
	assert.Equal(t, true, s.State()["queued"])
	assert.Equal(t, 1, intAt(t, s.State(), "a"))
}

func TestUpdate_MutableFailureReportsDroppedUpdates(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0})
	ctx := context.Background()

	p := newTestObserver("queue-then-abort")
	p.RegisterMutable(func(_, _ value.Object) (value.Object, error) {
		require.NoError(t, p.Update(ctx, value.Object{"queued": true}))
		return nil, errors.New("fail")
	}, value.Select("a"))
	require.NoError(t, s.RegisterObserver(ctx, p, nil))

	err := s.Update(ctx, value.Object{"a": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUpdateDropped)
	assert.Contains(t, err.Error(), "1 update(s) requested by callbacks")

	_, ok := s.State()["queued"]
	assert.False(t, ok)
	assert.Equal(t, 0, intAt(t, s.State(), "a"))

	require.NoError(t, s.Update(ctx, value.Object{"b": 1}))
	assert.Equal(t, 1, intAt(t, s.State(), "b"))
}

func TestUpdate_PanicReleasesStore(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0})
	ctx := context.Background()

	p := newTestObserver("panics")
	p.RegisterPlain(func(_, _ value.Object) error {
		panic("callback bug")
	}, value.Select("a"))
	require.NoError(t, s.RegisterObserver(ctx, p, nil))

	assert.Panics(t, func() {
		_ = s.Update(ctx, value.Object{"a": 1})
	})

	require.NoError(t, s.Update(ctx, value.Object{"b": 1}))
	assert.Equal(t, 1, intAt(t, s.State(), "b"))
}

func TestUpdate_ConcurrentCallersAllApplied(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	const writers = 32

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, value.Object{fmt.Sprintf("k%d", i): i}))
		}(i)
	}
	wg.Wait()

	state := s.State()
	require.Len(t, state, writers)
	for i := 0; i < writers; i++ {
		assert.Equal(t, i, state[fmt.Sprintf("k%d", i)])
	}
}

func TestUpdate_CanceledContext(t *testing.T) {
	s := newTestStore(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Update(ctx, value.Object{"a": 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.State())
}

func TestUpdate_AsyncCallbacks(t *testing.T) {
	s := newTestStore(t, value.Object{"query": ""})
	ctx := context.Background()

	p := newTestObserver("search")
	p.RegisterAsync(func(ctx context.Context, state, _ value.Object) error {
		q := state["query"].(string)
		return p.Update(ctx, value.Object{"results": []any{q + "-1", q + "-2"}})
	}, value.Select("query"))
	require.NoError(t, s.RegisterObserver(ctx, p, nil))

	require.NoError(t, s.Update(ctx, value.Object{"query": "go"}))
	require.NoError(t, s.Wait(ctx))

	assert.Equal(t, []any{"go-1", "go-2"}, s.State()["results"])
}

func TestWait_ReturnsAsyncErrorsOnce(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0})
	ctx := context.Background()

	boom := errors.New("fetch failed")
	p := newTestObserver("fetcher")
	p.RegisterAsync(func(context.Context, value.Object, value.Object) error {
		return boom
	}, value.Select("a"))
	require.NoError(t, s.RegisterObserver(ctx, p, nil))

	require.NoError(t, s.Update(ctx, value.Object{"a": 1}), "async errors do not fail the update")

	err := s.Wait(ctx)
	require.ErrorIs(t, err, boom)
	var cbErr *store.CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, "fetcher", cbErr.Key)
	assert.Equal(t, store.PhaseAsync, cbErr.Phase)

	assert.NoError(t, s.Wait(ctx))
}

func TestWait_HonorsContext(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0})
	ctx := context.Background()

	release := make(chan struct{})
	p := newTestObserver("slow")
	p.RegisterAsync(func(context.Context, value.Object, value.Object) error {
		<-release
		return nil
	}, value.Select("a"))
	require.NoError(t, s.RegisterObserver(ctx, p, nil))
	require.NoError(t, s.Update(ctx, value.Object{"a": 1}))

	waitCtx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.Wait(waitCtx), context.Canceled)

	close(release)
	assert.NoError(t, s.Wait(ctx))
}

func TestRegisterObserver_Initialization(t *testing.T) {
	s := newTestStore(t, nil)
	sub, notified := countNotifications(s)
	ctx := context.Background()

	p := newTestObserver("session")
	p.SetInitialState(func(value.Object) value.Object {
		return value.Object{"counter": 10}
	})
	p.RegisterMutableInitializer(func(state, old value.Object) (value.Object, error) {
		assert.True(t, value.Same(state, old))
		return value.Object{"ready": true}, nil
	})
	plainCalls := 0
	p.RegisterPlain(func(_, _ value.Object) error {
		plainCalls++
		return nil
	})
	var initState, initOld value.Object
	p.RegisterInitializer(func(state, old value.Object) error {
		initState, initOld = state, old
		return nil
	})
	asyncInit := make(chan value.Object, 1)
	p.RegisterAsyncInitializer(func(_ context.Context, state, _ value.Object) error {
		asyncInit <- state
		return nil
	})

	require.NoError(t, sub.RegisterObserver(ctx, p))
	require.NoError(t, s.Wait(ctx))

	// The initial state is applied without dispatch; only the initializer
	// delta runs a cycle.
	assert.Equal(t, 1, notified())
	assert.Equal(t, 1, plainCalls)

	assert.Equal(t, value.Object{"counter": 10, "ready": true}, s.State())
	assert.Equal(t, value.Object{"counter": 10}, initOld)
	assert.True(t, value.Same(s.State(), initState))
	assert.True(t, value.Same(s.State(), <-asyncInit))
	assert.True(t, value.Same(s.State(), p.State()))
}

func TestRegisterObserver_SameKeyIsNoop(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	first := newTestObserver("settings")
	second := newTestObserver("settings")
	require.NoError(t, s.RegisterObserver(ctx, first, nil))
	require.NoError(t, s.RegisterObserver(ctx, second, nil))

	assert.Equal(t, []string{"settings"}, s.Keys())
	got, ok := s.Observer("settings")
	require.True(t, ok)
	assert.Same(t, first, got)

	// The duplicate was never initialized.
	assert.ErrorIs(t, second.Update(ctx, value.Object{"a": 1}), observer.ErrNotInitialized)
	require.NoError(t, first.Update(ctx, value.Object{"a": 1}))
	assert.Equal(t, 1, intAt(t, s.State(), "a"))
}

func TestRegisterObserver_InitializerError(t *testing.T) {
	s := newTestStore(t, nil)
	p := newTestObserver("broken")
	p.RegisterInitializer(func(_, _ value.Object) error {
		return errors.New("no config")
	})

	err := s.RegisterObserver(context.Background(), p, nil)
	var cbErr *store.CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, store.PhaseInit, cbErr.Phase)
	assert.Equal(t, "broken", cbErr.Key)
}

func TestRegisterObserver_FailedInitializeLeavesNoEntry(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0})
	ctx := context.Background()

	calls := 0
	p := newTestObserver("bound-elsewhere")
	p.RegisterPlain(func(_, _ value.Object) error { calls++; return nil })
	require.NoError(t, p.Initialize(value.Object{}, nil, nil))

	err := s.RegisterObserver(ctx, p, nil)
	require.ErrorIs(t, err, observer.ErrAlreadyInitialized)

	assert.Empty(t, s.Keys())
	_, ok := s.Observer("bound-elsewhere")
	assert.False(t, ok)

	require.NoError(t, s.Update(ctx, value.Object{"a": 1}))
	assert.Zero(t, calls, "an observer that failed to initialize must not be dispatched to")
}

func TestRegisterObserver_MirrorSeesStateAtInsertion(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 1})
	p := newTestObserver("mirror")
	require.NoError(t, s.RegisterObserver(context.Background(), p, nil))

	assert.Equal(t, s.State(), p.State())
}

func TestRegisterObserver_TypeNameKey(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.RegisterObserver(context.Background(), &testObserver{}, nil))
	require.NoError(t, s.RegisterObserver(context.Background(), &testObserver{}, nil))

	assert.Equal(t, []string{"github.com/roach88/reactstore/store_test.testObserver"}, s.Keys())
}

func TestUnregisterObserver(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 0})
	ctx := context.Background()

	calls := 0
	p := newTestObserver("gone")
	p.RegisterPlain(func(_, _ value.Object) error { calls++; return nil })
	require.NoError(t, s.RegisterObserver(ctx, p, nil))

	s.UnregisterObserver(p)
	s.UnregisterObserver(p)
	assert.Empty(t, s.Keys())
	assert.False(t, p.Disposed(), "unregistering does not dispose")

	require.NoError(t, s.Update(ctx, value.Object{"a": 1}))
	assert.Zero(t, calls)
}

func TestSubscribers_ShareObserverUntilLastRemoved(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	destroyed := 0
	newShared := func() *testObserver {
		p := newTestObserver("shared")
		p.RegisterDestructor(func() error {
			destroyed++
			return nil
		})
		return p
	}

	sub1 := s.CreateSubscriber()
	sub2 := s.CreateSubscriber()
	assert.Equal(t, "sub-1", sub1.ID())
	assert.Equal(t, "sub-2", sub2.ID())

	first := newShared()
	require.NoError(t, sub1.RegisterObserver(ctx, first))
	require.NoError(t, sub2.RegisterObserver(ctx, newShared()))

	got, ok := s.Observer("shared")
	require.True(t, ok)
	assert.Same(t, first, got)

	require.NoError(t, s.RemoveSubscriber(sub1))
	assert.False(t, first.Disposed())
	assert.Equal(t, []string{"shared"}, s.Keys())
	assert.Equal(t, 1, s.Subscribers())

	require.NoError(t, s.RemoveSubscriber(sub2))
	assert.True(t, first.Disposed())
	assert.Equal(t, 1, destroyed)
	assert.Empty(t, s.Keys())

	assert.ErrorIs(t, s.RemoveSubscriber(sub2), store.ErrSubscriberNotFound)
	assert.Equal(t, 1, destroyed, "destructors run exactly once")
}

func TestRemoveSubscriber_DestructorError(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	sub := s.CreateSubscriber()
	p := newTestObserver("leaky")
	p.RegisterDestructor(func() error { return errors.New("close failed") })
	require.NoError(t, sub.RegisterObserver(ctx, p))

	err := s.RemoveSubscriber(sub)
	var cbErr *store.CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, store.PhaseDestructor, cbErr.Phase)
	assert.Empty(t, s.Keys())
}

func TestSubscriber_StateAndOff(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	sub := s.CreateSubscriber()

	calls := 0
	h := sub.OnStateChanged(func(value.Object) { calls++ })
	require.NoError(t, sub.Update(ctx, value.Object{"a": 1}))
	assert.Equal(t, 1, calls)
	assert.True(t, value.Same(s.State(), sub.State()))

	sub.OffStateChanged(h)
	require.NoError(t, sub.Update(ctx, value.Object{"a": 2}))
	assert.Equal(t, 1, calls)
	assert.Zero(t, sub.StateChanged().Len())
}

func TestSubscriber_LocalStateChanged(t *testing.T) {
	s := newTestStore(t, value.Object{"a": 1})
	ctx := context.Background()

	sub := s.CreateSubscriber()
	other := s.CreateSubscriber()

	var got []store.LocalChange
	sub.LocalStateChanged().On(func(c store.LocalChange) { got = append(got, c) })
	otherCalls := 0
	other.LocalStateChanged().On(func(store.LocalChange) { otherCalls++ })

	p := newTestObserver("menu")
	require.NoError(t, sub.RegisterObserver(ctx, p))

	before := s.State()
	p.UpdateLocal(value.Object{"open": true})

	require.Len(t, got, 1)
	assert.Equal(t, "menu", got[0].Key)
	assert.Equal(t, value.Object{"open": true}, got[0].State)
	assert.Zero(t, otherCalls)
	assert.True(t, value.Same(before, s.State()), "local state never touches shared state")
}

func TestRecorder_ReportsEveryCycle(t *testing.T) {
	log := &testutil.CycleLog{}
	s := newTestStore(t, nil, store.WithRecorder(log))
	ctx := context.Background()
	s.CreateSubscriber()

	p := newTestObserver("view")
	p.RegisterPlain(func(_, _ value.Object) error { return nil }, value.Select("a"))
	require.NoError(t, s.RegisterObserver(ctx, p, nil))

	require.NoError(t, s.Update(ctx, value.Object{"a": 1}))
	require.NoError(t, s.Update(ctx, value.Object{"a": 1}))

	reports := log.Reports()
	require.Len(t, reports, 2)
	assert.Equal(t, int64(1), reports[0].Seq)
	assert.Equal(t, store.OutcomeApplied, reports[0].Outcome)
	assert.Equal(t, 1, reports[0].Count(store.PhasePlain))
	assert.Equal(t, 1, reports[0].Notified)
	assert.Equal(t, int64(2), reports[1].Seq)
	assert.Equal(t, store.OutcomeNoop, reports[1].Outcome)
	assert.Empty(t, reports[1].Fired)
}

func TestRecorder_ErrorPropagates(t *testing.T) {
	log := &testutil.CycleLog{Fail: errors.New("journal down")}
	s := newTestStore(t, nil, store.WithRecorder(log))

	err := s.Update(context.Background(), value.Object{"a": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal down")
	assert.Equal(t, 1, intAt(t, s.State(), "a"), "the cycle itself was applied")
}

func TestMultiRecorder(t *testing.T) {
	a, b := &testutil.CycleLog{}, &testutil.CycleLog{Fail: errors.New("b failed")}
	rec := store.MultiRecorder(a, nil, b)

	err := rec.RecordCycle(context.Background(), store.CycleReport{Seq: 7})
	assert.EqualError(t, err, "b failed")
	assert.Len(t, a.Reports(), 1)
	assert.Len(t, b.Reports(), 1)

	var fn store.RecorderFunc = func(_ context.Context, r store.CycleReport) error {
		assert.Equal(t, int64(9), r.Seq)
		return nil
	}
	assert.NoError(t, fn.RecordCycle(context.Background(), store.CycleReport{Seq: 9}))
}

func TestObserverMirror_FollowsStateUntilDisposed(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	sub := s.CreateSubscriber()

	p := newTestObserver("mirror")
	require.NoError(t, sub.RegisterObserver(ctx, p))

	require.NoError(t, s.Update(ctx, value.Object{"a": 1}))
	assert.True(t, value.Same(s.State(), p.State()))

	snapshot := p.State()
	require.NoError(t, s.RemoveSubscriber(sub))
	require.NoError(t, s.Update(ctx, value.Object{"a": 2}))
	assert.True(t, value.Same(snapshot, p.State()))
}

func TestRoot_CreateOnce(t *testing.T) {
	var root store.Root
	assert.Nil(t, root.Get())

	first := root.Create(value.Object{"a": 1})
	second := root.Create(value.Object{"a": 2})
	assert.Same(t, first, second)
	assert.Same(t, first, root.Get())
	assert.Equal(t, 1, intAt(t, root.Get().State(), "a"))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("max_iterations: 50\n"), 0o644))
	cfg, err := store.LoadConfig(good)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.MaxIterations)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("max_iterations: 0\n"), 0o644))
	cfg, err = store.LoadConfig(empty)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultMaxIterations, cfg.MaxIterations)

	typo := filepath.Join(dir, "typo.yaml")
	require.NoError(t, os.WriteFile(typo, []byte("max_iteration: 5\n"), 0o644))
	_, err = store.LoadConfig(typo)
	assert.Error(t, err)

	_, err = store.LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, store.DefaultConfig().Validate())
	assert.Error(t, store.Config{}.Validate())
}
