package rules

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactstore/store"
	"github.com/roach88/reactstore/value"
)

func loadCart(t *testing.T) *Program {
	t.Helper()
	p, err := LoadFile(filepath.Join("testdata", "cart.cue"))
	require.NoError(t, err)
	return p
}

func quietStore(initial value.Object) *store.Store {
	return store.New(initial, store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestLoadFile_CompilesRules(t *testing.T) {
	p := loadCart(t)

	require.Len(t, p.Rules, 5)
	keys := make([]string, len(p.Rules))
	for i, r := range p.Rules {
		keys[i] = r.Key
	}
	assert.Equal(t, []string{"count", "total", "limit", "audit", "greeting"}, keys)

	assert.Equal(t, KindMutable, p.Rules[0].Kind)
	assert.Equal(t, []string{"cart.items"}, p.Rules[0].Watch)
	assert.Equal(t, KindPlain, p.Rules[2].Kind)
	assert.Equal(t, "cart holds at most 3 items", p.Rules[2].Message)
	assert.Equal(t, KindAsync, p.Rules[3].Kind)
	assert.True(t, p.Rules[4].Init)
	assert.Equal(t, value.Object{"ui": value.Object{"name": "guest"}}, p.Rules[4].Seed)

	count, ok := value.Lookup(p.Initial, "cart.count")
	require.True(t, ok)
	assert.Equal(t, int64(0), count)
}

func TestLoadDir(t *testing.T) {
	p, err := LoadDir("testdata")
	require.NoError(t, err)
	assert.Len(t, p.Rules, 5)
}

func TestProgram_Emit(t *testing.T) {
	p := loadCart(t)

	delta, err := p.Emit("count", value.Object{
		"cart": value.Object{"items": []any{"a", "b"}, "count": int64(0), "total": int64(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, value.Object{"cart": value.Object{"count": int64(2)}}, delta)

	_, err = p.Emit("missing", value.Object{})
	assert.Error(t, err)
}

func TestProgram_EmitIncompleteState(t *testing.T) {
	p := loadCart(t)
	_, err := p.Emit("count", value.Object{})
	assert.Error(t, err)
}

func TestProgram_FailWhen(t *testing.T) {
	p := loadCart(t)

	fail, err := p.FailWhen("limit", value.Object{"cart": value.Object{"count": int64(4)}})
	require.NoError(t, err)
	assert.True(t, fail)

	fail, err = p.FailWhen("limit", value.Object{"cart": value.Object{"count": int64(1)}})
	require.NoError(t, err)
	assert.False(t, fail)
}

func TestObservers_DriveStore(t *testing.T) {
	p := loadCart(t)
	ctx := context.Background()
	s := quietStore(p.Initial)

	for _, o := range p.Observers() {
		require.NoError(t, s.RegisterObserver(ctx, o, nil))
	}
	assert.Equal(t, []string{"count", "total", "limit", "audit", "greeting"}, s.Keys())

	// seed + init ran at registration
	greeting, ok := value.Lookup(s.State(), "ui.greeting")
	require.True(t, ok)
	assert.Equal(t, "hello guest", greeting)

	require.NoError(t, s.Update(ctx, value.Object{"cart": value.Object{"items": []any{"apple", "pear"}}}))
	require.NoError(t, s.Wait(ctx))

	state := s.State()
	count, _ := value.Lookup(state, "cart.count")
	total, _ := value.Lookup(state, "cart.total")
	checked, _ := value.Lookup(state, "audit.checked")
	assert.Equal(t, int64(2), count)
	assert.Equal(t, int64(10), total)
	assert.Equal(t, true, checked)

	err := s.Update(ctx, value.Object{"cart": value.Object{"items": []any{1, 2, 3, 4}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cart holds at most 3 items")
	var cbErr *store.CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, "limit", cbErr.Key)
	require.NoError(t, s.Wait(ctx))
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "missing state placeholder",
			src:   `rules: {}`,
			field: "state",
		},
		{
			name:  "missing kind",
			src:   "state: _\nrules: r: emit: a: 1",
			field: "kind",
		},
		{
			name:  "unknown kind",
			src:   "state: _\nrules: r: {kind: \"eager\", emit: a: 1}",
			field: "kind",
		},
		{
			name:  "mutable without emit",
			src:   "state: _\nrules: r: kind: \"mutable\"",
			field: "emit",
		},
		{
			name:  "plain without fail_when",
			src:   "state: _\nrules: r: kind: \"plain\"",
			field: "fail_when",
		},
		{
			name:  "init on async",
			src:   "state: _\nrules: r: {kind: \"async\", init: true, emit: a: 1}",
			field: "init",
		},
		{
			name:  "watch not a list",
			src:   "state: _\nrules: r: {kind: \"mutable\", watch: \"a\", emit: a: 1}",
			field: "watch",
		},
		{
			name:  "non-concrete initial",
			src:   "state: _\ninitial: a: int",
			field: "initial",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]byte(tt.src), "test.cue")
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile([]byte("state: _\nrules: {"), "broken.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestCompile_QuotedRuleKey(t *testing.T) {
	p, err := Compile([]byte("state: _\nrules: \"cart-count\": {kind: \"mutable\", emit: a: 1}"), "q.cue")
	require.NoError(t, err)
	require.Len(t, p.Rules, 1)
	assert.Equal(t, "cart-count", p.Rules[0].Key)

	delta, err := p.Emit("cart-count", value.Object{})
	require.NoError(t, err)
	assert.Equal(t, value.Object{"a": int64(1)}, delta)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.cue"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
