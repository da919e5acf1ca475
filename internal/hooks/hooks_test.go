package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looplj/dochooks/internal/docstore"
)

func TestList_OrderAndSnapshot(t *testing.T) {
	var l List[AfterFunc[InsertedEvent]]

	var order []int

	for i := range 3 {
		l.Add(func(context.Context, InsertedEvent) error {
			order = append(order, i)
			return nil
		})
	}

	snap := l.Snapshot()
	l.Add(func(context.Context, InsertedEvent) error {
		order = append(order, 99)
		return nil
	})

	After(context.Background(), "c", "insert", snap, InsertedEvent{})
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, 4, l.Len())
}

func TestList_ConcurrentAdd(t *testing.T) {
	var l List[ReadBeforeFunc]

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			l.Add(func(context.Context, *FindEvent) error { return nil })
			_ = l.Snapshot()
		}()
	}

	wg.Wait()
	assert.Equal(t, 50, l.Len())
}

func TestBefore(t *testing.T) {
	ctx := context.Background()

	veto := func(context.Context, *InsertEvent) (Action, error) { return ActionVeto, nil }
	fail := func(context.Context, *InsertEvent) (Action, error) { return ActionContinue, errors.New("bad") }
	boom := func(context.Context, *InsertEvent) (Action, error) { panic("boom") }

	t.Run("all hooks run after a veto", func(t *testing.T) {
		calls := 0
		count := func(context.Context, *InsertEvent) (Action, error) {
			calls++
			return ActionContinue, nil
		}

		vetoed, err := Before(ctx, Invoker{Policy: PolicyPropagate}, "insert",
			[]BeforeFunc[InsertEvent]{count, veto, count}, &InsertEvent{})
		require.NoError(t, err)
		assert.True(t, vetoed)
		assert.Equal(t, 2, calls)
	})

	t.Run("hooks may mutate the event", func(t *testing.T) {
		stamp := func(_ context.Context, e *InsertEvent) (Action, error) {
			e.Document["stamped"] = true
			return ActionContinue, nil
		}

		event := &InsertEvent{Document: docstore.Document{"a": 1}}
		vetoed, err := Before(ctx, Invoker{}, "insert", []BeforeFunc[InsertEvent]{stamp}, event)
		require.NoError(t, err)
		assert.False(t, vetoed)
		assert.Equal(t, true, event.Document["stamped"])
	})

	t.Run("propagate", func(t *testing.T) {
		_, err := Before(ctx, Invoker{Collection: "c", Policy: PolicyPropagate}, "insert",
			[]BeforeFunc[InsertEvent]{fail}, &InsertEvent{})

		var hookErr *HookError
		require.ErrorAs(t, err, &hookErr)
		assert.Equal(t, "c", hookErr.Collection)
		assert.Equal(t, 0, hookErr.Index)
		assert.True(t, IsHookError(err))
	})

	t.Run("panic propagates as error", func(t *testing.T) {
		_, err := Before(ctx, Invoker{Policy: PolicyPropagate}, "insert",
			[]BeforeFunc[InsertEvent]{boom}, &InsertEvent{})

		var panicErr *PanicError
		require.ErrorAs(t, err, &panicErr)
		assert.Equal(t, "boom", panicErr.Value)
	})

	t.Run("veto policy", func(t *testing.T) {
		vetoed, err := Before(ctx, Invoker{Policy: PolicyVeto}, "insert",
			[]BeforeFunc[InsertEvent]{fail}, &InsertEvent{})
		require.NoError(t, err)
		assert.True(t, vetoed)
	})

	t.Run("ignore policy", func(t *testing.T) {
		vetoed, err := Before(ctx, Invoker{Policy: PolicyIgnore}, "insert",
			[]BeforeFunc[InsertEvent]{boom, fail}, &InsertEvent{})
		require.NoError(t, err)
		assert.False(t, vetoed)
	})
}

func TestBeforeRead(t *testing.T) {
	fail := func(context.Context, *FindEvent) error { return errors.New("bad") }

	err := BeforeRead(context.Background(), Invoker{Policy: PolicyPropagate}, "find", []ReadBeforeFunc{fail}, &FindEvent{})
	assert.True(t, IsHookError(err))

	err = BeforeRead(context.Background(), Invoker{Policy: PolicyVeto}, "find", []ReadBeforeFunc{fail}, &FindEvent{})
	assert.NoError(t, err)
}

func TestAfter_FailuresIsolated(t *testing.T) {
	called := false

	failed := After(context.Background(), "c", "remove", []AfterFunc[RemovedEvent]{
		func(context.Context, RemovedEvent) error { panic("boom") },
		func(context.Context, RemovedEvent) error { return errors.New("bad") },
		func(context.Context, RemovedEvent) error {
			called = true
			return nil
		},
	}, RemovedEvent{})

	assert.Equal(t, 2, failed)
	assert.True(t, called)
}

func TestParseErrorPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ErrorPolicy
		wantErr bool
	}{
		{in: "", want: PolicyPropagate},
		{in: "propagate", want: PolicyPropagate},
		{in: " VETO ", want: PolicyVeto},
		{in: "ignore", want: PolicyIgnore},
		{in: "explode", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseErrorPolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
