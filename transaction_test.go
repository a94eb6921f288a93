package datagate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// tagRecorder records each hook invocation as "hook:tag".
type tagRecorder struct {
	mu    sync.Mutex
	calls []string
	sizes []int
}

func (r *tagRecorder) middleware() *MiddlewareFuncs {
	return NewMiddleware("recorder",
		func(_ context.Context, tag ActionTag, cs ChangeSet) *Status {
			r.add("pro:"+tag.String(), len(cs))
			return nil
		},
		func(_ context.Context, tag ActionTag, cs ChangeSet) *Status {
			r.add("epi:"+tag.String(), len(cs))
			return nil
		})
}

func (r *tagRecorder) add(call string, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	r.sizes = append(r.sizes, size)
}

// TestTransactionCommit tests the full hook sequence around a commit
func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	rec := &tagRecorder{}
	cfg := NewConfigurator()
	require.NoError(t, cfg.Attach(rec.middleware()))

	backend := NewMemoryBackend()
	factory := newTestFactory(cfg.Runner(), backend)

	stored := &Invoice{ID: "old"}
	require.NoError(t, backend.Apply(ctx, ActionCreate, Created(stored)))

	tx := factory.NewTransaction()
	require.True(t, tx.Insert(ctx, &Invoice{ID: "1"}, &Invoice{ID: "2"}).Success())
	require.True(t, tx.Update(ctx, stored, &Invoice{ID: "old", Amount: 9}).Success())
	assert.Len(t, tx.Pending(), 3)
	assert.Equal(t, 1, backend.Count("Invoice"), "nothing applied before commit")

	res := tx.Commit(ctx)
	require.True(t, res.Success(), res.String())

	assert.Equal(t, []string{
		"pro:Create", "pro:Update",
		"pro:Commit",
		"epi:Create", "epi:Update",
		"epi:Commit",
	}, rec.calls)
	assert.Equal(t, []int{2, 1, 3, 2, 1, 3}, rec.sizes)

	assert.Equal(t, 3, backend.Count("Invoice"))
	updated, ok := backend.Get("Invoice", "old")
	require.True(t, ok)
	assert.Equal(t, 9, updated.(*Invoice).Amount)
	assert.Empty(t, tx.Pending())
	assert.NoError(t, tx.Close())
}

// TestPipelineEarlyVetoShortCircuits tests that an Early failure stops a Late action
func TestPipelineEarlyVetoShortCircuits(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	cfg := NewConfigurator()

	_, err := cfg.AddPrologueAt(PositionLate, rec.action("A"))
	require.NoError(t, err)
	_, err = cfg.AddPrologueAt(PositionEarly, rec.failing("B", ReasonForbidden))
	require.NoError(t, err)

	backend := NewMemoryBackend()
	tx := newTestFactory(cfg.Runner(), backend).NewTransaction()

	res := tx.Delete(ctx, &Invoice{ID: "1"})
	assert.Equal(t, ReasonForbidden, res.Reason())
	assert.Equal(t, []string{"B"}, rec.calls)
	assert.Empty(t, tx.Pending())
	assert.Zero(t, backend.Applies())
}

// TestTransactionStagingValidation tests rejected writes
func TestTransactionStagingValidation(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(nil, NewMemoryBackend())

	t.Run("empty insert", func(t *testing.T) {
		tx := factory.NewTransaction()
		assert.Equal(t, ReasonValidationError, tx.Insert(ctx).Reason())
		assert.Equal(t, ReasonValidationError, tx.Delete(ctx, (*Invoice)(nil)).Reason())
	})

	t.Run("model mismatch", func(t *testing.T) {
		tx := factory.NewTransaction()
		res := tx.Update(ctx, &Invoice{}, &Customer{})
		assert.Equal(t, ReasonValidationError, res.Reason())
		assert.True(t, errors.Is(res.Err(), ErrModelMismatch))
	})

	t.Run("read only", func(t *testing.T) {
		tx := factory.NewTransaction(ReadOnly())
		assert.True(t, tx.IsReadOnly())
		assert.Equal(t, ReasonBadQuery, tx.Insert(ctx, &Invoice{ID: "1"}).Reason())
		assert.Equal(t, ReasonBadQuery, tx.Delete(ctx, &Invoice{ID: "1"}).Reason())
	})
}

// TestTransactionRetriesTransientFailures tests backoff on network errors
func TestTransactionRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	factory := newTestFactory(nil, backend, WithCommitRetries(3))

	backend.FailNext(errors.New("read tcp: connection reset by peer"), errors.New("could not serialize access"))

	tx := factory.NewTransaction()
	require.True(t, tx.Insert(ctx, &Invoice{ID: "1"}).Success())

	res := tx.Commit(ctx)
	require.True(t, res.Success(), res.String())
	assert.Equal(t, 3, backend.Applies())
	assert.Equal(t, 1, backend.Count("Invoice"))

	stats := factory.Stats()
	assert.Equal(t, int64(1), stats.Count)
	assert.Equal(t, int64(1), stats.Succeeded)
}

// TestTransactionRetriesExhausted tests that staged changes survive a failed commit
func TestTransactionRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	factory := newTestFactory(nil, backend, WithCommitRetries(2))

	transient := errors.New("dial tcp: connection refused")
	backend.FailNext(transient, transient, transient)

	tx := factory.NewTransaction()
	require.True(t, tx.Insert(ctx, &Invoice{ID: "1"}).Success())

	res := tx.Commit(ctx)
	assert.Equal(t, ReasonNetworkFailure, res.Reason())
	assert.Equal(t, 3, backend.Applies())
	assert.Len(t, tx.Pending(), 1)
	assert.Zero(t, backend.Count("Invoice"))
	assert.Equal(t, int64(1), factory.Stats().Failed)

	res = tx.Commit(ctx)
	require.True(t, res.Success(), res.String())
	assert.Equal(t, 1, backend.Count("Invoice"))
}

// plainBackend hides Atomic from a MemoryBackend and fails call number
// failAt once with err.
type plainBackend struct {
	inner  *MemoryBackend
	calls  int
	failAt int
	err    error
}

func (p *plainBackend) Apply(ctx context.Context, tag ActionTag, changes ChangeSet) error {
	p.calls++
	if p.calls == p.failAt {
		return p.err
	}
	return p.inner.Apply(ctx, tag, changes)
}

// TestTransactionRetryResumesWithoutAtomicity tests that applied ops are not replayed
func TestTransactionRetryResumesWithoutAtomicity(t *testing.T) {
	ctx := context.Background()
	backend := &plainBackend{
		inner:  NewMemoryBackend(),
		failAt: 2,
		err:    errors.New("read tcp: connection reset by peer"),
	}
	factory := newTestFactory(nil, backend, WithCommitRetries(3))

	tx := factory.NewTransaction()
	require.True(t, tx.Insert(ctx, &Invoice{ID: "1"}).Success())
	require.True(t, tx.Insert(ctx, &Invoice{ID: "2"}).Success())

	res := tx.Commit(ctx)
	require.True(t, res.Success(), res.String())
	assert.Equal(t, 3, backend.calls, "the first insert is applied once")
	assert.Equal(t, 2, backend.inner.Count("Invoice"))
}

// TestTransactionPermanentFailure tests classification without retries
func TestTransactionPermanentFailure(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want FailureReason
	}{
		{"unclassified becomes db failure", errors.New(`syntax error at or near "FROM"`), ReasonDbFailure},
		{"duplicate", NewError(ErrDuplicate, "exists"), ReasonEntityDuplication},
		{"not found", fmt.Errorf("apply: %w", ErrNotFound), ReasonNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMemoryBackend()
			backend.FailNext(tt.err)
			tx := newTestFactory(nil, backend).NewTransaction()
			require.True(t, tx.Insert(ctx, &Invoice{ID: "1"}).Success())

			res := tx.Commit(ctx)
			assert.Equal(t, tt.want, res.Reason())
			assert.Equal(t, 1, backend.Applies(), "permanent errors are not retried")
		})
	}
}

// TestTransactionAtomicCommit tests that a failing op rolls back earlier ones
func TestTransactionAtomicCommit(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Apply(ctx, ActionCreate, Created(&Invoice{ID: "dup"})))

	tx := newTestFactory(nil, backend).NewTransaction()
	require.True(t, tx.Insert(ctx, &Invoice{ID: "fresh"}).Success())
	require.True(t, tx.Insert(ctx, &Invoice{ID: "dup"}).Success())

	res := tx.Commit(ctx)
	assert.Equal(t, ReasonEntityDuplication, res.Reason())
	_, ok := backend.Get("Invoice", "fresh")
	assert.False(t, ok)
	assert.Equal(t, 1, backend.Count("Invoice"))
}

// TestTransactionCommitVeto tests a Commit prologue abort
func TestTransactionCommitVeto(t *testing.T) {
	ctx := context.Background()
	cfg := NewConfigurator()
	_, err := cfg.AddPrologue(func(_ context.Context, tag ActionTag, _ ChangeSet) *Status {
		if tag.IsCommit() {
			return Abort(ReasonConcurrencyFailure, "locked")
		}
		return nil
	})
	require.NoError(t, err)

	backend := NewMemoryBackend()
	tx := newTestFactory(cfg.Runner(), backend).NewTransaction()
	require.True(t, tx.Insert(ctx, &Invoice{ID: "1"}).Success())

	assert.Equal(t, ReasonConcurrencyFailure, tx.Commit(ctx).Reason())
	assert.Len(t, tx.Pending(), 1)
	assert.Zero(t, backend.Applies())
}

// TestTransactionNoBackend tests committing without a backend
func TestTransactionNoBackend(t *testing.T) {
	ctx := context.Background()
	tx := newTestFactory(nil, nil).NewTransaction()
	require.True(t, tx.Insert(ctx, &Invoice{ID: "1"}).Success())
	assert.Equal(t, ReasonServiceFailure, tx.Commit(ctx).Reason())

	empty := newTestFactory(nil, nil).NewTransaction()
	assert.True(t, empty.Commit(ctx).Success(), "nothing staged means nothing to apply")
}

// TestTransactionDiscard tests dropping staged changes and the Discard veto
func TestTransactionDiscard(t *testing.T) {
	ctx := context.Background()
	rec := &tagRecorder{}
	veto := true

	cfg := NewConfigurator()
	require.NoError(t, cfg.Attach(rec.middleware()))
	_, err := cfg.AddPrologue(func(_ context.Context, tag ActionTag, _ ChangeSet) *Status {
		if tag == ActionDiscard && veto {
			return Abort(ReasonIdempotency, "keep it")
		}
		return nil
	})
	require.NoError(t, err)

	tx := newTestFactory(cfg.Runner(), NewMemoryBackend()).NewTransaction()
	require.True(t, tx.Insert(ctx, &Invoice{ID: "1"}).Success())

	assert.Equal(t, ReasonIdempotency, tx.Discard(ctx).Reason())
	assert.Len(t, tx.Pending(), 1)

	veto = false
	assert.True(t, tx.Discard(ctx).Success())
	assert.Empty(t, tx.Pending())
	assert.Contains(t, rec.calls, "epi:Discard")
	assert.True(t, tx.Discard(ctx).Success(), "discarding nothing succeeds")
	assert.NoError(t, tx.Close())
}

// TestTransactionClose tests that Close never commits
func TestTransactionClose(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	var lost ChangeSet
	tx := newTestFactory(nil, backend).NewTransaction(OnUncommitted(func(cs ChangeSet) { lost = cs }))
	require.True(t, tx.Insert(ctx, &Invoice{ID: "1"}).Success())

	err := tx.Close()
	assert.ErrorIs(t, err, ErrUncommittedChanges)
	assert.Len(t, lost, 1)
	assert.Zero(t, backend.Applies())

	assert.NoError(t, tx.Close(), "second close is a no-op")
	assert.Equal(t, ReasonBadQuery, tx.Insert(ctx, &Invoice{ID: "2"}).Reason())
	assert.Equal(t, ReasonBadQuery, tx.Commit(ctx).Reason())
	assert.Equal(t, ReasonBadQuery, tx.Discard(ctx).Reason())

	res := Read(ctx, tx, func(context.Context) (*Invoice, error) { return &Invoice{}, nil })
	assert.Equal(t, ReasonBadQuery, res.Reason())
}

// TestTransactionRead tests the Read hook pair
func TestTransactionRead(t *testing.T) {
	ctx := context.Background()
	rec := &tagRecorder{}
	cfg := NewConfigurator()
	require.NoError(t, cfg.Attach(rec.middleware()))

	tx := newTestFactory(cfg.Runner(), NewMemoryBackend()).NewTransaction(ReadOnly())

	res := Read(ctx, tx, func(context.Context) (*Invoice, error) {
		return &Invoice{ID: "1"}, nil
	})
	require.True(t, res.Success())
	assert.Equal(t, "1", res.Payload().ID)
	assert.Equal(t, []string{"pro:Read", "epi:Read"}, rec.calls)
	assert.Equal(t, []int{0, 1}, rec.sizes)

	missing := Read(ctx, tx, func(context.Context) (*Invoice, error) {
		return nil, NewError(ErrNotFound, "no invoice")
	})
	assert.Equal(t, ReasonNotFound, missing.Reason())
}

// TestTransactionReadVeto tests that an epilogue can hide loaded data
func TestTransactionReadVeto(t *testing.T) {
	cfg := NewConfigurator()
	_, err := cfg.AddEpilogue(FromEntityHook(func(_ context.Context, _ ActionTag, e Entity) bool {
		return !e.(*Invoice).Locked
	}))
	require.NoError(t, err)

	tx := newTestFactory(cfg.Runner(), nil).NewTransaction()
	res := Read(context.Background(), tx, func(context.Context) (*Invoice, error) {
		return &Invoice{ID: "1", Locked: true}, nil
	})
	assert.Equal(t, ReasonForbidden, res.Reason())
	assert.Nil(t, res.Payload())
}

// TestTransactionQueryLimit tests the query row guard
func TestTransactionQueryLimit(t *testing.T) {
	ctx := context.Background()
	rec := &tagRecorder{}
	cfg := NewConfigurator()
	require.NoError(t, cfg.Attach(rec.middleware()))

	tx := newTestFactory(cfg.Runner(), nil, WithQueryLimit(2)).NewTransaction()
	load := func(n int) func(context.Context) ([]*Invoice, error) {
		return func(context.Context) ([]*Invoice, error) {
			rows := make([]*Invoice, n)
			for i := range rows {
				rows[i] = &Invoice{ID: fmt.Sprint(i)}
			}
			return rows, nil
		}
	}

	res := Query(ctx, tx, load(2))
	require.True(t, res.Success())
	assert.Len(t, res.Payload(), 2)
	assert.Equal(t, []int{0, 2}, rec.sizes)

	res = Query(ctx, tx, load(3))
	assert.Equal(t, ReasonQueryOverLimit, res.Reason())
	assert.Equal(t, []string{"pro:Query", "epi:Query", "pro:Query"}, rec.calls)

	unlimited := newTestFactory(nil, nil, WithQueryLimit(0)).NewTransaction()
	assert.True(t, Query(ctx, unlimited, load(50)).Success())
}

// TestTxFactoryWithRunner tests swapping the pipeline of a factory
func TestTxFactoryWithRunner(t *testing.T) {
	ctx := context.Background()
	cfg := NewConfigurator()
	_, _ = cfg.AddPrologue(func(context.Context, ActionTag, ChangeSet) *Status {
		return Abort(ReasonForbidden, "closed for the day")
	})

	backend := NewMemoryBackend()
	open := newTestFactory(nil, backend)
	closed := open.WithRunner(cfg.Runner())

	assert.True(t, open.NewTransaction().Insert(ctx, &Invoice{ID: "1"}).Success())
	assert.Equal(t, ReasonForbidden, closed.NewTransaction().Insert(ctx, &Invoice{ID: "1"}).Reason())

	tx := closed.WithRunner(EmptyRunner()).NewTransaction()
	require.True(t, tx.Insert(ctx, &Invoice{ID: "1"}).Success())
	require.True(t, tx.Commit(ctx).Success())
	assert.Equal(t, int64(1), open.Stats().Count, "statistics are shared")

	open.ResetStats()
	assert.Zero(t, closed.Stats().Count)
	assert.True(t, open.Healthy())
}

// TestTransactionConcurrentCommits tests many transactions on one factory
func TestTransactionConcurrentCommits(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	backend := NewMemoryBackend()
	timing := NewTiming(nil)
	cfg := NewConfigurator()
	require.NoError(t, cfg.Attach(timing))
	factory := newTestFactory(cfg.Runner(), backend)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := factory.NewTransaction()
			defer tx.Close()
			if !tx.Insert(ctx, &Invoice{ID: fmt.Sprint(i)}).Success() {
				return
			}
			tx.Commit(ctx)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, backend.Count("Invoice"))
	assert.Equal(t, int64(25), factory.Stats().Succeeded)
	assert.Equal(t, int64(25), timing.Stats(ActionCreate).Count)
	assert.Zero(t, timing.Pending())
}
