package datagate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// TxFactory creates transactions that run the pipeline around a Backend.
type TxFactory struct {
	runner     *Runner
	backend    Backend
	timeout    time.Duration
	retries    uint64
	queryLimit int
	newBackOff func() backoff.BackOff
	monitor    *durationMonitor
	metrics    *Metrics
	logger     *zap.Logger
}

// TxFactoryOption configures a TxFactory.
type TxFactoryOption func(*TxFactory)

// WithCommitTimeout bounds the physical commit, retries included.
func WithCommitTimeout(d time.Duration) TxFactoryOption {
	return func(f *TxFactory) {
		f.timeout = d
	}
}

// WithCommitRetries sets how many times a transient commit failure is
// retried.
func WithCommitRetries(n uint64) TxFactoryOption {
	return func(f *TxFactory) {
		f.retries = n
	}
}

// WithCommitBackOff sets the retry schedule. Tests use
// backoff.NewConstantBackOff(0) or &backoff.ZeroBackOff{}.
func WithCommitBackOff(fn func() backoff.BackOff) TxFactoryOption {
	return func(f *TxFactory) {
		f.newBackOff = fn
	}
}

// WithQueryLimit fails queries returning more than limit rows. Zero
// disables the guard.
func WithQueryLimit(limit int) TxFactoryOption {
	return func(f *TxFactory) {
		f.queryLimit = limit
	}
}

// WithTxMetrics records commit outcomes.
func WithTxMetrics(m *Metrics) TxFactoryOption {
	return func(f *TxFactory) {
		f.metrics = m
	}
}

// WithTxLogger sets the logger.
func WithTxLogger(logger *zap.Logger) TxFactoryOption {
	return func(f *TxFactory) {
		f.logger = orNop(logger)
	}
}

// NewTxFactory creates a factory. A nil runner behaves as an empty pipeline.
func NewTxFactory(runner *Runner, backend Backend, opts ...TxFactoryOption) *TxFactory {
	f := &TxFactory{
		runner:  runner,
		backend: backend,
		timeout: 30 * time.Second,
		retries: 3,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		monitor: newDurationMonitor(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithRunner returns a copy of the factory using runner. Commit statistics
// are shared with the original.
func (f *TxFactory) WithRunner(runner *Runner) *TxFactory {
	copied := *f
	copied.runner = runner
	return &copied
}

// Stats returns commit statistics.
func (f *TxFactory) Stats() TimingStats {
	return f.monitor.stats()
}

// ResetStats clears commit statistics.
func (f *TxFactory) ResetStats() {
	f.monitor.reset()
}

// Healthy reports whether commits stay under a 5% failure rate with an
// average below one second.
func (f *TxFactory) Healthy() bool {
	return f.monitor.stats().healthy(time.Second)
}

// TxOption configures one Transaction.
type TxOption func(*Transaction)

// ReadOnly makes every write fail with BadQuery.
func ReadOnly() TxOption {
	return func(t *Transaction) {
		t.readOnly = true
	}
}

// OnUncommitted is called by Close with the changes that were never
// committed.
func OnUncommitted(fn func(ChangeSet)) TxOption {
	return func(t *Transaction) {
		t.onUncommitted = fn
	}
}

// NewTransaction opens a transaction. Nothing touches the backend until
// Commit.
//
// Example:
//
//	tx := factory.NewTransaction()
//	defer tx.Close()
//	if res := tx.Insert(ctx, invoice); !res.Success() {
//	    return res
//	}
//	return tx.Commit(ctx)
func (f *TxFactory) NewTransaction(opts ...TxOption) *Transaction {
	t := &Transaction{factory: f}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type stagedOp struct {
	tag     ActionTag
	changes ChangeSet
}

// Transaction stages changes that passed their prologue and applies them on
// Commit. Hooks run while the transaction lock is held, so actions must not
// call back into the same transaction.
type Transaction struct {
	mu            sync.Mutex
	factory       *TxFactory
	staged        []stagedOp
	readOnly      bool
	closed        bool
	onUncommitted func(ChangeSet)
}

// Insert stages the creation of entities.
func (t *Transaction) Insert(ctx context.Context, entities ...Entity) Status {
	return t.stage(ctx, ActionCreate, Created(entities...))
}

// Update stages the replacement of old by new. Both must be the same model.
func (t *Transaction) Update(ctx context.Context, old, new Entity) Status {
	cs, err := Updated(old, new)
	if err != nil {
		return failWith[Empty](ReasonValidationError, err)
	}
	return t.stage(ctx, ActionUpdate, cs)
}

// Delete stages the removal of entities.
func (t *Transaction) Delete(ctx context.Context, entities ...Entity) Status {
	return t.stage(ctx, ActionDelete, Deleted(entities...))
}

func (t *Transaction) stage(ctx context.Context, tag ActionTag, changes ChangeSet) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if res := t.usableLocked(); !res.Success() {
		return res
	}
	if t.readOnly {
		return Fail[Empty](ReasonBadQuery, fmt.Sprintf("%s in a read-only transaction", tag))
	}
	if changes.Empty() {
		return Fail[Empty](ReasonValidationError, fmt.Sprintf("nothing to %s", tag))
	}
	if res := t.factory.runner.RunPrologue(ctx, tag, changes); res != nil {
		return *res
	}
	t.staged = append(t.staged, stagedOp{tag: tag, changes: changes})
	return Ok[Empty]()
}

func (t *Transaction) usableLocked() Status {
	if t.closed {
		return Fail[Empty](ReasonBadQuery, "transaction is closed")
	}
	return Ok[Empty]()
}

// Pending returns the staged, uncommitted changes.
func (t *Transaction) Pending() ChangeSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingLocked()
}

func (t *Transaction) pendingLocked() ChangeSet {
	var cs ChangeSet
	for _, op := range t.staged {
		cs = append(cs, op.changes...)
	}
	return cs
}

// Commit runs the Commit prologue, applies every staged change through the
// backend and then runs the epilogues of each staged action followed by the
// Commit epilogue. On failure the staged changes are kept so the caller can
// retry or Discard.
func (t *Transaction) Commit(ctx context.Context) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if res := t.usableLocked(); !res.Success() {
		return res
	}

	f := t.factory
	pending := t.pendingLocked()
	if res := f.runner.RunPrologue(ctx, ActionCommit, pending); res != nil {
		return *res
	}

	if len(t.staged) > 0 {
		start := time.Now()
		err := f.apply(ctx, t.staged)
		f.monitor.record(time.Since(start), err == nil)
		if err != nil {
			reason := ReasonOf(err)
			if reason == ReasonUnknown {
				reason = ReasonDbFailure
			}
			f.metrics.observeCommit(reason)
			f.runner.Cancel(ctx, ActionCommit, pending)
			f.logger.Warn("commit failed",
				zap.Error(err),
				zap.Stringer("reason", reason),
				zap.Int("changes", len(pending)))
			return failWith[Empty](reason, err)
		}
	}

	applied := t.staged
	t.staged = nil
	f.metrics.observeCommit(ReasonNone)

	for i, op := range applied {
		if res := f.runner.RunEpilogue(ctx, op.tag, op.changes); res != nil {
			cancelOps(ctx, f.runner, applied[i+1:])
			f.runner.Cancel(ctx, ActionCommit, pending)
			return *res
		}
	}
	if res := f.runner.RunEpilogue(ctx, ActionCommit, pending); res != nil {
		return *res
	}
	return Ok[Empty]()
}

// apply writes ops through the backend, atomically when the backend
// supports it, retrying transient failures within the commit timeout.
func (f *TxFactory) apply(ctx context.Context, ops []stagedOp) error {
	if f.backend == nil {
		return NewError(ErrServiceFailure, "no backend configured")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	// next is the first op not yet applied. An atomic attempt rolls back
	// as a whole, so it always starts over; a plain backend resumes at the
	// op that failed.
	next := 0
	applyFrom := func(b Backend) error {
		for ; next < len(ops); next++ {
			if err := b.Apply(ctx, ops[next].tag, ops[next].changes); err != nil {
				return err
			}
		}
		return nil
	}

	attempt := 0
	operation := func() error {
		attempt++
		var err error
		if ab, ok := f.backend.(AtomicBackend); ok {
			next = 0
			err = ab.Atomic(ctx, applyFrom)
		} else {
			err = applyFrom(f.backend)
		}
		if err == nil {
			return nil
		}
		if !isTransientError(err) {
			return backoff.Permanent(err)
		}
		f.logger.Debug("transient commit failure",
			zap.Error(err),
			zap.Int("attempt", attempt))
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.retries), ctx)
	return backoff.Retry(operation, b)
}

// Discard drops the staged changes. The Discard prologue may veto it.
func (t *Transaction) Discard(ctx context.Context) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if res := t.usableLocked(); !res.Success() {
		return res
	}
	if len(t.staged) == 0 {
		return Ok[Empty]()
	}

	pending := t.pendingLocked()
	if res := t.factory.runner.RunPrologue(ctx, ActionDiscard, pending); res != nil {
		return *res
	}
	cancelOps(ctx, t.factory.runner, t.staged)
	t.staged = nil
	if res := t.factory.runner.RunEpilogue(ctx, ActionDiscard, pending); res != nil {
		return *res
	}
	return Ok[Empty]()
}

// Close releases the transaction. It never commits: staged changes are
// handed to the OnUncommitted callback and reported with
// ErrUncommittedChanges. Closing twice is a no-op.
func (t *Transaction) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if len(t.staged) == 0 {
		return nil
	}

	pending := t.pendingLocked()
	cancelOps(context.Background(), t.factory.runner, t.staged)
	t.staged = nil
	t.factory.logger.Warn("transaction closed with uncommitted changes", zap.Int("changes", len(pending)))
	if t.onUncommitted != nil {
		t.onUncommitted(pending)
	}
	return fmt.Errorf("%w: %d change(s)", ErrUncommittedChanges, len(pending))
}

func cancelOps(ctx context.Context, runner *Runner, ops []stagedOp) {
	for _, op := range ops {
		runner.Cancel(ctx, op.tag, op.changes)
	}
}

// IsReadOnly reports whether writes are rejected.
func (t *Transaction) IsReadOnly() bool {
	return t.readOnly
}

// Read loads one entity between the Read prologue and epilogue. The
// prologue sees an empty change set; the epilogue sees the loaded entity.
func Read[T any](ctx context.Context, t *Transaction, load func(ctx context.Context) (T, error)) Result[T] {
	if res := t.beginRead(ctx, ActionRead); res != nil {
		return Recast[T](*res)
	}
	v, err := load(ctx)
	if err != nil {
		t.factory.runner.Cancel(ctx, ActionRead, nil)
		return FromError[T](err)
	}
	if res := t.factory.runner.RunEpilogue(ctx, ActionRead, Created(v)); res != nil {
		return Recast[T](*res)
	}
	return OkWith(v)
}

// Query loads a list of entities between the Query prologue and epilogue.
// Results over the factory query limit fail with QueryOverLimit.
func Query[T any](ctx context.Context, t *Transaction, load func(ctx context.Context) ([]T, error)) Result[[]T] {
	if res := t.beginRead(ctx, ActionQuery); res != nil {
		return Recast[[]T](*res)
	}
	rows, err := load(ctx)
	if err != nil {
		t.factory.runner.Cancel(ctx, ActionQuery, nil)
		return FromError[[]T](err)
	}
	if limit := t.factory.queryLimit; limit > 0 && len(rows) > limit {
		t.factory.runner.Cancel(ctx, ActionQuery, nil)
		return Fail[[]T](ReasonQueryOverLimit, fmt.Sprintf("query returned %d rows, limit is %d", len(rows), limit))
	}

	entities := make([]Entity, len(rows))
	for i, r := range rows {
		entities[i] = r
	}
	if res := t.factory.runner.RunEpilogue(ctx, ActionQuery, Created(entities...)); res != nil {
		return Recast[[]T](*res)
	}
	return OkWith(rows)
}

func (t *Transaction) beginRead(ctx context.Context, tag ActionTag) *Status {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return Abort(ReasonBadQuery, "transaction is closed")
	}
	return t.factory.runner.RunPrologue(ctx, tag, nil)
}
