package datagate

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/fernandezvara/dbkit"
)

// Backend performs the physical writes of a committed transaction.
type Backend interface {
	Apply(ctx context.Context, tag ActionTag, changes ChangeSet) error
}

// AtomicBackend can apply several operations all-or-nothing. fn receives a
// Backend bound to the atomic scope.
type AtomicBackend interface {
	Backend
	Atomic(ctx context.Context, fn func(b Backend) error) error
}

// BunBackend writes bun models through dbkit. Entities must be pointers to
// bun models with a primary key.
type BunBackend struct {
	db dbkit.IDB
}

var _ AtomicBackend = (*BunBackend)(nil)

// NewBunBackend creates a backend on db, which may be a *dbkit.DBKit or an
// open *dbkit.Tx.
func NewBunBackend(db dbkit.IDB) *BunBackend {
	return &BunBackend{db: db}
}

// Apply implements Backend.
func (b *BunBackend) Apply(ctx context.Context, tag ActionTag, changes ChangeSet) error {
	for _, item := range changes {
		model := item.ModelName()
		switch item.ChangeType() {
		case ChangeCreate:
			result, err := b.db.NewInsert().Model(item.New()).Exec(ctx)
			if err := dbkit.WithErr(result, err, "Insert"+model).Err(); err != nil {
				return err
			}
		case ChangeUpdate:
			result, err := b.db.NewUpdate().Model(item.New()).WherePK().Exec(ctx)
			if err := dbkit.WithErr(result, err, "Update"+model).Err(); err != nil {
				return err
			}
			if n, _ := result.RowsAffected(); n == 0 {
				return NewError(ErrNotFound, "no row to update").WithModel(model).WithAction(tag)
			}
		case ChangeDelete:
			result, err := b.db.NewDelete().Model(item.Old()).WherePK().Exec(ctx)
			if err := dbkit.WithErr(result, err, "Delete"+model).Err(); err != nil {
				return err
			}
			if n, _ := result.RowsAffected(); n == 0 {
				return NewError(ErrNotFound, "no row to delete").WithModel(model).WithAction(tag)
			}
		}
	}
	return nil
}

// Atomic implements AtomicBackend with a dbkit transaction.
func (b *BunBackend) Atomic(ctx context.Context, fn func(Backend) error) error {
	return withTransaction(ctx, b.db, func(db dbkit.IDB) error {
		return fn(&BunBackend{db: db})
	})
}

// MemoryBackend keeps entities in maps keyed by model and entity key.
// Entities should implement Keyed; others are keyed by their address.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]map[string]Entity

	// failures are returned by the next Apply calls, oldest first.
	failures []error
	applies  int
}

var _ AtomicBackend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]map[string]Entity)}
}

// FailNext queues errors returned by the following Apply calls.
func (m *MemoryBackend) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Applies returns how many Apply calls reached the backend, failed ones
// included.
func (m *MemoryBackend) Applies() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.applies
}

// Apply implements Backend.
func (m *MemoryBackend) Apply(ctx context.Context, tag ActionTag, changes ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(ctx, m.data, tag, changes)
}

func (m *MemoryBackend) applyLocked(ctx context.Context, data map[string]map[string]Entity, tag ActionTag, changes ChangeSet) error {
	m.applies++
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, item := range changes {
		model := item.ModelName()
		rows := data[model]
		if rows == nil {
			rows = make(map[string]Entity)
			data[model] = rows
		}
		switch item.ChangeType() {
		case ChangeCreate:
			key := memoryKey(item.New())
			if _, ok := rows[key]; ok {
				return NewError(ErrDuplicate, fmt.Sprintf("%s %s already exists", model, key)).WithModel(model)
			}
			rows[key] = item.New()
		case ChangeUpdate:
			key := memoryKey(item.New())
			if _, ok := rows[key]; !ok {
				return NewError(ErrNotFound, fmt.Sprintf("%s %s not found", model, key)).WithModel(model).WithAction(tag)
			}
			rows[key] = item.New()
		case ChangeDelete:
			key := memoryKey(item.Old())
			if _, ok := rows[key]; !ok {
				return NewError(ErrNotFound, fmt.Sprintf("%s %s not found", model, key)).WithModel(model).WithAction(tag)
			}
			delete(rows, key)
		}
	}
	return nil
}

// Atomic implements AtomicBackend. fn works on a copy that replaces the
// stored data only when fn succeeds.
func (m *MemoryBackend) Atomic(ctx context.Context, fn func(Backend) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scratch := make(map[string]map[string]Entity, len(m.data))
	for model, rows := range m.data {
		copied := make(map[string]Entity, len(rows))
		for k, v := range rows {
			copied[k] = v
		}
		scratch[model] = copied
	}

	if err := fn(memoryScope{m: m, data: scratch}); err != nil {
		return err
	}
	m.data = scratch
	return nil
}

// Get returns the stored entity for model and key.
func (m *MemoryBackend) Get(model, key string) (Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[model][key]
	return e, ok
}

// All returns every stored entity of model, in no particular order.
func (m *MemoryBackend) All(model string) []Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entity, 0, len(m.data[model]))
	for _, e := range m.data[model] {
		out = append(out, e)
	}
	return out
}

// Count returns the number of stored entities of model.
func (m *MemoryBackend) Count(model string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[model])
}

// memoryScope applies changes to an Atomic scratch copy. The backend lock
// is already held.
type memoryScope struct {
	m    *MemoryBackend
	data map[string]map[string]Entity
}

func (s memoryScope) Apply(ctx context.Context, tag ActionTag, changes ChangeSet) error {
	return s.m.applyLocked(ctx, s.data, tag, changes)
}

func memoryKey(e Entity) string {
	if k, ok := e.(Keyed); ok {
		return k.EntityKey()
	}
	if reflect.ValueOf(e).Kind() == reflect.Pointer {
		return fmt.Sprintf("%p", e)
	}
	return fmt.Sprint(e)
}
