package datagate

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Action is the one canonical hook signature. Returning a non-nil *Status
// aborts the operation with that result; returning nil lets it continue.
type Action func(ctx context.Context, tag ActionTag, changes ChangeSet) *Status

// Middleware contributes one prologue and one epilogue action.
// Implementations must be comparable (usually a pointer) so they can be
// detached by identity.
type Middleware interface {
	Prologue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status
	Epilogue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status
}

// Named middlewares report a name used in logs.
type Named interface {
	Name() string
}

// MiddlewareFuncs adapts two plain actions into a Middleware. Either may be nil.
type MiddlewareFuncs struct {
	Label  string
	Before Action
	After  Action
}

// NewMiddleware returns a Middleware built from two actions.
func NewMiddleware(label string, before, after Action) *MiddlewareFuncs {
	return &MiddlewareFuncs{Label: label, Before: before, After: after}
}

// Prologue implements Middleware.
func (m *MiddlewareFuncs) Prologue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status {
	if m.Before == nil {
		return nil
	}
	return m.Before(ctx, tag, changes)
}

// Epilogue implements Middleware.
func (m *MiddlewareFuncs) Epilogue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status {
	if m.After == nil {
		return nil
	}
	return m.After(ctx, tag, changes)
}

// Name implements Named.
func (m *MiddlewareFuncs) Name() string {
	return m.Label
}

// Configurator is the builder for the pipeline. It is safe for concurrent
// use; runners built from it are independent snapshots.
//
// Example:
//
//	cfg := datagate.NewConfigurator()
//	cfg.AttachAt(datagate.PositionEarly, authz)
//	cfg.Attach(audit)
//	runner := cfg.Runner()
type Configurator struct {
	mu        sync.RWMutex
	prologues *actionList
	epilogues *actionList
	logger    *zap.Logger
}

// ConfiguratorOption configures the Configurator.
type ConfiguratorOption func(*Configurator)

// WithConfiguratorLogger sets the logger used for attach/detach events.
func WithConfiguratorLogger(logger *zap.Logger) ConfiguratorOption {
	return func(c *Configurator) {
		c.logger = logger
	}
}

// NewConfigurator creates an empty pipeline configuration.
func NewConfigurator(opts ...ConfiguratorOption) *Configurator {
	c := &Configurator{
		prologues: newActionList(),
		epilogues: newActionList(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach adds a middleware at the default position.
func (c *Configurator) Attach(mw Middleware) error {
	return c.AttachSplit(PositionDefault, PositionDefault, mw)
}

// AttachAt adds a middleware with both hooks at the same position.
func (c *Configurator) AttachAt(position Position, mw Middleware) error {
	return c.AttachSplit(position, position, mw)
}

// AttachSplit adds a middleware with independent prologue and epilogue positions.
func (c *Configurator) AttachSplit(prologuePos, epiloguePos Position, mw Middleware) error {
	if isAbsent(mw) {
		return ErrNilAction
	}
	if !reflect.TypeOf(mw).Comparable() {
		return fmt.Errorf("%w: %T", ErrNotComparable, mw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prologues.hasOwner(mw) || c.epilogues.hasOwner(mw) {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, middlewareName(mw))
	}

	c.prologues.insert(prologuePos, &listEntry{id: newActionID(), owner: mw, action: mw.Prologue})
	c.epilogues.insert(epiloguePos, &listEntry{id: newActionID(), owner: mw, action: mw.Epilogue})

	c.logger.Debug("middleware attached",
		zap.String("middleware", middlewareName(mw)),
		zap.Stringer("prologue_position", prologuePos),
		zap.Stringer("epilogue_position", epiloguePos))
	return nil
}

// Detach removes both hooks contributed by mw. It reports whether anything
// was removed.
func (c *Configurator) Detach(mw Middleware) bool {
	if isAbsent(mw) || !reflect.TypeOf(mw).Comparable() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.prologues.removeOwner(mw)
	e := c.epilogues.removeOwner(mw)
	if p || e {
		c.logger.Debug("middleware detached", zap.String("middleware", middlewareName(mw)))
	}
	return p || e
}

// AddPrologue appends a raw prologue action at the default position.
func (c *Configurator) AddPrologue(action Action) (ActionID, error) {
	return c.AddPrologueAt(PositionDefault, action)
}

// AddPrologueAt adds a raw prologue action at position.
func (c *Configurator) AddPrologueAt(position Position, action Action) (ActionID, error) {
	return c.add(c.prologues, position, action)
}

// AddEpilogue appends a raw epilogue action at the default position.
func (c *Configurator) AddEpilogue(action Action) (ActionID, error) {
	return c.AddEpilogueAt(PositionDefault, action)
}

// AddEpilogueAt adds a raw epilogue action at position.
func (c *Configurator) AddEpilogueAt(position Position, action Action) (ActionID, error) {
	return c.add(c.epilogues, position, action)
}

func (c *Configurator) add(list *actionList, position Position, action Action) (ActionID, error) {
	if action == nil {
		return ActionID{}, ErrNilAction
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := newActionID()
	list.insert(position, &listEntry{id: id, action: action})
	return id, nil
}

// RemoveAction removes a raw action previously returned by one of the Add
// methods, from whichever list holds it.
func (c *Configurator) RemoveAction(id ActionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.prologues.removeID(id)
	e := c.epilogues.removeID(id)
	return p || e
}

// Len returns the number of prologue and epilogue actions registered.
func (c *Configurator) Len() (prologues, epilogues int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prologues.len(), c.epilogues.len()
}

// Runner builds an immutable snapshot of the current configuration.
func (c *Configurator) Runner() *Runner {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Runner{
		prologues: c.prologues.snapshot(),
		epilogues: c.epilogues.snapshot(),
	}
}

func middlewareName(mw Middleware) string {
	if n, ok := mw.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", mw)
}
