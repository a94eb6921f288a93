package datagate

import (
	"context"
	"fmt"
)

// EntityHook is the legacy single-entity hook shape: it sees one entity at
// a time and vetoes by returning false.
type EntityHook func(ctx context.Context, tag ActionTag, entity Entity) bool

// ErrorHook is the legacy error-returning hook shape.
type ErrorHook func(ctx context.Context, tag ActionTag, changes ChangeSet) error

// AdapterOption configures a legacy hook adapter.
type AdapterOption func(*adapterConfig)

type adapterConfig struct {
	vetoReason FailureReason
	models     map[string]bool
}

// WithVetoReason sets the failure reason reported when an EntityHook
// vetoes. The default is Forbidden.
func WithVetoReason(reason FailureReason) AdapterOption {
	return func(c *adapterConfig) {
		c.vetoReason = reason
	}
}

// ForModels restricts the hook to entities of the named models.
func ForModels(models ...string) AdapterOption {
	return func(c *adapterConfig) {
		if c.models == nil {
			c.models = make(map[string]bool, len(models))
		}
		for _, m := range models {
			c.models[m] = true
		}
	}
}

func newAdapterConfig(opts []AdapterOption) adapterConfig {
	c := adapterConfig{vetoReason: ReasonForbidden}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c adapterConfig) wants(model string) bool {
	return c.models == nil || c.models[model]
}

// FromEntityHook converts an EntityHook into an Action. The hook runs once
// per present entity; the first veto stops the chain.
//
// Example:
//
//	cfg.AddPrologue(datagate.FromEntityHook(func(ctx context.Context, tag datagate.ActionTag, e datagate.Entity) bool {
//	    inv, ok := e.(*Invoice)
//	    return !ok || !inv.Locked
//	}, datagate.ForModels("Invoice")))
func FromEntityHook(hook EntityHook, opts ...AdapterOption) Action {
	if hook == nil {
		return nil
	}
	cfg := newAdapterConfig(opts)
	return func(ctx context.Context, tag ActionTag, changes ChangeSet) *Status {
		for _, item := range changes {
			e := item.Entity()
			if e == nil || !cfg.wants(item.ModelName()) {
				continue
			}
			if !hook(ctx, tag, e) {
				return Abort(cfg.vetoReason, fmt.Sprintf("%s on %s vetoed", tag, item.ModelName()))
			}
		}
		return nil
	}
}

// FromErrorHook converts an ErrorHook into an Action. Returned errors are
// classified with ReasonOf.
func FromErrorHook(hook ErrorHook, opts ...AdapterOption) Action {
	if hook == nil {
		return nil
	}
	cfg := newAdapterConfig(opts)
	return func(ctx context.Context, tag ActionTag, changes ChangeSet) *Status {
		if cfg.models != nil {
			filtered := make(ChangeSet, 0, len(changes))
			for _, item := range changes {
				if cfg.wants(item.ModelName()) {
					filtered = append(filtered, item)
				}
			}
			if len(filtered) == 0 {
				return nil
			}
			changes = filtered
		}
		if err := hook(ctx, tag, changes); err != nil {
			s := FromError[Empty](err)
			return &s
		}
		return nil
	}
}
