package datagate

import "context"

// Canceler is implemented by middlewares that keep state between their
// prologue and epilogue. Cancel is called instead of the epilogue when an
// operation whose prologue passed will not reach its epilogue: a later
// prologue aborted, an earlier epilogue aborted, the commit failed, or the
// staged change was discarded or closed.
type Canceler interface {
	Cancel(ctx context.Context, tag ActionTag, changes ChangeSet)
}

type hook struct {
	action   Action
	canceler Canceler
}

func (h hook) cancel(ctx context.Context, tag ActionTag, changes ChangeSet) {
	if h.canceler != nil {
		h.canceler.Cancel(ctx, tag, changes)
	}
}

// Runner is a read-only snapshot of the configured prologue and epilogue
// lists. Later changes to the Configurator do not affect it, and it is safe
// to share across goroutines as long as the actions themselves are.
type Runner struct {
	prologues []hook
	epilogues []hook
}

// EmptyRunner returns a runner with no actions.
func EmptyRunner() *Runner {
	return &Runner{}
}

// RunPrologue invokes the prologue actions in order. The first failure stops
// the chain and is returned; nil means the operation may proceed. Cancelers
// whose prologue already passed are cancelled in reverse order.
func (r *Runner) RunPrologue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status {
	if r == nil {
		return nil
	}
	i, res := run(ctx, r.prologues, tag, changes)
	if res != nil {
		for j := i - 1; j >= 0; j-- {
			r.prologues[j].cancel(ctx, tag, changes)
		}
	}
	return res
}

// RunEpilogue invokes the epilogue actions in order, with the same
// short-circuit rule as RunPrologue. Cancelers whose epilogue is skipped
// are cancelled.
func (r *Runner) RunEpilogue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status {
	if r == nil {
		return nil
	}
	i, res := run(ctx, r.epilogues, tag, changes)
	if res != nil {
		for _, h := range r.epilogues[i+1:] {
			h.cancel(ctx, tag, changes)
		}
	}
	return res
}

// Cancel tells every Canceler that an operation which passed its prologue
// will not get an epilogue.
func (r *Runner) Cancel(ctx context.Context, tag ActionTag, changes ChangeSet) {
	if r == nil {
		return
	}
	for j := len(r.prologues) - 1; j >= 0; j-- {
		r.prologues[j].cancel(ctx, tag, changes)
	}
}

// Prologues returns the number of prologue actions.
func (r *Runner) Prologues() int {
	if r == nil {
		return 0
	}
	return len(r.prologues)
}

// Epilogues returns the number of epilogue actions.
func (r *Runner) Epilogues() int {
	if r == nil {
		return 0
	}
	return len(r.epilogues)
}

// run returns the index of the failing action with its status, or -1 and nil.
func run(ctx context.Context, hooks []hook, tag ActionTag, changes ChangeSet) (int, *Status) {
	for i, h := range hooks {
		// A successful status is treated as "continue".
		if res := h.action(ctx, tag, changes); res != nil && !res.Success() {
			return i, res
		}
	}
	return -1, nil
}
