package tenancy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// Adapter is the contract shared by both isolation strategies.
type Adapter interface {
	// Current returns the active tenant of the flow carried by ctx, or "".
	Current(ctx context.Context) string
	// Switch activates id until the next Switch or Reset.
	Switch(ctx context.Context, id string) error
	// Scoped activates id for the duration of fn and then restores
	// whatever was active before, even when fn fails or panics.
	Scoped(ctx context.Context, id string, fn func(context.Context) error) error
	// Reset deactivates the current tenant.
	Reset(ctx context.Context) error
	Create(ctx context.Context, id string) error
	Drop(ctx context.Context, id string) error
	// Exists reports registry membership, not storage existence.
	Exists(ctx context.Context, id string) (bool, error)
	// Each runs fn inside Scoped for every registered tenant in provider order.
	Each(ctx context.Context, fn func(ctx context.Context, id string) error) error
}

// strategy is the storage-specific part of an adapter.
type strategy interface {
	activate(ctx context.Context, f *flow, id string) error
	deactivate(ctx context.Context, f *flow) error
}

// engine implements the switching protocol common to all strategies.
type engine struct {
	cfg      Config
	registry *Registry
	strategy strategy
	global   *flow
	log      *slog.Logger
}

func newEngine(cfg Config, global *flow, s strategy) *engine {
	return &engine{
		cfg:      cfg,
		registry: NewRegistry(cfg.Tenants),
		strategy: s,
		global:   global,
		log:      cfg.Logger,
	}
}

func (e *engine) flowOf(ctx context.Context) *flow {
	if f, ok := flowFromContext(ctx); ok {
		return f
	}
	return e.global
}

func (e *engine) Current(ctx context.Context) string {
	return e.flowOf(ctx).get()
}

func (e *engine) Exists(ctx context.Context, id string) (bool, error) {
	return e.registry.Exists(ctx, id)
}

func (e *engine) Switch(ctx context.Context, id string) error {
	return e.switchFlow(ctx, e.flowOf(ctx), id)
}

func (e *engine) Reset(ctx context.Context) error {
	return e.transition(ctx, e.flowOf(ctx), "")
}

func (e *engine) switchFlow(ctx context.Context, f *flow, id string) error {
	if err := e.registry.Validate(ctx, id); err != nil {
		e.recordError(ctx, audit.ActionSwitch, id, err)
		return err
	}
	return e.transition(ctx, f, id)
}

// transition moves f to the given tenant ("" deactivates).
// A failing before hook leaves the state untouched; a failing after hook
// is returned even though the state has already changed. Hooks run
// outside switchMu, so they may call back into the manager.
func (e *engine) transition(ctx context.Context, f *flow, to string) error {
	from := f.get()

	if hook := e.cfg.Callbacks.BeforeSwitch; hook != nil {
		if err := hook(ctx, from, to); err != nil {
			return err
		}
	}

	if err := e.apply(ctx, f, to); err != nil {
		e.recordError(ctx, audit.ActionSwitch, to, err)
		return err
	}

	e.log.DebugContext(ctx, "tenant switched",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("strategy", string(e.cfg.Strategy)))

	action := audit.ActionSwitch
	if to == "" {
		action = audit.ActionReset
	}
	e.record(ctx, action, to, audit.WithMetadata("from", from))

	if hook := e.cfg.Callbacks.AfterSwitch; hook != nil {
		return hook(ctx, from, to)
	}
	return nil
}

// apply runs the storage statements and updates the slot as one step.
func (e *engine) apply(ctx context.Context, f *flow, to string) error {
	f.switchMu.Lock()
	defer f.switchMu.Unlock()

	var err error
	if to == "" {
		err = e.strategy.deactivate(ctx, f)
	} else {
		err = e.strategy.activate(ctx, f, to)
	}
	if err != nil {
		return err
	}
	f.set(to)
	return nil
}

func (e *engine) Scoped(ctx context.Context, id string, fn func(context.Context) error) (err error) {
	f := e.flowOf(ctx)
	prev := f.get()

	defer func() {
		if rerr := e.restore(context.WithoutCancel(ctx), f, prev); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	if err := e.switchFlow(ctx, f, id); err != nil {
		return err
	}
	return fn(ctx)
}

// restore brings f back to prev: switch to it, else reset, else clear
// the slot without hooks so no flow ever keeps residual state. The
// transition runs even when f already holds prev, so scope exits always
// fire the switch hooks.
func (e *engine) restore(ctx context.Context, f *flow, prev string) error {
	var errs []error
	if prev != "" {
		err := e.switchFlow(ctx, f, prev)
		if f.get() == prev {
			return err
		}
		errs = append(errs, err)
	}

	errs = append(errs, e.transition(ctx, f, ""))
	if f.get() != "" {
		errs = append(errs, e.clear(ctx, f))
	}

	err := errors.Join(errs...)
	if err != nil {
		e.log.ErrorContext(ctx, "tenant restore failed",
			slog.String("previous", prev),
			logger.Error(err))
	}
	return err
}

func (e *engine) clear(ctx context.Context, f *flow) error {
	f.switchMu.Lock()
	defer f.switchMu.Unlock()

	err := e.strategy.deactivate(ctx, f)
	f.set("")
	return err
}

func (e *engine) Each(ctx context.Context, fn func(ctx context.Context, id string) error) error {
	ids, err := e.registry.AllTenants(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := e.Scoped(ctx, id, func(ctx context.Context) error {
			return fn(ctx, id)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Create runs the create hooks. Strategies with storage override it.
func (e *engine) Create(ctx context.Context, id string) error {
	if err := e.registry.Validate(ctx, id); err != nil {
		return err
	}
	if hook := e.cfg.Callbacks.BeforeCreate; hook != nil {
		if err := hook(ctx, id); err != nil {
			return err
		}
	}
	e.record(ctx, audit.ActionCreate, id)
	if hook := e.cfg.Callbacks.AfterCreate; hook != nil {
		return hook(ctx, id)
	}
	return nil
}

// Drop is a no-op unless a strategy owns storage.
func (e *engine) Drop(ctx context.Context, id string) error {
	e.record(ctx, audit.ActionDrop, id)
	return nil
}

func (e *engine) record(ctx context.Context, action, id string, opts ...audit.EventOption) {
	if e.cfg.Auditor == nil {
		return
	}
	opts = append(opts, audit.WithTenantID(id))
	if err := e.cfg.Auditor.Log(ctx, action, opts...); err != nil {
		e.log.WarnContext(ctx, "audit event dropped", slog.String("action", action), logger.Error(err))
	}
}

func (e *engine) recordError(ctx context.Context, action, id string, cause error) {
	e.log.ErrorContext(ctx, "tenant operation failed",
		slog.String("action", action),
		logger.TenantID(id),
		logger.Error(cause))

	if e.cfg.Auditor == nil {
		return
	}
	if err := e.cfg.Auditor.LogError(ctx, audit.ActionError, cause,
		audit.WithTenantID(id),
		audit.WithMetadata("operation", action),
	); err != nil {
		e.log.WarnContext(ctx, "audit event dropped", slog.String("action", audit.ActionError), logger.Error(err))
	}
}
