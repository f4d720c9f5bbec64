package tenancy

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// State describes the tenant state machine as seen by one flow.
type State int

const (
	StateUnconfigured State = iota
	StateInactive
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	default:
		return "unconfigured"
	}
}

type snapshot struct {
	cfg      Config
	adapter  Adapter
	excluded map[string]struct{}
}

// Manager is the tenant context facade. Every operation delegates to the
// adapter selected by the configured strategy.
//
// Flows created with Flow get their own slot; any other context shares
// the manager-wide slot, which survives reconfiguration.
type Manager struct {
	snap   atomic.Pointer[snapshot]
	global *flow
}

// New returns an unconfigured manager. Every operation fails with
// ErrNotConfigured until Configure succeeds.
func New() *Manager {
	return &Manager{global: &flow{}}
}

// NewWithConfig is New followed by Configure.
func NewWithConfig(cfg Config, opts ...Option) (*Manager, error) {
	m := New()
	if err := m.Configure(cfg, opts...); err != nil {
		return nil, err
	}
	return m, nil
}

// Configure validates cfg and replaces the whole configuration atomically.
func (m *Manager) Configure(cfg Config, opts ...Option) error {
	built, err := cfg.build(opts...)
	if err != nil {
		return err
	}

	var adapter Adapter
	switch built.Strategy {
	case StrategySchema:
		adapter = newSchemaAdapter(built, m.global)
	default:
		adapter = newColumnAdapter(built, m.global)
	}

	excluded := make(map[string]struct{}, len(built.ExcludedEntities))
	for _, name := range built.ExcludedEntities {
		excluded[name] = struct{}{}
	}

	m.snap.Store(&snapshot{cfg: built, adapter: adapter, excluded: excluded})

	built.Logger.Debug("tenancy configured",
		"strategy", string(built.Strategy),
		"elevator", string(built.Elevator),
		"require_tenant", built.RequireTenant)
	return nil
}

func (m *Manager) load() (*snapshot, error) {
	s := m.snap.Load()
	if s == nil {
		return nil, ErrNotConfigured
	}
	return s, nil
}

// Configuration returns a copy of the active configuration.
func (m *Manager) Configuration() (Config, error) {
	s, err := m.load()
	if err != nil {
		return Config{}, err
	}
	cfg := s.cfg
	cfg.ExcludedEntities = slices.Clone(cfg.ExcludedEntities)
	cfg.PersistentSchemas = slices.Clone(cfg.PersistentSchemas)
	cfg.ExcludedSubdomains = slices.Clone(cfg.ExcludedSubdomains)
	cfg.ExcludedPaths = slices.Clone(cfg.ExcludedPaths)
	return cfg, nil
}

// Adapter exposes the strategy adapter, e.g. to reach SchemaAdapter.SearchPath.
func (m *Manager) Adapter() (Adapter, error) {
	s, err := m.load()
	if err != nil {
		return nil, err
	}
	return s.adapter, nil
}

// Current returns the active tenant of the flow in ctx, or "" when inactive.
func (m *Manager) Current(ctx context.Context) (string, error) {
	s, err := m.load()
	if err != nil {
		return "", err
	}
	return s.adapter.Current(ctx), nil
}

// RequireCurrent is Current, failing with ErrTenantContextMissing when
// no tenant is active and the configuration requires one.
func (m *Manager) RequireCurrent(ctx context.Context) (string, error) {
	s, err := m.load()
	if err != nil {
		return "", err
	}
	id := s.adapter.Current(ctx)
	if id == "" && s.cfg.RequireTenant {
		return "", ErrTenantContextMissing
	}
	return id, nil
}

// State reports the state machine position of the flow in ctx.
func (m *Manager) State(ctx context.Context) State {
	s := m.snap.Load()
	if s == nil {
		return StateUnconfigured
	}
	if s.adapter.Current(ctx) == "" {
		return StateInactive
	}
	return StateActive
}

func (m *Manager) Switch(ctx context.Context, id string) error {
	s, err := m.load()
	if err != nil {
		return err
	}
	return s.adapter.Switch(ctx, id)
}

func (m *Manager) Scoped(ctx context.Context, id string, fn func(context.Context) error) error {
	s, err := m.load()
	if err != nil {
		return err
	}
	return s.adapter.Scoped(ctx, id, fn)
}

// ScopedValue runs fn with id active and returns its result.
func ScopedValue[T any](ctx context.Context, m *Manager, id string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := m.Scoped(ctx, id, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (m *Manager) Reset(ctx context.Context) error {
	s, err := m.load()
	if err != nil {
		return err
	}
	return s.adapter.Reset(ctx)
}

// Restore returns the flow in ctx to prev ("" resets). It falls back to
// a reset, and finally to clearing the slot, when prev cannot be entered.
// Nothing happens when the flow already holds prev.
func (m *Manager) Restore(ctx context.Context, prev string) error {
	s, err := m.load()
	if err != nil {
		return err
	}
	e := engineOf(s.adapter)
	f := e.flowOf(ctx)
	if f.get() == prev {
		return nil
	}
	return e.restore(ctx, f, prev)
}

func (m *Manager) Create(ctx context.Context, id string) error {
	s, err := m.load()
	if err != nil {
		return err
	}
	return s.adapter.Create(ctx, id)
}

func (m *Manager) Drop(ctx context.Context, id string) error {
	s, err := m.load()
	if err != nil {
		return err
	}
	return s.adapter.Drop(ctx, id)
}

func (m *Manager) Exists(ctx context.Context, id string) (bool, error) {
	s, err := m.load()
	if err != nil {
		return false, err
	}
	return s.adapter.Exists(ctx, id)
}

func (m *Manager) AllTenants(ctx context.Context) ([]string, error) {
	s, err := m.load()
	if err != nil {
		return nil, err
	}
	return s.cfg.Tenants.Tenants(ctx)
}

func (m *Manager) Each(ctx context.Context, fn func(ctx context.Context, id string) error) error {
	s, err := m.load()
	if err != nil {
		return err
	}
	return s.adapter.Each(ctx, fn)
}

// IsExcluded reports whether entity is exempt from tenant scoping.
func (m *Manager) IsExcluded(entity string) (bool, error) {
	s, err := m.load()
	if err != nil {
		return false, err
	}
	_, ok := s.excluded[entity]
	return ok, nil
}

// Flow returns a context carrying a fresh, inactive tenant slot. For the
// schema strategy backed by a pool, the flow also pins one connection.
// The release func must be called once the flow is done.
func (m *Manager) Flow(ctx context.Context) (context.Context, func(), error) {
	s, err := m.load()
	if err != nil {
		return nil, nil, err
	}

	f := &flow{}
	release := func() {}

	if sa, ok := s.adapter.(*SchemaAdapter); ok {
		conn, rel, err := sa.pin(ctx)
		if err != nil {
			return nil, nil, err
		}
		f.conn = conn
		release = rel
	}

	return withFlow(ctx, f), release, nil
}

// Conn returns the connection queries in ctx must use: the connection
// pinned by the flow, or the configured handle. Nil for the column
// strategy without a DB.
func (m *Manager) Conn(ctx context.Context) (Conn, error) {
	s, err := m.load()
	if err != nil {
		return nil, err
	}
	if sa, ok := s.adapter.(*SchemaAdapter); ok {
		return sa.conn(sa.flowOf(ctx)), nil
	}
	return s.cfg.DB, nil
}

// RecordAccess emits an access audit event when access auditing is on.
func (m *Manager) RecordAccess(ctx context.Context, entity string) {
	s := m.snap.Load()
	if s == nil || !s.cfg.Audit.Access {
		return
	}
	engineOf(s.adapter).record(ctx, audit.ActionAccess, s.adapter.Current(ctx),
		audit.WithResource("entity", entity))
}

// RecordViolation emits a violation audit event and a warning log.
func (m *Manager) RecordViolation(ctx context.Context, entity string, cause error) {
	s := m.snap.Load()
	if s == nil {
		return
	}
	id := s.adapter.Current(ctx)
	s.cfg.Logger.WarnContext(ctx, "tenant violation",
		logger.TenantID(id),
		"entity", entity,
		logger.Error(cause))

	if !s.cfg.Audit.Violations || s.cfg.Auditor == nil {
		return
	}
	if err := s.cfg.Auditor.LogError(ctx, audit.ActionViolation, cause,
		audit.WithTenantID(id),
		audit.WithResource("entity", entity),
	); err != nil {
		s.cfg.Logger.WarnContext(ctx, "audit event dropped", logger.Error(err))
	}
}

func engineOf(a Adapter) *engine {
	switch a := a.(type) {
	case *SchemaAdapter:
		return a.engine
	case *ColumnAdapter:
		return a.engine
	}
	panic("tenancy: unknown adapter type")
}
