package tenancy

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// Conn is the statement surface the schema strategy needs.
// *sql.DB, *sql.Conn, *sqlx.DB and *sqlx.Tx all satisfy it.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// connPool is implemented by pooled handles able to hand out a dedicated connection.
type connPool interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

const schemaExistsQuery = `SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`

// SchemaAdapter isolates tenants by switching the PostgreSQL search_path.
// The search path lists the tenant schema first, then the persistent
// schemas, then the default schema.
type SchemaAdapter struct {
	*engine
}

func newSchemaAdapter(cfg Config, global *flow) *SchemaAdapter {
	a := &SchemaAdapter{}
	a.engine = newEngine(cfg, global, a)
	return a
}

// SchemaName derives the namespace of a tenant from the configured format.
// No escaping happens here; statements quote it separately.
func (a *SchemaAdapter) SchemaName(id string) string {
	return strings.Replace(a.cfg.SchemaFormat, TenantPlaceholder, id, 1)
}

// SearchPath returns the ordered namespace list for id. An empty id
// yields the path used while no tenant is active.
func (a *SchemaAdapter) SearchPath(id string) []string {
	path := make([]string, 0, len(a.cfg.PersistentSchemas)+2)
	if id != "" {
		path = append(path, a.SchemaName(id))
	}
	path = append(path, a.cfg.PersistentSchemas...)
	return append(path, a.cfg.DefaultSchema)
}

func (a *SchemaAdapter) activate(ctx context.Context, f *flow, id string) error {
	conn := a.conn(f)
	name := a.SchemaName(id)

	ok, err := a.schemaExists(ctx, conn, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrSchemaNotFound, name)
	}
	return a.setSearchPath(ctx, conn, a.SearchPath(id))
}

func (a *SchemaAdapter) deactivate(ctx context.Context, f *flow) error {
	return a.setSearchPath(ctx, a.conn(f), a.SearchPath(""))
}

// Create provisions the tenant schema. CREATE SCHEMA IF NOT EXISTS makes
// it idempotent. The after-create hook runs with the new tenant active.
func (a *SchemaAdapter) Create(ctx context.Context, id string) error {
	if err := a.registry.Validate(ctx, id); err != nil {
		return err
	}
	if hook := a.cfg.Callbacks.BeforeCreate; hook != nil {
		if err := hook(ctx, id); err != nil {
			return err
		}
	}

	name := a.SchemaName(id)
	if _, err := a.conn(a.flowOf(ctx)).ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(name)); err != nil {
		err = fmt.Errorf("create schema %q: %w", name, err)
		a.recordError(ctx, audit.ActionCreate, id, err)
		return err
	}
	a.record(ctx, audit.ActionCreate, id, audit.WithResource("schema", name))

	hook := a.cfg.Callbacks.AfterCreate
	if hook == nil {
		return nil
	}
	return a.Scoped(ctx, id, func(ctx context.Context) error {
		return hook(ctx, id)
	})
}

// Drop removes the tenant schema and everything in it.
func (a *SchemaAdapter) Drop(ctx context.Context, id string) error {
	if id == "" {
		return tenantNotFound(id)
	}
	name := a.SchemaName(id)
	if name == a.cfg.DefaultSchema || slices.Contains(a.cfg.PersistentSchemas, name) {
		return configError("refusing to drop shared schema %q", name)
	}

	if _, err := a.conn(a.flowOf(ctx)).ExecContext(ctx, "DROP SCHEMA IF EXISTS "+quoteIdent(name)+" CASCADE"); err != nil {
		err = fmt.Errorf("drop schema %q: %w", name, err)
		a.recordError(ctx, audit.ActionDrop, id, err)
		return err
	}
	a.record(ctx, audit.ActionDrop, id, audit.WithResource("schema", name))
	return nil
}

// pin hands out a dedicated connection for one flow when the configured
// handle is a pool. The connection starts on the default search path, as
// a new flow has no tenant, and release resets it before handing it back.
// A connection that cannot be reset is discarded instead of pooled.
func (a *SchemaAdapter) pin(ctx context.Context) (Conn, func(), error) {
	pool, ok := a.cfg.DB.(connPool)
	if !ok {
		return nil, func() {}, nil
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}
	if err := a.setSearchPath(ctx, conn, a.SearchPath("")); err != nil {
		discard(conn)
		return nil, nil, err
	}

	release := func() {
		cleanup := context.WithoutCancel(ctx)
		if err := a.setSearchPath(cleanup, conn, a.SearchPath("")); err != nil {
			a.log.WarnContext(cleanup, "discarding connection, search_path reset failed", logger.Error(err))
			discard(conn)
			return
		}
		_ = conn.Close()
	}
	return conn, release, nil
}

// discard closes conn and tells the pool not to reuse the underlying
// driver connection.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

func (a *SchemaAdapter) conn(f *flow) Conn {
	if f != nil && f.conn != nil {
		return f.conn
	}
	return a.cfg.DB
}

func (a *SchemaAdapter) schemaExists(ctx context.Context, conn Conn, name string) (bool, error) {
	var ok bool
	if err := conn.QueryRowContext(ctx, schemaExistsQuery, name).Scan(&ok); err != nil {
		return false, fmt.Errorf("probe schema %q: %w", name, err)
	}
	return ok, nil
}

func (a *SchemaAdapter) setSearchPath(ctx context.Context, conn Conn, path []string) error {
	if _, err := conn.ExecContext(ctx, "SET search_path TO "+quotePath(path)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	return nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quotePath(path []string) string {
	quoted := make([]string, len(path))
	for i, name := range path {
		quoted[i] = quoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}
