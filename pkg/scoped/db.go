package scoped

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

// DB runs tenant-scoped statements.
type DB struct {
	db *sqlx.DB
	m  *tenancy.Manager
}

func New(db *sqlx.DB, m *tenancy.Manager) *DB {
	return &DB{db: db, m: m}
}

type txKey struct{}

// Transaction runs fn in a transaction. Scoped calls made with the
// context passed to fn join it. A panic in fn rolls back and re-panics.
func (d *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (d *DB) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return d.db
}

// Select loads every row of entity matching filter into dest.
func (d *DB) Select(ctx context.Context, dest any, entity, filter string, args ...any) error {
	q, err := d.build(ctx, entity)
	if err != nil {
		return err
	}
	query, args := q.selectSQL(filter, args)
	return sqlx.SelectContext(ctx, d.ext(ctx), dest, d.db.Rebind(query), args...)
}

// Get loads exactly one row. A row owned by another tenant reads as sql.ErrNoRows.
func (d *DB) Get(ctx context.Context, dest any, entity, filter string, args ...any) error {
	q, err := d.build(ctx, entity)
	if err != nil {
		return err
	}
	query, args := q.selectSQL(filter, args)
	return sqlx.GetContext(ctx, d.ext(ctx), dest, d.db.Rebind(query+" LIMIT 1"), args...)
}

func (d *DB) Count(ctx context.Context, entity, filter string, args ...any) (int64, error) {
	q, err := d.build(ctx, entity)
	if err != nil {
		return 0, err
	}
	query, args := q.countSQL(filter, args)
	var n int64
	if err := sqlx.GetContext(ctx, d.ext(ctx), &n, d.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	return n, nil
}

// Insert adds one row, filling the discriminator with the active tenant
// when values does not set it.
func (d *DB) Insert(ctx context.Context, entity string, values map[string]any) (sql.Result, error) {
	q, err := d.build(ctx, entity)
	if err != nil {
		return nil, err
	}
	query, args := q.insertSQL(values)
	return d.ext(ctx).ExecContext(ctx, d.db.Rebind(query), args...)
}

// Update changes the rows matching filter within the active tenant.
func (d *DB) Update(ctx context.Context, entity string, set map[string]any, filter string, args ...any) (int64, error) {
	q, err := d.build(ctx, entity)
	if err != nil {
		return 0, err
	}
	if err := q.checkImmutable(set); err != nil {
		d.m.RecordViolation(ctx, entity, err)
		return 0, err
	}
	query, args := q.updateSQL(set, filter, args)
	return rowsAffected(d.ext(ctx).ExecContext(ctx, d.db.Rebind(query), args...))
}

// Delete removes the rows matching filter within the active tenant.
func (d *DB) Delete(ctx context.Context, entity, filter string, args ...any) (int64, error) {
	q, err := d.build(ctx, entity)
	if err != nil {
		return 0, err
	}
	query, args := q.deleteSQL(filter, args)
	return rowsAffected(d.ext(ctx).ExecContext(ctx, d.db.Rebind(query), args...))
}

// Predicate returns the tenant filter for entity, e.g. `"tenant_id" = ?`
// with its argument, for hand-written queries. An empty clause means the
// entity is not filtered in ctx.
func (d *DB) Predicate(ctx context.Context, entity string) (string, []any, error) {
	q, err := d.build(ctx, entity)
	if err != nil {
		return "", nil, err
	}
	if !q.filtered() {
		return "", nil, nil
	}
	return q.predicate(), []any{q.tenant}, nil
}

// build resolves how entity is scoped in ctx.
func (d *DB) build(ctx context.Context, entity string) (*statement, error) {
	cfg, err := d.m.Configuration()
	if err != nil {
		return nil, err
	}
	if cfg.Strategy != tenancy.StrategyColumn {
		return nil, fmt.Errorf("%w: scoped queries need the column strategy, got %q",
			tenancy.ErrConfiguration, cfg.Strategy)
	}

	q := &statement{
		entity:    entity,
		column:    cfg.TenantColumn,
		immutable: cfg.StrictImmutability,
		unscoped:  true,
	}

	excluded, err := d.m.IsExcluded(entity)
	if err != nil {
		return nil, err
	}
	if excluded {
		return q, nil
	}

	id, err := d.m.RequireCurrent(ctx)
	if err != nil {
		d.m.RecordViolation(ctx, entity, err)
		return nil, err
	}
	if id == "" {
		return q, nil
	}

	q.tenant = id
	q.unscoped = false
	d.m.RecordAccess(ctx, entity)
	return q, nil
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
