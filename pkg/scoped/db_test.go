package scoped_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/scoped"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

type note struct {
	ID       int64  `db:"id"`
	Body     string `db:"body"`
	TenantID string `db:"tenant_id"`
}

type fixture struct {
	db     *scoped.DB
	mock   sqlmock.Sqlmock
	m      *tenancy.Manager
	events *audit.MemoryStorage
}

func setup(t *testing.T, cfg tenancy.Config) *fixture {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = conn.Close()
	})

	events := audit.NewMemoryStorage()
	if cfg.Strategy == "" {
		cfg.Strategy = tenancy.StrategyColumn
	}
	if cfg.Tenants == nil {
		cfg.Tenants = tenancy.StaticTenants("acme", "globex")
	}
	m, err := tenancy.NewWithConfig(cfg,
		tenancy.WithAuditor(audit.NewLogger(events)),
		tenancy.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	return &fixture{
		db:     scoped.New(sqlx.NewDb(conn, "postgres"), m),
		mock:   mock,
		m:      m,
		events: events,
	}
}

func (f *fixture) flow(t *testing.T) context.Context {
	t.Helper()
	ctx, release, err := f.m.Flow(context.Background())
	require.NoError(t, err)
	t.Cleanup(release)
	return ctx
}

func q(query string) string { return regexp.QuoteMeta(query) }

func TestDB_ColumnIsolation(t *testing.T) {
	t.Parallel()

	f := setup(t, tenancy.Config{})
	ctx := f.flow(t)

	insert := q(`INSERT INTO "notes" ("body", "tenant_id") VALUES ($1, $2)`)
	f.mock.ExpectExec(insert).WithArgs("R1", "acme").WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(insert).WithArgs("R2", "globex").WillReturnResult(sqlmock.NewResult(2, 1))
	f.mock.ExpectQuery(q(`SELECT * FROM "notes" WHERE "tenant_id" = $1`)).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body", "tenant_id"}).AddRow(1, "R1", "acme"))

	require.NoError(t, f.m.Scoped(ctx, "acme", func(ctx context.Context) error {
		_, err := f.db.Insert(ctx, "notes", map[string]any{"body": "R1"})
		return err
	}))
	require.NoError(t, f.m.Scoped(ctx, "globex", func(ctx context.Context) error {
		_, err := f.db.Insert(ctx, "notes", map[string]any{"body": "R2"})
		return err
	}))

	notes, err := tenancy.ScopedValue(ctx, f.m, "acme", func(ctx context.Context) ([]note, error) {
		var out []note
		err := f.db.Select(ctx, &out, "notes", "")
		return out, err
	})
	require.NoError(t, err)
	assert.Equal(t, []note{{ID: 1, Body: "R1", TenantID: "acme"}}, notes)
}

func TestDB_FilterIsCombinedWithTenant(t *testing.T) {
	t.Parallel()

	f := setup(t, tenancy.Config{})
	ctx := f.flow(t)
	require.NoError(t, f.m.Switch(ctx, "acme"))

	f.mock.ExpectQuery(q(`SELECT * FROM "notes" WHERE "tenant_id" = $1 AND (body = $2 OR body = $3)`)).
		WithArgs("acme", "a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body", "tenant_id"}))
	f.mock.ExpectQuery(q(`SELECT * FROM "notes" WHERE "tenant_id" = $1 AND (id = $2) LIMIT 1`)).
		WithArgs("acme", 7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "body", "tenant_id"}).AddRow(7, "x", "acme"))
	f.mock.ExpectQuery(q(`SELECT COUNT(*) FROM "notes" WHERE "tenant_id" = $1`)).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	var notes []note
	require.NoError(t, f.db.Select(ctx, &notes, "notes", "body = ? OR body = ?", "a", "b"))
	assert.Empty(t, notes)

	var n note
	require.NoError(t, f.db.Get(ctx, &n, "notes", "id = ?", 7))
	assert.Equal(t, int64(7), n.ID)

	count, err := f.db.Count(ctx, "notes", "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestDB_ExcludedEntityBypass(t *testing.T) {
	t.Parallel()

	f := setup(t, tenancy.Config{
		ExcludedEntities: []string{"plans"},
		RequireTenant:    true,
	})
	ctx := f.flow(t)

	f.mock.ExpectQuery(q(`SELECT * FROM "plans"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	f.mock.ExpectQuery(q(`SELECT * FROM "plans" WHERE (id = $1)`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	f.mock.ExpectExec(q(`INSERT INTO "tenants" ("name") VALUES ($1)`)).
		WithArgs("initech").
		WillReturnResult(sqlmock.NewResult(3, 1))

	var ids []int64
	require.NoError(t, f.db.Select(ctx, &ids, "plans", ""))

	require.NoError(t, f.m.Scoped(ctx, "acme", func(ctx context.Context) error {
		var ids []int64
		if err := f.db.Select(ctx, &ids, "plans", "id = ?", 1); err != nil {
			return err
		}
		_, err := f.db.Insert(ctx, tenancy.DefaultRegistryEntity, map[string]any{"name": "initech"})
		return err
	}))

	clause, args, err := f.db.Predicate(ctx, "plans")
	require.NoError(t, err)
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

func TestDB_MissingTenant(t *testing.T) {
	t.Parallel()

	t.Run("required", func(t *testing.T) {
		t.Parallel()

		f := setup(t, tenancy.Config{
			RequireTenant: true,
			Audit:         tenancy.AuditFlags{Violations: true},
		})
		ctx := f.flow(t)

		var notes []note
		err := f.db.Select(ctx, &notes, "notes", "")
		assert.ErrorIs(t, err, tenancy.ErrTenantContextMissing)

		_, err = f.db.Insert(ctx, "notes", map[string]any{"body": "x"})
		assert.ErrorIs(t, err, tenancy.ErrTenantContextMissing)

		violations, err := f.events.Query(ctx, audit.Criteria{Action: audit.ActionViolation})
		require.NoError(t, err)
		require.Len(t, violations, 2)
		assert.Equal(t, "notes", violations[0].ResourceID)
	})

	t.Run("optional passes through", func(t *testing.T) {
		t.Parallel()

		f := setup(t, tenancy.Config{})
		ctx := f.flow(t)

		f.mock.ExpectQuery(q(`SELECT COUNT(*) FROM "notes"`)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))
		f.mock.ExpectExec(q(`INSERT INTO "notes" ("body") VALUES ($1)`)).
			WithArgs("x").
			WillReturnResult(sqlmock.NewResult(1, 1))

		count, err := f.db.Count(ctx, "notes", "")
		require.NoError(t, err)
		assert.Equal(t, int64(9), count)

		_, err = f.db.Insert(ctx, "notes", map[string]any{"body": "x"})
		require.NoError(t, err)
	})
}

func TestDB_Update(t *testing.T) {
	t.Parallel()

	t.Run("scoped to the active tenant", func(t *testing.T) {
		t.Parallel()

		f := setup(t, tenancy.Config{StrictImmutability: true})
		ctx := f.flow(t)
		require.NoError(t, f.m.Switch(ctx, "acme"))

		f.mock.ExpectExec(q(`UPDATE "notes" SET "body" = $1 WHERE "tenant_id" = $2 AND (id = $3)`)).
			WithArgs("new", "acme", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := f.db.Update(ctx, "notes", map[string]any{"body": "new"}, "id = ?", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("strict immutability rejects discriminator changes", func(t *testing.T) {
		t.Parallel()

		f := setup(t, tenancy.Config{
			StrictImmutability: true,
			Audit:              tenancy.AuditFlags{Violations: true},
		})
		ctx := f.flow(t)
		require.NoError(t, f.m.Switch(ctx, "acme"))

		_, err := f.db.Update(ctx, "notes", map[string]any{"tenant_id": "globex"}, "id = ?", 1)
		assert.ErrorIs(t, err, tenancy.ErrTenantImmutable)

		violations, err := f.events.Query(ctx, audit.Criteria{Action: audit.ActionViolation})
		require.NoError(t, err)
		require.Len(t, violations, 1)
		assert.Equal(t, "acme", violations[0].TenantID)
	})

	t.Run("discriminator may change without strict immutability", func(t *testing.T) {
		t.Parallel()

		f := setup(t, tenancy.Config{})
		ctx := f.flow(t)
		require.NoError(t, f.m.Switch(ctx, "acme"))

		f.mock.ExpectExec(q(`UPDATE "notes" SET "tenant_id" = $1 WHERE "tenant_id" = $2`)).
			WithArgs("globex", "acme").
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := f.db.Update(ctx, "notes", map[string]any{"tenant_id": "globex"}, "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestDB_InsertKeepsExplicitDiscriminator(t *testing.T) {
	t.Parallel()

	f := setup(t, tenancy.Config{TenantColumn: "org"})
	ctx := f.flow(t)
	require.NoError(t, f.m.Switch(ctx, "acme"))

	f.mock.ExpectExec(q(`INSERT INTO "notes" ("body", "org") VALUES ($1, $2)`)).
		WithArgs("x", "globex").
		WillReturnResult(sqlmock.NewResult(1, 1))

	values := map[string]any{"body": "x", "org": "globex"}
	_, err := f.db.Insert(ctx, "notes", values)
	require.NoError(t, err)

	clause, args, err := f.db.Predicate(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, `"org" = ?`, clause)
	assert.Equal(t, []any{"acme"}, args)
}

func TestDB_Delete(t *testing.T) {
	t.Parallel()

	f := setup(t, tenancy.Config{})
	ctx := f.flow(t)
	require.NoError(t, f.m.Switch(ctx, "globex"))

	f.mock.ExpectExec(q(`DELETE FROM "notes" WHERE "tenant_id" = $1`)).
		WithArgs("globex").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := f.db.Delete(ctx, "notes", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestDB_Transaction(t *testing.T) {
	t.Parallel()

	t.Run("commit", func(t *testing.T) {
		t.Parallel()

		f := setup(t, tenancy.Config{})
		ctx := f.flow(t)
		require.NoError(t, f.m.Switch(ctx, "acme"))

		f.mock.ExpectBegin()
		f.mock.ExpectExec(q(`DELETE FROM "notes" WHERE "tenant_id" = $1`)).
			WithArgs("acme").
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectCommit()

		require.NoError(t, f.db.Transaction(ctx, func(ctx context.Context) error {
			_, err := f.db.Delete(ctx, "notes", "")
			return err
		}))
	})

	t.Run("rollback", func(t *testing.T) {
		t.Parallel()

		f := setup(t, tenancy.Config{})
		ctx := f.flow(t)

		boom := errors.New("boom")
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		err := f.db.Transaction(ctx, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("panic rolls back", func(t *testing.T) {
		t.Parallel()

		f := setup(t, tenancy.Config{})
		ctx := f.flow(t)

		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		assert.PanicsWithValue(t, "boom", func() {
			_ = f.db.Transaction(ctx, func(context.Context) error { panic("boom") })
		})
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestDB_AccessAudit(t *testing.T) {
	t.Parallel()

	f := setup(t, tenancy.Config{Audit: tenancy.AuditFlags{Access: true}})
	ctx := f.flow(t)
	require.NoError(t, f.m.Switch(ctx, "acme"))

	f.mock.ExpectQuery(q(`SELECT COUNT(*) FROM "notes" WHERE "tenant_id" = $1`)).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := f.db.Count(ctx, "notes", "")
	require.NoError(t, err)

	events, err := f.events.Query(ctx, audit.Criteria{Action: audit.ActionAccess})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "acme", events[0].TenantID)
	assert.Equal(t, "notes", events[0].ResourceID)
}

func TestDB_RequiresColumnStrategy(t *testing.T) {
	t.Parallel()

	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	m, err := tenancy.NewWithConfig(tenancy.Config{
		Strategy: tenancy.StrategySchema,
		Tenants:  tenancy.StaticTenants("acme"),
		DB:       conn,
	})
	require.NoError(t, err)

	db := scoped.New(sqlx.NewDb(conn, "postgres"), m)
	_, err = db.Count(context.Background(), "notes", "")
	assert.ErrorIs(t, err, tenancy.ErrConfiguration)

	_, err = scoped.New(sqlx.NewDb(conn, "postgres"), tenancy.New()).Count(context.Background(), "notes", "")
	assert.ErrorIs(t, err, tenancy.ErrNotConfigured)
}
