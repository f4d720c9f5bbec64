package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

// Migrate applies the shared migrations in cfg.MigrationsPath.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, log Logger) error {
	if err := checkDir(cfg.MigrationsPath); err != nil {
		return err
	}

	db := stdlib.OpenDBFromPool(pool)
	defer closeDB(ctx, db, log)

	return up(ctx, db, cfg, cfg.MigrationsPath, log)
}

// MigrateTenants applies cfg.TenantMigrationsPath inside every registered
// tenant schema, in registry order, stopping at the first failure.
//
// Each tenant gets a short-lived pool whose connections start with the
// tenant search path, so unqualified names and the goose version table
// land in the tenant schema. Schemas must exist already (Manager.Create).
// With the column strategy tenants share tables and nothing is done.
func MigrateTenants(ctx context.Context, cfg Config, m *tenancy.Manager, log Logger) error {
	sa, err := schemaAdapter(ctx, cfg, m, log)
	if sa == nil {
		return err
	}

	ctx, release, err := m.Flow(ctx)
	if err != nil {
		return err
	}
	defer release()

	return m.Each(ctx, func(ctx context.Context, id string) error {
		log.InfoContext(ctx, "migrating tenant", logger.TenantID(id), "schema", sa.SchemaName(id))
		if err := migrateTenant(ctx, cfg, sa.SearchPath(id), log); err != nil {
			return fmt.Errorf("tenant %q: %w", id, err)
		}
		return nil
	})
}

// MigrateTenant applies cfg.TenantMigrationsPath inside the schema of one
// registered tenant. Like MigrateTenants it does nothing for the column strategy.
func MigrateTenant(ctx context.Context, cfg Config, m *tenancy.Manager, id string, log Logger) error {
	sa, err := schemaAdapter(ctx, cfg, m, log)
	if sa == nil {
		return err
	}
	ok, err := m.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", tenancy.ErrTenantNotFound, id)
	}

	log.InfoContext(ctx, "migrating tenant", logger.TenantID(id), "schema", sa.SchemaName(id))
	if err := migrateTenant(ctx, cfg, sa.SearchPath(id), log); err != nil {
		return fmt.Errorf("tenant %q: %w", id, err)
	}
	return nil
}

// schemaAdapter returns nil, nil when the strategy does not use schemas.
func schemaAdapter(ctx context.Context, cfg Config, m *tenancy.Manager, log Logger) (*tenancy.SchemaAdapter, error) {
	adapter, err := m.Adapter()
	if err != nil {
		return nil, err
	}
	sa, ok := adapter.(*tenancy.SchemaAdapter)
	if !ok {
		log.InfoContext(ctx, "tenant migrations skipped, strategy does not use schemas")
		return nil, nil
	}
	if err := checkDir(cfg.TenantMigrationsPath); err != nil {
		return nil, err
	}
	return sa, nil
}

func migrateTenant(ctx context.Context, cfg Config, path []string, log Logger) error {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return err
	}
	poolCfg.MaxConns = 1
	poolCfg.MinConns = 0
	poolCfg.ConnConfig.RuntimeParams["search_path"] = SearchPathParam(path)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return errors.Join(ErrFailedToOpenDBConnection, err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer closeDB(ctx, db, log)

	return up(ctx, db, cfg, cfg.TenantMigrationsPath, log)
}

// SearchPathParam renders path as a search_path value with every schema quoted.
func SearchPathParam(path []string) string {
	quoted := make([]string, len(path))
	for i, name := range path {
		quoted[i] = pgx.Identifier{name}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

func up(ctx context.Context, db *sql.DB, cfg Config, dir string, log Logger) error {
	goose.SetLogger(gooseLogger{log: log})
	if cfg.MigrationsTable != "" {
		goose.SetTableName(cfg.MigrationsTable)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

func checkDir(path string) error {
	if path == "" {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationPathNotProvided)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Join(ErrMigrationsDirNotFound, err)
		}
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

func closeDB(ctx context.Context, db *sql.DB, log Logger) {
	if err := db.Close(); err != nil {
		log.ErrorContext(ctx, "failed to close migration connection", logger.Error(err))
	}
}

// gooseLogger routes goose output to the application logger.
type gooseLogger struct {
	log Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.ErrorContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.InfoContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}
