// Package pg connects to PostgreSQL through pgx/v5 and runs goose migrations,
// including per-tenant migrations for the schema isolation strategy.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	m, err := tenancy.NewWithConfig(tenancy.Config{
//	    Strategy: tenancy.StrategySchema,
//	    Tenants:  tenancy.StaticTenants("acme", "globex"),
//	    DB:       pg.OpenDB(pool),
//	})
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	    return err
//	}
//	if err := pg.MigrateTenants(ctx, cfg, m, slog.Default()); err != nil {
//	    return err
//	}
//
// Healthcheck returns a probe suitable for readiness endpoints, and the
// Is*Error helpers classify *pgconn.PgError values by SQLSTATE.
package pg
