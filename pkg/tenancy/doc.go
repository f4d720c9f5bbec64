// Package tenancy keeps track of which tenant a unit of work runs for and
// isolates tenant data in PostgreSQL.
//
// Two isolation strategies are supported:
//
//   - StrategyColumn: shared tables with a discriminator column. Switching
//     performs no I/O; the data layer (see pkg/scoped) reads Current to
//     filter queries and stamp inserts.
//   - StrategySchema: one schema per tenant. Switching sets search_path to
//     the tenant schema, then the persistent schemas, then the default one.
//
// # Usage
//
//	m, err := tenancy.NewWithConfig(tenancy.Config{
//	    Strategy:      tenancy.StrategySchema,
//	    SchemaFormat:  "tenant_%{tenant}",
//	    Tenants:       tenancy.StaticTenants("acme", "globex"),
//	    DB:            db,
//	})
//	if err != nil {
//	    return err
//	}
//
//	err = m.Scoped(ctx, "acme", func(ctx context.Context) error {
//	    // queries here see only acme's schema
//	    return nil
//	})
//
// Scoped always restores the previous tenant, also when the body returns
// an error or panics.
//
// # Flows
//
// The active tenant lives in a flow slot. Manager.Flow attaches a fresh
// slot to a context; HTTP middleware and queue workers open one per request
// or task, so concurrent units of work never observe each other's tenant.
// For the schema strategy the flow also pins one pooled connection, which
// keeps the search_path and the queries on the same session. Contexts
// without a flow share the manager-wide slot.
//
// # Errors
//
// Every error returned by this package matches ErrTenant. Use errors.Is with
// ErrConfiguration, ErrNotConfigured, ErrTenantNotFound,
// ErrTenantContextMissing, ErrTenantImmutable or ErrSchemaNotFound for
// specific handling. Errors returned by user hooks are passed through as is.
package tenancy
