// Package scoped is the data-access side of the column isolation strategy.
//
// DB wraps a *sqlx.DB and a *tenancy.Manager. Every read, update and
// delete on a tenant-scoped entity gets a predicate on the discriminator
// column for the tenant active in the context; every insert has the
// discriminator filled in when the caller left it out. Entities listed in
// the excluded set are never filtered.
//
// When no tenant is active, operations pass through unfiltered unless the
// configuration requires a tenant, in which case they fail with
// tenancy.ErrTenantContextMissing. With strict immutability on, an update
// that sets the discriminator fails with tenancy.ErrTenantImmutable
// before anything is sent to the database.
//
//	db := scoped.New(sqlxDB, m)
//	err := m.Scoped(ctx, "acme", func(ctx context.Context) error {
//	    if _, err := db.Insert(ctx, "notes", map[string]any{"body": "hi"}); err != nil {
//	        return err
//	    }
//	    var notes []Note
//	    return db.Select(ctx, &notes, "notes", "")
//	})
//
// Filters use "?" placeholders; they are rebound for the driver.
package scoped
