// Package mongo connects to MongoDB with the official v2 driver and keeps
// the tenant registry in a collection.
//
//	registry, client, err := mongo.NewTenantRegistryFromConfig(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Disconnect(ctx)
//
//	m, err := tenancy.NewWithConfig(tenancy.Config{
//	    Strategy: tenancy.StrategyColumn,
//	    Tenants:  registry,
//	})
//
// Each tenant is a document whose _id is the tenant id. Listing sorts by
// creation time, so the registry order matches the order tenants were added.
package mongo
