// Package redis connects to Redis with go-redis and stores the tenant
// registry in a sorted set.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	registry := redis.NewTenantRegistry(client, cfg.TenantsKey)
//	m, err := tenancy.NewWithConfig(tenancy.Config{
//	    Strategy: tenancy.StrategyColumn,
//	    Tenants:  registry,
//	})
//
//	_ = registry.Add(ctx, "acme") // valid for m right away
//
// Healthcheck returns a ping probe for readiness endpoints.
package redis
