package redis

import "time"

// Config configures the client. TenantsKey names the sorted set backing
// the tenant registry.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	TenantsKey     string        `env:"REDIS_TENANTS_KEY" envDefault:"tenantkit:tenants"`
}
