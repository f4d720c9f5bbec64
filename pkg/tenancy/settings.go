package tenancy

import (
	"github.com/dmitrymomot/tenantkit/pkg/config"
)

// Settings is the environment form of Config. Values that cannot come
// from the environment (provider, DB handle, hooks) are passed as options
// to Settings.Config.
type Settings struct {
	Strategy           Strategy `env:"TENANCY_STRATEGY" envDefault:"column"`
	TenantColumn       string   `env:"TENANCY_TENANT_COLUMN" envDefault:"tenant_id"`
	Tenants            []string `env:"TENANCY_TENANTS" envSeparator:","`
	ExcludedEntities   []string `env:"TENANCY_EXCLUDED_ENTITIES" envSeparator:","`
	RegistryEntity     string   `env:"TENANCY_REGISTRY_ENTITY" envDefault:"tenants"`
	SchemaFormat       string   `env:"TENANCY_SCHEMA_FORMAT" envDefault:"%{tenant}"`
	PersistentSchemas  []string `env:"TENANCY_PERSISTENT_SCHEMAS" envSeparator:","`
	DefaultSchema      string   `env:"TENANCY_DEFAULT_SCHEMA" envDefault:"public"`
	Elevator           Elevator `env:"TENANCY_ELEVATOR" envDefault:"subdomain"`
	ExcludedSubdomains []string `env:"TENANCY_EXCLUDED_SUBDOMAINS" envSeparator:","`
	ExcludedPaths      []string `env:"TENANCY_EXCLUDED_PATHS" envSeparator:","`
	RequireTenant      bool     `env:"TENANCY_REQUIRE_TENANT"`
	StrictImmutability bool     `env:"TENANCY_STRICT_IMMUTABILITY"`
	AuditAccess        bool     `env:"TENANCY_AUDIT_ACCESS"`
	AuditViolations    bool     `env:"TENANCY_AUDIT_VIOLATIONS" envDefault:"true"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := config.Parse(&s); err != nil {
		return Settings{}, configError("%v", err)
	}
	return s, nil
}

// Config converts the settings into a Config. When TENANCY_TENANTS is set,
// a static provider over that list is used unless an option overrides it.
func (s Settings) Config(opts ...Option) (Config, error) {
	cfg := Config{
		Strategy:           s.Strategy,
		TenantColumn:       s.TenantColumn,
		ExcludedEntities:   s.ExcludedEntities,
		RegistryEntity:     s.RegistryEntity,
		SchemaFormat:       s.SchemaFormat,
		PersistentSchemas:  s.PersistentSchemas,
		DefaultSchema:      s.DefaultSchema,
		Elevator:           s.Elevator,
		ExcludedSubdomains: s.ExcludedSubdomains,
		ExcludedPaths:      s.ExcludedPaths,
		RequireTenant:      s.RequireTenant,
		StrictImmutability: s.StrictImmutability,
		Audit: AuditFlags{
			Access:     s.AuditAccess,
			Violations: s.AuditViolations,
		},
	}
	if len(s.Tenants) > 0 {
		cfg.Tenants = StaticTenants(s.Tenants...)
	}
	return cfg.build(opts...)
}
