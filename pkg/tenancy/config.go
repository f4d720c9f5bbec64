package tenancy

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
)

// Strategy selects how tenant data is isolated.
type Strategy string

const (
	// StrategyColumn isolates rows by a discriminator column in shared tables.
	StrategyColumn Strategy = "column"
	// StrategySchema isolates tenants by switching the database search path.
	StrategySchema Strategy = "schema"
)

// Elevator names a built-in request resolution strategy.
type Elevator string

const (
	ElevatorSubdomain Elevator = "subdomain"
	ElevatorDomain    Elevator = "domain"
	ElevatorHeader    Elevator = "header"
	ElevatorPath      Elevator = "path"
	ElevatorCustom    Elevator = "custom"
)

// TenantPlaceholder is the substitution slot in Config.SchemaFormat.
const TenantPlaceholder = "%{tenant}"

const (
	DefaultTenantColumn   = "tenant_id"
	DefaultSchema         = "public"
	DefaultRegistryEntity = "tenants"
)

type (
	// SwitchHook runs around every tenant switch. An empty id means "no tenant".
	SwitchHook func(ctx context.Context, from, to string) error

	// CreateHook runs around tenant provisioning.
	CreateHook func(ctx context.Context, id string) error
)

// Callbacks holds at most one handler per lifecycle event.
type Callbacks struct {
	BeforeSwitch SwitchHook
	AfterSwitch  SwitchHook
	BeforeCreate CreateHook
	AfterCreate  CreateHook
}

// AuditFlags toggles optional audit events.
type AuditFlags struct {
	Access     bool
	Violations bool
}

// Config is an immutable-after-build snapshot consumed by Manager.Configure.
type Config struct {
	Strategy     Strategy
	TenantColumn string
	Tenants      Provider

	// ExcludedEntities are never scoped. RegistryEntity is always added to the set.
	ExcludedEntities []string
	RegistryEntity   string

	SchemaFormat      string
	PersistentSchemas []string
	DefaultSchema     string
	// DB is required by the schema strategy.
	DB Conn

	Elevator           Elevator
	CustomElevator     func(r *http.Request) (string, error)
	ExcludedSubdomains []string
	ExcludedPaths      []string

	RequireTenant      bool
	StrictImmutability bool

	Callbacks Callbacks
	Audit     AuditFlags
	Auditor   audit.Logger
	Logger    *slog.Logger
}

// Option mutates a Config while it is being built.
type Option func(*Config)

// WithProvider sets the tenant registry source.
func WithProvider(p Provider) Option {
	return func(c *Config) { c.Tenants = p }
}

// WithDB sets the connection used by the schema strategy.
func WithDB(db Conn) Option {
	return func(c *Config) { c.DB = db }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithAuditor(l audit.Logger) Option {
	return func(c *Config) { c.Auditor = l }
}

// WithCustomElevator sets the resolver used when Elevator is "custom".
func WithCustomElevator(fn func(r *http.Request) (string, error)) Option {
	return func(c *Config) {
		c.Elevator = ElevatorCustom
		c.CustomElevator = fn
	}
}

// OnBeforeSwitch registers the before-switch hook, replacing any previous one.
func OnBeforeSwitch(fn SwitchHook) Option {
	return func(c *Config) { c.Callbacks.BeforeSwitch = fn }
}

// OnAfterSwitch registers the after-switch hook, replacing any previous one.
func OnAfterSwitch(fn SwitchHook) Option {
	return func(c *Config) { c.Callbacks.AfterSwitch = fn }
}

// OnBeforeCreate registers the before-create hook, replacing any previous one.
func OnBeforeCreate(fn CreateHook) Option {
	return func(c *Config) { c.Callbacks.BeforeCreate = fn }
}

// OnAfterCreate registers the after-create hook, replacing any previous one.
// For the schema strategy it runs with the new tenant active.
func OnAfterCreate(fn CreateHook) Option {
	return func(c *Config) { c.Callbacks.AfterCreate = fn }
}

// build applies defaults, validates and returns a detached copy.
func (c Config) build(opts ...Option) (Config, error) {
	for _, opt := range opts {
		opt(&c)
	}

	c.ExcludedEntities = slices.Clone(c.ExcludedEntities)
	c.PersistentSchemas = slices.Clone(c.PersistentSchemas)
	c.ExcludedSubdomains = slices.Clone(c.ExcludedSubdomains)
	c.ExcludedPaths = slices.Clone(c.ExcludedPaths)

	if c.TenantColumn == "" {
		c.TenantColumn = DefaultTenantColumn
	}
	if c.DefaultSchema == "" {
		c.DefaultSchema = DefaultSchema
	}
	if c.RegistryEntity == "" {
		c.RegistryEntity = DefaultRegistryEntity
	}
	if !slices.Contains(c.ExcludedEntities, c.RegistryEntity) {
		c.ExcludedEntities = append(c.ExcludedEntities, c.RegistryEntity)
	}
	if c.SchemaFormat == "" {
		c.SchemaFormat = TenantPlaceholder
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	if c.Tenants == nil {
		return Config{}, configError("tenant provider is required")
	}

	switch c.Strategy {
	case StrategyColumn:
	case StrategySchema:
		if c.DB == nil {
			return Config{}, configError("schema strategy requires a database connection")
		}
		if strings.Count(c.SchemaFormat, TenantPlaceholder) != 1 {
			return Config{}, configError("schema format %q must contain %s exactly once", c.SchemaFormat, TenantPlaceholder)
		}
	case "":
		return Config{}, configError("strategy is required")
	default:
		return Config{}, configError("unknown strategy %q", c.Strategy)
	}

	if c.Elevator == ElevatorCustom && c.CustomElevator == nil {
		return Config{}, configError("custom elevator requires a resolver function")
	}

	return c, nil
}
