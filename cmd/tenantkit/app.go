package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/config"
	"github.com/dmitrymomot/tenantkit/pkg/httpserver"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/mongo"
	"github.com/dmitrymomot/tenantkit/pkg/pg"
	"github.com/dmitrymomot/tenantkit/pkg/redis"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

var (
	errUsage           = errors.New("usage")
	errUnknownRegistry = errors.New("unknown registry source")
)

// Registry sources selectable with TENANTKIT_REGISTRY.
const (
	registryStatic = "static"
	registryRedis  = "redis"
	registryMongo  = "mongo"
)

type appConfig struct {
	Log      logger.Config
	Registry string `env:"TENANTKIT_REGISTRY" envDefault:"static"`
}

type appOptions struct {
	envFiles []string
	stdout   io.Writer
	stderr   io.Writer
	withDB   bool
}

// registry is the tenant source plus, for live registries, write access.
type registry struct {
	source   string
	provider tenancy.Provider
	add      func(ctx context.Context, id string) error
	remove   func(ctx context.Context, id string) error
	check    *httpserver.Check
}

func (r registry) writable() bool { return r.add != nil }

type app struct {
	log      *slog.Logger
	out      io.Writer
	m        *tenancy.Manager
	registry registry
	pgCfg    pg.Config
	pool     *pgxpool.Pool
	db       *sqlx.DB
	closers  []func(context.Context)
}

func newApp(ctx context.Context, opts appOptions) (_ *app, err error) {
	if len(opts.envFiles) > 0 {
		if err := config.LoadEnv(opts.envFiles...); err != nil {
			return nil, err
		}
	}

	var cfg appConfig
	if err := config.Parse(&cfg); err != nil {
		return nil, err
	}

	m := tenancy.New()
	log := logger.New(
		logger.WithConfig(cfg.Log),
		logger.WithOutput(opts.stderr),
		logger.WithContextExtractors(tenant.LoggerExtractor(m), requestIDAttr),
	)

	a := &app{log: log, out: opts.stdout, m: m}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	settings, err := tenancy.LoadSettings()
	if err != nil {
		return nil, err
	}

	if a.registry, err = a.openRegistry(ctx, cfg.Registry); err != nil {
		return nil, err
	}

	if opts.withDB || settings.Strategy == tenancy.StrategySchema {
		if err := a.openDB(ctx); err != nil {
			return nil, err
		}
	}

	writer := audit.NewAsyncWriter(audit.NewLogStorage(log.With(logger.Component("audit"))), audit.AsyncOptions{
		Detached: true,
		OnFlushError: func(err error, events int) {
			log.Warn("audit events dropped", slog.Int("events", events), logger.Error(err))
		},
	})
	a.closers = append(a.closers, func(ctx context.Context) {
		if err := writer.Close(ctx); err != nil {
			log.WarnContext(ctx, "audit writer close failed", logger.Error(err))
		}
	})

	tenancyOpts := []tenancy.Option{
		tenancy.WithLogger(log.With(logger.Component("tenancy"))),
		tenancy.WithAuditor(audit.NewLogger(writer, audit.WithRequestIDExtractor(requestID))),
	}
	if a.registry.provider != nil {
		tenancyOpts = append(tenancyOpts, tenancy.WithProvider(a.registry.provider))
	}
	if a.db != nil {
		tenancyOpts = append(tenancyOpts, tenancy.WithDB(a.db))
	}

	tcfg, err := settings.Config(tenancyOpts...)
	if err != nil {
		return nil, err
	}
	if err := m.Configure(tcfg); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openRegistry(ctx context.Context, source string) (registry, error) {
	switch source {
	case "", registryStatic:
		// Provider comes from TENANCY_TENANTS.
		return registry{source: registryStatic}, nil

	case registryRedis:
		var cfg redis.Config
		if err := config.Parse(&cfg); err != nil {
			return registry{}, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return registry{}, err
		}
		a.closers = append(a.closers, func(context.Context) { _ = client.Close() })

		reg := redis.NewTenantRegistry(client, cfg.TenantsKey)
		return registry{
			source:   registryRedis,
			provider: reg,
			add:      func(ctx context.Context, id string) error { return reg.Add(ctx, id) },
			remove:   reg.Remove,
			check:    &httpserver.Check{Name: "redis", Probe: redis.Healthcheck(client)},
		}, nil

	case registryMongo:
		var cfg mongo.Config
		if err := config.Parse(&cfg); err != nil {
			return registry{}, err
		}
		reg, client, err := mongo.NewTenantRegistryFromConfig(ctx, cfg)
		if err != nil {
			return registry{}, err
		}
		a.closers = append(a.closers, func(ctx context.Context) { _ = client.Disconnect(ctx) })

		return registry{
			source:   registryMongo,
			provider: reg,
			add:      reg.Add,
			remove:   reg.Remove,
			check:    &httpserver.Check{Name: "mongo", Probe: mongo.Healthcheck(client)},
		}, nil
	}
	return registry{}, fmt.Errorf("%w: %q", errUnknownRegistry, source)
}

func (a *app) openDB(ctx context.Context) error {
	if err := config.Parse(&a.pgCfg); err != nil {
		return err
	}
	pool, err := pg.Connect(ctx, a.pgCfg)
	if err != nil {
		return err
	}
	a.pool = pool
	a.db = pg.OpenDBx(pool)
	a.closers = append(a.closers, func(context.Context) {
		_ = a.db.Close()
		pool.Close()
	})
	return nil
}

// checks lists the readiness probes for the opened dependencies.
func (a *app) checks() []httpserver.Check {
	checks := []httpserver.Check{{
		Name: "registry",
		Probe: func(ctx context.Context) error {
			_, err := a.m.AllTenants(ctx)
			return err
		},
	}}
	if a.registry.check != nil {
		checks = append(checks, *a.registry.check)
	}
	if a.pool != nil {
		checks = append(checks, httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(a.pool)})
	}
	return checks
}

func (a *app) close() {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}

func requestID(ctx context.Context) (string, bool) {
	id := middleware.GetReqID(ctx)
	return id, id != ""
}

func requestIDAttr(ctx context.Context) (slog.Attr, bool) {
	id, ok := requestID(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return logger.RequestID(id), true
}
