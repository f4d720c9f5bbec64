package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

// Middleware activates the tenant resolved from each request for the
// duration of the downstream handler.
//
// Each request runs in its own tenancy flow unless the incoming context
// already carries one. Whatever tenant was active when the request arrived
// is restored before the middleware returns, including when the handler
// panics or the request is canceled.
func Middleware(m *tenancy.Manager, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		errorHandler: DefaultErrorHandler,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := r.Context()
			if !tenancy.HasFlow(ctx) {
				fctx, release, err := m.Flow(ctx)
				if err != nil {
					cfg.errorHandler(w, r, err)
					return
				}
				defer release()
				ctx = fctx
			}

			prev, err := m.Current(ctx)
			if err != nil {
				cfg.errorHandler(w, r, err)
				return
			}
			defer func() {
				if err := m.Restore(context.WithoutCancel(ctx), prev); err != nil {
					cfg.logger.ErrorContext(ctx, "failed to restore tenant after request",
						logger.TenantID(prev),
						logger.Error(err))
				}
			}()

			r = r.WithContext(ctx)
			called := false
			if err := serve(m, cfg, r, func(ctx context.Context) {
				called = true
				next.ServeHTTP(w, r.WithContext(ctx))
			}); err != nil {
				if called {
					cfg.logger.ErrorContext(ctx, "tenant request finished with error", logger.Error(err))
					return
				}
				cfg.errorHandler(w, r, err)
			}
		})
	}
}

func serve(m *tenancy.Manager, cfg *config, r *http.Request, next func(context.Context)) error {
	ctx := r.Context()

	mc, err := m.Configuration()
	if err != nil {
		return err
	}

	resolve := cfg.resolver
	if resolve == nil {
		resolve = NewResolver(mc)
	}

	id, err := resolve(r)
	if err != nil {
		return fmt.Errorf("resolve tenant: %w", err)
	}

	if id != "" {
		ok, err := m.Exists(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			return m.Scoped(ctx, id, func(ctx context.Context) error {
				next(ctx)
				return nil
			})
		}
		if mc.RequireTenant {
			return fmt.Errorf("%w: %q", tenancy.ErrTenantNotFound, id)
		}
		cfg.logger.DebugContext(ctx, "unknown tenant ignored", slog.String("tenant", id))
	} else if mc.RequireTenant {
		return tenancy.ErrTenantContextMissing
	}

	next(ctx)
	return nil
}

// RequireTenant rejects requests that reach it without an active tenant.
func RequireTenant(m *tenancy.Manager, errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := m.Current(r.Context())
			if err != nil {
				errorHandler(w, r, err)
				return
			}
			if id == "" {
				errorHandler(w, r, tenancy.ErrTenantContextMissing)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggerExtractor adds the active tenant to every log record written
// with a request context.
func LoggerExtractor(m *tenancy.Manager) logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id, err := m.Current(ctx)
		if err != nil || id == "" {
			return slog.Attr{}, false
		}
		return logger.TenantID(id), true
	}
}
