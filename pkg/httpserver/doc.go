// Package httpserver runs an http.Handler with context-driven graceful
// shutdown, lifecycle hooks and health probes.
//
// Run blocks until the supplied context is canceled or Shutdown is called.
// It does not listen for OS signals; callers derive the context from
// signal.NotifyContext, which lets the server share a lifetime with other
// components such as the queue worker:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	r := chi.NewRouter()
//	r.Get("/health/live", httpserver.HealthCheckHandler(log))
//	r.Get("/health/ready", httpserver.HealthCheckHandler(log,
//		httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)},
//	))
//	err := srv.Run(ctx, r)
//
// Listen failures and failing start hooks are joined with ErrStart;
// shutdown failures with ErrShutdown.
package httpserver
