package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/tenantkit/pkg/config"
	"github.com/dmitrymomot/tenantkit/pkg/httpserver"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/queue"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// serveCmd runs the HTTP API and the queue worker until ctx is canceled.
// Jobs enqueued by a request run under the tenant of that request.
func serveCmd(ctx context.Context, a *app, _ []string) error {
	var (
		httpCfg  httpserver.Config
		queueCfg queue.Config
	)
	if err := config.Parse(&httpCfg); err != nil {
		return err
	}
	if err := config.Parse(&queueCfg); err != nil {
		return err
	}

	storage := queue.NewMemoryStorage()
	defer func() { _ = storage.Close() }()

	enq, err := queue.NewEnqueuer(storage, queue.WithTenancy(a.m))
	if err != nil {
		return err
	}

	jobs := newTasks(a)
	worker, err := queue.NewWorker(storage, append(queueCfg.Options(),
		queue.WithWorkerTenancy(a.m),
		queue.WithWorkerLogger(a.log),
	)...)
	if err != nil {
		return err
	}
	worker.RegisterHandlers(jobs...)

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(a.log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(func() error { return srv.Run(ctx, newRouter(a, enq, jobs)) })
	return g.Wait()
}

func newRouter(a *app, enq *queue.Enqueuer, jobs tasks) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.HealthCheckHandler(a.log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(a.log, a.checks()...))

	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(a.m, tenant.WithLogger(a.log)))

		r.Get("/tenant", currentTenant(a))
		r.Post("/jobs/{name}", enqueueJob(a, enq, jobs))

		if store, ok := newNoteStore(a); ok {
			r.Group(func(r chi.Router) {
				r.Use(tenant.RequireTenant(a.m, tenant.DefaultErrorHandler))
				r.Get("/notes", listNotes(a, store))
				r.Post("/notes", addNote(a, store))
			})
		}
	})
	return r
}

func currentTenant(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := a.m.Current(r.Context())
		if err != nil {
			fail(a, w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tenant": id,
			"state":  a.m.State(r.Context()).String(),
		})
	}
}

type jobRequest struct {
	RequestID string `json:"request_id,omitempty"`
}

func enqueueJob(a *app, enq *queue.Enqueuer, jobs tasks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if _, ok := jobs.lookup(name); !ok {
			http.Error(w, "Unknown job", http.StatusNotFound)
			return
		}

		task, err := enq.EnqueueTask(r.Context(),
			jobRequest{RequestID: middleware.GetReqID(r.Context())},
			queue.WithTaskName(name),
		)
		if err != nil {
			fail(a, w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"task_id":        task.ID,
			"task":           task.TaskName,
			"tenant_for_job": task.TenantForJob,
		})
	}
}

func listNotes(a *app, store noteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notes, err := store.List(r.Context())
		if err != nil {
			fail(a, w, r, err)
			return
		}
		if notes == nil {
			notes = []note{}
		}
		writeJSON(w, http.StatusOK, notes)
	}
}

func addNote(a *app, store noteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Body == "" {
			http.Error(w, "Invalid note", http.StatusBadRequest)
			return
		}
		if err := store.Add(r.Context(), in.Body); err != nil {
			fail(a, w, r, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

// fail maps tenancy errors through the tenant error handler and logs the rest.
func fail(a *app, w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	a.log.ErrorContext(r.Context(), "request failed", logger.Error(err))
	tenant.DefaultErrorHandler(w, r, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
