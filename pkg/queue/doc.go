// Package queue is a storage-agnostic task queue that carries the tenant
// context from the code that enqueues a task to the worker that runs it.
//
// An Enqueuer built WithTenancy records the tenant active in the
// enqueuing context on Task.TenantForJob, serialized under the
// "tenant_for_job" key (null when no tenant was active). A Worker built
// WithWorkerTenancy opens a fresh tenant flow for every task and, when the
// task captured a tenant, runs the handler inside Manager.Scoped for it.
// Tasks without a tenant run with none active, even when the tenancy
// configuration requires a tenant: such tasks are administrative work.
//
// Persistence is behind EnqueuerRepository and WorkerRepository.
// MemoryStorage implements both for tests and local tools.
//
// # Usage
//
//	m, _ := tenancy.NewWithConfig(cfg)
//	storage := queue.NewMemoryStorage()
//
//	enq, _ := queue.NewEnqueuer(storage, queue.WithTenancy(m))
//	_ = m.Scoped(ctx, "acme", func(ctx context.Context) error {
//	    return enq.Enqueue(ctx, SendReport{Month: 5})
//	})
//
//	w, _ := queue.NewWorker(storage, queue.WithWorkerTenancy(m))
//	w.RegisterHandlers(queue.NewTaskHandler(func(ctx context.Context, p SendReport) error {
//	    id, _ := m.Current(ctx) // "acme"
//	    return send(ctx, id, p)
//	}))
//
//	g.Go(w.Run(ctx))
//
// Failed tasks are retried with a linear backoff until MaxRetries, then
// moved to the dead letter queue together with their tenant.
package queue
