package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/queue"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTask(name, tenant string) *queue.Task {
	task := &queue.Task{
		ID:          uuid.New(),
		Queue:       queue.DefaultQueueName,
		TaskName:    name,
		Payload:     json.RawMessage(`{}`),
		Status:      queue.TaskStatusPending,
		Priority:    queue.PriorityDefault,
		MaxRetries:  1,
		ScheduledAt: time.Now(),
		CreatedAt:   time.Now(),
	}
	if tenant != "" {
		task.TenantForJob = &tenant
	}
	return task
}

// tenantProbe records the tenant active when the handler runs.
func tenantProbe(m *tenancy.Manager, seen *string) queue.Handler {
	return queue.NewNamedHandler("tenant.observe", func(ctx context.Context) error {
		id, err := m.Current(ctx)
		*seen = id
		return err
	})
}

func TestNewWorker(t *testing.T) {
	t.Parallel()

	w, err := queue.NewWorker(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)
	assert.Nil(t, w)

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	w, err = queue.NewWorker(storage, queue.WithWorkerLogger(discardLogger()))
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, w.Start(ctx), queue.ErrNoHandlers)
	assert.ErrorIs(t, w.Stop(), queue.ErrWorkerNotStarted)

	w.RegisterHandlers(queue.NewNamedHandler("noop", func(context.Context) error { return nil }))
	require.NoError(t, w.Start(ctx))
	assert.ErrorIs(t, w.Start(ctx), queue.ErrWorkerStarted)
	require.NoError(t, w.Stop())
}

func TestWorker_Execute(t *testing.T) {
	t.Parallel()

	t.Run("runs under the captured tenant", func(t *testing.T) {
		t.Parallel()

		m := newManager(t)
		w, err := queue.NewWorker(queue.NewMemoryStorage(), queue.WithWorkerTenancy(m))
		require.NoError(t, err)

		var seen string
		w.RegisterHandlers(tenantProbe(m, &seen))

		ctx := context.Background()
		require.NoError(t, w.Execute(ctx, newTask("tenant.observe", "acme")))
		assert.Equal(t, "acme", seen)

		id, err := m.Current(ctx)
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	t.Run("does not touch the caller's tenant", func(t *testing.T) {
		t.Parallel()

		m := newManager(t)
		w, err := queue.NewWorker(queue.NewMemoryStorage(), queue.WithWorkerTenancy(m))
		require.NoError(t, err)

		var seen string
		w.RegisterHandlers(tenantProbe(m, &seen))

		ctx, release, err := m.Flow(context.Background())
		require.NoError(t, err)
		defer release()
		require.NoError(t, m.Switch(ctx, "globex"))

		require.NoError(t, w.Execute(ctx, newTask("tenant.observe", "acme")))
		assert.Equal(t, "acme", seen)

		require.NoError(t, w.Execute(ctx, newTask("tenant.observe", "")))
		assert.Empty(t, seen)

		id, err := m.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "globex", id)
	})

	t.Run("no tenant is not an error even when one is required", func(t *testing.T) {
		t.Parallel()

		m, err := tenancy.NewWithConfig(tenancy.Config{
			Strategy:      tenancy.StrategyColumn,
			Tenants:       tenancy.StaticTenants("acme"),
			RequireTenant: true,
		})
		require.NoError(t, err)

		w, err := queue.NewWorker(queue.NewMemoryStorage(), queue.WithWorkerTenancy(m))
		require.NoError(t, err)

		seen := "unset"
		w.RegisterHandlers(tenantProbe(m, &seen))

		require.NoError(t, w.Execute(context.Background(), newTask("tenant.observe", "")))
		assert.Empty(t, seen)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()

		m := newManager(t)
		w, err := queue.NewWorker(queue.NewMemoryStorage(), queue.WithWorkerTenancy(m))
		require.NoError(t, err)

		called := false
		w.RegisterHandlers(queue.NewNamedHandler("tenant.observe", func(context.Context) error {
			called = true
			return nil
		}))

		err = w.Execute(context.Background(), newTask("tenant.observe", "umbrella"))
		assert.ErrorIs(t, err, tenancy.ErrTenantNotFound)
		assert.False(t, called)
	})

	t.Run("handler error is returned unchanged", func(t *testing.T) {
		t.Parallel()

		m := newManager(t)
		w, err := queue.NewWorker(queue.NewMemoryStorage(), queue.WithWorkerTenancy(m))
		require.NoError(t, err)

		boom := errors.New("boom")
		w.RegisterHandlers(queue.NewNamedHandler("tenant.observe", func(context.Context) error { return boom }))

		ctx := context.Background()
		assert.Same(t, boom, w.Execute(ctx, newTask("tenant.observe", "acme")))

		id, err := m.Current(ctx)
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	t.Run("missing handler", func(t *testing.T) {
		t.Parallel()

		w, err := queue.NewWorker(queue.NewMemoryStorage())
		require.NoError(t, err)
		assert.ErrorIs(t, w.Execute(context.Background(), newTask("nope", "")), queue.ErrHandlerNotFound)
	})

	t.Run("without tenancy", func(t *testing.T) {
		t.Parallel()

		w, err := queue.NewWorker(queue.NewMemoryStorage())
		require.NoError(t, err)

		calls := 0
		w.RegisterHandlers(queue.NewNamedHandler("tenant.observe", func(context.Context) error {
			calls++
			return nil
		}))
		require.NoError(t, w.Execute(context.Background(), newTask("tenant.observe", "acme")))
		assert.Equal(t, 1, calls)
	})
}

func TestWorker_PropagatesTenantEndToEnd(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	enq, err := queue.NewEnqueuer(storage, queue.WithTenancy(m))
	require.NoError(t, err)

	type job struct {
		Tenant string `json:"tenant"`
		N      int    `json:"n"`
	}

	var (
		mu      sync.Mutex
		results = map[int]string{}
		expect  = map[int]string{}
	)

	ctx, release, err := m.Flow(context.Background())
	require.NoError(t, err)
	defer release()

	tenants := []string{"acme", "globex", ""}
	for i := range 12 {
		id := tenants[i%len(tenants)]
		expect[i] = id
		if id == "" {
			require.NoError(t, enq.Enqueue(ctx, job{N: i}))
			continue
		}
		require.NoError(t, m.Scoped(ctx, id, func(ctx context.Context) error {
			return enq.Enqueue(ctx, job{Tenant: id, N: i})
		}))
	}

	w, err := queue.NewWorker(storage,
		queue.WithWorkerTenancy(m),
		queue.WithWorkerLogger(discardLogger()),
		queue.WithPullInterval(5*time.Millisecond),
		queue.WithMaxConcurrentTasks(4))
	require.NoError(t, err)

	w.RegisterHandlers(queue.NewTaskHandler(func(ctx context.Context, p job) error {
		id, err := m.Current(ctx)
		if err != nil {
			return err
		}
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		results[p.N] = id
		mu.Unlock()
		return nil
	}))

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(runCtx))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == len(expect)
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	assert.Equal(t, expect, results)

	id, err := m.Current(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestWorker_PanicMovesTaskToDLQ(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	w, err := queue.NewWorker(storage,
		queue.WithWorkerTenancy(m),
		queue.WithWorkerLogger(discardLogger()),
		queue.WithPullInterval(5*time.Millisecond))
	require.NoError(t, err)

	w.RegisterHandlers(queue.NewNamedHandler("explode", func(context.Context) error {
		panic("kaboom")
	}))

	task := newTask("explode", "acme")
	require.NoError(t, storage.CreateTask(context.Background(), task))

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(storage.DeadLetters()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	dead := storage.DeadLetters()[0]
	assert.Equal(t, task.ID, dead.TaskID)
	require.NotNil(t, dead.TenantForJob)
	assert.Equal(t, "acme", *dead.TenantForJob)
	assert.Contains(t, dead.Error, "kaboom")
	assert.Equal(t, tenancy.StateInactive, m.State(context.Background()))
}

func TestWorker_MissingHandlerGoesToDLQ(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	w, err := queue.NewWorker(storage,
		queue.WithWorkerLogger(discardLogger()),
		queue.WithPullInterval(5*time.Millisecond))
	require.NoError(t, err)
	w.RegisterHandlers(queue.NewNamedHandler("known", func(context.Context) error { return nil }))

	task := newTask("unknown", "globex")
	task.MaxRetries = 5
	require.NoError(t, storage.CreateTask(context.Background(), task))

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(storage.DeadLetters()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	dead := storage.DeadLetters()[0]
	assert.Equal(t, int8(1), dead.RetryCount)
	assert.Equal(t, "globex", *dead.TenantForJob)
}

func TestConfig_Options(t *testing.T) {
	t.Parallel()

	cfg := queue.Config{
		Queues:             []string{"reports", ""},
		PollInterval:       time.Second,
		LockTimeout:        time.Minute,
		MaxConcurrentTasks: 3,
	}
	w, err := queue.NewWorker(queue.NewMemoryStorage(), cfg.Options()...)
	require.NoError(t, err)

	id, _, pid := w.WorkerInfo()
	assert.NotEmpty(t, id)
	assert.Positive(t, pid)
}
