package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

// WorkerRepository is the storage surface a worker needs.
type WorkerRepository interface {
	// ClaimTask locks the next ready task or returns ErrNoTaskToClaim.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records the error and increments the retry count.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Worker claims tasks and dispatches them to registered handlers.
type Worker struct {
	repo     WorkerRepository
	tenancy  *tenancy.Manager
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex // guards stopping together with wg.Add

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       5 * time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		tenancy:      options.tenancy,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger.With(logger.Component("queue.worker")),
	}, nil
}

// RegisterHandlers adds handlers. A later handler with the same name replaces the earlier one.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop cancels polling and waits for in-flight tasks.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Info("worker stopped", slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run returns a func for errgroup: it starts the worker and stops it once ctx is done.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
			default:
				continue
			}

			w.stopMu.Lock()
			if w.stopping.Load() {
				w.stopMu.Unlock()
				<-w.sem
				return
			}
			w.wg.Add(1)
			w.stopMu.Unlock()

			go func() {
				defer w.wg.Done()
				defer func() { <-w.sem }()

				if err := w.pullAndProcess(); err != nil && !errors.Is(err, ErrHandlerNotFound) {
					w.logger.Error("failed to process task",
						slog.String("worker_id", w.workerID.String()),
						logger.Error(err))
				}
			}()
		}
	}
}

func (w *Worker) pullAndProcess() error {
	task, err := w.repo.ClaimTask(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if errors.Is(err, ErrNoTaskToClaim) || (err == nil && task == nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim task: %w", err)
	}

	w.logger.Debug("claimed task",
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName),
		logger.TenantID(task.Tenant()),
		slog.String("queue", task.Queue))

	return w.processTask(task)
}

// Execute runs task with its handler. With tenancy attached, the task
// gets its own flow and, when it captured a tenant, runs inside Scoped
// for that tenant; otherwise it runs with no tenant active. The flow is
// always back to no tenant when Execute returns.
func (w *Worker) Execute(ctx context.Context, task *Task) error {
	w.mu.RLock()
	h, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrHandlerNotFound, task.TaskName)
	}
	return w.execute(ctx, h, task)
}

func (w *Worker) execute(ctx context.Context, h Handler, task *Task) error {
	if w.tenancy == nil {
		return h.Handle(ctx, task.Payload)
	}

	ctx, release, err := w.tenancy.Flow(ctx)
	if err != nil {
		return fmt.Errorf("open tenant flow: %w", err)
	}
	defer release()

	id := task.Tenant()
	if id == "" {
		return h.Handle(ctx, task.Payload)
	}
	return w.tenancy.Scoped(ctx, id, func(ctx context.Context) error {
		return h.Handle(ctx, task.Payload)
	})
}

func (w *Worker) processTask(task *Task) (err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
			w.logger.Error("handler panicked",
				logger.TaskID(task.ID),
				logger.TaskName(task.TaskName),
				logger.TenantID(task.Tenant()),
				slog.Any("panic", r))
			_ = w.handleTaskFailure(task, err, time.Since(start))
		}
	}()

	w.mu.RLock()
	h, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		return w.handleMissingHandler(task)
	}

	// Detached from the worker lifecycle so Stop lets running tasks finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	if err := w.execute(ctx, h, task); err != nil {
		return w.handleTaskFailure(task, err, time.Since(start))
	}
	return w.handleTaskSuccess(task, time.Since(start))
}

// handleMissingHandler sends the task straight to the DLQ; retrying
// cannot help until a handler is deployed.
func (w *Worker) handleMissingHandler(task *Task) error {
	w.logger.Error("no handler registered for task",
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName))

	msg := "no handler registered for task: " + task.TaskName
	if err := w.repo.FailTask(w.ctx, task.ID, msg); err != nil {
		return fmt.Errorf("failed to mark task %s as failed: %w", task.ID, err)
	}
	if err := w.repo.MoveToDLQ(w.ctx, task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
	}
	return ErrHandlerNotFound
}

func (w *Worker) handleTaskFailure(task *Task, execErr error, d time.Duration) error {
	w.logger.Error("task failed",
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName),
		logger.TenantID(task.Tenant()),
		logger.RetryCount(int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		logger.Duration(d),
		logger.Error(execErr))

	if err := w.repo.FailTask(w.ctx, task.ID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to update task %s status to failed: %w", task.ID, err)
	}

	// task holds the count from before FailTask incremented it.
	if task.RetryCount+1 < task.MaxRetries {
		return nil
	}
	if err := w.repo.MoveToDLQ(w.ctx, task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ after max retries: %w", task.ID, err)
	}
	w.logger.Warn("task moved to dead letter queue",
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName))
	return nil
}

func (w *Worker) handleTaskSuccess(task *Task, d time.Duration) error {
	if err := w.repo.CompleteTask(w.ctx, task.ID); err != nil {
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, err)
	}
	w.logger.Info("task completed",
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName),
		logger.TenantID(task.Tenant()),
		slog.String("queue", task.Queue),
		logger.Duration(d))
	return nil
}

// ExtendLockForTask keeps a long-running task locked beyond the lock timeout.
func (w *Worker) ExtendLockForTask(ctx context.Context, taskID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, extension)
}

// WorkerInfo identifies the worker process.
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}
