package queue

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues             []string
	pullInterval       time.Duration
	lockTimeout        time.Duration
	maxConcurrentTasks int
	logger             *slog.Logger
	tenancy            *tenancy.Manager
}

// WithQueues sets the queues the worker claims from. Empty names are ignored.
func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		var names []string
		for _, q := range queues {
			if q != "" {
				names = append(names, q)
			}
		}
		if len(names) > 0 {
			o.queues = names
		}
	}
}

func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets how long a claimed task stays locked. It also
// bounds the handler's run time.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentTasks = n
		}
	}
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkerTenancy runs every task in its own tenant flow, entering the
// tenant captured at enqueue time.
func WithWorkerTenancy(m *tenancy.Manager) WorkerOption {
	return func(o *workerOptions) {
		o.tenancy = m
	}
}
