package queue

import "time"

// Config holds the worker settings read from the environment.
type Config struct {
	Queues             []string      `env:"QUEUE_NAMES" envDefault:"default" envSeparator:","`
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"5s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
}

// Options converts the settings into worker options.
func (c Config) Options() []WorkerOption {
	return []WorkerOption{
		WithQueues(c.Queues...),
		WithPullInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithMaxConcurrentTasks(c.MaxConcurrentTasks),
	}
}
