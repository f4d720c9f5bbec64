package queue

import (
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	tenancy         *tenancy.Manager
	defaultQueue    string
	defaultPriority Priority
}

func WithDefaultQueue(queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

func WithDefaultPriority(priority Priority) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if priority.Valid() {
			o.defaultPriority = priority
		}
	}
}

// WithTenancy makes the enqueuer capture the active tenant of each call.
func WithTenancy(m *tenancy.Manager) EnqueuerOption {
	return func(o *enqueuerOptions) {
		o.tenancy = m
	}
}

type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	priority    Priority
	maxRetries  int8
	delay       time.Duration
	scheduledAt *time.Time
	taskName    string
	tenant      string
	tenantSet   bool
}

func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = priority
	}
}

// WithMaxRetries sets the retry budget, 0 to 10. Other values are ignored.
func WithMaxRetries(maxRetries int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if maxRetries >= 0 && maxRetries <= 10 {
			o.maxRetries = maxRetries
		}
	}
}

func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

func WithScheduledAt(scheduledAt time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &scheduledAt
	}
}

// WithTaskName overrides the handler name derived from the payload type.
func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.taskName = name
		}
	}
}

// WithTenant runs the task under id regardless of the enqueuing context.
func WithTenant(id string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.tenant = id
		o.tenantSet = true
	}
}

// WithoutTenant runs the task with no tenant active.
func WithoutTenant() EnqueueOption {
	return WithTenant("")
}
