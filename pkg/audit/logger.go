package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger records audit events.
type Logger interface {
	// Log records a successful action.
	Log(ctx context.Context, action string, opts ...EventOption) error
	// LogError records a failed action together with its cause.
	LogError(ctx context.Context, action string, err error, opts ...EventOption) error
}

// contextExtractor returns (value, found) for a request-scoped value.
type contextExtractor func(context.Context) (string, bool)

type logger struct {
	storage            Storage
	tenantIDExtractor  contextExtractor
	requestIDExtractor contextExtractor
	now                func() time.Time
}

// Option configures Logger behavior during initialization
type Option func(*logger)

func WithTenantIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *logger) {
		l.tenantIDExtractor = fn
	}
}

func WithRequestIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *logger) {
		l.requestIDExtractor = fn
	}
}

// NewLogger creates a new audit logger
func NewLogger(storage Storage, opts ...Option) Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}

	l := &logger{
		storage: storage,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	event := l.newEvent(ctx, action, ResultSuccess)
	return l.store(ctx, event, opts)
}

func (l *logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	event := l.newEvent(ctx, action, ResultError)
	if err != nil {
		event.Error = err.Error()
	}
	return l.store(ctx, event, opts)
}

func (l *logger) store(ctx context.Context, event Event, opts []EventOption) error {
	for _, opt := range opts {
		opt(&event)
	}
	if err := event.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, event)
}

func (l *logger) newEvent(ctx context.Context, action string, result Result) Event {
	event := Event{
		ID:        uuid.New().String(),
		Action:    action,
		Result:    result,
		CreatedAt: l.now(),
	}

	if l.tenantIDExtractor != nil {
		if id, ok := l.tenantIDExtractor(ctx); ok {
			event.TenantID = id
		}
	}
	if l.requestIDExtractor != nil {
		if id, ok := l.requestIDExtractor(ctx); ok {
			event.RequestID = id
		}
	}
	return event
}
