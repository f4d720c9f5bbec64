package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

// EnqueuerRepository persists new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer builds tasks and hands them to the repository.
// With a tenancy manager attached, every task captures the tenant active
// in the enqueuing context.
type Enqueuer struct {
	repo            EnqueuerRepository
	tenancy         *tenancy.Manager
	defaultQueue    string
	defaultPriority Priority
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue:    DefaultQueueName,
		defaultPriority: PriorityDefault,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:            repo,
		tenancy:         options.tenancy,
		defaultQueue:    options.defaultQueue,
		defaultPriority: options.defaultPriority,
	}, nil
}

// Enqueue stores payload as a new task.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	_, err := e.enqueue(ctx, payload, opts...)
	return err
}

// EnqueueTask is Enqueue returning the stored task.
func (e *Enqueuer) EnqueueTask(ctx context.Context, payload any, opts ...EnqueueOption) (*Task, error) {
	return e.enqueue(ctx, payload, opts...)
}

func (e *Enqueuer) enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (*Task, error) {
	if payload == nil {
		return nil, ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:      e.defaultQueue,
		priority:   e.defaultPriority,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(options)
	}

	if !options.priority.Valid() {
		return nil, ErrInvalidPriority
	}

	task, err := e.buildTask(ctx, payload, options)
	if err != nil {
		return nil, err
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}
	return task, nil
}

func (e *Enqueuer) buildTask(ctx context.Context, payload any, options *enqueueOptions) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}

	name := options.taskName
	if name == "" {
		name = qualifiedStructName(payload)
	}

	tenant, err := e.tenantFor(ctx, options)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	scheduledAt := now
	if options.scheduledAt != nil {
		scheduledAt = *options.scheduledAt
	} else if options.delay > 0 {
		scheduledAt = now.Add(options.delay)
	}

	return &Task{
		ID:           uuid.New(),
		Queue:        options.queue,
		TaskName:     name,
		Payload:      data,
		TenantForJob: tenantRef(tenant),
		Status:       TaskStatusPending,
		Priority:     options.priority,
		MaxRetries:   options.maxRetries,
		ScheduledAt:  scheduledAt,
		CreatedAt:    now,
	}, nil
}

// tenantFor picks the tenant to capture: an explicit option wins,
// then the tenant active in ctx.
func (e *Enqueuer) tenantFor(ctx context.Context, options *enqueueOptions) (string, error) {
	if options.tenantSet {
		return options.tenant, nil
	}
	if e.tenancy == nil {
		return "", nil
	}
	id, err := e.tenancy.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("capture tenant: %w", err)
	}
	return id, nil
}
