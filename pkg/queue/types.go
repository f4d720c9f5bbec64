package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when neither the enqueuer nor the call names a queue.
const DefaultQueueName = "default"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority orders claimable tasks, 0 to 100, higher first.
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task is a persisted unit of work.
//
// TenantForJob carries the tenant that was active when the task was
// enqueued. It is always serialized under "tenant_for_job", as null when
// the task was enqueued outside any tenant.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	Queue        string     `json:"queue"`
	TaskName     string     `json:"task_name"`
	Payload      []byte     `json:"payload,omitempty"`
	TenantForJob *string    `json:"tenant_for_job"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	RetryCount   int8       `json:"retry_count"`
	MaxRetries   int8       `json:"max_retries"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
	LockedBy     *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Tenant returns the captured tenant, or "" when the task runs without one.
func (t *Task) Tenant() string {
	if t == nil || t.TenantForJob == nil {
		return ""
	}
	return *t.TenantForJob
}

// TasksDlq is a task that exhausted its retries, kept for inspection.
type TasksDlq struct {
	ID           uuid.UUID `json:"id"`
	TaskID       uuid.UUID `json:"task_id"`
	Queue        string    `json:"queue"`
	TaskName     string    `json:"task_name"`
	Payload      []byte    `json:"payload,omitempty"`
	TenantForJob *string   `json:"tenant_for_job"`
	Priority     Priority  `json:"priority"`
	Error        string    `json:"error"`
	RetryCount   int8      `json:"retry_count"`
	FailedAt     time.Time `json:"failed_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func tenantRef(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
