package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements EnqueuerRepository and WorkerRepository in memory.
// It suits tests and single-process tools; tasks are lost on exit.
type MemoryStorage struct {
	mu       sync.RWMutex
	tasks    map[uuid.UUID]*Task
	dlq      map[uuid.UUID]*TasksDlq
	byStatus map[TaskStatus][]uuid.UUID

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		tasks:      make(map[uuid.UUID]*Task),
		dlq:        make(map[uuid.UUID]*TasksDlq),
		byStatus:   make(map[TaskStatus][]uuid.UUID),
		lockTicker: time.NewTicker(time.Second),
		done:       make(chan struct{}),
	}
	go ms.lockExpirationManager()
	return ms
}

// Close stops the lock expiration loop.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.tasks[task.ID]; ok {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}

	cp := *task
	ms.tasks[task.ID] = &cp
	ms.byStatus[task.Status] = append(ms.byStatus[task.Status], task.ID)
	return nil
}

// ClaimTask picks the highest priority ready task in queues; among equal
// priorities the earliest scheduled wins.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Task
	for _, id := range ms.byStatus[TaskStatusPending] {
		task := ms.tasks[id]
		if !slices.Contains(queues, task.Queue) || task.ScheduledAt.After(now) {
			continue
		}
		if best == nil ||
			task.Priority > best.Priority ||
			(task.Priority == best.Priority && task.ScheduledAt.Before(best.ScheduledAt)) {
			best = task
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockedUntil := now.Add(lockDuration)
	best.LockedUntil = &lockedUntil
	best.LockedBy = &workerID
	ms.setStatus(best, TaskStatusProcessing)

	cp := *best
	return &cp, nil
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil
	ms.setStatus(task, TaskStatusCompleted)
	return nil
}

// FailTask increments the retry count. A task with retries left goes
// back to pending after a linear backoff of 30s per attempt.
func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if task.RetryCount >= task.MaxRetries {
		ms.setStatus(task, TaskStatusFailed)
		return nil
	}
	task.ScheduledAt = time.Now().Add(time.Duration(task.RetryCount) * 30 * time.Second)
	ms.setStatus(task, TaskStatusPending)
	return nil
}

// MoveToDLQ removes the task and keeps a dead-letter copy, tenant included.
func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	now := time.Now()
	entry := &TasksDlq{
		ID:           uuid.New(),
		TaskID:       task.ID,
		Queue:        task.Queue,
		TaskName:     task.TaskName,
		Payload:      task.Payload,
		TenantForJob: task.TenantForJob,
		Priority:     task.Priority,
		RetryCount:   task.RetryCount,
		FailedAt:     now,
		CreatedAt:    now,
	}
	if task.Error != nil {
		entry.Error = *task.Error
	}
	ms.dlq[entry.ID] = entry

	ms.removeFromStatusIndex(taskID, task.Status)
	delete(ms.tasks, taskID)
	return nil
}

func (ms *MemoryStorage) ExtendLock(_ context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	lockedUntil := time.Now().Add(duration)
	task.LockedUntil = &lockedUntil
	return nil
}

// Task returns a copy of a stored task.
func (ms *MemoryStorage) Task(taskID uuid.UUID) (*Task, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return nil, false
	}
	cp := *task
	return &cp, true
}

// DeadLetters returns copies of all DLQ entries.
func (ms *MemoryStorage) DeadLetters() []TasksDlq {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]TasksDlq, 0, len(ms.dlq))
	for _, e := range ms.dlq {
		out = append(out, *e)
	}
	return out
}

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	task, ok := ms.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotLocked, taskID)
	}
	return task, nil
}

func (ms *MemoryStorage) setStatus(task *Task, status TaskStatus) {
	ms.removeFromStatusIndex(task.ID, task.Status)
	task.Status = status
	ms.byStatus[status] = append(ms.byStatus[status], task.ID)
}

func (ms *MemoryStorage) removeFromStatusIndex(taskID uuid.UUID, status TaskStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == taskID
	})
}

// lockExpirationManager hands tasks of crashed workers back to the queue.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for _, id := range slices.Clone(ms.byStatus[TaskStatusProcessing]) {
		task := ms.tasks[id]
		if task.LockedUntil != nil && task.LockedUntil.Before(now) {
			task.LockedUntil = nil
			task.LockedBy = nil
			ms.setStatus(task, TaskStatusPending)
		}
	}
}
