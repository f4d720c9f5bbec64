package queue

import "errors"

var (
	ErrRepositoryNil   = errors.New("repository cannot be nil")
	ErrPayloadNil      = errors.New("payload cannot be nil")
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrNoTaskToClaim is returned by ClaimTask when nothing is ready.
	// Workers treat it as an idle tick.
	ErrNoTaskToClaim = errors.New("no task to claim")

	ErrHandlerNotFound = errors.New("no handler registered for task")
	ErrNoHandlers      = errors.New("no task handlers registered")

	ErrWorkerStarted    = errors.New("worker already started")
	ErrWorkerNotStarted = errors.New("worker not started")
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskNotLocked    = errors.New("task is not in processing state")
)
