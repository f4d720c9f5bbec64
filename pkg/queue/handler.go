package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler runs tasks whose TaskName equals Name.
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

type (
	TaskHandlerFunc[T any] func(ctx context.Context, payload T) error
	NamedHandlerFunc       func(ctx context.Context) error
)

// NewTaskHandler decodes the payload into T. The handler name is the
// qualified type name of T, matching what Enqueue derives from the payload.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var payload T
	return &typedHandler[T]{name: qualifiedStructName(payload), fn: fn}
}

// NewNamedHandler ignores the payload. It suits maintenance tasks that
// only need the tenant the task runs under.
func NewNamedHandler(name string, fn NamedHandlerFunc) Handler {
	return &namedHandler{name: name, fn: fn}
}

type typedHandler[T any] struct {
	name string
	fn   TaskHandlerFunc[T]
}

func (h *typedHandler[T]) Name() string { return h.name }

func (h *typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.name, err)
	}
	return h.fn(ctx, v)
}

type namedHandler struct {
	name string
	fn   NamedHandlerFunc
}

func (h *namedHandler) Name() string { return h.name }

func (h *namedHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.fn(ctx)
}
