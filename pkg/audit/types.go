package audit

import (
	"context"
	"fmt"
	"time"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultError   Result = "error"
)

// Event represents a single audit log entry
type Event struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	Result     Result         `json:"result"`
	Error      string         `json:"error,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Validate checks if the event has all required fields
func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	return nil
}

// EventOption applies configuration to an Event during creation.
type EventOption func(*Event)

// Criteria filters stored events. Zero values match everything.
type Criteria struct {
	TenantID  string
	Action    string
	Result    Result
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

func (c Criteria) match(e Event) bool {
	switch {
	case c.TenantID != "" && e.TenantID != c.TenantID:
		return false
	case c.Action != "" && e.Action != c.Action:
		return false
	case c.Result != "" && e.Result != c.Result:
		return false
	case !c.StartTime.IsZero() && e.CreatedAt.Before(c.StartTime):
		return false
	case !c.EndTime.IsZero() && e.CreatedAt.After(c.EndTime):
		return false
	}
	return true
}

// Storage persists audit events.
type Storage interface {
	Store(ctx context.Context, event Event) error
	Query(ctx context.Context, criteria Criteria) ([]Event, error)
}

// BatchWriter stores many events at once. Implementations must be atomic.
type BatchWriter interface {
	StoreBatch(ctx context.Context, events []Event) error
}
