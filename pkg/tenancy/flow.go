package tenancy

import (
	"context"
	"sync"
)

// flow is the active-tenant slot of one logical call path.
// switchMu serializes the storage statements and slot update of a
// transition so two tenants' activations never interleave; mu guards reads.
type flow struct {
	switchMu sync.Mutex
	mu       sync.RWMutex
	current  string
	conn     Conn
}

func (f *flow) get() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *flow) set(id string) {
	f.mu.Lock()
	f.current = id
	f.mu.Unlock()
}

type flowKey struct{}

func withFlow(ctx context.Context, f *flow) context.Context {
	return context.WithValue(ctx, flowKey{}, f)
}

func flowFromContext(ctx context.Context) (*flow, bool) {
	if ctx == nil {
		return nil, false
	}
	f, ok := ctx.Value(flowKey{}).(*flow)
	return f, ok && f != nil
}

// HasFlow reports whether ctx carries an isolated tenant slot.
func HasFlow(ctx context.Context) bool {
	_, ok := flowFromContext(ctx)
	return ok
}
