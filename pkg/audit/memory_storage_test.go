package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
)

func TestMemoryStorage_Query(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	store := audit.NewMemoryStorage()
	require.NoError(t, store.StoreBatch(ctx, []audit.Event{
		{ID: "1", TenantID: "acme", Action: audit.ActionSwitch, Result: audit.ResultSuccess, CreatedAt: base},
		{ID: "2", TenantID: "globex", Action: audit.ActionSwitch, Result: audit.ResultSuccess, CreatedAt: base.Add(time.Minute)},
		{ID: "3", TenantID: "acme", Action: audit.ActionError, Result: audit.ResultError, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "4", TenantID: "acme", Action: audit.ActionReset, Result: audit.ResultSuccess, CreatedAt: base.Add(3 * time.Minute)},
	}))

	ids := func(events []audit.Event) []string {
		out := make([]string, 0, len(events))
		for _, e := range events {
			out = append(out, e.ID)
		}
		return out
	}

	tests := []struct {
		name     string
		criteria audit.Criteria
		want     []string
	}{
		{"all", audit.Criteria{}, []string{"1", "2", "3", "4"}},
		{"by tenant", audit.Criteria{TenantID: "acme"}, []string{"1", "3", "4"}},
		{"by action", audit.Criteria{Action: audit.ActionSwitch}, []string{"1", "2"}},
		{"by result", audit.Criteria{Result: audit.ResultError}, []string{"3"}},
		{"time window", audit.Criteria{StartTime: base.Add(time.Minute), EndTime: base.Add(2 * time.Minute)}, []string{"2", "3"}},
		{"limit and offset", audit.Criteria{TenantID: "acme", Offset: 1, Limit: 1}, []string{"3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := store.Query(ctx, tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMemoryStorage_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := audit.NewMemoryStorage()
	assert.ErrorIs(t, store.Store(ctx, audit.Event{Action: audit.ActionSwitch}), context.Canceled)
	assert.Empty(t, store.Events())
}
