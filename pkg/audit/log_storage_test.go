package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
)

func TestLogStorage(t *testing.T) {
	t.Parallel()

	newStorage := func() (*audit.LogStorage, *bytes.Buffer) {
		var buf bytes.Buffer
		return audit.NewLogStorage(slog.New(slog.NewJSONHandler(&buf, nil))), &buf
	}

	decode := func(t *testing.T, buf *bytes.Buffer) []map[string]any {
		t.Helper()
		var out []map[string]any
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			var rec map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &rec))
			out = append(out, rec)
		}
		return out
	}

	t.Run("writes events through the logger", func(t *testing.T) {
		t.Parallel()
		store, buf := newStorage()
		l := audit.NewLogger(store)

		ctx := context.Background()
		require.NoError(t, l.Log(ctx, audit.ActionSwitch, audit.WithTenantID("acme"), audit.WithMetadata("from", "")))
		require.NoError(t, l.LogError(ctx, audit.ActionViolation, errors.New("tenant context missing"),
			audit.WithResource("entity", "notes")))

		recs := decode(t, buf)
		require.Len(t, recs, 2)

		assert.Equal(t, "INFO", recs[0]["level"])
		assert.Equal(t, audit.ActionSwitch, recs[0]["action"])
		assert.Equal(t, "acme", recs[0]["tenant_id"])
		assert.Contains(t, recs[0], "metadata")

		assert.Equal(t, "WARN", recs[1]["level"])
		assert.Equal(t, audit.ActionViolation, recs[1]["action"])
		assert.Equal(t, "entity", recs[1]["resource"])
		assert.Equal(t, "notes", recs[1]["resource_id"])
		assert.Equal(t, "tenant context missing", recs[1]["error"])
	})

	t.Run("batch", func(t *testing.T) {
		t.Parallel()
		store, buf := newStorage()
		require.NoError(t, store.StoreBatch(context.Background(), []audit.Event{
			{ID: "1", Action: audit.ActionCreate, Result: audit.ResultSuccess},
			{ID: "2", Action: audit.ActionDrop, Result: audit.ResultSuccess},
		}))
		assert.Len(t, decode(t, buf), 2)
	})

	t.Run("query unsupported", func(t *testing.T) {
		t.Parallel()
		store, _ := newStorage()
		_, err := store.Query(context.Background(), audit.Criteria{})
		assert.ErrorIs(t, err, audit.ErrQueryNotSupported)
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()
		store, buf := newStorage()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, store.Store(ctx, audit.Event{Action: audit.ActionCreate}), context.Canceled)
		assert.Empty(t, buf.String())
	})

	t.Run("nil logger panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { audit.NewLogStorage(nil) })
	})
}
