package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Store(ctx context.Context, event audit.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStorage) Query(ctx context.Context, c audit.Criteria) ([]audit.Event, error) {
	args := m.Called(ctx, c)
	events, _ := args.Get(0).([]audit.Event)
	return events, args.Error(1)
}

type requestIDKey struct{}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("panics with nil storage", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			audit.NewLogger(nil)
		})
	})
}

func TestLogger_Log(t *testing.T) {
	t.Parallel()

	t.Run("stores a success event with options applied", func(t *testing.T) {
		t.Parallel()
		store := audit.NewMemoryStorage()
		log := audit.NewLogger(store)

		err := log.Log(context.Background(), audit.ActionSwitch,
			audit.WithTenantID("acme"),
			audit.WithMetadata("from", "globex"),
		)
		require.NoError(t, err)

		events := store.Events()
		require.Len(t, events, 1)
		e := events[0]
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
		assert.Equal(t, audit.ActionSwitch, e.Action)
		assert.Equal(t, "acme", e.TenantID)
		assert.Equal(t, audit.ResultSuccess, e.Result)
		assert.Equal(t, "globex", e.Metadata["from"])
	})

	t.Run("extractors fill context values", func(t *testing.T) {
		t.Parallel()
		store := audit.NewMemoryStorage()
		log := audit.NewLogger(store,
			audit.WithTenantIDExtractor(func(context.Context) (string, bool) { return "from-ctx", true }),
			audit.WithRequestIDExtractor(func(ctx context.Context) (string, bool) {
				id, ok := ctx.Value(requestIDKey{}).(string)
				return id, ok
			}),
		)

		ctx := context.WithValue(context.Background(), requestIDKey{}, "req-1")
		require.NoError(t, log.Log(ctx, audit.ActionAccess, audit.WithResource("entity", "invoices")))

		e := store.Events()[0]
		assert.Equal(t, "from-ctx", e.TenantID)
		assert.Equal(t, "req-1", e.RequestID)
		assert.Equal(t, "entity", e.Resource)
		assert.Equal(t, "invoices", e.ResourceID)
	})

	t.Run("explicit tenant wins over extractor", func(t *testing.T) {
		t.Parallel()
		store := audit.NewMemoryStorage()
		log := audit.NewLogger(store,
			audit.WithTenantIDExtractor(func(context.Context) (string, bool) { return "from-ctx", true }),
		)

		require.NoError(t, log.Log(context.Background(), audit.ActionCreate, audit.WithTenantID("acme")))
		assert.Equal(t, "acme", store.Events()[0].TenantID)
	})

	t.Run("rejects empty action", func(t *testing.T) {
		t.Parallel()
		storage := new(MockStorage)
		log := audit.NewLogger(storage)

		err := log.Log(context.Background(), "")
		assert.ErrorIs(t, err, audit.ErrEventValidation)
		storage.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
	})

	t.Run("propagates storage errors", func(t *testing.T) {
		t.Parallel()
		storage := new(MockStorage)
		storageErr := errors.New("disk full")
		storage.On("Store", mock.Anything, mock.Anything).Return(storageErr)

		log := audit.NewLogger(storage)
		err := log.Log(context.Background(), audit.ActionDrop)
		assert.ErrorIs(t, err, storageErr)
		storage.AssertExpectations(t)
	})
}

func TestLogger_LogError(t *testing.T) {
	t.Parallel()

	store := audit.NewMemoryStorage()
	log := audit.NewLogger(store)

	cause := errors.New("schema missing")
	require.NoError(t, log.LogError(context.Background(), audit.ActionError, cause,
		audit.WithTenantID("acme"),
		audit.WithMetadata("operation", audit.ActionSwitch),
	))

	e := store.Events()[0]
	assert.Equal(t, audit.ResultError, e.Result)
	assert.Equal(t, "schema missing", e.Error)
	assert.Equal(t, audit.ActionSwitch, e.Metadata["operation"])
}
