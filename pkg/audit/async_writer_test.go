package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
)

func TestAsyncWriter_ConcurrentLogging(t *testing.T) {
	t.Parallel()

	store := audit.NewMemoryStorage()
	writer := audit.NewAsyncWriter(store, audit.AsyncOptions{BatchSize: 4, BatchTimeout: 10 * time.Millisecond})
	log := audit.NewLogger(writer)

	const goroutines = 5
	const eventsPerGoroutine = 3

	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := range eventsPerGoroutine {
				err := log.Log(context.Background(), audit.ActionSwitch,
					audit.WithMetadata("worker", worker),
					audit.WithMetadata("iteration", j),
				)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, writer.Close(context.Background()))

	events, err := writer.Query(context.Background(), audit.Criteria{Action: audit.ActionSwitch})
	require.NoError(t, err)
	assert.Len(t, events, goroutines*eventsPerGoroutine)
}

func TestAsyncWriter_StoreAfterClose(t *testing.T) {
	t.Parallel()

	writer := audit.NewAsyncWriter(audit.NewMemoryStorage(), audit.AsyncOptions{})
	require.NoError(t, writer.Close(context.Background()))
	require.NoError(t, writer.Close(context.Background()))

	err := writer.Store(context.Background(), audit.Event{Action: audit.ActionReset})
	assert.ErrorIs(t, err, audit.ErrStorageNotAvailable)
}

func TestAsyncWriter_ContextCancellation(t *testing.T) {
	t.Parallel()

	writer := audit.NewAsyncWriter(audit.NewMemoryStorage(), audit.AsyncOptions{BatchSize: 100, BatchTimeout: time.Second})
	defer writer.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := writer.Store(ctx, audit.Event{Action: audit.ActionAccess})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type failingBatchStorage struct {
	*audit.MemoryStorage
	err error
}

func (s failingBatchStorage) StoreBatch(context.Context, []audit.Event) error { return s.err }

func TestAsyncWriter_Detached(t *testing.T) {
	t.Parallel()

	t.Run("store returns before the flush", func(t *testing.T) {
		t.Parallel()

		store := audit.NewMemoryStorage()
		writer := audit.NewAsyncWriter(store, audit.AsyncOptions{BatchTimeout: time.Hour, Detached: true})
		log := audit.NewLogger(writer)

		start := time.Now()
		for range 10 {
			require.NoError(t, log.Log(context.Background(), audit.ActionSwitch, audit.WithTenantID("acme")))
		}
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.Empty(t, store.Events(), "nothing flushed yet")

		require.NoError(t, writer.Close(context.Background()))
		assert.Len(t, store.Events(), 10)
	})

	t.Run("flush errors are reported", func(t *testing.T) {
		t.Parallel()

		flushErr := errors.New("disk full")
		var (
			mu      sync.Mutex
			reports []int
		)
		writer := audit.NewAsyncWriter(
			failingBatchStorage{MemoryStorage: audit.NewMemoryStorage(), err: flushErr},
			audit.AsyncOptions{
				BatchTimeout: time.Hour,
				Detached:     true,
				OnFlushError: func(err error, events int) {
					assert.ErrorIs(t, err, flushErr)
					mu.Lock()
					reports = append(reports, events)
					mu.Unlock()
				},
			},
		)

		require.NoError(t, writer.Store(context.Background(), audit.Event{Action: audit.ActionReset}))
		require.NoError(t, writer.Store(context.Background(), audit.Event{Action: audit.ActionReset}))
		require.NoError(t, writer.Close(context.Background()))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []int{2}, reports)
	})
}
