package audit

import (
	"context"
	"sync"
	"time"
)

// AsyncOptions configures batching of audit writes.
type AsyncOptions struct {
	BufferSize     int           // events queued before Store falls back to a direct write
	BatchSize      int           // events per flush
	BatchTimeout   time.Duration // max wait for a partial batch
	StorageTimeout time.Duration // per-flush storage deadline

	// Detached makes Store return as soon as the event is queued.
	// Flush failures then go to OnFlushError instead of the caller.
	Detached     bool
	OnFlushError func(err error, events int)
}

// BatchStorage is a Storage that can also write in bulk.
type BatchStorage interface {
	Storage
	BatchWriter
}

// AsyncWriter batches events in a background goroutine and writes them
// through the wrapped storage. Store waits for the flush result unless
// the writer is detached.
type AsyncWriter struct {
	storage   BatchStorage
	eventChan chan pendingEvent
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	options   AsyncOptions
}

type pendingEvent struct {
	event  Event
	result chan error
}

// NewAsyncWriter starts the background flusher. Call Close on shutdown.
func NewAsyncWriter(s BatchStorage, opts AsyncOptions) *AsyncWriter {
	if s == nil {
		panic("audit: batch storage cannot be nil")
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 100 * time.Millisecond
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}

	aw := &AsyncWriter{
		storage:   s,
		eventChan: make(chan pendingEvent, opts.BufferSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		options:   opts,
	}

	aw.wg.Add(1)
	go aw.worker()

	return aw
}

func (aw *AsyncWriter) Store(ctx context.Context, event Event) error {
	result := make(chan error, 1)

	select {
	case <-aw.done:
		return ErrStorageNotAvailable
	default:
	}

	select {
	case aw.eventChan <- pendingEvent{event: event, result: result}:
		if aw.options.Detached {
			return nil
		}
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-aw.stopped:
			select {
			case err := <-result:
				return err
			default:
				return ErrStorageNotAvailable
			}
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-aw.done:
		return ErrStorageNotAvailable
	default:
		// Buffer full: write synchronously rather than lose the event.
		return aw.storage.StoreBatch(ctx, []Event{event})
	}
}

// Query reads straight from the wrapped storage; unflushed events are not visible.
func (aw *AsyncWriter) Query(ctx context.Context, c Criteria) ([]Event, error) {
	return aw.storage.Query(ctx, c)
}

func (aw *AsyncWriter) worker() {
	defer aw.wg.Done()
	defer close(aw.stopped)

	batch := make([]Event, 0, aw.options.BatchSize)
	waiting := make([]chan error, 0, aw.options.BatchSize)

	ticker := time.NewTicker(aw.options.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), aw.options.StorageTimeout)
		err := aw.storage.StoreBatch(ctx, batch)
		cancel()

		if err != nil && aw.options.Detached && aw.options.OnFlushError != nil {
			aw.options.OnFlushError(err, len(batch))
		}

		for _, ch := range waiting {
			ch <- err
		}
		batch = batch[:0]
		waiting = waiting[:0]
	}

	for {
		select {
		case p := <-aw.eventChan:
			batch = append(batch, p.event)
			waiting = append(waiting, p.result)
			if len(batch) >= aw.options.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-aw.done:
			for {
				select {
				case p := <-aw.eventChan:
					batch = append(batch, p.event)
					waiting = append(waiting, p.result)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close flushes queued events and stops the worker. The context bounds the wait.
func (aw *AsyncWriter) Close(ctx context.Context) error {
	aw.closeOnce.Do(func() { close(aw.done) })

	finished := make(chan struct{})
	go func() {
		aw.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
