package audit

import (
	"context"
	"log/slog"
)

// LogStorage writes events as structured log records. Failed actions are
// logged at warn level. It is write-only: Query returns ErrQueryNotSupported.
type LogStorage struct {
	log *slog.Logger
}

func NewLogStorage(log *slog.Logger) *LogStorage {
	if log == nil {
		panic("audit: logger cannot be nil")
	}
	return &LogStorage{log: log}
}

func (s *LogStorage) Store(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	level := slog.LevelInfo
	if event.Result != ResultSuccess {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("action", event.Action),
		slog.String("tenant_id", event.TenantID),
		slog.String("result", string(event.Result)),
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource), slog.String("resource_id", event.ResourceID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if len(event.Metadata) > 0 {
		meta := make([]any, 0, len(event.Metadata)*2)
		for k, v := range event.Metadata {
			meta = append(meta, k, v)
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}

	s.log.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

func (s *LogStorage) StoreBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		if err := s.Store(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *LogStorage) Query(context.Context, Criteria) ([]Event, error) {
	return nil, ErrQueryNotSupported
}
