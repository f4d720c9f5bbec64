package pg

import "context"

// Logger is the subset of *slog.Logger migrations report to.
type Logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}
