package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type traceKey struct{}

type itemKey struct{}

func Setup(level string, format string) {
	SetupWriter(os.Stdout, level, format)
}

func SetupWriter(w io.Writer, level string, format string) {
	slog.SetDefault(New(w, level, format))
}

func New(w io.Writer, level string, format string) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// WithTraceID tags ctx with the id of the sync run it belongs to.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// WithItem tags ctx with the processor and natural key of the external item
// being imported so nested components log against the same item.
func WithItem(ctx context.Context, processor, key string) context.Context {
	return context.WithValue(ctx, itemKey{}, [2]string{processor, key})
}

func FromContext(ctx context.Context) *slog.Logger {
	return Enrich(ctx, slog.Default())
}

// Enrich adds the trace and item fields carried by ctx to base.
func Enrich(ctx context.Context, base *slog.Logger) *slog.Logger {
	logger := base
	if traceID, ok := ctx.Value(traceKey{}).(string); ok {
		logger = logger.With("trace_id", traceID)
	}
	if item, ok := ctx.Value(itemKey{}).([2]string); ok {
		logger = logger.With("processor", item[0], "key", item[1])
	}
	return logger
}

func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
