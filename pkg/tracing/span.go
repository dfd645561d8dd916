// Package tracing records timed spans for sync runs. A root span carries a
// trace id that is also attached to the context logger, so every log line of
// a run can be correlated; the finished tree is written through slog.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nysenate/openleg-sync/pkg/logger"
)

type contextKey struct{}

// Span is one timed step of a run.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration
	Err      error
	Attrs    map[string]any

	mu       sync.Mutex
	children []*Span
	parent   *Span
}

// Start opens a span under the one carried by ctx, or a new root span with a
// fresh trace id when ctx has none.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{
		Name:  name,
		Start: time.Now(),
		Attrs: make(map[string]any),
	}
	if parent := FromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.parent = parent
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		span.TraceID = uuid.NewString()
		ctx = logger.WithTraceID(ctx, span.TraceID)
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// End closes the span. err may be nil.
func (s *Span) End(err error) {
	s.mu.Lock()
	s.Duration = time.Since(s.Start)
	s.Err = err
	s.mu.Unlock()
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// Root reports whether s has no parent.
func (s *Span) Root() bool { return s.parent == nil }

// Children returns a snapshot of the direct children.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// FromContext returns the current span, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// Log writes s and its descendants at level, one line per span.
func (s *Span) Log(ctx context.Context, log *slog.Logger, level slog.Level) {
	if !log.Enabled(ctx, level) {
		return
	}
	s.log(ctx, log, level, 0)
}

func (s *Span) log(ctx context.Context, log *slog.Logger, level slog.Level, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	if s.Err != nil {
		attrs = append(attrs, "error", s.Err.Error())
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	log.Log(ctx, level, "span", attrs...)
	for _, child := range children {
		child.log(ctx, log, level, depth+1)
	}
}
