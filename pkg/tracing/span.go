// Package tracing records an in-process span tree per request. The pipeline
// opens a root span per answer and a child per stage; the finished tree is
// logged at debug level as a single line.
package tracing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type spanKey struct{}

// Span is one timed operation.
type Span struct {
	Name    string
	TraceID string
	Start   time.Time

	mu       sync.Mutex
	duration time.Duration
	err      error
	attrs    []slog.Attr
	children []*Span
}

// Start opens a span named name. It becomes a child of the span already in
// ctx, inheriting its trace id, or a new root with traceID otherwise.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{Name: name, TraceID: traceID, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

// FromContext returns the current span, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// End fixes the span duration and returns it. Later calls return the first
// measurement.
func (s *Span) End() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duration == 0 {
		s.duration = time.Since(s.Start)
	}
	return s.duration
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Fail marks the span as failed with err.
func (s *Span) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Children returns a snapshot of the direct child spans.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Log writes the whole tree as one debug record. Each span is a group keyed
// by its position in the tree.
func (s *Span) Log(ctx context.Context) {
	l := slog.Default()
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	args := []any{slog.String("trace_id", s.TraceID)}
	var walk func(*Span, string)
	walk = func(sp *Span, path string) {
		args = append(args, sp.group(path))
		for _, c := range sp.Children() {
			walk(c, path+"."+c.Name)
		}
	}
	walk(s, s.Name)
	l.DebugContext(ctx, "trace", args...)
}

func (s *Span) group(path string) slog.Attr {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs := make([]any, 0, len(s.attrs)+2)
	attrs = append(attrs, slog.Int64("ms", s.duration.Milliseconds()))
	if s.err != nil {
		attrs = append(attrs, slog.String("error", s.err.Error()))
	}
	for _, a := range s.attrs {
		attrs = append(attrs, a)
	}
	return slog.Group(strings.ReplaceAll(path, " ", "_"), attrs...)
}
