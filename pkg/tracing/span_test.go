package tracing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestStartBuildsTree(t *testing.T) {
	ctx, root := Start(context.Background(), "answer", "trace-1")
	stageCtx, stage := Start(ctx, "retrieving", "ignored")
	stage.SetAttr("k", 3)
	stage.SetAttr("k", 5)
	stage.End()
	_, nested := Start(stageCtx, "embed", "")
	nested.End()
	root.End()

	if stage.TraceID != "trace-1" || nested.TraceID != "trace-1" {
		t.Errorf("trace ids = %q, %q", stage.TraceID, nested.TraceID)
	}
	children := root.Children()
	if len(children) != 1 || children[0] != stage {
		t.Fatalf("root children = %v", children)
	}
	if v, ok := attrOf(stage, "k"); !ok || v != int64(5) {
		t.Errorf("attr k = %v (%T), %v", v, v, ok)
	}
	if FromContext(stageCtx) != stage {
		t.Error("FromContext did not return the stage span")
	}
	want := []string{"answer", "answer>retrieving", "answer>retrieving>embed"}
	if got := treeNames(root); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("tree = %v, want %v", got, want)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	_, s := Start(context.Background(), "generating", "t")
	first := s.End()
	if second := s.End(); second != first || s.duration != first {
		t.Errorf("End() changed: %v then %v", first, second)
	}
}

func TestLogWritesOneLine(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx, root := Start(context.Background(), "answer", "trace-9")
	_, gen := Start(ctx, "generating", "")
	gen.Fail(errors.New("upstream 502"))
	gen.End()
	root.End()
	root.Log(ctx)

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected one log line, got %q", out)
	}
	for _, want := range []string{"trace_id=trace-9", "answer.generating.error=\"upstream 502\""} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestFromContextEmpty(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("expected nil span")
	}
}

// attrOf returns the most recent value set for key.
func attrOf(s *Span, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.attrs) - 1; i >= 0; i-- {
		if s.attrs[i].Key == key {
			return s.attrs[i].Value.Any(), true
		}
	}
	return nil, false
}

// treeNames lists "answer>retrieving>embed" style names depth first.
func treeNames(s *Span) []string {
	var out []string
	var walk func(*Span, string)
	walk = func(sp *Span, prefix string) {
		name := sp.Name
		if prefix != "" {
			name = prefix + ">" + sp.Name
		}
		out = append(out, name)
		for _, c := range sp.Children() {
			walk(c, name)
		}
	}
	walk(s, "")
	return out
}
