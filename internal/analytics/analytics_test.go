package analytics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return p.err
}

func (p *fakePublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestCollectorFlushesOnBatchSizeAndClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 3, time.Hour)
	c.Start(context.Background())
	for i := 0; i < 7; i++ {
		c.Track(QueryEvent{Query: "q", Outcome: OutcomeAnswered})
	}
	c.Close()
	if pub.total() != 7 {
		t.Fatalf("published %d events, want 7", pub.total())
	}
	if len(pub.batches[0]) != 3 {
		t.Errorf("first batch size = %d, want 3", len(pub.batches[0]))
	}
	ev := pub.batches[0][0].Value.(QueryEvent)
	if ev.Type != EventQuery {
		t.Errorf("event type = %q, want %q", ev.Type, EventQuery)
	}
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 2, 10, time.Hour)
	for i := 0; i < 5; i++ {
		c.Track(QueryEvent{Query: "q"})
	}
	if c.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", c.Dropped())
	}
}

func TestCollectorTrackAfterCloseIsDropped(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 10, 100, time.Hour)
	c.Start(context.Background())
	c.Track(QueryEvent{Query: "before"})
	c.Close()
	c.Close()

	c.Track(QueryEvent{Query: "late"})
	if c.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", c.Dropped())
	}
	if pub.total() != 1 {
		t.Errorf("published %d events, want 1", pub.total())
	}
}

func TestCollectorConcurrentTrackAndClose(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 1000, 10, time.Hour)
	c.Start(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Track(QueryEvent{Query: "q"})
			}
		}()
	}
	c.Close()
	wg.Wait()
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCollector(pub, 10, 100, time.Hour)
	c.Track(QueryEvent{Query: "a"})
	c.Track(QueryEvent{Query: "b"})
	c.Start(ctx)
	cancel()
	<-c.done
	if pub.total() != 2 {
		t.Errorf("published %d events on shutdown, want 2", pub.total())
	}
}

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	events := []QueryEvent{
		{Query: "Invoice due date", Outcome: OutcomeAnswered, DocsUsed: 3, ContextChars: 900, LatencyMs: 100},
		{Query: "invoice  due date", Outcome: OutcomeAnswered, DocsUsed: 1, ContextChars: 300, LatencyMs: 300, CacheHit: true},
		{Query: "parking", Outcome: OutcomeNoDocuments, LatencyMs: 20},
		{Query: "boom", Outcome: OutcomeError, LatencyMs: 5000},
	}
	for _, e := range events {
		a.RecordQuery(e)
	}
	a.RecordIndexBuild(IndexCompleteEvent{BuildID: "b-1", Documents: 12})

	s := a.Stats()
	if s.TotalQueries != 4 || s.CacheHits != 1 || s.CacheMisses != 3 {
		t.Errorf("totals = %+v", s)
	}
	if s.Outcomes[OutcomeAnswered] != 2 || s.Outcomes[OutcomeNoDocuments] != 1 || s.Outcomes[OutcomeError] != 1 {
		t.Errorf("outcomes = %v", s.Outcomes)
	}
	if s.TopQueries[0].Query != "invoice due date" || s.TopQueries[0].Count != 2 {
		t.Errorf("top query = %+v", s.TopQueries[0])
	}
	if len(s.NoResultQueries) != 1 || s.NoResultQueries[0].Query != "parking" {
		t.Errorf("no-result queries = %+v", s.NoResultQueries)
	}
	if s.AvgDocsUsed != 1 || s.P99LatencyMs != 5000 {
		t.Errorf("AvgDocsUsed=%f P99=%d", s.AvgDocsUsed, s.P99LatencyMs)
	}
	if s.IndexBuilds != 1 || s.LastBuildID != "b-1" {
		t.Errorf("builds = %d last = %s", s.IndexBuilds, s.LastBuildID)
	}
}

func TestHandleCallbacksFeedStats(t *testing.T) {
	a := NewAggregator()
	if err := a.HandleQuery(context.Background(), QueryEvent{Query: "x", Outcome: OutcomeAnswered}); err != nil {
		t.Fatal(err)
	}
	if err := a.HandleIndexBuild(context.Background(), IndexCompleteEvent{BuildID: "b-9", Documents: 4}); err != nil {
		t.Fatal(err)
	}
	s := a.Stats()
	if s.TotalQueries != 1 || s.LastBuildID != "b-9" {
		t.Errorf("stats = %+v", s)
	}
}

type fakeSnapshots struct{ err error }

func (f fakeSnapshots) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]AggregatedStats, limit)
	return out, nil
}

func TestHandler(t *testing.T) {
	a := NewAggregator()
	a.RecordQuery(QueryEvent{Query: "x", Outcome: OutcomeAnswered})

	tests := []struct {
		name      string
		snapshots SnapshotLister
		path      string
		handler   func(*Handler) http.HandlerFunc
		want      int
	}{
		{"stats", nil, "/api/v1/analytics", func(h *Handler) http.HandlerFunc { return h.Stats }, http.StatusOK},
		{"snapshots unconfigured", nil, "/api/v1/analytics/snapshots", func(h *Handler) http.HandlerFunc { return h.Snapshots }, http.StatusNotFound},
		{"snapshots bad limit", fakeSnapshots{}, "/api/v1/analytics/snapshots?limit=0", func(h *Handler) http.HandlerFunc { return h.Snapshots }, http.StatusBadRequest},
		{"snapshots ok", fakeSnapshots{}, "/api/v1/analytics/snapshots?limit=2", func(h *Handler) http.HandlerFunc { return h.Snapshots }, http.StatusOK},
		{"snapshots store error", fakeSnapshots{err: errors.New("db down")}, "/api/v1/analytics/snapshots", func(h *Handler) http.HandlerFunc { return h.Snapshots }, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(a, tt.snapshots)
			rec := httptest.NewRecorder()
			tt.handler(h)(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
