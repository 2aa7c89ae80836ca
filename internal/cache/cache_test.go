package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/pipeline"
	goredis "github.com/redis/go-redis/v9"
)

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func okEnvelope() *pipeline.Envelope {
	return &pipeline.Envelope{
		Success:     true,
		Answer:      "thirty days",
		Documents:   []pipeline.DocumentMeta{{Path: "a.txt", FullPath: "/c/a.txt", Score: 0.9, Text: "x", Rank: 1}},
		Model:       "m",
		NumDocsUsed: 1,
	}
}

func computed(env *pipeline.Envelope) pipeline.Result {
	return pipeline.Result{Envelope: env, Stats: pipeline.RunStats{ContextChars: 120, ContextUsed: 1}}
}

func TestGetOrComputeCachesSuccess(t *testing.T) {
	c := New(newMemStore(), time.Minute, "build-1")
	calls := 0
	compute := func(context.Context) pipeline.Result { calls++; return computed(okEnvelope()) }

	first, err := c.GetOrCompute(context.Background(), "When are invoices due?", 3, compute)
	if err != nil || first.Source != pipeline.SourceComputed || !first.Envelope.Success {
		t.Fatalf("first call = %+v, %v", first, err)
	}
	second, err := c.GetOrCompute(context.Background(), "  when are INVOICES due? ", 3, compute)
	if err != nil || second.Source != pipeline.SourceCache {
		t.Fatalf("expected cache hit for normalized query, got %+v, %v", second, err)
	}
	if calls != 1 {
		t.Errorf("compute calls = %d, want 1", calls)
	}
	if second.Envelope.Answer != first.Envelope.Answer || second.Envelope.Documents[0].Score != 0.9 {
		t.Errorf("cached envelope = %+v", second.Envelope)
	}
	if h, m := c.Stats(); h != 1 || m != 1 {
		t.Errorf("stats hits=%d misses=%d", h, m)
	}
}

func TestGetOrComputeSkipsFailures(t *testing.T) {
	c := New(newMemStore(), time.Minute, "build-1")
	calls := 0
	compute := func(context.Context) pipeline.Result {
		calls++
		return computed(&pipeline.Envelope{Success: false, Error: "generation failed"})
	}
	c.GetOrCompute(context.Background(), "q", 3, compute)
	c.GetOrCompute(context.Background(), "q", 3, compute)
	if calls != 2 {
		t.Errorf("failed envelopes should not be cached, compute calls = %d", calls)
	}
}

func TestKeyDependsOnBuildAndK(t *testing.T) {
	a := New(newMemStore(), time.Minute, "build-1")
	b := New(newMemStore(), time.Minute, "build-2")
	if a.Key("q", 3) == b.Key("q", 3) {
		t.Error("keys should differ across builds")
	}
	if a.Key("q", 3) == a.Key("q", 4) {
		t.Error("keys should differ across k")
	}
}

func TestBackendErrorDegradesToMiss(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	c := New(store, time.Minute, "b")
	res, err := c.GetOrCompute(context.Background(), "q", 3, func(context.Context) pipeline.Result { return computed(okEnvelope()) })
	if err != nil || res.Source != pipeline.SourceComputed || !res.Envelope.Success {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestSingleflightCollapsesConcurrentMisses(t *testing.T) {
	c := New(newMemStore(), time.Minute, "b")
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) pipeline.Result {
		calls.Add(1)
		<-release
		return computed(okEnvelope())
	}
	results := make(chan pipeline.Result, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := c.GetOrCompute(context.Background(), "same question", 3, compute)
			results <- res
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)
	if calls.Load() != 1 {
		t.Errorf("compute calls = %d, want 1", calls.Load())
	}
	shared := 0
	for res := range results {
		if res.Stats.ContextUsed != 1 || res.Stats.ContextChars != 120 {
			t.Errorf("result lost its run stats: %+v", res.Stats)
		}
		if res.Source == pipeline.SourceShared {
			shared++
		}
	}
	if shared != 7 {
		t.Errorf("shared results = %d, want 7", shared)
	}
}

func TestCancelledLeaderDoesNotFailWaiters(t *testing.T) {
	c := New(newMemStore(), time.Minute, "b")
	var calls atomic.Int32
	started := make(chan struct{}, 1)
	compute := func(ctx context.Context) pipeline.Result {
		calls.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			return computed(&pipeline.Envelope{Error: "chat completion: " + ctx.Err().Error()})
		case <-time.After(150 * time.Millisecond):
		}
		return computed(okEnvelope())
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(leaderCtx, "q", 3, compute)
		leaderErr <- err
	}()
	<-started

	follower := make(chan pipeline.Result, 1)
	go func() {
		res, err := c.GetOrCompute(context.Background(), "q", 3, compute)
		if err != nil {
			t.Errorf("follower err = %v", err)
		}
		follower <- res
	}()
	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader err = %v, want context.Canceled", err)
	}
	res := <-follower
	if !res.Envelope.Success {
		t.Fatalf("follower got failure %q from a cancelled leader", res.Envelope.Error)
	}
	if calls.Load() != 1 {
		t.Errorf("compute calls = %d, want 1", calls.Load())
	}
	if again, _ := c.GetOrCompute(context.Background(), "q", 3, compute); again.Source != pipeline.SourceCache {
		t.Errorf("detached compute should have stored its answer, got source %v", again.Source)
	}
}

func TestWaiterRecomputesAfterSharedFailure(t *testing.T) {
	c := New(newMemStore(), time.Minute, "b")
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) pipeline.Result {
		if calls.Add(1) == 1 {
			<-release
			return computed(&pipeline.Envelope{Error: "generation failed"})
		}
		return computed(okEnvelope())
	}

	leader := make(chan pipeline.Result, 1)
	go func() {
		res, _ := c.GetOrCompute(context.Background(), "q", 3, compute)
		leader <- res
	}()
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	follower := make(chan pipeline.Result, 1)
	go func() {
		res, _ := c.GetOrCompute(context.Background(), "q", 3, compute)
		follower <- res
	}()
	time.Sleep(30 * time.Millisecond)
	close(release)

	if res := <-leader; res.Envelope.Success {
		t.Error("leader should see its own failure")
	}
	if res := <-follower; !res.Envelope.Success || res.Source != pipeline.SourceComputed {
		t.Errorf("follower = %+v, want its own successful compute", res)
	}
	if calls.Load() != 2 {
		t.Errorf("compute calls = %d, want 2", calls.Load())
	}
}

func TestWaiterStopsOnOwnCancellation(t *testing.T) {
	c := New(newMemStore(), time.Minute, "b", WithComputeTimeout(time.Second))
	release := make(chan struct{})
	defer close(release)
	compute := func(context.Context) pipeline.Result {
		<-release
		return computed(okEnvelope())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.GetOrCompute(ctx, "q", 3, compute); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, "b")
	c.GetOrCompute(context.Background(), "q", 3, func(context.Context) pipeline.Result { return computed(okEnvelope()) })
	store.data["unrelated"] = []byte("x")
	if err := c.Invalidate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.data) != 1 {
		t.Errorf("remaining keys = %v", store.data)
	}
}
