package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 1},
		{50, 5},
		{90, 9},
		{99, 10},
		{100, 10},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Error("empty input should give 0")
	}
}

func TestAskCountsEnvelopeOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
			K     int    `json:"k"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || r.URL.Path != "/rag" || req.K != 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": req.Query == "good"})
	}))
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL, K: 2}
	stats := NewStats()
	for _, q := range []string{"good", "bad"} {
		status, success, err := ask(context.Background(), srv.Client(), cfg, q)
		stats.RecordRequest(time.Millisecond, status, success, err)
	}
	if stats.answered.Load() != 1 || stats.unanswered.Load() != 1 {
		t.Fatalf("answered=%d unanswered=%d", stats.answered.Load(), stats.unanswered.Load())
	}
	if stats.statusCodes[http.StatusOK].Load() != 2 {
		t.Fatalf("status counts = %v", stats.statusCodes)
	}
}

func TestReadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.txt")
	if err := os.WriteFile(path, []byte("first\n\n  second  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := readQueries(path)
	if err != nil || len(got) != 2 || got[1] != "second" {
		t.Fatalf("readQueries = %v, %v", got, err)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	os.WriteFile(empty, nil, 0o644)
	if _, err := readQueries(empty); err == nil {
		t.Fatal("expected error for empty query file")
	}
}
