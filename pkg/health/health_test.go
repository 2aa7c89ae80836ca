package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	pingOK   = pingFunc(func(context.Context) error { return nil })
	pingFail = pingFunc(func(context.Context) error { return errors.New("connection refused") })
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"no checks", nil, StatusUp},
		{"all up", map[string]Check{"index": Static(true, ""), "redis": Ping(pingOK, true)}, StatusUp},
		{"optional down", map[string]Check{"index": Static(true, ""), "redis": Ping(pingFail, true)}, StatusDegraded},
		{"warning only", map[string]Check{"index": Warn(false, "index is empty")}, StatusDegraded},
		{"required down", map[string]Check{"index": Static(false, "index not loaded"), "redis": Ping(pingFail, true)}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Fatalf("status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Components) != len(tt.checks) {
				t.Fatalf("components = %d, want %d", len(report.Components), len(tt.checks))
			}
		})
	}
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	c.Register("index", Static(true, ""))
	c.Register("redis", Ping(pingFail, true))

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"live", c.LiveHandler(), http.StatusOK},
		{"ready tolerates degraded", c.ReadyHandler(), http.StatusOK},
		{"detail tolerates degraded", c.Handler(), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("content type = %q", ct)
			}
		})
	}

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Components["redis"].Message != "connection refused" {
		t.Fatalf("redis component = %+v", report.Components["redis"])
	}
}

func TestNames(t *testing.T) {
	c := NewChecker()
	c.Register("b", Static(true, ""))
	c.Register("a", Static(true, ""))
	if got := c.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Names = %v", got)
	}
}

func TestReadyFailsWhenRequiredDown(t *testing.T) {
	c := NewChecker()
	c.Register("index", Warn(false, "index is empty"))
	c.Register("generator", Static(false, "no model"))
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != string(StatusDown) || len(body) != 1 {
		t.Errorf("body = %v", body)
	}
}
