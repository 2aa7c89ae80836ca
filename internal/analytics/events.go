// Package analytics records what happens to each query: the pipeline emits
// QueryEvents through a Collector onto Kafka, and the analytics service
// aggregates them into dashboard stats.
package analytics

import "time"

type EventType string

const (
	EventQuery         EventType = "query"
	EventIndexComplete EventType = "index_complete"
)

// Outcome classifies how an answer call ended.
type Outcome string

const (
	OutcomeAnswered    Outcome = "answered"
	OutcomeNoDocuments Outcome = "no_documents"
	OutcomeNoContext   Outcome = "no_context"
	OutcomeError       Outcome = "error"
)

// QueryEvent describes one answer call.
type QueryEvent struct {
	Type          EventType `json:"type"`
	Query         string    `json:"query"`
	K             int       `json:"k"`
	Outcome       Outcome   `json:"outcome"`
	DocsRetrieved int       `json:"docs_retrieved"`
	DocsUsed      int       `json:"docs_used"`
	ContextChars  int       `json:"context_chars"`
	CacheHit      bool      `json:"cache_hit"`
	LatencyMs     int64     `json:"latency_ms"`
	Model         string    `json:"model,omitempty"`
	BuildID       string    `json:"build_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id,omitempty"`
}

// IndexCompleteEvent is published after a new index pair is written.
type IndexCompleteEvent struct {
	Type        EventType `json:"type"`
	BuildID     string    `json:"build_id"`
	Documents   int       `json:"documents"`
	Skipped     int       `json:"skipped"`
	Dimension   int       `json:"dimension"`
	Model       string    `json:"model"`
	VectorPath  string    `json:"vector_path"`
	MappingPath string    `json:"mapping_path"`
	CreatedAt   time.Time `json:"created_at"`
}
