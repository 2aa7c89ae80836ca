package analytics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// AggregatedStats is the dashboard view of all events seen so far.
type AggregatedStats struct {
	TotalQueries       int64             `json:"total_queries"`
	Outcomes           map[Outcome]int64 `json:"outcomes"`
	CacheHits          int64             `json:"cache_hits"`
	CacheMisses        int64             `json:"cache_misses"`
	AvgDocsUsed        float64           `json:"avg_docs_used"`
	AvgContextChars    float64           `json:"avg_context_chars"`
	AvgLatencyMs       float64           `json:"avg_latency_ms"`
	P50LatencyMs       int64             `json:"p50_latency_ms"`
	P95LatencyMs       int64             `json:"p95_latency_ms"`
	P99LatencyMs       int64             `json:"p99_latency_ms"`
	TopQueries         []QueryCount      `json:"top_queries"`
	NoResultQueries    []QueryCount      `json:"no_result_queries"`
	QueriesPerMinute   float64           `json:"queries_per_minute"`
	IndexBuilds        int64             `json:"index_builds"`
	LastBuildID        string            `json:"last_build_id,omitempty"`
	LastBuildDocuments int               `json:"last_build_documents,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// maxLatencySamples bounds memory; older samples are overwritten ring-style.
const maxLatencySamples = 100000

// Aggregator folds QueryEvents and IndexCompleteEvents into running stats.
// It is safe for concurrent use.
type Aggregator struct {
	mu              sync.RWMutex
	totalQueries    int64
	outcomes        map[Outcome]int64
	cacheHits       int64
	docsUsed        int64
	contextChars    int64
	latencies       []int64
	latencyNext     int
	queryCounts     map[string]int64
	noResultQueries map[string]int64
	builds          int64
	lastBuild       IndexCompleteEvent
	startTime       time.Time
	logger          *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		outcomes:        make(map[Outcome]int64),
		latencies:       make([]int64, 0, 1024),
		queryCounts:     make(map[string]int64),
		noResultQueries: make(map[string]int64),
		startTime:       time.Now(),
		logger:          slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleQuery is the consumer callback for the query-events topic.
func (a *Aggregator) HandleQuery(_ context.Context, event QueryEvent) error {
	a.RecordQuery(event)
	return nil
}

// HandleIndexBuild is the consumer callback for the index-complete topic.
func (a *Aggregator) HandleIndexBuild(_ context.Context, event IndexCompleteEvent) error {
	a.RecordIndexBuild(event)
	return nil
}

func (a *Aggregator) RecordQuery(event QueryEvent) {
	query := normalize(event.Query)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalQueries++
	a.outcomes[event.Outcome]++
	if event.CacheHit {
		a.cacheHits++
	}
	a.docsUsed += int64(event.DocsUsed)
	a.contextChars += int64(event.ContextChars)
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}
	a.queryCounts[query]++
	if event.Outcome == OutcomeNoDocuments || event.Outcome == OutcomeNoContext {
		a.noResultQueries[query]++
	}
}

func (a *Aggregator) RecordIndexBuild(event IndexCompleteEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.builds++
	a.lastBuild = event
	a.logger.Info("index build recorded", "build_id", event.BuildID, "documents", event.Documents)
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:       a.totalQueries,
		Outcomes:           make(map[Outcome]int64, len(a.outcomes)),
		CacheHits:          a.cacheHits,
		CacheMisses:        a.totalQueries - a.cacheHits,
		IndexBuilds:        a.builds,
		LastBuildID:        a.lastBuild.BuildID,
		LastBuildDocuments: a.lastBuild.Documents,
	}
	for k, v := range a.outcomes {
		stats.Outcomes[k] = v
	}
	if a.totalQueries > 0 {
		stats.AvgDocsUsed = float64(a.docsUsed) / float64(a.totalQueries)
		stats.AvgContextChars = float64(a.contextChars) / float64(a.totalQueries)
	}
	if len(a.latencies) > 0 {
		sorted := append([]int64(nil), a.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.NoResultQueries = topN(a.noResultQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries, ties broken alphabetically.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
