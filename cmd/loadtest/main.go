// Command loadtest drives POST /rag with concurrent workers and reports
// throughput, latency percentiles, envelope outcomes, and status codes.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8000] [-concurrency 10] [-duration 30s] [-k 3] [-queries file]
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	K           int
	Queries     []string
}

// Stats is shared by all workers.
type Stats struct {
	totalRequests atomic.Int64
	transportErrs atomic.Int64
	answered      atomic.Int64
	unanswered    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

// RecordRequest counts one request. success is the envelope's success
// field and is only meaningful for 200 responses.
func (s *Stats) RecordRequest(duration time.Duration, statusCode int, success bool, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.transportErrs.Add(1)
		return
	}
	if statusCode == http.StatusOK {
		if success {
			s.answered.Add(1)
		} else {
			s.unanswered.Add(1)
		}
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var defaultQueries = []string{
	"What is the total amount on the invoice?",
	"When does the passport expire?",
	"Who signed the contract?",
	"What are the payment terms?",
	"Which address is listed for the customer?",
	"What is the policy number?",
	"Summarize the medical report.",
	"What date was the receipt issued?",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "base URL of the rag server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	k := flag.Int("k", 3, "documents to retrieve per query")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in set)")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		K:           *k,
		Queries:     queries,
	}

	fmt.Println("=== RAG Load Test ===")
	fmt.Printf("Target:      %s/rag\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique, k=%d\n", len(cfg.Queries), cfg.K)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return queries, nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			queryIdx := workerID
			for ctx.Err() == nil {
				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				start := time.Now()
				status, success, err := ask(ctx, client, cfg, query)
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(time.Since(start), status, success, err)
			}
		}(w)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func ask(ctx context.Context, client *http.Client, cfg Config, query string) (int, bool, error) {
	body, err := json.Marshal(map[string]any{"query": query, "k": cfg.K})
	if err != nil {
		return 0, false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/rag", bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "loadtest-"+uuid.NewString())

	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var env struct {
		Success bool `json:"success"`
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return resp.StatusCode, false, fmt.Errorf("decoding envelope: %w", err)
		}
	}
	return resp.StatusCode, env.Success, nil
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	answered := stats.answered.Load()
	unanswered := stats.unanswered.Load()
	transportErrs := stats.transportErrs.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:   %d\n", total)
	fmt.Printf("Answered:         %d\n", answered)
	fmt.Printf("Unanswered (200): %d\n", unanswered)
	fmt.Printf("Transport Errors: %d\n", transportErrs)
	if total > 0 {
		fmt.Printf("Answer Rate:      %.2f%%\n", float64(answered)/float64(total)*100)
		fmt.Printf("Requests/sec:     %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the rag server running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
