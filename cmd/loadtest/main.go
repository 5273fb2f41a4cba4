// Command loadtest drives POST /api/v1/parse on a running featurizer with
// generated example lines and reports throughput, latency percentiles and
// status codes.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL         string
	Concurrency     int
	Duration        time.Duration
	LinesPerRequest int
	FeaturesPerLine int
	// RPS caps the total request rate; zero means unlimited.
	RPS float64
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	linesParsed   atomic.Int64
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

func (s *Stats) RecordRequest(duration time.Duration, statusCode, lines int, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
		s.linesParsed.Add(int64(lines))
	} else {
		s.errorCount.Add(1)
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

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the featurizer")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.IntVar(&cfg.LinesPerRequest, "lines", 100, "example lines per request")
	flag.IntVar(&cfg.FeaturesPerLine, "features", 20, "features per generated line")
	flag.Float64Var(&cfg.RPS, "rps", 0, "total requests per second (0 = unlimited)")
	flag.Parse()

	fmt.Println("=== Featurizer Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Batch:       %d lines x %d features\n", cfg.LinesPerRequest, cfg.FeaturesPerLine)
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

// generateLines builds n example lines with two namespaces each. Values are
// derived from rng so runs are reproducible per seed.
func generateLines(rng *rand.Rand, n, features int) []string {
	lines := make([]string, n)
	var sb strings.Builder
	for i := range lines {
		sb.Reset()
		fmt.Fprintf(&sb, "%d 'ex%d |user", rng.Intn(2), i)
		for f := 0; f < features/2; f++ {
			fmt.Fprintf(&sb, " u%d:%.3f", rng.Intn(1000), rng.Float32())
		}
		sb.WriteString(" |item")
		for f := 0; f < features-features/2; f++ {
			fmt.Fprintf(&sb, " i%d", rng.Intn(10000))
		}
		lines[i] = sb.String()
	}
	return lines
}

func buildBody(lines []string) ([]byte, error) {
	return json.Marshal(map[string]any{"lines": lines, "skip_invalid": true})
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	limiter := rate.NewLimiter(limit, max(1, cfg.Concurrency))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(workerID)))
			target := cfg.BaseURL + "/api/v1/parse"
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				body, err := buildBody(generateLines(rng, cfg.LinesPerRequest, cfg.FeaturesPerLine))
				if err != nil {
					stats.RecordRequest(0, 0, 0, err)
					continue
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
				if err != nil {
					stats.RecordRequest(0, 0, 0, err)
					return
				}
				req.Header.Set("Content-Type", "application/json")

				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.RecordRequest(duration, 0, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.RecordRequest(duration, resp.StatusCode, cfg.LinesPerRequest, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
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

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errCount := stats.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", errCount)
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(errCount)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
		fmt.Fprintf(w, "Lines/sec:       %.2f\n", float64(stats.linesParsed.Load())/duration.Seconds())
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

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the featurizer running?")
		return false
	}
	return true
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
