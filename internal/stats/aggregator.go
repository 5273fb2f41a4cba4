// Package stats aggregates parse outcomes into running statistics: line and
// feature counts, failures by kind, slot usage and latency percentiles.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/features"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

// latencyWindow is the number of most recent latencies kept for percentiles.
const latencyWindow = 10000

type AggregatedStats struct {
	TotalLines         int64            `json:"total_lines"`
	ParsedLines        int64            `json:"parsed_lines"`
	FailedLines        int64            `json:"failed_lines"`
	LabelledLines      int64            `json:"labelled_lines"`
	TaggedLines        int64            `json:"tagged_lines"`
	TotalFeatures      int64            `json:"total_features"`
	AvgFeaturesPerLine float64          `json:"avg_features_per_line"`
	FailuresByKind     map[string]int64 `json:"failures_by_kind"`
	TopSlots           []SlotCount      `json:"top_slots"`
	AvgLatencyUs       float64          `json:"avg_latency_us"`
	P50LatencyUs       int64            `json:"p50_latency_us"`
	P95LatencyUs       int64            `json:"p95_latency_us"`
	P99LatencyUs       int64            `json:"p99_latency_us"`
	LinesPerMinute     float64          `json:"lines_per_minute"`
}

// SlotCount is the number of features written to one namespace slot.
type SlotCount struct {
	Index    uint8 `json:"index"`
	Features int64 `json:"features"`
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	mu             sync.RWMutex
	totalLines     atomic.Int64
	parsedLines    atomic.Int64
	failedLines    atomic.Int64
	labelledLines  atomic.Int64
	taggedLines    atomic.Int64
	totalFeatures  atomic.Int64
	slotFeatures   [features.NumSlots]int64
	failuresByKind map[string]int64
	latencies      []int64
	next           int
	startTime      time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		failuresByKind: make(map[string]int64),
		latencies:      make([]int64, 0, 1024),
		startTime:      time.Now(),
	}
}

// Observe records one parse outcome.
func (a *Aggregator) Observe(ex *parser.Example, err error, elapsed time.Duration) {
	a.totalLines.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordLatency(elapsed.Microseconds())

	if err != nil {
		a.failedLines.Add(1)
		a.failuresByKind[apperrors.Kind(err)]++
		return
	}
	a.parsedLines.Add(1)
	if ex == nil {
		return
	}
	if ex.Label != nil {
		a.labelledLines.Add(1)
	}
	if ex.Tag != nil {
		a.taggedLines.Add(1)
	}
	if ex.Features == nil {
		return
	}
	for _, idx := range ex.Features.Populated() {
		n := int64(ex.Features.Slot(idx).Len())
		a.slotFeatures[idx] += n
		a.totalFeatures.Add(n)
	}
}

// recordLatency keeps a ring of the last latencyWindow samples. Callers hold
// a.mu.
func (a *Aggregator) recordLatency(us int64) {
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, us)
		return
	}
	a.latencies[a.next] = us
	a.next = (a.next + 1) % latencyWindow
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalLines:     a.totalLines.Load(),
		ParsedLines:    a.parsedLines.Load(),
		FailedLines:    a.failedLines.Load(),
		LabelledLines:  a.labelledLines.Load(),
		TaggedLines:    a.taggedLines.Load(),
		TotalFeatures:  a.totalFeatures.Load(),
		FailuresByKind: make(map[string]int64, len(a.failuresByKind)),
	}
	for k, v := range a.failuresByKind {
		stats.FailuresByKind[k] = v
	}
	if stats.ParsedLines > 0 {
		stats.AvgFeaturesPerLine = float64(stats.TotalFeatures) / float64(stats.ParsedLines)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyUs = float64(sum) / float64(len(sorted))
		stats.P50LatencyUs = percentile(sorted, 50)
		stats.P95LatencyUs = percentile(sorted, 95)
		stats.P99LatencyUs = percentile(sorted, 99)
	}
	stats.TopSlots = topSlots(a.slotFeatures[:], 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.LinesPerMinute = float64(stats.TotalLines) / elapsed
	}
	return stats
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

// topSlots returns the n busiest slots, ties broken by slot index.
func topSlots(counts []int64, n int) []SlotCount {
	result := make([]SlotCount, 0)
	for idx, c := range counts {
		if c > 0 {
			result = append(result, SlotCount{Index: uint8(idx), Features: c})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Features != result[j].Features {
			return result[i].Features > result[j].Features
		}
		return result[i].Index < result[j].Index
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
