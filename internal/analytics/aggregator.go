package analytics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalQueries      int64               `json:"total_queries"`
	ByOperation       map[Operation]int64 `json:"by_operation"`
	Failures          int64               `json:"failures"`
	CacheHits         int64               `json:"cache_hits"`
	CacheMisses       int64               `json:"cache_misses"`
	ZeroResultCount   int64               `json:"zero_result_count"`
	AvgLatencyMs      float64             `json:"avg_latency_ms"`
	P50LatencyMs      int64               `json:"p50_latency_ms"`
	P95LatencyMs      int64               `json:"p95_latency_ms"`
	P99LatencyMs      int64               `json:"p99_latency_ms"`
	TopQueries        []QueryCount        `json:"top_queries"`
	ZeroResultQueries []QueryCount        `json:"zero_result_queries"`
	QueriesPerMinute  float64             `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running query statistics in memory. Latency samples are
// a sliding window of the most recent queries.
type Aggregator struct {
	mu                sync.RWMutex
	totalQueries      atomic.Int64
	failures          atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	zeroResults       atomic.Int64
	byOperation       map[Operation]int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byOperation:       make(map[Operation]int64),
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
	}
}

func (a *Aggregator) Record(event SearchEvent) {
	a.totalQueries.Add(1)
	if event.Failed {
		a.failures.Add(1)
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	zero := !event.Failed && event.TotalHits == 0
	if zero {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	a.byOperation[event.Operation]++
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	if event.Query != "" {
		a.queryCounts[event.Query]++
		if zero {
			a.zeroResultQueries[event.Query]++
		}
	}
	a.mu.Unlock()
}

const defaultTopQueries = 10

func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(defaultTopQueries)
}

// StatsTop is Stats with the query leaderboards cut to n entries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:    a.totalQueries.Load(),
		ByOperation:     make(map[Operation]int64, len(a.byOperation)),
		Failures:        a.failures.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
	}
	for op, n := range a.byOperation {
		stats.ByOperation[op] = n
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
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
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
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
