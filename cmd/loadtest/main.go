// Command loadtest drives a running search service with a mix of search and
// autocomplete requests and prints latency percentiles per endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var queries = []string{
	"newtonsoft.json",
	"json",
	"logging",
	"serilog sinks",
	"entity framework",
	"id:dapper",
	"tags:azure storage",
	"owner:microsoft http",
	`description:"dependency injection"`,
	"xunit",
	"automapper",
	"redis cache",
	"",
}

var prefixes = []string{"new", "ser", "micro", "entityf", "xu", "auto", "dap", "stack"}

var sorts = []string{"", "lastEdited", "published", "title-asc"}

type endpointStats struct {
	requests  atomic.Int64
	failures  atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newEndpointStats() *endpointStats {
	return &endpointStats{latencies: make([]time.Duration, 0, 100000), codes: make(map[int]int64)}
}

func (s *endpointStats) record(d time.Duration, code int, err error) {
	s.requests.Add(1)
	if err != nil || code < 200 || code >= 300 {
		s.failures.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	autocompleteShare := flag.Int("autocomplete", 30, "percentage of requests sent to /autocomplete")
	prerelease := flag.Bool("prerelease", false, "include prerelease versions")
	flag.Parse()

	fmt.Println("=== Package Search Load Test ===")
	fmt.Printf("Target:       %s\n", *baseURL)
	fmt.Printf("Concurrency:  %d\n", *concurrency)
	fmt.Printf("Duration:     %s\n", *duration)
	fmt.Printf("Autocomplete: %d%%\n\n", *autocompleteShare)

	stats := map[string]*endpointStats{
		"search":       newEndpointStats(),
		"autocomplete": newEndpointStats(),
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency * 2,
			MaxIdleConnsPerHost: *concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < *concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				kind, target := nextRequest(*baseURL, i, *autocompleteShare, *prerelease)
				d, code, err := do(ctx, client, target)
				if ctx.Err() != nil {
					return nil
				}
				stats[kind].record(d, code, err)
			}
			return nil
		})
	}
	g.Wait()

	var total int64
	for _, kind := range []string{"search", "autocomplete"} {
		total += report(kind, stats[kind], *duration)
	}
	if total == 0 {
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func nextRequest(base string, i, autocompleteShare int, prerelease bool) (string, string) {
	v := url.Values{}
	v.Set("prerelease", fmt.Sprint(prerelease))
	if i%100 < autocompleteShare {
		v.Set("q", prefixes[i%len(prefixes)])
		v.Set("take", "10")
		return "autocomplete", base + "/autocomplete?" + v.Encode()
	}
	v.Set("q", queries[i%len(queries)])
	v.Set("take", "20")
	v.Set("skip", fmt.Sprint((i/len(queries))%3*20))
	if s := sorts[i%len(sorts)]; s != "" {
		v.Set("sortBy", s)
	}
	return "search", base + "/search/query?" + v.Encode()
}

func do(ctx context.Context, client *http.Client, target string) (time.Duration, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return time.Since(start), resp.StatusCode, nil
}

func report(kind string, s *endpointStats, duration time.Duration) int64 {
	total := s.requests.Load()
	fmt.Printf("=== %s ===\n", strings.ToUpper(kind))
	fmt.Printf("Requests:     %d\n", total)
	fmt.Printf("Failures:     %d\n", s.failures.Load())
	if total == 0 {
		fmt.Println()
		return 0
	}
	fmt.Printf("Requests/sec: %.2f\n", float64(total)/duration.Seconds())

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := s.codes
	s.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Printf("Min: %s  Avg: %s  P50: %s  P95: %s  P99: %s  Max: %s\n",
			latencies[0],
			sum/time.Duration(len(latencies)),
			percentile(latencies, 50),
			percentile(latencies, 95),
			percentile(latencies, 99),
			latencies[len(latencies)-1],
		)
	}

	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	slices.Sort(keys)
	for _, code := range keys {
		fmt.Printf("  %d: %d\n", code, codes[code])
	}
	fmt.Println()
	return total
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
