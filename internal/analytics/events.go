// Package analytics records what users search for. Events go to an
// in-process aggregator for the stats endpoint and, when Kafka is enabled,
// to a batching collector that publishes them to the search-events topic.
package analytics

import "time"

type Operation string

const (
	OpSearch       Operation = "search"
	OpAutocomplete Operation = "autocomplete"
	OpFind         Operation = "find"
)

type SearchEvent struct {
	Operation         Operation `json:"operation"`
	Query             string    `json:"query"`
	Feed              string    `json:"feed,omitempty"`
	Sort              string    `json:"sort,omitempty"`
	IncludePrerelease bool      `json:"include_prerelease"`
	TotalHits         int       `json:"total_hits"`
	Returned          int       `json:"returned"`
	LatencyMs         int64     `json:"latency_ms"`
	CacheHit          bool      `json:"cache_hit"`
	Generation        uint64    `json:"generation"`
	Failed            bool      `json:"failed,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	RequestID         string    `json:"request_id,omitempty"`
}

// Sink receives search events. Implementations must not block.
type Sink interface {
	Record(event SearchEvent)
}

// Sinks fans an event out to every sink.
type Sinks []Sink

func (s Sinks) Record(event SearchEvent) {
	for _, sink := range s {
		sink.Record(event)
	}
}
