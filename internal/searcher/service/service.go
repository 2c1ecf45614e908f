// Package service implements the query API over the current index
// generation: search, autocomplete, find and diagnostics.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/generation"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/manager"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/resilience"
)

type Config struct {
	DefaultTake  int
	MaxTake      int
	QueryTimeout time.Duration
}

type Service struct {
	mgr     *manager.Manager
	cache   *cache.QueryCache
	events  analytics.Sink
	metrics *metrics.Metrics
	cfg     Config
	logger  *slog.Logger
}

// New builds a Service. cache and events may be nil.
func New(mgr *manager.Manager, qc *cache.QueryCache, events analytics.Sink, m *metrics.Metrics, cfg Config) *Service {
	if cfg.DefaultTake <= 0 {
		cfg.DefaultTake = 20
	}
	if cfg.MaxTake < cfg.DefaultTake {
		cfg.MaxTake = cfg.DefaultTake
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		mgr:     mgr,
		cache:   qc,
		events:  events,
		metrics: m,
		cfg:     cfg,
		logger:  slog.Default().With("component", "search-service"),
	}
}

type SearchRequest struct {
	Query             string
	IncludePrerelease bool
	IncludeUnlisted   bool
	Skip              int
	Take              int
	Feed              string
	Sort              string
	Explain           bool
}

type SearchResult struct {
	TotalHits      int       `json:"totalHits"`
	Generation     uint64    `json:"generation"`
	Index          string    `json:"index"`
	IndexTimestamp time.Time `json:"indexTimestamp"`
	Data           []Hit     `json:"data"`
}

type AutoCompleteRequest struct {
	Query             string
	ID                string
	IncludePrerelease bool
	Skip              int
	Take              int
	Explain           bool
}

type AutoCompleteResult struct {
	TotalHits      int       `json:"totalHits"`
	Generation     uint64    `json:"generation"`
	Index          string    `json:"index"`
	IndexTimestamp time.Time `json:"indexTimestamp"`
	Data           []string  `json:"data"`
	Explanations   []string  `json:"explanations,omitempty"`
}

func (s *Service) page(skip, take int) (int, int, error) {
	if skip < 0 {
		return 0, 0, apperrors.BadRequest(apperrors.ErrInvalidInput, "skip must not be negative, got %d", skip)
	}
	if take < 0 {
		return 0, 0, apperrors.BadRequest(apperrors.ErrInvalidInput, "take must not be negative, got %d", take)
	}
	if take == 0 {
		take = s.cfg.DefaultTake
	}
	return skip, min(take, s.cfg.MaxTake), nil
}

// timed runs fn under the query timeout. fn holds its own reference on g so
// a query abandoned at the deadline cannot outlive the generation.
func timed[T any](ctx context.Context, s *Service, name string, g *generation.Generation, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !g.TryIncRef() {
		return zero, apperrors.ErrUninitialized
	}
	v, err := resilience.WithTimeoutValue(ctx, s.cfg.QueryTimeout, name, func(ctx context.Context) (T, error) {
		defer g.DecRef()
		return fn(ctx)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return zero, apperrors.Newf(apperrors.ErrTimeout, http.StatusServiceUnavailable, "%v", err)
	}
	return v, err
}

// Search runs a user query against the latest version of each package
// matching the request's listed and prerelease predicate.
func (s *Service) Search(ctx context.Context, req SearchRequest) (res *SearchResult, err error) {
	start := time.Now()
	ev := analytics.SearchEvent{
		Operation:         analytics.OpSearch,
		Query:             req.Query,
		Feed:              req.Feed,
		Sort:              req.Sort,
		IncludePrerelease: req.IncludePrerelease,
	}
	defer func() {
		total, returned := res.hits()
		s.observe(ctx, &ev, start, total, returned, err)
	}()

	sortBy, err := query.ParseSort(req.Sort)
	if err != nil {
		return nil, err
	}
	skip, take, err := s.page(req.Skip, req.Take)
	if err != nil {
		return nil, err
	}
	plan, err := parser.Parse(req.Query)
	if err != nil {
		return nil, err
	}

	h, err := s.mgr.Acquire()
	if err != nil {
		return nil, err
	}
	defer h.Release()
	g := h.Generation()
	ev.Generation = g.Seq

	key := cache.Key(g.Key, string(analytics.OpSearch),
		plan.Normalized(),
		strconv.FormatBool(req.IncludePrerelease),
		strconv.FormatBool(req.IncludeUnlisted),
		strings.ToLower(req.Feed),
		sortBy.String(),
		strconv.Itoa(skip), strconv.Itoa(take),
		strconv.FormatBool(req.Explain),
	)
	res, ev.CacheHit, err = cache.GetOrCompute(ctx, s.cache, key, func() (*SearchResult, error) {
		return timed(ctx, s, "search", g, func(ctx context.Context) (*SearchResult, error) {
			filter, ok := g.TryGetFilter(req.IncludeUnlisted, req.IncludePrerelease, req.Feed)
			if !ok {
				return nil, apperrors.Newf(apperrors.ErrFeedNotFound, http.StatusNotFound, "curated feed %q", req.Feed)
			}
			f := &formatter{g: g, s: query.NewSearcher(g), includePrerelease: req.IncludePrerelease, includeUnlisted: req.IncludeUnlisted}
			top, err := f.s.Search(ctx, query.Request{
				Query:   &query.BoostedQuery{Inner: query.Build(plan, g)},
				Filter:  filter,
				Skip:    skip,
				Take:    take,
				Sort:    sortBy,
				Explain: req.Explain,
			})
			if err != nil {
				return nil, err
			}
			hits, err := f.hits(top)
			if err != nil {
				return nil, err
			}
			return &SearchResult{
				TotalHits:      top.TotalHits,
				Generation:     g.Seq,
				Index:          g.Commit.Description,
				IndexTimestamp: g.Commit.CommitTimeStamp,
				Data:           hits,
			}, nil
		})
	})
	return res, err
}

func (r *SearchResult) hits() (total, returned int) {
	if r == nil {
		return 0, 0
	}
	return r.TotalHits, len(r.Data)
}

// AutoComplete suggests package ids for a prefix, or lists the versions of
// ID when Query is empty and ID is set.
func (s *Service) AutoComplete(ctx context.Context, req AutoCompleteRequest) (res *AutoCompleteResult, err error) {
	start := time.Now()
	ev := analytics.SearchEvent{
		Operation:         analytics.OpAutocomplete,
		Query:             req.Query,
		IncludePrerelease: req.IncludePrerelease,
	}
	defer func() {
		var total, returned int
		if res != nil {
			total, returned = res.TotalHits, len(res.Data)
		}
		s.observe(ctx, &ev, start, total, returned, err)
	}()

	skip, take, err := s.page(req.Skip, req.Take)
	if err != nil {
		return nil, err
	}
	h, err := s.mgr.Acquire()
	if err != nil {
		return nil, err
	}
	defer h.Release()
	g := h.Generation()
	ev.Generation = g.Seq

	versions := strings.TrimSpace(req.Query) == "" && strings.TrimSpace(req.ID) != ""
	key := cache.Key(g.Key, string(analytics.OpAutocomplete),
		strings.ToLower(strings.TrimSpace(req.Query)),
		strings.ToLower(strings.TrimSpace(req.ID)),
		strconv.FormatBool(versions),
		strconv.FormatBool(req.IncludePrerelease),
		strconv.Itoa(skip), strconv.Itoa(take),
		strconv.FormatBool(req.Explain),
	)
	res, ev.CacheHit, err = cache.GetOrCompute(ctx, s.cache, key, func() (*AutoCompleteResult, error) {
		return timed(ctx, s, "autocomplete", g, func(ctx context.Context) (*AutoCompleteResult, error) {
			out := &AutoCompleteResult{
				Generation:     g.Seq,
				Index:          g.Commit.Description,
				IndexTimestamp: g.Commit.CommitTimeStamp,
				Data:           []string{},
			}
			filter, _ := g.TryGetFilter(false, req.IncludePrerelease, "")
			if versions {
				return s.autoCompleteVersions(ctx, g, filter, req, out)
			}
			srch := query.NewSearcher(g)
			top, err := srch.Search(ctx, query.Request{
				Query:   &query.BoostedQuery{Inner: query.Autocomplete(req.Query)},
				Filter:  filter,
				Skip:    skip,
				Take:    take,
				Explain: req.Explain,
			})
			if err != nil {
				return nil, err
			}
			out.TotalHits = top.TotalHits
			for i, hit := range top.Hits {
				fields, err := srch.Document(hit.Doc)
				if err != nil {
					return nil, err
				}
				out.Data = append(out.Data, fields.Get(document.FieldID))
				if req.Explain {
					out.Explanations = append(out.Explanations, top.Explanations[i].String())
				}
			}
			return out, nil
		})
	})
	return res, err
}

// autoCompleteVersions finds the latest visible doc of the package and lists
// every version visible under the same predicate.
func (s *Service) autoCompleteVersions(ctx context.Context, g *generation.Generation, filter *roaring.Bitmap, req AutoCompleteRequest, out *AutoCompleteResult) (*AutoCompleteResult, error) {
	srch := query.NewSearcher(g)
	top, err := srch.Search(ctx, query.Request{Query: query.ExactID(req.ID), Filter: filter, Take: 1})
	if err != nil {
		return nil, err
	}
	if len(top.Hits) == 0 {
		return out, nil
	}
	f := &formatter{g: g, s: srch, includePrerelease: req.IncludePrerelease}
	fields, err := srch.Document(top.Hits[0].Doc)
	if err != nil {
		return nil, err
	}
	for _, v := range f.versions(fields.Get(document.FieldID)) {
		out.Data = append(out.Data, v.Version)
	}
	out.TotalHits = len(out.Data)
	return out, nil
}

// Find returns the package id's preferred version: the latest stable listed
// one, else the latest listed one, else the highest version indexed.
func (s *Service) Find(ctx context.Context, id string) (hit *Hit, err error) {
	start := time.Now()
	ev := analytics.SearchEvent{Operation: analytics.OpFind, Query: id}
	defer func() {
		n := 0
		if hit != nil {
			n = 1
		}
		s.observe(ctx, &ev, start, n, n, err)
	}()

	if strings.TrimSpace(id) == "" {
		return nil, apperrors.BadRequest(apperrors.ErrInvalidInput, "id is required")
	}
	h, err := s.mgr.Acquire()
	if err != nil {
		return nil, err
	}
	defer h.Release()
	g := h.Generation()
	ev.Generation = g.Seq

	key := cache.Key(g.Key, string(analytics.OpFind), strings.ToLower(strings.TrimSpace(id)))
	hit, ev.CacheHit, err = cache.GetOrCompute(ctx, s.cache, key, func() (*Hit, error) {
		return timed(ctx, s, "find", g, func(ctx context.Context) (*Hit, error) {
			return find(ctx, g, id)
		})
	})
	return hit, err
}

func find(ctx context.Context, g *generation.Generation, id string) (*Hit, error) {
	srch := query.NewSearcher(g)
	f := &formatter{g: g, s: srch, includePrerelease: true, includeUnlisted: true}
	for _, filter := range []*roaring.Bitmap{g.LatestStable(), g.Latest()} {
		top, err := srch.Search(ctx, query.Request{Query: query.ExactID(id), Filter: filter, Take: 1})
		if err != nil {
			return nil, err
		}
		if len(top.Hits) > 0 {
			hit, err := f.hit(top.Hits[0], nil)
			return &hit, err
		}
	}
	entries := g.VersionsOf(id)
	if len(entries) == 0 {
		return nil, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "package %q", id)
	}
	newest := entries[len(entries)-1]
	hit, err := f.hit(ranker.ScoredDoc{Doc: newest.Doc}, nil)
	return &hit, err
}

func (s *Service) observe(ctx context.Context, ev *analytics.SearchEvent, start time.Time, total, returned int, err error) {
	elapsed := time.Since(start)
	op := string(ev.Operation)
	outcome := "ok"
	switch {
	case err != nil && apperrors.IsClientError(err):
		outcome = "client_error"
	case err != nil:
		outcome = "error"
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(op, outcome).Inc()
	s.metrics.SearchLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	if err == nil {
		s.metrics.SearchResultsCount.WithLabelValues(op).Observe(float64(total))
	}

	l := logger.FromContext(ctx)
	if outcome == "error" {
		l.Error("query failed", "operation", op, "query", ev.Query, "error", err)
	} else {
		l.Debug("query served", "operation", op, "query", ev.Query, "total", total, "cache_hit", ev.CacheHit, "duration", elapsed)
	}

	if s.events == nil {
		return
	}
	ev.TotalHits = total
	ev.Returned = returned
	ev.LatencyMs = elapsed.Milliseconds()
	ev.Failed = err != nil
	ev.Timestamp = time.Now().UTC()
	ev.RequestID = logger.RequestID(ctx)
	s.events.Record(*ev)
}

// Diagnostics describes the current generation.
type Diagnostics struct {
	Generation        uint64                 `json:"generation"`
	GenerationKey     string                 `json:"generationKey"`
	IndexGeneration   int64                  `json:"indexGeneration"`
	CommitID          string                 `json:"commitId"`
	Segments          int                    `json:"segments"`
	MaxDoc            uint32                 `json:"maxDoc"`
	NumDocs           int                    `json:"numDocs"`
	NumDeletedDocs    int                    `json:"numDeletedDocs"`
	Latest            uint64                 `json:"latest"`
	LatestStable      uint64                 `json:"latestStable"`
	Commit            indexer.CommitMetadata `json:"commitUserData"`
	AuxiliaryVersion  uint64                 `json:"auxiliaryVersion"`
	AuxiliaryContent  string                 `json:"auxiliaryFingerprint"`
	AuxiliaryLoadedAt time.Time              `json:"auxiliaryLoadedAt"`
	AuxiliaryRecords  map[string]int         `json:"auxiliaryRecords"`
	BuiltAt           time.Time              `json:"builtAt"`
	WarmedAt          time.Time              `json:"warmedAt"`
	CacheHits         int64                  `json:"cacheHits"`
	CacheMisses       int64                  `json:"cacheMisses"`
}

func (s *Service) Diagnostics() (*Diagnostics, error) {
	h, err := s.mgr.Acquire()
	if err != nil {
		return nil, err
	}
	defer h.Release()
	g := h.Generation()
	hits, misses := s.cache.Stats()
	return &Diagnostics{
		Generation:        g.Seq,
		GenerationKey:     g.Key,
		IndexGeneration:   g.Reader.Generation(),
		CommitID:          g.Reader.CommitID(),
		Segments:          len(g.Reader.Leaves()),
		MaxDoc:            g.MaxDoc(),
		NumDocs:           g.NumDocs(),
		NumDeletedDocs:    g.Reader.NumDeletedDocs(),
		Latest:            g.Latest().GetCardinality(),
		LatestStable:      g.LatestStable().GetCardinality(),
		Commit:            g.Commit,
		AuxiliaryVersion:  g.Snapshot.Version,
		AuxiliaryContent:  g.Snapshot.Fingerprint,
		AuxiliaryLoadedAt: g.Snapshot.LoadedAt,
		AuxiliaryRecords:  g.Snapshot.Counts(),
		BuiltAt:           g.BuiltAt,
		WarmedAt:          g.WarmedAt,
		CacheHits:         hits,
		CacheMisses:       misses,
	}, nil
}
