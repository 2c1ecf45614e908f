package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/auxiliary"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/generation"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/manager"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/searchtest"
	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/resilience"
)

type fixture struct {
	svc    *Service
	mgr    *manager.Manager
	idx    *searchtest.Index
	events *analytics.Aggregator
}

func newFixture(t *testing.T, store *auxiliary.Store, qc *cache.QueryCache, records ...map[string]string) *fixture {
	t.Helper()
	idx := searchtest.NewIndex(t).Add(records...)
	idx.Commit()
	opts := manager.Options{
		Dir:     idx.Dir,
		Metrics: metrics.NewNop(),
		Startup: resilience.RetryConfig{MaxAttempts: 1},
		Warm: func(ctx context.Context, g *generation.Generation) error {
			return Warm(ctx, g, "")
		},
	}
	if store != nil {
		opts.Aux = store
	}
	mgr := manager.New(opts)
	require.NoError(t, mgr.Open(context.Background()))
	t.Cleanup(func() { mgr.Close() })

	events := analytics.NewAggregator()
	svc := New(mgr, qc, events, metrics.NewNop(), Config{DefaultTake: 20, MaxTake: 50, QueryTimeout: 5 * time.Second})
	return &fixture{svc: svc, mgr: mgr, idx: idx, events: events}
}

func hitIDs(res *SearchResult) []string {
	out := make([]string, 0, len(res.Data))
	for _, h := range res.Data {
		out = append(out, h.ID+"@"+h.Version)
	}
	return out
}

func TestSearchEmptyQueryHonorsPrerelease(t *testing.T) {
	f := newFixture(t, nil, nil,
		searchtest.Record("Foo.Bar", "1.0.0"),
		searchtest.Record("Foo.Bar", "2.0.0-beta"),
	)
	ctx := context.Background()

	res, err := f.svc.Search(ctx, SearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalHits)
	assert.Equal(t, []string{"Foo.Bar@1.0.0"}, hitIDs(res))
	assert.Equal(t, []HitVersion{{Version: "1.0.0"}}, res.Data[0].Versions)

	res, err = f.svc.Search(ctx, SearchRequest{IncludePrerelease: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo.Bar@2.0.0-beta"}, hitIDs(res))
	assert.Len(t, res.Data[0].Versions, 2)
	assert.True(t, res.Data[0].Prerelease)
}

func TestSearchFormatsHits(t *testing.T) {
	store := searchtest.Auxiliary(t,
		`[["Newtonsoft.Json",["jamesnk"]]]`,
		"",
		`[["Newtonsoft.Json",["12.0.3",40],["13.0.1",60]]]`,
		`{"Rank":["Newtonsoft.Json"]}`,
	)
	f := newFixture(t, store, nil,
		searchtest.Record("Newtonsoft.Json", "12.0.3"),
		searchtest.Record("Newtonsoft.Json", "13.0.1",
			"title", "Json.NET",
			"tags", "json serializer",
			"authors", "James Newton-King",
			"flattenedDependencies", "Microsoft.CSharp:[4.3.0, ):netstandard1.0",
			"supportedFrameworks", "net45|netstandard2.0",
			"flattenedPackageTypes", "Dependency:1.0.0",
			"packageSize", "2048",
		),
	)

	res, err := f.svc.Search(context.Background(), SearchRequest{Query: "json"})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	h := res.Data[0]
	assert.Equal(t, "13.0.1", h.Version)
	assert.Equal(t, "Json.NET", h.Title)
	assert.Equal(t, []string{"json", "serializer"}, h.Tags)
	assert.Equal(t, []string{"James Newton-King"}, h.Authors)
	assert.Equal(t, []string{"jamesnk"}, h.Owners)
	assert.Equal(t, 100, h.TotalDownloads)
	assert.Equal(t, []HitVersion{{Version: "12.0.3", Downloads: 40}, {Version: "13.0.1", Downloads: 60}}, h.Versions)
	assert.Equal(t, int64(2048), h.PackageSize)
	assert.Greater(t, h.Score, 0.0)

	var deps []map[string]any
	require.NoError(t, json.Unmarshal(h.Dependencies, &deps))
	require.Len(t, deps, 1)
	assert.JSONEq(t, `["net45","netstandard2.0"]`, string(h.SupportedFrameworks))
	assert.JSONEq(t, `[{"Name":"Dependency","Version":"1.0.0"}]`, string(h.PackageTypes))
}

func TestSearchExplain(t *testing.T) {
	f := newFixture(t, nil, nil, searchtest.Record("Serilog", "2.10.0"))
	res, err := f.svc.Search(context.Background(), SearchRequest{Query: "serilog", Explain: true})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Contains(t, res.Data[0].Explanation, "boosted")
}

func TestSearchRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil, nil, searchtest.Record("Serilog", "2.10.0"))
	ctx := context.Background()

	_, err := f.svc.Search(ctx, SearchRequest{Query: `title:"unterminated`})
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))

	_, err = f.svc.Search(ctx, SearchRequest{Sort: "random"})
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))

	_, err = f.svc.Search(ctx, SearchRequest{Skip: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	stats := f.events.Stats()
	assert.Equal(t, int64(3), stats.Failures)
}

func TestSearchCuratedFeed(t *testing.T) {
	store := searchtest.Auxiliary(t, "", `[["webmatrix",["jQuery"]]]`, "", "")
	f := newFixture(t, store, nil,
		searchtest.Record("jQuery", "3.7.1"),
		searchtest.Record("Dapper", "2.1.0"),
	)
	ctx := context.Background()

	res, err := f.svc.Search(ctx, SearchRequest{Feed: "WebMatrix"})
	require.NoError(t, err)
	assert.Equal(t, []string{"jQuery@3.7.1"}, hitIDs(res))

	_, err = f.svc.Search(ctx, SearchRequest{Feed: "nosuchfeed"})
	assert.ErrorIs(t, err, apperrors.ErrFeedNotFound)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatusCode(err))
}

func TestSearchPagingClampsTake(t *testing.T) {
	var records []map[string]string
	for _, id := range []string{"A.One", "B.Two", "C.Three", "D.Four"} {
		records = append(records, searchtest.Record(id, "1.0.0"))
	}
	f := newFixture(t, nil, nil, records...)
	f.svc.cfg.MaxTake = 2

	res, err := f.svc.Search(context.Background(), SearchRequest{Sort: "title-asc", Take: 100})
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalHits)
	assert.Equal(t, []string{"A.One@1.0.0", "B.Two@1.0.0"}, hitIDs(res))

	res, err = f.svc.Search(context.Background(), SearchRequest{Sort: "title-asc", Skip: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"D.Four@1.0.0"}, hitIDs(res))
}

func TestSearchServesFromCache(t *testing.T) {
	qc := cache.New(cache.NewLRU(64, time.Minute), metrics.NewNop())
	f := newFixture(t, nil, qc, searchtest.Record("Serilog", "2.10.0"))
	ctx := context.Background()

	first, err := f.svc.Search(ctx, SearchRequest{Query: "serilog"})
	require.NoError(t, err)
	second, err := f.svc.Search(ctx, SearchRequest{Query: "  SERILOG "})
	require.NoError(t, err)
	assert.Equal(t, hitIDs(first), hitIDs(second))

	hits, misses := qc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, int64(1), f.events.Stats().CacheHits)

	// A new generation changes the key, so the next query misses.
	f.idx.Add(searchtest.Record("Serilog", "3.0.0")).Commit()
	published, err := f.mgr.MaybeReopen(ctx)
	require.NoError(t, err)
	require.True(t, published)
	third, err := f.svc.Search(ctx, SearchRequest{Query: "serilog"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Serilog@3.0.0"}, hitIDs(third))
}

func TestSharedCacheKeepsReplicasApart(t *testing.T) {
	backend := cache.NewLRU(64, time.Minute)
	a := newFixture(t, nil, cache.New(backend, metrics.NewNop()), searchtest.Record("Serilog", "2.0.0"))
	b := newFixture(t, nil, cache.New(backend, metrics.NewNop()), searchtest.Record("Serilog", "9.0.0"))
	ctx := context.Background()

	resA, err := a.svc.Search(ctx, SearchRequest{Query: "serilog"})
	require.NoError(t, err)
	resB, err := b.svc.Search(ctx, SearchRequest{Query: "serilog"})
	require.NoError(t, err)
	assert.Equal(t, resA.Generation, resB.Generation, "both processes count generations from one")
	assert.Equal(t, []string{"Serilog@2.0.0"}, hitIDs(resA))
	assert.Equal(t, []string{"Serilog@9.0.0"}, hitIDs(resB))

	// A restarted process over the same commit reuses the shared entries.
	qc := cache.New(backend, metrics.NewNop())
	mgr := manager.New(manager.Options{
		Dir:     a.idx.Dir,
		Metrics: metrics.NewNop(),
		Startup: resilience.RetryConfig{MaxAttempts: 1},
	})
	require.NoError(t, mgr.Open(ctx))
	t.Cleanup(func() { mgr.Close() })
	restarted := New(mgr, qc, analytics.NewAggregator(), metrics.NewNop(), Config{DefaultTake: 20, MaxTake: 50, QueryTimeout: 5 * time.Second})

	res, err := restarted.Search(ctx, SearchRequest{Query: "serilog"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Serilog@2.0.0"}, hitIDs(res))
	hits, misses := qc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(0), misses)
}

func TestAutoComplete(t *testing.T) {
	f := newFixture(t, nil, nil,
		searchtest.Record("Serilog", "2.10.0"),
		searchtest.Record("Serilog", "3.0.0-dev"),
		searchtest.Record("Dapper", "2.1.0"),
	)
	ctx := context.Background()

	res, err := f.svc.AutoComplete(ctx, AutoCompleteRequest{Query: "seri"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Serilog"}, res.Data)

	res, err = f.svc.AutoComplete(ctx, AutoCompleteRequest{ID: "serilog"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2.10.0"}, res.Data)

	res, err = f.svc.AutoComplete(ctx, AutoCompleteRequest{ID: "Serilog", IncludePrerelease: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"2.10.0", "3.0.0-dev"}, res.Data)

	res, err = f.svc.AutoComplete(ctx, AutoCompleteRequest{ID: "missing"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalHits)
	assert.Empty(t, res.Data)

	res, err = f.svc.AutoComplete(ctx, AutoCompleteRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalHits)
}

func TestFindPrefersLatestStable(t *testing.T) {
	f := newFixture(t, nil, nil,
		searchtest.Record("Foo.Bar", "1.0.0"),
		searchtest.Record("Foo.Bar", "2.0.0-beta"),
		searchtest.Record("Only.Pre", "0.1.0-alpha"),
		searchtest.Record("Gone", "1.0.0", "listed", "false"),
	)
	ctx := context.Background()

	hit, err := f.svc.Find(ctx, "foo.bar")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", hit.Version)

	hit, err = f.svc.Find(ctx, "Only.Pre")
	require.NoError(t, err)
	assert.Equal(t, "0.1.0-alpha", hit.Version)

	hit, err = f.svc.Find(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, hit.Listed)

	_, err = f.svc.Find(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.svc.Find(ctx, " ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestUninitializedService(t *testing.T) {
	mgr := manager.New(manager.Options{Dir: t.TempDir()})
	svc := New(mgr, nil, nil, nil, Config{})

	_, err := svc.Search(context.Background(), SearchRequest{})
	assert.ErrorIs(t, err, apperrors.ErrUninitialized)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
	_, err = svc.Diagnostics()
	assert.ErrorIs(t, err, apperrors.ErrUninitialized)
}

func TestDiagnostics(t *testing.T) {
	store := searchtest.Auxiliary(t, "", "", "", `{"Rank":["Serilog"]}`)
	f := newFixture(t, store, nil,
		searchtest.Record("Serilog", "2.10.0"),
		searchtest.Record("Serilog", "3.0.0-dev"),
	)
	d, err := f.svc.Diagnostics()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d.Generation)
	assert.Equal(t, 2, d.NumDocs)
	assert.Equal(t, uint64(1), d.Latest)
	assert.Equal(t, uint64(1), d.LatestStable)
	assert.Equal(t, "test", d.Commit.Description)
	assert.Equal(t, store.Current().Version, d.AuxiliaryVersion)
	assert.Equal(t, store.Current().Fingerprint, d.AuxiliaryContent)
	assert.Equal(t, generation.ContentKey(d.CommitID, d.IndexGeneration, d.AuxiliaryContent), d.GenerationKey)
	assert.Equal(t, 1, d.AuxiliaryRecords["rankings"])
	assert.False(t, d.WarmedAt.IsZero())
}

func TestWarmStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil, nil, searchtest.Record("Serilog", "2.10.0"))
	h, err := f.mgr.Acquire()
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, Warm(context.Background(), h.Generation(), "serilog"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, Warm(ctx, h.Generation(), "serilog"))
}
