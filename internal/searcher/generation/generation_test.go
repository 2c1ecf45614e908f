package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/auxiliary"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/searchtest"
)

func corpus(t *testing.T) *searchtest.Index {
	idx := searchtest.NewIndex(t)
	idx.Add(
		searchtest.Record("Newtonsoft.Json", "12.0.3"),
		searchtest.Record("Newtonsoft.Json", "13.0.1"),
		searchtest.Record("Newtonsoft.Json", "14.0.0-beta1"),
		searchtest.Record("Serilog", "2.10.0"),
		searchtest.Record("Serilog", "3.0.0", "listed", "false"),
		searchtest.Record("Dapper", "2.0.0-preview"),
	)
	idx.Commit()
	return idx
}

func aux(t *testing.T) *auxiliary.Store {
	return searchtest.Auxiliary(t,
		`[["Newtonsoft.Json",["JamesNK"]],["Serilog",["serilog","nblumhardt"]]]`,
		`[["webmatrix",["newtonsoft.json"]]]`,
		`[["Newtonsoft.Json",["12.0.3",50],["13.0.1",200]],["Serilog",["2.10.0",30]]]`,
		`{"Rank":["Newtonsoft.Json","Serilog"]}`,
	)
}

func docOf(t *testing.T, g *Generation, id, ver string) uint32 {
	t.Helper()
	for _, e := range g.VersionsOf(id) {
		if e.Version == ver {
			return e.Doc
		}
	}
	t.Fatalf("no doc for %s %s", id, ver)
	return 0
}

func TestBuildDerivesAllStructures(t *testing.T) {
	r := corpus(t).Reader()
	g, err := Build(context.Background(), r, aux(t).Current())
	require.NoError(t, err)

	versions := g.VersionsOf("NEWTONSOFT.JSON")
	require.Len(t, versions, 3)
	assert.Equal(t, "12.0.3", versions[0].Version)
	assert.Equal(t, "14.0.0-beta1", versions[2].Version)
	assert.Equal(t, 200, versions[1].Downloads)

	nj := docOf(t, g, "Newtonsoft.Json", "13.0.1")
	assert.Equal(t, 250, g.PackageDownloads(nj))
	assert.Equal(t, 200, g.VersionDownloads[nj])
	assert.Equal(t, 0, g.Rank(nj))
	assert.Equal(t, []string{"JamesNK"}, g.OwnersByDoc[nj])
	assert.True(t, g.Owner("jamesnk").Contains(nj))

	dapper := docOf(t, g, "Dapper", "2.0.0-preview")
	assert.Equal(t, Unranked, g.Rank(dapper))

	feed, ok := g.TryGetFilter(false, true, "WebMatrix")
	require.True(t, ok)
	assert.Equal(t, []uint32{docOf(t, g, "Newtonsoft.Json", "14.0.0-beta1")}, feed.ToArray())
	_, ok = g.TryGetFilter(false, false, "missing")
	assert.False(t, ok)

	assert.Equal(t, 6, g.Mapping.Live[0])
	assert.Equal(t, uint32(3), g.Mapping.Global(0, 3))
}

func TestLatestSetsPickHighestVersionPerPredicate(t *testing.T) {
	g, err := Build(context.Background(), corpus(t).Reader(), nil)
	require.NoError(t, err)

	stable := g.LatestStable()
	assert.True(t, stable.Contains(docOf(t, g, "Newtonsoft.Json", "13.0.1")))
	assert.True(t, stable.Contains(docOf(t, g, "Serilog", "2.10.0")))
	assert.False(t, stable.Contains(docOf(t, g, "Dapper", "2.0.0-preview")))
	assert.Equal(t, uint64(2), stable.GetCardinality())

	latest := g.Latest()
	assert.True(t, latest.Contains(docOf(t, g, "Newtonsoft.Json", "14.0.0-beta1")))
	assert.True(t, latest.Contains(docOf(t, g, "Dapper", "2.0.0-preview")))
	assert.True(t, latest.Contains(docOf(t, g, "Serilog", "2.10.0")), "unlisted 3.0.0 is not latest")

	withUnlisted, _ := g.TryGetFilter(true, false, "")
	assert.True(t, withUnlisted.Contains(docOf(t, g, "Serilog", "3.0.0")))
}

func TestFilterSubsetProperty(t *testing.T) {
	g, err := Build(context.Background(), corpus(t).Reader(), nil)
	require.NoError(t, err)

	strictest := g.Predicate(false, false)
	for u := 0; u < 2; u++ {
		for p := 0; p < 2; p++ {
			assert.True(t, isSubset(strictest, g.Filters[u][p]), "filter[0][0] within filter[%d][%d]", u, p)
			assert.True(t, isSubset(g.LatestSets[u][p], g.Filters[u][p]), "latest[%d][%d] within its predicate", u, p)
		}
	}
	assert.Equal(t, uint64(6), g.Predicate(true, true).GetCardinality())
	assert.Equal(t, uint64(3), strictest.GetCardinality())
}

func TestHandlerErrorAbortsBuild(t *testing.T) {
	r := corpus(t).Reader()
	boom := errors.New("boom")
	_, err := Build(context.Background(), r, nil, WithHandler(&failingHandler{err: boom}))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")

	_, err = r.Document(0)
	assert.NoError(t, err, "reader stays open for the caller")
}

func TestBuildHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, corpus(t).Reader(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerationClosesExactlyOnce(t *testing.T) {
	idx := corpus(t)
	r, err := indexer.OpenDirectory(idx.Dir)
	require.NoError(t, err)

	var closes atomic.Int32
	g, err := Build(context.Background(), r, nil, WithOnClose(func(*Generation) { closes.Add(1) }))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		require.True(t, g.TryIncRef())
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.DecRef())
		}()
	}
	wg.Wait()
	assert.False(t, g.Closed())
	assert.Equal(t, int32(1), g.RefCount())

	require.NoError(t, g.DecRef())
	assert.True(t, g.Closed())
	assert.False(t, g.TryIncRef())
	assert.Equal(t, int32(1), closes.Load())
	assert.Error(t, g.DecRef())
	assert.Equal(t, int32(1), closes.Load())
}

func isSubset(sub, super *roaring.Bitmap) bool {
	return roaring.AndNot(sub, super).IsEmpty()
}

type failingHandler struct{ err error }

func (h *failingHandler) Name() string { return "failing" }
func (h *failingHandler) Begin(*indexer.DirectoryReader, *auxiliary.Snapshot) error {
	return nil
}
func (h *failingHandler) Visit(*Doc) error { return h.err }
func (h *failingHandler) End() error       { return nil }
