package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/metrics"
)

type fakeSearcher struct {
	lastSearch service.SearchRequest
	lastAuto   service.AutoCompleteRequest
	err        error
}

func (f *fakeSearcher) Search(_ context.Context, req service.SearchRequest) (*service.SearchResult, error) {
	f.lastSearch = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.SearchResult{TotalHits: 1, Data: []service.Hit{{ID: "Serilog", Version: "2.10.0"}}}, nil
}

func (f *fakeSearcher) AutoComplete(_ context.Context, req service.AutoCompleteRequest) (*service.AutoCompleteResult, error) {
	f.lastAuto = req
	return &service.AutoCompleteResult{TotalHits: 1, Data: []string{"Serilog"}}, f.err
}

func (f *fakeSearcher) Find(_ context.Context, id string) (*service.Hit, error) {
	if id != "serilog" {
		return nil, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "package %q", id)
	}
	return &service.Hit{ID: "Serilog", Version: "2.10.0"}, nil
}

func (f *fakeSearcher) Diagnostics() (*service.Diagnostics, error) {
	return nil, apperrors.ErrUninitialized
}

func serve(t *testing.T, h *Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSearchParsesParameters(t *testing.T) {
	fs := &fakeSearcher{}
	rec := serve(t, New(fs, nil), http.MethodGet,
		"/search/query?q=json&prerelease=true&skip=5&take=10&feed=webmatrix&sortBy=title-asc&explanation=true")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.SearchRequest{
		Query: "json", IncludePrerelease: true, Skip: 5, Take: 10,
		Feed: "webmatrix", Sort: "title-asc", Explain: true,
	}, fs.lastSearch)

	var body service.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.TotalHits)
}

func TestSearchRejectsMalformedParameters(t *testing.T) {
	rec := serve(t, New(&fakeSearcher{}, nil), http.MethodGet, "/search/query?take=ten")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "take must be an integer")

	rec = serve(t, New(&fakeSearcher{}, nil), http.MethodGet, "/search/query?prerelease=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorsMapToStatus(t *testing.T) {
	fs := &fakeSearcher{err: apperrors.BadRequest(apperrors.ErrInvalidQuery, "unterminated quote")}
	rec := serve(t, New(fs, nil), http.MethodGet, "/search/query?q=%22abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unterminated quote")

	fs.err = apperrors.ErrInternal
	rec = serve(t, New(fs, nil), http.MethodGet, "/search/query?q=x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "search failed")

	rec = serve(t, New(fs, nil), http.MethodGet, "/search/diag")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAutoCompleteAndFind(t *testing.T) {
	fs := &fakeSearcher{}
	h := New(fs, nil)

	rec := serve(t, h, http.MethodGet, "/autocomplete?id=Serilog&prerelease=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Serilog", fs.lastAuto.ID)
	assert.True(t, fs.lastAuto.IncludePrerelease)

	rec = serve(t, h, http.MethodGet, "/search/find?id=serilog")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(t, h, http.MethodGet, "/search/find?id=other")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCacheEndpoints(t *testing.T) {
	rec := serve(t, New(&fakeSearcher{}, nil), http.MethodGet, "/search/cache")
	assert.Contains(t, rec.Body.String(), "disabled")

	qc := cache.New(cache.NewLRU(8, time.Minute), metrics.NewNop())
	rec = serve(t, New(&fakeSearcher{}, qc), http.MethodGet, "/search/cache")
	assert.Contains(t, rec.Body.String(), `"hits":0`)

	rec = serve(t, New(&fakeSearcher{}, qc), http.MethodDelete, "/search/cache")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalidated")
}
