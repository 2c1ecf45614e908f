// Package handler adapts the query service to HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/logger"
)

type Searcher interface {
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResult, error)
	AutoComplete(ctx context.Context, req service.AutoCompleteRequest) (*service.AutoCompleteResult, error)
	Find(ctx context.Context, id string) (*service.Hit, error)
	Diagnostics() (*service.Diagnostics, error)
}

type Handler struct {
	searcher Searcher
	cache    *cache.QueryCache
	logger   *slog.Logger
}

func New(searcher Searcher, queryCache *cache.QueryCache) *Handler {
	return &Handler{
		searcher: searcher,
		cache:    queryCache,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the query routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /search/query", h.Search)
	mux.HandleFunc("GET /autocomplete", h.AutoComplete)
	mux.HandleFunc("GET /search/find", h.Find)
	mux.HandleFunc("GET /search/diag", h.Diagnostics)
	mux.HandleFunc("GET /search/cache", h.CacheStats)
	mux.HandleFunc("DELETE /search/cache", h.CacheInvalidate)
}

// params reads typed query parameters, remembering the first bad one.
type params struct {
	r   *http.Request
	err error
}

func (p *params) str(name string) string {
	return p.r.URL.Query().Get(name)
}

func (p *params) boolean(name string) bool {
	raw := p.str(name)
	if raw == "" || p.err != nil {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.err = apperrors.BadRequest(apperrors.ErrInvalidInput, "%s must be true or false, got %q", name, raw)
	}
	return v
}

func (p *params) integer(name string) int {
	raw := p.str(name)
	if raw == "" || p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.err = apperrors.BadRequest(apperrors.ErrInvalidInput, "%s must be an integer, got %q", name, raw)
	}
	return v
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	p := &params{r: r}
	req := service.SearchRequest{
		Query:             p.str("q"),
		IncludePrerelease: p.boolean("prerelease"),
		IncludeUnlisted:   p.boolean("includeUnlisted"),
		Skip:              p.integer("skip"),
		Take:              p.integer("take"),
		Feed:              p.str("feed"),
		Sort:              p.str("sortBy"),
		Explain:           p.boolean("explanation"),
	}
	if p.err != nil {
		h.writeError(w, r, p.err)
		return
	}
	result, err := h.searcher.Search(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) AutoComplete(w http.ResponseWriter, r *http.Request) {
	p := &params{r: r}
	req := service.AutoCompleteRequest{
		Query:             p.str("q"),
		ID:                p.str("id"),
		IncludePrerelease: p.boolean("prerelease"),
		Skip:              p.integer("skip"),
		Take:              p.integer("take"),
		Explain:           p.boolean("explanation"),
	}
	if p.err != nil {
		h.writeError(w, r, p.err)
		return
	}
	result, err := h.searcher.AutoComplete(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	hit, err := h.searcher.Find(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, hit)
}

func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	diag, err := h.searcher.Diagnostics()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, diag)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err onto its HTTP status. Server-side failures are logged
// and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = "search failed"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
