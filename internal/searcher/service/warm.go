package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/generation"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/query"
)

// DefaultWarmupQuery is a term present in most package indexes.
const DefaultWarmupQuery = "newtonsoft.json"

const warmupSortTake = 250

// Warm exercises g before it is published: a match-all query, the boosted
// warmup query, and the same query under every explicit sort with every
// hit formatted, so sort columns and stored documents are loaded.
func Warm(ctx context.Context, g *generation.Generation, q string) error {
	if q == "" {
		q = DefaultWarmupQuery
	}
	start := time.Now()
	srch := query.NewSearcher(g)

	if _, err := srch.Search(ctx, query.Request{Query: &query.MatchAllQuery{}, Take: 1}); err != nil {
		return fmt.Errorf("warming match-all: %w", err)
	}

	plan, err := parser.Parse(q)
	if err != nil {
		return fmt.Errorf("parsing warmup query %q: %w", q, err)
	}
	boosted := &query.BoostedQuery{Inner: query.Build(plan, g)}
	if _, err := srch.Search(ctx, query.Request{Query: boosted, Take: 5}); err != nil {
		return fmt.Errorf("warming boosted query: %w", err)
	}

	f := &formatter{g: g, s: srch}
	for _, sort := range []query.Sort{query.SortLastEdited, query.SortPublished, query.SortTitleAsc, query.SortTitleDesc} {
		if err := ctx.Err(); err != nil {
			return err
		}
		top, err := srch.Search(ctx, query.Request{Query: boosted, Take: warmupSortTake, Sort: sort})
		if err != nil {
			return fmt.Errorf("warming sort %s: %w", sort, err)
		}
		if _, err := f.hits(top); err != nil {
			return fmt.Errorf("formatting sort %s: %w", sort, err)
		}
	}

	slog.Default().With("component", "warmup").Info("generation warmed",
		"seq", g.Seq,
		"query", q,
		"duration", time.Since(start),
	)
	return nil
}
