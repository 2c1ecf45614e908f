package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/generation"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/searchtest"
)

var benchWords = []string{"json", "logging", "http", "orm", "testing", "azure", "sql", "cache"}

func benchSearcher(b *testing.B, packages int) *Searcher {
	b.Helper()
	idx := searchtest.NewIndex(b)
	for i := 0; i < packages; i++ {
		w1, w2 := benchWords[i%len(benchWords)], benchWords[(i+3)%len(benchWords)]
		for _, v := range []string{"1.0.0", "1.1.0", "2.0.0-beta"} {
			idx.Add(searchtest.Record(fmt.Sprintf("Bench.%s.%d", w1, i), v,
				"description", fmt.Sprintf("%s helpers with %s support", w1, w2),
				"tags", w1+" "+w2))
		}
	}
	idx.Commit()
	g, err := generation.Build(context.Background(), idx.Reader(), nil)
	if err != nil {
		b.Fatal(err)
	}
	return NewSearcher(g)
}

func BenchmarkSearch(b *testing.B) {
	s := benchSearcher(b, 2000)
	filter, _ := s.Gen.TryGetFilter(false, false, "")
	queries := []string{"", "json", "logging sql", "tags:azure cache", "id:bench"}
	for _, sort := range []Sort{SortRelevance, SortPublished, SortTitleAsc} {
		for _, q := range queries {
			plan, err := parser.Parse(q)
			if err != nil {
				b.Fatal(err)
			}
			req := Request{Query: &BoostedQuery{Inner: Build(plan, s.Gen)}, Filter: filter, Take: 20, Sort: sort}
			b.Run(fmt.Sprintf("%s/%q", sort, q), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := s.Search(context.Background(), req); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkAutocomplete(b *testing.B) {
	s := benchSearcher(b, 2000)
	filter, _ := s.Gen.TryGetFilter(false, false, "")
	req := Request{Query: &BoostedQuery{Inner: Autocomplete("bench.js")}, Filter: filter, Take: 20}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}
