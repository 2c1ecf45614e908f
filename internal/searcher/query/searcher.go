// Package query executes scored, filtered queries against one generation.
package query

import (
	"context"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/generation"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/ranker"
)

// Scores maps matching doc ids to their score.
type Scores map[uint32]float64

func (s Scores) bitmap() *roaring.Bitmap {
	bm := roaring.New()
	for doc := range s {
		bm.Add(doc)
	}
	return bm
}

// Query scores the documents it matches. filter, when non-nil, restricts
// the candidates before any scoring happens.
type Query interface {
	Run(s *Searcher, filter *roaring.Bitmap) (Scores, error)
	Explain(s *Searcher, doc uint32) (*ranker.Explanation, error)
	String() string
}

// Searcher runs queries against one generation. It caches per-field
// statistics for its own lifetime and must not outlive the handle the
// generation was acquired through.
type Searcher struct {
	Gen *generation.Generation
	r   *indexer.DirectoryReader

	mu     sync.Mutex
	params map[string]ranker.RankParams
	live   *roaring.Bitmap
}

func NewSearcher(g *generation.Generation) *Searcher {
	return &Searcher{
		Gen:    g,
		r:      g.Reader,
		params: make(map[string]ranker.RankParams),
	}
}

func (s *Searcher) Reader() *indexer.DirectoryReader { return s.r }

func (s *Searcher) fieldParams(field string) ranker.RankParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.params[field]
	if !ok {
		p = ranker.RankParams{
			TotalDocs:    int64(s.r.MaxDoc()),
			AvgDocLength: s.r.AvgFieldLength(field),
		}
		s.params[field] = p
	}
	return p
}

// liveDocs returns every non-deleted doc of the generation.
func (s *Searcher) liveDocs() *roaring.Bitmap {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil {
		bm := roaring.New()
		for _, leaf := range s.r.Leaves() {
			bm.AddRange(uint64(leaf.Base), uint64(leaf.Base)+uint64(leaf.MaxDoc()))
			it := leaf.Deletes.Iterator()
			for it.HasNext() {
				bm.Remove(leaf.Base + it.Next())
			}
		}
		s.live = bm
	}
	return s.live
}

// Request describes one search over a searcher.
type Request struct {
	Query   Query
	Filter  *roaring.Bitmap
	Skip    int
	Take    int
	Sort    Sort
	Explain bool
}

// TopDocs is one page of hits plus the total match count.
type TopDocs struct {
	TotalHits    int
	Hits         []ranker.ScoredDoc
	Explanations []*ranker.Explanation
}

// Search runs req.Query restricted to req.Filter and returns the requested
// page in req.Sort order.
func (s *Searcher) Search(ctx context.Context, req Request) (*TopDocs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores, err := req.Query.Run(s, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", req.Query, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	better, err := s.comparator(req.Sort)
	if err != nil {
		return nil, err
	}
	skip := max(req.Skip, 0)
	take := max(req.Take, 0)
	top := merger.NewTopK(skip+take, better)
	for doc, score := range scores {
		top.Push(ranker.ScoredDoc{Doc: doc, Score: score})
	}
	hits := top.Results()
	if take == 0 || skip >= len(hits) {
		hits = nil
	} else {
		hits = hits[skip:]
	}

	out := &TopDocs{TotalHits: top.Total(), Hits: hits}
	if req.Explain {
		out.Explanations = make([]*ranker.Explanation, len(hits))
		for i, h := range hits {
			e, err := req.Query.Explain(s, h.Doc)
			if err != nil {
				return nil, fmt.Errorf("explaining doc %d: %w", h.Doc, err)
			}
			out.Explanations[i] = e
		}
	}
	return out, nil
}

// Document returns the stored fields of a hit.
func (s *Searcher) Document(doc uint32) (index.StoredFields, error) {
	return s.r.Document(doc)
}

func (s *Searcher) comparator(sort Sort) (merger.Better, error) {
	titles, err := s.r.StringColumn(document.FieldSortableTitle)
	if err != nil {
		return nil, err
	}
	byTitle := func(a, b ranker.ScoredDoc) int {
		ta, tb := titles(a.Doc), titles(b.Doc)
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		}
		return 0
	}
	tieBreak := func(a, b ranker.ScoredDoc) bool {
		if c := byTitle(a, b); c != 0 {
			return c < 0
		}
		return a.Doc < b.Doc
	}

	switch sort {
	case SortRelevance:
		return func(a, b ranker.ScoredDoc) bool {
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			return tieBreak(a, b)
		}, nil
	case SortLastEdited, SortPublished:
		field := document.FieldLastEditedDate
		if sort == SortPublished {
			field = document.FieldPublishedDate
		}
		dates, err := s.r.IntColumn(field)
		if err != nil {
			return nil, err
		}
		return func(a, b ranker.ScoredDoc) bool {
			da, db := dates(a.Doc), dates(b.Doc)
			if da != db {
				return da > db
			}
			return tieBreak(a, b)
		}, nil
	case SortTitleAsc:
		return tieBreak, nil
	case SortTitleDesc:
		return func(a, b ranker.ScoredDoc) bool {
			if c := byTitle(a, b); c != 0 {
				return c > 0
			}
			return a.Doc < b.Doc
		}, nil
	}
	return nil, fmt.Errorf("unknown sort %d", sort)
}
