// Package merger keeps the best k hits of a result stream.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/ranker"
)

// Better reports whether a ranks ahead of b.
type Better func(a, b ranker.ScoredDoc) bool

// ByScore ranks higher scores first, then lower doc ids.
func ByScore(a, b ranker.ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Doc < b.Doc
}

// TopK collects the best limit hits pushed into it.
type TopK struct {
	h     *scoredDocHeap
	limit int
	total int
}

func NewTopK(limit int, better Better) *TopK {
	if limit <= 0 {
		limit = 10
	}
	h := &scoredDocHeap{better: better}
	heap.Init(h)
	return &TopK{h: h, limit: limit}
}

func (t *TopK) Push(doc ranker.ScoredDoc) {
	t.total++
	if t.h.Len() < t.limit {
		heap.Push(t.h, doc)
		return
	}
	if t.h.better(doc, t.h.docs[0]) {
		t.h.docs[0] = doc
		heap.Fix(t.h, 0)
	}
}

// Total is the number of hits pushed, kept or not.
func (t *TopK) Total() int { return t.total }

// Results drains the collector, best first.
func (t *TopK) Results() []ranker.ScoredDoc {
	result := make([]ranker.ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(t.h).(ranker.ScoredDoc)
	}
	return result
}

// Merge combines several ranked lists into the best limit hits.
func Merge(lists [][]ranker.ScoredDoc, limit int, better Better) []ranker.ScoredDoc {
	top := NewTopK(limit, better)
	for _, results := range lists {
		for _, doc := range results {
			top.Push(doc)
		}
	}
	return top.Results()
}

// scoredDocHeap is a min-heap on better: the root is the worst kept hit.
type scoredDocHeap struct {
	docs   []ranker.ScoredDoc
	better Better
}

func (h scoredDocHeap) Len() int { return len(h.docs) }

func (h scoredDocHeap) Less(i, j int) bool {
	return h.better(h.docs[j], h.docs[i])
}

func (h scoredDocHeap) Swap(i, j int) { h.docs[i], h.docs[j] = h.docs[j], h.docs[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	h.docs = append(h.docs, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := h.docs
	n := len(old)
	item := old[n-1]
	h.docs = old[:n-1]
	return item
}
