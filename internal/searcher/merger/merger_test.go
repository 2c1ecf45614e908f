package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/ranker"
)

func TestTopKKeepsBest(t *testing.T) {
	top := NewTopK(3, ByScore)
	for i, s := range []float64{1, 5, 3, 5, 2, 4} {
		top.Push(ranker.ScoredDoc{Doc: uint32(i), Score: s})
	}
	assert.Equal(t, 6, top.Total())
	assert.Equal(t, []ranker.ScoredDoc{
		{Doc: 1, Score: 5},
		{Doc: 3, Score: 5},
		{Doc: 5, Score: 4},
	}, top.Results())
}

func TestMergeWithCustomOrder(t *testing.T) {
	byDocDesc := func(a, b ranker.ScoredDoc) bool { return a.Doc > b.Doc }
	got := Merge([][]ranker.ScoredDoc{
		{{Doc: 1}, {Doc: 7}},
		{{Doc: 4}, {Doc: 9}, {Doc: 2}},
	}, 2, byDocDesc)
	assert.Equal(t, []ranker.ScoredDoc{{Doc: 9}, {Doc: 7}}, got)
}
