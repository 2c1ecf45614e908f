package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFDecreasesWithDocFreq(t *testing.T) {
	assert.Greater(t, IDF(100, 1), IDF(100, 10))
	assert.Greater(t, IDF(100, 99), 0.0)
}

func TestTFNormSaturates(t *testing.T) {
	assert.Greater(t, TFNorm(2, 10, 10), TFNorm(1, 10, 10))
	assert.Less(t, TFNorm(100, 10, 10), k1+1)
	assert.Greater(t, TFNorm(1, 5, 10), TFNorm(1, 20, 10), "shorter fields score higher")
	assert.Equal(t, 0.0, TFNorm(1, 5, 0))
}

func TestPopularityNeutralWithoutSignals(t *testing.T) {
	assert.Equal(t, 1.0, Popularity(0, -1, 0))
	assert.Equal(t, 1.0, Popularity(0, -1, 100))
}

func TestPopularityMonotone(t *testing.T) {
	prev := Popularity(0, -1, 10)
	for _, d := range []int{1, 10, 100, 1000, 1_000_000} {
		cur := Popularity(d, -1, 10)
		assert.GreaterOrEqual(t, cur, prev, "downloads %d", d)
		prev = cur
	}

	prev = Popularity(500, -1, 10)
	for rank := 9; rank >= 0; rank-- {
		cur := Popularity(500, rank, 10)
		assert.GreaterOrEqual(t, cur, prev, "rank %d", rank)
		prev = cur
	}
}

func TestExplanationString(t *testing.T) {
	e := Explain(2, "product of:").Add(Explain(1, "a"), nil, Explain(2, "b"))
	assert.Equal(t, "2.0000 = product of:\n  1.0000 = a\n  2.0000 = b\n", e.String())
}
