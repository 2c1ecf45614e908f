// Package ranker holds the scoring functions shared by every query: BM25
// relevance, the popularity multiplier and score explanations.
package ranker

import (
	"fmt"
	"math"
	"strings"
)

const (
	k1 = 1.2
	b  = 0.75
)

// ScoredDoc is one hit of a generation.
type ScoredDoc struct {
	Doc   uint32  `json:"doc"`
	Score float64 `json:"score"`
}

// RankParams are the collection statistics of one field.
type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
}

// IDF is the BM25 inverse document frequency.
func IDF(totalDocs, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// TFNorm is the BM25 saturated, length-normalized term frequency.
func TFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// BM25 scores one term occurrence in one document.
func BM25(params RankParams, docFreq int64, termFreq, docLength float64) float64 {
	return IDF(params.TotalDocs, docFreq) * TFNorm(termFreq, docLength, params.AvgDocLength)
}

// Popularity is the multiplier applied to relevance by boosted queries. It
// grows with total downloads and with better (lower) rank, and is exactly 1
// when a package has neither.
func Popularity(downloads int, rank int, rankedCount int) float64 {
	boost := 1.0
	if downloads > 0 {
		boost *= 1 + math.Log10(1+float64(downloads))/10
	}
	if rank >= 0 && rankedCount > 0 && rank < rankedCount {
		boost *= 1 + float64(rankedCount-rank)/float64(rankedCount)
	}
	return boost
}

// Explanation is a score broken down into its factors.
type Explanation struct {
	Value       float64        `json:"value"`
	Description string         `json:"description"`
	Details     []*Explanation `json:"details,omitempty"`
}

func Explain(value float64, format string, args ...any) *Explanation {
	return &Explanation{Value: value, Description: fmt.Sprintf(format, args...)}
}

func (e *Explanation) Add(details ...*Explanation) *Explanation {
	for _, d := range details {
		if d != nil {
			e.Details = append(e.Details, d)
		}
	}
	return e
}

// String renders the tree one factor per line, children indented.
func (e *Explanation) String() string {
	var sb strings.Builder
	e.write(&sb, 0)
	return sb.String()
}

func (e *Explanation) write(sb *strings.Builder, depth int) {
	fmt.Fprintf(sb, "%s%.4f = %s\n", strings.Repeat("  ", depth), e.Value, e.Description)
	for _, d := range e.Details {
		d.write(sb, depth+1)
	}
}
