package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/ranker"
)

func boostOr1(b float64) float64 {
	if b == 0 {
		return 1
	}
	return b
}

func normBoost(n index.FieldNorm) float64 {
	if n.Boost == 0 {
		return 1
	}
	return float64(n.Boost)
}

// TermQuery matches docs whose field holds term, scored with BM25.
type TermQuery struct {
	Field string
	Term  string
	Boost float64
}

func (q *TermQuery) Run(s *Searcher, filter *roaring.Bitmap) (Scores, error) {
	postings, err := s.r.Postings(q.Field, q.Term)
	if err != nil {
		return nil, err
	}
	out := make(Scores, len(postings))
	if len(postings) == 0 {
		return out, nil
	}
	params := s.fieldParams(q.Field)
	df := int64(s.r.DocFreq(q.Field, q.Term))
	for _, p := range postings {
		if filter != nil && !filter.Contains(p.Doc) {
			continue
		}
		norm := s.r.Norm(q.Field, p.Doc)
		out[p.Doc] = boostOr1(q.Boost) * normBoost(norm) *
			ranker.BM25(params, df, float64(p.Frequency), float64(norm.Length))
	}
	return out, nil
}

func (q *TermQuery) Explain(s *Searcher, doc uint32) (*ranker.Explanation, error) {
	postings, err := s.r.Postings(q.Field, q.Term)
	if err != nil {
		return nil, err
	}
	i := sort.Search(len(postings), func(i int) bool { return postings[i].Doc >= doc })
	if i == len(postings) || postings[i].Doc != doc {
		return ranker.Explain(0, "no match on %s", q), nil
	}
	p := postings[i]
	params := s.fieldParams(q.Field)
	df := int64(s.r.DocFreq(q.Field, q.Term))
	norm := s.r.Norm(q.Field, doc)
	idf := ranker.IDF(params.TotalDocs, df)
	tf := ranker.TFNorm(float64(p.Frequency), float64(norm.Length), params.AvgDocLength)
	value := boostOr1(q.Boost) * normBoost(norm) * idf * tf
	return ranker.Explain(value, "weight(%s), product of:", q).Add(
		ranker.Explain(boostOr1(q.Boost), "query boost"),
		ranker.Explain(normBoost(norm), "field boost"),
		ranker.Explain(idf, "idf, docFreq=%d, maxDocs=%d", df, params.TotalDocs),
		ranker.Explain(tf, "tfNorm, termFreq=%d, fieldLength=%d, avgFieldLength=%.2f",
			p.Frequency, norm.Length, params.AvgDocLength),
	), nil
}

func (q *TermQuery) String() string {
	s := q.Field + ":" + q.Term
	if q.Boost != 0 && q.Boost != 1 {
		s += fmt.Sprintf("^%g", q.Boost)
	}
	return s
}

// PhraseQuery matches docs where Terms appear at the given relative
// Offsets within Field.
type PhraseQuery struct {
	Field   string
	Terms   []string
	Offsets []int
	Boost   float64
}

// phraseFreqs returns the number of phrase occurrences per matching doc.
func (q *PhraseQuery) phraseFreqs(s *Searcher, filter *roaring.Bitmap) (map[uint32]int, error) {
	if len(q.Terms) == 0 {
		return nil, nil
	}
	positions := make([]map[uint32][]int, len(q.Terms))
	for i, term := range q.Terms {
		postings, err := s.r.Postings(q.Field, term)
		if err != nil {
			return nil, err
		}
		positions[i] = make(map[uint32][]int, len(postings))
		for _, p := range postings {
			if filter != nil && !filter.Contains(p.Doc) {
				continue
			}
			positions[i][p.Doc] = p.Positions
		}
	}

	freqs := make(map[uint32]int)
	for doc, first := range positions[0] {
		n := 0
		for _, start := range first {
			matched := true
			for i := 1; i < len(q.Terms); i++ {
				if !containsInt(positions[i][doc], start+q.Offsets[i]-q.Offsets[0]) {
					matched = false
					break
				}
			}
			if matched {
				n++
			}
		}
		if n > 0 {
			freqs[doc] = n
		}
	}
	return freqs, nil
}

func (q *PhraseQuery) idf(s *Searcher, params ranker.RankParams) float64 {
	sum := 0.0
	for _, term := range q.Terms {
		sum += ranker.IDF(params.TotalDocs, int64(s.r.DocFreq(q.Field, term)))
	}
	return sum
}

func (q *PhraseQuery) Run(s *Searcher, filter *roaring.Bitmap) (Scores, error) {
	freqs, err := q.phraseFreqs(s, filter)
	if err != nil {
		return nil, err
	}
	out := make(Scores, len(freqs))
	if len(freqs) == 0 {
		return out, nil
	}
	params := s.fieldParams(q.Field)
	idf := q.idf(s, params)
	for doc, freq := range freqs {
		norm := s.r.Norm(q.Field, doc)
		out[doc] = boostOr1(q.Boost) * normBoost(norm) * idf *
			ranker.TFNorm(float64(freq), float64(norm.Length), params.AvgDocLength)
	}
	return out, nil
}

func (q *PhraseQuery) Explain(s *Searcher, doc uint32) (*ranker.Explanation, error) {
	only := roaring.BitmapOf(doc)
	freqs, err := q.phraseFreqs(s, only)
	if err != nil {
		return nil, err
	}
	freq, ok := freqs[doc]
	if !ok {
		return ranker.Explain(0, "no match on %s", q), nil
	}
	params := s.fieldParams(q.Field)
	idf := q.idf(s, params)
	norm := s.r.Norm(q.Field, doc)
	tf := ranker.TFNorm(float64(freq), float64(norm.Length), params.AvgDocLength)
	value := boostOr1(q.Boost) * normBoost(norm) * idf * tf
	return ranker.Explain(value, "weight(%s), product of:", q).Add(
		ranker.Explain(boostOr1(q.Boost), "query boost"),
		ranker.Explain(normBoost(norm), "field boost"),
		ranker.Explain(idf, "idf, sum over %d terms", len(q.Terms)),
		ranker.Explain(tf, "tfNorm, phraseFreq=%d, fieldLength=%d", freq, norm.Length),
	), nil
}

func (q *PhraseQuery) String() string {
	return fmt.Sprintf("%s:%q", q.Field, strings.Join(q.Terms, " "))
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// MatchAllQuery matches every candidate with a constant score.
type MatchAllQuery struct {
	Boost float64
}

func (q *MatchAllQuery) Run(s *Searcher, filter *roaring.Bitmap) (Scores, error) {
	docs := filter
	if docs == nil {
		docs = s.liveDocs()
	}
	out := make(Scores, docs.GetCardinality())
	it := docs.Iterator()
	for it.HasNext() {
		out[it.Next()] = boostOr1(q.Boost)
	}
	return out, nil
}

func (q *MatchAllQuery) Explain(*Searcher, uint32) (*ranker.Explanation, error) {
	return ranker.Explain(boostOr1(q.Boost), "*:*"), nil
}

func (q *MatchAllQuery) String() string { return "*:*" }

// MatchNoneQuery matches nothing.
type MatchNoneQuery struct{}

func (q *MatchNoneQuery) Run(*Searcher, *roaring.Bitmap) (Scores, error) { return Scores{}, nil }

func (q *MatchNoneQuery) Explain(*Searcher, uint32) (*ranker.Explanation, error) {
	return ranker.Explain(0, "matches nothing"), nil
}

func (q *MatchNoneQuery) String() string { return "-*:*" }

// Occur says how a boolean clause participates in matching.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

type BooleanClause struct {
	Query Query
	Occur Occur
}

// BooleanQuery combines clauses. Must clauses all have to match; without
// any, at least one Should clause does. Filters restrict matches without
// scoring. A query with neither Must nor Should clauses matches every
// candidate that passes the filters. Unless DisableCoord is set, scores are
// scaled by the fraction of scoring clauses a doc matched.
type BooleanQuery struct {
	Clauses      []BooleanClause
	Filters      []*roaring.Bitmap
	DisableCoord bool
	Boost        float64
}

func (q *BooleanQuery) Add(query Query, occur Occur) *BooleanQuery {
	q.Clauses = append(q.Clauses, BooleanClause{Query: query, Occur: occur})
	return q
}

func (q *BooleanQuery) effectiveFilter(filter *roaring.Bitmap) *roaring.Bitmap {
	if len(q.Filters) == 0 {
		return filter
	}
	var out *roaring.Bitmap
	if filter != nil {
		out = filter.Clone()
	}
	for _, f := range q.Filters {
		if out == nil {
			out = f.Clone()
		} else {
			out.And(f)
		}
	}
	return out
}

func (q *BooleanQuery) scoring() int {
	n := 0
	for _, c := range q.Clauses {
		if c.Occur != MustNot {
			n++
		}
	}
	return n
}

func (q *BooleanQuery) Run(s *Searcher, filter *roaring.Bitmap) (Scores, error) {
	filter = q.effectiveFilter(filter)

	var musts, shoulds, mustNots []Query
	for _, c := range q.Clauses {
		switch c.Occur {
		case Must:
			musts = append(musts, c.Query)
		case MustNot:
			mustNots = append(mustNots, c.Query)
		default:
			shoulds = append(shoulds, c.Query)
		}
	}
	if len(musts) == 0 && len(shoulds) == 0 {
		return (&MatchAllQuery{Boost: q.Boost}).Run(s, filter)
	}

	sums := make(Scores)
	matched := make(map[uint32]int)
	candidates := filter
	for i, m := range musts {
		scores, err := m.Run(s, candidates)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			for doc, sc := range scores {
				sums[doc] = sc
				matched[doc] = 1
			}
		} else {
			for doc := range sums {
				sc, ok := scores[doc]
				if !ok {
					delete(sums, doc)
					delete(matched, doc)
					continue
				}
				sums[doc] += sc
				matched[doc]++
			}
		}
		candidates = sums.bitmap()
		if candidates.IsEmpty() {
			return Scores{}, nil
		}
	}

	for _, sh := range shoulds {
		scores, err := sh.Run(s, candidates)
		if err != nil {
			return nil, err
		}
		for doc, sc := range scores {
			sums[doc] += sc
			matched[doc]++
		}
	}

	for _, mn := range mustNots {
		if len(sums) == 0 {
			break
		}
		scores, err := mn.Run(s, sums.bitmap())
		if err != nil {
			return nil, err
		}
		for doc := range scores {
			delete(sums, doc)
		}
	}

	total := q.scoring()
	for doc := range sums {
		sums[doc] *= boostOr1(q.Boost) * q.coord(matched[doc], total)
	}
	return sums, nil
}

func (q *BooleanQuery) coord(matched, total int) float64 {
	if q.DisableCoord || total <= 1 {
		return 1
	}
	return float64(matched) / float64(total)
}

func (q *BooleanQuery) Explain(s *Searcher, doc uint32) (*ranker.Explanation, error) {
	only := roaring.BitmapOf(doc)
	scores, err := q.Run(s, only)
	if err != nil {
		return nil, err
	}
	value, ok := scores[doc]
	if !ok {
		return ranker.Explain(0, "no match on %s", q), nil
	}
	sum := ranker.Explain(0, "sum of:")
	matched := 0
	for _, c := range q.Clauses {
		if c.Occur == MustNot {
			continue
		}
		sub, err := c.Query.Run(s, only)
		if err != nil {
			return nil, err
		}
		if _, hit := sub[doc]; !hit {
			continue
		}
		matched++
		e, err := c.Query.Explain(s, doc)
		if err != nil {
			return nil, err
		}
		sum.Value += e.Value
		sum.Add(e)
	}
	out := ranker.Explain(value, "%s, product of:", q).Add(sum)
	if c := q.coord(matched, q.scoring()); c != 1 {
		out.Add(ranker.Explain(c, "coord(%d/%d)", matched, q.scoring()))
	}
	if b := boostOr1(q.Boost); b != 1 {
		out.Add(ranker.Explain(b, "boost"))
	}
	return out, nil
}

func (q *BooleanQuery) String() string {
	parts := make([]string, 0, len(q.Clauses)+len(q.Filters))
	for _, c := range q.Clauses {
		prefix := ""
		switch c.Occur {
		case Must:
			prefix = "+"
		case MustNot:
			prefix = "-"
		}
		parts = append(parts, prefix+c.Query.String())
	}
	for range q.Filters {
		parts = append(parts, "#filter")
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// BoostedQuery multiplies the inner relevance by the document's index-time
// boost and its package popularity.
type BoostedQuery struct {
	Inner Query
}

func (q *BoostedQuery) factors(s *Searcher, doc uint32) (pop, docBoost float64) {
	g := s.Gen
	pop = ranker.Popularity(g.PackageDownloads(doc), g.Rank(doc), g.Snapshot.RankedCount())
	docBoost = float64(s.r.DocBoost(doc))
	if docBoost == 0 {
		docBoost = 1
	}
	return pop, docBoost
}

func (q *BoostedQuery) Run(s *Searcher, filter *roaring.Bitmap) (Scores, error) {
	scores, err := q.Inner.Run(s, filter)
	if err != nil {
		return nil, err
	}
	for doc, sc := range scores {
		pop, docBoost := q.factors(s, doc)
		scores[doc] = sc * pop * docBoost
	}
	return scores, nil
}

func (q *BoostedQuery) Explain(s *Searcher, doc uint32) (*ranker.Explanation, error) {
	inner, err := q.Inner.Explain(s, doc)
	if err != nil {
		return nil, err
	}
	if inner.Value == 0 {
		return inner, nil
	}
	pop, docBoost := q.factors(s, doc)
	g := s.Gen
	return ranker.Explain(inner.Value*pop*docBoost, "boosted, product of:").Add(
		inner,
		ranker.Explain(pop, "popularity, downloads=%d, rank=%d of %d",
			g.PackageDownloads(doc), g.Rank(doc), g.Snapshot.RankedCount()),
		ranker.Explain(docBoost, "document boost"),
	), nil
}

func (q *BoostedQuery) String() string {
	return "boosted(" + q.Inner.String() + ")"
}
