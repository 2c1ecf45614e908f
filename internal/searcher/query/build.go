package query

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/generation"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/version"
)

type weightedField struct {
	Field string
	Boost float64
}

// freeTextFields are searched by unqualified clauses.
var freeTextFields = []weightedField{
	{document.FieldID, 8},
	{document.FieldTokenizedID, 4},
	{document.FieldShingledID, 4},
	{document.FieldTitle, 2},
	{document.FieldTags, 2},
	{document.FieldSummary, 1},
	{document.FieldDescription, 1},
	{document.FieldAuthors, 1},
}

var qualifiedFields = map[parser.Field]string{
	parser.FieldTitle:       document.FieldTitle,
	parser.FieldDescription: document.FieldDescription,
	parser.FieldSummary:     document.FieldSummary,
	parser.FieldTags:        document.FieldTags,
	parser.FieldAuthors:     document.FieldAuthors,
}

// AutocompleteIDBoost favors id-prefix matches over other autocomplete
// matches.
const AutocompleteIDBoost = 2.0

// Build turns a parsed plan into the base relevance query. Owner clauses
// become filters on g. An empty plan matches everything.
func Build(plan *parser.QueryPlan, g *generation.Generation) Query {
	if plan == nil || plan.IsEmpty() {
		return &MatchAllQuery{}
	}
	q := &BooleanQuery{}
	for _, c := range plan.FreeText() {
		if sub := freeText(c); sub != nil {
			q.Add(sub, Should)
		}
	}
	for _, c := range plan.Qualified() {
		if c.Field == parser.FieldOwner {
			q.Filters = append(q.Filters, g.Owner(c.Value))
			continue
		}
		q.Add(qualified(c), Must)
	}
	if len(q.Clauses) == 0 && len(q.Filters) == 0 {
		// Every clause analyzed away, e.g. a stop word.
		return &MatchNoneQuery{}
	}
	return q
}

// freeText matches one unqualified clause against every searched field.
func freeText(c parser.Clause) Query {
	q := &BooleanQuery{DisableCoord: true}
	for _, wf := range freeTextFields {
		kind := document.AnalyzerFor(wf.Field)
		var sub Query
		if c.Phrase && kind == tokenizer.Text {
			sub = phrase(wf.Field, c.Value, wf.Boost)
		} else {
			sub = terms(wf.Field, kind, c.Value, wf.Boost, Should)
		}
		if sub != nil {
			q.Add(sub, Should)
		}
	}
	if len(q.Clauses) == 0 {
		return nil
	}
	return q
}

func qualified(c parser.Clause) Query {
	switch c.Field {
	case parser.FieldID:
		q := &BooleanQuery{DisableCoord: true}
		q.Add(&TermQuery{Field: document.FieldID, Term: strings.ToLower(strings.TrimSpace(c.Value)), Boost: 2}, Should)
		if t := terms(document.FieldTokenizedID, tokenizer.Identifier, c.Value, 1, Must); t != nil {
			q.Add(t, Should)
		}
		return q
	case parser.FieldVersion:
		v := c.Value
		if n, err := version.Normalize(v); err == nil {
			v = n
		}
		return &TermQuery{Field: document.FieldVersion, Term: strings.ToLower(v)}
	}
	field := qualifiedFields[c.Field]
	if c.Phrase {
		if q := phrase(field, c.Value, 1); q != nil {
			return q
		}
	} else if q := terms(field, tokenizer.Text, c.Value, 1, Must); q != nil {
		return q
	}
	return &MatchNoneQuery{}
}

// terms analyzes text for field and combines the resulting terms with occur.
func terms(field string, kind tokenizer.Kind, text string, boost float64, occur Occur) Query {
	ts := tokenizer.QueryTerms(kind, text)
	switch len(ts) {
	case 0:
		return nil
	case 1:
		return &TermQuery{Field: field, Term: ts[0], Boost: boost}
	}
	q := &BooleanQuery{Boost: boost}
	for _, t := range ts {
		q.Add(&TermQuery{Field: field, Term: t}, occur)
	}
	return q
}

func phrase(field, text string, boost float64) Query {
	tokens := tokenizer.Analyze(document.AnalyzerFor(field), text)
	switch len(tokens) {
	case 0:
		return nil
	case 1:
		return &TermQuery{Field: field, Term: tokens[0].Term, Boost: boost}
	}
	q := &PhraseQuery{Field: field, Boost: boost}
	for _, t := range tokens {
		q.Terms = append(q.Terms, t.Term)
		q.Offsets = append(q.Offsets, t.Position)
	}
	return q
}

// Autocomplete matches id prefixes, favored by AutocompleteIDBoost, and
// falls back to id tokens, tags and description.
func Autocomplete(text string) Query {
	text = strings.TrimSpace(text)
	if text == "" {
		return &MatchAllQuery{}
	}
	q := &BooleanQuery{DisableCoord: true}
	q.Add(&TermQuery{Field: document.FieldIDAutocomplete, Term: strings.ToLower(text), Boost: AutocompleteIDBoost}, Should)
	for _, wf := range []weightedField{
		{document.FieldTokenizedID, 1},
		{document.FieldTags, 0.5},
		{document.FieldDescription, 0.25},
	} {
		if sub := terms(wf.Field, document.AnalyzerFor(wf.Field), text, wf.Boost, Should); sub != nil {
			q.Add(sub, Should)
		}
	}
	return q
}

// ExactID is the unscored term match on a package id.
func ExactID(id string) Query {
	return &TermQuery{Field: document.FieldID, Term: strings.ToLower(strings.TrimSpace(id))}
}
