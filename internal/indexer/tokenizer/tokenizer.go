// Package tokenizer provides the analysis chains used for indexed package
// fields and for query terms. Every chain is assembled from bleve analysis
// components; the package only decides which chain a field gets.
package tokenizer

import (
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/camelcase"
	"github.com/blevesearch/bleve/v2/analysis/token/edgengram"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/token/shingle"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/character"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	bleveunicode "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// Kind selects an analysis chain.
type Kind int

const (
	// Keyword keeps the whole value as one lower-cased term.
	Keyword Kind = iota
	// Text is for prose: unicode words, lower-cased, stop words removed, stemmed.
	Text
	// Identifier splits package ids on separators and camel-case humps.
	Identifier
	// IdentifierShingles joins adjacent identifier parts so "newtonsoftjson"
	// matches "Newtonsoft.Json".
	IdentifierShingles
	// Autocomplete emits front edge n-grams of the whole id and of each part.
	Autocomplete
	// None marks stored-only fields.
	None
)

func (k Kind) String() string {
	switch k {
	case Keyword:
		return "keyword"
	case Text:
		return "text"
	case Identifier:
		return "identifier"
	case IdentifierShingles:
		return "identifier-shingles"
	case Autocomplete:
		return "autocomplete"
	default:
		return "none"
	}
}

const maxPrefixLength = 64

var stopWords = []string{
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

var (
	keywordAnalyzer = &analysis.DefaultAnalyzer{
		Tokenizer:    single.NewSingleTokenTokenizer(),
		TokenFilters: []analysis.TokenFilter{lowercase.NewLowerCaseFilter()},
	}
	textAnalyzer = &analysis.DefaultAnalyzer{
		Tokenizer: bleveunicode.NewUnicodeTokenizer(),
		TokenFilters: []analysis.TokenFilter{
			lowercase.NewLowerCaseFilter(),
			stop.NewStopTokensFilter(stopTokenMap()),
			porter.NewPorterStemmer(),
		},
	}
	identifierAnalyzer = &analysis.DefaultAnalyzer{
		Tokenizer: character.NewCharacterTokenizer(isIdentifierRune),
		TokenFilters: []analysis.TokenFilter{
			camelcase.NewCamelCaseFilter(),
			lowercase.NewLowerCaseFilter(),
		},
	}
	shingleAnalyzer = &analysis.DefaultAnalyzer{
		Tokenizer: character.NewCharacterTokenizer(isIdentifierRune),
		TokenFilters: []analysis.TokenFilter{
			lowercase.NewLowerCaseFilter(),
			shingle.NewShingleFilter(2, 3, false, "", "_"),
		},
	}
	wholeIDPrefixAnalyzer = &analysis.DefaultAnalyzer{
		Tokenizer: single.NewSingleTokenTokenizer(),
		TokenFilters: []analysis.TokenFilter{
			lowercase.NewLowerCaseFilter(),
			edgengram.NewEdgeNgramFilter(edgengram.FRONT, 1, maxPrefixLength),
		},
	}
	partPrefixAnalyzer = &analysis.DefaultAnalyzer{
		Tokenizer: character.NewCharacterTokenizer(isIdentifierRune),
		TokenFilters: []analysis.TokenFilter{
			camelcase.NewCamelCaseFilter(),
			lowercase.NewLowerCaseFilter(),
			edgengram.NewEdgeNgramFilter(edgengram.FRONT, 1, maxPrefixLength),
		},
	}
)

func stopTokenMap() analysis.TokenMap {
	m := analysis.NewTokenMap()
	for _, w := range stopWords {
		m.AddToken(w)
	}
	return m
}

func isIdentifierRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Analyze runs the index-time chain for kind over text.
func Analyze(kind Kind, text string) []Token {
	switch kind {
	case Keyword:
		return run(keywordAnalyzer, text)
	case Text:
		return run(textAnalyzer, text)
	case Identifier:
		return run(identifierAnalyzer, text)
	case IdentifierShingles:
		return run(shingleAnalyzer, text)
	case Autocomplete:
		return dedupe(append(run(wholeIDPrefixAnalyzer, text), run(partPrefixAnalyzer, text)...))
	default:
		return nil
	}
}

// QueryTerms analyzes user input for a field indexed with kind. Autocomplete
// fields already hold every prefix, so the query side only lower-cases.
func QueryTerms(kind Kind, text string) []string {
	if kind == Autocomplete {
		kind = Keyword
	}
	tokens := Analyze(kind, text)
	terms := make([]string, 0, len(tokens))
	for _, t := range tokens {
		terms = append(terms, t.Term)
	}
	return terms
}

// Tokenize analyzes free text with the Text chain.
func Tokenize(text string) []Token {
	return Analyze(Text, text)
}

func run(a *analysis.DefaultAnalyzer, text string) []Token {
	if text == "" {
		return nil
	}
	stream := a.Analyze([]byte(text))
	tokens := make([]Token, 0, len(stream))
	for _, t := range stream {
		if len(t.Term) == 0 {
			continue
		}
		tokens = append(tokens, Token{Term: string(t.Term), Position: t.Position})
	}
	return tokens
}

func dedupe(tokens []Token) []Token {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t.Term]; ok {
			continue
		}
		seen[t.Term] = struct{}{}
		out = append(out, t)
	}
	return out
}
