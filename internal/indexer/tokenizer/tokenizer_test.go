package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func terms(tokens []Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Term)
	}
	return out
}

func TestKeywordKeepsWholeValue(t *testing.T) {
	assert.Equal(t, []string{"newtonsoft.json"}, terms(Analyze(Keyword, "Newtonsoft.Json")))
	assert.Empty(t, Analyze(Keyword, ""))
}

func TestIdentifierSplitsSeparatorsAndCamelCase(t *testing.T) {
	got := terms(Analyze(Identifier, "EntityFramework.SqlServer"))
	assert.Equal(t, []string{"entity", "framework", "sql", "server"}, got)
}

func TestShinglesJoinAdjacentParts(t *testing.T) {
	got := terms(Analyze(IdentifierShingles, "Newtonsoft.Json"))
	assert.Contains(t, got, "newtonsoftjson")
}

func TestAutocompleteEmitsPrefixes(t *testing.T) {
	got := terms(Analyze(Autocomplete, "Newtonsoft.Json"))
	assert.Contains(t, got, "n")
	assert.Contains(t, got, "newt")
	assert.Contains(t, got, "newtonsoft.json")
	assert.Contains(t, got, "js")

	assert.Equal(t, []string{"newt"}, QueryTerms(Autocomplete, "Newt"))
}

func TestTextRemovesStopWordsAndStems(t *testing.T) {
	got := terms(Tokenize("The parsing of JSON documents"))
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "of")
	assert.Contains(t, got, "pars")
	assert.Contains(t, got, "json")
	assert.Contains(t, got, "document")
}
