// Package parser turns a raw search string into a plan of field-qualified
// and free-text clauses.
package parser

import (
	"strings"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
)

// Field is the canonical target of a qualified clause.
type Field string

const (
	FieldAny         Field = ""
	FieldID          Field = "id"
	FieldVersion     Field = "version"
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldSummary     Field = "summary"
	FieldTags        Field = "tags"
	FieldAuthors     Field = "authors"
	FieldOwner       Field = "owner"
)

var qualifiers = map[string]Field{
	"id":          FieldID,
	"packageid":   FieldID,
	"version":     FieldVersion,
	"title":       FieldTitle,
	"description": FieldDescription,
	"summary":     FieldSummary,
	"tags":        FieldTags,
	"tag":         FieldTags,
	"author":      FieldAuthors,
	"authors":     FieldAuthors,
	"owner":       FieldOwner,
	"owners":      FieldOwner,
}

// Clause is one term or phrase, optionally bound to a field.
type Clause struct {
	Field  Field
	Value  string
	Phrase bool
}

type QueryPlan struct {
	Clauses  []Clause
	RawQuery string
}

// IsEmpty reports whether the query has no clauses and so matches all.
func (p *QueryPlan) IsEmpty() bool {
	return len(p.Clauses) == 0
}

// FreeText returns the unqualified clauses.
func (p *QueryPlan) FreeText() []Clause {
	return p.filter(func(c Clause) bool { return c.Field == FieldAny })
}

// Qualified returns the field-bound clauses.
func (p *QueryPlan) Qualified() []Clause {
	return p.filter(func(c Clause) bool { return c.Field != FieldAny })
}

func (p *QueryPlan) filter(keep func(Clause) bool) []Clause {
	var out []Clause
	for _, c := range p.Clauses {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// Normalized renders the plan in a canonical form, for cache keys.
func (p *QueryPlan) Normalized() string {
	parts := make([]string, 0, len(p.Clauses))
	for _, c := range p.Clauses {
		v := strings.ToLower(c.Value)
		if c.Phrase {
			v = `"` + v + `"`
		}
		if c.Field != FieldAny {
			v = string(c.Field) + ":" + v
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

// Parse splits query into whitespace-separated clauses. A clause is a word,
// a "quoted phrase", or qualifier:value / qualifier:"phrase". Malformed input
// yields a client error wrapping ErrInvalidQuery.
func Parse(query string) (*QueryPlan, error) {
	plan := &QueryPlan{RawQuery: query}
	s := []rune(query)
	i := 0
	for {
		for i < len(s) && unicode.IsSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			break
		}

		if s[i] == '"' {
			phrase, next, err := readQuoted(s, i)
			if err != nil {
				return nil, err
			}
			i = next
			if strings.TrimSpace(phrase) != "" {
				plan.Clauses = append(plan.Clauses, Clause{Value: phrase, Phrase: true})
			}
			continue
		}

		start := i
		for i < len(s) && !unicode.IsSpace(s[i]) && s[i] != ':' && s[i] != '"' {
			i++
		}
		word := string(s[start:i])
		if i >= len(s) || s[i] != ':' {
			if i < len(s) && s[i] == '"' {
				return nil, apperrors.BadRequest(apperrors.ErrInvalidQuery, "unexpected quote after %q", word)
			}
			plan.Clauses = append(plan.Clauses, Clause{Value: word})
			continue
		}

		field, ok := qualifiers[strings.ToLower(word)]
		if !ok {
			return nil, apperrors.BadRequest(apperrors.ErrInvalidQuery, "unknown field %q", word)
		}
		i++ // ':'
		if i < len(s) && s[i] == '"' {
			phrase, next, err := readQuoted(s, i)
			if err != nil {
				return nil, err
			}
			i = next
			if strings.TrimSpace(phrase) == "" {
				return nil, apperrors.BadRequest(apperrors.ErrInvalidQuery, "empty value for %s", word)
			}
			plan.Clauses = append(plan.Clauses, Clause{Field: field, Value: phrase, Phrase: true})
			continue
		}
		start = i
		for i < len(s) && !unicode.IsSpace(s[i]) {
			if s[i] == '"' {
				return nil, apperrors.BadRequest(apperrors.ErrInvalidQuery, "unexpected quote in value of %s", word)
			}
			i++
		}
		if i == start {
			return nil, apperrors.BadRequest(apperrors.ErrInvalidQuery, "empty value for %s", word)
		}
		plan.Clauses = append(plan.Clauses, Clause{Field: field, Value: string(s[start:i])})
	}
	return plan, nil
}

// readQuoted reads a phrase starting at the opening quote s[i] and returns
// the index after the closing quote.
func readQuoted(s []rune, i int) (string, int, error) {
	end := i + 1
	for end < len(s) && s[end] != '"' {
		end++
	}
	if end >= len(s) {
		return "", 0, apperrors.BadRequest(apperrors.ErrInvalidQuery, "unterminated quote at position %d", i)
	}
	return string(s[i+1 : end]), end + 1, nil
}
