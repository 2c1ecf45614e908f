package parser

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
)

func TestParseClauses(t *testing.T) {
	plan, err := Parse(`json  Id:Newtonsoft.Json tags:"high performance" "fast parser" owner:jamesnk`)
	require.NoError(t, err)
	assert.Equal(t, []Clause{
		{Value: "json"},
		{Field: FieldID, Value: "Newtonsoft.Json"},
		{Field: FieldTags, Value: "high performance", Phrase: true},
		{Value: "fast parser", Phrase: true},
		{Field: FieldOwner, Value: "jamesnk"},
	}, plan.Clauses)
	assert.Len(t, plan.FreeText(), 2)
	assert.Len(t, plan.Qualified(), 3)
	assert.Equal(t, `json id:newtonsoft.json tags:"high performance" "fast parser" owner:jamesnk`, plan.Normalized())
}

func TestParseAliases(t *testing.T) {
	plan, err := Parse("packageid:a tag:b author:c owners:d")
	require.NoError(t, err)
	fields := []Field{}
	for _, c := range plan.Clauses {
		fields = append(fields, c.Field)
	}
	assert.Equal(t, []Field{FieldID, FieldTags, FieldAuthors, FieldOwner}, fields)
}

func TestParseEmpty(t *testing.T) {
	for _, q := range []string{"", "   ", `""`} {
		plan, err := Parse(q)
		require.NoError(t, err)
		assert.True(t, plan.IsEmpty(), "%q", q)
	}
}

func TestParseErrors(t *testing.T) {
	for _, q := range []string{
		`"unterminated`,
		`title:"open`,
		`id:`,
		`id: json`,
		`title:""`,
		`color:red`,
		`ab"c`,
	} {
		_, err := Parse(q)
		require.Error(t, err, q)
		assert.ErrorIs(t, err, apperrors.ErrInvalidQuery, q)
		assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err), q)
	}
}
