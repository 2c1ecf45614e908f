package query

import (
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
)

// Sort is a result order.
type Sort int

const (
	SortRelevance Sort = iota
	SortLastEdited
	SortPublished
	SortTitleAsc
	SortTitleDesc
)

var sortNames = map[string]Sort{
	"":           SortRelevance,
	"relevance":  SortRelevance,
	"lastedited": SortLastEdited,
	"published":  SortPublished,
	"title-asc":  SortTitleAsc,
	"title-desc": SortTitleDesc,
}

// ParseSort accepts the sort names of the query API, case-insensitively.
func ParseSort(name string) (Sort, error) {
	s, ok := sortNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, apperrors.BadRequest(apperrors.ErrInvalidQuery, "unknown sort %q", name)
	}
	return s, nil
}

func (s Sort) String() string {
	switch s {
	case SortLastEdited:
		return "lastEdited"
	case SortPublished:
		return "published"
	case SortTitleAsc:
		return "title-asc"
	case SortTitleDesc:
		return "title-desc"
	default:
		return "relevance"
	}
}
