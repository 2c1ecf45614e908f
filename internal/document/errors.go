package document

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
)

// ValidationError lists every problem found in one metadata record.
type ValidationError struct {
	Missing   []string
	Malformed []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Malformed) > 0 {
		parts = append(parts, "malformed: "+strings.Join(e.Malformed, ", "))
	}
	return fmt.Sprintf("invalid package document (%s)", strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidDocument
}

func (e *ValidationError) missing(field string) {
	e.Missing = append(e.Missing, field)
}

func (e *ValidationError) malformed(field string) {
	e.Malformed = append(e.Malformed, field)
}

func (e *ValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Malformed) == 0
}
