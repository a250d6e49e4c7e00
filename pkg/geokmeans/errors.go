package geokmeans

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrNotFitted is returned by queries made before a successful Fit.
var ErrNotFitted = eris.New("geokmeans: model is not fitted")

// InvalidInputError reports a configuration or sample matrix that cannot be
// clustered. It is returned before any computation starts.
type InvalidInputError struct {
	Field  string // "X", "weights", "init", "n_clusters", ...
	Row    int    // -1 when not tied to a row
	Col    int    // -1 when not tied to a column
	Reason string
}

func (e *InvalidInputError) Error() string {
	switch {
	case e.Row >= 0 && e.Col >= 0:
		return fmt.Sprintf("geokmeans: invalid %s[%d][%d]: %s", e.Field, e.Row, e.Col, e.Reason)
	case e.Row >= 0:
		return fmt.Sprintf("geokmeans: invalid %s[%d]: %s", e.Field, e.Row, e.Reason)
	default:
		return fmt.Sprintf("geokmeans: invalid %s: %s", e.Field, e.Reason)
	}
}

func invalid(field, format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Field: field, Row: -1, Col: -1, Reason: fmt.Sprintf(format, args...)}
}

func invalidAt(field string, row, col int, format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Field: field, Row: row, Col: col, Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidInput returns true if err (or any error in its chain) is an
// InvalidInputError.
func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}

// DegenerateClusteringWarning is attached to a Result when fewer distinct
// clusters were found than requested, usually because of duplicate points.
// It is a diagnostic, never returned as Fit's error.
type DegenerateClusteringWarning struct {
	Requested int
	Distinct  int
}

func (w *DegenerateClusteringWarning) Error() string {
	return fmt.Sprintf("geokmeans: number of distinct clusters (%d) found smaller than n_clusters (%d); possibly due to duplicate points in X",
		w.Distinct, w.Requested)
}
