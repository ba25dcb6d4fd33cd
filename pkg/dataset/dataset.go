package dataset

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Column names as they appear in submission datasets.
const (
	ColumnTicker = "ticker"
	ColumnDate   = "date"
	ColumnT      = "T"
	ColumnZ      = "z"
	ColumnSigma  = "sigma"
)

var (
	// RequiredColumns lists the fields every dataset must carry, in reporting order.
	RequiredColumns = []string{ColumnTicker, ColumnDate, ColumnT, ColumnZ, ColumnSigma}

	// ErrMissingInput is returned when a submission has no dataset file.
	ErrMissingInput = errors.New("submission dataset not found")

	// ErrUnreadable is returned when a dataset file exists but cannot be decoded.
	ErrUnreadable = errors.New("submission dataset unreadable")

	// ErrValidation matches any *ValidationError via errors.Is.
	ErrValidation = errors.New("submission dataset invalid")
)

// ValidationError lists every required column absent from a dataset.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required columns: [%s]", strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Observation is one window of a submission dataset.
type Observation struct {
	InstrumentID string    `json:"ticker" yaml:"ticker"`
	Date         time.Time `json:"date" yaml:"date"`
	Horizon      int       `json:"T" yaml:"T"`
	Z            float64   `json:"z" yaml:"z"`
	Sigma        float64   `json:"sigma" yaml:"sigma"`
}

// Variance returns sigma squared.
func (o Observation) Variance() float64 {
	return o.Sigma * o.Sigma
}

// Table is a raw, untyped dataset as read from disk. A nil cell is a null.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) index() map[string]int {
	idx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, ok := idx[c]; !ok {
			idx[c] = i
		}
	}
	return idx
}

// Validated is a table that passed structural validation.
type Validated struct {
	// Observations holds every row with all required fields present.
	Observations []Observation
	// Windows is the row count of the source table.
	Windows int
	// Dropped counts rows skipped for a null or unparsable required field.
	Dropped int
}
