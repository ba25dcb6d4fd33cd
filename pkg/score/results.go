package score

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mchmarny/qscore/pkg/fsutil"
)

const (
	// DefaultResultsFile is where a batch writes its records.
	DefaultResultsFile = "scoring_results.json"

	// ResultMarker precedes every per-submission JSON block on stdout.
	ResultMarker = "SCORING_RESULT:"

	separatorWidth = 60
)

// ErrResultsNotFound is returned when the results file does not exist.
var ErrResultsNotFound = errors.New("scoring results file not found")

func (s *Scorer) print(r *Record) error {
	if s.out == nil {
		return nil
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	sep := strings.Repeat("=", separatorWidth)
	_, err = fmt.Fprintf(s.out, "%s\n%s\n%s\n%s\n", sep, ResultMarker, b, sep)
	return err
}

// WriteResults writes records as a JSON array to path, replacing it atomically.
func WriteResults(path string, records []Record) error {
	if records == nil {
		records = make([]Record, 0)
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling results: %v", ErrPersistence, err)
	}
	if err := fsutil.WriteAtomic(path, append(b, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// ReadResults reads records written by WriteResults. A single JSON object is
// accepted as a one-record batch.
func ReadResults(path string) ([]Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrResultsNotFound, path)
		}
		return nil, fmt.Errorf("reading results %s: %w", path, err)
	}
	return ParseResults(b)
}

// ParseResults decodes a JSON array of records or a single record. Absent
// sigma0 and zoff stay nil.
func ParseResults(b []byte) ([]Record, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return make([]Record, 0), nil
	}

	if b[0] == '{' {
		var r Record
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
		return normalize([]Record{r}), nil
	}

	list := make([]Record, 0)
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return normalize(list), nil
}

// normalize fills what a partial result leaves out: a missing status is Failed.
func normalize(list []Record) []Record {
	for i := range list {
		if list[i].Status == "" {
			list[i].Status = StatusFailed
		}
	}
	return list
}
