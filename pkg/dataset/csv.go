package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadCSV reads a headed CSV file into an untyped table. Empty cells are nulls.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{Columns: make([]string, 0)}, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	t := &Table{
		Columns: make([]string, len(header)),
		Rows:    make([][]any, 0),
	}
	for i, h := range header {
		t.Columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", len(t.Rows)+1, err)
		}
		row := make([]any, len(t.Columns))
		for i := 0; i < len(rec) && i < len(row); i++ {
			if v := strings.TrimSpace(rec[i]); v != "" {
				row[i] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}
