package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

const parquetReadBatch = 512

// ReadParquet reads a flat parquet file into an untyped table. Nested columns
// are addressed by their dotted path.
func ReadParquet(path string) (t *Table, retErr error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	// OpenFile reports malformed footers as errors, NewReader would panic on them.
	if _, err := parquet.OpenFile(f, info.Size()); err != nil {
		return nil, fmt.Errorf("opening parquet file: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			t, retErr = nil, fmt.Errorf("decoding parquet file: %v", r)
		}
	}()

	r := parquet.NewReader(f)
	defer r.Close()

	leaves := r.Schema().Columns()
	t = &Table{
		Columns: make([]string, len(leaves)),
		Rows:    make([][]any, 0, r.NumRows()),
	}
	for i, c := range leaves {
		t.Columns[i] = strings.Join(c, ".")
	}

	buf := make([]parquet.Row, parquetReadBatch)
	for {
		n, err := r.ReadRows(buf)
		for _, row := range buf[:n] {
			t.Rows = append(t.Rows, parquetRow(row, len(leaves)))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("reading rows: %w", err)
		}
		if n == 0 {
			break
		}
	}

	return t, nil
}

func parquetRow(row parquet.Row, width int) []any {
	out := make([]any, width)
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= width || v.IsNull() {
			continue
		}
		out[col] = parquetValue(v)
	}
	return out
}

func parquetValue(v parquet.Value) any {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
