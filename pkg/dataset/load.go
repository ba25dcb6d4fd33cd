package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	extParquet = ".parquet"
	extCSV     = ".csv"
)

// DefaultFileNames are the dataset file names looked up in a submission folder, in order.
var DefaultFileNames = []string{"dataset.parquet", "dataset.csv"}

// PartsPattern matches datasets split over several files. Parts are used only
// when none of the single-file names is present.
const PartsPattern = "dataset_part*.parquet"

// ListSubmissions returns the names of all submission folders under root.
// A missing root yields an empty list.
func ListSubmissions(root string) ([]string, error) {
	if root == "" {
		return nil, errors.New("submissions root required")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make([]string, 0), nil
		}
		return nil, fmt.Errorf("reading submissions dir %s: %w", root, err)
	}

	list := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			list = append(list, e.Name())
		}
	}
	return list, nil
}

// Find returns the path of the first dataset file present in dir.
func Find(dir string, names ...string) (string, error) {
	if len(names) == 0 {
		names = DefaultFileNames
	}
	for _, n := range names {
		p := filepath.Join(dir, n)
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for: %s)", ErrMissingInput, dir, strings.Join(names, ", "))
}

// Read decodes the dataset at path based on its extension.
func Read(path string) (*Table, error) {
	var t *Table
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case extParquet:
		t, err = ReadParquet(path)
	case extCSV:
		t, err = ReadCSV(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file type: %s", ErrUnreadable, path)
	}

	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return t, nil
}

// Load finds and reads the dataset of the submission in dir. It returns the
// path read, or the parts pattern when the dataset came from several files.
func Load(dir string, names ...string) (*Table, string, error) {
	p, err := Find(dir, names...)
	if err != nil {
		parts, _ := filepath.Glob(filepath.Join(dir, PartsPattern))
		if len(parts) == 0 {
			return nil, "", err
		}
		t, err := readParts(parts)
		return t, filepath.Join(dir, PartsPattern), err
	}
	t, err := Read(p)
	if err != nil {
		return nil, p, err
	}
	return t, p, nil
}

// readParts concatenates the tables in paths (sorted) aligning columns by name.
// Columns absent from a part are null in its rows.
func readParts(paths []string) (*Table, error) {
	sort.Strings(paths)

	out := &Table{Columns: make([]string, 0)}
	pos := make(map[string]int)

	for _, p := range paths {
		t, err := Read(p)
		if err != nil {
			return nil, err
		}
		for _, c := range t.Columns {
			if _, ok := pos[c]; !ok {
				pos[c] = len(out.Columns)
				out.Columns = append(out.Columns, c)
			}
		}
		for _, row := range t.Rows {
			r := make([]any, len(out.Columns))
			for i, c := range t.Columns {
				if i < len(row) {
					r[pos[c]] = row[i]
				}
			}
			out.Rows = append(out.Rows, r)
		}
	}

	// rows read before a later part added columns are shorter; pad them
	for i, r := range out.Rows {
		if len(r) < len(out.Columns) {
			out.Rows[i] = append(r, make([]any, len(out.Columns)-len(r))...)
		}
	}
	return out, nil
}
