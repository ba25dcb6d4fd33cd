package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = `ticker,date,T,z,sigma
AAPL,2024-01-02,5,0.1,0.25
AAPL,2024-01-09,5,-0.2,0.3
MSFT,2024-01-02,10,nan,0.2
MSFT,2024-01-09,10,,0.2
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	return p
}

func TestValidate_MissingSigma(t *testing.T) {
	tbl := &Table{
		Columns: []string{"ticker", "date", "T", "z"},
		Rows:    [][]any{{"A", "2024-01-02", int64(5), 0.1}},
	}
	_, err := Validate(tbl)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"sigma"}, ve.Missing)
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	tbl := &Table{Columns: []string{"z"}}
	_, err := Validate(tbl)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"ticker", "date", "T", "sigma"}, ve.Missing)
}

func TestValidate_NilTable(t *testing.T) {
	_, err := Validate(nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidate_EmptyTableIsValid(t *testing.T) {
	v, err := Validate(&Table{Columns: RequiredColumns})
	require.NoError(t, err)
	assert.Empty(t, v.Observations)
	assert.Equal(t, 0, v.Windows)
}

func TestValidate_DropsNullRows(t *testing.T) {
	dir := t.TempDir()
	tbl, err := ReadCSV(writeFile(t, dir, "dataset.csv", testCSV))
	require.NoError(t, err)

	v, err := Validate(tbl)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Windows)
	assert.Equal(t, 1, v.Dropped)
	require.Len(t, v.Observations, 3)

	o := v.Observations[0]
	assert.Equal(t, "AAPL", o.InstrumentID)
	assert.Equal(t, 5, o.Horizon)
	assert.Equal(t, "2024-01-02", o.Date.Format("2006-01-02"))
	assert.InDelta(t, 0.0625, o.Variance(), 1e-12)
	assert.True(t, math.IsNaN(v.Observations[2].Z))
}

func TestToTime(t *testing.T) {
	d, err := toTime(int32(19724))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", d.Format("2006-01-02"))

	d, err = toTime(int64(1704153600000000000))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", d.Format("2006-01-02"))

	d, err = toTime(int64(1704153600000))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", d.Format("2006-01-02"))

	_, err = toTime("not a date")
	assert.Error(t, err)

	_, err = toTime(nil)
	assert.Error(t, err)
}

func TestReadCSV_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	tbl, err := ReadCSV(writeFile(t, dir, "dataset.csv", ""))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
}

type parquetObservation struct {
	Ticker string  `parquet:"ticker"`
	Date   string  `parquet:"date"`
	T      int64   `parquet:"T"`
	Z      float64 `parquet:"z"`
	Sigma  float64 `parquet:"sigma"`
}

func TestReadParquet(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "dataset.parquet")
	rows := []parquetObservation{
		{Ticker: "AAPL", Date: "2024-01-02", T: 5, Z: 0.1, Sigma: 0.25},
		{Ticker: "MSFT", Date: "2024-01-09", T: 10, Z: -0.3, Sigma: 0.2},
	}
	require.NoError(t, parquet.WriteFile(p, rows))

	tbl, err := Read(p)
	require.NoError(t, err)
	assert.ElementsMatch(t, RequiredColumns, tbl.Columns)
	assert.Equal(t, 2, tbl.Len())

	v, err := Validate(tbl)
	require.NoError(t, err)
	require.Len(t, v.Observations, 2)
	assert.Equal(t, "MSFT", v.Observations[1].InstrumentID)
	assert.Equal(t, 10, v.Observations[1].Horizon)
	assert.InDelta(t, -0.3, v.Observations[1].Z, 1e-12)
}

func TestReadParquet_Corrupt(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "dataset.parquet", "definitely not parquet")
	_, err := Read(p)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestLoad_MissingInput(t *testing.T) {
	_, _, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestLoad_PrefersFirstName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dataset.csv", testCSV)
	tbl, p, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dataset.csv"), p)
	assert.Equal(t, 4, tbl.Len())
}

type parquetPartial struct {
	Ticker string  `parquet:"ticker"`
	Z      float64 `parquet:"z"`
}

func TestLoad_Parts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, parquet.WriteFile(filepath.Join(dir, "dataset_part2.parquet"), []parquetObservation{
		{Ticker: "MSFT", Date: "2024-01-09", T: 10, Z: -0.3, Sigma: 0.2},
	}))
	require.NoError(t, parquet.WriteFile(filepath.Join(dir, "dataset_part1.parquet"), []parquetPartial{
		{Ticker: "AAPL", Z: 0.1},
	}))

	tbl, p, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, PartsPattern), p)
	require.Equal(t, 2, tbl.Len())
	assert.ElementsMatch(t, RequiredColumns, tbl.Columns)

	v, err := Validate(tbl)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Windows)
	assert.Equal(t, 1, v.Dropped)
	require.Len(t, v.Observations, 1)
	assert.Equal(t, "MSFT", v.Observations[0].InstrumentID)
}

func TestListSubmissions(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "beta"), 0700))
	require.NoError(t, os.Mkdir(filepath.Join(root, "alpha"), 0700))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0700))
	writeFile(t, root, "README.md", "top level")

	list, err := ListSubmissions(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, list)

	list, err = ListSubmissions(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = ListSubmissions("")
	assert.Error(t, err)
}

func TestParseParamCount(t *testing.T) {
	tests := map[string]*int{
		"A 3-parameter model":              intPtr(3),
		"uses 12 parameters in total":      intPtr(12),
		"Two Parameter model, 2 PARAMETER": intPtr(2),
		"no count here":                    nil,
	}

	for input, expected := range tests {
		assert.Equal(t, expected, ParseParamCount(input), input)
	}
}

func TestDeclaredParams(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, DeclaredParams(dir))

	writeFile(t, dir, ReadmeFileName, "# Model\n\nThis is a 4 parameter model.")
	assert.Equal(t, intPtr(4), DeclaredParams(dir))
}

func intPtr(v int) *int {
	return &v
}
