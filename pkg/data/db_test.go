package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mchmarny/qscore/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), DataFileName))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDriver(t *testing.T) {
	assert.Equal(t, DriverPostgres, Driver("postgres://u:p@localhost:5432/db?sslmode=disable"))
	assert.Equal(t, DriverPostgres, Driver("postgresql://localhost/db"))
	assert.Equal(t, DriverPostgres, Driver("host=localhost dbname=qscore sslmode=disable"))
	assert.Equal(t, DriverSQLite, Driver("/tmp/qscore.db"))
	assert.Equal(t, DriverSQLite, Driver("qscore.db"))
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestGetDB_EmptyDSN(t *testing.T) {
	_, err := GetDB("")
	assert.Error(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	p := filepath.Join(t.TempDir(), DataFileName)
	s, err := Open(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), p)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestNilStore(t *testing.T) {
	var s *Store
	ctx := context.Background()
	assert.ErrorIs(t, s.SaveRun(ctx, "r", score.ModeFixed, time.Now(), nil), errDBNotInitialized)
	_, err := s.GetHistory(ctx, "a", 1)
	assert.ErrorIs(t, err, errDBNotInitialized)
	_, err = s.GetState(ctx)
	assert.ErrorIs(t, err, errDBNotInitialized)
	assert.NoError(t, s.Close())
}

func testRecords() []score.Record {
	n := 3
	s0, zoff := 0.2586, 0.0214
	return []score.Record{
		{Submission: "alpha", R2: 0.998, Sigma0: &s0, ZOffset: &zoff, Windows: 120, Params: &n, Status: score.StatusPassed},
		{Submission: "beta", R2: -0.25, Windows: 40, Status: score.StatusFailed},
	}
}

// exerciseStore runs the same checks against any backend.
func exerciseStore(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	first := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, s.SaveRun(ctx, "run-1", score.ModeFixed, first, testRecords()))

	r := testRecords()[:1]
	r[0].R2 = 0.5
	r[0].Status = score.StatusFailed
	require.NoError(t, s.SaveRun(ctx, "run-2", score.ModeFree, second, r))

	// empty batches store nothing
	require.NoError(t, s.SaveRun(ctx, "run-3", score.ModeFixed, second, nil))
	assert.Error(t, s.SaveRun(ctx, "", score.ModeFixed, second, testRecords()))

	hist, err := s.GetHistory(ctx, "alpha", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "run-2", hist[0].RunID)
	assert.Equal(t, "free", hist[0].Mode)
	assert.Equal(t, 0.5, hist[0].R2)
	assert.True(t, second.Equal(hist[0].ScoredAt))
	assert.Equal(t, "run-1", hist[1].RunID)
	require.NotNil(t, hist[1].Params)
	assert.Equal(t, 3, *hist[1].Params)
	assert.Equal(t, score.StatusPassed, hist[1].Status)

	hist, err = s.GetHistory(ctx, "alpha", 1)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	_, err = s.GetHistory(ctx, "", 1)
	assert.Error(t, err)

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, run, 2)
	assert.Equal(t, "alpha", run[0].Submission)
	assert.Nil(t, run[1].Params)
	require.NotNil(t, run[0].Sigma0)
	assert.Equal(t, 0.2586, *run[0].Sigma0)
	assert.Nil(t, run[1].Sigma0)
	assert.Nil(t, run[1].ZOffset)

	// same batch twice violates the key and leaves the first copy intact
	assert.Error(t, s.SaveRun(ctx, "run-1", score.ModeFixed, first, testRecords()))

	st, err := s.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Records)
	assert.Equal(t, int64(2), st.Runs)
	assert.Equal(t, int64(2), st.Submissions)
	require.NotNil(t, st.LastScored)
	assert.True(t, second.Equal(*st.LastScored))

	n, err := s.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	st, err = s.GetState(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Records)
	assert.Nil(t, st.LastScored)
}

func TestStore_SQLite(t *testing.T) {
	exerciseStore(t, setupTestStore(t))
}
