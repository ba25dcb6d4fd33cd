package leaderboard

import (
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mchmarny/qscore/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func rec(name string, r2 float64) score.Record {
	s0, zoff := 0.2586, 0.0214
	return score.Record{
		Submission: name,
		R2:         r2,
		Sigma0:     &s0,
		ZOffset:    &zoff,
		Windows:    100,
		Status:     score.Classify(r2),
	}
}

func names(s *Snapshot) []string {
	list := make([]string, 0, len(s.Submissions))
	for _, e := range s.Submissions {
		list = append(list, e.Name)
	}
	return list
}

func TestUpsert_AddsAndSorts(t *testing.T) {
	snap, sum := Upsert(nil, []score.Record{rec("b", 0.9), rec("a", 0.999), rec("c", -1)}, testNow)
	assert.Equal(t, Summary{Added: 3}, sum)
	assert.Equal(t, []string{"a", "b", "c"}, names(snap))
	assert.Equal(t, "2025-03-14T09:26:53Z", snap.LastUpdated)

	e, ok := snap.Find("a")
	require.True(t, ok)
	assert.Equal(t, "2025-03-14", e.Date)
	assert.Equal(t, score.StatusPassed, e.Status)
	require.NotNil(t, e.Sigma0)
	assert.Equal(t, 0.2586, *e.Sigma0)
	assert.Nil(t, e.Params.N)
}

func TestUpsert_Idempotent(t *testing.T) {
	records := []score.Record{rec("a", 0.99), rec("b", 0.5)}
	once, _ := Upsert(nil, records, testNow)
	twice, sum := Upsert(once, records, testNow)

	assert.Equal(t, once, twice)
	assert.Equal(t, Summary{Updated: 2}, sum)
}

func TestUpsert_RegressionOverwrites(t *testing.T) {
	first, _ := Upsert(nil, []score.Record{rec("a", 0.999), rec("b", 0.9)}, testNow)
	later := testNow.Add(48 * time.Hour)
	next, sum := Upsert(first, []score.Record{rec("a", 0.1)}, later)

	assert.Equal(t, Summary{Updated: 1}, sum)
	assert.Equal(t, []string{"b", "a"}, names(next))

	e, ok := next.Find("a")
	require.True(t, ok)
	assert.Equal(t, 0.1, e.R2)
	assert.Equal(t, score.StatusFailed, e.Status)
	assert.Equal(t, "2025-03-16", e.Date)

	// the input snapshot is untouched
	assert.Equal(t, []string{"a", "b"}, names(first))
	assert.Equal(t, "2025-03-14T09:26:53Z", first.LastUpdated)
}

func TestUpsert_StableTies(t *testing.T) {
	snap, _ := Upsert(nil, []score.Record{rec("x", 0.5), rec("y", 0.5), rec("z", 0.5)}, testNow)
	assert.Equal(t, []string{"x", "y", "z"}, names(snap))
}

func TestUpsert_IgnoresUnnamed(t *testing.T) {
	snap, sum := Upsert(nil, []score.Record{rec("", 0.5), rec("a", 0.4)}, testNow)
	assert.Equal(t, Summary{Added: 1, Ignored: 1}, sum)
	assert.Equal(t, []string{"a"}, names(snap))
}

func TestUpsert_SortedAfterEveryBatch(t *testing.T) {
	rnd := rand.New(rand.NewPCG(7, 11))
	var snap *Snapshot
	for batch := 0; batch < 20; batch++ {
		records := make([]score.Record, 0)
		for i := 0; i < 5; i++ {
			name := string(rune('a' + rnd.IntN(12)))
			records = append(records, rec(name, rnd.Float64()*2-1))
		}
		snap, _ = Upsert(snap, records, testNow)

		seen := make(map[string]bool)
		for i, e := range snap.Submissions {
			assert.False(t, seen[e.Name], "duplicate entry %s", e.Name)
			seen[e.Name] = true
			if i > 0 {
				assert.GreaterOrEqual(t, snap.Submissions[i-1].R2, e.R2)
			}
		}
	}
}

func TestParams_JSON(t *testing.T) {
	n := 3
	b, err := json.Marshal(ParamsOf(&n))
	require.NoError(t, err)
	assert.Equal(t, `3`, string(b))

	b, err = json.Marshal(ParamsOf(nil))
	require.NoError(t, err)
	assert.Equal(t, `"N/A"`, string(b))

	for in, want := range map[string]*int{`5`: intPtr(5), `"7"`: intPtr(7), `"N/A"`: nil, `null`: nil, `3.7`: nil, `"3.7"`: nil, `4.0`: intPtr(4)} {
		var p Params
		require.NoError(t, json.Unmarshal([]byte(in), &p), in)
		assert.Equal(t, want, p.N, in)
	}

	var p Params
	assert.Error(t, json.Unmarshal([]byte(`{}`), &p))
}

func TestUpsert_PartialRecord(t *testing.T) {
	records, err := score.ParseResults([]byte(`[{"submission":"x","r2":0.5}]`))
	require.NoError(t, err)

	snap, _ := Upsert(nil, records, testNow)
	b, err := json.Marshal(snap.Submissions[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","r2":0.5,"params":"N/A","status":"Failed","date":"2025-03-14","sigma0":null,"zoff":null}`, string(b))

	e := EntryFrom(score.Record{Submission: "y", R2: 0.1}, testNow)
	assert.Equal(t, score.StatusFailed, e.Status)
	assert.Nil(t, e.Sigma0)
}

func TestUpsert_TimestampsInUTC(t *testing.T) {
	// 23:30 on Jan 1 in UTC-5 is already Jan 2 in UTC
	local := time.Date(2026, 1, 1, 23, 30, 0, 0, time.FixedZone("EST", -5*60*60))
	snap, _ := Upsert(nil, []score.Record{rec("a", 0.9)}, local)

	assert.Equal(t, "2026-01-02T04:30:00Z", snap.LastUpdated)
	assert.Equal(t, "2026-01-02", snap.Submissions[0].Date)
}

func TestEntryFrom_CopiesParameters(t *testing.T) {
	r := rec("a", 0.9)
	e := EntryFrom(r, testNow)
	*r.Sigma0 = 1
	assert.Equal(t, 0.2586, *e.Sigma0)
}

func intPtr(n int) *int {
	return &n
}

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "leaderboard.json"), WithClock(func() time.Time { return testNow }))
	snap, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Submissions)
	assert.Equal(t, "2025-03-14T09:26:53Z", snap.LastUpdated)
}

func TestStore_Corrupt(t *testing.T) {
	p := filepath.Join(t.TempDir(), "leaderboard.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o644))

	snap, err := NewStore(p).Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Submissions)

	_, err = NewStore(p, WithStrict(true)).Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_ApplyPersists(t *testing.T) {
	p := filepath.Join(t.TempDir(), "leaderboard", "leaderboard.json")
	s := NewStore(p, WithClock(func() time.Time { return testNow }))

	n := 2
	r := rec("a", 0.997)
	r.Params = &n
	_, sum, err := s.Apply([]score.Record{r, rec("b", 0.3)})
	require.NoError(t, err)
	assert.Equal(t, Summary{Added: 2}, sum)

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "2025-03-14T09:26:53Z", raw["last_updated"])
	subs := raw["submissions"].([]any)
	require.Len(t, subs, 2)
	assert.Equal(t, 2.0, subs[0].(map[string]any)["params"])
	assert.Equal(t, "N/A", subs[1].(map[string]any)["params"])

	snap, err := NewStore(p).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(snap))
	require.NotNil(t, snap.Submissions[0].Params.N)
	assert.Equal(t, 2, *snap.Submissions[0].Params.N)
}

func TestStore_ConcurrentApply(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "leaderboard.json"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.Apply([]score.Record{rec(string(rune('a'+i)), float64(i)/10)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, snap.Submissions, 10)
}

func TestStore_SaveError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0o644))
	s := NewStore(dir)
	assert.ErrorIs(t, s.Save(NewSnapshot(testNow)), score.ErrPersistence)
	assert.ErrorIs(t, s.Save(nil), score.ErrPersistence)
}
