// Package leaderboard keeps the ranked list of scored submissions.
package leaderboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/mchmarny/qscore/pkg/score"
)

const (
	// DateLayout is the format of an entry's date.
	DateLayout = "2006-01-02"

	// NotAvailable stands in for an undeclared parameter count.
	NotAvailable = "N/A"
)

// Params is a declared parameter count that serializes as an integer or "N/A".
type Params struct {
	N *int
}

// ParamsOf wraps n.
func ParamsOf(n *int) Params {
	if n == nil {
		return Params{}
	}
	v := *n
	return Params{N: &v}
}

func (p Params) String() string {
	if p.N == nil {
		return NotAvailable
	}
	return strconv.Itoa(*p.N)
}

// MarshalJSON writes the count or "N/A".
func (p Params) MarshalJSON() ([]byte, error) {
	if p.N == nil {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(*p.N)
}

// UnmarshalJSON accepts an integer, an integer string, "N/A" or null. Any
// other value, fractional numbers included, reads as "N/A".
func (p *Params) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		p.N = nil
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		p.N = nil
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			slog.Warn("params is not a whole number, using N/A", "value", string(b))
			return nil
		}
		n := int(f)
		p.N = &n
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid params value %s", b)
	}
	if n, err := strconv.Atoi(s); err == nil {
		p.N = &n
		return nil
	}
	p.N = nil
	return nil
}

// MarshalYAML mirrors MarshalJSON for the yaml output format.
func (p Params) MarshalYAML() (any, error) {
	if p.N == nil {
		return NotAvailable, nil
	}
	return *p.N, nil
}

// Entry is one leaderboard row, keyed by Name.
type Entry struct {
	Name    string       `json:"name" yaml:"name"`
	R2      float64      `json:"r2" yaml:"r2"`
	Params  Params       `json:"params" yaml:"params"`
	Status  score.Status `json:"status" yaml:"status"`
	Date    string       `json:"date" yaml:"date"`
	Sigma0  *float64     `json:"sigma0" yaml:"sigma0"`
	ZOffset *float64     `json:"zoff" yaml:"zoff"`
}

// Snapshot is the persisted leaderboard.
type Snapshot struct {
	LastUpdated string  `json:"last_updated" yaml:"last_updated"`
	Submissions []Entry `json:"submissions" yaml:"submissions"`
}

// Summary counts what an upsert changed.
type Summary struct {
	Added   int `json:"added" yaml:"added"`
	Updated int `json:"updated" yaml:"updated"`
	Ignored int `json:"ignored" yaml:"ignored"`
}

// NewSnapshot returns an empty snapshot stamped at now.
func NewSnapshot(now time.Time) *Snapshot {
	return &Snapshot{
		LastUpdated: timestamp(now),
		Submissions: make([]Entry, 0),
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// EntryFrom converts a scoring record into the entry stored for it. A record
// without a status is Failed; missing curve parameters stay null.
func EntryFrom(r score.Record, now time.Time) Entry {
	status := r.Status
	if status == "" {
		status = score.StatusFailed
	}
	return Entry{
		Name:    r.Submission,
		R2:      r.R2,
		Params:  ParamsOf(r.Params),
		Status:  status,
		Date:    now.UTC().Format(DateLayout),
		Sigma0:  copyFloat(r.Sigma0),
		ZOffset: copyFloat(r.ZOffset),
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Upsert returns a new snapshot with records merged into old. An existing
// entry with the same name is replaced in place, others are appended. The
// result is sorted by R² descending; ties keep their previous order. old is
// not modified.
func Upsert(old *Snapshot, records []score.Record, now time.Time) (*Snapshot, Summary) {
	var sum Summary
	next := NewSnapshot(now)
	if old != nil {
		next.Submissions = append(next.Submissions, old.Submissions...)
	}

	idx := make(map[string]int, len(next.Submissions))
	for i, e := range next.Submissions {
		idx[e.Name] = i
	}

	for _, r := range records {
		if r.Submission == "" {
			slog.Warn("ignoring result without submission name")
			sum.Ignored++
			continue
		}

		e := EntryFrom(r, now)
		if i, ok := idx[r.Submission]; ok {
			next.Submissions[i] = e
			sum.Updated++
			slog.Info("updated entry", "name", e.Name, "r2", e.R2)
			continue
		}
		idx[r.Submission] = len(next.Submissions)
		next.Submissions = append(next.Submissions, e)
		sum.Added++
		slog.Info("added entry", "name", e.Name, "r2", e.R2)
	}

	sort.SliceStable(next.Submissions, func(i, j int) bool {
		return next.Submissions[i].R2 > next.Submissions[j].R2
	})

	return next, sum
}

// Find returns the entry named name.
func (s *Snapshot) Find(name string) (*Entry, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Submissions {
		if s.Submissions[i].Name == name {
			return &s.Submissions[i], true
		}
	}
	return nil, false
}
