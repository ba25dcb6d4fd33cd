package leaderboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mchmarny/qscore/pkg/fsutil"
	"github.com/mchmarny/qscore/pkg/score"
)

// DefaultPath is where the leaderboard lives relative to the repository root.
const DefaultPath = "leaderboard/leaderboard.json"

// ErrCorrupt is returned in strict mode when the stored file cannot be decoded.
var ErrCorrupt = errors.New("leaderboard file unreadable")

// Store is a file-backed leaderboard. Writes are serialized; a Store is safe
// for concurrent use within one process.
type Store struct {
	mu     sync.Mutex
	path   string
	strict bool
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStrict makes Load fail on a corrupt file instead of starting over.
func WithStrict(strict bool) StoreOption {
	return func(s *Store) {
		s.strict = strict
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns a store backed by the file at path.
func NewStore(path string, opts ...StoreOption) *Store {
	if path == "" {
		path = DefaultPath
	}
	s := &Store{path: path, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current snapshot. A missing file yields an empty snapshot.
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Snapshot, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("leaderboard not found, starting empty", "path", s.path)
			return NewSnapshot(s.now()), nil
		}
		return s.corrupt(err)
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return s.corrupt(err)
	}
	if snap.Submissions == nil {
		snap.Submissions = make([]Entry, 0)
	}
	return &snap, nil
}

func (s *Store) corrupt(err error) (*Snapshot, error) {
	if s.strict {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	slog.Warn("could not read leaderboard, starting empty", "path", s.path, "error", err)
	return NewSnapshot(s.now()), nil
}

// Save replaces the stored snapshot atomically.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(snap)
}

func (s *Store) save(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", score.ErrPersistence)
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling leaderboard: %v", score.ErrPersistence, err)
	}
	if err := fsutil.WriteAtomic(s.path, append(b, '\n')); err != nil {
		return fmt.Errorf("%w: %v", score.ErrPersistence, err)
	}
	slog.Debug("leaderboard saved", "path", s.path, "entries", len(snap.Submissions))
	return nil
}

// Apply loads the stored snapshot, merges records into it and saves the
// result, all under the store lock.
func (s *Store) Apply(records []score.Record) (*Snapshot, Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.load()
	if err != nil {
		return nil, Summary{}, err
	}

	next, sum := Upsert(old, records, s.now())
	if err := s.save(next); err != nil {
		return nil, sum, err
	}
	return next, sum, nil
}
