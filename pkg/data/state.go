package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	selectState = `SELECT COUNT(*), COUNT(DISTINCT run_id), COUNT(DISTINCT submission), MAX(scored_at)
		FROM score_run`

	deleteRuns = `DELETE FROM score_run`
)

// State summarizes the history database.
type State struct {
	Records     int64      `json:"records" yaml:"records"`
	Runs        int64      `json:"runs" yaml:"runs"`
	Submissions int64      `json:"submissions" yaml:"submissions"`
	LastScored  *time.Time `json:"last_scored,omitempty" yaml:"last_scored,omitempty"`
}

// GetState returns record, run and submission counts.
func (s *Store) GetState(ctx context.Context) (*State, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	st := &State{}
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, selectState).Scan(&st.Records, &st.Runs, &st.Submissions, &last); err != nil {
		return nil, fmt.Errorf("querying state: %w", err)
	}
	if last.Valid {
		t := time.Unix(0, last.Int64).UTC()
		st.LastScored = &t
	}
	return st, nil
}

// Reset deletes all stored runs and returns how many records were removed.
func (s *Store) Reset(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errDBNotInitialized
	}
	res, err := s.db.ExecContext(ctx, deleteRuns)
	if err != nil {
		return 0, fmt.Errorf("deleting runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted runs: %w", err)
	}
	return n, nil
}
