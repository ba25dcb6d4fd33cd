package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mchmarny/qscore/pkg/score"
)

const (
	// DefaultHistoryLimit caps history queries without an explicit limit.
	DefaultHistoryLimit = 20

	selectHistory = `SELECT run_id, submission, r2, sigma0, zoff, num_windows, num_params, status, mode, scored_at
		FROM score_run
		WHERE submission = ?
		ORDER BY scored_at DESC, run_id
		LIMIT ?`

	selectRun = `SELECT run_id, submission, r2, sigma0, zoff, num_windows, num_params, status, mode, scored_at
		FROM score_run
		WHERE run_id = ?
		ORDER BY r2 DESC, submission`
)

// Run is one stored scoring record.
type Run struct {
	score.Record `yaml:",inline"`

	RunID    string    `json:"run_id" yaml:"run_id"`
	Mode     string    `json:"mode" yaml:"mode"`
	ScoredAt time.Time `json:"scored_at" yaml:"scored_at"`
}

// GetHistory returns the latest runs of submission, newest first.
func (s *Store) GetHistory(ctx context.Context, submission string, limit int) ([]*Run, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	if submission == "" {
		return nil, errors.New("submission required")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectHistory), submission, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history of %s: %w", submission, err)
	}
	return scanRuns(rows)
}

// GetRun returns every record of one batch, best first.
func (s *Store) GetRun(ctx context.Context, runID string) ([]*Run, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectRun), runID)
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r := &Run{}
		var params sql.NullInt64
		var s0, zoff sql.NullFloat64
		var status string
		var ts int64
		if err := rows.Scan(&r.RunID, &r.Submission, &r.R2, &s0, &zoff,
			&r.Windows, &params, &status, &r.Mode, &ts); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if params.Valid {
			n := int(params.Int64)
			r.Params = &n
		}
		if s0.Valid {
			r.Sigma0 = &s0.Float64
		}
		if zoff.Valid {
			r.ZOffset = &zoff.Float64
		}
		r.Status = score.Status(status)
		r.ScoredAt = time.Unix(0, ts).UTC()
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return list, nil
}
