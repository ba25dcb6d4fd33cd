package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mchmarny/qscore/pkg/score"
)

const insertRun = `INSERT INTO score_run
	(run_id, submission, r2, sigma0, zoff, num_windows, num_params, status, mode, scored_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SaveRun stores the records of one batch in a single transaction.
func (s *Store) SaveRun(ctx context.Context, runID string, mode score.Mode, at time.Time, records []score.Record) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	if runID == "" {
		return errors.New("run id required")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertRun))
	if err != nil {
		rollback(tx)
		return fmt.Errorf("preparing run insert: %w", err)
	}
	defer stmt.Close()

	ts := at.UTC().UnixNano()
	for _, r := range records {
		var params sql.NullInt64
		if r.Params != nil {
			params = sql.NullInt64{Int64: int64(*r.Params), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, r.Submission, r.R2, nullFloat(r.Sigma0), nullFloat(r.ZOffset),
			r.Windows, params, string(r.Status), string(mode), ts); err != nil {
			rollback(tx)
			return fmt.Errorf("inserting run of %s: %w", r.Submission, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		slog.Error("rolling back transaction", "error", err)
	}
}
