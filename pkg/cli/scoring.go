package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mchmarny/qscore/pkg/dataset"
	"github.com/mchmarny/qscore/pkg/discovery"
	"github.com/mchmarny/qscore/pkg/leaderboard"
	"github.com/mchmarny/qscore/pkg/metrics"
	"github.com/mchmarny/qscore/pkg/score"
)

const maxScoreBodyBytes = 1 << 10

// scoreService runs scoring batches on request. Batches run one at a time and
// share one change-list source, so its circuit breaker spans requests.
type scoreService struct {
	mu      sync.Mutex
	root    string
	mode    score.Mode
	scorer  *score.Scorer
	source  *discovery.GitHubSource
	timeout time.Duration
	store   *leaderboard.Store
	rec     *metrics.Recorder
	// historyDSN is empty when runs are not recorded.
	historyDSN string
}

// ScoreRequest selects what a scoring batch covers.
type ScoreRequest struct {
	PR     int  `json:"pr"`
	Update bool `json:"update"`
}

// ScoreResponse reports a finished batch.
type ScoreResponse struct {
	Batch       string               `json:"batch"`
	Narrowed    bool                 `json:"narrowed"`
	Records     []score.Record       `json:"records"`
	Outcomes    []score.Outcome      `json:"outcomes"`
	Leaderboard *leaderboard.Summary `json:"leaderboard,omitempty"`
}

func (s *scoreService) run(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := dataset.ListSubmissions(s.root)
	if err != nil {
		return nil, err
	}
	ids, narrowed := discovery.Scope(ctx, listerFor(s.source, req.PR), all, s.timeout)

	batch := s.scorer.Run(ctx, ids)
	if s.historyDSN != "" {
		saveHistory(ctx, s.historyDSN, batch, s.mode)
	}

	resp := &ScoreResponse{
		Batch:    batch.ID,
		Narrowed: narrowed,
		Records:  batch.Records,
		Outcomes: batch.Outcomes,
	}
	if !req.Update {
		return resp, nil
	}

	snap, sum, err := s.store.Apply(batch.Records)
	if err != nil {
		return nil, fmt.Errorf("updating leaderboard: %w", err)
	}
	s.rec.RecordLeaderboardSize(len(snap.Submissions))
	resp.Leaderboard = &sum
	return resp, nil
}

func scoreHandler(svc *scoreService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScoreBodyBytes))
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		var req ScoreRequest
		if len(b) > 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid score request")
				return
			}
		}

		resp, err := svc.run(r.Context(), req)
		if err != nil {
			slog.Error("scoring failed", "error", err)
			writeError(w, http.StatusInternalServerError, "scoring failed")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
