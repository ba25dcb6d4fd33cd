package cli

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mchmarny/qscore/pkg/leaderboard"
	"github.com/mchmarny/qscore/pkg/metrics"
	"github.com/mchmarny/qscore/pkg/score"
)

const maxResultsBodyBytes = 1 << 20

// makeRouter registers the service routes. POST /score is only served when
// svc is set.
func makeRouter(store *leaderboard.Store, rec *metrics.Recorder, svc *scoreService) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /leaderboard", leaderboardGetHandler(store))
	mux.HandleFunc("POST /leaderboard", leaderboardPostHandler(store, rec))
	mux.Handle("GET /metrics", rec.Handler())
	if svc != nil {
		mux.HandleFunc("POST /score", scoreHandler(svc))
	}

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func leaderboardGetHandler(store *leaderboard.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := store.Load()
		if err != nil {
			slog.Error("failed to load leaderboard", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// UpdateResponse is returned after results are merged.
type UpdateResponse struct {
	leaderboard.Summary
	Entries     int    `json:"entries"`
	LastUpdated string `json:"last_updated"`
}

func leaderboardPostHandler(store *leaderboard.Store, rec *metrics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxResultsBodyBytes))
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		records, err := score.ParseResults(b)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		snap, sum, err := store.Apply(records)
		if err != nil {
			slog.Error("failed to update leaderboard", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update leaderboard")
			return
		}
		rec.RecordLeaderboardSize(len(snap.Submissions))

		writeJSON(w, http.StatusOK, &UpdateResponse{
			Summary:     sum,
			Entries:     len(snap.Submissions),
			LastUpdated: snap.LastUpdated,
		})
	}
}
