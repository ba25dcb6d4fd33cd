package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mchmarny/qscore/pkg/leaderboard"
	"github.com/mchmarny/qscore/pkg/metrics"
	"github.com/mchmarny/qscore/pkg/score"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 60
	serverMaxHeaderBytes      = 20
)

var (
	addressFlag = &cli.StringFlag{
		Name:  "address",
		Usage: "Address the server listens on (default from config: 127.0.0.1:8080)",
	}

	serveCmd = &cli.Command{
		Name:            "serve",
		Aliases:         []string{"server"},
		HideHelpCommand: true,
		Usage:           "Serve the leaderboard and on-demand scoring over HTTP",
		Flags: []cli.Flag{
			addressFlag,
			leaderboardFlag,
			strictFlag,
			dirFlag,
			repoFlag,
			tokenFlag,
			modeFlag,
			noHistoryFlag,
		},
		Action: cmdServe,
	}
)

func cmdServe(c *cli.Context) error {
	cfg := getConfig(c).Config
	address := stringOr(c, addressFlag.Name, cfg.Server.Address)

	rec := metrics.New()
	store := leaderboardStore(c)
	snap, err := store.Load()
	if err != nil {
		return err
	}
	rec.RecordLeaderboardSize(len(snap.Submissions))

	svc, err := newScoreService(c, store, rec)
	if err != nil {
		return err
	}

	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(store, rec, svc),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runServer(ctx, s)
}

func newScoreService(c *cli.Context, store *leaderboard.Store, rec *metrics.Recorder) (*scoreService, error) {
	cfg := getConfig(c).Config
	root := stringOr(c, dirFlag.Name, cfg.Submissions.Dir)

	mode, err := score.ParseMode(stringOr(c, modeFlag.Name, cfg.Scoring.Mode))
	if err != nil {
		return nil, err
	}
	scorer, err := newScorer(root, mode, cfg, score.WithRecorder(rec), score.WithOutput(nil))
	if err != nil {
		return nil, err
	}

	svc := &scoreService{
		root:    root,
		mode:    mode,
		scorer:  scorer,
		source:  newGitHubSource(c.Context, c, cfg),
		timeout: cfg.GitHub.Timeout,
		store:   store,
		rec:     rec,
	}
	if !c.Bool(noHistoryFlag.Name) && !cfg.History.Disabled {
		svc.historyDSN = getConfig(c).historyDSN()
	}
	return svc, nil
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, s *http.Server) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server started", "address", fmt.Sprintf("http://%s", s.Addr))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving on %s: %w", s.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutting down server: %w", err)
		}
		slog.Info("server stopped")
		return nil
	})

	return g.Wait()
}
