package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/qscore/pkg/binning"
	"github.com/mchmarny/qscore/pkg/config"
	"github.com/mchmarny/qscore/pkg/data"
	"github.com/mchmarny/qscore/pkg/dataset"
	"github.com/mchmarny/qscore/pkg/discovery"
	"github.com/mchmarny/qscore/pkg/fit"
	"github.com/mchmarny/qscore/pkg/fsutil"
	"github.com/mchmarny/qscore/pkg/metrics"
	"github.com/mchmarny/qscore/pkg/net"
	"github.com/mchmarny/qscore/pkg/score"
	"github.com/urfave/cli/v2"
)

const historyTimeout = 30 * time.Second

var (
	dirFlag = &cli.StringFlag{
		Name:  "dir",
		Usage: "Submissions directory (default from config: submissions)",
	}

	prFlag = &cli.IntFlag{
		Name:  "pr",
		Usage: "Pull request number; narrows scoring to the submissions it changes",
	}

	repoFlag = &cli.StringFlag{
		Name:  "repo",
		Usage: "Repository as owner/name (default: $GITHUB_REPOSITORY)",
	}

	modeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: "Scoring mode [fixed, free]",
	}

	resultsFlag = &cli.StringFlag{
		Name:  "results",
		Usage: "Scoring results file (default from config: scoring_results.json)",
	}

	leaderboardFlag = &cli.StringFlag{
		Name:  "leaderboard",
		Usage: "Leaderboard file (default from config: leaderboard/leaderboard.json)",
	}

	strictFlag = &cli.BoolFlag{
		Name:  "strict",
		Usage: "Fail on an unreadable leaderboard instead of starting a new one",
	}

	updateFlag = &cli.BoolFlag{
		Name:  "update",
		Usage: "Merge the results into the leaderboard after scoring",
	}

	noHistoryFlag = &cli.BoolFlag{
		Name:  "no-history",
		Usage: "Do not record the run in the history database",
	}

	metricsFileFlag = &cli.StringFlag{
		Name:  "metrics-file",
		Usage: "Write run metrics to this Prometheus textfile (default from config)",
	}

	scoreCmd = &cli.Command{
		Name:            "score",
		HideHelpCommand: true,
		Usage:           "Score submissions and write the results file",
		Flags: []cli.Flag{
			dirFlag,
			prFlag,
			repoFlag,
			tokenFlag,
			modeFlag,
			resultsFlag,
			leaderboardFlag,
			strictFlag,
			updateFlag,
			noHistoryFlag,
			metricsFileFlag,
		},
		Action: cmdScore,
	}
)

// stringOr returns the flag value when set, else def.
func stringOr(c *cli.Context, name, def string) string {
	if v := c.String(name); v != "" {
		return v
	}
	return def
}

func cmdScore(c *cli.Context) error {
	cfg := getConfig(c).Config
	ctx := c.Context

	root := stringOr(c, dirFlag.Name, cfg.Submissions.Dir)
	mode, err := score.ParseMode(stringOr(c, modeFlag.Name, cfg.Scoring.Mode))
	if err != nil {
		return err
	}

	all, err := dataset.ListSubmissions(root)
	if err != nil {
		return err
	}

	pr := c.Int(prFlag.Name)
	var src *discovery.GitHubSource
	if pr > 0 {
		src = newGitHubSource(ctx, c, cfg)
	}
	ids, narrowed := discovery.Scope(ctx, listerFor(src, pr), all, cfg.GitHub.Timeout)
	if len(ids) == 0 {
		slog.Warn("no submission folders found, nothing to score", "dir", root, "narrowed", narrowed)
	}

	rec := metrics.New()
	scorer, err := newScorer(root, mode, cfg,
		score.WithRecorder(rec),
		score.WithOutput(c.App.Writer),
	)
	if err != nil {
		return err
	}

	batch := scorer.Run(ctx, ids)

	resultsPath := stringOr(c, resultsFlag.Name, cfg.Output.Results)
	if err := score.WriteResults(resultsPath, batch.Records); err != nil {
		return err
	}
	slog.Info("saved results", "path", resultsPath, "records", len(batch.Records))

	if !c.Bool(noHistoryFlag.Name) && !cfg.History.Disabled {
		saveHistory(ctx, getConfig(c).historyDSN(), batch, mode)
	}

	if c.Bool(updateFlag.Name) {
		snap, sum, err := leaderboardStore(c).Apply(batch.Records)
		if err != nil {
			return fmt.Errorf("updating leaderboard: %w", err)
		}
		rec.RecordLeaderboardSize(len(snap.Submissions))
		slog.Info("leaderboard updated", "added", sum.Added, "updated", sum.Updated, "entries", len(snap.Submissions))
	}

	if p := stringOr(c, metricsFileFlag.Name, cfg.Output.Metrics); p != "" {
		if err := writeMetrics(p, rec); err != nil {
			slog.Warn("metrics not saved", "error", err)
		}
	}
	return nil
}

func writeMetrics(path string, rec *metrics.Recorder) error {
	if err := os.MkdirAll(filepath.Dir(path), fsutil.DirMode); err != nil {
		return fmt.Errorf("creating metrics dir: %w", err)
	}
	if err := rec.WriteTextfile(path); err != nil {
		return err
	}
	slog.Debug("saved metrics", "path", path)
	return nil
}

func newScorer(root string, mode score.Mode, cfg *config.Config, opts ...score.Option) (*score.Scorer, error) {
	b := cfg.Scoring.Bins
	edges, err := binning.Edges(b.Min, b.Max, b.Step)
	if err != nil {
		return nil, fmt.Errorf("bucket config: %w", err)
	}

	base := []score.Option{
		score.WithFileNames(cfg.Submissions.FileNames...),
		score.WithEdges(edges),
		score.WithMode(mode),
		score.WithReference(fit.Params{Sigma0: cfg.Scoring.Reference.Sigma0, ZOffset: cfg.Scoring.Reference.ZOffset}),
		score.WithSeed(fit.Params{Sigma0: cfg.Scoring.Seed.Sigma0, ZOffset: cfg.Scoring.Seed.ZOffset}),
		score.WithMaxIterations(cfg.Scoring.MaxIterations),
	}
	return score.New(root, append(base, opts...)...)
}

// newGitHubSource returns the change-list source of the configured
// repository, or nil when none is known.
func newGitHubSource(ctx context.Context, c *cli.Context, cfg *config.Config) *discovery.GitHubSource {
	repo := stringOr(c, repoFlag.Name, cfg.GitHub.Repository)
	if repo == "" {
		return nil
	}

	client := net.GetOAuthClient(ctx, resolveGitHubToken(c.String(tokenFlag.Name)), cfg.GitHub.Timeout)
	opts := []discovery.GitHubOption{discovery.WithPrefix(cfg.GitHub.Prefix)}
	if cfg.GitHub.BaseURL != "" {
		opts = append(opts, discovery.WithBaseURL(cfg.GitHub.BaseURL))
	}

	src, err := discovery.NewGitHubSource(client, repo, opts...)
	if err != nil {
		slog.Warn("change-list discovery disabled", "error", err)
		return nil
	}
	return src
}

// listerFor returns the lister of pull request pr, or a lister that never
// narrows when pr or src is missing.
func listerFor(src *discovery.GitHubSource, pr int) discovery.Lister {
	if pr <= 0 {
		return discovery.None{}
	}
	if src == nil {
		slog.Warn("pull request given without a repository, scoring all submissions", "pr", pr)
		return discovery.None{}
	}

	l, err := src.PullRequest(pr)
	if err != nil {
		slog.Warn("change-list discovery disabled", "error", err)
		return discovery.None{}
	}
	slog.Info("processing pull request", "repo", src.Repository(), "pr", pr)
	return l
}

// saveHistory records the batch; failures are logged, never fatal.
func saveHistory(ctx context.Context, dsn string, b *score.Batch, mode score.Mode) {
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	store, err := data.Open(ctx, dsn)
	if err != nil {
		slog.Warn("history unavailable", "error", err)
		return
	}
	defer store.Close()

	if err := store.SaveRun(ctx, b.ID, mode, b.StartedAt, b.Records); err != nil {
		slog.Warn("saving run history", "batch", b.ID, "error", err)
		return
	}
	slog.Debug("run history saved", "batch", b.ID)
}
