package cli

import (
	"errors"
	"fmt"

	"github.com/mchmarny/qscore/pkg/binning"
	"github.com/mchmarny/qscore/pkg/dataset"
	"github.com/mchmarny/qscore/pkg/fit"
	"github.com/mchmarny/qscore/pkg/score"
	"github.com/urfave/cli/v2"
)

// seed used when the frozen reference parameters were derived
var baselineSeed = fit.Params{Sigma0: 0.02, ZOffset: 0}

var (
	fileFlag = &cli.StringFlag{
		Name:     "file",
		Usage:    "Dataset file (.parquet or .csv)",
		Required: true,
	}

	seedSigmaFlag = &cli.Float64Flag{
		Name:  "seed-sigma0",
		Usage: "Starting sigma0 of the fit",
		Value: baselineSeed.Sigma0,
	}

	seedZOffFlag = &cli.Float64Flag{
		Name:  "seed-zoff",
		Usage: "Starting zoff of the fit",
		Value: baselineSeed.ZOffset,
	}

	baselineCmd = &cli.Command{
		Name:            "baseline",
		HideHelpCommand: true,
		Usage:           "Fit both curve parameters to a dataset (informational)",
		Flags: []cli.Flag{
			fileFlag,
			seedSigmaFlag,
			seedZOffFlag,
		},
		Action: cmdBaseline,
	}
)

// BaselineReport is the outcome of a free fit over one dataset.
type BaselineReport struct {
	File        string     `json:"file" yaml:"file"`
	Fit         fit.Result `json:"fit" yaml:"fit"`
	Status      string     `json:"status" yaml:"status"`
	Reference   fit.Params `json:"reference" yaml:"reference"`
	ReferenceR2 *float64   `json:"reference_r2,omitempty" yaml:"reference_r2,omitempty"`
	Buckets     int        `json:"buckets" yaml:"buckets"`
	Windows     int        `json:"windows" yaml:"windows"`
	Dropped     int        `json:"dropped" yaml:"dropped"`
}

func cmdBaseline(c *cli.Context) error {
	cfg := getConfig(c).Config
	path := c.String(fileFlag.Name)

	t, err := dataset.Read(path)
	if err != nil {
		return err
	}
	v, err := dataset.Validate(t)
	if err != nil {
		return err
	}

	b := cfg.Scoring.Bins
	edges, err := binning.Edges(b.Min, b.Max, b.Step)
	if err != nil {
		return fmt.Errorf("bucket config: %w", err)
	}
	buckets, err := binning.Aggregate(v.Observations, edges)
	if err != nil {
		return err
	}
	if len(buckets) == 0 {
		return binning.ErrEmptyAggregation
	}

	points := score.Points(buckets)
	seed := fit.Params{Sigma0: c.Float64(seedSigmaFlag.Name), ZOffset: c.Float64(seedZOffFlag.Name)}
	res, err := fit.Free(points, seed, fit.WithMaxIterations(cfg.Scoring.MaxIterations))
	if err != nil {
		return fmt.Errorf("fitting %s: %w", path, err)
	}

	report := &BaselineReport{
		File:      path,
		Fit:       *res,
		Status:    string(score.Classify(res.RSquared)),
		Reference: fit.Params{Sigma0: cfg.Scoring.Reference.Sigma0, ZOffset: cfg.Scoring.Reference.ZOffset},
		Buckets:   len(buckets),
		Windows:   v.Windows,
		Dropped:   v.Dropped,
	}

	ref, err := fit.Fixed(points, report.Reference)
	switch {
	case err == nil:
		report.ReferenceR2 = &ref.RSquared
	case errors.Is(err, fit.ErrDegenerateVariance):
		// constant variance: the reference has no defined R² here
	default:
		return err
	}

	return output(c, report)
}
