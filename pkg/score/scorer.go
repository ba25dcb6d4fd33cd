package score

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/qscore/pkg/binning"
	"github.com/mchmarny/qscore/pkg/dataset"
	"github.com/mchmarny/qscore/pkg/fit"
)

// Recorder receives per-submission and per-batch measurements.
type Recorder interface {
	RecordOutcome(submission, stage string, r2 *float64, seconds float64)
	RecordBatch(ts float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordOutcome(string, string, *float64, float64) {}
func (nopRecorder) RecordBatch(float64)                             {}

// Scorer scores the submissions found under a root directory.
type Scorer struct {
	root      string
	fileNames []string
	edges     []float64
	mode      Mode
	reference fit.Params
	seed      fit.Params
	maxIter   int
	out       io.Writer
	recorder  Recorder
	now       func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithFileNames sets the dataset file names looked up in each submission.
func WithFileNames(names ...string) Option {
	return func(s *Scorer) {
		if len(names) > 0 {
			s.fileNames = names
		}
	}
}

// WithEdges sets the bucket edges.
func WithEdges(edges []float64) Option {
	return func(s *Scorer) {
		s.edges = edges
	}
}

// WithMode sets the scoring mode.
func WithMode(m Mode) Option {
	return func(s *Scorer) {
		s.mode = m
	}
}

// WithReference sets the parameters used in fixed mode.
func WithReference(p fit.Params) Option {
	return func(s *Scorer) {
		s.reference = p
	}
}

// WithSeed sets the starting guess used in free mode.
func WithSeed(p fit.Params) Option {
	return func(s *Scorer) {
		s.seed = p
	}
}

// WithMaxIterations bounds the free fit.
func WithMaxIterations(n int) Option {
	return func(s *Scorer) {
		s.maxIter = n
	}
}

// WithOutput sets where SCORING_RESULT blocks are printed. Nil disables them.
func WithOutput(w io.Writer) Option {
	return func(s *Scorer) {
		s.out = w
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scorer) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Scorer for the submissions under root.
func New(root string, opts ...Option) (*Scorer, error) {
	if root == "" {
		return nil, errors.New("submissions root required")
	}

	s := &Scorer{
		root:      root,
		fileNames: dataset.DefaultFileNames,
		edges:     binning.DefaultEdges(),
		mode:      ModeFixed,
		reference: fit.Reference,
		seed:      fit.DefaultSeed,
		maxIter:   fit.DefaultMaxIterations,
		out:       os.Stdout,
		recorder:  nopRecorder{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	if _, err := ParseMode(string(s.mode)); err != nil {
		return nil, err
	}
	if _, err := binning.Aggregate(nil, s.edges); err != nil {
		return nil, fmt.Errorf("bucket edges: %w", err)
	}
	return s, nil
}

// Run scores ids in order. Failures become outcomes; the batch always completes
// unless ctx is cancelled, in which case the remaining submissions are skipped.
func (s *Scorer) Run(ctx context.Context, ids []string) *Batch {
	b := &Batch{
		ID:        uuid.NewString(),
		StartedAt: s.now().UTC(),
		Records:   make([]Record, 0, len(ids)),
		Outcomes:  make([]Outcome, 0, len(ids)),
	}

	log := slog.With("batch", b.ID)
	log.Info("scoring submissions", "count", len(ids), "mode", s.mode)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			b.Outcomes = append(b.Outcomes, Outcome{
				Submission: id,
				Stage:      StageSkipped,
				Reached:    StageDiscovered,
				Reason:     "run cancelled",
				Err:        err,
			})
			continue
		}

		o := s.ScoreOne(id)
		b.Outcomes = append(b.Outcomes, o)

		var r2 *float64
		if o.Record != nil {
			r2 = &o.Record.R2
		}
		s.recorder.RecordOutcome(id, string(o.Stage), r2, o.Duration.Seconds())

		switch o.Stage {
		case StageScored:
			b.Records = append(b.Records, *o.Record)
			log.Info("scored submission", "submission", id, "r2", o.Record.R2, "status", o.Record.Status)
			if err := s.print(o.Record); err != nil {
				log.Warn("printing result", "submission", id, "error", err)
			}
		case StageSkipped:
			log.Warn("skipped submission", "submission", id, "reason", o.Reason)
		default:
			log.Error("submission errored", "submission", id, "stage", o.Reached, "reason", o.Reason)
		}
	}

	s.recorder.RecordBatch(float64(s.now().Unix()))
	log.Info("scoring done", "scored", len(b.Records), "total", len(ids))
	return b
}

// ScoreOne runs a single submission through the pipeline. It never panics.
func (s *Scorer) ScoreOne(id string) (o Outcome) {
	start := time.Now()
	o = Outcome{Submission: id, Reached: StageDiscovered}

	defer func() {
		if r := recover(); r != nil {
			o.Stage = StageErrored
			o.Record = nil
			o.Err = fmt.Errorf("panic: %v", r)
			o.Reason = o.Err.Error()
		}
		o.Duration = time.Since(start)
	}()

	dir := filepath.Join(s.root, id)
	fail := func(err error) Outcome {
		o.Err = err
		o.Reason = err.Error()
		o.Stage = StageErrored
		if errors.Is(err, dataset.ErrMissingInput) {
			o.Stage = StageSkipped
		}
		return o
	}

	table, path, err := dataset.Load(dir, s.fileNames...)
	if err != nil {
		return fail(err)
	}
	slog.Debug("loaded dataset", "submission", id, "path", path, "rows", table.Len())

	v, err := dataset.Validate(table)
	if err != nil {
		return fail(err)
	}
	o.Reached = StageValidated
	if v.Dropped > 0 {
		slog.Warn("rows with null fields ignored", "submission", id, "dropped", v.Dropped)
	}

	buckets, err := binning.Aggregate(v.Observations, s.edges)
	if err != nil {
		return fail(err)
	}
	if len(buckets) == 0 {
		return fail(binning.ErrEmptyAggregation)
	}
	o.Reached = StageAggregated

	res, err := s.fit(Points(buckets))
	if err != nil {
		return fail(err)
	}
	o.Reached = StageFitted

	s0, zoff := res.Sigma0, res.ZOffset
	o.Record = &Record{
		Submission: id,
		R2:         res.RSquared,
		Sigma0:     &s0,
		ZOffset:    &zoff,
		Windows:    v.Windows,
		Params:     dataset.DeclaredParams(dir),
		Status:     Classify(res.RSquared),
	}
	o.Reached = StageScored
	o.Stage = StageScored
	return o
}

func (s *Scorer) fit(points []fit.Point) (*fit.Result, error) {
	if s.mode == ModeFree {
		return fit.Free(points, s.seed, fit.WithMaxIterations(s.maxIter))
	}
	return fit.Fixed(points, s.reference)
}

// Points converts buckets into fit points.
func Points(buckets []binning.Bucket) []fit.Point {
	list := make([]fit.Point, len(buckets))
	for i, b := range buckets {
		list[i] = fit.Point{Z: b.Midpoint, Variance: b.MeanVariance}
	}
	return list
}
