// Package score runs submissions through validation, binning and curve
// scoring, and reduces every submission to an outcome. A failing submission
// never stops the batch.
package score

import (
	"errors"
	"fmt"
	"time"
)

// PassThreshold is the minimum R² for a passing submission.
const PassThreshold = 0.995

// ErrPersistence is returned when results cannot be written.
var ErrPersistence = errors.New("persisting results failed")

// Status is the pass/fail classification of a scored submission.
type Status string

const (
	StatusPassed Status = "Passed"
	StatusFailed Status = "Failed"
)

// Classify returns Passed when r2 meets PassThreshold.
func Classify(r2 float64) Status {
	if r2 >= PassThreshold {
		return StatusPassed
	}
	return StatusFailed
}

// Mode selects how a submission is scored.
type Mode string

const (
	// ModeFixed evaluates the curve at the reference parameters.
	ModeFixed Mode = "fixed"
	// ModeFree fits both parameters to the submission.
	ModeFree Mode = "free"
)

// ParseMode parses a mode name; empty means fixed.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFixed:
		return ModeFixed, nil
	case ModeFree:
		return ModeFree, nil
	default:
		return "", fmt.Errorf("invalid scoring mode %q, expected %s or %s", s, ModeFixed, ModeFree)
	}
}

// Record is the result of scoring one submission. Sigma0 and ZOffset are nil
// only in results written by hand that leave them out.
type Record struct {
	Submission string   `json:"submission" yaml:"submission"`
	R2         float64  `json:"r2" yaml:"r2"`
	Sigma0     *float64 `json:"sigma0" yaml:"sigma0"`
	ZOffset    *float64 `json:"zoff" yaml:"zoff"`
	Windows    int      `json:"num_windows" yaml:"num_windows"`
	Params     *int     `json:"num_params" yaml:"num_params"`
	Status     Status   `json:"status" yaml:"status"`
}

// Stage is a step of the per-submission pipeline.
type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageValidated  Stage = "validated"
	StageAggregated Stage = "aggregated"
	StageFitted     Stage = "fitted"
	StageScored     Stage = "scored"

	// StageSkipped is terminal: the submission had no input to score.
	StageSkipped Stage = "skipped"
	// StageErrored is terminal: the input was unusable or scoring failed.
	StageErrored Stage = "errored"
)

// Outcome is what happened to one submission.
type Outcome struct {
	Submission string        `json:"submission" yaml:"submission"`
	Stage      Stage         `json:"stage" yaml:"stage"`
	Reached    Stage         `json:"reached" yaml:"reached"`
	Record     *Record       `json:"record,omitempty" yaml:"record,omitempty"`
	Reason     string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Err        error         `json:"-" yaml:"-"`
}

// OK reports whether the submission was scored.
func (o Outcome) OK() bool {
	return o.Stage == StageScored && o.Record != nil
}

// Batch is the result of one scoring run.
type Batch struct {
	ID        string    `json:"id" yaml:"id"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Records   []Record  `json:"records" yaml:"records"`
	Outcomes  []Outcome `json:"outcomes" yaml:"outcomes"`
}

// Counts returns the number of outcomes per terminal stage.
func (b *Batch) Counts() map[Stage]int {
	m := make(map[Stage]int)
	if b == nil {
		return m
	}
	for _, o := range b.Outcomes {
		m[o.Stage]++
	}
	return m
}
