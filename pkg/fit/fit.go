// Package fit scores binned variance data against the q-variance curve
//
//	variance(z) = sigma0² + (z - zoff)² / 2
//
// either at fixed reference parameters or with a free least-squares fit.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// Reference is the frozen parameter pair submissions are scored against.
	Reference = Params{Sigma0: 0.2586, ZOffset: 0.0214}

	// DefaultSeed is the starting guess of a free fit.
	DefaultSeed = Params{Sigma0: 0.2, ZOffset: 0}

	// ErrFitNonConvergence is returned when the optimizer runs out of iterations.
	ErrFitNonConvergence = errors.New("fit did not converge")

	// ErrInsufficientBuckets is returned when there are fewer points than parameters.
	ErrInsufficientBuckets = errors.New("not enough buckets to fit")

	// ErrDegenerateVariance is returned when all observed variances are equal
	// and the model does not reproduce them exactly.
	ErrDegenerateVariance = errors.New("observed variance is constant, R² undefined")

	// ErrNoPoints is returned for an empty point set.
	ErrNoPoints = errors.New("no points to score")
)

// Params are the two q-variance parameters.
type Params struct {
	Sigma0  float64 `json:"sigma0" yaml:"sigma0"`
	ZOffset float64 `json:"zoff" yaml:"zoff"`
}

func (p Params) String() string {
	return fmt.Sprintf("σ₀=%.4f zoff=%.4f", p.Sigma0, p.ZOffset)
}

// Point is one bucket aggregate: mean z and mean variance.
type Point struct {
	Z        float64 `json:"z" yaml:"z"`
	Variance float64 `json:"var" yaml:"var"`
}

// Result is the outcome of scoring or fitting.
type Result struct {
	Params     `yaml:",inline"`
	RSquared   float64 `json:"r2" yaml:"r2"`
	Iterations int     `json:"iterations" yaml:"iterations"`
}

// QVariance evaluates the model at z.
func QVariance(z float64, p Params) float64 {
	d := z - p.ZOffset
	return p.Sigma0*p.Sigma0 + d*d/2
}

// Predict evaluates the model at every point.
func Predict(points []Point, p Params) []float64 {
	out := make([]float64, len(points))
	for i, pt := range points {
		out[i] = QVariance(pt.Z, p)
	}
	return out
}

// Fixed scores points against known parameters without optimizing.
func Fixed(points []Point, p Params) (*Result, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	r2, err := RSquared(observed(points), Predict(points, p))
	if err != nil {
		return nil, err
	}
	return &Result{Params: p, RSquared: r2}, nil
}

// RSquared returns 1 - SSres/SStot. The value is not clamped and is negative
// when predictions are worse than the observed mean.
func RSquared(observed, predicted []float64) (float64, error) {
	if len(observed) == 0 {
		return 0, ErrNoPoints
	}
	if len(observed) != len(predicted) {
		return 0, fmt.Errorf("observed (%d) and predicted (%d) lengths differ", len(observed), len(predicted))
	}

	mean := stat.Mean(observed, nil)
	var ssRes, ssTot float64
	for i, o := range observed {
		r := o - predicted[i]
		ssRes += r * r
		d := o - mean
		ssTot += d * d
	}

	if ssTot == 0 {
		if ssRes == 0 {
			return 1, nil
		}
		return 0, ErrDegenerateVariance
	}

	r2 := 1 - ssRes/ssTot
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		return 0, fmt.Errorf("non-finite R² (ssRes=%g, ssTot=%g)", ssRes, ssTot)
	}
	return r2, nil
}

func observed(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Variance
	}
	return out
}
