package fit

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultMaxIterations bounds the accepted steps of a free fit.
	DefaultMaxIterations = 200

	defaultTolerance = 1e-12
	initialDamping   = 1e-3
	maxDamping       = 1e20
	dampingFloor     = 1e-9
	numParams        = 2
)

// Option configures a free fit.
type Option func(*freeConfig)

type freeConfig struct {
	maxIterations int
	tolerance     float64
}

// WithMaxIterations sets the iteration budget.
func WithMaxIterations(n int) Option {
	return func(c *freeConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithTolerance sets the relative cost and step tolerance.
func WithTolerance(tol float64) Option {
	return func(c *freeConfig) {
		if tol > 0 {
			c.tolerance = tol
		}
	}
}

// Free fits sigma0 and zoff to the points with Levenberg-Marquardt least
// squares starting from seed. The returned sigma0 is non-negative.
func Free(points []Point, seed Params, opts ...Option) (*Result, error) {
	if len(points) < numParams {
		return nil, ErrInsufficientBuckets
	}

	cfg := &freeConfig{
		maxIterations: DefaultMaxIterations,
		tolerance:     defaultTolerance,
	}
	for _, o := range opts {
		o(cfg)
	}

	x := seed
	cost := sse(points, x)
	lambda := initialDamping
	converged := false
	iter := 0

	for iter < cfg.maxIterations && !converged {
		if cost == 0 {
			converged = true
			break
		}
		iter++

		jtj, jtr := normalEquations(points, x)
		accepted := false
		for !accepted {
			step, ok := solveStep(jtj, jtr, lambda)
			if !ok {
				lambda *= 10
			} else {
				next := Params{Sigma0: x.Sigma0 + step[0], ZOffset: x.ZOffset + step[1]}
				nextCost := sse(points, next)
				if nextCost < cost {
					converged = cost-nextCost <= cfg.tolerance*cost || smallStep(step, next, cfg.tolerance)
					x, cost = next, nextCost
					lambda = math.Max(lambda/10, 1e-15)
					accepted = true
					continue
				}
				lambda *= 10
			}
			if lambda > maxDamping {
				// no downhill step left: x is a minimum to working precision
				converged = true
				break
			}
		}
	}

	if !converged {
		return nil, ErrFitNonConvergence
	}
	if math.IsNaN(x.Sigma0) || math.IsNaN(x.ZOffset) || math.IsInf(x.Sigma0, 0) || math.IsInf(x.ZOffset, 0) {
		return nil, ErrFitNonConvergence
	}

	x.Sigma0 = math.Abs(x.Sigma0)
	r2, err := RSquared(observed(points), Predict(points, x))
	if err != nil {
		return nil, err
	}

	return &Result{Params: x, RSquared: r2, Iterations: iter}, nil
}

func sse(points []Point, p Params) float64 {
	var s float64
	for _, pt := range points {
		r := QVariance(pt.Z, p) - pt.Variance
		s += r * r
	}
	return s
}

// normalEquations returns JᵀJ (row-major) and Jᵀr for residual r = model - observed.
func normalEquations(points []Point, p Params) ([4]float64, [2]float64) {
	var jtj [4]float64
	var jtr [2]float64
	for _, pt := range points {
		r := QVariance(pt.Z, p) - pt.Variance
		js := 2 * p.Sigma0
		jz := -(pt.Z - p.ZOffset)
		jtj[0] += js * js
		jtj[1] += js * jz
		jtj[3] += jz * jz
		jtr[0] += js * r
		jtr[1] += jz * r
	}
	jtj[2] = jtj[1]
	return jtj, jtr
}

func solveStep(jtj [4]float64, jtr [2]float64, lambda float64) ([2]float64, bool) {
	a := mat.NewDense(numParams, numParams, []float64{
		jtj[0] + lambda*math.Max(jtj[0], dampingFloor), jtj[1],
		jtj[2], jtj[3] + lambda*math.Max(jtj[3], dampingFloor),
	})
	b := mat.NewVecDense(numParams, []float64{-jtr[0], -jtr[1]})

	var d mat.VecDense
	if err := d.SolveVec(a, b); err != nil {
		return [2]float64{}, false
	}
	step := [2]float64{d.AtVec(0), d.AtVec(1)}
	if math.IsNaN(step[0]) || math.IsNaN(step[1]) || math.IsInf(step[0], 0) || math.IsInf(step[1], 0) {
		return step, false
	}
	return step, true
}

func smallStep(step [2]float64, x Params, tol float64) bool {
	norm := math.Hypot(step[0], step[1])
	return norm <= tol*(math.Hypot(x.Sigma0, x.ZOffset)+tol)
}
