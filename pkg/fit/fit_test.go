package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelPoints(p Params) []Point {
	list := make([]Point, 0, 24)
	for i := 0; i < 24; i++ {
		z := -0.575 + 0.05*float64(i)
		list = append(list, Point{Z: z, Variance: QVariance(z, p)})
	}
	return list
}

func TestQVariance(t *testing.T) {
	p := Params{Sigma0: 0.2, ZOffset: 0}
	assert.InDelta(t, 0.04, QVariance(0, p), 1e-15)
	assert.InDelta(t, 0.04+0.18, QVariance(0.6, p), 1e-15)
	assert.InDelta(t, 0.04+0.005, QVariance(0.2, Params{Sigma0: 0.2, ZOffset: 0.1}), 1e-15)
}

func TestFixed_ExactModelScoresOne(t *testing.T) {
	points := modelPoints(Params{Sigma0: 0.2, ZOffset: 0})
	res, err := Fixed(points, Params{Sigma0: 0.2, ZOffset: 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.RSquared)
	assert.Equal(t, 0.2, res.Sigma0)
	assert.Equal(t, 0, res.Iterations)
}

func TestFixed_Deterministic(t *testing.T) {
	points := modelPoints(Params{Sigma0: 0.27, ZOffset: 0.01})
	for i := range points {
		points[i].Variance += 0.001 * math.Sin(float64(i))
	}

	first, err := Fixed(points, Reference)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Fixed(points, Reference)
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(first.RSquared), math.Float64bits(again.RSquared))
	}
}

func TestFixed_NegativeRSquared(t *testing.T) {
	// buckets far from zero with a flat-ish response; sigma0=0 predicts z²/2
	points := []Point{
		{Z: 2.0, Variance: 0.10},
		{Z: 2.1, Variance: 0.11},
		{Z: 2.2, Variance: 0.12},
	}
	res, err := Fixed(points, Params{Sigma0: 0, ZOffset: 0})
	require.NoError(t, err)
	assert.Less(t, res.RSquared, 0.0)
}

func TestFixed_ConstantVariance(t *testing.T) {
	p := Params{Sigma0: 0.2, ZOffset: 0}
	points := []Point{{Z: 0, Variance: QVariance(0, p)}}
	res, err := Fixed(points, p)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.RSquared)

	points = []Point{{Z: -0.3, Variance: 0.04}, {Z: 0.3, Variance: 0.04}}
	_, err = Fixed(points, p)
	assert.ErrorIs(t, err, ErrDegenerateVariance)
}

func TestFixed_NoPoints(t *testing.T) {
	_, err := Fixed(nil, Reference)
	assert.ErrorIs(t, err, ErrNoPoints)
}

func TestRSquared_LengthMismatch(t *testing.T) {
	_, err := RSquared([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestFree_RecoversParameters(t *testing.T) {
	want := Params{Sigma0: 0.25, ZOffset: 0.03}
	res, err := Free(modelPoints(want), DefaultSeed)
	require.NoError(t, err)
	assert.InDelta(t, want.Sigma0, res.Sigma0, 1e-6)
	assert.InDelta(t, want.ZOffset, res.ZOffset, 1e-6)
	assert.InDelta(t, 1.0, res.RSquared, 1e-9)
	assert.Greater(t, res.Iterations, 0)
}

func TestFree_NegativeSeedReportsPositiveSigma(t *testing.T) {
	want := Params{Sigma0: 0.3, ZOffset: -0.02}
	res, err := Free(modelPoints(want), Params{Sigma0: -0.2, ZOffset: 0})
	require.NoError(t, err)
	assert.InDelta(t, want.Sigma0, res.Sigma0, 1e-6)
	assert.GreaterOrEqual(t, res.Sigma0, 0.0)
}

func TestFree_NoisyData(t *testing.T) {
	points := modelPoints(Reference)
	for i := range points {
		points[i].Variance += 0.002 * math.Cos(float64(3*i))
	}
	res, err := Free(points, DefaultSeed)
	require.NoError(t, err)
	assert.InDelta(t, Reference.Sigma0, res.Sigma0, 0.02)
	assert.InDelta(t, Reference.ZOffset, res.ZOffset, 0.02)

	fixed, err := Fixed(points, Reference)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.RSquared, fixed.RSquared-1e-12)
}

func TestFree_NonConvergence(t *testing.T) {
	_, err := Free(modelPoints(Params{Sigma0: 0.25, ZOffset: 0.03}), DefaultSeed, WithMaxIterations(1))
	assert.ErrorIs(t, err, ErrFitNonConvergence)
}

func TestFree_InsufficientBuckets(t *testing.T) {
	_, err := Free([]Point{{Z: 0, Variance: 0.04}}, DefaultSeed)
	assert.ErrorIs(t, err, ErrInsufficientBuckets)
}
