// Package binning groups observations into fixed-width z buckets and reduces
// each bucket to its mean z and mean variance.
package binning

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mchmarny/qscore/pkg/dataset"
	"gonum.org/v1/gonum/stat"
)

// Default bin policy used by the scoring path.
const (
	DefaultMin  = -0.6
	DefaultMax  = 0.6
	DefaultStep = 0.05
)

var (
	// ErrInvalidEdges is returned for fewer than two or non-increasing edges.
	ErrInvalidEdges = errors.New("bin edges must be at least two strictly increasing values")

	// ErrEmptyAggregation is returned by callers when no bucket survived aggregation.
	ErrEmptyAggregation = errors.New("no observations fell into any bucket")
)

// Bucket is one non-empty interval (Lower, Upper] of z with its aggregates.
// The first bucket is also closed on the left.
type Bucket struct {
	Lower        float64 `json:"lower" yaml:"lower"`
	Upper        float64 `json:"upper" yaml:"upper"`
	Midpoint     float64 `json:"z_mid" yaml:"zMid"`
	MeanVariance float64 `json:"var" yaml:"var"`
	Count        int     `json:"count" yaml:"count"`
}

// Contains reports whether z belongs to the bucket interval.
func (b Bucket) Contains(z float64, first bool) bool {
	if first && z == b.Lower {
		return true
	}
	return z > b.Lower && z <= b.Upper
}

// DefaultEdges returns the fixed scoring edges: [-0.6, 0.6] at 0.05.
func DefaultEdges() []float64 {
	e, _ := Edges(DefaultMin, DefaultMax, DefaultStep)
	return e
}

// Edges returns evenly spaced edges from lo to hi (both included). The step
// is rounded to the nearest count of whole intervals so hi is always an edge.
func Edges(lo, hi, step float64) ([]float64, error) {
	if !(step > 0) || !(hi > lo) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, fmt.Errorf("invalid bin range [%g, %g] step %g", lo, hi, step)
	}

	n := int(math.Round((hi - lo) / step))
	if n < 1 {
		n = 1
	}

	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = lo + (hi-lo)*float64(i)/float64(n)
	}
	edges[n] = hi
	return edges, nil
}

func checkEdges(edges []float64) error {
	if len(edges) < 2 {
		return ErrInvalidEdges
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return fmt.Errorf("%w: edge %d (%g) <= edge %d (%g)", ErrInvalidEdges, i, edges[i], i-1, edges[i-1])
		}
	}
	return nil
}

// Aggregate assigns each observation to its bucket and returns the non-empty
// buckets in ascending order. Observations with NaN z or outside the edges are
// ignored. A NaN sigma is left out of its bucket's variance mean, and a bucket
// with no usable variance is dropped.
func Aggregate(obs []dataset.Observation, edges []float64) ([]Bucket, error) {
	if err := checkEdges(edges); err != nil {
		return nil, err
	}

	n := len(edges) - 1
	zs := make([][]float64, n)
	vs := make([][]float64, n)

	for _, o := range obs {
		i := bucketIndex(o.Z, edges)
		if i < 0 {
			continue
		}
		zs[i] = append(zs[i], o.Z)
		if v := o.Variance(); !math.IsNaN(v) {
			vs[i] = append(vs[i], v)
		}
	}

	list := make([]Bucket, 0, n)
	for i := 0; i < n; i++ {
		if len(vs[i]) == 0 {
			continue
		}
		b := Bucket{
			Lower:        edges[i],
			Upper:        edges[i+1],
			Midpoint:     stat.Mean(zs[i], nil),
			MeanVariance: stat.Mean(vs[i], nil),
			Count:        len(zs[i]),
		}
		// the mean can drift by an ulp past an edge
		b.Midpoint = math.Max(b.Lower, math.Min(b.Upper, b.Midpoint))
		list = append(list, b)
	}

	return list, nil
}

// bucketIndex returns the bucket holding z, or -1.
func bucketIndex(z float64, edges []float64) int {
	if math.IsNaN(z) || z < edges[0] || z > edges[len(edges)-1] {
		return -1
	}
	if z == edges[0] {
		return 0
	}
	// first edge >= z closes the bucket
	return sort.SearchFloat64s(edges, z) - 1
}
