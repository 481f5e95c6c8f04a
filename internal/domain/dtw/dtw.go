// Package dtw computes Dynamic Time Warping distances between recordings.
//
// The distance is the classic accumulated cost: local cost is the Euclidean
// distance between two frames, the first row and column are cumulative sums,
// every other cell adds the cheapest of its three predecessors, and the result
// is the bottom-right cell without path-length normalisation.
package dtw

import (
	"errors"
	"math"
	"time"

	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/metrics"
)

// Sentinel errors.
var (
	ErrEmptySequence     = errors.New("dtw: empty sequence")
	ErrDimensionMismatch = errors.New("dtw: dimension mismatch")
)

// Distance returns the DTW distance between a and b.
// It is pure and safe for concurrent use.
func Distance(a, b model.Matrix) (float64, error) {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return 0, ErrEmptySequence
	}
	if err := checkWidth(a, b); err != nil {
		return 0, err
	}

	// Only the previous row of the accumulated-cost grid is needed.
	prev := make([]float64, m)
	curr := make([]float64, m)

	prev[0] = local(a[0], b[0])
	for j := 1; j < m; j++ {
		prev[j] = prev[j-1] + local(a[0], b[j])
	}

	for i := 1; i < n; i++ {
		curr[0] = prev[0] + local(a[i], b[0])
		for j := 1; j < m; j++ {
			curr[j] = local(a[i], b[j]) + min3(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}
	return prev[m-1], nil
}

func checkWidth(a, b model.Matrix) error {
	w := len(a[0])
	if w == 0 {
		return ErrDimensionMismatch
	}
	for _, row := range a {
		if len(row) != w {
			return ErrDimensionMismatch
		}
	}
	for _, row := range b {
		if len(row) != w {
			return ErrDimensionMismatch
		}
	}
	return nil
}

func local(x, y []float64) float64 {
	var sum float64
	for k := range x {
		d := x[k] - y[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func min3(a, b, c float64) float64 {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}

// Engine computes distances and records latency and grid size.
type Engine struct{}

// NewEngine returns an Engine.
func NewEngine() *Engine { return &Engine{} }

// Distance delegates to the package Distance and records metrics.
func (e *Engine) Distance(a, b model.Matrix) (float64, error) {
	start := time.Now()
	d, err := Distance(a, b)
	if err == nil {
		metrics.RecordDTW(float64(time.Since(start).Microseconds())/1000.0, len(a)*len(b))
	}
	return d, err
}
