package relax

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrDimensionMismatch = errors.New("vector dimensions differ")
	ErrInvalidLambda     = errors.New("lambda must be in (0, 1]")
)

// #region config
// Config holds the drift accumulation and relaxation parameters.
type Config struct {
	Lambda          float64 // damping factor toward origin
	Gain            float64 // weight of each transmitted candidate in the drift state
	HysteresisBound float64 // drift above this schedules a return step
}

// DefaultConfig returns the standard return policy.
func DefaultConfig() Config {
	return Config{
		Lambda:          0.25,
		Gain:            0.5,
		HysteresisBound: 0.35,
	}
}

// #endregion config

// #region types
// Step is the outcome of planning a relaxation.
type Step struct {
	Action      string // "relax" | "no_op"
	Reason      string
	State       []float64
	DriftBefore float64
	DriftAfter  float64
}

// #endregion types

// #region accumulate
// Accumulate folds a transmitted candidate into the drift state:
// S' = (1-gain)·S + gain·candidate.
func Accumulate(state, candidate []float64, gain float64) ([]float64, error) {
	if gain < 0 || gain > 1 {
		return nil, fmt.Errorf("gain %.4f out of [0, 1]", gain)
	}
	return blend(state, candidate, gain)
}

// #endregion accumulate

// #region relax
// Relax applies one return step: S' = (1-λ)·S + λ·origin. The fixed point is
// origin and the distance to it shrinks by exactly (1-λ) per step.
func Relax(state, origin []float64, lambda float64) ([]float64, error) {
	if !(lambda > 0 && lambda <= 1) {
		return nil, ErrInvalidLambda
	}
	return blend(state, origin, lambda)
}

// Plan decides whether drift warrants a return step and computes it.
func Plan(state, origin []float64, cfg Config) (Step, error) {
	before, err := Distance(state, origin)
	if err != nil {
		return Step{}, err
	}
	if before <= cfg.HysteresisBound {
		return Step{
			Action:      "no_op",
			Reason:      fmt.Sprintf("drift %.4f within bound %.4f", before, cfg.HysteresisBound),
			State:       state,
			DriftBefore: before,
			DriftAfter:  before,
		}, nil
	}
	next, err := Relax(state, origin, cfg.Lambda)
	if err != nil {
		return Step{}, err
	}
	after, err := Distance(next, origin)
	if err != nil {
		return Step{}, err
	}
	return Step{
		Action:      "relax",
		Reason:      fmt.Sprintf("drift %.4f exceeds bound %.4f", before, cfg.HysteresisBound),
		State:       next,
		DriftBefore: before,
		DriftAfter:  after,
	}, nil
}

// #endregion relax

// #region helpers
// Distance returns the L2 distance between a and b.
func Distance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sumSq float64
	for i := range a {
		d := a[i] - b[i]
		sumSq += d * d
	}
	return math.Sqrt(sumSq), nil
}

func blend(from, toward []float64, w float64) ([]float64, error) {
	if len(from) != len(toward) {
		return nil, ErrDimensionMismatch
	}
	out := make([]float64, len(from))
	for i := range from {
		out[i] = (1-w)*from[i] + w*toward[i]
	}
	return out, nil
}

// #endregion helpers
