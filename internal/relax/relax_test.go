package relax

import (
	"errors"
	"math"
	"testing"
)

func TestRelax_ConvergesMonotonically(t *testing.T) {
	origin := []float64{1, 0, 0, 0}
	state := []float64{0, 1, 0.5, -2}

	prev, _ := Distance(state, origin)
	for i := 0; i < 60; i++ {
		next, err := Relax(state, origin, 0.25)
		if err != nil {
			t.Fatalf("Relax: %v", err)
		}
		d, _ := Distance(next, origin)
		if d >= prev {
			t.Fatalf("step %d: distance %v did not shrink from %v", i, d, prev)
		}
		if math.Abs(d-0.75*prev) > 1e-9 {
			t.Fatalf("step %d: expected contraction by 0.75, got %v -> %v", i, prev, d)
		}
		prev = d
		state = next
	}
	if prev > 1e-6 {
		t.Fatalf("expected convergence to origin, distance %v", prev)
	}
}

func TestRelax_OriginIsFixedPoint(t *testing.T) {
	origin := []float64{0.3, 0.4}
	next, err := Relax(origin, origin, 0.5)
	if err != nil {
		t.Fatalf("Relax: %v", err)
	}
	if d, _ := Distance(next, origin); d != 0 {
		t.Fatalf("origin moved by %v", d)
	}
}

func TestRelax_LambdaOneSnapsToOrigin(t *testing.T) {
	next, _ := Relax([]float64{5, 5}, []float64{1, 2}, 1)
	if next[0] != 1 || next[1] != 2 {
		t.Fatalf("expected origin, got %v", next)
	}
}

func TestRelax_InvalidLambda(t *testing.T) {
	for _, l := range []float64{0, -0.1, 1.5, math.NaN()} {
		if _, err := Relax([]float64{1}, []float64{0}, l); !errors.Is(err, ErrInvalidLambda) {
			t.Errorf("lambda %v: expected ErrInvalidLambda, got %v", l, err)
		}
	}
}

func TestAccumulate(t *testing.T) {
	got, err := Accumulate([]float64{0, 0}, []float64{1, 1}, 0.5)
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if got[0] != 0.5 || got[1] != 0.5 {
		t.Fatalf("expected [0.5 0.5], got %v", got)
	}
	if _, err := Accumulate([]float64{0}, []float64{1, 1}, 0.5); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestPlan(t *testing.T) {
	cfg := DefaultConfig()
	origin := []float64{0, 0}

	step, err := Plan([]float64{0.1, 0.1}, origin, cfg)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if step.Action != "no_op" {
		t.Fatalf("expected no_op within bound, got %s", step.Action)
	}

	step, err = Plan([]float64{1, 0}, origin, cfg)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if step.Action != "relax" {
		t.Fatalf("expected relax, got %s", step.Action)
	}
	if math.Abs(step.DriftAfter-0.75) > 1e-12 || step.DriftBefore != 1 {
		t.Fatalf("unexpected drift %v -> %v", step.DriftBefore, step.DriftAfter)
	}
}
