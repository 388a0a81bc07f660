package auditor

import (
	"context"
	"errors"
)

// #region errors
var (
	// ErrUnresolvable is returned when text cannot be turned into a representation.
	ErrUnresolvable = errors.New("text not resolvable")
	// ErrDimensionMismatch is returned when two representations differ in length.
	ErrDimensionMismatch = errors.New("representation dimensions differ")
)

// #endregion errors

// #region interfaces
// Representation is an embedding of a constraint field or a candidate payload.
type Representation []float64

// Resolver turns text into a Representation.
type Resolver interface {
	Resolve(ctx context.Context, text string) (Representation, error)
}

// Auditor scores the deviation of a candidate from the origin. Scores are
// non-negative and unbounded above.
type Auditor interface {
	Score(ctx context.Context, origin, candidate Representation) (float64, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, text string) (Representation, error)

func (f ResolverFunc) Resolve(ctx context.Context, text string) (Representation, error) {
	return f(ctx, text)
}

// AuditorFunc adapts a function to Auditor.
type AuditorFunc func(ctx context.Context, origin, candidate Representation) (float64, error)

func (f AuditorFunc) Score(ctx context.Context, origin, candidate Representation) (float64, error) {
	return f(ctx, origin, candidate)
}

// #endregion interfaces

// Clone returns an independent copy of r.
func (r Representation) Clone() Representation {
	if r == nil {
		return nil
	}
	out := make(Representation, len(r))
	copy(out, r)
	return out
}
