package verifier

import (
	"context"
	"fmt"
	"strings"
)

// MinFalsifierWords is the shortest falsifiability condition accepted.
const MinFalsifierWords = 3

var vacuousFalsifiers = map[string]bool{
	"none":                true,
	"n a":                 true,
	"not applicable":      true,
	"nothing":             true,
	"never":               true,
	"no condition":        true,
	"always true":         true,
	"cannot be falsified": true,
	"unfalsifiable":       true,
	"tbd":                 true,
}

// #region verify
// Verify checks an artifact against a constraint. Structural checks run first
// and in order: strut count, clause binding, falsifiability. The rescore only
// runs for structurally valid artifacts. Verify holds no state; given the same
// inputs and rescorer it returns the same result.
func Verify(ctx context.Context, a Artifact, c Constraint, p Policy, rescore Rescorer) Result {
	if res, ok := checkStructure(a, c, p); !ok {
		return res
	}

	if !p.RequireRescore {
		return Result{Accepted: true}
	}

	if strings.TrimSpace(a.Restatement) == "" {
		return reject(ReasonResidualDrift, "no restated position to rescore")
	}
	if rescore == nil {
		return reject(ReasonResidualDrift, "rescore required but unavailable")
	}
	residual, err := rescore(ctx, a.Restatement)
	if err != nil {
		return reject(ReasonResidualDrift, fmt.Sprintf("rescore failed: %v", err))
	}
	if residual > p.GreenThreshold {
		res := reject(ReasonResidualDrift, fmt.Sprintf("residual %.4f exceeds %.4f", residual, p.GreenThreshold))
		res.Residual = &residual
		return res
	}
	return Result{Accepted: true, Residual: &residual}
}

// #endregion verify

// #region structure
func checkStructure(a Artifact, c Constraint, p Policy) (Result, bool) {
	n := len(a.Struts)
	if n < p.MinStruts {
		return reject(ReasonTooFewStruts, fmt.Sprintf("%s bridge needs %d struts, got %d", p.Kind, p.MinStruts, n)), false
	}
	if p.MaxStruts > 0 && n > p.MaxStruts {
		return reject(ReasonTooManyStruts, fmt.Sprintf("%s bridge allows %d struts, got %d", p.Kind, p.MaxStruts, n)), false
	}

	for i, s := range a.Struts {
		if strings.TrimSpace(s.Deviation) == "" || strings.TrimSpace(s.Clause) == "" {
			return reject(ReasonUnboundClause, fmt.Sprintf("strut %d is empty", i+1)), false
		}
		if !c.Binds(s.Clause) {
			return reject(ReasonUnboundClause, fmt.Sprintf("strut %d cites %q, not in constraint", i+1, s.Clause)), false
		}
	}

	if !nonVacuous(a.Falsifiability) {
		return reject(ReasonMissingFalsifiability, "falsifiability condition missing or vacuous"), false
	}
	return Result{}, true
}

func nonVacuous(cond string) bool {
	n := normalize(cond)
	if n == "" || vacuousFalsifiers[n] {
		return false
	}
	return len(strings.Fields(n)) >= MinFalsifierWords
}

func reject(reason Reason, detail string) Result {
	return Result{Accepted: false, Reason: reason, Detail: detail}
}

// #endregion structure
