package verifier

import "context"

// #region reason
// Reason enumerates artifact rejection causes.
type Reason string

const (
	ReasonTooFewStruts          Reason = "too_few_struts"
	ReasonTooManyStruts         Reason = "too_many_struts"
	ReasonUnboundClause         Reason = "unbound_clause"
	ReasonMissingFalsifiability Reason = "missing_falsifiability"
	ReasonResidualDrift         Reason = "residual_drift"
)

// #endregion reason

// #region artifact
// Strut links one deviation to one clause of the constraint text. Clause is
// either a clause ID ("C2") or a phrase quoted from the constraint.
type Strut struct {
	Deviation string `json:"deviation" yaml:"deviation"`
	Clause    string `json:"clause" yaml:"clause"`
}

// Artifact is a reconciliation artifact (bridge).
type Artifact struct {
	Struts         []Strut `json:"struts" yaml:"struts"`
	Falsifiability string  `json:"falsifiability" yaml:"falsifiability"`
	Restatement    string  `json:"restatement,omitempty" yaml:"restatement"`
}

// #endregion artifact

// #region policy
// BridgeKind distinguishes micro-bridges (Yellow) from full bridges (Red).
type BridgeKind string

const (
	BridgeMicro BridgeKind = "micro"
	BridgeFull  BridgeKind = "full"
)

// Policy holds the checks applied to one artifact.
type Policy struct {
	Kind           BridgeKind
	MinStruts      int
	MaxStruts      int
	RequireRescore bool
	GreenThreshold float64 // residual must be <= this
}

// MicroPolicy returns the relaxed Yellow-zone policy.
func MicroPolicy(minStruts, maxStruts int, requireRescore bool, t1 float64) Policy {
	return Policy{Kind: BridgeMicro, MinStruts: minStruts, MaxStruts: maxStruts, RequireRescore: requireRescore, GreenThreshold: t1}
}

// FullPolicy returns the Red-zone policy.
func FullPolicy(minStruts, maxStruts int, requireRescore bool, t1 float64) Policy {
	return Policy{Kind: BridgeFull, MinStruts: minStruts, MaxStruts: maxStruts, RequireRescore: requireRescore, GreenThreshold: t1}
}

// #endregion policy

// #region result
// Rescorer scores a restated position against the session origin.
type Rescorer func(ctx context.Context, restatement string) (float64, error)

// Result is the verifier outcome.
type Result struct {
	Accepted bool
	Reason   Reason // empty when accepted
	Detail   string
	Residual *float64 // set when a rescore ran
}

// #endregion result
