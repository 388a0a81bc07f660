package governor

import (
	"context"
	"math"
	"time"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/logging"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/verifier"
)

// #region state
// State is a session lifecycle state.
type State string

const (
	StateIdle     State = "IDLE"
	StateProposed State = "PROPOSED"
	StateQuoted   State = "QUOTED"
	StateSolvent  State = "SOLVENT"
	StateFin      State = "FIN"
)

// validTransitions lists the states reachable from each state.
var validTransitions = map[State][]State{
	StateIdle:     {StateProposed, StateFin},
	StateProposed: {StateQuoted, StateFin},
	StateQuoted:   {StateSolvent, StateFin},
	StateSolvent:  {StateSolvent, StateFin},
	StateFin:      {},
}

// CanTransitionTo reports whether target is reachable from s.
func (s State) CanTransitionTo(target State) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is FIN.
func (s State) IsTerminal() bool {
	return s == StateFin
}

// #endregion state

// #region zone
// Zone classifies a deviation score.
type Zone string

const (
	ZoneGreen  Zone = "green"
	ZoneYellow Zone = "yellow"
	ZoneRed    Zone = "red"
)

// Classify maps d onto a zone. Boundaries are closed on the lower threshold:
// d == t1 is Green and d == t2 is Yellow. NaN classifies Red.
func Classify(d, t1, t2 float64) Zone {
	switch {
	case math.IsNaN(d):
		return ZoneRed
	case d <= t1:
		return ZoneGreen
	case d <= t2:
		return ZoneYellow
	default:
		return ZoneRed
	}
}

// #endregion zone

// #region handshake-payloads
// SYN opens a session.
type SYN struct {
	ConstraintField string
	SolvencyBid     float64
}

// SYNACK quotes the session terms.
type SYNACK struct {
	ThermodynamicCost   float64
	LiabilityAssessment string
}

// #endregion handshake-payloads

// #region candidate
// Candidate is one proposed output. The first candidate has Predecessor 0;
// later ones name the last transmitted sequence.
type Candidate struct {
	Sequence    uint64
	Predecessor uint64
	Payload     string
}

// Submission is a candidate plus an optional reconciliation artifact. A
// revision repeats the pending candidate with a new artifact.
type Submission struct {
	Candidate Candidate
	Artifact  *verifier.Artifact
}

// #endregion candidate

// #region decision
// Action is the verb of a decision.
type Action string

const (
	ActionTransmit Action = "transmit"
	ActionNack     Action = "nack"
	ActionFin      Action = "fin"
)

// FinReason explains a FIN.
type FinReason string

const (
	FinUnbridgeable    FinReason = "unbridgeable"
	FinBudgetExhausted FinReason = "budget_exhausted"
	FinLedgerIntegrity FinReason = "ledger_integrity"
	FinClosed          FinReason = "closed"
)

// Decision is returned by Submit: Transmit(payload), Nack(bridge, rounds
// remaining) or Fin(reason).
type Decision struct {
	Action         Action
	Sequence       uint64
	Payload        string // set on transmit
	Zone           Zone
	Deviation      float64
	ScoreAvailable bool

	// Nack
	Bridge          verifier.BridgeKind
	RoundsRemaining int
	Rejection       *BridgeRejectedError

	// Fin
	FinReason FinReason
	Escalated bool // a Yellow candidate ran out of rounds

	Attempts        int // artifact attempts spent on this candidate
	Charged         float64
	Residual        *float64
	LedgerPositions []uint64
}

// Err returns ErrBudgetExhausted for a budget FIN and nil otherwise.
func (d Decision) Err() error {
	if d.Action == ActionFin && d.FinReason == FinBudgetExhausted {
		return ErrBudgetExhausted
	}
	return nil
}

// #endregion decision

// #region collaborators
// BridgeRequest describes the artifact the governor is waiting for.
type BridgeRequest struct {
	SessionID       string
	Candidate       Candidate
	Zone            Zone
	Deviation       float64
	ScoreAvailable  bool
	Bridge          verifier.BridgeKind
	MinStruts       int
	MaxStruts       int
	Clauses         []verifier.Clause
	RoundsRemaining int
	Previous        *BridgeRejectedError
}

// ArtifactSource proposes reconciliation artifacts. Returning nil, nil
// declines; the round is consumed.
type ArtifactSource interface {
	ProposeArtifact(ctx context.Context, req BridgeRequest) (*verifier.Artifact, error)
}

// Recorder receives a provenance record for every decision.
type Recorder interface {
	RecordDecision(ctx context.Context, rec logging.DecisionRecord) error
}

// #endregion collaborators

// #region snapshot
// Snapshot is a read-only copy of session bookkeeping.
type Snapshot struct {
	ID               string
	State            State
	FinReason        FinReason
	Constraint       string
	ConstraintDigest string
	T1               float64
	T2               float64
	LiabilityCap     float64
	Spent            float64
	Remaining        float64
	LastSequence     uint64
	LedgerLen        int
	Head             string
	CreatedAt        time.Time
	ClosedAt         time.Time
}

// #endregion snapshot
