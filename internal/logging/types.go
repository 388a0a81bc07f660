package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the decision_log table.
type DecisionEntry struct {
	SessionID  string
	Sequence   uint64
	Action     string // "transmit" | "nack" | "fin"
	Zone       string
	Deviation  *float64 // nil when no score was available
	Reason     string
	Charged    float64
	RecordJSON string
	CreatedAt  time.Time
}

// #endregion decision-entry

// #region decision-record
// DecisionRecord captures everything that fed one decision. Serialized as JSON
// into decision_log.record_json for offline replay.
type DecisionRecord struct {
	SessionID      string  `json:"session_id"`
	Sequence       uint64  `json:"sequence"`
	PayloadDigest  string  `json:"payload_digest"`
	Deviation      float64 `json:"deviation"`
	ScoreAvailable bool    `json:"score_available"`
	Zone           string  `json:"zone"`

	// Thresholds active at decision time
	Thresholds DecisionThresholds `json:"thresholds"`

	// Reconciliation state
	Bridge          string   `json:"bridge,omitempty"` // "micro" | "full"
	RoundsUsed      int      `json:"rounds_used"`
	RoundsRemaining int      `json:"rounds_remaining"`
	RejectReason    string   `json:"reject_reason,omitempty"`
	Residual        *float64 `json:"residual,omitempty"`

	// Outcome
	Action          string   `json:"action"`
	Reason          string   `json:"reason,omitempty"`
	Charged         float64  `json:"charged"`
	Remaining       float64  `json:"remaining"`
	LedgerPositions []uint64 `json:"ledger_positions,omitempty"`
}

// DecisionThresholds captures the session policy at decision time.
type DecisionThresholds struct {
	T1 float64 `json:"t1"`
	T2 float64 `json:"t2"`
}

// #endregion decision-record
