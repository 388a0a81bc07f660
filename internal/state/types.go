package state

import (
	"time"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/logging"
)

// #region decision-row
// DecisionRow is one decision_log row with its record decoded.
type DecisionRow struct {
	ID        int64
	SessionID string
	Sequence  uint64
	Action    string
	Zone      string
	Deviation *float64
	Reason    string
	Charged   float64
	Record    logging.DecisionRecord
	CreatedAt time.Time
}

// #endregion decision-row

// #region session-summary
// SessionSummary pairs a persisted session with its decision counts.
type SessionSummary struct {
	SessionID string
	State     string
	FinReason string
	Records   int
	Decisions int
	Spent     float64
	Remaining float64
	UpdatedAt time.Time
}

// #endregion session-summary
