package governor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/logging"
)

// ProtocolVersion is stamped on every report.
const ProtocolVersion = "2.0-RFC"

// #region report-types
// Transaction is one decision in the session history.
type Transaction struct {
	Sequence   uint64   `json:"sequence"`
	Action     Action   `json:"action"`
	Zone       Zone     `json:"zone,omitempty"`
	Deviation  *float64 `json:"deviation"`
	BridgePaid bool     `json:"bridge_paid"`
	Attempts   int      `json:"attempts"`
	LatencyMs  int64    `json:"latency_ms"`
	Charged    float64  `json:"charged"`
	Reason     string   `json:"reason,omitempty"`
}

// ReportConfig is the policy in force for the session.
type ReportConfig struct {
	ConstraintDigest string  `json:"constraint_digest"`
	T1               float64 `json:"t1"`
	T2               float64 `json:"t2"`
	LiabilityCap     float64 `json:"liability_cap"`
	RevisionRounds   int     `json:"revision_rounds"`
	GreenCost        float64 `json:"green_cost"`
	BridgeCost       float64 `json:"bridge_cost"`
	FullBridgeCost   float64 `json:"full_bridge_cost"`
}

// Summary aggregates the history. SolvencyRate is transmits over resolved
// candidates (transmits plus FINs); nacks are intermediate.
type Summary struct {
	Decisions        int      `json:"decisions"`
	Transmits        int      `json:"transmits"`
	Nacks            int      `json:"nacks"`
	Fins             int      `json:"fins"`
	BridgesPaid      int      `json:"bridges_paid"`
	SolvencyRate     float64  `json:"solvency_rate"`
	AverageDeviation float64  `json:"average_deviation"`
	CriticalFailures []uint64 `json:"critical_failures"`
	BudgetSpent      float64  `json:"budget_spent"`
	BudgetRemaining  float64  `json:"budget_remaining"`
	BudgetCharges    int      `json:"budget_charges"`
	LedgerEntries    int      `json:"ledger_entries"`
	LedgerHead       string   `json:"ledger_head"`
}

// Report is the session report.
type Report struct {
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	GeneratedAt     time.Time     `json:"generated_at"`
	State           State         `json:"state"`
	FinReason       FinReason     `json:"fin_reason,omitempty"`
	Configuration   ReportConfig  `json:"configuration"`
	Transactions    []Transaction `json:"transactions"`
	Summary         Summary       `json:"aggregate_summary"`
}

// #endregion report-types

// #region report
// Report builds the session report.
func (s *Session) Report() Report {
	snap := s.Snapshot()

	s.mu.RLock()
	txs := make([]Transaction, len(s.history))
	copy(txs, s.history)
	costs := s.costs
	var charges int
	if s.budget != nil {
		charges = len(s.budget.Charges())
	}
	s.mu.RUnlock()

	sum := Summary{
		Decisions:        len(txs),
		CriticalFailures: []uint64{},
		BudgetSpent:      snap.Spent,
		BudgetRemaining:  snap.Remaining,
		BudgetCharges:    charges,
		LedgerEntries:    snap.LedgerLen,
		LedgerHead:       snap.Head,
	}
	var devTotal float64
	var devCount int
	for _, tx := range txs {
		switch tx.Action {
		case ActionTransmit:
			sum.Transmits++
			if tx.BridgePaid {
				sum.BridgesPaid++
			}
		case ActionNack:
			sum.Nacks++
		case ActionFin:
			sum.Fins++
			if tx.Reason == string(FinUnbridgeable) {
				sum.CriticalFailures = append(sum.CriticalFailures, tx.Sequence)
			}
		}
		if tx.Deviation != nil && tx.Action != ActionNack {
			devTotal += *tx.Deviation
			devCount++
		}
	}
	if resolved := sum.Transmits + sum.Fins; resolved > 0 {
		sum.SolvencyRate = float64(sum.Transmits) / float64(resolved)
	}
	if devCount > 0 {
		sum.AverageDeviation = devTotal / float64(devCount)
	}

	return Report{
		ProtocolVersion: ProtocolVersion,
		SessionID:       snap.ID,
		GeneratedAt:     s.now(),
		State:           snap.State,
		FinReason:       snap.FinReason,
		Configuration: ReportConfig{
			ConstraintDigest: snap.ConstraintDigest,
			T1:               snap.T1,
			T2:               snap.T2,
			LiabilityCap:     snap.LiabilityCap,
			RevisionRounds:   s.cfg.RevisionRounds,
			GreenCost:        costs.green,
			BridgeCost:       costs.bridge,
			FullBridgeCost:   costs.fullBridge,
		},
		Transactions: txs,
		Summary:      sum,
	}
}

// #endregion report

// #region record
// record appends d to the history and forwards a provenance record.
func (s *Session) record(ctx context.Context, d Decision, elapsed time.Duration) {
	tx := Transaction{
		Sequence:   d.Sequence,
		Action:     d.Action,
		Zone:       d.Zone,
		BridgePaid: d.Action == ActionTransmit && d.Zone != ZoneGreen,
		Attempts:   d.Attempts,
		LatencyMs:  elapsed.Milliseconds(),
		Charged:    d.Charged,
		Reason:     string(d.FinReason),
	}
	if d.ScoreAvailable {
		dev := d.Deviation
		tx.Deviation = &dev
	}
	if d.Rejection != nil && tx.Reason == "" {
		tx.Reason = string(d.Rejection.Reason)
	}
	s.commit(func() { s.history = append(s.history, tx) })

	s.logger.Info("decision",
		zap.Uint64("sequence", d.Sequence),
		zap.String("action", string(d.Action)),
		zap.String("zone", string(d.Zone)),
		zap.Float64("deviation", d.Deviation),
		zap.Bool("score_available", d.ScoreAvailable),
		zap.Float64("charged", d.Charged),
		zap.String("reason", tx.Reason),
	)

	if s.recorder == nil {
		return
	}
	rec := logging.DecisionRecord{
		SessionID:       s.id,
		Sequence:        d.Sequence,
		Deviation:       d.Deviation,
		ScoreAvailable:  d.ScoreAvailable,
		Zone:            string(d.Zone),
		Thresholds:      logging.DecisionThresholds{T1: s.t1, T2: s.t2},
		Bridge:          string(d.Bridge),
		RoundsUsed:      d.Attempts,
		RoundsRemaining: d.RoundsRemaining,
		Residual:        d.Residual,
		Action:          string(d.Action),
		Reason:          string(d.FinReason),
		Charged:         d.Charged,
		LedgerPositions: d.LedgerPositions,
	}
	if d.Payload != "" {
		rec.PayloadDigest = ledger.Digest([]byte(d.Payload))
	}
	if d.Rejection != nil {
		rec.RejectReason = string(d.Rejection.Reason)
	}
	if s.budget != nil {
		rec.Remaining = s.budget.Remaining()
	}
	if err := s.recorder.RecordDecision(ctx, rec); err != nil {
		s.logger.Warn("record decision failed", zap.Error(err))
	}
}

// #endregion record
