package eval

import (
	"fmt"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/governor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
)

// #region eval-harness
// EvalHarness checks a finished session against its ledger.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates a session report against the session's ledger records.
func (h *EvalHarness) Run(report governor.Report, records []ledger.Record) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	check := func(name string, value float64, pass bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Chain integrity
	verdict := ledger.VerifyChain(records)
	if len(records) == 0 {
		verdict = ledger.Verdict{Valid: true}
	}
	check("chain_valid", boolValue(verdict.Valid), verdict.Valid, fmt.Sprintf("ledger %s", verdict))

	// 2. Budget never exceeds the liability cap
	spent := report.Summary.BudgetSpent
	capacity := report.Configuration.LiabilityCap
	check("budget_within_cap", spent, spent <= capacity+h.config.BudgetTolerance,
		fmt.Sprintf("spent %.4f exceeds cap %.4f", spent, capacity))

	// 3. One DeltaBridge per paid bridge, none for Green
	bridges := countKind(records, ledger.KindDeltaBridge)
	check("bridge_entries", float64(bridges), bridges == report.Summary.BridgesPaid,
		fmt.Sprintf("%d bridge entries for %d paid bridges", bridges, report.Summary.BridgesPaid))

	// 4. Revision bound: no candidate used more than rounds+1 attempts
	maxAttempts := 0
	for _, tx := range report.Transactions {
		if tx.Attempts > maxAttempts {
			maxAttempts = tx.Attempts
		}
	}
	bound := report.Configuration.RevisionRounds + 1
	check("revision_bound", float64(maxAttempts), maxAttempts <= bound,
		fmt.Sprintf("%d attempts exceed bound %d", maxAttempts, bound))

	// 5. Nothing is decided after FIN
	after := decisionsAfterFin(report.Transactions)
	check("no_decision_after_fin", float64(after), after == 0,
		fmt.Sprintf("%d decisions after FIN", after))

	// 6. Every transmit debited the budget exactly once
	charges := report.Summary.BudgetCharges
	transmits := report.Summary.Transmits
	check("charges_match_transmits", float64(charges), charges == transmits,
		fmt.Sprintf("%d budget charges for %d transmits", charges, transmits))

	passed := len(failReasons) == 0
	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func countKind(records []ledger.Record, kind ledger.Kind) int {
	n := 0
	for _, r := range records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// decisionsAfterFin counts decisions recorded after the first FIN.
func decisionsAfterFin(txs []governor.Transaction) int {
	for i, tx := range txs {
		if tx.Action == governor.ActionFin {
			return len(txs) - i - 1
		}
	}
	return 0
}

// #endregion helpers
