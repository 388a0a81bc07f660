package eval

import (
	"context"
	"testing"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/governor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/verifier"
)

// finishedSession runs a green transmit and a paid micro-bridge.
func finishedSession(t *testing.T) *governor.Session {
	t.Helper()
	script := auditor.NewScripted()
	script.Set("good", 0.01)
	script.Set("drifting", 0.2)
	script.Set("restated", 0.02)

	s, err := governor.NewSession(script, script, governor.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	ctx := context.Background()
	if err := s.Propose(ctx, governor.SYN{ConstraintField: "Be brief. Cite sources.", SolvencyBid: 20}); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if err := s.Quote(ctx, governor.SYNACK{ThermodynamicCost: 1}); err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if err := s.Confirm(ctx); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := s.Submit(ctx, governor.Submission{Candidate: governor.Candidate{Sequence: 1, Payload: "good"}}); err != nil {
		t.Fatalf("Submit 1: %v", err)
	}
	_, err = s.Submit(ctx, governor.Submission{
		Candidate: governor.Candidate{Sequence: 2, Predecessor: 1, Payload: "drifting"},
		Artifact: &verifier.Artifact{
			Struts:         []verifier.Strut{{Deviation: "shortened", Clause: "C1"}},
			Falsifiability: "false if longer than before",
			Restatement:    "restated",
		},
	})
	if err != nil {
		t.Fatalf("Submit 2: %v", err)
	}
	return s
}

func TestEvalPassesOnHealthySession(t *testing.T) {
	s := finishedSession(t)
	h := NewEvalHarness(DefaultEvalConfig())

	result := h.Run(s.Report(), s.Ledger().Records())
	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if len(result.Metrics) != 6 {
		t.Fatalf("expected 6 metrics, got %d", len(result.Metrics))
	}
	if got := s.Report().Summary.BudgetCharges; got != 2 {
		t.Fatalf("expected 2 budget charges, got %d", got)
	}
}

func TestEvalFailsOnUnchargedTransmit(t *testing.T) {
	s := finishedSession(t)
	report := s.Report()
	report.Summary.BudgetCharges--

	result := NewEvalHarness(DefaultEvalConfig()).Run(report, s.Ledger().Records())
	if result.Passed {
		t.Fatal("expected fail when a transmit has no budget charge")
	}
}

func TestEvalFailsOnTamperedChain(t *testing.T) {
	s := finishedSession(t)
	records := s.Ledger().Records()
	records[1].Body[3] ^= 0x01

	result := NewEvalHarness(DefaultEvalConfig()).Run(s.Report(), records)
	if result.Passed {
		t.Fatal("expected fail on tampered chain")
	}
	if result.Metrics[0].Name != "chain_valid" || result.Metrics[0].Pass {
		t.Fatalf("expected chain_valid failure, got %+v", result.Metrics[0])
	}
}

func TestEvalFailsOnMissingBridgeEntry(t *testing.T) {
	s := finishedSession(t)
	records := s.Ledger().Records()[:1]

	result := NewEvalHarness(DefaultEvalConfig()).Run(s.Report(), records)
	if result.Passed {
		t.Fatal("expected fail when a paid bridge has no ledger entry")
	}
}

func TestEvalFailsOnOverspend(t *testing.T) {
	s := finishedSession(t)
	report := s.Report()
	report.Summary.BudgetSpent = report.Configuration.LiabilityCap + 1

	result := NewEvalHarness(DefaultEvalConfig()).Run(report, s.Ledger().Records())
	if result.Passed {
		t.Fatal("expected fail on overspend")
	}
}

func TestEvalFailsOnDecisionAfterFin(t *testing.T) {
	report := governor.Report{
		Configuration: governor.ReportConfig{RevisionRounds: 1, LiabilityCap: 10},
		Transactions: []governor.Transaction{
			{Sequence: 1, Action: governor.ActionFin},
			{Sequence: 2, Action: governor.ActionTransmit},
		},
	}
	result := NewEvalHarness(DefaultEvalConfig()).Run(report, nil)
	if result.Passed {
		t.Fatal("expected fail on decision after FIN")
	}
}

func TestEvalEmptyLedgerPasses(t *testing.T) {
	result := NewEvalHarness(DefaultEvalConfig()).Run(governor.Report{}, []ledger.Record{})
	if !result.Passed {
		t.Fatalf("expected pass on empty session, got %s", result.Reason)
	}
}
