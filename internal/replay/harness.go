package replay

import (
	"context"
	"fmt"
	"math"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/eval"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/governor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
)

// #region types
// StepResult captures the outcome of replaying one candidate.
type StepResult struct {
	Sequence uint64
	Action   string // "transmit" | "nack" | "fin" | "error"
	Zone     string
	Reason   string
	Expected FixtureExpectStep
	Match    bool
}

// ScenarioResult captures a replayed session.
type ScenarioResult struct {
	Name     string
	Steps    []StepResult
	Snapshot governor.Snapshot
	Report   governor.Report
	Records  []ledger.Record
	Eval     eval.EvalResult
	Failures []string // mismatches against the fixture expectations
}

// Passed reports whether every expectation held and the eval passed.
func (r ScenarioResult) Passed() bool {
	return len(r.Failures) == 0 && r.Eval.Passed
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	Scenarios  int
	Passed     int
	TotalSteps int
	Transmits  int
	Nacks      int
	Fins       int
	Errors     int
}

// Env carries the collaborators a replay runs with. The zero value replays
// fully in memory.
type Env struct {
	Resolver auditor.Resolver   // nil resolves with the scripted hash embedder
	Registry *governor.Registry // when set, every session is tracked
	Options  []governor.Option
}

// #endregion types

// #region replay
// Replay runs one scenario in memory with a scripted auditor. base is the
// policy the scenario's overrides are applied to.
func Replay(ctx context.Context, sc FixtureScenario, base governor.Config, opts ...governor.Option) (ScenarioResult, error) {
	return ReplayEnv(ctx, sc, base, Env{Options: opts})
}

// ReplayEnv is Replay with explicit collaborators. Scripted scores are keyed
// by hash-embedder vectors, so a remote resolver must serve the same embedder.
func ReplayEnv(ctx context.Context, sc FixtureScenario, base governor.Config, env Env) (ScenarioResult, error) {
	script := auditor.NewScripted()
	for _, st := range sc.Steps {
		if st.Score != nil {
			script.Set(st.Payload, *st.Score)
		}
		if st.Residual != nil && st.Artifact != nil {
			script.Set(st.Artifact.Restatement, *st.Residual)
		}
	}

	var resolver auditor.Resolver = script
	if env.Resolver != nil {
		resolver = env.Resolver
	}
	sess, err := governor.NewSession(resolver, script, sc.Config.Apply(base), env.Options...)
	if err != nil {
		return ScenarioResult{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	if env.Registry != nil {
		if err := env.Registry.Track(sess); err != nil {
			return ScenarioResult{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
	}
	cost := sc.Cost
	if cost == 0 {
		cost = 1
	}
	if err := sess.Propose(ctx, governor.SYN{ConstraintField: sc.Constraint, SolvencyBid: sc.Bid}); err != nil {
		return ScenarioResult{}, fmt.Errorf("scenario %s: propose: %w", sc.Name, err)
	}
	if err := sess.Quote(ctx, governor.SYNACK{ThermodynamicCost: cost, LiabilityAssessment: sc.Assessment}); err != nil {
		return ScenarioResult{}, fmt.Errorf("scenario %s: quote: %w", sc.Name, err)
	}
	if err := sess.Confirm(ctx); err != nil {
		return ScenarioResult{}, fmt.Errorf("scenario %s: confirm: %w", sc.Name, err)
	}

	res := ScenarioResult{Name: sc.Name}
	for i, st := range sc.Steps {
		d, err := sess.Submit(ctx, governor.Submission{
			Candidate: governor.Candidate{Sequence: st.Sequence, Predecessor: st.Predecessor, Payload: st.Payload},
			Artifact:  st.Artifact,
		})
		if err != nil && ctx.Err() != nil {
			return ScenarioResult{}, ctx.Err()
		}
		step := toStepResult(st, d, err)
		if !step.Match {
			res.Failures = append(res.Failures, fmt.Sprintf("step %d (seq %d): got %s/%s/%s, want %s/%s/%s",
				i+1, st.Sequence, step.Action, step.Zone, step.Reason,
				st.Expect.Action, st.Expect.Zone, st.Expect.Reason))
		}
		res.Steps = append(res.Steps, step)
	}

	res.Snapshot = sess.Snapshot()
	res.Report = sess.Report()
	res.Records = sess.Ledger().Records()
	res.Eval = eval.NewEvalHarness(eval.DefaultEvalConfig()).Run(res.Report, res.Records)
	res.Failures = append(res.Failures, checkFinal(sc.Expect, sess)...)
	return res, nil
}

// toStepResult compares a decision with the step's expectation. Empty
// expected fields match anything.
func toStepResult(st FixtureStep, d governor.Decision, err error) StepResult {
	r := StepResult{Sequence: st.Sequence, Expected: st.Expect}
	if err != nil {
		r.Action = "error"
		r.Reason = err.Error()
	} else {
		r.Action = string(d.Action)
		r.Zone = string(d.Zone)
		switch {
		case d.FinReason != "":
			r.Reason = string(d.FinReason)
		case d.Rejection != nil:
			r.Reason = string(d.Rejection.Reason)
		}
	}
	r.Match = matches(st.Expect.Action, r.Action) &&
		matches(st.Expect.Zone, r.Zone) &&
		matches(st.Expect.Reason, r.Reason)
	return r
}

func matches(want, got string) bool {
	return want == "" || want == got
}

func checkFinal(want FixtureExpectFinal, sess *governor.Session) []string {
	var out []string
	snap := sess.Snapshot()
	if want.State != "" && want.State != string(snap.State) {
		out = append(out, fmt.Sprintf("final state %s, want %s", snap.State, want.State))
	}
	if want.LedgerLen != nil && *want.LedgerLen != snap.LedgerLen {
		out = append(out, fmt.Sprintf("ledger length %d, want %d", snap.LedgerLen, *want.LedgerLen))
	}
	if want.Remaining != nil && math.Abs(*want.Remaining-snap.Remaining) > 1e-9 {
		out = append(out, fmt.Sprintf("remaining %.4f, want %.4f", snap.Remaining, *want.Remaining))
	}
	return out
}

// RunFixture replays every scenario of f.
func RunFixture(ctx context.Context, f *Fixture, base governor.Config, env Env) ([]ScenarioResult, error) {
	results := make([]ScenarioResult, 0, len(f.Scenarios))
	for _, sc := range f.Scenarios {
		r, err := ReplayEnv(ctx, sc, base, env)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ScenarioResult) ReplaySummary {
	s := ReplaySummary{Scenarios: len(results)}
	for _, r := range results {
		if r.Passed() {
			s.Passed++
		}
		for _, st := range r.Steps {
			s.TotalSteps++
			switch st.Action {
			case "transmit":
				s.Transmits++
			case "nack":
				s.Nacks++
			case "fin":
				s.Fins++
			case "error":
				s.Errors++
			}
		}
	}
	return s
}

// #endregion replay
