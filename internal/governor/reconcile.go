package governor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/relax"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/verifier"
)

// #region policy
// policyFor returns the bridge kind and verifier policy for a zone.
func (s *Session) policyFor(zone Zone) verifier.Policy {
	if zone == ZoneYellow {
		return verifier.MicroPolicy(s.cfg.MicroMinStruts, s.cfg.MaxStruts, s.cfg.RequireRescore, s.t1)
	}
	return verifier.FullPolicy(s.cfg.FullMinStruts, s.cfg.MaxStruts, s.cfg.RequireRescore, s.t1)
}

// roundsAllowed is the number of revisions a zone permits after the
// initial attempt.
func (s *Session) roundsAllowed(zone Zone) int {
	if zone == ZoneYellow {
		return s.cfg.RevisionRounds
	}
	return s.cfg.redRounds()
}

func (s *Session) bridgeCost(zone Zone) float64 {
	if zone == ZoneYellow {
		return s.costs.bridge
	}
	return s.costs.fullBridge
}

// #endregion policy

// #region reconcile
// reconcile runs one artifact attempt for p. Pending state is only written
// back when the call produces a decision.
func (s *Session) reconcile(ctx context.Context, sub Submission, p pending) (Decision, error) {
	policy := s.policyFor(p.zone)
	allowed := s.roundsAllowed(p.zone)

	artifact := sub.Artifact
	if artifact == nil && s.source != nil {
		a, err := s.pullArtifact(ctx, p, policy, allowed+1-p.attempts)
		if err != nil {
			return Decision{}, err
		}
		artifact = a
	}

	var rejection *BridgeRejectedError
	if artifact == nil {
		rejection = &BridgeRejectedError{Reason: ReasonNoArtifact, Detail: "no artifact supplied"}
	} else {
		res := verifier.Verify(ctx, *artifact, s.constraint, policy, s.rescore)
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}
		if res.Accepted {
			return s.acceptBridge(ctx, p, policy.Kind, *artifact, res)
		}
		rejection = &BridgeRejectedError{Reason: res.Reason, Detail: res.Detail}
	}

	s.metrics.RecordBridge(ctx, string(policy.Kind), false, string(rejection.Reason))
	s.logger.Info("bridge rejected",
		zap.Uint64("sequence", p.seq),
		zap.String("bridge", string(policy.Kind)),
		zap.String("reason", string(rejection.Reason)),
		zap.String("detail", rejection.Detail),
	)

	p.attempts++
	p.lastRejection = rejection
	if p.attempts > allowed {
		escalated := p.zone == ZoneYellow
		if escalated {
			s.logger.Info("micro-bridge rounds exhausted, escalating to red", zap.Uint64("sequence", p.seq))
		}
		d := s.fin(ctx, FinUnbridgeable, p.seq, ZoneRed)
		d.Deviation = p.score.deviation
		d.ScoreAvailable = p.score.available
		d.Rejection = rejection
		d.Escalated = escalated
		d.Attempts = p.attempts
		return d, nil
	}

	s.commit(func() { s.pending = &p })
	return Decision{
		Action:          ActionNack,
		Sequence:        p.seq,
		Zone:            p.zone,
		Deviation:       p.score.deviation,
		ScoreAvailable:  p.score.available,
		Bridge:          policy.Kind,
		RoundsRemaining: allowed + 1 - p.attempts,
		Rejection:       rejection,
		Attempts:        p.attempts,
	}, nil
}

// pullArtifact asks the artifact source for a bridge. A timeout or a failure
// of the source consumes the round; only parent cancellation is an error.
func (s *Session) pullArtifact(ctx context.Context, p pending, policy verifier.Policy, remaining int) (*verifier.Artifact, error) {
	req := BridgeRequest{
		SessionID:       s.id,
		Candidate:       Candidate{Sequence: p.seq, Predecessor: p.pred, Payload: p.payload},
		Zone:            p.zone,
		Deviation:       p.score.deviation,
		ScoreAvailable:  p.score.available,
		Bridge:          policy.Kind,
		MinStruts:       policy.MinStruts,
		MaxStruts:       policy.MaxStruts,
		Clauses:         append([]verifier.Clause(nil), s.constraint.Clauses...),
		RoundsRemaining: remaining,
		Previous:        p.lastRejection,
	}
	actx, cancel := context.WithTimeout(ctx, s.cfg.ArtifactTimeout)
	defer cancel()
	a, err := s.source.ProposeArtifact(actx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("artifact source failed",
			zap.Uint64("sequence", p.seq),
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			zap.Error(err),
		)
		return nil, nil
	}
	return a, nil
}

// rescore measures a restatement against the origin for the verifier.
func (s *Session) rescore(ctx context.Context, restatement string) (float64, error) {
	_, d, err := s.measure(ctx, restatement)
	return d, err
}

// #endregion reconcile

// #region accept
// acceptBridge writes the DeltaBridge, and for Red a DeltaReturn when drift
// exceeds the hysteresis bound, as one append, then charges the budget.
func (s *Session) acceptBridge(ctx context.Context, p pending, kind verifier.BridgeKind, a verifier.Artifact, res verifier.Result) (Decision, error) {
	cost := s.bridgeCost(p.zone)
	if !s.budget.CanCharge(cost) {
		return s.fin(ctx, FinBudgetExhausted, p.seq, p.zone), nil
	}

	bridge := ledger.DeltaBridge{
		Sequence:        p.seq,
		Predecessor:     p.pred,
		CandidateDigest: p.payloadDigest,
		Zone:            string(p.zone),
		Residual:        res.Residual,
		Falsifiability:  a.Falsifiability,
		Cost:            cost,
		Rounds:          p.attempts + 1,
	}
	if p.score.available {
		d := p.score.deviation
		bridge.Deviation = &d
	}
	for _, st := range a.Struts {
		bridge.Struts = append(bridge.Struts, ledger.Strut{Deviation: st.Deviation, Clause: st.Clause})
	}
	entries := []ledger.Entry{bridge}

	drift := s.accumulate(p.score.rep)
	if p.zone == ZoneRed {
		step, ret, err := s.planReturn(p.seq, drift)
		if err != nil {
			s.logger.Warn("return step skipped", zap.Error(err))
		} else if ret != nil {
			entries = append(entries, *ret)
			drift = step.State
		}
	}

	records, err := s.ledger.Append(ctx, entries...)
	if err != nil {
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		return Decision{}, fmt.Errorf("append bridge: %w", err)
	}
	if err := s.budget.Charge(cost, fmt.Sprintf("%s bridge %d", kind, p.seq)); err != nil {
		return Decision{}, fmt.Errorf("charge bridge: %w", err)
	}

	positions := make([]uint64, len(records))
	for i, rec := range records {
		positions[i] = rec.Position
	}
	s.commit(func() {
		s.drift = drift
		s.lastSeq = p.seq
		s.pending = nil
	})
	s.metrics.RecordBridge(ctx, string(kind), true, "")
	s.metrics.RecordCharge(ctx, string(p.zone), cost)
	s.logger.Info("bridge accepted",
		zap.Uint64("sequence", p.seq),
		zap.String("bridge", string(kind)),
		zap.Int("rounds", p.attempts+1),
		zap.Uint64s("ledger_positions", positions),
	)
	return Decision{
		Action:          ActionTransmit,
		Sequence:        p.seq,
		Payload:         p.payload,
		Zone:            p.zone,
		Deviation:       p.score.deviation,
		ScoreAvailable:  p.score.available,
		Bridge:          kind,
		Attempts:        p.attempts + 1,
		Charged:         cost,
		Residual:        res.Residual,
		LedgerPositions: positions,
	}, nil
}

// planReturn builds a DeltaReturn when drift exceeds the hysteresis bound.
func (s *Session) planReturn(seq uint64, drift auditor.Representation) (relax.Step, *ledger.DeltaReturn, error) {
	step, err := relax.Plan(drift, s.origin, relax.Config{
		Lambda:          s.cfg.ReturnLambda,
		Gain:            s.cfg.DriftGain,
		HysteresisBound: s.cfg.HysteresisBound,
	})
	if err != nil {
		return relax.Step{}, nil, err
	}
	if step.Action != "relax" {
		return step, nil, nil
	}
	return step, &ledger.DeltaReturn{
		Sequence:    seq,
		Lambda:      s.cfg.ReturnLambda,
		DriftBefore: step.DriftBefore,
		DriftAfter:  step.DriftAfter,
		StateDigest: representationDigest(step.State),
		Target:      "origin",
	}, nil
}

// #endregion accept
