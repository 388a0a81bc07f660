package governor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/relax"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/telemetry"
)

// scoring is the auditor's view of one payload.
type scoring struct {
	deviation float64
	available bool
	zone      Zone
	rep       auditor.Representation // nil when the payload could not be resolved in time
}

// #region submit
// Submit evaluates one candidate and returns exactly one decision. A
// cancelled ctx returns ctx.Err() and leaves the session unchanged.
func (s *Session) Submit(ctx context.Context, sub Submission) (Decision, error) {
	start := s.now()
	release, err := s.acquire(ctx)
	if err != nil {
		return Decision{}, err
	}
	defer release()

	ctx, span := telemetry.StartSpan(ctx, "governor.submit", s.id)
	d, err := s.submit(ctx, sub)
	telemetry.EndSpan(span, err)
	if err != nil {
		return Decision{}, err
	}

	elapsed := s.now().Sub(start)
	s.metrics.RecordDecision(ctx, string(d.Action), string(d.Zone), elapsed)
	s.record(ctx, d, elapsed)
	return d, nil
}

func (s *Session) submit(ctx context.Context, sub Submission) (Decision, error) {
	switch s.state {
	case StateSolvent:
	case StateFin:
		return Decision{}, ErrSessionClosed
	default:
		return Decision{}, fmt.Errorf("%w: submit in state %s", ErrProtocolViolation, s.state)
	}
	c := sub.Candidate
	if err := s.checkSequence(c); err != nil {
		return Decision{}, err
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	if !s.budget.Solvent() {
		zone := Zone("")
		if s.pending != nil {
			zone = s.pending.zone
		}
		return s.fin(ctx, FinBudgetExhausted, c.Sequence, zone), nil
	}

	if s.pending != nil {
		return s.reconcile(ctx, sub, *s.pending)
	}

	sc, err := s.score(ctx, c.Payload)
	if err != nil {
		return Decision{}, err
	}
	if sc.zone == ZoneGreen {
		return s.transmitGreen(ctx, c, sc)
	}
	p := pending{
		seq:           c.Sequence,
		pred:          c.Predecessor,
		payload:       c.Payload,
		payloadDigest: ledger.Digest([]byte(c.Payload)),
		zone:          sc.zone,
		score:         sc,
	}
	s.logger.Debug("candidate requires reconciliation",
		zap.Uint64("sequence", c.Sequence),
		zap.String("zone", string(sc.zone)),
		zap.Float64("deviation", sc.deviation),
		zap.Bool("score_available", sc.available),
	)
	return s.reconcile(ctx, sub, p)
}

// checkSequence enforces candidate ordering. Revisions repeat the pending
// candidate; new candidates name the last transmitted sequence.
func (s *Session) checkSequence(c Candidate) error {
	if p := s.pending; p != nil {
		if c.Sequence != p.seq {
			return fmt.Errorf("%w: sequence %d submitted while %d awaits reconciliation", ErrProtocolViolation, c.Sequence, p.seq)
		}
		if c.Predecessor != p.pred || ledger.Digest([]byte(c.Payload)) != p.payloadDigest {
			return fmt.Errorf("%w: revision of %d must resubmit the pending candidate", ErrProtocolViolation, p.seq)
		}
		return nil
	}
	if c.Sequence <= s.lastSeq {
		return fmt.Errorf("%w: sequence %d not after %d", ErrProtocolViolation, c.Sequence, s.lastSeq)
	}
	if c.Predecessor != s.lastSeq {
		return fmt.Errorf("%w: predecessor %d, last transmitted %d", ErrProtocolViolation, c.Predecessor, s.lastSeq)
	}
	return nil
}

// #endregion submit

// #region scoring
// measure resolves text and scores it against the origin, each under its own
// deadline.
func (s *Session) measure(ctx context.Context, text string) (auditor.Representation, float64, error) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
	rep, err := s.resolver.Resolve(rctx, text)
	cancel()
	if err != nil {
		return nil, 0, fmt.Errorf("resolve: %w", err)
	}
	actx, cancel := context.WithTimeout(ctx, s.cfg.AuditorTimeout)
	d, err := s.auditor.Score(actx, s.origin, rep)
	cancel()
	if err != nil {
		return rep, 0, fmt.Errorf("score: %w", err)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return rep, 0, fmt.Errorf("score: auditor returned %v", d)
	}
	return rep, d, nil
}

// score classifies a payload. An unreachable or timed-out auditor yields Red
// with no score; a resolver that rejects the payload is an error.
func (s *Session) score(ctx context.Context, payload string) (scoring, error) {
	rep, d, err := s.measure(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return scoring{}, ctx.Err()
		}
		if rep == nil && !errors.Is(err, context.DeadlineExceeded) {
			return scoring{}, fmt.Errorf("%w: %v", ErrUnresolvableCandidate, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			s.metrics.RecordAuditorTimeout(ctx)
		}
		s.logger.Warn("auditor unavailable, classifying red", zap.Error(err))
		return scoring{zone: ZoneRed, rep: rep}, nil
	}

	if s.cfg.DissonanceWeight > 0 {
		d += s.cfg.DissonanceWeight * auditor.Dissonance(payload)
	}
	s.noteScore(payload, d)

	zone := Classify(d, s.t1, s.t2)
	s.metrics.RecordDeviation(ctx, string(zone), d)
	return scoring{deviation: d, available: true, zone: zone, rep: rep}, nil
}

// noteScore warns when the auditor scores identical payloads differently.
func (s *Session) noteScore(payload string, d float64) {
	key := ledger.Digest([]byte(payload))
	s.mu.Lock()
	prev, seen := s.scores[key]
	s.scores[key] = d
	s.mu.Unlock()
	if seen && prev != d {
		s.logger.Warn("auditor non-determinism",
			zap.String("payload_digest", key),
			zap.Float64("previous", prev),
			zap.Float64("current", d),
		)
	}
}

// #endregion scoring

// #region green
func (s *Session) transmitGreen(ctx context.Context, c Candidate, sc scoring) (Decision, error) {
	cost := s.costs.green
	if !s.budget.CanCharge(cost) {
		return s.fin(ctx, FinBudgetExhausted, c.Sequence, ZoneGreen), nil
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if err := s.budget.Charge(cost, fmt.Sprintf("transmit %d", c.Sequence)); err != nil {
		return Decision{}, fmt.Errorf("charge green: %w", err)
	}
	drift := s.accumulate(sc.rep)
	s.commit(func() {
		s.drift = drift
		s.lastSeq = c.Sequence
	})
	s.metrics.RecordCharge(ctx, string(ZoneGreen), cost)
	return Decision{
		Action:         ActionTransmit,
		Sequence:       c.Sequence,
		Payload:        c.Payload,
		Zone:           ZoneGreen,
		Deviation:      sc.deviation,
		ScoreAvailable: sc.available,
		Charged:        cost,
	}, nil
}

// #endregion green

// accumulate folds a transmitted representation into a copy of the drift state.
func (s *Session) accumulate(rep auditor.Representation) auditor.Representation {
	if rep == nil {
		return s.drift
	}
	next, err := relax.Accumulate(s.drift, rep, s.cfg.DriftGain)
	if err != nil {
		s.logger.Warn("drift accumulation skipped", zap.Error(err))
		return s.drift
	}
	return next
}
