package governor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/budget"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/verifier"
)

// #region liability-tiers
// liabilityTiers scale the bid into a liability cap. The first tier whose
// keyword appears as a word of the assessment wins; unmatched text is standard.
var liabilityTiers = []struct {
	keyword    string
	multiplier float64
}{
	{"critical", 0.25},
	{"high", 0.5},
	{"moderate", 0.75},
	{"medium", 0.75},
	{"low", 1.0},
	{"standard", 1.0},
}

// LiabilityMultiplier returns the cap multiplier for an assessment.
func LiabilityMultiplier(assessment string) float64 {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(assessment), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		words[w] = true
	}
	for _, tier := range liabilityTiers {
		if words[tier.keyword] {
			return tier.multiplier
		}
	}
	return 1.0
}

// #endregion liability-tiers

// #region propose
// Propose handles SYN: IDLE -> PROPOSED. The constraint field is resolved
// into the origin representation that Confirm commits.
func (s *Session) Propose(ctx context.Context, syn SYN) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.expect(StateIdle, "propose"); err != nil {
		return err
	}
	if strings.TrimSpace(syn.ConstraintField) == "" {
		return fmt.Errorf("%w: empty constraint field", ErrInvalidProposal)
	}
	if !(syn.SolvencyBid > 0) || math.IsInf(syn.SolvencyBid, 0) {
		return fmt.Errorf("%w: bid %v must be positive and finite", ErrInvalidProposal, syn.SolvencyBid)
	}
	constraint := verifier.ParseConstraint(syn.ConstraintField)
	if len(constraint.Clauses) == 0 {
		return fmt.Errorf("%w: constraint field has no clauses", ErrInvalidProposal)
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
	origin, err := s.resolver.Resolve(rctx, syn.ConstraintField)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: resolve constraint: %v", ErrInvalidProposal, err)
	}
	if len(origin) == 0 {
		return fmt.Errorf("%w: empty origin representation", ErrInvalidProposal)
	}

	s.commit(func() {
		s.constraint = constraint
		s.constraintDigest = ledger.Digest([]byte(syn.ConstraintField))
		s.bid = syn.SolvencyBid
		s.origin = origin.Clone()
		s.state = StateProposed
	})
	s.logger.Info("session proposed",
		zap.Int("clauses", len(constraint.Clauses)),
		zap.Float64("bid", syn.SolvencyBid),
	)
	return nil
}

// #endregion propose

// #region quote
// Quote handles SYN-ACK: PROPOSED -> QUOTED. Thresholds are the base
// thresholds divided by the thermodynamic cost.
func (s *Session) Quote(ctx context.Context, ack SYNACK) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.expect(StateProposed, "quote"); err != nil {
		return err
	}
	cost := ack.ThermodynamicCost
	if !(cost > 0) || math.IsInf(cost, 0) {
		return fmt.Errorf("%w: thermodynamic cost %v must be positive and finite", ErrInvalidQuote, cost)
	}

	t1 := s.cfg.GreenThreshold / cost
	t2 := s.cfg.RedThreshold / cost
	capacity := s.bid * LiabilityMultiplier(ack.LiabilityAssessment)
	if s.cfg.MaxLiability > 0 && capacity > s.cfg.MaxLiability {
		capacity = s.cfg.MaxLiability
	}

	s.commit(func() {
		s.t1, s.t2 = t1, t2
		s.liabilityCap = capacity
		s.costs = zoneCosts{
			green:      s.cfg.GreenCost,
			bridge:     s.cfg.BridgeCost,
			fullBridge: s.cfg.FullBridgeCost,
		}
		s.state = StateQuoted
	})
	s.logger.Info("session quoted",
		zap.Float64("t1", t1),
		zap.Float64("t2", t2),
		zap.Float64("liability_cap", capacity),
		zap.String("assessment", ack.LiabilityAssessment),
	)
	return nil
}

// #endregion quote

// #region confirm
// Confirm handles ACK: QUOTED -> SOLVENT. The origin and constraint digest
// are committed in the initial Keyframe.
func (s *Session) Confirm(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.expect(StateQuoted, "confirm"); err != nil {
		return err
	}
	b, err := budget.New(s.liabilityCap)
	if err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	b.OnWarning(func(w budget.Warning) {
		s.logger.Warn("budget nearly spent",
			zap.Float64("spent", w.Spent),
			zap.Float64("capacity", w.Capacity),
			zap.Float64("ratio", w.Ratio),
		)
	})

	kf := ledger.Keyframe{
		SessionID:        s.id,
		ConstraintDigest: s.constraintDigest,
		OriginDigest:     representationDigest(s.origin),
		T1:               s.t1,
		T2:               s.t2,
		LiabilityCap:     s.liabilityCap,
	}
	if _, err := s.ledger.Append(ctx, kf); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("confirm: write keyframe: %w", err)
	}

	s.commit(func() {
		s.budget = b
		s.drift = s.origin.Clone()
		s.state = StateSolvent
	})
	s.logger.Info("session solvent", zap.String("head", s.ledger.Head()))
	return nil
}

// #endregion confirm

// expect checks the lifecycle state before a transition.
func (s *Session) expect(want State, op string) error {
	if s.state == StateFin {
		return ErrSessionClosed
	}
	if s.state != want {
		return fmt.Errorf("%w: %s in state %s", ErrProtocolViolation, op, s.state)
	}
	return nil
}

// representationDigest hashes the IEEE-754 bits of r.
func representationDigest(r auditor.Representation) string {
	buf := make([]byte, 8*len(r))
	for i, v := range r {
		binary.BigEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return ledger.Digest(buf)
}
