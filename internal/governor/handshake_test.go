package governor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/relax"
)

func TestHandshake_ReachesSolvent(t *testing.T) {
	script := auditor.NewScripted()
	s, err := NewSession(script, script, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())

	ctx := context.Background()
	require.NoError(t, s.Propose(ctx, SYN{ConstraintField: constraintText, SolvencyBid: 100}))
	assert.Equal(t, StateProposed, s.State())
	assert.Equal(t, 0, s.Ledger().Len())

	require.NoError(t, s.Quote(ctx, SYNACK{ThermodynamicCost: 2, LiabilityAssessment: "high"}))
	assert.Equal(t, StateQuoted, s.State())
	t1, t2 := s.Thresholds()
	assert.InDelta(t, 0.05, t1, 1e-12)
	assert.InDelta(t, 0.15, t2, 1e-12)

	require.NoError(t, s.Confirm(ctx))
	assert.Equal(t, StateSolvent, s.State())
	assert.InDelta(t, 50, s.Remaining(), 1e-12)

	recs := s.Ledger().Records()
	require.Len(t, recs, 1)
	assert.Equal(t, ledger.KindKeyframe, recs[0].Kind)
	entry, err := recs[0].Entry()
	require.NoError(t, err)
	kf, ok := entry.(ledger.Keyframe)
	require.True(t, ok)
	assert.Equal(t, s.ID(), kf.SessionID)
	assert.Equal(t, ledger.Digest([]byte(constraintText)), kf.ConstraintDigest)
	assert.InDelta(t, 50, kf.LiabilityCap, 1e-12)
}

func TestHandshake_OutOfOrderIsViolation(t *testing.T) {
	script := auditor.NewScripted()
	s, err := NewSession(script, script, DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, s.Quote(ctx, SYNACK{ThermodynamicCost: 1}), ErrProtocolViolation)
	assert.ErrorIs(t, s.Confirm(ctx), ErrProtocolViolation)
	_, err = s.Submit(ctx, Submission{Candidate: Candidate{Sequence: 1, Payload: "x"}})
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.Propose(ctx, SYN{ConstraintField: constraintText, SolvencyBid: 10}))
	assert.ErrorIs(t, s.Propose(ctx, SYN{ConstraintField: constraintText, SolvencyBid: 10}), ErrProtocolViolation)
	assert.Equal(t, StateProposed, s.State())
}

func TestPropose_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		syn  SYN
	}{
		{"empty constraint", SYN{ConstraintField: "   ", SolvencyBid: 10}},
		{"punctuation only", SYN{ConstraintField: "...", SolvencyBid: 10}},
		{"zero bid", SYN{ConstraintField: constraintText, SolvencyBid: 0}},
		{"negative bid", SYN{ConstraintField: constraintText, SolvencyBid: -1}},
		{"infinite bid", SYN{ConstraintField: constraintText, SolvencyBid: math.Inf(1)}},
		{"nan bid", SYN{ConstraintField: constraintText, SolvencyBid: math.NaN()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			script := auditor.NewScripted()
			s, err := NewSession(script, script, DefaultConfig())
			require.NoError(t, err)
			assert.ErrorIs(t, s.Propose(context.Background(), tc.syn), ErrInvalidProposal)
			assert.Equal(t, StateIdle, s.State())
		})
	}
}

func TestPropose_UnresolvableConstraint(t *testing.T) {
	script := auditor.NewScripted()
	script.Fail(constraintText, auditor.ErrUnresolvable)
	s, err := NewSession(script, script, DefaultConfig())
	require.NoError(t, err)
	err = s.Propose(context.Background(), SYN{ConstraintField: constraintText, SolvencyBid: 10})
	assert.ErrorIs(t, err, ErrInvalidProposal)
	assert.Equal(t, StateIdle, s.State())
}

func TestQuote_RejectsBadCost(t *testing.T) {
	for _, cost := range []float64{0, -1, math.Inf(1), math.NaN()} {
		script := auditor.NewScripted()
		s, err := NewSession(script, script, DefaultConfig())
		require.NoError(t, err)
		ctx := context.Background()
		require.NoError(t, s.Propose(ctx, SYN{ConstraintField: constraintText, SolvencyBid: 10}))
		assert.ErrorIs(t, s.Quote(ctx, SYNACK{ThermodynamicCost: cost}), ErrInvalidQuote, "cost %v", cost)
		assert.Equal(t, StateProposed, s.State())
	}
}

func TestQuote_MaxLiabilityCapsBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLiability = 30
	script := auditor.NewScripted()
	s := openSession(t, cfg, script, script, 100)
	assert.InDelta(t, 30, s.Remaining(), 1e-12)
}

func TestLiabilityMultiplier(t *testing.T) {
	tests := map[string]float64{
		"":                1.0,
		"standard":        1.0,
		"Low risk":        1.0,
		"moderate":        0.75,
		"MEDIUM exposure": 0.75,
		"high":            0.5,
		"critical":        0.25,
		"something else":  1.0,
		"high-risk":       0.5,
		"Critical.":       0.25,
		"highly unusual":  1.0,
		"mediumship":      1.0,
	}
	for in, want := range tests {
		assert.Equal(t, want, LiabilityMultiplier(in), in)
	}
}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		d    float64
		want Zone
	}{
		{0, ZoneGreen},
		{0.10, ZoneGreen},
		{0.1000001, ZoneYellow},
		{0.30, ZoneYellow},
		{0.3000001, ZoneRed},
		{5, ZoneRed},
		{math.NaN(), ZoneRed},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Classify(tc.d, 0.10, 0.30), "d=%v", tc.d)
	}
}

func TestState_Transitions(t *testing.T) {
	assert.True(t, StateIdle.CanTransitionTo(StateProposed))
	assert.True(t, StateSolvent.CanTransitionTo(StateSolvent))
	assert.True(t, StateQuoted.CanTransitionTo(StateFin))
	assert.False(t, StateIdle.CanTransitionTo(StateSolvent))
	assert.False(t, StateFin.CanTransitionTo(StateIdle))
	assert.True(t, StateFin.IsTerminal())
	assert.False(t, StateSolvent.IsTerminal())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	rc := relax.DefaultConfig()
	assert.Equal(t, rc.Lambda, DefaultConfig().ReturnLambda)
	assert.Equal(t, rc.HysteresisBound, DefaultConfig().HysteresisBound)

	tests := map[string]func(*Config){
		"inverted thresholds": func(c *Config) { c.GreenThreshold, c.RedThreshold = 0.5, 0.1 },
		"negative rounds":     func(c *Config) { c.RevisionRounds = -1 },
		"negative cost":       func(c *Config) { c.BridgeCost = -1 },
		"zero micro struts":   func(c *Config) { c.MicroMinStruts = 0 },
		"max below full":      func(c *Config) { c.MaxStruts = 2 },
		"lambda zero":         func(c *Config) { c.ReturnLambda = 0 },
		"gain above one":      func(c *Config) { c.DriftGain = 1.5 },
		"zero timeout":        func(c *Config) { c.AuditorTimeout = 0 },
		"unknown busy policy": func(c *Config) { c.BusyPolicy = "drop" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestClose_IsTerminal(t *testing.T) {
	script := auditor.NewScripted()
	s := scriptedSession(t, DefaultConfig(), script)
	ctx := context.Background()

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, StateFin, s.State())
	assert.Equal(t, FinClosed, s.FinReason())
	assert.True(t, s.Ledger().Closed())
	assert.False(t, s.Snapshot().ClosedAt.IsZero())

	require.NoError(t, s.Close(ctx))
	_, err := s.Submit(ctx, Submission{Candidate: Candidate{Sequence: 1, Payload: "late"}})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.Propose(ctx, SYN{ConstraintField: constraintText, SolvencyBid: 1}), ErrSessionClosed)
}

func TestAudit_DetectsTamperedArchive(t *testing.T) {
	script := auditor.NewScripted()
	sink := &memSink{}
	s := scriptedSession(t, DefaultConfig(), script, WithSinkFactory(func(string) ledger.Sink { return sink }))
	ctx := context.Background()

	require.NoError(t, s.Audit(ctx))
	assert.Equal(t, StateSolvent, s.State())

	sink.tamper(0, 10)
	err := s.Audit(ctx)
	assert.ErrorIs(t, err, ErrLedgerIntegrity)
	assert.Equal(t, StateFin, s.State())
	assert.Equal(t, FinLedgerIntegrity, s.FinReason())
}

func TestConfirm_SinkFailureLeavesQuoted(t *testing.T) {
	script := auditor.NewScripted()
	sink := &memSink{fail: assert.AnError}
	s, err := NewSession(script, script, DefaultConfig(),
		WithSinkFactory(func(string) ledger.Sink { return sink }),
		WithClock(func() time.Time { return time.Unix(1700000000, 0).UTC() }),
	)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Propose(ctx, SYN{ConstraintField: constraintText, SolvencyBid: 10}))
	require.NoError(t, s.Quote(ctx, SYNACK{ThermodynamicCost: 1}))

	assert.ErrorIs(t, s.Confirm(ctx), assert.AnError)
	assert.Equal(t, StateQuoted, s.State())
	assert.Equal(t, 0, s.Ledger().Len())

	sink.mu.Lock()
	sink.fail = nil
	sink.mu.Unlock()
	require.NoError(t, s.Confirm(ctx))
	assert.Equal(t, StateSolvent, s.State())
}
