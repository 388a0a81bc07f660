// Package governor implements the solvency transport session: handshake,
// candidate scoring, reconciliation and termination.
package governor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/budget"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/telemetry"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/verifier"
)

// #region session
// Session is one governed exchange. Mutating calls are serialized by a
// weighted semaphore; readers take mu.
type Session struct {
	id       string
	cfg      Config
	resolver auditor.Resolver
	auditor  auditor.Auditor
	source   ArtifactSource
	recorder Recorder
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	sinkFn   func(sessionID string) ledger.Sink
	sink     ledger.Sink
	now      func() time.Time
	sem      *semaphore.Weighted

	mu               sync.RWMutex
	state            State
	finReason        FinReason
	constraint       verifier.Constraint
	constraintDigest string
	bid              float64
	origin           auditor.Representation
	t1, t2           float64
	liabilityCap     float64
	costs            zoneCosts
	ledger           *ledger.Ledger
	budget           *budget.Ledger
	drift            auditor.Representation
	lastSeq          uint64
	pending          *pending
	scores           map[string]float64
	history          []Transaction
	createdAt        time.Time
	closedAt         time.Time
}

// zoneCosts are the per-zone charges fixed at quote time.
type zoneCosts struct {
	green      float64
	bridge     float64
	fullBridge float64
}

// pending is a Yellow or Red candidate awaiting reconciliation.
type pending struct {
	seq           uint64
	pred          uint64
	payload       string
	payloadDigest string
	zone          Zone
	score         scoring
	attempts      int
	lastRejection *BridgeRejectedError
}

// Option configures a Session.
type Option func(*Session)

// WithArtifactSource consults src when a submission carries no artifact.
func WithArtifactSource(src ArtifactSource) Option {
	return func(s *Session) { s.source = src }
}

// WithRecorder sends a provenance record for every decision to r.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records decisions on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithSinkFactory persists ledger appends through the sink built for the
// session ID.
func WithSinkFactory(fn func(sessionID string) ledger.Sink) Option {
	return func(s *Session) { s.sinkFn = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithID fixes the session ID instead of generating one.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// NewSession creates an IDLE session.
func NewSession(resolver auditor.Resolver, aud auditor.Auditor, cfg Config, opts ...Option) (*Session, error) {
	if resolver == nil || aud == nil {
		return nil, fmt.Errorf("new session: resolver and auditor are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	s := &Session{
		cfg:      cfg,
		resolver: resolver,
		auditor:  aud,
		logger:   zap.NewNop(),
		now:      time.Now,
		sem:      semaphore.NewWeighted(1),
		state:    StateIdle,
		scores:   make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	s.createdAt = s.now()

	lopts := []ledger.Option{ledger.WithClock(s.now)}
	if s.sinkFn != nil {
		s.sink = s.sinkFn(s.id)
		lopts = append(lopts, ledger.WithSink(s.sink))
	}
	s.ledger = ledger.New(lopts...)
	return s, nil
}

// #endregion session

// #region concurrency
// acquire serializes mutating calls according to the busy policy.
func (s *Session) acquire(ctx context.Context) (func(), error) {
	if s.cfg.BusyPolicy == BusyFail {
		if !s.sem.TryAcquire(1) {
			return nil, ErrSessionBusy
		}
	} else if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.sem.Release(1) }, nil
}

// commit applies fn under the write lock.
func (s *Session) commit(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
}

// #endregion concurrency

// #region accessors
// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// FinReason returns the reason of a FIN, or "" before one.
func (s *Session) FinReason() FinReason {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finReason
}

// Ledger returns the read-only ledger view.
func (s *Session) Ledger() ledger.Reader { return s.ledger }

// Thresholds returns T1 and T2; both are zero before the quote.
func (s *Session) Thresholds() (t1, t2 float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t1, s.t2
}

// Remaining returns the unspent budget; zero before confirmation.
func (s *Session) Remaining() float64 {
	s.mu.RLock()
	b := s.budget
	s.mu.RUnlock()
	if b == nil {
		return 0
	}
	return b.Remaining()
}

// Snapshot returns a copy of the session bookkeeping.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:               s.id,
		State:            s.state,
		FinReason:        s.finReason,
		Constraint:       s.constraint.Text,
		ConstraintDigest: s.constraintDigest,
		T1:               s.t1,
		T2:               s.t2,
		LiabilityCap:     s.liabilityCap,
		LastSequence:     s.lastSeq,
		LedgerLen:        s.ledger.Len(),
		Head:             s.ledger.Head(),
		CreatedAt:        s.createdAt,
		ClosedAt:         s.closedAt,
	}
	if s.budget != nil {
		snap.LiabilityCap = s.budget.Capacity()
		snap.Spent = s.budget.Spent()
		snap.Remaining = s.budget.Remaining()
	}
	return snap
}

// #endregion accessors

// #region termination
// Close terminates the session. Closing a FIN session is a no-op.
func (s *Session) Close(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	if s.state == StateFin {
		return nil
	}
	s.fin(ctx, FinClosed, s.lastSeq, "")
	return nil
}

// Audit verifies the in-memory chain and, when the sink can load it, the
// persisted chain. Corruption forces FIN with FinLedgerIntegrity.
func (s *Session) Audit(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if s.ledger.Len() == 0 {
		return nil
	}
	if v := s.ledger.VerifyChain(); !v.Valid {
		return s.integrityFailure(ctx, "memory", v.String())
	}

	src, ok := s.sink.(ledger.Source)
	if !ok {
		return nil
	}
	records, err := src.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audit: load persisted chain: %w", err)
	}
	if v := ledger.VerifyChain(records); !v.Valid {
		return s.integrityFailure(ctx, "persisted", v.String())
	}
	if len(records) != s.ledger.Len() || records[len(records)-1].Digest != s.ledger.Head() {
		return s.integrityFailure(ctx, "persisted", "head does not match memory")
	}
	return nil
}

func (s *Session) integrityFailure(ctx context.Context, copyName, detail string) error {
	s.logger.Error("ledger integrity violation",
		zap.String("copy", copyName),
		zap.String("detail", detail),
	)
	if s.state != StateFin {
		s.fin(ctx, FinLedgerIntegrity, s.lastSeq, "")
	}
	return fmt.Errorf("%w: %s chain %s", ErrLedgerIntegrity, copyName, detail)
}

// fin moves the session to FIN and finalizes ledger closure.
func (s *Session) fin(ctx context.Context, reason FinReason, seq uint64, zone Zone) Decision {
	s.commit(func() {
		s.state = StateFin
		s.finReason = reason
		s.pending = nil
		s.closedAt = s.now()
	})
	s.ledger.Close()
	s.metrics.RecordFin(ctx, string(reason))
	s.logger.Info("session fin",
		zap.String("reason", string(reason)),
		zap.Uint64("sequence", seq),
		zap.Int("ledger_len", s.ledger.Len()),
	)
	return Decision{Action: ActionFin, Sequence: seq, Zone: zone, FinReason: reason}
}

// #endregion termination
