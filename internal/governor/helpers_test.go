package governor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/logging"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/verifier"
)

const constraintText = "Answer in English. Cite sources for factual claims. Stay within the medical domain."

func openSession(t *testing.T, cfg Config, r auditor.Resolver, a auditor.Auditor, bid float64, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(r, a, cfg, opts...)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Propose(ctx, SYN{ConstraintField: constraintText, SolvencyBid: bid}))
	require.NoError(t, s.Quote(ctx, SYNACK{ThermodynamicCost: 1, LiabilityAssessment: "standard"}))
	require.NoError(t, s.Confirm(ctx))
	return s
}

func scriptedSession(t *testing.T, cfg Config, script *auditor.Scripted, opts ...Option) *Session {
	t.Helper()
	return openSession(t, cfg, script, script, 100, opts...)
}

func microArtifact(restatement string) *verifier.Artifact {
	return &verifier.Artifact{
		Struts:         []verifier.Strut{{Deviation: "adds a dosage caveat", Clause: "C2"}},
		Falsifiability: "false if the cited source omits the dosage",
		Restatement:    restatement,
	}
}

func fullArtifact(restatement string) *verifier.Artifact {
	return &verifier.Artifact{
		Struts: []verifier.Strut{
			{Deviation: "switches register", Clause: "C1"},
			{Deviation: "adds citation", Clause: "cite sources"},
			{Deviation: "narrows to pharmacology", Clause: "medical domain"},
		},
		Falsifiability: "false if any claim lacks a source",
		Restatement:    restatement,
	}
}

func submit(t *testing.T, s *Session, seq, pred uint64, payload string, a *verifier.Artifact) Decision {
	t.Helper()
	d, err := s.Submit(context.Background(), Submission{
		Candidate: Candidate{Sequence: seq, Predecessor: pred, Payload: payload},
		Artifact:  a,
	})
	require.NoError(t, err)
	return d
}

// memSink keeps persisted records and can serve them back for audit.
type memSink struct {
	mu      sync.Mutex
	records []ledger.Record
	fail    error
}

func (m *memSink) Persist(ctx context.Context, records []ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	for _, r := range records {
		body := append([]byte(nil), r.Body...)
		r.Body = body
		m.records = append(m.records, r)
	}
	return nil
}

func (m *memSink) Load(ctx context.Context) ([]ledger.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *memSink) tamper(pos, offset int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body := append([]byte(nil), m.records[pos].Body...)
	body[offset] ^= 0x01
	m.records[pos].Body = body
}

// memRecorder collects provenance records.
type memRecorder struct {
	mu      sync.Mutex
	records []logging.DecisionRecord
}

func (m *memRecorder) RecordDecision(ctx context.Context, rec logging.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// artifactFunc adapts a function to ArtifactSource.
type artifactFunc func(ctx context.Context, req BridgeRequest) (*verifier.Artifact, error)

func (f artifactFunc) ProposeArtifact(ctx context.Context, req BridgeRequest) (*verifier.Artifact, error) {
	return f(ctx, req)
}

// blockingAuditor blocks every Score call until ctx is done or release is
// closed, after signalling entered.
func blockingAuditor(entered chan<- struct{}, release <-chan struct{}) auditor.Auditor {
	return auditor.AuditorFunc(func(ctx context.Context, origin, candidate auditor.Representation) (float64, error) {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-release:
			return 0.01, nil
		}
	})
}

// vectorResolver maps texts to fixed vectors; unknown texts resolve to fallback.
func vectorResolver(vectors map[string]auditor.Representation, fallback auditor.Representation) auditor.Resolver {
	return auditor.ResolverFunc(func(ctx context.Context, text string) (auditor.Representation, error) {
		if v, ok := vectors[text]; ok {
			return v.Clone(), nil
		}
		if fallback == nil {
			return nil, errors.New("unknown text")
		}
		return fallback.Clone(), nil
	})
}
