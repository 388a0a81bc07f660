package ledger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// #region helpers
func fixedClock() func() time.Time {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func keyframe() Keyframe {
	return Keyframe{
		SessionID:        "s-1",
		ConstraintDigest: Digest([]byte("Silicon Validation Mode: Strict.")),
		OriginDigest:     Digest([]byte("origin")),
		T1:               0.10,
		T2:               0.30,
		LiabilityCap:     100,
	}
}

func sampleLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New(WithClock(fixedClock()))
	ctx := context.Background()
	if _, err := l.Append(ctx, keyframe()); err != nil {
		t.Fatalf("append keyframe: %v", err)
	}
	d, r := 0.20, 0.04
	bridge := DeltaBridge{
		Sequence:        1,
		CandidateDigest: Digest([]byte("candidate")),
		Zone:            "yellow",
		Deviation:       &d,
		Residual:        &r,
		Struts:          []Strut{{Deviation: "uses heuristic", Clause: "C1"}},
		Falsifiability:  "fails if the monitor reports drift",
		Cost:            3,
	}
	ret := DeltaReturn{Sequence: 1, Lambda: 0.25, DriftBefore: 0.4, DriftAfter: 0.3, Target: "origin"}
	if _, err := l.Append(ctx, bridge, ret); err != nil {
		t.Fatalf("append bridge: %v", err)
	}
	return l
}

type failingSink struct{ calls int }

func (f *failingSink) Persist(ctx context.Context, records []Record) error {
	f.calls++
	return errors.New("disk full")
}

type recordingSink struct{ batches [][]Record }

func (r *recordingSink) Persist(ctx context.Context, records []Record) error {
	r.batches = append(r.batches, records)
	return nil
}

// #endregion helpers

// #region append-tests
func TestAppend_ChainsFromGenesis(t *testing.T) {
	l := sampleLedger(t)
	recs := l.Records()
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Kind != KindKeyframe || recs[1].Kind != KindDeltaBridge || recs[2].Kind != KindDeltaReturn {
		t.Fatalf("unexpected kinds: %s %s %s", recs[0].Kind, recs[1].Kind, recs[2].Kind)
	}
	want, err := chainDigest(recs[0].Body, GenesisDigest)
	if err != nil {
		t.Fatalf("chainDigest: %v", err)
	}
	if recs[0].Digest != want {
		t.Fatalf("keyframe digest not anchored at genesis")
	}
	if l.Head() != recs[2].Digest {
		t.Fatalf("head %s != last digest %s", l.Head(), recs[2].Digest)
	}
	if v := l.VerifyChain(); !v.Valid {
		t.Fatalf("expected valid chain, got %s", v)
	}
}

func TestAppend_FirstEntryMustBeKeyframe(t *testing.T) {
	l := New()
	_, err := l.Append(context.Background(), DeltaReturn{Lambda: 0.25})
	if !errors.Is(err, ErrNotKeyframe) {
		t.Fatalf("expected ErrNotKeyframe, got %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d", l.Len())
	}
}

func TestAppend_RejectsSecondKeyframe(t *testing.T) {
	l := sampleLedger(t)
	_, err := l.Append(context.Background(), keyframe())
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestAppend_ClosedLedger(t *testing.T) {
	l := sampleLedger(t)
	l.Close()
	if !l.Closed() {
		t.Fatal("expected closed")
	}
	_, err := l.Append(context.Background(), DeltaReturn{Lambda: 0.25})
	if !errors.Is(err, ErrLedgerClosed) {
		t.Fatalf("expected ErrLedgerClosed, got %v", err)
	}
	if l.Len() != 3 {
		t.Fatalf("closed ledger grew to %d", l.Len())
	}
}

func TestAppend_SinkFailureLeavesNoPartialWrite(t *testing.T) {
	sink := &failingSink{}
	l := New(WithSink(sink))
	_, err := l.Append(context.Background(), keyframe())
	if err == nil {
		t.Fatal("expected error from failing sink")
	}
	if l.Len() != 0 || l.Head() != GenesisDigest {
		t.Fatalf("partial write visible: len=%d head=%s", l.Len(), l.Head())
	}
	if sink.calls != 1 {
		t.Fatalf("expected 1 sink call, got %d", sink.calls)
	}
}

func TestAppend_SinkReceivesWholeBatch(t *testing.T) {
	sink := &recordingSink{}
	l := New(WithSink(sink))
	ctx := context.Background()
	l.Append(ctx, keyframe())
	l.Append(ctx, DeltaBridge{Sequence: 1}, DeltaReturn{Sequence: 1})
	if len(sink.batches) != 2 || len(sink.batches[1]) != 2 {
		t.Fatalf("unexpected batches: %d", len(sink.batches))
	}
}

func TestAppend_CanceledContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Append(ctx, keyframe()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if l.Len() != 0 {
		t.Fatal("canceled append was written")
	}
}

func TestRecords_ReturnsCopies(t *testing.T) {
	l := sampleLedger(t)
	recs := l.Records()
	recs[0].Body[0] = 'X'
	if v := l.VerifyChain(); !v.Valid {
		t.Fatalf("mutating a copy corrupted the ledger: %s", v)
	}
}

func TestAppend_ReturnsCopies(t *testing.T) {
	l := New(WithClock(fixedClock()))
	out, err := l.Append(context.Background(), keyframe())
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	out[0].Body[0] = 'X'
	if v := l.VerifyChain(); !v.Valid {
		t.Fatalf("mutating an appended record corrupted the ledger: %s", v)
	}
}

// #endregion append-tests

// #region decode-tests
func TestRecordEntry_RoundTripsTypedVariant(t *testing.T) {
	l := sampleLedger(t)
	recs := l.Records()

	e, err := recs[1].Entry()
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	b, ok := e.(DeltaBridge)
	if !ok {
		t.Fatalf("expected DeltaBridge, got %T", e)
	}
	if b.Residual == nil || *b.Residual != 0.04 {
		t.Fatalf("residual not preserved: %v", b.Residual)
	}
	at, err := recs[1].At()
	if err != nil || !at.Equal(fixedClock()()) {
		t.Fatalf("At = %v, %v", at, err)
	}
}

// #endregion decode-tests

// #region verify-tests
func TestVerifyStream_Valid(t *testing.T) {
	l := sampleLedger(t)
	var buf bytes.Buffer
	if _, err := l.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if v := VerifyStream(&buf); !v.Valid {
		t.Fatalf("expected valid, got %s", v)
	}
}

func TestVerifyStream_EveryByteFlipIsDetected(t *testing.T) {
	l := sampleLedger(t)
	var buf bytes.Buffer
	l.WriteTo(&buf)
	data := buf.Bytes()

	// entry index owning each byte
	owner := make([]uint64, len(data))
	var idx uint64
	for i, b := range data {
		owner[i] = idx
		if b == '\n' {
			idx++
		}
	}

	for i := range data {
		tampered := make([]byte, len(data))
		copy(tampered, data)
		tampered[i] ^= 0x01

		v := VerifyStream(bytes.NewReader(tampered))
		if v.Valid {
			t.Fatalf("flip at byte %d (entry %d) verified as valid", i, owner[i])
		}
		if v.CorruptAt < owner[i] {
			t.Fatalf("flip at byte %d (entry %d) reported at earlier position %d", i, owner[i], v.CorruptAt)
		}
	}
}

func TestVerifyChain_DetectsReorder(t *testing.T) {
	l := sampleLedger(t)
	recs := l.Records()
	recs[1], recs[2] = recs[2], recs[1]
	v := VerifyChain(recs)
	if v.Valid || v.CorruptAt != 1 {
		t.Fatalf("expected corrupt at 1, got %s", v)
	}
}

func TestVerifyChain_DetectsRemoval(t *testing.T) {
	l := sampleLedger(t)
	recs := l.Records()
	recs = append(recs[:1], recs[2:]...)
	v := VerifyChain(recs)
	if v.Valid || v.CorruptAt != 1 {
		t.Fatalf("expected corrupt at 1, got %s", v)
	}
}

func TestVerifyChain_EmptyLedger(t *testing.T) {
	if v := VerifyChain(nil); v.Valid {
		t.Fatal("empty ledger must not verify")
	}
}

func TestVerifyStream_Unterminated(t *testing.T) {
	l := sampleLedger(t)
	var buf bytes.Buffer
	l.WriteTo(&buf)
	s := strings.TrimSuffix(buf.String(), "\n")
	v := VerifyStream(strings.NewReader(s))
	if v.Valid || v.CorruptAt != 2 {
		t.Fatalf("expected corrupt at 2, got %s", v)
	}
}

// #endregion verify-tests
