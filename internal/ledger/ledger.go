package ledger

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// #region interfaces
// Sink persists records before they become visible in memory. A failing
// Sink aborts the whole append.
type Sink interface {
	Persist(ctx context.Context, records []Record) error
}

// Source loads a persisted copy of the chain for audit.
type Source interface {
	Load(ctx context.Context) ([]Record, error)
}

// Reader is the read-only view handed to everyone except the session owner.
type Reader interface {
	Len() int
	Head() string
	Records() []Record
	Closed() bool
	VerifyChain() Verdict
	WriteTo(w io.Writer) (int64, error)
}

// #endregion interfaces

// #region ledger
// Ledger is an append-only, hash-chained record sequence. It has no update
// or delete operation.
type Ledger struct {
	mu      sync.RWMutex
	records []Record
	closed  bool
	sink    Sink
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSink persists every append through s.
func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// #endregion ledger

// #region append
// Append chains entries onto the ledger. Either every entry is appended or
// none is: the sink is called once with the whole batch and memory is only
// updated after it succeeds.
func (l *Ledger) Append(ctx context.Context, entries ...Entry) ([]Record, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyAppend
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLedgerClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prev := l.headLocked()
	base := uint64(len(l.records))
	at := l.now()
	pending := make([]Record, 0, len(entries))
	for i, e := range entries {
		pos := base + uint64(i)
		if pos == 0 && e.Kind() != KindKeyframe {
			return nil, ErrNotKeyframe
		}
		if pos > 0 && e.Kind() == KindKeyframe {
			return nil, fmt.Errorf("%w: keyframe at position %d", ErrMalformedRecord, pos)
		}
		rec, err := encodeRecord(pos, prev, at, e)
		if err != nil {
			return nil, err
		}
		pending = append(pending, rec)
		prev = rec.Digest
	}

	if l.sink != nil {
		if err := l.sink.Persist(ctx, pending); err != nil {
			return nil, fmt.Errorf("persist: %w", err)
		}
	}

	l.records = append(l.records, pending...)
	return cloneRecords(pending), nil
}

// #endregion append

// #region close
// Close finalizes closure. Later appends fail with ErrLedgerClosed.
func (l *Ledger) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// Closed reports whether closure has been finalized.
func (l *Ledger) Closed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// #endregion close

// #region read
// Len returns the number of appended records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Head returns the digest of the last record, or GenesisDigest when empty.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headLocked()
}

func (l *Ledger) headLocked() string {
	if len(l.records) == 0 {
		return GenesisDigest
	}
	return l.records[len(l.records)-1].Digest
}

// Records returns a copy of all records in position order.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneRecords(l.records)
}

// cloneRecords copies records and their bodies.
func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		rec.Body = append([]byte(nil), rec.Body...)
		out[i] = rec
	}
	return out
}

// VerifyChain verifies the in-memory records.
func (l *Ledger) VerifyChain() Verdict {
	return VerifyChain(l.Records())
}

// WriteTo serializes the ledger in stream format.
func (l *Ledger) WriteTo(w io.Writer) (int64, error) {
	return WriteStream(w, l.Records())
}

// #endregion read
