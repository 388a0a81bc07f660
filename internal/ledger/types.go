package ledger

import (
	"errors"
	"fmt"
	"time"
)

// #region errors
var (
	// ErrLedgerClosed is returned by Append once closure has been finalized.
	ErrLedgerClosed = errors.New("ledger closed")
	// ErrEmptyAppend is returned when Append is called without entries.
	ErrEmptyAppend = errors.New("append requires at least one entry")
	// ErrNotKeyframe is returned when the first entry of a ledger is not a Keyframe.
	ErrNotKeyframe = errors.New("first ledger entry must be a keyframe")
	// ErrMalformedRecord is returned when a serialized record cannot be decoded.
	ErrMalformedRecord = errors.New("malformed ledger record")
)

// #endregion errors

// #region kinds
// Kind tags the variant carried by a ledger entry.
type Kind string

const (
	KindKeyframe    Kind = "KEYFRAME_COMMIT"
	KindDeltaBridge Kind = "DELTA_BRIDGE"
	KindDeltaReturn Kind = "DELTA_RETURN"
)

// GenesisDigest anchors the chain: the prev digest of the initial Keyframe.
const GenesisDigest = "0000000000000000000000000000000000000000000000000000000000000000"

// #endregion kinds

// #region entries
// Entry is one of Keyframe, DeltaBridge or DeltaReturn.
type Entry interface {
	Kind() Kind
	isEntry()
}

// Keyframe commits the session origin and constraint text.
type Keyframe struct {
	SessionID        string  `json:"session_id"`
	ConstraintDigest string  `json:"constraint_digest"`
	OriginDigest     string  `json:"origin_digest"`
	T1               float64 `json:"t1"`
	T2               float64 `json:"t2"`
	LiabilityCap     float64 `json:"liability_cap"`
}

// Strut links one deviation to one constraint clause.
type Strut struct {
	Deviation string `json:"deviation"`
	Clause    string `json:"clause"`
}

// DeltaBridge records an accepted reconciliation.
type DeltaBridge struct {
	Sequence        uint64   `json:"sequence"`
	Predecessor     uint64   `json:"predecessor"`
	CandidateDigest string   `json:"candidate_digest"`
	Zone            string   `json:"zone"`
	Deviation       *float64 `json:"deviation"` // nil when no score was available
	Residual        *float64 `json:"residual"`  // deviation after acceptance
	Struts          []Strut  `json:"struts"`
	Falsifiability  string   `json:"falsifiability"`
	Cost            float64  `json:"cost"`
	Rounds          int      `json:"rounds"`
}

// DeltaReturn records one relaxation step of the drift state toward origin.
type DeltaReturn struct {
	Sequence    uint64  `json:"sequence"`
	Lambda      float64 `json:"lambda"`
	DriftBefore float64 `json:"drift_before"`
	DriftAfter  float64 `json:"drift_after"`
	StateDigest string  `json:"state_digest"`
	Target      string  `json:"target"`
}

func (Keyframe) Kind() Kind    { return KindKeyframe }
func (DeltaBridge) Kind() Kind { return KindDeltaBridge }
func (DeltaReturn) Kind() Kind { return KindDeltaReturn }

func (Keyframe) isEntry()    {}
func (DeltaBridge) isEntry() {}
func (DeltaReturn) isEntry() {}

// #endregion entries

// #region record
// Record is a serialized entry with its chain digest. Body holds the exact
// bytes that were hashed, so a Record can be verified without the Entry.
type Record struct {
	Position uint64
	Kind     Kind
	Body     []byte
	Digest   string
}

// envelope is the canonical body layout. Field order is fixed by the struct.
type envelope struct {
	Position uint64    `json:"position"`
	Kind     Kind      `json:"kind"`
	Prev     string    `json:"prev"`
	At       time.Time `json:"at"`
	Entry    any       `json:"entry"`
}

// #endregion record

// #region verdict
// Verdict is the outcome of verifying a chain.
type Verdict struct {
	Valid     bool
	CorruptAt uint64 // meaningful only when Valid is false
	Reason    string
}

func (v Verdict) String() string {
	if v.Valid {
		return "valid"
	}
	return fmt.Sprintf("corrupt at %d: %s", v.CorruptAt, v.Reason)
}

// #endregion verdict
