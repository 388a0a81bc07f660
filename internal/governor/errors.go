package governor

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/verifier"
)

// Protocol errors.
var (
	// ErrProtocolViolation is returned for a call made from the wrong state or
	// out of sequence. State is never mutated.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrSessionClosed is returned for any call on a FIN session.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionBusy is returned under BusyFail when a call is already in flight.
	ErrSessionBusy = errors.New("session busy")

	// ErrSessionNotFound is returned by Registry.Get.
	ErrSessionNotFound = errors.New("session not found")
)

// Upstream representation errors.
var (
	ErrInvalidProposal       = errors.New("invalid proposal")
	ErrInvalidQuote          = errors.New("invalid quote")
	ErrUnresolvableCandidate = errors.New("unresolvable candidate")
)

// Fatal session errors.
var (
	ErrBudgetExhausted = errors.New("budget exhausted")
	ErrLedgerIntegrity = errors.New("ledger integrity violation")
)

// ErrBridgeRejected matches any *BridgeRejectedError.
var ErrBridgeRejected = errors.New("bridge rejected")

// ReasonNoArtifact marks a round that ended without an artifact.
const ReasonNoArtifact verifier.Reason = "no_artifact"

// BridgeRejectedError carries the reason a reconciliation round failed.
type BridgeRejectedError struct {
	Reason verifier.Reason
	Detail string
}

func (e *BridgeRejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("bridge rejected: %s", e.Reason)
	}
	return fmt.Sprintf("bridge rejected: %s: %s", e.Reason, e.Detail)
}

func (e *BridgeRejectedError) Unwrap() error {
	return ErrBridgeRejected
}
