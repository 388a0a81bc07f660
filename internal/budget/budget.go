package budget

import (
	"errors"
	"math"
	"sync"
	"time"
)

// #region errors
var (
	// ErrInsufficientBudget is returned when a charge exceeds remaining capacity.
	// Callers route to FIN; they do not retry.
	ErrInsufficientBudget = errors.New("insufficient budget")
	// ErrInvalidAmount is returned for negative, NaN or infinite charges.
	ErrInvalidAmount = errors.New("invalid charge amount")
	// ErrInvalidCapacity is returned when the liability cap is not positive and finite.
	ErrInvalidCapacity = errors.New("invalid budget capacity")
)

// #endregion errors

// #region types
// WarningRatio is the utilization at which a warning is emitted once.
const WarningRatio = 0.8

// tolerance absorbs float rounding in spend totals, relative to capacity.
const tolerance = 1e-9

// Charge is one accepted debit.
type Charge struct {
	Amount float64
	Memo   string
	At     time.Time
}

// Warning is emitted the first time utilization crosses WarningRatio.
type Warning struct {
	Spent    float64
	Capacity float64
	Ratio    float64
}

// Ledger tracks cumulative spend against a liability cap. The spent total
// never decreases.
type Ledger struct {
	mu        sync.RWMutex
	capacity  float64
	spent     float64
	charges   []Charge
	onWarning func(Warning)
}

// #endregion types

// #region constructor
// New creates a budget ledger at full capacity.
func New(capacity float64) (*Ledger, error) {
	if capacity <= 0 || math.IsNaN(capacity) || math.IsInf(capacity, 0) {
		return nil, ErrInvalidCapacity
	}
	return &Ledger{capacity: capacity}, nil
}

// OnWarning registers fn to be called when utilization first crosses WarningRatio.
func (b *Ledger) OnWarning(fn func(Warning)) {
	b.mu.Lock()
	b.onWarning = fn
	b.mu.Unlock()
}

// #endregion constructor

// #region charge
// Charge debits amount. It fails with ErrInsufficientBudget, leaving the
// ledger untouched, if amount exceeds the remaining capacity.
func (b *Ledger) Charge(amount float64, memo string) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ErrInvalidAmount
	}

	var warning *Warning
	var hook func(Warning)

	err := func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		if !b.fits(amount) {
			return ErrInsufficientBudget
		}
		before := b.spent / b.capacity
		b.spent += amount
		b.charges = append(b.charges, Charge{Amount: amount, Memo: memo, At: time.Now().UTC()})

		after := b.spent / b.capacity
		if before < WarningRatio && after >= WarningRatio {
			warning = &Warning{Spent: b.spent, Capacity: b.capacity, Ratio: after}
			hook = b.onWarning
		}
		return nil
	}()

	// hook runs outside the lock so it may read the ledger
	if warning != nil && hook != nil {
		hook(*warning)
	}
	return err
}

// CanCharge reports whether amount fits in the remaining capacity.
func (b *Ledger) CanCharge(amount float64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return amount >= 0 && b.fits(amount)
}

// fits must be called with b.mu held.
func (b *Ledger) fits(amount float64) bool {
	return amount-(b.capacity-b.spent) <= tolerance*b.capacity
}

// #endregion charge

// #region read
// Remaining returns the uncharged capacity. Rounding residue within
// tolerance reads as zero.
func (b *Ledger) Remaining() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r := b.capacity - b.spent
	if r <= tolerance*b.capacity {
		return 0
	}
	return r
}

// Spent returns the cumulative charge total.
func (b *Ledger) Spent() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.spent
}

// Capacity returns the liability cap.
func (b *Ledger) Capacity() float64 {
	return b.capacity
}

// Solvent reports whether any capacity remains.
func (b *Ledger) Solvent() bool {
	return b.Remaining() > 0
}

// Charges returns a copy of the charge history.
func (b *Ledger) Charges() []Charge {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Charge, len(b.charges))
	copy(out, b.charges)
	return out
}

// #endregion read
