// Package ledger does explicit value accounting for the marketplace:
// account balances, per-SR escrow buckets, and the settlement transfers that
// drain them. Funds never move implicitly; every escrow-mutating operation is
// an explicit, idempotent transfer, which is what makes escrow conservation a
// checkable property.
package ledger

import (
	"context"
	"sync"

	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

// Ledger is safe for concurrent use; each operation commits atomically under
// one lock, matching the single-operation-atomic model of the core.
type Ledger struct {
	mu       sync.Mutex
	accounts map[domain.UserID]uint64
	escrow   map[domain.RequestID]uint64
	// applied remembers release keys so a retried refund moves value exactly
	// once.
	applied map[string]bool
}

func New() *Ledger {
	return &Ledger{
		accounts: make(map[domain.UserID]uint64),
		escrow:   make(map[domain.RequestID]uint64),
		applied:  make(map[string]bool),
	}
}

// Deposit credits an account. Collaborator-facing; the core itself never
// creates value.
func (l *Ledger) Deposit(_ context.Context, uid domain.UserID, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[uid] += amount
}

func (l *Ledger) Balance(_ context.Context, uid domain.UserID) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[uid]
}

// Escrowed returns the value still held for an SR.
func (l *Ledger) Escrowed(_ context.Context, srID domain.RequestID) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.escrow[srID]
}

// Charge debits an account without an escrow counterpart (the license mint
// fee). Fails with InsufficientPayment when the balance is short.
func (l *Ledger) Charge(_ context.Context, uid domain.UserID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.accounts[uid] < amount {
		return domerrors.New(domerrors.CodeInsufficientPayment, "account balance is too low")
	}
	l.accounts[uid] -= amount
	return nil
}

// Hold moves amount from uid's account into the SR's escrow bucket.
func (l *Ledger) Hold(_ context.Context, uid domain.UserID, srID domain.RequestID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.accounts[uid] < amount {
		return domerrors.New(domerrors.CodeInsufficientPayment, "account balance cannot cover the escrow")
	}
	l.accounts[uid] -= amount
	l.escrow[srID] += amount
	return nil
}

// Release moves amount out of the SR's escrow to an account. The key makes
// the transfer idempotent against retry: a repeated key is a no-op.
func (l *Ledger) Release(_ context.Context, srID domain.RequestID, to domain.UserID, amount uint64, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applied[key] {
		return nil
	}
	if l.escrow[srID] < amount {
		return domerrors.New(domerrors.CodeWrongState, "escrow cannot cover the release")
	}
	l.escrow[srID] -= amount
	l.accounts[to] += amount
	l.applied[key] = true
	return nil
}

// Apply runs a settlement's transfers in order. The transfers share the SR's
// escrow bucket; a conservation bug surfaces as a WrongState on the
// overdrawing transfer, with earlier transfers already committed (each one is
// individually idempotent, so a retry resumes where it stopped).
func (l *Ledger) Apply(ctx context.Context, srID domain.RequestID, transfers []Transfer) error {
	for _, t := range transfers {
		if t.Amount == 0 {
			continue
		}
		if err := l.Release(ctx, srID, t.To, t.Amount, t.Key); err != nil {
			return err
		}
	}
	return nil
}
