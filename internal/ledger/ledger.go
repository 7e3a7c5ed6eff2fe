// Package ledger owns all credit movement in the auction system. Every
// balance mutation flows through Reserve, Refund or Transfer, which are
// linearizable per account: two operations touching the same holder are
// serialized by that holder's lock, while operations on unrelated
// holders never contend.
package ledger

import (
	"fmt"
	"sync"

	"auction-house/internal/auctionerrors"
	"auction-house/internal/repository"
)

// Ledger performs atomic credit operations against an AccountStore
type Ledger struct {
	accounts repository.AccountStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex // key: holderName
}

// NewLedger creates a Ledger over the given account store
func NewLedger(accounts repository.AccountStore) *Ledger {
	return &Ledger{
		accounts: accounts,
		locks:    make(map[string]*sync.Mutex),
	}
}

// holderLock returns the mutex guarding a single holder's balance,
// creating it on first use. Locks are never removed; the map is bounded
// by the number of accounts.
func (l *Ledger) holderLock(holderName string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[holderName]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[holderName] = lock
	}
	return lock
}

// Reserve escrows amount from the holder's spendable balance. It fails
// with ErrInsufficientFunds, leaving the balance untouched, if the
// holder cannot cover the amount.
func (l *Ledger) Reserve(holderName string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: reserve non-positive amount %d for %s: %w", amount, holderName, auctionerrors.ErrInvalidAmount)
	}

	lock := l.holderLock(holderName)
	lock.Lock()
	defer lock.Unlock()

	if err := l.accounts.AdjustBalance(holderName, -amount); err != nil {
		return fmt.Errorf("ledger: reserve %d for %s: %w", amount, holderName, err)
	}
	return nil
}

// Refund returns previously escrowed funds to a holder's spendable
// balance
func (l *Ledger) Refund(holderName string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: refund non-positive amount %d for %s: %w", amount, holderName, auctionerrors.ErrInvalidAmount)
	}

	lock := l.holderLock(holderName)
	lock.Lock()
	defer lock.Unlock()

	if err := l.accounts.AdjustBalance(holderName, amount); err != nil {
		return fmt.Errorf("ledger: refund %d for %s: %w", amount, holderName, err)
	}
	return nil
}

// Transfer pays escrowed funds out to a holder. The matching debit
// happened at Reserve time, so only the credit side moves here.
func (l *Ledger) Transfer(toHolderName string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: transfer non-positive amount %d to %s: %w", amount, toHolderName, auctionerrors.ErrInvalidAmount)
	}

	lock := l.holderLock(toHolderName)
	lock.Lock()
	defer lock.Unlock()

	if err := l.accounts.AdjustBalance(toHolderName, amount); err != nil {
		return fmt.Errorf("ledger: transfer %d to %s: %w", amount, toHolderName, err)
	}
	return nil
}

// Balance returns a holder's current spendable balance
func (l *Ledger) Balance(holderName string) (int64, error) {
	account, err := l.accounts.GetAccount(holderName)
	if err != nil {
		return 0, fmt.Errorf("ledger: balance for %s: %w", holderName, err)
	}
	return account.CreditBalance, nil
}
