// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bank

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountID identifies an account. Zero means no account.
type AccountID int64

// LockID identifies a lock within one account. Empty means no lock.
type LockID string

// Account is one ledger entry: a free balance and the funds escrowed
// under outstanding locks. Every method holds the account's mutex for
// its whole duration, so each operation is atomic with respect to the
// others on the same account.
type Account struct {
	id AccountID

	mu      sync.Mutex
	balance decimal.Decimal
	locks   map[LockID]decimal.Decimal
}

func newAccount(id AccountID) *Account {
	return &Account{
		id:    id,
		locks: make(map[LockID]decimal.Decimal),
	}
}

// ID returns the account's id.
func (a *Account) ID() AccountID {
	return a.id
}

// Balance returns the free (unlocked) balance.
func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// TotalBalance returns the free balance plus every locked amount.
func (a *Account) TotalBalance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := a.balance
	for _, locked := range a.locks {
		total = total.Add(locked)
	}
	return total
}

// AddFunds credits the free balance.
func (a *Account) AddFunds(amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = a.balance.Add(amount)
	return nil
}

// RemoveFunds debits the free balance. It fails with
// ErrInsufficientFunds rather than drive the balance negative.
func (a *Account) RemoveFunds(amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balance.LessThan(amount) {
		return fmt.Errorf("removing %s from account %d with balance %s: %w", amount, a.id, a.balance, ErrInsufficientFunds)
	}
	a.balance = a.balance.Sub(amount)
	return nil
}

// LockFunds moves amount from the free balance into a new lock and
// returns its id.
func (a *Account) LockFunds(amount decimal.Decimal) (LockID, error) {
	if err := validateAmount(amount); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	lockID := LockID(uuid.NewString())
	for {
		if _, taken := a.locks[lockID]; !taken {
			break
		}
		lockID = LockID(uuid.NewString())
	}
	if err := a.lockLocked(lockID, amount); err != nil {
		return "", err
	}
	return lockID, nil
}

// LockFundsAs is LockFunds under a lock id chosen by the caller. A
// caller that never sees the reply can still release the lock by id.
// It fails with ErrDuplicateLock if the account already holds lockID.
func (a *Account) LockFundsAs(lockID LockID, amount decimal.Decimal) error {
	if lockID == "" {
		return fmt.Errorf("locking on account %d: empty lock id: %w", a.id, ErrDuplicateLock)
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, taken := a.locks[lockID]; taken {
		return fmt.Errorf("locking %q on account %d: %w", lockID, a.id, ErrDuplicateLock)
	}
	return a.lockLocked(lockID, amount)
}

func (a *Account) lockLocked(lockID LockID, amount decimal.Decimal) error {
	if a.balance.LessThan(amount) {
		return fmt.Errorf("locking %s on account %d with balance %s: %w", amount, a.id, a.balance, ErrInsufficientFunds)
	}
	a.balance = a.balance.Sub(amount)
	a.locks[lockID] = amount
	return nil
}

// UnlockFunds releases a lock back into the free balance.
func (a *Account) UnlockFunds(lockID LockID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	amount, ok := a.locks[lockID]
	if !ok {
		return fmt.Errorf("unlocking %q on account %d: %w", lockID, a.id, ErrUnknownLock)
	}
	delete(a.locks, lockID)
	a.balance = a.balance.Add(amount)
	return nil
}

// ConsumeLock removes a lock without crediting the balance and returns
// the amount it held. The caller is responsible for crediting that
// amount elsewhere.
func (a *Account) ConsumeLock(lockID LockID) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	amount, ok := a.locks[lockID]
	if !ok {
		return decimal.Zero, fmt.Errorf("consuming %q on account %d: %w", lockID, a.id, ErrUnknownLock)
	}
	delete(a.locks, lockID)
	return amount, nil
}

// LockedAmount returns the amount held by a lock.
func (a *Account) LockedAmount(lockID LockID) (decimal.Decimal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	amount, ok := a.locks[lockID]
	return amount, ok
}

// lockCount is used by tests to check that released locks are gone.
func (a *Account) lockCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%s: %w", amount, ErrInvalidAmount)
	}
	return nil
}
