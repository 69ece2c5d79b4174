// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bank

import "errors"

var (
	// ErrInsufficientFunds is returned when the free balance is below
	// the amount to lock, remove, or transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownLock is returned when a lock id is not held by the
	// account.
	ErrUnknownLock = errors.New("unknown lock")

	// ErrDuplicateLock is returned when a caller-chosen lock id is
	// empty or already held by the account.
	ErrDuplicateLock = errors.New("duplicate lock")

	// ErrUnknownAccount is returned for account ids the bank never
	// issued.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Wire reasons. A domain failure travels as a reason string in the
// response so the client can rebuild the sentinel.
const (
	reasonInsufficientFunds = "insufficient_funds"
	reasonUnknownLock       = "unknown_lock"
	reasonDuplicateLock     = "duplicate_lock"
	reasonUnknownAccount    = "unknown_account"
	reasonInvalidAmount     = "invalid_amount"
)

var reasonErrors = []struct {
	reason string
	err    error
}{
	{reasonInsufficientFunds, ErrInsufficientFunds},
	{reasonUnknownLock, ErrUnknownLock},
	{reasonDuplicateLock, ErrDuplicateLock},
	{reasonUnknownAccount, ErrUnknownAccount},
	{reasonInvalidAmount, ErrInvalidAmount},
}

// reasonFor maps a domain error to its wire reason. ok is false for
// errors that are not part of the ledger's vocabulary.
func reasonFor(err error) (reason string, ok bool) {
	for _, entry := range reasonErrors {
		if errors.Is(err, entry.err) {
			return entry.reason, true
		}
	}
	return "", false
}

// errorFor maps a wire reason back to its sentinel. Unrecognized
// reasons become a plain error carrying the text.
func errorFor(reason string) error {
	for _, entry := range reasonErrors {
		if entry.reason == reason {
			return entry.err
		}
	}
	return errors.New(reason)
}
