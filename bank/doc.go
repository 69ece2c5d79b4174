// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bank is the escrow ledger behind the marketplace.
//
// An [Account] holds a free balance plus a set of locks. Locking moves
// funds out of the free balance into a lock identified by a [LockID];
// unlocking moves them back; consuming a lock removes it without a
// credit, which is the debit half of [Bank.TransferFromLock]. The
// balance never goes negative, and the total (balance plus every lock)
// changes only through explicit deposits and debits.
//
// [Bank] owns the accounts and the registry of live auction house
// endpoints. [Server] exposes it over the transport protocol and
// pushes OPENAUCTION to every other client when a house registers.
// [Client] is the typed remote handle used by auction houses (to
// escrow bids) and agents (to manage their own funds).
//
// All amounts are decimal.Decimal. Mutating operations reject amounts
// that are not strictly positive with [ErrInvalidAmount].
package bank
