// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auction runs an auction house: a small set of live items,
// each an English auction with a fixed deadline, backed by escrow in
// the bank.
//
// An [Item] accepts strictly increasing bids until its deadline. An
// accepted bid's amount is locked on the bidder's bank account; the
// previous highest bid's lock is released and that bidder is told it
// was outbid. At the deadline the winning lock is transferred to the
// house's own account and the winner is notified. Bids on one item are
// serialized for the whole bank round trip, so the ledger always
// agrees with the item about who holds the single outstanding lock.
//
// A [House] keeps at most MaxLive items open at once. When one
// settles, the next catalog entry from the backlog is listed in its
// place with a fresh deadline. [Server] exposes the house over the
// transport protocol and registers its endpoint with the bank;
// [Client] is the agent-side handle.
package auction
