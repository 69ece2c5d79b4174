// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bank

import "github.com/shopspring/decimal"

// Op codes served by the bank.
const (
	OpNewAccount       = "NEWACCOUNT"
	OpGetBalance       = "GETBALANCE"
	OpGetTotalBalance  = "GETTOTALBALANCE"
	OpAdd              = "ADD"
	OpRemove           = "REMOVE"
	OpLock             = "LOCK"
	OpUnlock           = "UNLOCK"
	OpTransfer         = "TRANSFER"
	OpTransferFromLock = "TRANSFERFROMLOCK"
	OpOpenAuction      = "OPENAUCTION"
	OpCloseAuction     = "CLOSEAUCTION"
	OpGetAuctions      = "GETAUCTIONS"
)

// Request is the payload of every bank op. Each op reads only the
// fields it needs.
type Request struct {
	AccountID AccountID       `cbor:"account_id,omitempty"`
	ToID      AccountID       `cbor:"to_id,omitempty"`
	Amount    decimal.Decimal `cbor:"amount"`
	Device    NetworkDevice   `cbor:"device"`

	// LockID names the lock for UNLOCK and TRANSFERFROMLOCK. On LOCK it
	// is optional: when set, the bank uses it instead of drawing one.
	LockID LockID `cbor:"lock_id,omitempty"`
}

// Response is the reply payload of every bank op. Reason is empty on
// success; otherwise it names the domain failure.
type Response struct {
	Reason    string          `cbor:"reason,omitempty"`
	AccountID AccountID       `cbor:"account_id,omitempty"`
	Amount    decimal.Decimal `cbor:"amount"`
	LockID    LockID          `cbor:"lock_id,omitempty"`
	Devices   []NetworkDevice `cbor:"devices,omitempty"`
}

// AuctionPush is the payload of the unsolicited OPENAUCTION message
// sent to every client when a house registers.
type AuctionPush struct {
	Device NetworkDevice `cbor:"device"`
}
