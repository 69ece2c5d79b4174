// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bureau-foundation/marketplace/bank"
)

// Op codes served by an auction house. OpBid is also the op of the
// unsolicited OUTBID and WINNER pushes.
const (
	OpBid          = "BID"
	OpGet          = "GET"
	OpGetAll       = "GETALL"
	OpCloseRequest = "CLOSEREQUEST"
)

// ItemID identifies an item within one house.
type ItemID int64

// BidStatus is the outcome carried by a bid reply or push.
type BidStatus string

const (
	StatusAccepted  BidStatus = "ACCEPTED"
	StatusRejection BidStatus = "REJECTION"
	StatusOutbid    BidStatus = "OUTBID"
	StatusWinner    BidStatus = "WINNER"
)

// Rejection reasons.
const (
	ReasonExpired           = "expired"
	ReasonTooLow            = "too_low"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonUnknownAccount    = "unknown_account"
	ReasonLedgerUnavailable = "ledger_unavailable"
	ReasonUnknownItem       = "unknown_item"
)

// ItemState is the lifecycle stage of an item.
type ItemState string

const (
	StateOpen    ItemState = "open"
	StateClosing ItemState = "closing"
	StateSettled ItemState = "settled"
	StateRemoved ItemState = "removed"
)

// ItemInfo is a point-in-time copy of an item.
type ItemInfo struct {
	ID            ItemID          `cbor:"id"`
	Name          string          `cbor:"name"`
	OpeningPrice  decimal.Decimal `cbor:"opening_price"`
	CurrentPrice  decimal.Decimal `cbor:"current_price"`
	Deadline      time.Time       `cbor:"deadline"`
	HighestBidder bank.AccountID  `cbor:"highest_bidder,omitempty"`
	State         ItemState       `cbor:"state"`
}

// BidRequest is the BID payload.
type BidRequest struct {
	ItemID    ItemID          `cbor:"item_id"`
	AccountID bank.AccountID  `cbor:"account_id"`
	Amount    decimal.Decimal `cbor:"amount"`
}

// BidResult is the BID reply. Reason is set only on REJECTION.
type BidResult struct {
	Status BidStatus `cbor:"status"`
	Reason string    `cbor:"reason,omitempty"`
}

// Accepted reports whether the bid became the highest.
func (r BidResult) Accepted() bool {
	return r.Status == StatusAccepted
}

func rejection(reason string) BidResult {
	return BidResult{Status: StatusRejection, Reason: reason}
}

// BidPush is the payload of an OUTBID or WINNER push. Amount is the
// new highest bid for OUTBID and the settled price for WINNER.
type BidPush struct {
	Status BidStatus       `cbor:"status"`
	Item   ItemInfo        `cbor:"item"`
	Amount decimal.Decimal `cbor:"amount"`
}

// ItemRequest is the GET payload.
type ItemRequest struct {
	ItemID ItemID `cbor:"item_id"`
}

// ItemResponse is the GET reply.
type ItemResponse struct {
	Found bool     `cbor:"found"`
	Item  ItemInfo `cbor:"item"`
}

// ItemsResponse is the GETALL reply.
type ItemsResponse struct {
	Items []ItemInfo `cbor:"items"`
}

// CloseRequestMessage is the CLOSEREQUEST payload.
type CloseRequestMessage struct {
	AccountID bank.AccountID `cbor:"account_id"`
}

// CloseResponse is the CLOSEREQUEST reply.
type CloseResponse struct {
	Allowed bool `cbor:"allowed"`
}
