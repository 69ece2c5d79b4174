// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auction

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bureau-foundation/marketplace/bank"
	"github.com/bureau-foundation/marketplace/lib/clock"
)

// Ledger is the escrow surface an item needs from the bank.
// *bank.Client implements it.
type Ledger interface {
	LockFundsAs(ctx context.Context, account bank.AccountID, lockID bank.LockID, amount decimal.Decimal) error
	UnlockFunds(ctx context.Context, account bank.AccountID, lockID bank.LockID) error
	TransferFromLock(ctx context.Context, from, to bank.AccountID, lockID bank.LockID) (decimal.Decimal, error)
}

// Notifier delivers unsolicited messages to a bidder.
// *transport.Conn implements it.
type Notifier interface {
	Push(op string, payload any) error
}

// Bid is one offer on an item. LockID is set once the bid is
// accepted and its funds are escrowed.
type Bid struct {
	ItemID    ItemID
	AccountID bank.AccountID
	Amount    decimal.Decimal
	LockID    bank.LockID

	// Notifier reaches the bidder for OUTBID and WINNER. May be nil.
	Notifier Notifier
}

// ledgerTimeout bounds each escrow round trip. Escrow calls are
// detached from the caller's context: once a lock may exist on the
// bank, abandoning the call halfway would strand the funds.
const ledgerTimeout = 30 * time.Second

func ledgerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
}

// Item is one live auction.
//
// bidding serializes SetBid, settlement, and Remove, and is held
// across the bank round trip. mu guards the fields read by Info and is
// never held while talking to the bank.
type Item struct {
	id           ItemID
	name         string
	openingPrice decimal.Decimal
	deadline     time.Time
	houseAccount bank.AccountID

	ledger    Ledger
	clock     clock.Clock
	logger    *slog.Logger
	onSettled func(ItemID)

	bidding sync.Mutex

	mu           sync.Mutex
	state        ItemState
	currentPrice decimal.Decimal
	highest      *Bid
	timer        *clock.Timer
}

type itemConfig struct {
	ID           ItemID
	Name         string
	OpeningPrice decimal.Decimal
	Deadline     time.Time
	HouseAccount bank.AccountID
	Ledger       Ledger
	Clock        clock.Clock
	Logger       *slog.Logger

	// OnSettled is called once after settlement, outside every item
	// lock.
	OnSettled func(ItemID)
}

func newItem(config itemConfig) *Item {
	return &Item{
		id:           config.ID,
		name:         config.Name,
		openingPrice: config.OpeningPrice,
		deadline:     config.Deadline,
		houseAccount: config.HouseAccount,
		ledger:       config.Ledger,
		clock:        config.Clock,
		logger:       config.Logger.With("item_id", config.ID, "item", config.Name),
		onSettled:    config.OnSettled,
		state:        StateOpen,
		currentPrice: config.OpeningPrice,
	}
}

// start arms the settlement timer. Must be called without holding any
// lock that OnSettled takes: with a deadline already in the past the
// settlement runs before start returns.
func (i *Item) start() {
	timer := i.clock.AfterFunc(i.deadline.Sub(i.clock.Now()), i.settle)
	i.mu.Lock()
	i.timer = timer
	i.mu.Unlock()
}

// ID returns the item's id.
func (i *Item) ID() ItemID {
	return i.id
}

// Info returns a snapshot of the item.
func (i *Item) Info() ItemInfo {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.infoLocked()
}

func (i *Item) infoLocked() ItemInfo {
	info := ItemInfo{
		ID:           i.id,
		Name:         i.name,
		OpeningPrice: i.openingPrice,
		CurrentPrice: i.currentPrice,
		Deadline:     i.deadline,
		State:        i.state,
	}
	if i.highest != nil {
		info.HighestBidder = i.highest.AccountID
	}
	return info
}

// IsHighestBidder reports whether account currently holds the top bid.
func (i *Item) IsHighestBidder(account bank.AccountID) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.highest != nil && i.highest.AccountID == account
}

// SetBid offers bid on the item. The bid is accepted only if the item
// is open, the amount is strictly above the current price, and the
// bank escrows the amount.
func (i *Item) SetBid(ctx context.Context, bid Bid) BidResult {
	i.bidding.Lock()
	defer i.bidding.Unlock()

	i.mu.Lock()
	state, price, previous := i.state, i.currentPrice, i.highest
	i.mu.Unlock()

	if state != StateOpen || i.clock.Now().After(i.deadline) {
		return rejection(ReasonExpired)
	}
	if bid.Amount.LessThanOrEqual(price) {
		return rejection(ReasonTooLow)
	}

	ctx, cancel := ledgerContext(ctx)
	defer cancel()

	lockID := bank.LockID(uuid.NewString())
	if err := i.ledger.LockFundsAs(ctx, bid.AccountID, lockID, bid.Amount); err != nil {
		switch {
		case errors.Is(err, bank.ErrInsufficientFunds):
			return rejection(ReasonInsufficientFunds)
		case errors.Is(err, bank.ErrUnknownAccount):
			return rejection(ReasonUnknownAccount)
		default:
			i.logger.Warn("escrow failed", "account_id", bid.AccountID, "amount", bid.Amount, "error", err)
			i.abandonLock(bid.AccountID, lockID)
			return rejection(ReasonLedgerUnavailable)
		}
	}
	bid.ItemID = i.id
	bid.LockID = lockID

	i.mu.Lock()
	i.currentPrice = bid.Amount
	i.highest = &bid
	snapshot := i.infoLocked()
	i.mu.Unlock()

	i.logger.Info("bid accepted", "account_id", bid.AccountID, "amount", bid.Amount)

	if previous != nil {
		if err := i.ledger.UnlockFunds(ctx, previous.AccountID, previous.LockID); err != nil {
			i.logger.Error("releasing outbid escrow failed",
				"account_id", previous.AccountID,
				"lock_id", previous.LockID,
				"error", err,
			)
		}
		if previous.AccountID != bid.AccountID {
			i.notify(previous, BidPush{Status: StatusOutbid, Item: snapshot, Amount: bid.Amount})
		}
	}
	return BidResult{Status: StatusAccepted}
}

// settle runs at the deadline.
func (i *Item) settle() {
	if !i.settleLocked() {
		return
	}
	if i.onSettled != nil {
		i.onSettled(i.id)
	}
}

func (i *Item) settleLocked() bool {
	i.bidding.Lock()
	defer i.bidding.Unlock()

	i.mu.Lock()
	if i.state != StateOpen {
		i.mu.Unlock()
		return false
	}
	i.state = StateClosing
	winner := i.highest
	i.mu.Unlock()

	var push *BidPush
	if winner == nil {
		i.logger.Info("auction closed without bids")
	} else {
		ctx, cancel := ledgerContext(context.Background())
		amount, err := i.ledger.TransferFromLock(ctx, winner.AccountID, i.houseAccount, winner.LockID)
		cancel()
		if err != nil {
			i.logger.Error("settlement transfer failed",
				"account_id", winner.AccountID,
				"lock_id", winner.LockID,
				"error", err,
			)
		} else {
			i.logger.Info("auction settled", "account_id", winner.AccountID, "amount", amount)
			push = &BidPush{Status: StatusWinner, Amount: amount}
		}
	}

	i.mu.Lock()
	i.state = StateSettled
	snapshot := i.infoLocked()
	i.mu.Unlock()

	if push != nil {
		push.Item = snapshot
		i.notify(winner, *push)
	}
	return true
}

// Remove withdraws an open item, releasing the highest bid's escrow.
// Used at house shutdown.
func (i *Item) Remove(ctx context.Context) {
	i.bidding.Lock()
	defer i.bidding.Unlock()

	i.mu.Lock()
	if i.timer != nil {
		i.timer.Stop()
	}
	if i.state != StateOpen {
		i.mu.Unlock()
		return
	}
	i.state = StateRemoved
	highest := i.highest
	i.mu.Unlock()

	if highest == nil {
		return
	}
	ctx, cancel := ledgerContext(ctx)
	defer cancel()
	if err := i.ledger.UnlockFunds(ctx, highest.AccountID, highest.LockID); err != nil {
		i.logger.Error("releasing escrow on removal failed",
			"account_id", highest.AccountID,
			"lock_id", highest.LockID,
			"error", err,
		)
	}
}

// abandonLock releases a lock whose LOCK call failed without a ledger
// answer. The bank serves one connection's requests in order, so the
// UNLOCK runs after the LOCK if the LOCK ever arrived; unknown_lock
// means it did not.
func (i *Item) abandonLock(account bank.AccountID, lockID bank.LockID) {
	ctx, cancel := ledgerContext(context.Background())
	defer cancel()
	err := i.ledger.UnlockFunds(ctx, account, lockID)
	switch {
	case err == nil:
		i.logger.Info("released escrow of failed bid", "account_id", account, "lock_id", lockID)
	case errors.Is(err, bank.ErrUnknownLock):
	default:
		i.logger.Error("releasing escrow of failed bid failed",
			"account_id", account,
			"lock_id", lockID,
			"error", err,
		)
	}
}

func (i *Item) notify(bid *Bid, push BidPush) {
	if bid.Notifier == nil {
		return
	}
	if err := bid.Notifier.Push(OpBid, push); err != nil {
		i.logger.Warn("notifying bidder failed", "account_id", bid.AccountID, "status", push.Status, "error", err)
	}
}
