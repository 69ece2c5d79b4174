// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auction

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/marketplace/bank"
	"github.com/bureau-foundation/marketplace/lib/catalog"
	"github.com/bureau-foundation/marketplace/lib/clock"
)

// DefaultMaxLive is the number of items open at once when
// HouseConfig.MaxLive is zero.
const DefaultMaxLive = 3

// Bank is what a house needs from the bank: an account of its own
// and escrow for its items. *bank.Client implements it.
type Bank interface {
	Ledger
	NewAccount(ctx context.Context) (bank.AccountID, error)
}

// HouseConfig configures a House.
type HouseConfig struct {
	// Catalog lists the items to sell, in order.
	Catalog []catalog.Entry

	// WaitTime is how long each item stays open once listed.
	WaitTime time.Duration

	// MaxLive caps the number of simultaneously open items.
	MaxLive int

	Bank   Bank
	Clock  clock.Clock
	Logger *slog.Logger
}

// House owns the live items and the backlog of items not yet listed.
type House struct {
	bank     Bank
	clock    clock.Clock
	logger   *slog.Logger
	waitTime time.Duration
	maxLive  int

	account    bank.AccountID
	lastItemID atomic.Int64

	mu      sync.Mutex
	live    map[ItemID]*Item
	backlog []catalog.Entry
	closed  bool
}

// NewHouse validates config. Call Start to open an account and list
// the first items.
func NewHouse(config HouseConfig) (*House, error) {
	if config.Bank == nil {
		return nil, errors.New("auction house requires a bank")
	}
	if config.WaitTime <= 0 {
		return nil, fmt.Errorf("wait time must be positive, got %v", config.WaitTime)
	}
	if config.MaxLive < 0 {
		return nil, fmt.Errorf("max live items must not be negative, got %d", config.MaxLive)
	}
	maxLive := config.MaxLive
	if maxLive == 0 {
		maxLive = DefaultMaxLive
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &House{
		bank:     config.Bank,
		clock:    clk,
		logger:   logger,
		waitTime: config.WaitTime,
		maxLive:  maxLive,
		live:     make(map[ItemID]*Item),
		backlog:  slices.Clone(config.Catalog),
	}, nil
}

// Start opens the house's bank account and lists the first MaxLive
// catalog entries.
func (h *House) Start(ctx context.Context) error {
	account, err := h.bank.NewAccount(ctx)
	if err != nil {
		return fmt.Errorf("opening house account: %w", err)
	}
	h.account = account
	h.logger.Info("house account opened", "account_id", account)

	h.mu.Lock()
	count := min(h.maxLive, len(h.backlog))
	initial := h.backlog[:count]
	h.backlog = h.backlog[count:]
	h.mu.Unlock()

	for _, entry := range initial {
		h.list(entry)
	}
	return nil
}

// Account returns the house's bank account. Zero before Start.
func (h *House) Account() bank.AccountID {
	return h.account
}

// list opens a new item with a deadline WaitTime from now.
func (h *House) list(entry catalog.Entry) {
	item := newItem(itemConfig{
		ID:           ItemID(h.lastItemID.Add(1)),
		Name:         entry.Name,
		OpeningPrice: entry.Price,
		Deadline:     h.clock.Now().Add(h.waitTime),
		HouseAccount: h.account,
		Ledger:       h.bank,
		Clock:        h.clock,
		Logger:       h.logger,
		OnSettled:    h.retire,
	})

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.live[item.ID()] = item
	h.mu.Unlock()

	h.logger.Info("item listed", "item_id", item.ID(), "item", entry.Name, "opening_price", entry.Price)
	item.start()
}

// retire drops a settled item and lists the next backlog entry in its
// place.
func (h *House) retire(id ItemID) {
	h.mu.Lock()
	delete(h.live, id)
	if h.closed {
		h.mu.Unlock()
		return
	}
	if len(h.backlog) == 0 {
		remaining := len(h.live)
		h.mu.Unlock()
		h.logger.Info("backlog exhausted", "live_items", remaining)
		return
	}
	next := h.backlog[0]
	h.backlog = h.backlog[1:]
	h.mu.Unlock()

	h.list(next)
}

func (h *House) item(id ItemID) (*Item, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	item, ok := h.live[id]
	return item, ok
}

// Bid offers amount on an item. notifier receives OUTBID and WINNER
// pushes for this bid.
func (h *House) Bid(ctx context.Context, request BidRequest, notifier Notifier) BidResult {
	item, ok := h.item(request.ItemID)
	if !ok {
		return rejection(ReasonUnknownItem)
	}
	return item.SetBid(ctx, Bid{
		ItemID:    request.ItemID,
		AccountID: request.AccountID,
		Amount:    request.Amount,
		Notifier:  notifier,
	})
}

// ItemInfo returns a snapshot of one live item.
func (h *House) ItemInfo(id ItemID) (ItemInfo, bool) {
	item, ok := h.item(id)
	if !ok {
		return ItemInfo{}, false
	}
	return item.Info(), true
}

// Items returns snapshots of every live item, ordered by id.
func (h *House) Items() []ItemInfo {
	h.mu.Lock()
	items := make([]*Item, 0, len(h.live))
	for _, item := range h.live {
		items = append(items, item)
	}
	h.mu.Unlock()

	infos := make([]ItemInfo, 0, len(items))
	for _, item := range items {
		infos = append(infos, item.Info())
	}
	slices.SortFunc(infos, func(a, b ItemInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return infos
}

// CloseRequest reports whether account may leave: true unless it
// holds the highest bid on some live item.
func (h *House) CloseRequest(account bank.AccountID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, item := range h.live {
		if item.IsHighestBidder(account) {
			return false
		}
	}
	return true
}

// Shutdown withdraws every live item, releasing outstanding escrow.
// No further items are listed afterwards.
func (h *House) Shutdown(ctx context.Context) {
	h.mu.Lock()
	h.closed = true
	items := make([]*Item, 0, len(h.live))
	for _, item := range h.live {
		items = append(items, item)
	}
	h.live = make(map[ItemID]*Item)
	h.mu.Unlock()

	for _, item := range items {
		item.Remove(ctx)
	}
	h.logger.Info("house shut down", "withdrawn_items", len(items))
}
