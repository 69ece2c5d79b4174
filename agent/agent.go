// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent is the bidder side of the marketplace: it holds a bank
// account, discovers auction houses through the bank, and bids on
// their items.
//
// An Agent keeps one connection to the bank and one per house. Houses
// registered when the agent starts are connected immediately; houses
// that open later are announced by the bank and connected in the
// background. OUTBID and WINNER pushes from every house are delivered
// on the channel returned by Notifications.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/marketplace/auction"
	"github.com/bureau-foundation/marketplace/bank"
	"github.com/bureau-foundation/marketplace/lib/clock"
	"github.com/bureau-foundation/marketplace/transport"
)

// notificationBuffer is the capacity of the Notifications channel.
// Pushes that arrive while it is full are dropped and logged.
const notificationBuffer = 64

// Config configures an Agent.
type Config struct {
	// BankAddress is the bank's "host:port".
	BankAddress string

	// InitialDeposit, when positive, is deposited into the new account.
	InitialDeposit decimal.Decimal

	// RetryDelay is the wait between failed connect attempts.
	RetryDelay time.Duration

	// ConnectTimeout bounds connecting to one auction house. Zero
	// selects ten seconds. The bank connection is retried until the
	// context passed to New ends.
	ConnectTimeout time.Duration

	// Transport configures every connection the agent opens. Pushes
	// is overwritten.
	Transport transport.Options

	Clock  clock.Clock
	Logger *slog.Logger
}

// Notification is an OUTBID or WINNER push from a house.
type Notification struct {
	House  bank.NetworkDevice
	Status auction.BidStatus
	Item   auction.ItemInfo
	Amount decimal.Decimal
}

// HouseItem is a live item together with the house selling it.
type HouseItem struct {
	House bank.NetworkDevice
	Item  auction.ItemInfo
}

// BidRecord is one bid the agent placed.
type BidRecord struct {
	House  bank.NetworkDevice
	ItemID auction.ItemID
	Amount decimal.Decimal
	Result auction.BidResult
	At     time.Time
}

// Agent is a connected bidder.
type Agent struct {
	config  Config
	clock   clock.Clock
	logger  *slog.Logger
	bank    *bank.Client
	account bank.AccountID

	notifications chan Notification

	// lifetime scopes background connects; cancelled by Close.
	lifetime context.Context
	cancel   context.CancelFunc
	connects sync.WaitGroup

	mu      sync.Mutex
	houses  map[bank.NetworkDevice]*auction.Client
	order   []bank.NetworkDevice
	history []BidRecord
	closed  bool
}

// New connects to the bank, opens an account, makes the initial
// deposit, and connects to every registered auction house. Houses that
// cannot be reached within ConnectTimeout are logged and skipped.
func New(ctx context.Context, config Config) (*Agent, error) {
	if config.BankAddress == "" {
		return nil, errors.New("agent requires a bank address")
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &Agent{
		config:        config,
		clock:         config.Clock,
		logger:        config.Logger,
		notifications: make(chan Notification, notificationBuffer),
		lifetime:      lifetime,
		cancel:        cancel,
		houses:        make(map[bank.NetworkDevice]*auction.Client),
	}

	options := config.Transport
	options.Logger = config.Logger
	options.Pushes = a.handleBankPush
	conn, err := transport.Dial(ctx, transport.DialConfig{
		Address:    config.BankAddress,
		RetryDelay: config.RetryDelay,
		Clock:      config.Clock,
		Options:    options,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connecting to bank: %w", err)
	}
	a.bank = bank.NewClient(conn)

	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Agent) open(ctx context.Context) error {
	account, err := a.bank.NewAccount(ctx)
	if err != nil {
		return fmt.Errorf("opening account: %w", err)
	}
	a.account = account
	a.logger.Info("account opened", "account_id", account)

	if a.config.InitialDeposit.IsPositive() {
		if err := a.bank.AddFunds(ctx, account, a.config.InitialDeposit); err != nil {
			return fmt.Errorf("initial deposit: %w", err)
		}
	}

	devices, err := a.bank.Auctions(ctx)
	if err != nil {
		return fmt.Errorf("listing auction houses: %w", err)
	}
	for _, device := range devices {
		if err := a.Connect(ctx, device); err != nil {
			a.logger.Warn("auction house unreachable", "house", device.String(), "error", err)
		}
	}
	return nil
}

// Account returns the agent's bank account id.
func (a *Agent) Account() bank.AccountID {
	return a.account
}

// Notifications delivers OUTBID and WINNER pushes. The channel is
// never closed.
func (a *Agent) Notifications() <-chan Notification {
	return a.notifications
}

// Balance returns the free balance.
func (a *Agent) Balance(ctx context.Context) (decimal.Decimal, error) {
	return a.bank.Balance(ctx, a.account)
}

// TotalBalance returns the free balance plus escrowed bids.
func (a *Agent) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	return a.bank.TotalBalance(ctx, a.account)
}

// Deposit adds funds to the account.
func (a *Agent) Deposit(ctx context.Context, amount decimal.Decimal) error {
	return a.bank.AddFunds(ctx, a.account, amount)
}

// Withdraw removes free funds from the account.
func (a *Agent) Withdraw(ctx context.Context, amount decimal.Decimal) error {
	return a.bank.RemoveFunds(ctx, a.account, amount)
}

// Houses lists the connected auction houses in connection order.
func (a *Agent) Houses() []bank.NetworkDevice {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.order)
}

// Connect opens a connection to an auction house. Connecting to a
// house already connected is a no-op.
func (a *Agent) Connect(ctx context.Context, device bank.NetworkDevice) error {
	a.mu.Lock()
	_, exists := a.houses[device]
	closed := a.closed
	a.mu.Unlock()
	if exists {
		return nil
	}
	if closed {
		return errors.New("agent is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.ConnectTimeout)
	defer cancel()

	options := a.config.Transport
	options.Logger = a.logger
	options.Pushes = func(push transport.Envelope) { a.handleHousePush(device, push) }
	conn, err := transport.Dial(ctx, transport.DialConfig{
		Address:    device.String(),
		RetryDelay: a.config.RetryDelay,
		Clock:      a.clock,
		Options:    options,
	})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", device, err)
	}
	client := auction.NewClient(conn)

	a.mu.Lock()
	if _, raced := a.houses[device]; raced || a.closed {
		a.mu.Unlock()
		client.Close()
		return nil
	}
	a.houses[device] = client
	a.order = append(a.order, device)
	a.mu.Unlock()

	a.logger.Info("connected to auction house", "house", device.String())
	go a.forgetOnDisconnect(device, client)
	return nil
}

// forgetOnDisconnect drops a house once its connection ends, so a
// later announcement from the same endpoint reconnects.
func (a *Agent) forgetOnDisconnect(device bank.NetworkDevice, client *auction.Client) {
	<-client.Done()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.houses[device] != client {
		return
	}
	delete(a.houses, device)
	if index := slices.Index(a.order, device); index >= 0 {
		a.order = slices.Delete(a.order, index, index+1)
	}
	if !a.closed {
		a.logger.Info("auction house disconnected", "house", device.String())
	}
}

func (a *Agent) house(device bank.NetworkDevice) (*auction.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	client, ok := a.houses[device]
	if !ok {
		return nil, fmt.Errorf("not connected to auction house %s", device)
	}
	return client, nil
}

// Items lists the live items of every connected house, queried
// concurrently. Results are grouped by house in connection order.
func (a *Agent) Items(ctx context.Context) ([]HouseItem, error) {
	a.mu.Lock()
	devices := slices.Clone(a.order)
	clients := make([]*auction.Client, len(devices))
	for i, device := range devices {
		clients[i] = a.houses[device]
	}
	a.mu.Unlock()

	results := make([][]auction.ItemInfo, len(devices))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, client := range clients {
		group.Go(func() error {
			items, err := client.Items(groupCtx)
			if err != nil {
				return fmt.Errorf("listing items at %s: %w", devices[i], err)
			}
			results[i] = items
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var all []HouseItem
	for i, items := range results {
		for _, item := range items {
			all = append(all, HouseItem{House: devices[i], Item: item})
		}
	}
	return all, nil
}

// Item returns one live item from a house.
func (a *Agent) Item(ctx context.Context, device bank.NetworkDevice, itemID auction.ItemID) (auction.ItemInfo, bool, error) {
	client, err := a.house(device)
	if err != nil {
		return auction.ItemInfo{}, false, err
	}
	return client.Item(ctx, itemID)
}

// Bid offers amount on an item and records the outcome.
func (a *Agent) Bid(ctx context.Context, device bank.NetworkDevice, itemID auction.ItemID, amount decimal.Decimal) (auction.BidResult, error) {
	client, err := a.house(device)
	if err != nil {
		return auction.BidResult{}, err
	}
	result, err := client.Bid(ctx, itemID, a.account, amount)
	if err != nil {
		return auction.BidResult{}, err
	}

	a.mu.Lock()
	a.history = append(a.history, BidRecord{
		House:  device,
		ItemID: itemID,
		Amount: amount,
		Result: result,
		At:     a.clock.Now(),
	})
	a.mu.Unlock()

	a.logger.Info("bid placed",
		"house", device.String(),
		"item_id", itemID,
		"amount", amount,
		"status", result.Status,
		"reason", result.Reason,
	)
	return result, nil
}

// History returns every bid placed, oldest first.
func (a *Agent) History() []BidRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.history)
}

// Leave asks every connected house whether the agent may go. It
// returns true, and closes the agent, only when every house agrees;
// a house refuses while the agent holds a winning bid there.
func (a *Agent) Leave(ctx context.Context) (bool, error) {
	a.mu.Lock()
	devices := slices.Clone(a.order)
	clients := make([]*auction.Client, len(devices))
	for i, device := range devices {
		clients[i] = a.houses[device]
	}
	a.mu.Unlock()

	allowed := true
	for i, client := range clients {
		ok, err := client.CloseRequest(ctx, a.account)
		if err != nil {
			return false, fmt.Errorf("close request to %s: %w", devices[i], err)
		}
		if !ok {
			a.logger.Info("house refused leave", "house", devices[i].String())
			allowed = false
		}
	}
	if !allowed {
		return false, nil
	}
	return true, a.Close()
}

// Close disconnects from every house and the bank.
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	clients := make([]*auction.Client, 0, len(a.houses))
	for _, client := range a.houses {
		clients = append(clients, client)
	}
	a.mu.Unlock()

	a.cancel()
	a.connects.Wait()
	for _, client := range clients {
		client.Close()
	}
	return a.bank.Close()
}

// handleBankPush runs on the bank connection's reader goroutine and
// must not block.
func (a *Agent) handleBankPush(push transport.Envelope) {
	if push.Op != bank.OpOpenAuction {
		a.logger.Debug("ignoring bank push", "op", push.Op)
		return
	}
	var announced bank.AuctionPush
	if err := push.Decode(&announced); err != nil {
		a.logger.Warn("malformed auction announcement", "error", err)
		return
	}

	a.mu.Lock()
	closed := a.closed
	if !closed {
		a.connects.Add(1)
	}
	a.mu.Unlock()
	if closed {
		return
	}

	go func() {
		defer a.connects.Done()
		if err := a.Connect(a.lifetime, announced.Device); err != nil && a.lifetime.Err() == nil {
			a.logger.Warn("connecting to announced house failed", "house", announced.Device.String(), "error", err)
		}
	}()
}

// handleHousePush runs on a house connection's reader goroutine and
// must not block.
func (a *Agent) handleHousePush(device bank.NetworkDevice, envelope transport.Envelope) {
	push, ok, err := auction.DecodePush(envelope)
	if !ok {
		a.logger.Debug("ignoring house push", "house", device.String(), "op", envelope.Op)
		return
	}
	if err != nil {
		a.logger.Warn("malformed bid push", "house", device.String(), "error", err)
		return
	}

	notification := Notification{House: device, Status: push.Status, Item: push.Item, Amount: push.Amount}
	select {
	case a.notifications <- notification:
	default:
		a.logger.Warn("notification dropped, channel full",
			"house", device.String(),
			"item_id", push.Item.ID,
			"status", push.Status,
		)
	}
}
