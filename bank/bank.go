// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bank

import (
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// NetworkDevice is a reachable host:port, used for auction house
// endpoints.
type NetworkDevice struct {
	Host string `cbor:"host"`
	Port int    `cbor:"port"`
}

func (d NetworkDevice) String() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// ParseNetworkDevice splits a "host:port" address.
func ParseNetworkDevice(address string) (NetworkDevice, error) {
	host, portText, err := net.SplitHostPort(address)
	if err != nil {
		return NetworkDevice{}, fmt.Errorf("parsing address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 0 || port > 65535 {
		return NetworkDevice{}, fmt.Errorf("parsing address %q: invalid port %q", address, portText)
	}
	return NetworkDevice{Host: host, Port: port}, nil
}

// Bank owns every account and the registry of live auction houses.
// Account ids are assigned from a counter starting at 1. The account
// map is guarded by a read-write lock; operations on an account then
// hold only that account's mutex, so different accounts never
// contend.
type Bank struct {
	logger *slog.Logger

	lastAccountID atomic.Int64

	mu       sync.RWMutex
	accounts map[AccountID]*Account

	serversMu sync.Mutex
	servers   []NetworkDevice
}

// New returns an empty bank.
func New(logger *slog.Logger) *Bank {
	return &Bank{
		logger:   logger,
		accounts: make(map[AccountID]*Account),
	}
}

// AddAccount creates an account with a zero balance.
func (b *Bank) AddAccount() AccountID {
	id := AccountID(b.lastAccountID.Add(1))
	b.mu.Lock()
	b.accounts[id] = newAccount(id)
	b.mu.Unlock()
	b.logger.Info("account created", "account_id", id)
	return id
}

// Account returns the account with the given id.
func (b *Bank) Account(id AccountID) (*Account, error) {
	b.mu.RLock()
	account, ok := b.accounts[id]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, ErrUnknownAccount)
	}
	return account, nil
}

// Balance returns an account's free balance.
func (b *Bank) Balance(id AccountID) (decimal.Decimal, error) {
	account, err := b.Account(id)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance(), nil
}

// TotalBalance returns an account's free plus locked funds.
func (b *Bank) TotalBalance(id AccountID) (decimal.Decimal, error) {
	account, err := b.Account(id)
	if err != nil {
		return decimal.Zero, err
	}
	return account.TotalBalance(), nil
}

// AddFunds deposits into an account.
func (b *Bank) AddFunds(id AccountID, amount decimal.Decimal) error {
	account, err := b.Account(id)
	if err != nil {
		return err
	}
	return account.AddFunds(amount)
}

// RemoveFunds withdraws from an account.
func (b *Bank) RemoveFunds(id AccountID, amount decimal.Decimal) error {
	account, err := b.Account(id)
	if err != nil {
		return err
	}
	return account.RemoveFunds(amount)
}

// LockFunds escrows amount on an account.
func (b *Bank) LockFunds(id AccountID, amount decimal.Decimal) (LockID, error) {
	account, err := b.Account(id)
	if err != nil {
		return "", err
	}
	lockID, err := account.LockFunds(amount)
	if err != nil {
		return "", err
	}
	b.logger.Debug("funds locked", "account_id", id, "lock_id", lockID, "amount", amount)
	return lockID, nil
}

// LockFundsAs escrows amount on an account under a lock id chosen by
// the caller.
func (b *Bank) LockFundsAs(id AccountID, lockID LockID, amount decimal.Decimal) error {
	account, err := b.Account(id)
	if err != nil {
		return err
	}
	if err := account.LockFundsAs(lockID, amount); err != nil {
		return err
	}
	b.logger.Debug("funds locked", "account_id", id, "lock_id", lockID, "amount", amount)
	return nil
}

// UnlockFunds releases an escrow back to its account.
func (b *Bank) UnlockFunds(id AccountID, lockID LockID) error {
	account, err := b.Account(id)
	if err != nil {
		return err
	}
	if err := account.UnlockFunds(lockID); err != nil {
		return err
	}
	b.logger.Debug("funds unlocked", "account_id", id, "lock_id", lockID)
	return nil
}

// Transfer moves amount from one account's free balance to another's.
// Both accounts are resolved before anything is debited.
func (b *Bank) Transfer(from, to AccountID, amount decimal.Decimal) error {
	source, err := b.Account(from)
	if err != nil {
		return err
	}
	destination, err := b.Account(to)
	if err != nil {
		return err
	}
	if err := source.RemoveFunds(amount); err != nil {
		return err
	}
	if err := destination.AddFunds(amount); err != nil {
		return fmt.Errorf("crediting account %d after debiting %d: %w", to, from, err)
	}
	b.logger.Info("transfer", "from", from, "to", to, "amount", amount)
	return nil
}

// TransferFromLock consumes a lock on one account and credits the
// escrowed amount to another. It returns the amount moved.
func (b *Bank) TransferFromLock(from, to AccountID, lockID LockID) (decimal.Decimal, error) {
	source, err := b.Account(from)
	if err != nil {
		return decimal.Zero, err
	}
	destination, err := b.Account(to)
	if err != nil {
		return decimal.Zero, err
	}
	amount, err := source.ConsumeLock(lockID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := destination.AddFunds(amount); err != nil {
		return decimal.Zero, fmt.Errorf("crediting account %d from lock %q: %w", to, lockID, err)
	}
	b.logger.Info("transfer from lock", "from", from, "to", to, "lock_id", lockID, "amount", amount)
	return amount, nil
}

// OpenServer registers an auction house endpoint. It reports false if
// the endpoint was already registered.
func (b *Bank) OpenServer(device NetworkDevice) bool {
	b.serversMu.Lock()
	defer b.serversMu.Unlock()
	if slices.Contains(b.servers, device) {
		return false
	}
	b.servers = append(b.servers, device)
	b.logger.Info("auction house registered", "device", device.String())
	return true
}

// CloseServer removes an auction house endpoint. It reports false if
// the endpoint was not registered.
func (b *Bank) CloseServer(device NetworkDevice) bool {
	b.serversMu.Lock()
	defer b.serversMu.Unlock()
	index := slices.Index(b.servers, device)
	if index < 0 {
		return false
	}
	b.servers = slices.Delete(b.servers, index, index+1)
	b.logger.Info("auction house deregistered", "device", device.String())
	return true
}

// Servers returns the registered endpoints in registration order.
func (b *Bank) Servers() []NetworkDevice {
	b.serversMu.Lock()
	defer b.serversMu.Unlock()
	return slices.Clone(b.servers)
}
