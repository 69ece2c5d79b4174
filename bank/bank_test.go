// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bank

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/bureau-foundation/marketplace/lib/testutil"
)

func TestBankAssignsSequentialAccountIDs(t *testing.T) {
	b := New(testutil.Logger())
	for want := AccountID(1); want <= 3; want++ {
		if got := b.AddAccount(); got != want {
			t.Errorf("AddAccount = %d, want %d", got, want)
		}
	}
}

func TestBankUnknownAccount(t *testing.T) {
	b := New(testutil.Logger())
	if _, err := b.Balance(42); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("Balance = %v, want ErrUnknownAccount", err)
	}
	if err := b.AddFunds(42, amount("1")); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("AddFunds = %v, want ErrUnknownAccount", err)
	}
	if _, err := b.LockFunds(42, amount("1")); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("LockFunds = %v, want ErrUnknownAccount", err)
	}
}

func TestBankTransfer(t *testing.T) {
	b := New(testutil.Logger())
	alice, bob := b.AddAccount(), b.AddAccount()
	if err := b.AddFunds(alice, amount("40")); err != nil {
		t.Fatalf("AddFunds: %v", err)
	}

	if err := b.Transfer(alice, bob, amount("15")); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got, _ := b.Balance(alice); !got.Equal(amount("25")) {
		t.Errorf("alice = %s, want 25", got)
	}
	if got, _ := b.Balance(bob); !got.Equal(amount("15")) {
		t.Errorf("bob = %s, want 15", got)
	}

	if err := b.Transfer(alice, bob, amount("26")); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdrawing Transfer = %v, want ErrInsufficientFunds", err)
	}
	if err := b.Transfer(alice, 99, amount("1")); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("Transfer to unknown = %v, want ErrUnknownAccount", err)
	}
	if got, _ := b.Balance(alice); !got.Equal(amount("25")) {
		t.Errorf("failed transfers changed alice to %s", got)
	}
}

func TestBankTransferFromLock(t *testing.T) {
	b := New(testutil.Logger())
	bidder, house := b.AddAccount(), b.AddAccount()
	if err := b.AddFunds(bidder, amount("100")); err != nil {
		t.Fatalf("AddFunds: %v", err)
	}
	lockID, err := b.LockFunds(bidder, amount("60"))
	if err != nil {
		t.Fatalf("LockFunds: %v", err)
	}

	moved, err := b.TransferFromLock(bidder, house, lockID)
	if err != nil {
		t.Fatalf("TransferFromLock: %v", err)
	}
	if !moved.Equal(amount("60")) {
		t.Errorf("moved %s, want 60", moved)
	}
	if got, _ := b.TotalBalance(bidder); !got.Equal(amount("40")) {
		t.Errorf("bidder total = %s, want 40", got)
	}
	if got, _ := b.Balance(house); !got.Equal(amount("60")) {
		t.Errorf("house balance = %s, want 60", got)
	}
	if _, err := b.TransferFromLock(bidder, house, lockID); !errors.Is(err, ErrUnknownLock) {
		t.Errorf("second TransferFromLock = %v, want ErrUnknownLock", err)
	}
}

func TestBankServerRegistry(t *testing.T) {
	b := New(testutil.Logger())
	first := NetworkDevice{Host: "127.0.0.1", Port: 9001}
	second := NetworkDevice{Host: "127.0.0.1", Port: 9002}

	if !b.OpenServer(first) || !b.OpenServer(second) {
		t.Fatal("OpenServer rejected a new device")
	}
	if b.OpenServer(first) {
		t.Error("OpenServer accepted a duplicate")
	}
	if got := b.Servers(); !slices.Equal(got, []NetworkDevice{first, second}) {
		t.Errorf("Servers = %v", got)
	}
	if !b.CloseServer(first) {
		t.Error("CloseServer did not find a registered device")
	}
	if b.CloseServer(first) {
		t.Error("CloseServer removed a device twice")
	}
	if got := b.Servers(); !slices.Equal(got, []NetworkDevice{second}) {
		t.Errorf("Servers after close = %v", got)
	}
}

func TestBankConcurrentTransfersConserveFunds(t *testing.T) {
	b := New(testutil.Logger())
	accounts := make([]AccountID, 4)
	for i := range accounts {
		accounts[i] = b.AddAccount()
		if err := b.AddFunds(accounts[i], amount("100")); err != nil {
			t.Fatalf("AddFunds: %v", err)
		}
	}

	var wg sync.WaitGroup
	for worker := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := range 100 {
				from := accounts[(worker+step)%len(accounts)]
				to := accounts[(worker+step+1)%len(accounts)]
				err := b.Transfer(from, to, amount("3.25"))
				if err != nil && !errors.Is(err, ErrInsufficientFunds) {
					t.Errorf("Transfer: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	sum := amount("0")
	for _, id := range accounts {
		balance, err := b.Balance(id)
		if err != nil {
			t.Fatalf("Balance: %v", err)
		}
		if balance.IsNegative() {
			t.Errorf("account %d went negative: %s", id, balance)
		}
		sum = sum.Add(balance)
	}
	if !sum.Equal(amount("400")) {
		t.Errorf("funds not conserved: sum = %s, want 400", sum)
	}
}

func TestParseNetworkDevice(t *testing.T) {
	device, err := ParseNetworkDevice("localhost:8081")
	if err != nil {
		t.Fatalf("ParseNetworkDevice: %v", err)
	}
	if device.Host != "localhost" || device.Port != 8081 {
		t.Errorf("device = %+v", device)
	}
	if device.String() != "localhost:8081" {
		t.Errorf("String = %q", device.String())
	}
	for _, bad := range []string{"localhost", "localhost:http", "localhost:70000"} {
		if _, err := ParseNetworkDevice(bad); err == nil {
			t.Errorf("ParseNetworkDevice(%q) succeeded", bad)
		}
	}
}
