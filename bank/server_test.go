// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/marketplace/lib/testutil"
	"github.com/bureau-foundation/marketplace/transport"
)

// startBank runs a bank server on a loopback port for the duration of
// the test.
func startBank(t *testing.T) *Server {
	t.Helper()
	listener, err := transport.Listen("127.0.0.1:0", transport.Options{Logger: testutil.Logger()})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	server := NewServer(New(testutil.Logger()), listener, testutil.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "bank server did not stop")
	})
	return server
}

func dialBank(t *testing.T, server *Server, pushes transport.PushHandler) *Client {
	t.Helper()
	conn, err := transport.Dial(context.Background(), transport.DialConfig{
		Address: server.Address(),
		Options: transport.Options{Logger: testutil.Logger(), Pushes: pushes},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	client := NewClient(conn)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientLedgerOperations(t *testing.T) {
	server := startBank(t)
	client := dialBank(t, server, nil)
	ctx := context.Background()

	buyer, err := client.NewAccount(ctx)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	seller, err := client.NewAccount(ctx)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if buyer == seller {
		t.Fatalf("NewAccount returned %d twice", buyer)
	}

	if err := client.AddFunds(ctx, buyer, amount("250.75")); err != nil {
		t.Fatalf("AddFunds: %v", err)
	}
	lockID, err := client.LockFunds(ctx, buyer, amount("100"))
	if err != nil {
		t.Fatalf("LockFunds: %v", err)
	}
	if balance, err := client.Balance(ctx, buyer); err != nil || !balance.Equal(amount("150.75")) {
		t.Errorf("Balance = %s, %v; want 150.75", balance, err)
	}
	if total, err := client.TotalBalance(ctx, buyer); err != nil || !total.Equal(amount("250.75")) {
		t.Errorf("TotalBalance = %s, %v; want 250.75", total, err)
	}

	moved, err := client.TransferFromLock(ctx, buyer, seller, lockID)
	if err != nil {
		t.Fatalf("TransferFromLock: %v", err)
	}
	if !moved.Equal(amount("100")) {
		t.Errorf("moved %s, want 100", moved)
	}
	if err := client.Transfer(ctx, seller, buyer, amount("10")); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if balance, _ := client.Balance(ctx, seller); !balance.Equal(amount("90")) {
		t.Errorf("seller balance = %s, want 90", balance)
	}
	if err := client.RemoveFunds(ctx, buyer, amount("160.75")); err != nil {
		t.Fatalf("RemoveFunds: %v", err)
	}
	if balance, _ := client.Balance(ctx, buyer); !balance.IsZero() {
		t.Errorf("buyer balance = %s, want 0", balance)
	}
}

func TestClientMapsLedgerErrors(t *testing.T) {
	server := startBank(t)
	client := dialBank(t, server, nil)
	ctx := context.Background()

	account, err := client.NewAccount(ctx)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if _, err := client.LockFunds(ctx, account, amount("1")); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("LockFunds on empty account = %v, want ErrInsufficientFunds", err)
	}
	if err := client.UnlockFunds(ctx, account, "no-such-lock"); !errors.Is(err, ErrUnknownLock) {
		t.Errorf("UnlockFunds = %v, want ErrUnknownLock", err)
	}
	if _, err := client.Balance(ctx, 999); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("Balance = %v, want ErrUnknownAccount", err)
	}
	if err := client.AddFunds(ctx, account, amount("-5")); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("AddFunds(-5) = %v, want ErrInvalidAmount", err)
	}
}

func TestClientLockWithChosenID(t *testing.T) {
	server := startBank(t)
	client := dialBank(t, server, nil)
	ctx := context.Background()

	account, err := client.NewAccount(ctx)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if err := client.AddFunds(ctx, account, amount("40")); err != nil {
		t.Fatalf("AddFunds: %v", err)
	}
	if err := client.LockFundsAs(ctx, account, "bid-7", amount("25")); err != nil {
		t.Fatalf("LockFundsAs: %v", err)
	}
	if err := client.LockFundsAs(ctx, account, "bid-7", amount("5")); !errors.Is(err, ErrDuplicateLock) {
		t.Errorf("second LockFundsAs = %v, want ErrDuplicateLock", err)
	}
	if err := client.UnlockFunds(ctx, account, "bid-7"); err != nil {
		t.Fatalf("UnlockFunds by chosen id: %v", err)
	}
	if balance, _ := client.Balance(ctx, account); !balance.Equal(amount("40")) {
		t.Errorf("Balance = %s, want 40", balance)
	}
}

func TestOpenAuctionNotifiesOtherClients(t *testing.T) {
	server := startBank(t)
	pushes := make(chan transport.Envelope, 4)
	house := dialBank(t, server, nil)
	agent := dialBank(t, server, func(push transport.Envelope) { pushes <- push })
	ctx := context.Background()

	// A round trip from the agent guarantees the server has accepted
	// its connection before the house announces itself.
	if _, err := agent.NewAccount(ctx); err != nil {
		t.Fatalf("NewAccount: %v", err)
	}

	device := NetworkDevice{Host: "127.0.0.1", Port: 7001}
	if err := house.OpenAuction(ctx, device); err != nil {
		t.Fatalf("OpenAuction: %v", err)
	}

	push := testutil.RequireReceive(t, pushes, 5*time.Second, "agent missed OPENAUCTION push")
	if push.Op != OpOpenAuction || push.Ack {
		t.Fatalf("push = %+v", push)
	}
	var announced AuctionPush
	if err := push.Decode(&announced); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if announced.Device != device {
		t.Errorf("announced %v, want %v", announced.Device, device)
	}

	devices, err := agent.Auctions(ctx)
	if err != nil {
		t.Fatalf("Auctions: %v", err)
	}
	if len(devices) != 1 || devices[0] != device {
		t.Errorf("Auctions = %v", devices)
	}

	if err := house.CloseAuction(ctx, device); err != nil {
		t.Fatalf("CloseAuction: %v", err)
	}
	if devices, _ := agent.Auctions(ctx); len(devices) != 0 {
		t.Errorf("Auctions after close = %v", devices)
	}
}

func TestDroppedHouseIsDeregistered(t *testing.T) {
	server := startBank(t)
	house := dialBank(t, server, nil)
	agent := dialBank(t, server, nil)
	ctx := context.Background()

	device := NetworkDevice{Host: "127.0.0.1", Port: 7002}
	if err := house.OpenAuction(ctx, device); err != nil {
		t.Fatalf("OpenAuction: %v", err)
	}
	if devices, _ := agent.Auctions(ctx); len(devices) != 1 {
		t.Fatalf("Auctions = %v, want the new house", devices)
	}

	// The house goes away without CLOSEAUCTION.
	house.Close()
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		devices, err := agent.Auctions(ctx)
		return err == nil && len(devices) == 0
	}, "dropped house still registered")

	// A house that closed properly is unaffected by its later disconnect.
	other := dialBank(t, server, nil)
	otherDevice := NetworkDevice{Host: "127.0.0.1", Port: 7003}
	if err := other.OpenAuction(ctx, otherDevice); err != nil {
		t.Fatalf("OpenAuction: %v", err)
	}
	if err := other.CloseAuction(ctx, otherDevice); err != nil {
		t.Fatalf("CloseAuction: %v", err)
	}
	if err := other.OpenAuction(ctx, otherDevice); err != nil {
		t.Fatalf("reopening: %v", err)
	}
	if devices, _ := agent.Auctions(ctx); len(devices) != 1 || devices[0] != otherDevice {
		t.Errorf("Auctions = %v, want [%v]", devices, otherDevice)
	}
}
