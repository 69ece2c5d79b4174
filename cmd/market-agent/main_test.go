// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bureau-foundation/marketplace/agent"
	"github.com/bureau-foundation/marketplace/auction"
	"github.com/bureau-foundation/marketplace/bank"
)

func TestParseBidArguments(t *testing.T) {
	args, err := parseBidArguments([]string{"localhost:8081", "4", "12.50"})
	if err != nil {
		t.Fatalf("parseBidArguments: %v", err)
	}
	if args.house != (bank.NetworkDevice{Host: "localhost", Port: 8081}) {
		t.Errorf("house = %+v", args.house)
	}
	if args.item != 4 {
		t.Errorf("item = %d, want 4", args.item)
	}
	if !args.amount.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("amount = %s, want 12.5", args.amount)
	}
}

func TestParseBidArgumentsRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing amount", []string{"localhost:8081", "4"}},
		{"no port", []string{"localhost", "4", "10"}},
		{"item zero", []string{"localhost:8081", "0", "10"}},
		{"item text", []string{"localhost:8081", "lamp", "10"}},
		{"amount text", []string{"localhost:8081", "4", "ten"}},
		{"amount negative", []string{"localhost:8081", "4", "-1"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := parseBidArguments(test.args); err == nil {
				t.Errorf("parseBidArguments(%q) succeeded, want an error", test.args)
			}
		})
	}
}

func TestParseWatchPolicy(t *testing.T) {
	if _, err := parseWatchPolicy("1", "0", time.Second); err == nil {
		t.Error("expected a zero limit to be rejected")
	}
	if _, err := parseWatchPolicy("0", "100", time.Second); err == nil {
		t.Error("expected a zero raise to be rejected")
	}
	if _, err := parseWatchPolicy("1", "100", 0); err == nil {
		t.Error("expected a zero interval to be rejected")
	}
	policy, err := parseWatchPolicy("2.5", "100", time.Second)
	if err != nil {
		t.Fatalf("parseWatchPolicy: %v", err)
	}
	if !policy.raise.Equal(decimal.RequireFromString("2.5")) || policy.interval != time.Second {
		t.Errorf("policy = %+v", policy)
	}
}

func TestWatchPolicyNextBid(t *testing.T) {
	policy := watchPolicy{
		raise:    decimal.NewFromInt(5),
		limit:    decimal.NewFromInt(30),
		interval: time.Second,
	}
	const self bank.AccountID = 7

	item := auction.ItemInfo{ID: 1, CurrentPrice: decimal.NewFromInt(20), HighestBidder: 3, State: auction.StateOpen}
	amount, ok := policy.nextBid(item, self)
	if !ok || !amount.Equal(decimal.NewFromInt(25)) {
		t.Errorf("nextBid = %s, %v; want 25, true", amount, ok)
	}

	leading := item
	leading.HighestBidder = self
	if _, ok := policy.nextBid(leading, self); ok {
		t.Error("expected no bid on an item the agent already leads")
	}

	expensive := item
	expensive.CurrentPrice = decimal.NewFromInt(26)
	if _, ok := policy.nextBid(expensive, self); ok {
		t.Error("expected no bid past the limit")
	}

	atLimit := item
	atLimit.CurrentPrice = decimal.NewFromInt(25)
	if amount, ok := policy.nextBid(atLimit, self); !ok || !amount.Equal(policy.limit) {
		t.Errorf("nextBid at the limit = %s, %v; want 30, true", amount, ok)
	}

	closing := item
	closing.State = auction.StateClosing
	if _, ok := policy.nextBid(closing, self); ok {
		t.Error("expected no bid on a closing item")
	}
}

func TestPrintNotification(t *testing.T) {
	house := bank.NetworkDevice{Host: "localhost", Port: 8081}
	var buffer bytes.Buffer

	printNotification(&buffer, agent.Notification{
		House:  house,
		Status: auction.StatusWinner,
		Item:   auction.ItemInfo{ID: 2, Name: "brass lamp"},
		Amount: decimal.NewFromInt(40),
	})
	printNotification(&buffer, agent.Notification{
		House:  house,
		Status: auction.StatusOutbid,
		Item:   auction.ItemInfo{ID: 3, Name: "oak chair"},
		Amount: decimal.NewFromInt(55),
	})

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	want := []string{
		`won "brass lamp" (item 2 at localhost:8081) for 40`,
		`outbid on "oak chair" (item 3 at localhost:8081), price now 55`,
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
