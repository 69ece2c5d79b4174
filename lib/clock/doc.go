// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the auction
// house and transport layers.
//
// Auction deadlines, settlement timers, and connect-retry backoff all
// read time through a Clock. Production wiring uses Real(); tests use
// Fake() and move time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	house := auction.NewHouse(auction.HouseConfig{Clock: c, ...})
//	c.WaitForTimers(3)          // three live items armed their timers
//	c.Advance(house.WaitTime()) // every deadline passes, settlement runs
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
