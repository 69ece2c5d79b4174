// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// market-agent is a scripted bidder. Each run opens a fresh bank
// account, deposits --deposit, connects to every auction house the
// bank knows about, runs one command, and leaves.
//
// Usage:
//
//	market-agent [flags] items
//	market-agent [flags] balance
//	market-agent [flags] bid <house> <item> <amount>
//	market-agent [flags] watch
//
// items lists the open items across all houses. bid places one bid;
// with --wait it then follows the item until the agent wins or is
// outbid. watch keeps bidding: every --interval it raises by --raise on
// each item it is not winning, up to --limit, and prints every
// notification until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/marketplace/agent"
	"github.com/bureau-foundation/marketplace/auction"
	"github.com/bureau-foundation/marketplace/bank"
	"github.com/bureau-foundation/marketplace/lib/config"
	"github.com/bureau-foundation/marketplace/lib/process"
	"github.com/bureau-foundation/marketplace/lib/service"
	"github.com/bureau-foundation/marketplace/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

// watchPolicy drives the watch command.
type watchPolicy struct {
	raise    decimal.Decimal
	limit    decimal.Decimal
	interval time.Duration
}

func run() error {
	var (
		flags       service.CommonFlags
		bankAddress string
		deposit     string
		wait        bool
		raise       string
		limit       string
		interval    time.Duration
	)
	flagSet := pflag.NewFlagSet("market-agent", pflag.ContinueOnError)
	service.RegisterCommonFlags(flagSet, &flags)
	flagSet.StringVar(&bankAddress, "bank", "", "bank host:port (overrides agent.bank_address)")
	flagSet.StringVar(&deposit, "deposit", "", "initial deposit (overrides agent.initial_deposit)")
	flagSet.BoolVar(&wait, "wait", false, "bid: wait for the outcome of the bid")
	flagSet.StringVar(&raise, "raise", "1", "watch: amount added to the current price on each bid")
	flagSet.StringVar(&limit, "limit", "0", "watch: highest amount to bid on any item")
	flagSet.DurationVar(&interval, "interval", 2*time.Second, "watch: time between bidding rounds")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: market-agent [flags] items|balance|bid <house> <item> <amount>|watch\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flags.ShowVersion {
		version.Print(os.Stdout, "market-agent")
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		flagSet.Usage()
		return errors.New("no command given")
	}
	command, args := args[0], args[1:]

	// Validate the command before touching the network.
	var (
		bidArgs bidArguments
		policy  watchPolicy
		err     error
	)
	switch command {
	case "items", "balance":
		if len(args) != 0 {
			return fmt.Errorf("%s takes no arguments", command)
		}
	case "bid":
		if bidArgs, err = parseBidArguments(args); err != nil {
			return err
		}
	case "watch":
		if policy, err = parseWatchPolicy(raise, limit, interval); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, err := service.LoadConfig(flags, func(cfg *config.Config) {
		if bankAddress != "" {
			cfg.Agent.BankAddress = bankAddress
		}
		if deposit != "" {
			cfg.Agent.InitialDeposit = deposit
		}
	})
	if err != nil {
		return err
	}
	initialDeposit, err := decimal.NewFromString(cfg.Agent.InitialDeposit)
	if err != nil {
		return fmt.Errorf("initial deposit %q: %w", cfg.Agent.InitialDeposit, err)
	}

	logger, err := service.NewLogger(os.Stderr, flags.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// The first signal starts an orderly leave; a second one kills.
	go func() {
		<-ctx.Done()
		stop()
	}()

	options, err := service.TransportOptions(cfg.Transport, logger)
	if err != nil {
		return err
	}
	bidder, err := agent.New(ctx, agent.Config{
		BankAddress:    cfg.Agent.BankAddress,
		InitialDeposit: initialDeposit,
		RetryDelay:     cfg.Transport.RetryDuration(),
		ConnectTimeout: cfg.Agent.ConnectDuration(),
		Transport:      options,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer bidder.Close()

	switch command {
	case "items":
		return printItems(ctx, os.Stdout, bidder)
	case "balance":
		return printBalance(ctx, os.Stdout, bidder)
	case "bid":
		return placeBid(ctx, os.Stdout, bidder, bidArgs, wait)
	default:
		return watch(ctx, os.Stdout, bidder, policy)
	}
}

type bidArguments struct {
	house  bank.NetworkDevice
	item   auction.ItemID
	amount decimal.Decimal
}

func parseBidArguments(args []string) (bidArguments, error) {
	if len(args) != 3 {
		return bidArguments{}, fmt.Errorf("bid takes <house> <item> <amount>, got %d arguments", len(args))
	}
	house, err := bank.ParseNetworkDevice(args[0])
	if err != nil {
		return bidArguments{}, err
	}
	item, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || item <= 0 {
		return bidArguments{}, fmt.Errorf("invalid item id %q", args[1])
	}
	amount, err := decimal.NewFromString(args[2])
	if err != nil {
		return bidArguments{}, fmt.Errorf("invalid amount %q: %w", args[2], err)
	}
	if !amount.IsPositive() {
		return bidArguments{}, fmt.Errorf("amount must be positive, got %s", amount)
	}
	return bidArguments{house: house, item: auction.ItemID(item), amount: amount}, nil
}

func parseWatchPolicy(raise, limit string, interval time.Duration) (watchPolicy, error) {
	raiseAmount, err := decimal.NewFromString(raise)
	if err != nil || !raiseAmount.IsPositive() {
		return watchPolicy{}, fmt.Errorf("--raise must be a positive amount, got %q", raise)
	}
	limitAmount, err := decimal.NewFromString(limit)
	if err != nil || !limitAmount.IsPositive() {
		return watchPolicy{}, fmt.Errorf("--limit must be a positive amount, got %q", limit)
	}
	if interval <= 0 {
		return watchPolicy{}, fmt.Errorf("--interval must be positive, got %s", interval)
	}
	return watchPolicy{raise: raiseAmount, limit: limitAmount, interval: interval}, nil
}

// nextBid returns the amount to offer on item, or false when the
// agent already leads or the raise would pass the limit.
func (p watchPolicy) nextBid(item auction.ItemInfo, account bank.AccountID) (decimal.Decimal, bool) {
	if item.State != auction.StateOpen || item.HighestBidder == account {
		return decimal.Decimal{}, false
	}
	amount := item.CurrentPrice.Add(p.raise)
	if amount.GreaterThan(p.limit) {
		return decimal.Decimal{}, false
	}
	return amount, true
}

func printItems(ctx context.Context, w io.Writer, bidder *agent.Agent) error {
	items, err := bidder.Items(ctx)
	if err != nil {
		return err
	}
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "HOUSE\tITEM\tNAME\tPRICE\tCLOSES")
	for _, entry := range items {
		fmt.Fprintf(table, "%s\t%d\t%s\t%s\t%s\n",
			entry.House, entry.Item.ID, entry.Item.Name,
			entry.Item.CurrentPrice, entry.Item.Deadline.Format(time.TimeOnly))
	}
	return table.Flush()
}

func printBalance(ctx context.Context, w io.Writer, bidder *agent.Agent) error {
	available, err := bidder.Balance(ctx)
	if err != nil {
		return err
	}
	total, err := bidder.TotalBalance(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "account %d: available %s, total %s\n", bidder.Account(), available, total)
	return nil
}

func placeBid(ctx context.Context, w io.Writer, bidder *agent.Agent, args bidArguments, wait bool) error {
	result, err := bidder.Bid(ctx, args.house, args.item, args.amount)
	if err != nil {
		return err
	}
	if !result.Accepted() {
		return fmt.Errorf("bid rejected: %s", result.Reason)
	}
	fmt.Fprintf(w, "bid %s on item %d at %s accepted\n", args.amount, args.item, args.house)
	if !wait {
		return leave(ctx, w, bidder)
	}

	for {
		select {
		case <-ctx.Done():
			return leave(context.WithoutCancel(ctx), w, bidder)
		case notification := <-bidder.Notifications():
			printNotification(w, notification)
			if notification.House == args.house && notification.Item.ID == args.item {
				return leave(ctx, w, bidder)
			}
		}
	}
}

func watch(ctx context.Context, w io.Writer, bidder *agent.Agent, policy watchPolicy) error {
	ticker := time.NewTicker(policy.interval)
	defer ticker.Stop()

	for {
		if err := bidRound(ctx, w, bidder, policy); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return leave(context.WithoutCancel(ctx), w, bidder)
		case notification := <-bidder.Notifications():
			printNotification(w, notification)
		case <-ticker.C:
		}
	}
}

func bidRound(ctx context.Context, w io.Writer, bidder *agent.Agent, policy watchPolicy) error {
	items, err := bidder.Items(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	for _, entry := range items {
		amount, ok := policy.nextBid(entry.Item, bidder.Account())
		if !ok {
			continue
		}
		result, err := bidder.Bid(ctx, entry.House, entry.Item.ID, amount)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if result.Accepted() {
			fmt.Fprintf(w, "bid %s on %q (item %d at %s)\n", amount, entry.Item.Name, entry.Item.ID, entry.House)
		}
	}
	return nil
}

func printNotification(w io.Writer, notification agent.Notification) {
	switch notification.Status {
	case auction.StatusWinner:
		fmt.Fprintf(w, "won %q (item %d at %s) for %s\n",
			notification.Item.Name, notification.Item.ID, notification.House, notification.Amount)
	case auction.StatusOutbid:
		fmt.Fprintf(w, "outbid on %q (item %d at %s), price now %s\n",
			notification.Item.Name, notification.Item.ID, notification.House, notification.Amount)
	default:
		fmt.Fprintf(w, "%s on item %d at %s\n", notification.Status, notification.Item.ID, notification.House)
	}
}

// leaveRetry is the wait between close requests while a house still
// holds one of the agent's winning bids.
const leaveRetry = time.Second

// leave asks every house for permission to go, retrying while any
// house is still settling a bid the agent leads.
func leave(ctx context.Context, w io.Writer, bidder *agent.Agent) error {
	for {
		allowed, err := bidder.Leave(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		fmt.Fprintln(w, "waiting for open bids to settle before leaving")
		select {
		case notification := <-bidder.Notifications():
			printNotification(w, notification)
		case <-time.After(leaveRetry):
		}
	}
}
