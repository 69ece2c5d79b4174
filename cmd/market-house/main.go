// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// market-house runs one auction house. It opens an account at the
// bank, lists items from its catalog a few at a time, announces its
// endpoint to the bank so agents can find it, and settles each item to
// the highest bidder when the item's wait time elapses.
//
// Usage:
//
//	market-house [flags] [<port> <bankHost> <bankPort> <waitTimeMs>]
//
// The positional form overrides house.listen, house.bank_address, and
// house.wait_time from the config file.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/marketplace/auction"
	"github.com/bureau-foundation/marketplace/bank"
	"github.com/bureau-foundation/marketplace/lib/catalog"
	"github.com/bureau-foundation/marketplace/lib/clock"
	"github.com/bureau-foundation/marketplace/lib/config"
	"github.com/bureau-foundation/marketplace/lib/process"
	"github.com/bureau-foundation/marketplace/lib/service"
	"github.com/bureau-foundation/marketplace/lib/version"
	"github.com/bureau-foundation/marketplace/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

// positional holds the optional "<port> <bankHost> <bankPort>
// <waitTimeMs>" arguments.
type positional struct {
	listen      string
	bankAddress string
	waitTime    string
}

func parsePositional(args []string) (positional, error) {
	switch len(args) {
	case 0:
		return positional{}, nil
	case 4:
	default:
		return positional{}, fmt.Errorf("expected <port> <bankHost> <bankPort> <waitTimeMs>, got %d arguments", len(args))
	}
	for _, port := range []string{args[0], args[2]} {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return positional{}, fmt.Errorf("invalid port %q", port)
		}
	}
	waitMillis, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil || waitMillis <= 0 {
		return positional{}, fmt.Errorf("invalid wait time %q: want a positive number of milliseconds", args[3])
	}
	return positional{
		listen:      net.JoinHostPort("", args[0]),
		bankAddress: net.JoinHostPort(args[1], args[2]),
		waitTime:    strconv.FormatInt(waitMillis, 10) + "ms",
	}, nil
}

func run() error {
	var (
		flags       service.CommonFlags
		catalogPath string
		advertise   string
		maxLive     int
	)
	flagSet := pflag.NewFlagSet("market-house", pflag.ContinueOnError)
	service.RegisterCommonFlags(flagSet, &flags)
	flagSet.StringVar(&catalogPath, "catalog", "", "item catalog file, text or .jsonc (overrides house.catalog)")
	flagSet.StringVar(&advertise, "advertise", "", "host announced to the bank for agents to dial (overrides house.advertise)")
	flagSet.IntVar(&maxLive, "max-live", 0, "items open at once (overrides house.max_live)")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: market-house [flags] [<port> <bankHost> <bankPort> <waitTimeMs>]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flags.ShowVersion {
		version.Print(os.Stdout, "market-house")
		return nil
	}

	args, err := parsePositional(flagSet.Args())
	if err != nil {
		return err
	}

	cfg, err := service.LoadConfig(flags, func(cfg *config.Config) {
		if args.listen != "" {
			cfg.House.Listen = args.listen
			cfg.House.BankAddress = args.bankAddress
			cfg.House.WaitTime = args.waitTime
		}
		if catalogPath != "" {
			cfg.House.Catalog = catalogPath
		}
		if advertise != "" {
			cfg.House.Advertise = advertise
		}
		if maxLive != 0 {
			cfg.House.MaxLive = maxLive
		}
	})
	if err != nil {
		return err
	}

	logger, err := service.NewLogger(os.Stderr, flags.LogLevel)
	if err != nil {
		return err
	}

	items, err := catalog.Load(cfg.House.Catalog)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded",
		"path", cfg.House.Catalog,
		"items", len(items.Entries),
		"digest", items.Digest,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	options, err := service.TransportOptions(cfg.Transport, logger)
	if err != nil {
		return err
	}

	logger.Info("connecting to bank", "address", cfg.House.BankAddress)
	bankOptions := options
	bankOptions.Pushes = auction.BankPushes(logger)
	bankConn, err := transport.Dial(ctx, service.DialConfig(cfg.House.BankAddress, cfg.Transport, bankOptions))
	if err != nil {
		return fmt.Errorf("connecting to bank: %w", err)
	}
	bankClient := bank.NewClient(bankConn)
	defer bankClient.Close()

	// Settlement needs the bank; without it the house cannot trade.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-bankClient.Done():
			logger.Error("bank connection lost, closing house")
			cancel()
		case <-ctx.Done():
		}
	}()

	house, err := auction.NewHouse(auction.HouseConfig{
		Catalog:  items.Entries,
		WaitTime: cfg.House.WaitDuration(),
		MaxLive:  cfg.House.MaxLive,
		Bank:     bankClient,
		Clock:    clock.Real(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := house.Start(ctx); err != nil {
		return err
	}

	listener, err := transport.Listen(cfg.House.Listen, options)
	if err != nil {
		return err
	}
	listenDevice, err := bank.ParseNetworkDevice(listener.Address())
	if err != nil {
		listener.Close()
		return err
	}
	device := bank.NetworkDevice{Host: cfg.House.Advertise, Port: listenDevice.Port}

	server := auction.NewServer(house, listener, bankClient, device, logger)
	logger.Info("house listening",
		"address", listener.Address(),
		"advertise", device.String(),
		"account_id", house.Account(),
		"wait_time", cfg.House.WaitDuration().String(),
		"version", version.Info(),
	)

	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("house stopped")
	return nil
}
