// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// market-bank runs the marketplace bank: the ledger of agent and
// auction house accounts, the escrow locks placed by bids, and the
// registry of live auction houses.
//
// Usage:
//
//	market-bank [flags] [port]
//
// The port argument overrides bank.listen from the config file.
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

	"github.com/bureau-foundation/marketplace/bank"
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

func run() error {
	var flags service.CommonFlags
	flagSet := pflag.NewFlagSet("market-bank", pflag.ContinueOnError)
	service.RegisterCommonFlags(flagSet, &flags)
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: market-bank [flags] [port]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flags.ShowVersion {
		version.Print(os.Stdout, "market-bank")
		return nil
	}

	args := flagSet.Args()
	if len(args) > 1 {
		return fmt.Errorf("unexpected argument: %s", args[1])
	}
	var listen string
	if len(args) == 1 {
		if _, err := strconv.ParseUint(args[0], 10, 16); err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		listen = net.JoinHostPort("", args[0])
	}

	cfg, err := service.LoadConfig(flags, func(cfg *config.Config) {
		if listen != "" {
			cfg.Bank.Listen = listen
		}
	})
	if err != nil {
		return err
	}

	logger, err := service.NewLogger(os.Stderr, flags.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	options, err := service.TransportOptions(cfg.Transport, logger)
	if err != nil {
		return err
	}
	listener, err := transport.Listen(cfg.Bank.Listen, options)
	if err != nil {
		return err
	}

	server := bank.NewServer(bank.New(logger), listener, logger)
	logger.Info("bank listening",
		"address", server.Address(),
		"environment", string(cfg.Environment),
		"compression", options.Compression.String(),
		"version", version.Info(),
	)

	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("bank stopped")
	return nil
}
