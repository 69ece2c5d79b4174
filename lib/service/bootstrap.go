// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/marketplace/lib/config"
	"github.com/bureau-foundation/marketplace/transport"
)

// CommonFlags holds the flag values shared by all marketplace binaries.
type CommonFlags struct {
	ConfigPath  string
	Compression string
	CallTimeout string
	LogLevel    string
	ShowVersion bool
}

// RegisterCommonFlags binds [CommonFlags] to flagSet. Empty values
// leave the configured setting alone.
func RegisterCommonFlags(flagSet *pflag.FlagSet, flags *CommonFlags) {
	flagSet.StringVar(&flags.ConfigPath, "config", "", "path to marketplace.yaml (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&flags.Compression, "compression", "", "frame compression: none, lz4, or zstd")
	flagSet.StringVar(&flags.CallTimeout, "call-timeout", "", "per-request timeout, e.g. 5s (0s waits indefinitely)")
	flagSet.StringVar(&flags.LogLevel, "log-level", "info", "log level: debug, info, warn, or error")
	flagSet.BoolVar(&flags.ShowVersion, "version", false, "print version information and exit")
}

// LoadConfig resolves the configuration named by flags.ConfigPath (or
// the environment), applies the common flag overrides, then
// binary-specific overrides, and validates the result.
func LoadConfig(flags CommonFlags, overrides func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Resolve(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.Compression != "" {
		cfg.Transport.Compression = flags.Compression
	}
	if flags.CallTimeout != "" {
		cfg.Transport.CallTimeout = flags.CallTimeout
	}
	if overrides != nil {
		overrides(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger creates the standard service logger: a JSON handler on w
// at the named level. It also becomes the slog default.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parsed,
	}))
	slog.SetDefault(logger)
	return logger, nil
}

// TransportOptions converts the transport section into connection
// options. Handlers are left for the caller to install.
func TransportOptions(cfg config.TransportConfig, logger *slog.Logger) (transport.Options, error) {
	compression, err := transport.ParseCompressionTag(cfg.Compression)
	if err != nil {
		return transport.Options{}, err
	}
	return transport.Options{
		Logger:            logger,
		Compression:       compression,
		CompressThreshold: cfg.CompressThreshold,
		CallTimeout:       cfg.CallDuration(),
	}, nil
}

// DialConfig returns the settings for connecting to address with the
// configured retry delay.
func DialConfig(address string, cfg config.TransportConfig, options transport.Options) transport.DialConfig {
	return transport.DialConfig{
		Address:    address,
		RetryDelay: cfg.RetryDuration(),
		Options:    options,
	}
}
