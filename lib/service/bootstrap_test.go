// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/marketplace/lib/config"
	"github.com/bureau-foundation/marketplace/transport"
)

func TestRegisterCommonFlags(t *testing.T) {
	var flags CommonFlags
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterCommonFlags(flagSet, &flags)

	err := flagSet.Parse([]string{"--compression", "lz4", "--call-timeout", "5s", "--version"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if flags.Compression != "lz4" || flags.CallTimeout != "5s" || !flags.ShowVersion {
		t.Errorf("flags = %+v", flags)
	}
	if flags.LogLevel != "info" {
		t.Errorf("LogLevel default = %q, want info", flags.LogLevel)
	}
}

func TestLoadConfigAppliesOverridesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketplace.yaml")
	content := "transport:\n  compression: zstd\n  call_timeout: 2s\nhouse:\n  max_live: 5\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(CommonFlags{ConfigPath: path, Compression: "lz4"}, func(cfg *config.Config) {
		cfg.House.MaxLive = 7
	})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Transport.Compression != "lz4" {
		t.Errorf("compression = %q, want the flag value lz4", cfg.Transport.Compression)
	}
	if cfg.Transport.CallDuration() != 2*time.Second {
		t.Errorf("call timeout = %v, want the file value 2s", cfg.Transport.CallDuration())
	}
	if cfg.House.MaxLive != 7 {
		t.Errorf("max_live = %d, want the override 7", cfg.House.MaxLive)
	}
}

func TestLoadConfigValidatesOverrides(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")

	_, err := LoadConfig(CommonFlags{CallTimeout: "soon"}, nil)
	if err == nil {
		t.Fatal("expected an invalid call timeout to be rejected")
	}

	_, err = LoadConfig(CommonFlags{}, func(cfg *config.Config) { cfg.House.WaitTime = "0s" })
	if err == nil {
		t.Fatal("expected a zero wait time to be rejected")
	}
}

func TestNewLogger(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var buffer bytes.Buffer
	logger, err := NewLogger(&buffer, "warn")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "account_id", 3)

	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buffer.String(), err)
	}
	if record["msg"] != "kept" || record["account_id"] != float64(3) {
		t.Errorf("record = %v", record)
	}

	if _, err := NewLogger(&buffer, "loud"); err == nil {
		t.Error("expected an unknown level to be rejected")
	}
}

func TestTransportOptions(t *testing.T) {
	cfg := config.Default().Transport
	cfg.Compression = "zstd"
	cfg.CallTimeout = "3s"
	cfg.CompressThreshold = 512

	options, err := TransportOptions(cfg, nil)
	if err != nil {
		t.Fatalf("TransportOptions: %v", err)
	}
	if options.Compression != transport.CompressionZstd {
		t.Errorf("compression = %v, want zstd", options.Compression)
	}
	if options.CallTimeout != 3*time.Second || options.CompressThreshold != 512 {
		t.Errorf("options = %+v", options)
	}

	cfg.Compression = "gzip"
	if _, err := TransportOptions(cfg, nil); err == nil {
		t.Error("expected unknown compression to be rejected")
	}
}

func TestDialConfig(t *testing.T) {
	cfg := config.Default().Transport
	cfg.RetryDelay = "250ms"

	dial := DialConfig("localhost:8080", cfg, transport.Options{})
	if dial.Address != "localhost:8080" || dial.RetryDelay != 250*time.Millisecond {
		t.Errorf("dial config = %+v", dial)
	}
}
