// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service holds the startup sequence shared by the marketplace
// binaries.
//
// Every binary registers [CommonFlags] on its pflag set, resolves its
// configuration with [LoadConfig] (config file, then flag overrides,
// then validation), creates its logger with [NewLogger], and derives
// connection settings with [TransportOptions]. Binary-specific flags
// and positional arguments are applied by the caller before
// validation through the override callback.
package service
