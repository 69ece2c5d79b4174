// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the marketplace
// binaries. Errors returned from run() are reported before or after the
// structured logger exists, so they go straight to stderr through
// [Fatal].
package process
