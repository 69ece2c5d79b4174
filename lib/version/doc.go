// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version carries build information for the marketplace
// binaries.
//
// [GitCommit], [BuildTime] and [Version] are injected with -ldflags -X
// and default to "unknown" / "0.1.0-dev" in development builds and
// tests. [Info] is the one-line form printed by --version; [Full] adds
// the Go toolchain and platform.
package version
