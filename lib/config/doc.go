// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// marketplace binaries.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the MARKETPLACE_CONFIG environment variable (via
// [Load]). [Resolve] picks between them and falls back to [Default]
// when neither is given, so every binary also runs from flags alone.
// Command-line flags override whatever the file sets.
//
// The file may carry environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production without an explicit section
// gets a 30 second call timeout so a wedged bank cannot hang bidders
// forever.
//
// ${HOME} and ${VAR:-default} patterns are expanded in the catalog
// path after loading.
//
// This package depends on no other marketplace packages.
package config
