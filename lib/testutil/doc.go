// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared helpers for marketplace tests.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so that tests waiting on push notifications or connection
// teardown fail with a message instead of hanging. They are the only
// place in the test suite that reads the wall clock.
//
// [Logger] returns an slog.Logger that only emits errors, keeping test
// output readable while still surfacing unexpected failures.
//
// All helpers call t.Fatalf on failure.
package testutil
