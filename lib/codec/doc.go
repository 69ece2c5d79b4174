// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the marketplace's standard CBOR encoding
// configuration.
//
// Every message that crosses a service boundary (bank ledger calls,
// auction calls, push notifications) is a CBOR value carried inside a
// transport frame. Configuration files and the JSONC item catalog are
// the only non-CBOR formats in the tree.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical message always produces identical bytes, which keeps
// frame compression effective and makes wire captures diffable.
//
// Monetary amounts are decimal.Decimal values. They carry their own
// marshalers, so they cross the wire exactly rather than as floats.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Struct fields use `cbor` tags. Wire types never carry `json` tags.
package codec
