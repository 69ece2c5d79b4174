// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport is the request/response RPC layer shared by the
// bank protocol and the auction protocol.
//
// A [Conn] wraps one persistent TCP connection. Both ends run the same
// code: one reader goroutine per connection decodes frames, resolves
// replies against a table of pending calls, and hands everything else
// to a handler. The roles differ only in which handler is installed:
//
//   - Server side ([Server]): inbound envelopes with Ack=false are
//     requests. The [RequestHandler] runs on the reader goroutine, in
//     arrival order, and its result is written back as a reply bearing
//     the same packet id.
//   - Client side ([Dial]): inbound envelopes with Ack=false are
//     unsolicited pushes (outbid, winner, new auction). The
//     [PushHandler] runs on the reader goroutine and must not block or
//     issue a Call on the same Conn.
//
// [Conn.Call] assigns a fresh packet id from a per-connection counter,
// registers a single-resolution future under that id, writes the
// request, and waits. Concurrent callers on one Conn share only the
// pending table and the write mutex. When the reader exits (EOF, reset,
// decode failure, Close) every outstanding future resolves with
// [ErrConnectionLost]; no caller is left waiting on a dead connection.
// An optional per-call timeout resolves with [ErrCallTimeout].
//
// # Wire format
//
// Each message is a frame:
//
//	[1 byte compression tag][4 bytes big-endian body length][body]
//
// The body is a CBOR [Envelope]. Frames whose encoded envelope reaches
// the configured threshold are compressed with LZ4 or zstd; the
// compressed body is prefixed with the 4-byte uncompressed length.
// Incompressible bodies are sent with the none tag.
//
// [Dial] retries connect failures with a fixed delay until it succeeds
// or its context is cancelled. The caller is blocked until a
// connection exists.
package transport
