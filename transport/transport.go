// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/bureau-foundation/marketplace/lib/codec"
)

// Envelope is the wire message carried by every frame.
type Envelope struct {
	// Op is the protocol op code ("LOCK", "BID", ...).
	Op string `cbor:"op"`

	// PacketID correlates a reply with its request. Assigned by the
	// sender from a per-connection counter.
	PacketID uint64 `cbor:"packet_id"`

	// Ack is true on replies and false on requests and pushes.
	Ack bool `cbor:"ack"`

	// Error is set on a reply when the remote handler failed at the
	// protocol level (unknown op, undecodable payload). Domain
	// outcomes travel in the payload, never here.
	Error string `cbor:"error,omitempty"`

	// Payload is the op-specific body.
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// Decode unmarshals the envelope payload into v. An empty payload
// leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return codec.Unmarshal(e.Payload, v)
}

// RequestHandler serves one inbound request. The returned value is
// encoded as the reply payload. A non-nil error is sent back as the
// reply's Error field and surfaces at the caller as a *RemoteError.
type RequestHandler func(ctx context.Context, conn *Conn, request Envelope) (any, error)

// PushHandler receives unsolicited messages on the client side.
type PushHandler func(push Envelope)

// Options configures a Conn. The zero value is usable: no
// compression, no call timeout, slog.Default logging.
type Options struct {
	Logger *slog.Logger

	// Compression selects the algorithm for frames at or above
	// CompressThreshold bytes.
	Compression CompressionTag

	// CompressThreshold is the minimum encoded envelope size that is
	// compressed. Zero selects defaultCompressThreshold.
	CompressThreshold int

	// CallTimeout bounds every Call. Zero means calls wait until the
	// reply arrives, the context ends, or the connection dies.
	CallTimeout time.Duration

	// Requests handles inbound requests (server role).
	Requests RequestHandler

	// Pushes handles inbound unsolicited messages (client role).
	Pushes PushHandler
}

const defaultCompressThreshold = 1024

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) threshold() int {
	if o.CompressThreshold > 0 {
		return o.CompressThreshold
	}
	return defaultCompressThreshold
}
