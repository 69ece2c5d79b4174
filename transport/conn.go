// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/marketplace/lib/codec"
)

// writeTimeout bounds a single frame write. A peer that stops reading
// for this long is treated as dead.
const writeTimeout = 10 * time.Second

// Conn is one end of a framed envelope connection. It is safe for
// concurrent use by multiple goroutines; [Conn.Run] must be running
// for calls to complete.
type Conn struct {
	netConn net.Conn
	options Options
	logger  *slog.Logger

	writeMu sync.Mutex

	nextPacketID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan result
	closed  bool
	err     error
	done    chan struct{}
}

type result struct {
	envelope Envelope
	err      error
}

// NewConn wraps netConn. The caller must start [Conn.Run].
func NewConn(netConn net.Conn, options Options) *Conn {
	return &Conn{
		netConn: netConn,
		options: options,
		logger:  options.logger().With("remote", netConn.RemoteAddr().String()),
		pending: make(map[uint64]chan result),
		done:    make(chan struct{}),
	}
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.netConn.RemoteAddr().String()
}

// Done is closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection shut down, or nil while it
// is still open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears the connection down. Outstanding calls resolve with
// ErrConnectionLost.
func (c *Conn) Close() error {
	c.shutdown(net.ErrClosed)
	return nil
}

// Run reads frames until the connection fails or ctx is cancelled.
// Replies resolve pending calls; other envelopes go to the request
// handler if one is configured, otherwise to the push handler.
// Run returns nil on ordinary teardown.
func (c *Conn) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			c.netConn.Close()
		case <-c.done:
		}
	}()

	var cause error
	for {
		envelope, err := readFrame(c.netConn)
		if err != nil {
			cause = err
			break
		}
		switch {
		case envelope.Ack:
			c.resolve(envelope)
		case c.options.Requests != nil:
			c.serve(ctx, envelope)
		case c.options.Pushes != nil:
			c.options.Pushes(envelope)
		default:
			c.logger.Warn("dropping unsolicited message", "op", envelope.Op)
		}
	}

	var malformed *envelopeError
	if errors.As(cause, &malformed) {
		c.logger.Debug("undecodable envelope", "diagnostic", malformed.diagnostic(), "error", malformed.err)
	}

	c.shutdown(cause)
	if isExpectedClose(cause) || ctx.Err() != nil {
		return nil
	}
	return cause
}

// Call sends a request and waits for its reply. request is encoded as
// the payload; the reply payload is decoded into response when it is
// non-nil.
func (c *Conn) Call(ctx context.Context, op string, request, response any) error {
	var payload codec.RawMessage
	if request != nil {
		encoded, err := codec.Marshal(request)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		payload = encoded
	}

	packetID := c.nextPacketID.Add(1)
	future := make(chan result, 1)

	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("%s: %w: %v", op, ErrConnectionLost, err)
	}
	c.pending[packetID] = future
	c.mu.Unlock()
	defer c.forget(packetID)

	if c.options.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.options.CallTimeout, ErrCallTimeout)
		defer cancel()
	}

	if err := c.write(Envelope{Op: op, PacketID: packetID, Payload: payload}); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrConnectionLost, err)
	}

	select {
	case reply := <-future:
		if reply.err != nil {
			return fmt.Errorf("%s: %w", op, reply.err)
		}
		if reply.envelope.Error != "" {
			return &RemoteError{Op: op, Message: reply.envelope.Error}
		}
		if response != nil {
			if err := reply.envelope.Decode(response); err != nil {
				return fmt.Errorf("%s: decoding reply: %w", op, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, context.Cause(ctx))
	}
}

// Push sends an unsolicited message. No reply is expected.
func (c *Conn) Push(op string, payload any) error {
	envelope := Envelope{Op: op, PacketID: c.nextPacketID.Add(1)}
	if payload != nil {
		encoded, err := codec.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encoding push: %w", op, err)
		}
		envelope.Payload = encoded
	}
	if err := c.write(envelope); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Conn) serve(ctx context.Context, request Envelope) {
	reply := Envelope{Op: request.Op, PacketID: request.PacketID, Ack: true}
	response, err := c.options.Requests(ctx, c, request)
	if err != nil {
		reply.Error = err.Error()
	} else if response != nil {
		encoded, err := codec.Marshal(response)
		if err != nil {
			reply.Error = fmt.Sprintf("encoding response: %v", err)
		} else {
			reply.Payload = encoded
		}
	}
	if err := c.write(reply); err != nil && !isExpectedClose(err) {
		c.logger.Warn("writing reply failed", "op", request.Op, "error", err)
	}
}

func (c *Conn) resolve(reply Envelope) {
	c.mu.Lock()
	future, ok := c.pending[reply.PacketID]
	delete(c.pending, reply.PacketID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("reply for unknown packet", "op", reply.Op, "packet_id", reply.PacketID)
		return
	}
	future <- result{envelope: reply}
}

func (c *Conn) forget(packetID uint64) {
	c.mu.Lock()
	delete(c.pending, packetID)
	c.mu.Unlock()
}

func (c *Conn) write(envelope Envelope) error {
	frame, err := encodeFrame(envelope, c.options.Compression, c.options.threshold())
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("setting write deadline", "error", err)
	}
	_, err = c.netConn.Write(frame)
	return err
}

// shutdown marks the connection closed, fails every pending call, and
// closes the socket. Only the first call has any effect.
func (c *Conn) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = cause
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, future := range pending {
		future <- result{err: fmt.Errorf("%w: %v", ErrConnectionLost, cause)}
	}
	c.netConn.Close()
	close(c.done)
}
