// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/marketplace/lib/clock"
)

// DialConfig configures Dial.
type DialConfig struct {
	// Address is the "host:port" to connect to.
	Address string

	// RetryDelay is the fixed wait between failed connect attempts.
	// Zero selects one second.
	RetryDelay time.Duration

	// Clock drives the retry wait. Nil selects the real clock.
	Clock clock.Clock

	// Options configures the resulting Conn. Set Pushes to receive
	// unsolicited messages.
	Options Options
}

// Dial connects to config.Address, retrying until a connection is
// established or ctx is done. The returned Conn's reader is already
// running and outlives ctx; call Close to end it.
func Dial(ctx context.Context, config DialConfig) (*Conn, error) {
	delay := config.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Options.logger()

	var dialer net.Dialer
	for attempt := 1; ; attempt++ {
		netConn, err := dialer.DialContext(ctx, "tcp", config.Address)
		if err == nil {
			conn := NewConn(netConn, config.Options)
			go func() {
				if err := conn.Run(context.WithoutCancel(ctx)); err != nil {
					conn.logger.Warn("connection failed", "error", err)
				}
			}()
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("dialing %s: %w", config.Address, ctx.Err())
		}

		logger.Warn("connect failed, retrying",
			"address", config.Address,
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)
		select {
		case <-clk.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("dialing %s: %w", config.Address, ctx.Err())
		}
	}
}
