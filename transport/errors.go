// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrConnectionLost resolves every call still waiting when its
	// connection's reader exits.
	ErrConnectionLost = errors.New("transport: connection lost")

	// ErrCallTimeout is returned when a call exceeds Options.CallTimeout.
	ErrCallTimeout = errors.New("transport: call timed out")
)

// RemoteError is returned by Call when the peer replied with a
// protocol-level failure.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error on %s: %s", e.Op, e.Message)
}

// isExpectedClose reports whether err is ordinary connection teardown:
// EOF, use of a closed connection, broken pipe, or reset by peer.
func isExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
