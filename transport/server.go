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
)

// Server accepts envelope connections and dispatches requests to
// handlers registered by op code. Each accepted connection gets its
// own reader goroutine; requests on one connection are served in
// arrival order.
type Server struct {
	listener net.Listener
	options  Options
	logger   *slog.Logger

	handlers map[string]RequestHandler

	// Disconnected, when set, is called after a connection shuts
	// down. Must be set before Serve.
	Disconnected func(conn *Conn)

	mu    sync.Mutex
	conns map[*Conn]struct{}

	activeConnections sync.WaitGroup
}

// Listen opens a TCP listener on address ("host:port", port 0 for an
// ephemeral port). options.Requests is ignored; register handlers
// with Handle.
func Listen(address string, options Options) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return &Server{
		listener: listener,
		options:  options,
		logger:   options.logger(),
		handlers: make(map[string]RequestHandler),
		conns:    make(map[*Conn]struct{}),
	}, nil
}

// Handle registers the handler for op. Must be called before Serve.
func (s *Server) Handle(op string, handler RequestHandler) {
	if _, exists := s.handlers[op]; exists {
		panic(fmt.Sprintf("transport: duplicate handler for op %q", op))
	}
	s.handlers[op] = handler
}

// Address returns the bound "host:port".
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled or Close is
// called, then waits for every connection goroutine to finish.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.logger.Info("listening", "address", s.Address())

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		options := s.options
		options.Requests = s.dispatch
		options.Pushes = nil
		conn := NewConn(netConn, options)

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.activeConnections.Wait()
	return nil
}

// Close stops accepting connections. Serve returns once existing
// connections have shut down.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Broadcast pushes a message to every open connection except one
// (nil to include all). It returns the number of connections the
// message was written to.
func (s *Server) Broadcast(op string, payload any, except *Conn) int {
	s.mu.Lock()
	targets := make([]*Conn, 0, len(s.conns))
	for conn := range s.conns {
		if conn != except {
			targets = append(targets, conn)
		}
	}
	s.mu.Unlock()

	sent := 0
	for _, conn := range targets {
		if err := conn.Push(op, payload); err != nil {
			s.logger.Debug("broadcast push failed", "op", op, "remote", conn.RemoteAddr(), "error", err)
			continue
		}
		sent++
	}
	return sent
}

func (s *Server) handleConnection(ctx context.Context, conn *Conn) {
	s.logger.Debug("connection accepted", "remote", conn.RemoteAddr())
	if err := conn.Run(ctx); err != nil {
		s.logger.Warn("connection failed", "remote", conn.RemoteAddr(), "error", err)
	}

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	if s.Disconnected != nil {
		s.Disconnected(conn)
	}
	s.logger.Debug("connection closed", "remote", conn.RemoteAddr())
}

func (s *Server) dispatch(ctx context.Context, conn *Conn, request Envelope) (any, error) {
	handler, ok := s.handlers[request.Op]
	if !ok {
		return nil, fmt.Errorf("unknown op %q", request.Op)
	}
	return handler(ctx, conn, request)
}

func (s *Server) connectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
