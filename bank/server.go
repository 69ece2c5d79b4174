// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bank

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/marketplace/transport"
)

// Server exposes a Bank over the transport protocol.
type Server struct {
	bank     *Bank
	listener *transport.Server
	logger   *slog.Logger

	// owners records which connection registered each house endpoint,
	// so a house that drops without CLOSEAUCTION is deregistered.
	ownersMu sync.Mutex
	owners   map[NetworkDevice]*transport.Conn
}

type handlerFunc func(ctx context.Context, conn *transport.Conn, request Request) (Response, error)

// NewServer registers the bank ops on listener. Call Serve to start
// accepting connections.
func NewServer(bank *Bank, listener *transport.Server, logger *slog.Logger) *Server {
	s := &Server{
		bank:     bank,
		listener: listener,
		logger:   logger,
		owners:   make(map[NetworkDevice]*transport.Conn),
	}
	listener.Disconnected = s.disconnected

	s.handle(OpNewAccount, s.handleNewAccount)
	s.handle(OpGetBalance, s.handleGetBalance)
	s.handle(OpGetTotalBalance, s.handleGetTotalBalance)
	s.handle(OpAdd, s.handleAdd)
	s.handle(OpRemove, s.handleRemove)
	s.handle(OpLock, s.handleLock)
	s.handle(OpUnlock, s.handleUnlock)
	s.handle(OpTransfer, s.handleTransfer)
	s.handle(OpTransferFromLock, s.handleTransferFromLock)
	s.handle(OpOpenAuction, s.handleOpenAuction)
	s.handle(OpCloseAuction, s.handleCloseAuction)
	s.handle(OpGetAuctions, s.handleGetAuctions)
	return s
}

// Address returns the listening "host:port".
func (s *Server) Address() string {
	return s.listener.Address()
}

// Serve blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.listener.Serve(ctx)
}

// handle adapts a typed handler to the transport. Ledger failures are
// reported as a Reason in the response; anything else becomes a
// transport-level error.
func (s *Server) handle(op string, handler handlerFunc) {
	s.listener.Handle(op, func(ctx context.Context, conn *transport.Conn, envelope transport.Envelope) (any, error) {
		var request Request
		if err := envelope.Decode(&request); err != nil {
			return nil, fmt.Errorf("decoding %s request: %w", op, err)
		}
		response, err := handler(ctx, conn, request)
		if err != nil {
			reason, ok := reasonFor(err)
			if !ok {
				s.logger.Error("request failed", "op", op, "account_id", request.AccountID, "error", err)
				return nil, err
			}
			s.logger.Debug("request rejected", "op", op, "account_id", request.AccountID, "reason", reason)
			return Response{Reason: reason}, nil
		}
		return response, nil
	})
}

func (s *Server) handleNewAccount(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	return Response{AccountID: s.bank.AddAccount()}, nil
}

func (s *Server) handleGetBalance(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	balance, err := s.bank.Balance(request.AccountID)
	return Response{Amount: balance}, err
}

func (s *Server) handleGetTotalBalance(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	total, err := s.bank.TotalBalance(request.AccountID)
	return Response{Amount: total}, err
}

func (s *Server) handleAdd(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	return Response{}, s.bank.AddFunds(request.AccountID, request.Amount)
}

func (s *Server) handleRemove(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	return Response{}, s.bank.RemoveFunds(request.AccountID, request.Amount)
}

func (s *Server) handleLock(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	if request.LockID != "" {
		err := s.bank.LockFundsAs(request.AccountID, request.LockID, request.Amount)
		return Response{LockID: request.LockID}, err
	}
	lockID, err := s.bank.LockFunds(request.AccountID, request.Amount)
	return Response{LockID: lockID}, err
}

func (s *Server) handleUnlock(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	return Response{}, s.bank.UnlockFunds(request.AccountID, request.LockID)
}

func (s *Server) handleTransfer(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	return Response{}, s.bank.Transfer(request.AccountID, request.ToID, request.Amount)
}

func (s *Server) handleTransferFromLock(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	amount, err := s.bank.TransferFromLock(request.AccountID, request.ToID, request.LockID)
	return Response{Amount: amount}, err
}

func (s *Server) handleOpenAuction(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	s.ownersMu.Lock()
	s.owners[request.Device] = conn
	s.ownersMu.Unlock()

	if s.bank.OpenServer(request.Device) {
		notified := s.listener.Broadcast(OpOpenAuction, AuctionPush{Device: request.Device}, conn)
		s.logger.Info("announced auction house", "device", request.Device.String(), "notified", notified)
	}
	return Response{}, nil
}

func (s *Server) handleCloseAuction(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	s.ownersMu.Lock()
	delete(s.owners, request.Device)
	s.ownersMu.Unlock()

	s.bank.CloseServer(request.Device)
	return Response{}, nil
}

// disconnected deregisters every endpoint the closed connection
// registered and did not close.
func (s *Server) disconnected(conn *transport.Conn) {
	s.ownersMu.Lock()
	var orphaned []NetworkDevice
	for device, owner := range s.owners {
		if owner == conn {
			orphaned = append(orphaned, device)
			delete(s.owners, device)
		}
	}
	s.ownersMu.Unlock()

	for _, device := range orphaned {
		if s.bank.CloseServer(device) {
			s.logger.Info("auction house disconnected without closing", "device", device.String(), "remote", conn.RemoteAddr())
		}
	}
}

func (s *Server) handleGetAuctions(ctx context.Context, conn *transport.Conn, request Request) (Response, error) {
	return Response{Devices: s.bank.Servers()}, nil
}
