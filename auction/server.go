// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/marketplace/bank"
	"github.com/bureau-foundation/marketplace/transport"
)

// Registry records live auction house endpoints. *bank.Client
// implements it.
type Registry interface {
	OpenAuction(ctx context.Context, device bank.NetworkDevice) error
	CloseAuction(ctx context.Context, device bank.NetworkDevice) error
}

// shutdownTimeout bounds the escrow releases and deregistration done
// after the serve context ends.
const shutdownTimeout = 10 * time.Second

// Server exposes a House over the transport protocol.
type Server struct {
	house     *House
	listener  *transport.Server
	registry  Registry
	advertise bank.NetworkDevice
	logger    *slog.Logger
}

// NewServer registers the auction ops on listener. advertise is the
// endpoint announced to the bank, which agents will dial.
func NewServer(house *House, listener *transport.Server, registry Registry, advertise bank.NetworkDevice, logger *slog.Logger) *Server {
	s := &Server{
		house:     house,
		listener:  listener,
		registry:  registry,
		advertise: advertise,
		logger:    logger,
	}
	listener.Handle(OpBid, s.handleBid)
	listener.Handle(OpGet, s.handleGet)
	listener.Handle(OpGetAll, s.handleGetAll)
	listener.Handle(OpCloseRequest, s.handleCloseRequest)
	return s
}

// Serve announces the house to the bank and serves requests until ctx
// is cancelled. On the way out every live item is withdrawn and the
// endpoint is deregistered.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.registry.OpenAuction(ctx, s.advertise); err != nil {
		return fmt.Errorf("registering %s with the bank: %w", s.advertise, err)
	}
	s.logger.Info("auction house open", "device", s.advertise.String())

	serveErr := s.listener.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.house.Shutdown(shutdownCtx)
	if err := s.registry.CloseAuction(shutdownCtx, s.advertise); err != nil {
		s.logger.Warn("deregistering from the bank failed", "device", s.advertise.String(), "error", err)
	}
	return serveErr
}

func (s *Server) handleBid(ctx context.Context, conn *transport.Conn, envelope transport.Envelope) (any, error) {
	var request BidRequest
	if err := envelope.Decode(&request); err != nil {
		return nil, fmt.Errorf("decoding bid: %w", err)
	}
	result := s.house.Bid(ctx, request, conn)
	if !result.Accepted() {
		s.logger.Debug("bid rejected",
			"item_id", request.ItemID,
			"account_id", request.AccountID,
			"amount", request.Amount,
			"reason", result.Reason,
		)
	}
	return result, nil
}

func (s *Server) handleGet(ctx context.Context, conn *transport.Conn, envelope transport.Envelope) (any, error) {
	var request ItemRequest
	if err := envelope.Decode(&request); err != nil {
		return nil, fmt.Errorf("decoding item request: %w", err)
	}
	info, found := s.house.ItemInfo(request.ItemID)
	return ItemResponse{Found: found, Item: info}, nil
}

func (s *Server) handleGetAll(ctx context.Context, conn *transport.Conn, envelope transport.Envelope) (any, error) {
	return ItemsResponse{Items: s.house.Items()}, nil
}

func (s *Server) handleCloseRequest(ctx context.Context, conn *transport.Conn, envelope transport.Envelope) (any, error) {
	var request CloseRequestMessage
	if err := envelope.Decode(&request); err != nil {
		return nil, fmt.Errorf("decoding close request: %w", err)
	}
	return CloseResponse{Allowed: s.house.CloseRequest(request.AccountID)}, nil
}

// BankPushes handles unsolicited messages on a house's bank
// connection. The bank announces every house to every client; a house
// does not track its peers, so announcements are only logged.
func BankPushes(logger *slog.Logger) transport.PushHandler {
	return func(push transport.Envelope) {
		var announced bank.AuctionPush
		if err := push.Decode(&announced); err != nil {
			logger.Debug("ignoring undecodable bank push", "op", push.Op, "error", err)
			return
		}
		logger.Debug("ignoring bank push", "op", push.Op, "device", announced.Device.String())
	}
}
