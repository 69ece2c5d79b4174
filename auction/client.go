// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auction

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/bureau-foundation/marketplace/bank"
	"github.com/bureau-foundation/marketplace/transport"
)

// Client is a remote handle on an auction house. OUTBID and WINNER
// pushes arrive through the push handler of the underlying
// connection; see DecodePush.
type Client struct {
	conn *transport.Conn
}

// NewClient wraps an established connection to an auction server.
func NewClient(conn *transport.Conn) *Client {
	return &Client{conn: conn}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done is closed when the connection to the house is gone.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// Bid offers amount on an item on behalf of account.
func (c *Client) Bid(ctx context.Context, itemID ItemID, account bank.AccountID, amount decimal.Decimal) (BidResult, error) {
	var result BidResult
	err := c.conn.Call(ctx, OpBid, BidRequest{ItemID: itemID, AccountID: account, Amount: amount}, &result)
	return result, err
}

// Item returns one live item. found is false when the house has no
// such live item.
func (c *Client) Item(ctx context.Context, itemID ItemID) (info ItemInfo, found bool, err error) {
	var response ItemResponse
	if err := c.conn.Call(ctx, OpGet, ItemRequest{ItemID: itemID}, &response); err != nil {
		return ItemInfo{}, false, err
	}
	return response.Item, response.Found, nil
}

// Items returns every live item, ordered by id.
func (c *Client) Items(ctx context.Context) ([]ItemInfo, error) {
	var response ItemsResponse
	if err := c.conn.Call(ctx, OpGetAll, nil, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

// CloseRequest asks whether account may leave the house.
func (c *Client) CloseRequest(ctx context.Context, account bank.AccountID) (bool, error) {
	var response CloseResponse
	if err := c.conn.Call(ctx, OpCloseRequest, CloseRequestMessage{AccountID: account}, &response); err != nil {
		return false, err
	}
	return response.Allowed, nil
}

// DecodePush decodes an OUTBID or WINNER push. ok is false for
// envelopes that are not bid pushes.
func DecodePush(envelope transport.Envelope) (push BidPush, ok bool, err error) {
	if envelope.Op != OpBid || envelope.Ack {
		return BidPush{}, false, nil
	}
	if err := envelope.Decode(&push); err != nil {
		return BidPush{}, true, err
	}
	return push, true, nil
}
