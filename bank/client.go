// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bank

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bureau-foundation/marketplace/transport"
)

// Client is a remote handle on a bank. It is safe for concurrent use;
// concurrent calls are multiplexed over the one connection.
type Client struct {
	conn *transport.Conn
}

// NewClient wraps an established connection to a bank server.
func NewClient(conn *transport.Conn) *Client {
	return &Client{conn: conn}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done is closed when the connection to the bank is gone.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

func (c *Client) call(ctx context.Context, op string, request Request) (Response, error) {
	var response Response
	if err := c.conn.Call(ctx, op, request, &response); err != nil {
		return Response{}, err
	}
	if response.Reason != "" {
		return Response{}, fmt.Errorf("%s account %d: %w", op, request.AccountID, errorFor(response.Reason))
	}
	return response, nil
}

// NewAccount opens an account with a zero balance.
func (c *Client) NewAccount(ctx context.Context) (AccountID, error) {
	response, err := c.call(ctx, OpNewAccount, Request{})
	if err != nil {
		return 0, err
	}
	return response.AccountID, nil
}

// Balance returns the free balance of an account.
func (c *Client) Balance(ctx context.Context, account AccountID) (decimal.Decimal, error) {
	response, err := c.call(ctx, OpGetBalance, Request{AccountID: account})
	if err != nil {
		return decimal.Zero, err
	}
	return response.Amount, nil
}

// TotalBalance returns the free plus locked funds of an account.
func (c *Client) TotalBalance(ctx context.Context, account AccountID) (decimal.Decimal, error) {
	response, err := c.call(ctx, OpGetTotalBalance, Request{AccountID: account})
	if err != nil {
		return decimal.Zero, err
	}
	return response.Amount, nil
}

// AddFunds deposits into an account.
func (c *Client) AddFunds(ctx context.Context, account AccountID, amount decimal.Decimal) error {
	_, err := c.call(ctx, OpAdd, Request{AccountID: account, Amount: amount})
	return err
}

// RemoveFunds withdraws from an account.
func (c *Client) RemoveFunds(ctx context.Context, account AccountID, amount decimal.Decimal) error {
	_, err := c.call(ctx, OpRemove, Request{AccountID: account, Amount: amount})
	return err
}

// LockFunds escrows amount on an account.
func (c *Client) LockFunds(ctx context.Context, account AccountID, amount decimal.Decimal) (LockID, error) {
	response, err := c.call(ctx, OpLock, Request{AccountID: account, Amount: amount})
	if err != nil {
		return "", err
	}
	return response.LockID, nil
}

// LockFundsAs escrows amount under a lock id chosen by the caller. If
// the call fails without a ledger error the lock may or may not exist;
// UnlockFunds with the same id settles the question.
func (c *Client) LockFundsAs(ctx context.Context, account AccountID, lockID LockID, amount decimal.Decimal) error {
	_, err := c.call(ctx, OpLock, Request{AccountID: account, LockID: lockID, Amount: amount})
	return err
}

// UnlockFunds releases an escrow.
func (c *Client) UnlockFunds(ctx context.Context, account AccountID, lockID LockID) error {
	_, err := c.call(ctx, OpUnlock, Request{AccountID: account, LockID: lockID})
	return err
}

// Transfer moves amount between free balances.
func (c *Client) Transfer(ctx context.Context, from, to AccountID, amount decimal.Decimal) error {
	_, err := c.call(ctx, OpTransfer, Request{AccountID: from, ToID: to, Amount: amount})
	return err
}

// TransferFromLock settles an escrow into another account and returns
// the amount moved.
func (c *Client) TransferFromLock(ctx context.Context, from, to AccountID, lockID LockID) (decimal.Decimal, error) {
	response, err := c.call(ctx, OpTransferFromLock, Request{AccountID: from, ToID: to, LockID: lockID})
	if err != nil {
		return decimal.Zero, err
	}
	return response.Amount, nil
}

// OpenAuction registers an auction house endpoint.
func (c *Client) OpenAuction(ctx context.Context, device NetworkDevice) error {
	_, err := c.call(ctx, OpOpenAuction, Request{Device: device})
	return err
}

// CloseAuction deregisters an auction house endpoint.
func (c *Client) CloseAuction(ctx context.Context, device NetworkDevice) error {
	_, err := c.call(ctx, OpCloseAuction, Request{Device: device})
	return err
}

// Auctions lists the registered auction house endpoints.
func (c *Client) Auctions(ctx context.Context) ([]NetworkDevice, error) {
	response, err := c.call(ctx, OpGetAuctions, Request{})
	if err != nil {
		return nil, err
	}
	return response.Devices, nil
}
