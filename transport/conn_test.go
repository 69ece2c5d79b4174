// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/marketplace/lib/codec"
	"github.com/bureau-foundation/marketplace/lib/testutil"
)

type echoRequest struct {
	Value int `cbor:"value"`
}

type echoResponse struct {
	Doubled int `cbor:"doubled"`
}

// connPair connects a client Conn to a server Conn over net.Pipe and
// runs both readers until the test ends.
func connPair(t *testing.T, server, client Options) (*Conn, *Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	if server.Logger == nil {
		server.Logger = testutil.Logger()
	}
	if client.Logger == nil {
		client.Logger = testutil.Logger()
	}
	serverConn := NewConn(serverSide, server)
	clientConn := NewConn(clientSide, client)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); serverConn.Run(ctx) }()
	go func() { defer wg.Done(); clientConn.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return serverConn, clientConn
}

func doubler(ctx context.Context, conn *Conn, request Envelope) (any, error) {
	var body echoRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	return echoResponse{Doubled: body.Value * 2}, nil
}

func TestCallRoundtrip(t *testing.T) {
	_, client := connPair(t, Options{Requests: doubler}, Options{})

	var response echoResponse
	if err := client.Call(context.Background(), "DOUBLE", echoRequest{Value: 21}, &response); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if response.Doubled != 42 {
		t.Errorf("Doubled = %d, want 42", response.Doubled)
	}
}

func TestConcurrentCallsMatchByPacketID(t *testing.T) {
	_, client := connPair(t, Options{Requests: doubler}, Options{})

	const callers = 50
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var response echoResponse
			if err := client.Call(context.Background(), "DOUBLE", echoRequest{Value: i}, &response); err != nil {
				errs <- err
				return
			}
			if response.Doubled != i*2 {
				errs <- fmt.Errorf("caller %d got %d", i, response.Doubled)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCallRemoteError(t *testing.T) {
	failing := func(ctx context.Context, conn *Conn, request Envelope) (any, error) {
		return nil, errors.New("unknown op")
	}
	_, client := connPair(t, Options{Requests: failing}, Options{})

	err := client.Call(context.Background(), "NOPE", nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Call error = %v, want *RemoteError", err)
	}
	if remote.Op != "NOPE" || remote.Message != "unknown op" {
		t.Errorf("RemoteError = %+v", remote)
	}
}

func TestPushDeliveredToHandler(t *testing.T) {
	pushes := make(chan Envelope, 1)
	server, _ := connPair(t, Options{Requests: doubler}, Options{
		Pushes: func(push Envelope) { pushes <- push },
	})

	if err := server.Push("OUTBID", echoRequest{Value: 5}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	push := testutil.RequireReceive(t, pushes, 5*time.Second, "waiting for push")
	if push.Op != "OUTBID" || push.Ack {
		t.Errorf("push = %+v", push)
	}
	var body echoRequest
	if err := push.Decode(&body); err != nil || body.Value != 5 {
		t.Errorf("push body = %+v, %v", body, err)
	}
}

func TestConnectionLossReleasesPendingCalls(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := func(ctx context.Context, conn *Conn, request Envelope) (any, error) {
		close(entered)
		<-release
		return nil, nil
	}
	server, client := connPair(t, Options{Requests: blocking}, Options{})
	defer close(release)

	result := make(chan error, 1)
	go func() {
		result <- client.Call(context.Background(), "LOCK", nil, nil)
	}()
	testutil.RequireClosed(t, entered, 5*time.Second, "handler never entered")

	server.Close()

	err := testutil.RequireReceive(t, result, 5*time.Second, "pending call was not released")
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Call error = %v, want ErrConnectionLost", err)
	}
	testutil.RequireClosed(t, client.Done(), 5*time.Second, "client did not shut down")

	if err := client.Call(context.Background(), "LOCK", nil, nil); !errors.Is(err, ErrConnectionLost) {
		t.Errorf("Call after loss = %v, want ErrConnectionLost", err)
	}
}

func TestCallTimeout(t *testing.T) {
	release := make(chan struct{})
	blocking := func(ctx context.Context, conn *Conn, request Envelope) (any, error) {
		<-release
		return nil, nil
	}
	_, client := connPair(t, Options{Requests: blocking}, Options{CallTimeout: 50 * time.Millisecond})
	defer close(release)

	err := client.Call(context.Background(), "TRANSFER", nil, nil)
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("Call error = %v, want ErrCallTimeout", err)
	}
}

func TestCallContextCancelled(t *testing.T) {
	release := make(chan struct{})
	blocking := func(ctx context.Context, conn *Conn, request Envelope) (any, error) {
		<-release
		return nil, nil
	}
	_, client := connPair(t, Options{Requests: blocking}, Options{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- client.Call(ctx, "BID", nil, nil) }()
	cancel()

	err := testutil.RequireReceive(t, result, 5*time.Second, "cancelled call did not return")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Call error = %v, want context.Canceled", err)
	}
}

func TestCompressedConnection(t *testing.T) {
	names := make([]string, 400)
	for i := range names {
		names[i] = fmt.Sprintf("item-%03d antique clock", i)
	}
	lister := func(ctx context.Context, conn *Conn, request Envelope) (any, error) {
		var echoed listing
		if err := request.Decode(&echoed); err != nil {
			return nil, err
		}
		return echoed, nil
	}
	options := Options{Requests: lister, Compression: CompressionZstd, CompressThreshold: 128}
	_, client := connPair(t, options, Options{Compression: CompressionLZ4, CompressThreshold: 128})

	var response listing
	if err := client.Call(context.Background(), "GETALL", listing{Names: names}, &response); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(response.Names) != len(names) || response.Names[399] != names[399] {
		t.Fatalf("reply has %d names", len(response.Names))
	}
}

func TestUndecodableEnvelopeIsLoggedAndClosesConnection(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	local, remote := net.Pipe()
	defer remote.Close()
	conn := NewConn(local, Options{Logger: logger})
	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(context.Background()) }()

	body, err := codec.Marshal(map[string]int{"op": 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := remote.Write(rawFrame(body)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := testutil.RequireReceive(t, runErr, 5*time.Second, "Run did not return"); err == nil {
		t.Error("Run returned nil for an undecodable envelope")
	}
	testutil.RequireClosed(t, conn.Done(), 5*time.Second, "connection not shut down")
	if output := logs.String(); !strings.Contains(output, "undecodable envelope") || !strings.Contains(output, "diagnostic=") {
		t.Errorf("log output %q lacks the envelope diagnostic", output)
	}
}
