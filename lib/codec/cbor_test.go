// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type sampleEnvelope struct {
	Op       string     `cbor:"op"`
	PacketID uint64     `cbor:"packet_id"`
	Ack      bool       `cbor:"ack"`
	Payload  RawMessage `cbor:"payload,omitempty"`
}

type samplePayload struct {
	AccountID int64           `cbor:"account_id"`
	Amount    decimal.Decimal `cbor:"amount"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	payload, err := Marshal(samplePayload{AccountID: 7, Amount: decimal.RequireFromString("12.50")})
	if err != nil {
		t.Fatalf("Marshal payload: %v", err)
	}
	original := sampleEnvelope{Op: "LOCK", PacketID: 42, Payload: payload}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Op != "LOCK" || decoded.PacketID != 42 || decoded.Ack {
		t.Fatalf("envelope mismatch: %+v", decoded)
	}

	var decodedPayload samplePayload
	if err := Unmarshal(decoded.Payload, &decodedPayload); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if decodedPayload.AccountID != 7 {
		t.Errorf("AccountID = %d, want 7", decodedPayload.AccountID)
	}
	if !decodedPayload.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("Amount = %s, want 12.5", decodedPayload.Amount)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := map[string]any{"op": "BID", "packet_id": uint64(3), "ack": true}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUnmarshalIntoAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"status": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
}

func TestTimeRoundtripKeepsNanoseconds(t *testing.T) {
	type deadline struct {
		At time.Time `cbor:"at"`
	}
	original := deadline{At: time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded deadline
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.At.Equal(original.At) {
		t.Errorf("At = %v, want %v", decoded.At, original.At)
	}
}
