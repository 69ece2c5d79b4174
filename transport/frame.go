// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bureau-foundation/marketplace/lib/codec"
)

// maxFrameSize bounds both the on-wire body and the decompressed
// envelope. A peer announcing a larger frame is treated as corrupt.
const maxFrameSize = 16 * 1024 * 1024

// frameHeaderSize is the tag byte plus the 4-byte body length.
const frameHeaderSize = 5

// encodeFrame marshals envelope and wraps it in a frame. Bodies of at
// least threshold bytes are compressed with tag when that helps.
func encodeFrame(envelope Envelope, tag CompressionTag, threshold int) ([]byte, error) {
	encoded, err := codec.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", envelope.Op, err)
	}

	body := encoded
	usedTag := CompressionNone
	if tag != CompressionNone && len(encoded) >= threshold {
		compressed, err := compress(encoded, tag)
		switch {
		case err == nil:
			body = make([]byte, 4+len(compressed))
			binary.BigEndian.PutUint32(body[:4], uint32(len(encoded)))
			copy(body[4:], compressed)
			usedTag = tag
		case err != errIncompressible:
			return nil, err
		}
	}

	if len(body) > maxFrameSize {
		return nil, fmt.Errorf("frame body %d bytes exceeds maximum %d", len(body), maxFrameSize)
	}

	frame := make([]byte, frameHeaderSize+len(body))
	frame[0] = byte(usedTag)
	binary.BigEndian.PutUint32(frame[1:frameHeaderSize], uint32(len(body)))
	copy(frame[frameHeaderSize:], body)
	return frame, nil
}

// readFrame reads one frame from reader and decodes its envelope.
func readFrame(reader io.Reader) (Envelope, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return Envelope{}, err
	}
	tag := CompressionTag(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxFrameSize {
		return Envelope{}, fmt.Errorf("frame body %d bytes exceeds maximum %d", length, maxFrameSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(reader, body); err != nil {
		return Envelope{}, err
	}

	if tag != CompressionNone {
		if len(body) < 4 {
			return Envelope{}, fmt.Errorf("compressed frame too short (%d bytes)", len(body))
		}
		uncompressedSize := binary.BigEndian.Uint32(body[:4])
		if uncompressedSize > maxFrameSize {
			return Envelope{}, fmt.Errorf("uncompressed size %d exceeds maximum %d", uncompressedSize, maxFrameSize)
		}
		decoded, err := decompress(body[4:], tag, int(uncompressedSize))
		if err != nil {
			return Envelope{}, err
		}
		body = decoded
	}

	var envelope Envelope
	if err := codec.Unmarshal(body, &envelope); err != nil {
		return Envelope{}, &envelopeError{err: err, body: body}
	}
	return envelope, nil
}

// maxDiagnosticLength caps the diagnostic notation logged for an
// undecodable envelope.
const maxDiagnosticLength = 512

// envelopeError is a frame that arrived intact but whose body is not
// an Envelope. It keeps the body for debug logging.
type envelopeError struct {
	err  error
	body []byte
}

func (e *envelopeError) Error() string {
	return "decoding envelope: " + e.err.Error()
}

func (e *envelopeError) Unwrap() error {
	return e.err
}

// diagnostic renders the body in CBOR diagnostic notation, or a note
// when the body is not well-formed CBOR.
func (e *envelopeError) diagnostic() string {
	notation, err := codec.Diagnose(e.body)
	if err != nil {
		return fmt.Sprintf("<%d bytes, not well-formed: %v>", len(e.body), err)
	}
	if len(notation) > maxDiagnosticLength {
		notation = notation[:maxDiagnosticLength] + "..."
	}
	return notation
}
