// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ids defines the two identifier types shared by every layer of the
// tracing bridge: a 64-bit SpanID and a 128-bit TraceID. Both are opaque,
// totally ordered, and round-trip through their integer representations.
package ids

import (
	"github.com/google/uuid"
)

// SpanID uniquely identifies a span within a trace. It wraps a uint64
// promoted once from the ambient registry's native span identifier.
type SpanID uint64

// Uint64 returns the underlying integer representation.
func (s SpanID) Uint64() uint64 { return uint64(s) }

// SpanIDFromUint64 constructs a SpanID from its integer representation.
func SpanIDFromUint64(v uint64) SpanID { return SpanID(v) }

// LittleEndianBytes returns the 8-byte little-endian encoding of the span
// id, the layout OTLP's wire format requires.
func (s SpanID) LittleEndianBytes() [8]byte {
	var b [8]byte
	v := uint64(s)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// TraceID uniquely identifies a distributed trace. It wraps a 128-bit value
// represented as two uint64 halves (high, low) to avoid a dependency on a
// big-integer type for what is, in practice, just 16 opaque bytes.
type TraceID struct {
	Hi uint64
	Lo uint64
}

// NewTraceID draws a fresh TraceID from a cryptographically strong random
// source. A UUIDv4 carries 122 bits of entropy, comfortably above the
// negligible-collision-probability floor this package requires.
func NewTraceID() TraceID {
	u := uuid.New()
	return TraceIDFromBytes(u)
}

// TraceIDFromBytes builds a TraceID from a 16-byte big-endian value, the
// layout used by uuid.UUID.
func TraceIDFromBytes(b [16]byte) TraceID {
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(b[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(b[i])
	}
	return TraceID{Hi: hi, Lo: lo}
}

// Bytes returns the 16-byte big-endian representation of the trace id.
func (t TraceID) Bytes() [16]byte {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(t.Hi >> (8 * i))
	}
	for i := 0; i < 8; i++ {
		b[15-i] = byte(t.Lo >> (8 * i))
	}
	return b
}

// IsZero reports whether this is the zero-value TraceID.
func (t TraceID) IsZero() bool { return t.Hi == 0 && t.Lo == 0 }

// LittleEndianBytes returns the 16-byte little-endian encoding of the trace
// id's 128-bit integer value, the layout OTLP's wire format requires.
func (t TraceID) LittleEndianBytes() [16]byte {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(t.Lo >> (8 * i))
	}
	for i := 0; i < 8; i++ {
		b[8+i] = byte(t.Hi >> (8 * i))
	}
	return b
}

// String renders the trace id as 32 lowercase hex characters, matching the
// conventional W3C trace-context textual form.
func (t TraceID) String() string {
	const hexdigits = "0123456789abcdef"
	b := t.Bytes()
	out := make([]byte, 32)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}
