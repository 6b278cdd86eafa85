// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package otlp is a telemetry.Sink that exports completed spans to an
// OpenTelemetry Protocol collector over HTTP/protobuf.
package otlp

import (
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
)

// Visitor accumulates recorded fields directly as OTLP KeyValue attributes,
// so a completed span's Values are already wire-ready by the time the
// worker picks it up.
type Visitor struct {
	Attributes []*commonpb.KeyValue
}

func (v *Visitor) RecordString(key, value string) {
	v.Attributes = append(v.Attributes, &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	})
}

func (v *Visitor) RecordBool(key string, value bool) {
	v.Attributes = append(v.Attributes, &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: value}},
	})
}

func (v *Visitor) RecordI64(key string, value int64) {
	v.Attributes = append(v.Attributes, &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}},
	})
}

func (v *Visitor) RecordF64(key string, value float64) {
	v.Attributes = append(v.Attributes, &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: value}},
	})
}

// RecordDebug handles arbitrary values with no native OTLP representation:
// the caller has already formatted them, so they travel as a string.
func (v *Visitor) RecordDebug(key, formatted string) {
	v.Attributes = append(v.Attributes, &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: formatted}},
	})
}
