// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry turns ambient span-lifecycle callbacks into completed
// Span and Event records and hands them to a Sink. The sink is generic over
// its own attribute-accumulator type (Visitor); SpanID and TraceID are not
// generic parameters here because every sink in this module targets the same
// wire identifiers (see package ids).
package telemetry

import "github.com/spanbridge/spanbridge/registry"

// Visitor accumulates typed field values observed on a span or event. A Sink
// constructs one per span/event via MakeVisitor, so different backends may
// materialize attributes however suits them (an OTLP key-value list, a flat
// map, a no-op sink for tests...).
type Visitor interface {
	RecordString(key, value string)
	RecordBool(key string, value bool)
	RecordI64(key string, value int64)
	RecordF64(key string, value float64)
	RecordDebug(key, formatted string)
}

// Apply replays recorded fields through a Visitor, dispatching on each
// field's kind.
func Apply(v Visitor, fields registry.Fields) {
	for _, f := range fields {
		switch f.Value.Kind {
		case registry.KindString:
			v.RecordString(f.Key, f.Value.Str)
		case registry.KindBool:
			v.RecordBool(f.Key, f.Value.Bool)
		case registry.KindI64:
			v.RecordI64(f.Key, f.Value.I64)
		case registry.KindF64:
			v.RecordF64(f.Key, f.Value.F64)
		case registry.KindDebug:
			v.RecordDebug(f.Key, f.Value.Str)
		}
	}
}

// Sink is the contract any telemetry backend implements. ReportSpan and
// ReportEvent must not block the caller on network I/O -- slow delivery
// belongs in a worker the sink owns, not in these calls.
type Sink[V Visitor] interface {
	// MakeVisitor produces a fresh, empty accumulator.
	MakeVisitor() V
	// ReportSpan publishes one completed span together with every event
	// that was attached to it while it was open.
	ReportSpan(span Span[V], events []Event[V])
	// ReportEvent publishes one standalone event (no enclosing traced span).
	ReportEvent(event Event[V])
}

// FieldsVisitor is a concrete Visitor that accumulates an ordered attribute
// list of registry.Field values. The test sinks in this package use it; the
// OTLP adapter has its own otlp.Visitor.
type FieldsVisitor struct {
	Fields registry.Fields
}

func (v *FieldsVisitor) RecordString(key, value string) {
	v.Fields = append(v.Fields, registry.StringField(key, value))
}
func (v *FieldsVisitor) RecordBool(key string, value bool) {
	v.Fields = append(v.Fields, registry.BoolField(key, value))
}
func (v *FieldsVisitor) RecordI64(key string, value int64) {
	v.Fields = append(v.Fields, registry.I64Field(key, value))
}
func (v *FieldsVisitor) RecordF64(key string, value float64) {
	v.Fields = append(v.Fields, registry.F64Field(key, value))
}
func (v *FieldsVisitor) RecordDebug(key, formatted string) {
	v.Fields = append(v.Fields, registry.DebugField(key, formatted))
}

// BlackholeVisitor discards every recorded field. Used by BlackholeSink.
type BlackholeVisitor struct{}

func (BlackholeVisitor) RecordString(string, string)   {}
func (BlackholeVisitor) RecordBool(string, bool)       {}
func (BlackholeVisitor) RecordI64(string, int64)       {}
func (BlackholeVisitor) RecordF64(string, float64)     {}
func (BlackholeVisitor) RecordDebug(string, string)    {}

// BlackholeSink reports nothing anywhere. Useful for exercising the
// lifecycle layer in tests that only care about side effects other than
// publication (or as a base to embed in a sink that only wants some of the
// three operations).
type BlackholeSink struct{}

func (BlackholeSink) MakeVisitor() BlackholeVisitor { return BlackholeVisitor{} }
func (BlackholeSink) ReportSpan(Span[BlackholeVisitor], []Event[BlackholeVisitor]) {}
func (BlackholeSink) ReportEvent(Event[BlackholeVisitor]) {}
