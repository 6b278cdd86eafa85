// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package otlp

import (
	"time"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/spanbridge/spanbridge/pkg/logging"
	"github.com/spanbridge/spanbridge/telemetry"
)

// Otlp implements telemetry.Sink[*Visitor] against the OTLP wire format.
// ReportSpan translates a completed span (and its attached events) into an
// OTLP Span protobuf message and hands it to the export worker over an
// in-memory queue; ReportSpan itself never touches the network.
// ReportEvent is a no-op: OTLP has no standalone-event concept, so events
// outside any traced subtree are not exportable by this adapter.
type Otlp struct {
	queue  *spanQueue
	logger *logging.Logger
}

func newOtlp(queue *spanQueue, logger *logging.Logger) *Otlp {
	return &Otlp{queue: queue, logger: logger}
}

func (o *Otlp) MakeVisitor() *Visitor {
	return &Visitor{}
}

func (o *Otlp) ReportSpan(span telemetry.Span[*Visitor], events []telemetry.Event[*Visitor]) {
	pbEvents := make([]*tracepb.Span_Event, 0, len(events))
	for _, ev := range events {
		pbEvents = append(pbEvents, &tracepb.Span_Event{
			TimeUnixNano: o.unixNano(ev.InitializedAt),
			Name:         "event",
			Attributes:   ev.Values.Attributes,
		})
	}

	traceIDBytes := span.TraceID.LittleEndianBytes()
	spanIDBytes := span.ID.LittleEndianBytes()

	var parentSpanID []byte
	if span.HasParent {
		b := span.ParentID.LittleEndianBytes()
		parentSpanID = b[:]
	}

	pbSpan := &tracepb.Span{
		TraceId:           traceIDBytes[:],
		SpanId:            spanIDBytes[:],
		ParentSpanId:      parentSpanID,
		Name:              span.Name,
		Kind:              tracepb.Span_SPAN_KIND_UNSPECIFIED,
		StartTimeUnixNano: o.unixNano(span.InitializedAt),
		EndTimeUnixNano:   o.unixNano(span.CompletedAt),
		Attributes:        span.Values.Attributes,
		Events:            pbEvents,
	}

	o.queue.push(pbSpan)
}

func (o *Otlp) ReportEvent(telemetry.Event[*Visitor]) {}

// unixNano converts a wall-clock reading to OTLP's uint64
// nanoseconds-since-epoch. A timestamp before the Unix epoch indicates the
// clock went backward; export substitutes 0 and logs once rather than
// wrapping to a nonsensical large unsigned value.
func (o *Otlp) unixNano(t time.Time) uint64 {
	nanos := t.UnixNano()
	if nanos < 0 {
		o.logger.Warn("clock went backward while computing OTLP timestamp")
		return 0
	}
	return uint64(nanos)
}
