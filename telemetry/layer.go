// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"time"

	"github.com/spanbridge/spanbridge/ids"
	"github.com/spanbridge/spanbridge/registry"
)

// spanInitAt is the wall-clock timestamp recorded at span open, cached in
// scratch since the registry itself has no notion of span timing.
type spanInitAt struct {
	t time.Time
}

// Layer is the registry.Subscriber that implements the span-lifecycle core:
// it watches span open/record/event/close notifications, maintains
// per-span scratch in the registry's own extensions store, and materializes
// completed Span/Event records for a Sink once a span's subtree is known to
// be part of a distributed trace.
//
// A Layer is parameterized by the sink's Visitor type; construct one with
// New.
type Layer[V Visitor] struct {
	serviceName   string
	sink          Sink[V]
	reg           *registry.Registry
	promoteSpanID func(registry.ID) ids.SpanID
}

// New constructs a Layer reporting to sink. reg is the registry this layer
// will be installed as the Subscriber of (the layer calls back into it to
// read parent spans' scratch, so it must be the same instance). promote
// maps the registry's native span id to the backend-facing ids.SpanID
// exactly once, at that span's open.
func New[V Visitor](reg *registry.Registry, serviceName string, sink Sink[V], promote func(registry.ID) ids.SpanID) *Layer[V] {
	return &Layer[V]{serviceName: serviceName, sink: sink, reg: reg, promoteSpanID: promote}
}

// OnOpen implements registry.Subscriber. It seeds this span's scratch and,
// if the dynamic parent is already part of a trace, inherits that trace
// context onto the child. Inheritance happens here, once, rather than being
// looked up lazily on every later access -- a child must keep attributing
// to the same trace even if the parent's context is later overwritten by a
// RegisterRoot call.
func (l *Layer[V]) OnOpen(id registry.ID, parent registry.ID, hasParent bool, meta registry.Metadata, attrs registry.Fields) {
	ext, ok := l.reg.Extensions(id)
	if !ok {
		return
	}

	var inherited TraceCtx
	haveInherited := false
	if hasParent {
		if parentExt, ok := l.reg.Extensions(parent); ok {
			if ptc, ok := registry.Get[TraceCtx](parentExt); ok {
				if ppsid, ok := registry.Get[promotedSpanID](parentExt); ok {
					inherited = TraceCtx{TraceID: ptc.TraceID, ParentSpan: ppsid.id, HasParent: true}
					haveInherited = true
				}
			}
		}
	}

	registry.Insert(ext, meta)
	registry.Insert(ext, spanInitAt{t: time.Now()})
	registry.Insert(ext, promotedSpanID{id: l.promoteSpanID(id)})

	visitor := l.sink.MakeVisitor()
	Apply(visitor, attrs)
	registry.Insert(ext, visitor)
	registry.Insert(ext, make([]Event[V], 0))

	if haveInherited {
		registry.Insert(ext, inherited)
	}
}

// OnRecord implements registry.Subscriber, replaying newly recorded fields
// through the span's existing visitor.
func (l *Layer[V]) OnRecord(id registry.ID, values registry.Fields) {
	ext, ok := l.reg.Extensions(id)
	if !ok {
		return
	}
	visitor, ok := registry.Get[V](ext)
	if !ok {
		return
	}
	Apply(visitor, values)
}

// OnEvent implements registry.Subscriber. An event with no parent span is
// published immediately as a standalone Event. An event whose parent span
// exists but carries no trace context is dropped -- it isn't part of any
// trace, and OTLP (among other backends) has no standalone-event concept.
// Otherwise the event is appended to the parent's pending-events list and
// published together with the parent on close.
func (l *Layer[V]) OnEvent(ev registry.EventData) {
	initializedAt := time.Now()
	visitor := l.sink.MakeVisitor()
	Apply(visitor, ev.Fields)

	if !ev.HasParent {
		l.sink.ReportEvent(Event[V]{
			InitializedAt: initializedAt,
			Meta:          ev.Meta,
			ServiceName:   l.serviceName,
			Values:        visitor,
		})
		return
	}

	parentExt, ok := l.reg.Extensions(ev.ParentID)
	if !ok {
		return
	}
	parentTC, ok := registry.Get[TraceCtx](parentExt)
	if !ok {
		return
	}
	parentPSID, ok := registry.Get[promotedSpanID](parentExt)
	if !ok {
		return
	}

	event := Event[V]{
		TraceID:       parentTC.TraceID,
		HasTraceID:    true,
		ParentID:      parentPSID.id,
		HasParent:     true,
		InitializedAt: initializedAt,
		Meta:          ev.Meta,
		ServiceName:   l.serviceName,
		Values:        visitor,
	}

	pending, ok := registry.Get[[]Event[V]](parentExt)
	if !ok {
		return
	}
	registry.Insert(parentExt, append(pending, event))
}

// OnClose implements registry.Subscriber. A span with no TraceCtx in
// scratch is untraced: its scratch (and any events it accumulated) is
// discarded without being reported. Otherwise a completed Span is built and
// handed to the sink along with its pending events.
func (l *Layer[V]) OnClose(id registry.ID) {
	ext, ok := l.reg.Extensions(id)
	if !ok {
		return
	}

	tc, ok := registry.Remove[TraceCtx](ext)
	if !ok {
		return
	}

	meta, _ := registry.Get[registry.Metadata](ext)
	visitor, _ := registry.Get[V](ext)
	initAt, _ := registry.Get[spanInitAt](ext)
	events, _ := registry.Get[[]Event[V]](ext)
	psid, _ := registry.Get[promotedSpanID](ext)

	completedAt := time.Now()
	if completedAt.Before(initAt.t) {
		completedAt = initAt.t
	}

	var parentID ids.SpanID
	hasParent := false
	if tc.HasParent {
		parentID, hasParent = tc.ParentSpan, true
	} else if dynParent, ok := l.reg.Parent(id); ok {
		if parentExt, ok := l.reg.Extensions(dynParent); ok {
			if ppsid, ok := registry.Get[promotedSpanID](parentExt); ok {
				parentID, hasParent = ppsid.id, true
			}
		}
	}

	span := Span[V]{
		ID:            psid.id,
		Name:          meta.Name,
		TraceID:       tc.TraceID,
		ParentID:      parentID,
		HasParent:     hasParent,
		InitializedAt: initAt.t,
		CompletedAt:   completedAt,
		Meta:          meta,
		ServiceName:   l.serviceName,
		Values:        visitor,
	}

	l.sink.ReportSpan(span, events)
}
