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
	"context"
	"errors"
	"time"

	"github.com/spanbridge/spanbridge/ids"
	"github.com/spanbridge/spanbridge/registry"
)

// Span holds ready-to-publish information gathered over the lifetime of a
// registry span. Values carries whatever a Sink's Visitor accumulated.
type Span[V Visitor] struct {
	ID            ids.SpanID
	Name          string
	TraceID       ids.TraceID
	ParentID      ids.SpanID
	HasParent     bool
	InitializedAt time.Time
	CompletedAt   time.Time
	Meta          registry.Metadata
	ServiceName   string
	Values        V
}

// Event holds ready-to-publish information derived from a registry event.
// TraceID/ParentID are absent for standalone events with no traced parent.
type Event[V Visitor] struct {
	TraceID       ids.TraceID
	HasTraceID    bool
	ParentID      ids.SpanID
	HasParent     bool
	InitializedAt time.Time
	Meta          registry.Metadata
	ServiceName   string
	Values        V
}

// TraceCtx marks a span as part of a distributed trace: the trace it
// belongs to, and the id of the span that stands in as its parent from the
// perspective of the trace (which may be a remote, out-of-process span).
type TraceCtx struct {
	TraceID    ids.TraceID
	ParentSpan ids.SpanID
	HasParent  bool
}

// promotedSpanID is the backend-facing SpanID computed once at span open,
// cached in scratch so on_close and child-span inheritance can reuse the
// exact same value rather than re-promoting the registry's native id.
type promotedSpanID struct {
	id ids.SpanID
}

// Errors of the distributed-context API. Names mirror the taxonomy a caller
// needs to distinguish "no active span" from "no trace context yet" from
// "wrong registry installed". RegisterRoot and CurrentContext return only
// ErrNoEnabledSpan and ErrNoParentNodeHasTraceCtx: they take the
// *registry.Registry explicitly and do not check which subscriber it has,
// so neither ErrRegistrySubscriberNotRegistered nor
// ErrTelemetryLayerNotRegistered is returned by this package.
var (
	ErrNoEnabledSpan                   = errors.New("telemetry: no span is active on the current context")
	ErrRegistrySubscriberNotRegistered = errors.New("telemetry: the active registry is not the one this package expects")
	ErrTelemetryLayerNotRegistered     = errors.New("telemetry: no Layer is installed as a subscriber of the ambient registry")
	ErrNoParentNodeHasTraceCtx         = errors.New("telemetry: no enclosing span has registered a trace context; call RegisterRoot in some ancestor span")
)

// RegisterRoot installs a TraceCtx into the scratch of whatever span is
// current on ctx, marking it (and, from then on, every span opened beneath
// it) as part of the given distributed trace. remoteParent, if non-nil, is
// the id of the span in some other process that this subtree continues;
// pass nil to mark this span as the trace's local root.
//
// Overwrites any trace context the span already carried. It does not
// retroactively re-tag children that were opened before this call -- they
// already inherited whatever context (or lack of one) was present at their
// own open.
func RegisterRoot(ctx context.Context, reg *registry.Registry, traceID ids.TraceID, remoteParent *ids.SpanID) error {
	id, ok := registry.CurrentSpan(ctx)
	if !ok {
		return ErrNoEnabledSpan
	}
	ext, ok := reg.Extensions(id)
	if !ok {
		return ErrNoEnabledSpan
	}

	tc := TraceCtx{TraceID: traceID}
	if remoteParent != nil {
		tc.ParentSpan = *remoteParent
		tc.HasParent = true
	}
	registry.Insert(ext, tc)
	return nil
}

// CurrentContext returns the trace id and promoted span id of whatever span
// is current on ctx. It consults only that span's own scratch, never an
// ancestor's -- trace context is inherited at open, so if an ancestor had
// one, the current span already does too. Returns ErrNoEnabledSpan if no
// span is current on ctx, and ErrNoParentNodeHasTraceCtx if the current
// span carries no trace context: RegisterRoot was never called on it, nor
// on any ancestor before this span opened.
func CurrentContext(ctx context.Context, reg *registry.Registry) (ids.TraceID, ids.SpanID, error) {
	id, ok := registry.CurrentSpan(ctx)
	if !ok {
		return ids.TraceID{}, 0, ErrNoEnabledSpan
	}
	ext, ok := reg.Extensions(id)
	if !ok {
		return ids.TraceID{}, 0, ErrNoEnabledSpan
	}

	tc, ok := registry.Get[TraceCtx](ext)
	if !ok {
		return ids.TraceID{}, 0, ErrNoParentNodeHasTraceCtx
	}
	psid, ok := registry.Get[promotedSpanID](ext)
	if !ok {
		return ids.TraceID{}, 0, ErrNoParentNodeHasTraceCtx
	}
	return tc.TraceID, psid.id, nil
}
