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
	"sync"
	"testing"
	"time"

	"github.com/spanbridge/spanbridge/ids"
	"github.com/spanbridge/spanbridge/registry"
)

// recordingSink collects every reported span and event, guarded by a mutex
// since OnClose/OnEvent may run from multiple goroutines for disjoint spans.
type recordingSink struct {
	mu     sync.Mutex
	spans  []Span[*FieldsVisitor]
	events []Event[*FieldsVisitor]
}

func (s *recordingSink) MakeVisitor() *FieldsVisitor { return &FieldsVisitor{} }

func (s *recordingSink) ReportSpan(span Span[*FieldsVisitor], events []Event[*FieldsVisitor]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = append(s.spans, span)
	s.events = append(s.events, events...)
}

func (s *recordingSink) ReportEvent(event Event[*FieldsVisitor]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func promoteIdentity(id registry.ID) ids.SpanID { return ids.SpanID(id) }

func newHarness() (*registry.Registry, *Layer[*FieldsVisitor], *recordingSink) {
	reg := registry.New(nil)
	sink := &recordingSink{}
	layer := New[*FieldsVisitor](reg, "test_svc_name", sink, promoteIdentity)
	reg.SetSubscriber(layer)
	return reg, layer, sink
}

func explicitTraceID() ids.TraceID  { return ids.TraceID{Hi: 0, Lo: 135} }
func explicitParentID() ids.SpanID  { return ids.SpanID(246) }

// Scenario A: synchronous nested spans.
func TestSynchronousNestedSpans(t *testing.T) {
	reg, _, sink := newHarness()

	ctx, f := reg.Start(context.Background(), registry.Metadata{Name: "f"})
	parent := explicitParentID()
	if err := RegisterRoot(ctx, reg, explicitTraceID(), &parent); err != nil {
		t.Fatalf("RegisterRoot: %v", err)
	}

	for i := 0; i < 3; i++ {
		gctx, g := reg.Start(ctx, registry.Metadata{Name: "g"})
		reg.Event(gctx, registry.Metadata{Name: "event"}, nil, false,
			registry.StringField("duration_ms", "duration-value"),
			registry.StringField("foo", "bar"))
		g.End()
	}
	f.End()

	if len(sink.spans) != 4 {
		t.Fatalf("got %d spans, want 4", len(sink.spans))
	}

	root := sink.spans[3]
	children := sink.spans[0:3]

	if root.ParentID != explicitParentID() || !root.HasParent {
		t.Fatalf("root.ParentID = %v (hasParent=%v), want %v", root.ParentID, root.HasParent, explicitParentID())
	}
	if root.TraceID != explicitTraceID() {
		t.Fatalf("root.TraceID = %v, want %v", root.TraceID, explicitTraceID())
	}

	if len(sink.events) != 3 {
		t.Fatalf("got %d events, want 3", len(sink.events))
	}

	for i, child := range children {
		if !child.HasParent || child.ParentID != root.ID {
			t.Fatalf("child[%d].ParentID = %v (hasParent=%v), want %v", i, child.ParentID, child.HasParent, root.ID)
		}
		if child.TraceID != explicitTraceID() {
			t.Fatalf("child[%d].TraceID = %v, want %v", i, child.TraceID, explicitTraceID())
		}
		ev := sink.events[i]
		if !ev.HasParent || ev.ParentID != child.ID {
			t.Fatalf("event[%d].ParentID = %v (hasParent=%v), want %v", i, ev.ParentID, ev.HasParent, child.ID)
		}
		if !ev.HasTraceID || ev.TraceID != explicitTraceID() {
			t.Fatalf("event[%d].TraceID = %v (has=%v), want %v", i, ev.TraceID, ev.HasTraceID, explicitTraceID())
		}
	}
}

// Scenario B: asynchronous with interleaving. g runs on its own goroutine
// with a short delay; trace context must survive the suspension because
// it was copied into the child's scratch at open, not looked up lazily.
func TestAsynchronousNestedSpansSurviveInterleaving(t *testing.T) {
	reg, _, sink := newHarness()

	ctx, f := reg.Start(context.Background(), registry.Metadata{Name: "f"})
	parent := explicitParentID()
	if err := RegisterRoot(ctx, reg, explicitTraceID(), &parent); err != nil {
		t.Fatalf("RegisterRoot: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gctx, g := reg.Start(ctx, registry.Metadata{Name: "g"})
			time.Sleep(5 * time.Millisecond)
			reg.Event(gctx, registry.Metadata{Name: "event"}, nil, false,
				registry.StringField("duration_ms", "duration-value"))
			g.End()
		}()
	}
	wg.Wait()
	f.End()

	if len(sink.spans) != 4 {
		t.Fatalf("got %d spans, want 4", len(sink.spans))
	}
	var root *Span[*FieldsVisitor]
	children := make([]Span[*FieldsVisitor], 0, 3)
	for i := range sink.spans {
		if sink.spans[i].Name == "f" {
			root = &sink.spans[i]
		} else {
			children = append(children, sink.spans[i])
		}
	}
	if root == nil {
		t.Fatal("root span f not reported")
	}
	if len(children) != 3 {
		t.Fatalf("got %d child spans, want 3", len(children))
	}
	for _, child := range children {
		if !child.HasParent || child.ParentID != root.ID {
			t.Fatalf("child.ParentID = %v, want %v", child.ParentID, root.ID)
		}
		if child.TraceID != explicitTraceID() {
			t.Fatalf("child.TraceID = %v, want %v", child.TraceID, explicitTraceID())
		}
	}
	if len(sink.events) != 3 {
		t.Fatalf("got %d events, want 3", len(sink.events))
	}
}

// Scenario C: a standalone event with no active span is reported
// immediately via ReportEvent and never attached to any span.
func TestStandaloneEventWithNoActiveSpan(t *testing.T) {
	reg, _, sink := newHarness()

	reg.Event(context.Background(), registry.Metadata{Name: "standalone"}, nil, false,
		registry.StringField("k", "v"))

	if len(sink.spans) != 0 {
		t.Fatalf("got %d spans, want 0", len(sink.spans))
	}
	if len(sink.events) != 1 {
		t.Fatalf("got %d events, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.HasParent || ev.HasTraceID {
		t.Fatalf("standalone event should have no parent/trace, got parent=%v hasParent=%v trace=%v hasTrace=%v",
			ev.ParentID, ev.HasParent, ev.TraceID, ev.HasTraceID)
	}
}

// Scenario D: an untraced subtree (no RegisterRoot anywhere) is dropped in
// its entirety -- neither the spans nor the event inside it are reported.
func TestUntracedSubtreeIsDropped(t *testing.T) {
	reg, _, sink := newHarness()

	ctx, a := reg.Start(context.Background(), registry.Metadata{Name: "a"})
	bctx, b := reg.Start(ctx, registry.Metadata{Name: "b"})
	reg.Event(bctx, registry.Metadata{Name: "ev"}, nil, false, registry.StringField("k", "v"))
	b.End()
	a.End()

	if len(sink.spans) != 0 {
		t.Fatalf("got %d spans, want 0", len(sink.spans))
	}
	if len(sink.events) != 0 {
		t.Fatalf("got %d events, want 0", len(sink.events))
	}
}

// Scenario E: current_context fails when no enclosing span ever registered
// a trace root.
func TestCurrentContextWithoutRootFails(t *testing.T) {
	reg, _, _ := newHarness()

	ctx, span := reg.Start(context.Background(), registry.Metadata{Name: "a"})
	defer span.End()

	_, _, err := CurrentContext(ctx, reg)
	if err != ErrNoParentNodeHasTraceCtx {
		t.Fatalf("CurrentContext err = %v, want %v", err, ErrNoParentNodeHasTraceCtx)
	}
}

func TestCurrentContextReturnsOwnPromotedSpanID(t *testing.T) {
	reg, _, _ := newHarness()

	ctx, f := reg.Start(context.Background(), registry.Metadata{Name: "f"})
	parent := explicitParentID()
	if err := RegisterRoot(ctx, reg, explicitTraceID(), &parent); err != nil {
		t.Fatalf("RegisterRoot: %v", err)
	}

	gctx, g := reg.Start(ctx, registry.Metadata{Name: "g"})

	tid, sid, err := CurrentContext(gctx, reg)
	if err != nil {
		t.Fatalf("CurrentContext: %v", err)
	}
	if tid != explicitTraceID() {
		t.Fatalf("trace id = %v, want %v", tid, explicitTraceID())
	}
	if sid != ids.SpanID(g.ID()) {
		t.Fatalf("span id = %v, want the current span's own promoted id %v", sid, g.ID())
	}

	g.End()
	f.End()
}
