// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"testing"
)

type recordingSubscriber struct {
	opens   []ID
	records []ID
	events  []EventData
	closes  []ID
	parents map[ID]ID
}

func newRecordingSubscriber() *recordingSubscriber {
	return &recordingSubscriber{parents: make(map[ID]ID)}
}

func (s *recordingSubscriber) OnOpen(id ID, parent ID, hasParent bool, meta Metadata, attrs Fields) {
	s.opens = append(s.opens, id)
	if hasParent {
		s.parents[id] = parent
	}
}
func (s *recordingSubscriber) OnRecord(id ID, values Fields) { s.records = append(s.records, id) }
func (s *recordingSubscriber) OnEvent(ev EventData)          { s.events = append(s.events, ev) }
func (s *recordingSubscriber) OnClose(id ID)                 { s.closes = append(s.closes, id) }

func TestStartAssignsParentFromContext(t *testing.T) {
	sub := newRecordingSubscriber()
	reg := New(sub)

	ctx, outer := reg.Start(context.Background(), Metadata{Name: "outer"})
	ctx, inner := reg.Start(ctx, Metadata{Name: "inner"})

	if parent, ok := sub.parents[inner.ID()]; !ok || parent != outer.ID() {
		t.Fatalf("inner span parent = %v (ok=%v), want %v", parent, ok, outer.ID())
	}
	if _, ok := sub.parents[outer.ID()]; ok {
		t.Fatal("outer span should have no parent")
	}

	inner.End()
	outer.End()
	_ = ctx
}

func TestEventResolvesParentFromCurrentSpan(t *testing.T) {
	sub := newRecordingSubscriber()
	reg := New(sub)

	ctx, span := reg.Start(context.Background(), Metadata{Name: "s"})
	reg.Event(ctx, Metadata{Name: "ev"}, nil, false, StringField("k", "v"))
	span.End()

	if len(sub.events) != 1 {
		t.Fatalf("got %d events, want 1", len(sub.events))
	}
	ev := sub.events[0]
	if !ev.HasParent || ev.ParentID != span.ID() {
		t.Fatalf("event parent = %v (hasParent=%v), want %v", ev.ParentID, ev.HasParent, span.ID())
	}
}

func TestEventWithNoCurrentSpanHasNoParent(t *testing.T) {
	sub := newRecordingSubscriber()
	reg := New(sub)

	reg.Event(context.Background(), Metadata{Name: "ev"}, nil, false)

	if len(sub.events) != 1 {
		t.Fatalf("got %d events, want 1", len(sub.events))
	}
	if sub.events[0].HasParent {
		t.Fatal("expected no parent for root event")
	}
}

func TestEventExplicitRootIgnoresCurrentSpan(t *testing.T) {
	sub := newRecordingSubscriber()
	reg := New(sub)

	ctx, span := reg.Start(context.Background(), Metadata{Name: "s"})
	reg.Event(ctx, Metadata{Name: "ev"}, nil, true)
	span.End()

	if sub.events[0].HasParent {
		t.Fatal("is_root event should have no parent even with an active span")
	}
}

func TestExtensionsRemovedAfterClose(t *testing.T) {
	sub := newRecordingSubscriber()
	reg := New(sub)

	_, span := reg.Start(context.Background(), Metadata{Name: "s"})
	ext, ok := reg.Extensions(span.ID())
	if !ok {
		t.Fatal("expected extensions while span is open")
	}
	Insert(ext, 42)

	span.End()

	if _, ok := reg.Extensions(span.ID()); ok {
		t.Fatal("expected no extensions after close")
	}
}

func TestExtensionsGetInsertRemove(t *testing.T) {
	ext := newExtensions()

	if _, ok := Get[string](ext); ok {
		t.Fatal("expected nothing stored yet")
	}

	Insert(ext, "hello")
	Insert(ext, 7)

	s, ok := Get[string](ext)
	if !ok || s != "hello" {
		t.Fatalf("Get[string]() = %q, %v", s, ok)
	}

	n, ok := Remove[int](ext)
	if !ok || n != 7 {
		t.Fatalf("Remove[int]() = %d, %v", n, ok)
	}
	if _, ok := Get[int](ext); ok {
		t.Fatal("expected int slot empty after Remove")
	}
}

func TestParentFallbackUsesDynamicParent(t *testing.T) {
	sub := newRecordingSubscriber()
	reg := New(sub)

	ctx, outer := reg.Start(context.Background(), Metadata{Name: "outer"})
	_, inner := reg.Start(ctx, Metadata{Name: "inner"})

	parent, ok := reg.Parent(inner.ID())
	if !ok || parent != outer.ID() {
		t.Fatalf("Parent(inner) = %v, %v, want %v, true", parent, ok, outer.ID())
	}

	if _, ok := reg.Parent(outer.ID()); ok {
		t.Fatal("outer span should report no dynamic parent")
	}
}
