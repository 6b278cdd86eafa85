// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry is the ambient span registry instrumented code reports
// to. Rust's `tracing` crate ships one of these for free (a thread/task-local
// current-span pointer plus a per-span extensions map with a Layer
// subscriber); Go has no equivalent built in, so this package is that
// registry, built from scratch: explicit context.Context propagation stands
// in for tracing's thread-locals, and a Subscriber receives the same four
// lifecycle notifications a tracing_subscriber::Layer would.
package registry

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// ID is the registry's native span identifier. It is assigned sequentially
// at Start and is meaningless outside of a single process.
type ID uint64

// Metadata is the static, compile-time-ish information describing a span or
// event: its name and the call site that produced it.
type Metadata struct {
	Name   string
	Target string
}

// Field is a single (key, value) pair recorded on a span or event. Value
// holds exactly one live typed member, selected by Value.Kind; a
// DebugField carries its already-formatted value in Str.
type Field struct {
	Key   string
	Value Value
}

// Value is a typed field value. Kind discriminates which member is live.
type Value struct {
	Kind   ValueKind
	Str    string
	Bool   bool
	I64    int64
	F64    float64
}

// ValueKind discriminates the live member of a Value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindI64
	KindF64
	KindDebug
)

// Fields is an ordered list of recorded (key, value) pairs. Duplicate keys
// are permitted; insertion order is preserved.
type Fields []Field

// StringField, BoolField, I64Field, F64Field and DebugField build Field
// values of the corresponding kind. DebugField carries its value already
// formatted as a string by the caller (mirroring tracing's record_debug
// fallback for arbitrary Debug-formatted values).
func StringField(key, v string) Field { return Field{Key: key, Value: Value{Kind: KindString, Str: v}} }
func BoolField(key string, v bool) Field {
	return Field{Key: key, Value: Value{Kind: KindBool, Bool: v}}
}
func I64Field(key string, v int64) Field { return Field{Key: key, Value: Value{Kind: KindI64, I64: v}} }
func F64Field(key string, v float64) Field {
	return Field{Key: key, Value: Value{Kind: KindF64, F64: v}}
}
func DebugField(key, formatted string) Field {
	return Field{Key: key, Value: Value{Kind: KindDebug, Str: formatted}}
}

// EventData is passed to Subscriber.OnEvent. ParentID/HasParent identify the
// span the event is attached to, already resolved by the registry per the
// explicit-parent / root / current-span precedence.
type EventData struct {
	ParentID  ID
	HasParent bool
	Meta      Metadata
	Fields    Fields
}

// Subscriber receives the four span lifecycle notifications. The lifecycle
// layer in package telemetry is the one production implementation; tests may
// supply their own to observe registry behavior in isolation.
type Subscriber interface {
	OnOpen(id ID, parent ID, hasParent bool, meta Metadata, attrs Fields)
	OnRecord(id ID, values Fields)
	OnEvent(ev EventData)
	OnClose(id ID)
}

// Extensions is the per-span scratch store the subscriber uses to stash
// typed state across callbacks (trace context, accumulated fields, pending
// events...). Keys are Go types, so each stored kind gets its own slot.
// Guarded by its own mutex: the registry's map lock is never held while a
// subscriber touches extensions, so concurrent spans never contend with one
// another.
type Extensions struct {
	mu     sync.Mutex
	values map[extKey]any
}

type extKey = reflect.Type

func keyFor[T any]() extKey {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func newExtensions() *Extensions {
	return &Extensions{values: make(map[extKey]any)}
}

// Insert stores v in the slot for type T, replacing any prior value.
func Insert[T any](e *Extensions, v T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[keyFor[T]()] = v
}

// Get returns the value stored for type T, if any.
func Get[T any](e *Extensions) (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[keyFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Remove deletes and returns the value stored for type T, if any.
func Remove[T any](e *Extensions) (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := keyFor[T]()
	v, ok := e.values[k]
	if !ok {
		var zero T
		return zero, false
	}
	delete(e.values, k)
	return v.(T), true
}

type spanInfo struct {
	parent    ID
	hasParent bool
	ext       *Extensions
}

// Registry tracks every span currently open and dispatches lifecycle
// notifications to its Subscriber. The zero value is not usable; construct
// with New.
type Registry struct {
	subscriber Subscriber
	nextID     atomic.Uint64

	mu    sync.RWMutex
	spans map[ID]*spanInfo
}

// New constructs a Registry that reports to sub. sub may be nil if the
// subscriber isn't known yet (it typically needs a reference to the
// registry itself); call SetSubscriber before the first Start in that case.
func New(sub Subscriber) *Registry {
	return &Registry{
		subscriber: sub,
		spans:      make(map[ID]*spanInfo),
	}
}

// SetSubscriber installs sub as the registry's subscriber. Used to break the
// construction cycle between a Registry and a Subscriber that needs a
// pointer back to its registry (see telemetry.New and otlp.Builder.Build).
func (r *Registry) SetSubscriber(sub Subscriber) {
	r.subscriber = sub
}

type currentSpanKey struct{}

// currentSpan returns the ID of the span active on ctx, if any.
func currentSpan(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(currentSpanKey{}).(ID)
	return id, ok
}

// Span is a handle to an open span, returned by Start. Record and End are
// the only operations instrumented code performs on it; both are safe to
// call from the goroutine that opened the span only (matching a tracing
// guard's single-threaded enter/exit discipline -- concurrent sibling spans
// are fine, concurrent use of one Span handle is not).
type Span struct {
	id  ID
	reg *Registry
}

// ID returns the registry-native identifier of this span.
func (s *Span) ID() ID { return s.id }

// Start opens a new span as a child of whatever span is current on ctx (if
// any), invokes the subscriber's OnOpen hook, and returns a context carrying
// the new span as current along with a handle to it.
func (r *Registry) Start(ctx context.Context, meta Metadata, attrs ...Field) (context.Context, *Span) {
	id := ID(r.nextID.Add(1))

	parent, hasParent := currentSpan(ctx)

	info := &spanInfo{parent: parent, hasParent: hasParent, ext: newExtensions()}

	r.mu.Lock()
	r.spans[id] = info
	r.mu.Unlock()

	r.subscriber.OnOpen(id, parent, hasParent, meta, attrs)

	return context.WithValue(ctx, currentSpanKey{}, id), &Span{id: id, reg: r}
}

// Record appends additional fields to the span's scratch, invoking
// OnRecord.
func (s *Span) Record(values ...Field) {
	s.reg.subscriber.OnRecord(s.id, values)
}

// End closes the span, invoking OnClose, and forgets it: the registry holds
// no further bookkeeping for this id afterward.
func (s *Span) End() {
	s.reg.subscriber.OnClose(s.id)
	s.reg.mu.Lock()
	delete(s.reg.spans, s.id)
	s.reg.mu.Unlock()
}

// Event reports a point-in-time annotation. Its parent is resolved by
// precedence: explicitParent if non-nil, else no parent if root is true,
// else the span current on ctx (which may itself be absent).
func (r *Registry) Event(ctx context.Context, meta Metadata, explicitParent *ID, root bool, fields ...Field) {
	var parentID ID
	var hasParent bool

	switch {
	case explicitParent != nil:
		parentID, hasParent = *explicitParent, true
	case root:
		hasParent = false
	default:
		parentID, hasParent = currentSpan(ctx)
	}

	r.subscriber.OnEvent(EventData{ParentID: parentID, HasParent: hasParent, Meta: meta, Fields: fields})
}

// Extensions returns the scratch store for id, if the span is still open.
func (r *Registry) Extensions(id ID) (*Extensions, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.spans[id]
	if !ok {
		return nil, false
	}
	return info.ext, true
}

// Parent returns the dynamic parent of id as recorded at Start, if any.
func (r *Registry) Parent(id ID) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.spans[id]
	if !ok {
		return 0, false
	}
	return info.parent, info.hasParent
}

// CurrentSpan returns the ID of the span active on ctx, if any. Exported so
// callers outside this package (the distributed-context API) can resolve
// "the current span" without reaching into context internals themselves.
func CurrentSpan(ctx context.Context) (ID, bool) {
	return currentSpan(ctx)
}
