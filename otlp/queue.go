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
	"sync"
	"time"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// spanQueue is the many-producer/single-consumer channel between
// ReportSpan callers and the export worker. It is unbounded in practice
// (push never blocks) and supports a receive-with-timeout operation the
// worker uses to wake up on its send interval even when idle -- a Go
// channel alone can't express "block for at most d" without an
// accompanying timer, so this wraps one.
type spanQueue struct {
	mu     sync.Mutex
	items  []*tracepb.Span
	notify chan struct{}
	closed bool
}

func newSpanQueue() *spanQueue {
	return &spanQueue{notify: make(chan struct{}, 1)}
}

// push enqueues a span. It never blocks and is safe to call concurrently
// from any number of goroutines. Pushing onto a closed queue is a no-op:
// the span is dropped.
func (q *spanQueue) push(s *tracepb.Span) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, s)
	q.mu.Unlock()
	q.wake()
}

// close marks the queue closed. Already-buffered spans remain available
// to recvTimeout until drained; after that recvTimeout reports closed.
func (q *spanQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *spanQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// recvTimeout waits up to d for a span. It returns (span, true) if one was
// available, (nil, true) if the wait timed out with nothing available, and
// (nil, false) if the queue is closed and empty -- the worker's signal to
// exit its loop.
func (q *spanQueue) recvTimeout(d time.Duration) (*tracepb.Span, bool) {
	deadline := time.Now().Add(d)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			span := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return span, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, true
		}
		timer := time.NewTimer(remaining)
		select {
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
			return nil, true
		}
	}
}
