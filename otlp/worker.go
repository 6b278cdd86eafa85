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
	"bytes"
	"io"
	"net/http"
	"net/url"
	"time"

	"google.golang.org/protobuf/proto"

	collectorpb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/spanbridge/spanbridge/pkg/logging"
)

// Header is a single HTTP header applied, in order, to every export
// request.
type Header struct {
	Key   string
	Value string
}

// Worker owns everything needed to deliver buffered spans to a collector:
// the receive end of the span queue, the HTTP client, the resource
// attributes, and the wall-clock bookkeeping for its send interval. It is
// the only part of this package that performs network I/O, and it runs on
// its own goroutine -- the one concession the design makes to "dedicated
// OS thread" in a runtime that doesn't expose OS threads directly.
type Worker struct {
	sendInterval time.Duration
	endpoint     *url.URL
	queue        *spanQueue
	resource     *resourcepb.Resource
	headers      []Header
	httpClient   *http.Client
	logger       *logging.Logger

	lastSend time.Time
}

// Run executes the worker's main loop: wait for a span (or the send
// interval, whichever comes first), buffer it, and flush the buffer once
// per interval. Returns when the queue is closed and drained -- graceful
// shutdown; anything still buffered at that point is discarded, matching
// the "no persisted state" contract of the export path.
func (w *Worker) Run() {
	var buffer []*tracepb.Span

	for {
		timeout := time.Until(w.lastSend.Add(w.sendInterval))
		if timeout < 0 {
			timeout = 0
		}

		span, ok := w.queue.recvTimeout(timeout)
		if !ok {
			return
		}
		if span != nil {
			buffer = append(buffer, span)
		}

		if time.Since(w.lastSend) < w.sendInterval {
			continue
		}
		w.lastSend = time.Now()

		if len(buffer) == 0 {
			continue
		}

		if w.flush(buffer) {
			buffer = nil
		}
		// On failure the spans already reported in buffer simply remain
		// there: they're retried, combined with anything newly arrived,
		// on the next tick.
	}
}

// flush encodes buffer as a single OTLP export request and POSTs it.
// Returns true if the batch was delivered (even if the collector rejected
// part of it -- that's logged, not retried), false if the request could not
// be encoded, built or sent, or the collector answered with an HTTP error
// status (400 or above), so the caller keeps the batch for the next tick.
func (w *Worker) flush(buffer []*tracepb.Span) bool {
	req := &collectorpb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource: w.resource,
				ScopeSpans: []*tracepb.ScopeSpans{
					{Spans: buffer},
				},
			},
		},
	}

	body, err := proto.Marshal(req)
	if err != nil {
		w.logger.Error("failed to encode OTLP export request", "error", err)
		return false
	}

	httpReq, err := http.NewRequest(http.MethodPost, w.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		w.logger.Error("failed to build OTLP export request", "error", err)
		return false
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	for _, h := range w.headers {
		httpReq.Header.Set(h.Key, h.Value)
	}

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		w.logger.Error("error sending spans to collector", "endpoint", w.endpoint.String(), "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		w.logger.Error("collector returned an HTTP error status", "endpoint", w.endpoint.String(), "status", resp.StatusCode)
		return false
	}

	if resp.Header.Get("Content-Type") != "application/x-protobuf" {
		return true
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		w.logger.Error("protobuf response interrupted", "error", err)
		return true
	}

	var exportResp collectorpb.ExportTraceServiceResponse
	if err := proto.Unmarshal(respBody, &exportResp); err != nil {
		w.logger.Error("could not decode protobuf response", "error", err)
		return true
	}

	if ps := exportResp.PartialSuccess; ps != nil && (ps.ErrorMessage != "" || ps.RejectedSpans != 0) {
		w.logger.Warn("collector returned a partial success", "rejected_spans", ps.RejectedSpans, "message", ps.ErrorMessage)
	}

	return true
}
