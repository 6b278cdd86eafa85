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
	"errors"
	"net/http"
	"net/url"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"

	"github.com/spanbridge/spanbridge/ids"
	"github.com/spanbridge/spanbridge/pkg/logging"
	"github.com/spanbridge/spanbridge/registry"
	"github.com/spanbridge/spanbridge/telemetry"
)

// Builder accumulates configuration for an OTLP export pipeline: service
// name, send interval, resource attributes, and outbound HTTP headers.
// Construct one with NewBuilder, which fills in the defaults; the zero
// value has no logger, no HTTP client and a zero send interval. Every
// setter returns the receiver for chaining.
type Builder struct {
	serviceName        string
	sendInterval       time.Duration
	resourceAttributes []*commonpb.KeyValue
	headers            []Header
	logger             *logging.Logger
	httpClient         *http.Client
}

// NewBuilder returns a Builder with a 1-second send interval, matching the
// OTLP SDKs' conventional default batch interval.
func NewBuilder() *Builder {
	return &Builder{
		sendInterval: time.Second,
		logger:       logging.Default(),
		httpClient:   &http.Client{},
	}
}

// ServiceName sets the OTLP `service.name` resource attribute.
// See: https://opentelemetry.io/docs/languages/sdk-configuration/general/#otel_service_name
func (b *Builder) ServiceName(name string) *Builder {
	b.serviceName = name
	return b
}

// SendInterval configures how often buffered spans are flushed to the
// collector.
func (b *Builder) SendInterval(d time.Duration) *Builder {
	b.sendInterval = d
	return b
}

// ResourceAttribute adds an attribute describing this OpenTelemetry
// resource (the emitting process), such as a runtime version or host id.
func (b *Builder) ResourceAttribute(key string, value registry.Value) *Builder {
	b.resourceAttributes = append(b.resourceAttributes, resourceAttributeKV(key, value))
	return b
}

// HTTPHeaders sets the HTTP headers applied, in order, to every export
// request.
func (b *Builder) HTTPHeaders(headers []Header) *Builder {
	b.headers = headers
	return b
}

// Logger overrides the side-channel logger used for export failures and
// diagnostics. Defaults to logging.Default().
func (b *Builder) Logger(l *logging.Logger) *Builder {
	b.logger = l
	return b
}

// HTTPClient overrides the client used to deliver export requests.
// Defaults to a plain *http.Client with no special configuration.
func (b *Builder) HTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// Exporter is the wired result of Build: a registry ready to receive spans
// from instrumented code, the lifecycle layer subscribed to it, and a
// Shutdown function that stops the background export worker.
type Exporter struct {
	Registry *registry.Registry
	Layer    *telemetry.Layer[*Visitor]

	queue *spanQueue
}

// Shutdown closes the span queue, causing the export worker to exit after
// its current tick. Any spans still buffered in the worker at that moment
// are discarded -- the system keeps no persisted state across shutdown.
func (e *Exporter) Shutdown() {
	e.queue.close()
}

// Build parses endpoint as an absolute URL, starts the export worker on
// its own goroutine, and returns an Exporter wired end-to-end: a fresh
// Registry, a Layer subscribed to it reporting through this OTLP adapter,
// and a handle to stop the worker. endpoint is the collector's base URL;
// the trace export URL is computed by resolving "/v1/traces" against it,
// which replaces any path the base URL carries.
func (b *Builder) Build(endpoint string) (*Exporter, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if !base.IsAbs() {
		return nil, &url.Error{Op: "parse", URL: endpoint, Err: errors.New("not an absolute URL")}
	}
	tracesURL, err := base.Parse("/v1/traces")
	if err != nil {
		return nil, err
	}

	attrs := make([]*commonpb.KeyValue, len(b.resourceAttributes))
	copy(attrs, b.resourceAttributes)
	if b.serviceName != "" {
		attrs = append(attrs, resourceAttributeKV("service.name", registry.Value{Kind: registry.KindString, Str: b.serviceName}))
	}

	queue := newSpanQueue()
	worker := &Worker{
		sendInterval: b.sendInterval,
		endpoint:     tracesURL,
		queue:        queue,
		resource:     &resourcepb.Resource{Attributes: attrs},
		headers:      b.headers,
		httpClient:   b.httpClient,
		logger:       b.logger,
		lastSend:     time.Now(),
	}
	go worker.Run()

	sink := newOtlp(queue, b.logger)
	reg := registry.New(nil)
	layer := telemetry.New[*Visitor](reg, b.serviceName, sink, func(id registry.ID) ids.SpanID {
		return ids.SpanID(id)
	})
	reg.SetSubscriber(layer)

	return &Exporter{Registry: reg, Layer: layer, queue: queue}, nil
}

func resourceAttributeKV(key string, value registry.Value) *commonpb.KeyValue {
	anyValue := &commonpb.AnyValue{}
	switch value.Kind {
	case registry.KindBool:
		anyValue.Value = &commonpb.AnyValue_BoolValue{BoolValue: value.Bool}
	case registry.KindI64:
		anyValue.Value = &commonpb.AnyValue_IntValue{IntValue: value.I64}
	case registry.KindF64:
		anyValue.Value = &commonpb.AnyValue_DoubleValue{DoubleValue: value.F64}
	default:
		anyValue.Value = &commonpb.AnyValue_StringValue{StringValue: value.Str}
	}
	return &commonpb.KeyValue{Key: key, Value: anyValue}
}
