// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/spanbridge/spanbridge/config"
	"github.com/spanbridge/spanbridge/ids"
	"github.com/spanbridge/spanbridge/otlp"
	"github.com/spanbridge/spanbridge/registry"
	"github.com/spanbridge/spanbridge/telemetry"
)

var (
	configPath   string
	endpoint     string
	serviceName  string
	childCount   int
	sendInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "spanbridge-demo",
	Short: "Emits a small nested trace through the OTLP export pipeline",
	Long: `spanbridge-demo wires an OTLP exporter against --endpoint, opens a root
span registered as the local root of a fresh distributed trace, then fans
out --children concurrent child spans -- each re-registering the parent's
current trace context as its own, the way a real caller would forward
context across a process boundary.

Defaults may also come from a YAML file (see --config); flags explicitly
set on the command line always take precedence over it.`,
	RunE: runDemo,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "optional YAML file of defaults (missing file is not an error)")
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "http://127.0.0.1:4318", "OTLP collector base URL")
	rootCmd.Flags().StringVar(&serviceName, "service-name", "spanbridge-demo", "value of the OTLP service.name resource attribute")
	rootCmd.Flags().IntVar(&childCount, "children", 5, "number of concurrent child spans to emit")
	rootCmd.Flags().DurationVar(&sendInterval, "send-interval", time.Second, "how often buffered spans are flushed to the collector")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("spanbridge-demo: %v", err)
	}
}

// applyConfigFile fills in any flag the caller didn't set explicitly from
// the parsed config file, leaving flags that were set on the command line
// untouched.
func applyConfigFile(cmd *cobra.Command, f config.File) {
	if f.Endpoint != "" && !cmd.Flags().Changed("endpoint") {
		endpoint = f.Endpoint
	}
	if f.ServiceName != "" && !cmd.Flags().Changed("service-name") {
		serviceName = f.ServiceName
	}
	if f.Children != 0 && !cmd.Flags().Changed("children") {
		childCount = f.Children
	}
	if f.SendInterval != 0 && !cmd.Flags().Changed("send-interval") {
		sendInterval = f.SendInterval
	}
}

func runDemo(cmd *cobra.Command, _ []string) error {
	file, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyConfigFile(cmd, file)

	builder := otlp.NewBuilder().
		ServiceName(serviceName).
		SendInterval(sendInterval)
	if len(file.Headers) > 0 {
		headers := make([]otlp.Header, len(file.Headers))
		for i, h := range file.Headers {
			headers[i] = otlp.Header{Key: h.Key, Value: h.Value}
		}
		builder = builder.HTTPHeaders(headers)
	}

	exporter, err := builder.Build(endpoint)
	if err != nil {
		return err
	}
	defer exporter.Shutdown()

	emitTrace(exporter.Registry)

	// Give the worker a chance to flush before the process exits.
	time.Sleep(sendInterval + 2*time.Second)
	return nil
}

func emitTrace(reg *registry.Registry) {
	ctx, root := reg.Start(context.Background(), registry.Metadata{Name: "main"})
	defer root.End()

	if err := telemetry.RegisterRoot(ctx, reg, ids.NewTraceID(), nil); err != nil {
		log.Fatalf("register root: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < childCount; i++ {
		traceID, parentID, err := telemetry.CurrentContext(ctx, reg)
		if err != nil {
			log.Fatalf("current context: %v", err)
		}

		wg.Add(1)
		go func(i int, traceID ids.TraceID, parentID ids.SpanID) {
			defer wg.Done()

			childCtx, child := reg.Start(context.Background(), registry.Metadata{Name: "child"})
			defer child.End()

			// Simulates a call forwarded to another process: the caller
			// hands us (traceID, parentID) out of band and we re-register
			// it as our own root, same as tracing-otlp's multi-process
			// example does across an actual process boundary.
			if err := telemetry.RegisterRoot(childCtx, reg, traceID, &parentID); err != nil {
				log.Fatalf("register root (child %d): %v", i, err)
			}

			reg.Event(childCtx, registry.Metadata{Name: "event"}, nil, false,
				registry.I64Field("i", int64(i)))

			time.Sleep(50 * time.Millisecond)
		}(i, traceID, parentID)
	}
	wg.Wait()
}
