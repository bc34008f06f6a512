// Package observability provides comprehensive monitoring and debugging
// capabilities for the fleetsub transcript server through metrics,
// structured logging, and distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: Minimal performance impact on high-throughput tailing
//   - Type-safe: Strongly-typed APIs reduce configuration errors
//   - Production-ready: Built-in security (redaction) and reliability features
//   - Standards-based: Uses Prometheus, OpenTelemetry, and slog
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Bytes and lines tailed from transcript files
//   - Parse outcomes, including the malformed-line rate
//   - Debounced batches flushed, and what triggered the flush
//   - Active watchers and WebSocket clients/subscriptions
//   - WebSocket frames sent and received
//   - Session enrichment duration and estimated LLM cost
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	// Track a parsed line
//	metrics.LineParsed("assistant-block")
//
//	// Track a flushed batch
//	metrics.BatchFlushed("trailing", len(batch.Messages))
//
//	// Track watcher lifecycle
//	metrics.WatcherStarted()
//	defer metrics.WatcherStopped()
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	// Add context IDs for correlation
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//
//	// Structured logging with automatic context correlation
//	logger.Info(ctx, "flushed batch",
//	    "session_id", sessionID,
//	    "message_count", len(batch.Messages),
//	)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "watcher failed",
//	    "error", err,
//	    "file_path", path,
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track requests across
// components:
//   - End-to-end visualization from file write to WebSocket delivery
//   - Performance bottleneck identification in enrichment
//   - Error correlation across the watcher and transport layers
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "fleetsub",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4318", // OTLP/HTTP collector
//	    SamplingRate:   0.1,              // Sample 10% of traces
//	})
//	defer shutdown(context.Background())
//
//	// Trace a debounced flush
//	ctx, span := tracer.TraceWatcherFlush(ctx, sessionID, len(batch.Messages))
//	defer span.End()
//
//	// Trace session enrichment
//	ctx, enrichSpan := tracer.TraceEnrich(ctx, sessionID, len(messages))
//	defer enrichSpan.End()
//
//	// Trace a subscribe request
//	ctx, subSpan := tracer.TraceSubscribe(ctx, clientID, sessionID)
//	defer subSpan.End()
//	if err != nil {
//	    tracer.RecordError(subSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic correlation:
//
//	// Add IDs to context
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//
//	// IDs automatically appear in logs
//	logger.Info(ctx, "subscribed") // Includes request_id, session_id, etc.
//
//	// Spans inherit context
//	ctx, span := tracer.Start(ctx, "operation")
//	// Trace context propagates to child spans
//
// # Integration Example
//
// Complete example integrating all three components around one
// debounced flush:
//
//	func HandleBatch(ctx context.Context, sessionID string, batch watcher.Batch) {
//	    ctx = observability.AddSessionID(ctx, sessionID)
//
//	    ctx, span := tracer.TraceWatcherFlush(ctx, sessionID, len(batch.Messages))
//	    defer span.End()
//
//	    metrics.BatchFlushed("trailing", len(batch.Messages))
//
//	    logger.Info(ctx, "flushed batch",
//	        "byte_range_start", batch.ByteRangeStart,
//	        "byte_range_end", batch.ByteRangeEnd,
//	    )
//
//	    enrichStart := time.Now()
//	    ctx, enrichSpan := tracer.TraceEnrich(ctx, sessionID, len(batch.Messages))
//	    defer enrichSpan.End()
//
//	    session := enrich.Enrich(batch.Messages)
//	    metrics.RecordEnrichDuration(time.Since(enrichStart).Seconds())
//	    metrics.RecordEstimatedCost(session.Responses[len(session.Responses)-1].Model, session.Totals.EstimatedCostUsd)
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Performance
//
// The observability system is designed for minimal overhead:
//   - Metrics use lock-free counters where possible
//   - Logging with slog is highly efficient
//   - Tracing supports sampling to reduce overhead
//   - Context propagation is zero-allocation in most cases
//
// # Configuration
//
// All components support configuration via structs:
//
//	// Metrics - no configuration needed, auto-registered
//	metrics := observability.NewMetrics()
//
//	// Logging - configurable output, level, format
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:          os.Getenv("LOG_LEVEL"),
//	    Format:         "json",
//	    AddSource:      true,
//	    RedactPatterns: []string{`custom-secret-\d+`},
//	})
//
//	// Tracing - configurable sampling, endpoint, attributes
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "fleetsub",
//	    ServiceVersion: version,
//	    Environment:    env,
//	    Endpoint:       os.Getenv("OTEL_ENDPOINT"),
//	    SamplingRate:   0.1,
//	})
//	defer shutdown(context.Background())
//
// # Testing
//
// All components provide testable interfaces:
//   - Metrics can be verified using prometheus/testutil
//   - Logging can write to bytes.Buffer for assertions
//   - Tracing works with no-op exporters in tests
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# Batch throughput
//	rate(fleetsub_batches_flushed_total[5m])
//
//	# Malformed-line rate
//	rate(fleetsub_lines_parsed_total{kind="malformed"}[5m])
//
//	# Active watchers
//	fleetsub_active_watchers
//
//	# WebSocket fan-out
//	rate(fleetsub_ws_frames_sent_total[5m])
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
