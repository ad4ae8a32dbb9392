// Package telemetry provides observability for the resolution engine and its
// tooling.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus). The engine itself performs no
// I/O; it reports through engine.Observer, which ResolutionObserver
// implements on top of this package.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	if err := cfg.ApplyEnv(); err != nil {
//	    log.Fatal(err)
//	}
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Wire a frozen registry into a resolver:
//
//	tel.PublishRegistry(reg)
//	r := engine.NewResolver(reg, tel.ResolverOptions(reg)...)
//
// # Environment
//
// ApplyEnv reads TDRE_ENV, TDRE_LOG_LEVEL, TDRE_LOG_FORMAT, TDRE_LOG_OUTPUT,
// TDRE_TRACE_EXPORTER, TDRE_TRACE_ENDPOINT, TDRE_METRICS_ADDR and
// TDRE_METRICS_PATH. Unset variables keep the configured value.
//
// # Metrics
//
//   - tdre_resolutions_total{outcome,source}
//   - tdre_resolution_duration_seconds{outcome}
//   - tdre_conversions_applied_total{conversion}
//   - tdre_errors_by_kind_total{kind}
//   - tdre_registry_bindings{scope_kind}
//   - tdre_registry_conversions, tdre_registry_subtypes
//   - tdre_registry_reloads_total{status}
//   - tdre_registry_build_duration_seconds
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics) by the
// server returned from Metrics.NewServer.
//
// # Tracing
//
// Each top-level resolution produces one "tdre.resolve" span carrying the
// target key, outcome and witness source. Nested resolutions made by
// binding factories are part of that span. Supported exporters: OTLP
// (production), stdout (development), none.
package telemetry
