package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/openfroyo/tdre/pkg/config"
	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/telemetry"
)

// newTelemetry builds the telemetry stack for a command. Metrics are only
// served by long-running commands, so they start disabled.
func newTelemetry(withMetrics bool) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	cfg.Metrics.Enabled = withMetrics
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return telemetry.NewTelemetry(cfg)
}

// loadSnapshot loads and builds the manifest at path into a frozen registry
// with a resolver instrumented by tel.
func loadSnapshot(ctx context.Context, tel *telemetry.Telemetry, path string) (*config.Snapshot, error) {
	loaded, err := config.NewLoader().Load(ctx, path)
	if err != nil {
		return nil, err
	}

	reg, err := config.Build(ctx, loaded.Manifest,
		config.WithEngineOptions(engine.WithLogger(tel.Logger.Zerolog())))
	if err != nil {
		return nil, err
	}
	tel.PublishRegistry(reg)

	return &config.Snapshot{
		Manifest: loaded,
		Registry: reg,
		Resolver: engine.NewResolver(reg, tel.ResolverOptions(reg)...),
	}, nil
}

// parseChain splits a comma-separated scope chain, innermost first.
func parseChain(s string) []engine.ScopeID {
	var chain []engine.ScopeID
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			chain = append(chain, engine.ScopeID(part))
		}
	}
	return chain
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
