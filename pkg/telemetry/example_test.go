package telemetry_test

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"

	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/telemetry"
	"github.com/openfroyo/tdre/pkg/typekey"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	if err := cfg.ApplyEnv(); err != nil {
		panic(err)
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	if srv := tel.Metrics.NewServer(); srv != nil {
		go srv.ListenAndServe()
		defer srv.Close()
	}

	tel.Logger.Info("Telemetry initialized")
}

// Example_structuredLogging demonstrates structured logging with type keys.
func Example_structuredLogging() {
	logger := telemetry.NewWriterLogger(os.Stderr, telemetry.LoggingConfig{
		Level:  "debug",
		Format: "json",
	})

	logger.WithManifest("billing", "1.2.0").
		WithTypeKey(typekey.MustParse("Map<String, Int>")).
		WithField("scope", "global").
		Info("Binding registered")

	logger.WithError(engine.ErrNotFound).Warn("Resolution failed")
}

// Example_instrumentedOperation demonstrates a traced operation.
func Example_instrumentedOperation() {
	tel, err := telemetry.NewTelemetry(telemetry.DevelopmentConfig())
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	op := telemetry.StartOperation(ctx, "registry.build",
		attribute.String("manifest", "billing"),
	)

	op.Logger.Info("Building registry")
	op.End(nil)
}

// Example_observedResolver demonstrates wiring telemetry into a resolver.
func Example_observedResolver() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	reg := engine.NewRegistry()
	_ = reg.DeclareScope(engine.Scope{ID: "global", Kind: engine.ScopeGlobal})
	_ = reg.Register("global", engine.Value(typekey.Con("Rate"), "default-rate", 100))
	reg.Freeze()

	tel.PublishRegistry(reg)
	r := engine.NewResolver(reg, tel.ResolverOptions(reg)...)

	w, err := r.Resolve(context.Background(), engine.Request{
		Target: typekey.Con("Rate"),
		Chain:  []engine.ScopeID{"global"},
	})
	if err != nil {
		panic(err)
	}

	fmt.Println(w.Value)
	fmt.Println(w.Provenance)
	// Output:
	// 100
	// binding "default-rate" in scope global (global)
}
