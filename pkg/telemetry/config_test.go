package telemetry

import (
	"strings"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
		{"metrics without address", func(c *Config) { c.Metrics.ListenAddress = "" }, true},
		{"metrics disabled without address", func(c *Config) { c.Metrics.Enabled = false; c.Metrics.ListenAddress = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Presets(t *testing.T) {
	if err := DevelopmentConfig().Validate(); err != nil {
		t.Errorf("Development config invalid: %v", err)
	}

	prod := ProductionConfig()
	if prod.Logging.Format != "json" || prod.Tracing.Exporter != "otlp" {
		t.Errorf("Unexpected production config: %+v", prod)
	}
	prod.Tracing.Endpoint = "collector:4317"
	if err := prod.Validate(); err != nil {
		t.Errorf("Production config with endpoint invalid: %v", err)
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("TDRE_LOG_LEVEL", "debug")
	t.Setenv("TDRE_LOG_FORMAT", "json")
	t.Setenv("TDRE_TRACE_EXPORTER", "stdout")
	t.Setenv("TDRE_METRICS_ADDR", "127.0.0.1:9191")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging overrides not applied: %+v", cfg.Logging)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("Tracing overrides not applied: %+v", cfg.Tracing)
	}
	if cfg.Metrics.ListenAddress != "127.0.0.1:9191" {
		t.Errorf("Metrics address not applied: %s", cfg.Metrics.ListenAddress)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Unset variable changed metrics path to %q", cfg.Metrics.Path)
	}
}

func TestConfig_ApplyEnvNothingSet(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv with no variables failed: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected defaults to be kept, got level %s", cfg.Logging.Level)
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceName = ""
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected an error")
	}
	for _, want := range []string{"service name is required", `invalid log level: "loud"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}
