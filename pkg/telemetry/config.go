package telemetry

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the telemetry setup of a tdre process: where logs go, whether
// resolutions and builds are traced, and where Prometheus scrapes metrics.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string // development, staging, production

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig

	// ResourceAttributes are attached to every exported span.
	ResourceAttributes map[string]string
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string // trace, debug, info, warn, error, fatal
	Format string // console or json
	Output string // stdout, stderr or a file path

	EnableCaller bool

	// Sampling keeps the first SamplingInitial entries of every second and
	// then every SamplingThereafter-th entry.
	EnableSampling     bool
	SamplingInitial    int
	SamplingThereafter int

	TimeFormat string // rfc3339, unix, unixms, unixmicro
}

// TracingConfig configures OpenTelemetry spans for resolutions and builds.
type TracingConfig struct {
	Enabled  bool
	Exporter string // otlp, stdout, none
	Endpoint string // OTLP gRPC collector, e.g. "localhost:4317"
	Headers  map[string]string
	Insecure bool

	SamplingRate       float64
	MaxExportBatchSize int
	ExportTimeout      time.Duration
}

// MetricsConfig configures the Prometheus collectors and their endpoint.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
	Path          string
	Namespace     string

	// DefaultHistogramBuckets are resolution latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

var (
	logLevels      = []string{"trace", "debug", "info", "warn", "error", "fatal"}
	logFormats     = []string{"console", "json"}
	traceExporters = []string{"otlp", "stdout", "none"}
)

// DefaultConfig logs to stderr at info, keeps tracing off and serves
// metrics on :9090.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "tdre",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stderr",
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:           "none",
			Headers:            map[string]string{},
			Insecure:           true,
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "tdre",
			// resolutions are in-memory; most finish well under a millisecond
			DefaultHistogramBuckets: []float64{
				0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1,
			},
		},
		ResourceAttributes: map[string]string{},
	}
}

// ProductionConfig logs sampled JSON and exports 10% of traces over OTLP.
// The collector endpoint must still be set.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// DevelopmentConfig logs everything at debug and prints every span.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

// EnvOverrides lists the environment variables that override a Config.
// Unset variables leave the corresponding setting untouched.
type EnvOverrides struct {
	Environment   string `env:"TDRE_ENV"`
	LogLevel      string `env:"TDRE_LOG_LEVEL"`
	LogFormat     string `env:"TDRE_LOG_FORMAT"`
	LogOutput     string `env:"TDRE_LOG_OUTPUT"`
	TraceExporter string `env:"TDRE_TRACE_EXPORTER"`
	TraceEndpoint string `env:"TDRE_TRACE_ENDPOINT"`
	MetricsAddr   string `env:"TDRE_METRICS_ADDR"`
	MetricsPath   string `env:"TDRE_METRICS_PATH"`
}

// ApplyEnv overrides c with any TDRE_* environment variables that are set.
// Setting TDRE_TRACE_EXPORTER to anything but "none" enables tracing.
func (c *Config) ApplyEnv() error {
	var env EnvOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode telemetry environment: %w", err)
	}

	for dst, v := range map[*string]string{
		&c.Environment:           env.Environment,
		&c.Logging.Level:         env.LogLevel,
		&c.Logging.Format:        env.LogFormat,
		&c.Logging.Output:        env.LogOutput,
		&c.Tracing.Endpoint:      env.TraceEndpoint,
		&c.Metrics.ListenAddress: env.MetricsAddr,
		&c.Metrics.Path:          env.MetricsPath,
	} {
		if v != "" {
			*dst = v
		}
	}

	if env.TraceExporter != "" {
		c.Tracing.Exporter = env.TraceExporter
		c.Tracing.Enabled = env.TraceExporter != "none"
	}
	return nil
}

// Validate reports every problem with c joined into one error.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.ServiceName != "", "service name is required")
	check(c.ServiceVersion != "", "service version is required")
	check(slices.Contains(logLevels, c.Logging.Level), "invalid log level: %q", c.Logging.Level)
	check(slices.Contains(logFormats, c.Logging.Format), "invalid log format: %q (must be console or json)", c.Logging.Format)

	if c.Tracing.Enabled {
		check(slices.Contains(traceExporters, c.Tracing.Exporter), "invalid trace exporter: %q", c.Tracing.Exporter)
		check(c.Tracing.Exporter != "otlp" || c.Tracing.Endpoint != "", "trace endpoint is required for the otlp exporter")
	}
	check(c.Tracing.SamplingRate >= 0 && c.Tracing.SamplingRate <= 1,
		"trace sampling rate must be between 0 and 1, got %g", c.Tracing.SamplingRate)

	check(!c.Metrics.Enabled || c.Metrics.ListenAddress != "", "metrics listen address is required when metrics are enabled")

	return errors.Join(errs...)
}
