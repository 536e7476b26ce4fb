// Package config loads, defaults, and validates the pool checker
// configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cboxdk/phpfpm-pool-check/internal/check"
	"github.com/cboxdk/phpfpm-pool-check/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Pool       PoolConfig       `yaml:"pool"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Server     ServerConfig     `yaml:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
}

// PoolConfig identifies the PHP-FPM pool to query
type PoolConfig struct {
	SocketPath string        `yaml:"socket_path"` // Unix socket path of the pool
	StatusPath string        `yaml:"status_path"` // pm.status_path of the pool
	Timeout    time.Duration `yaml:"timeout"`     // connect/read timeout
}

// ThresholdsConfig contains the warning/critical threshold pairs
type ThresholdsConfig struct {
	QueueWarning        int `yaml:"queue_warning"`
	QueueCritical       int `yaml:"queue_critical"`
	UtilizationWarning  int `yaml:"utilization_warning"`
	UtilizationCritical int `yaml:"utilization_critical"`
}

// Thresholds converts the configured values into the evaluator's form.
func (t ThresholdsConfig) Thresholds() check.Thresholds {
	return check.Thresholds{
		QueueWarning:        t.QueueWarning,
		QueueCritical:       t.QueueCritical,
		UtilizationWarning:  t.UtilizationWarning,
		UtilizationCritical: t.UtilizationCritical,
	}
}

// ServerConfig contains the serve-mode HTTP settings
type ServerConfig struct {
	BindAddress string  `yaml:"bind_address"`
	MetricsPath string  `yaml:"metrics_path"`
	HealthPath  string  `yaml:"health_path"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second per endpoint
	RateBurst   int     `yaml:"rate_burst"`
}

// MonitoringConfig contains serve-mode polling settings
type MonitoringConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// LoadDefault builds a configuration from defaults alone, for running
// without a config file.
func LoadDefault() (*Config, error) {
	var config Config

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid default configuration: %w", err)
	}

	return &config, nil
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Pool.SocketPath == "" {
		cfg.Pool.SocketPath = check.DefaultSocketPath
	}
	if cfg.Pool.StatusPath == "" {
		cfg.Pool.StatusPath = check.DefaultStatusPath
	}
	if cfg.Pool.Timeout == 0 {
		cfg.Pool.Timeout = check.DefaultTimeout
	}

	if cfg.Thresholds == (ThresholdsConfig{}) {
		defaults := check.DefaultThresholds()
		cfg.Thresholds = ThresholdsConfig{
			QueueWarning:        defaults.QueueWarning,
			QueueCritical:       defaults.QueueCritical,
			UtilizationWarning:  defaults.UtilizationWarning,
			UtilizationCritical: defaults.UtilizationCritical,
		}
	}

	if cfg.Server.BindAddress == "" {
		cfg.Server.BindAddress = "127.0.0.1:9253"
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Server.HealthPath == "" {
		cfg.Server.HealthPath = "/health"
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = DefaultRateLimit
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = DefaultRateBurst
	}

	if cfg.Monitoring.PollInterval == 0 {
		cfg.Monitoring.PollInterval = DefaultPollInterval
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = "dev"
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = EnvProduction
	}
	if cfg.Telemetry.Exporter.Type == "" {
		cfg.Telemetry.Exporter.Type = ExporterTypeStdout
	}
	if cfg.Telemetry.Sampling.Rate == 0 {
		cfg.Telemetry.Sampling.Rate = DefaultSamplingRate
	}
}

// ValidationError represents a single invalid configuration field
type ValidationError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %s (value %v): %s", e.Field, e.Value, e.Message)
}

// ValidationResult aggregates all validation findings for a config
type ValidationResult struct {
	Valid  bool
	Errors []*ValidationError
}

func (vr *ValidationResult) Error() string {
	if vr.Valid {
		return ""
	}
	msgs := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		msgs = append(msgs, e.Error())
	}
	return "configuration validation failed: " + strings.Join(msgs, "; ")
}

func (vr *ValidationResult) add(err *ValidationError) {
	if err != nil {
		vr.Valid = false
		vr.Errors = append(vr.Errors, err)
	}
}

// validate returns an error when the configuration cannot be used
func validate(cfg *Config) error {
	result := GetValidationResult(cfg)
	if !result.Valid {
		return result
	}
	return nil
}

// GetValidationResult runs every validation check and collects the
// findings instead of stopping at the first problem.
func GetValidationResult(cfg *Config) *ValidationResult {
	result := &ValidationResult{Valid: true}

	validatePoolConfig(&cfg.Pool, result)
	validateThresholdsConfig(&cfg.Thresholds, result)
	validateServerConfig(&cfg.Server, result)
	validateMonitoringConfig(&cfg.Monitoring, result)
	validateLoggingConfig(&cfg.Logging, result)
	validateTelemetryConfig(&cfg.Telemetry, result)

	return result
}

func validatePoolConfig(cfg *PoolConfig, result *ValidationResult) {
	if strings.TrimSpace(cfg.SocketPath) == "" {
		result.add(&ValidationError{
			Field:      "pool.socket_path",
			Value:      cfg.SocketPath,
			Message:    "socket path cannot be empty",
			Suggestion: "point it at the pool's listen socket, e.g. /run/php-fpm/www.sock",
		})
	}
	if !strings.HasPrefix(cfg.StatusPath, "/") {
		result.add(&ValidationError{
			Field:      "pool.status_path",
			Value:      cfg.StatusPath,
			Message:    "status path must be absolute",
			Suggestion: "use the pool's pm.status_path value, e.g. /status",
		})
	}
	if cfg.Timeout <= 0 {
		result.add(&ValidationError{
			Field:      "pool.timeout",
			Value:      cfg.Timeout.String(),
			Message:    "timeout must be positive",
			Suggestion: "use a bounded timeout such as 5s",
		})
	}
}

func validateThresholdsConfig(cfg *ThresholdsConfig, result *ValidationResult) {
	if err := cfg.Thresholds().Validate(); err != nil {
		result.add(&ValidationError{
			Field:      "thresholds",
			Value:      fmt.Sprintf("queue %d/%d, utilization %d/%d", cfg.QueueWarning, cfg.QueueCritical, cfg.UtilizationWarning, cfg.UtilizationCritical),
			Message:    err.Error(),
			Suggestion: "keep warning strictly below critical and utilization bounds within 0-100",
		})
	}
}

func validateServerConfig(cfg *ServerConfig, result *ValidationResult) {
	if _, _, err := net.SplitHostPort(cfg.BindAddress); err != nil {
		result.add(&ValidationError{
			Field:      "server.bind_address",
			Value:      cfg.BindAddress,
			Message:    fmt.Sprintf("invalid listen address: %v", err),
			Suggestion: "use host:port, e.g. 127.0.0.1:9253",
		})
	}
	if !strings.HasPrefix(cfg.MetricsPath, "/") {
		result.add(&ValidationError{
			Field:      "server.metrics_path",
			Value:      cfg.MetricsPath,
			Message:    "metrics path must start with /",
			Suggestion: "use an absolute path such as /metrics",
		})
	}
	if !strings.HasPrefix(cfg.HealthPath, "/") {
		result.add(&ValidationError{
			Field:      "server.health_path",
			Value:      cfg.HealthPath,
			Message:    "health path must start with /",
			Suggestion: "use an absolute path such as /health",
		})
	}
	if cfg.RateLimit <= 0 {
		result.add(&ValidationError{
			Field:      "server.rate_limit",
			Value:      cfg.RateLimit,
			Message:    "rate limit must be positive",
			Suggestion: "use the default of 10 requests per second",
		})
	}
	if cfg.RateBurst <= 0 {
		result.add(&ValidationError{
			Field:      "server.rate_burst",
			Value:      cfg.RateBurst,
			Message:    "rate burst must be positive",
			Suggestion: "use the default burst of 20",
		})
	}
}

func validateMonitoringConfig(cfg *MonitoringConfig, result *ValidationResult) {
	if cfg.PollInterval < MinPollInterval {
		result.add(&ValidationError{
			Field:      "monitoring.poll_interval",
			Value:      cfg.PollInterval.String(),
			Message:    fmt.Sprintf("poll interval below minimum %s", MinPollInterval),
			Suggestion: "poll at most once per second",
		})
	}
}

func validateLoggingConfig(cfg *LoggingConfig, result *ValidationResult) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		result.add(&ValidationError{
			Field:      "logging.level",
			Value:      cfg.Level,
			Message:    "unknown log level",
			Suggestion: "use one of: debug, info, warn, error",
		})
	}
	switch cfg.Format {
	case "json", "console":
	default:
		result.add(&ValidationError{
			Field:      "logging.format",
			Value:      cfg.Format,
			Message:    "unknown log format",
			Suggestion: "use json or console",
		})
	}
}

func validateTelemetryConfig(cfg *telemetry.Config, result *ValidationResult) {
	if !cfg.Enabled {
		return
	}
	switch cfg.Exporter.Type {
	case ExporterTypeStdout:
	case ExporterTypeOTLP:
		if cfg.Exporter.Endpoint == "" {
			result.add(&ValidationError{
				Field:      "telemetry.exporter.endpoint",
				Value:      cfg.Exporter.Endpoint,
				Message:    "otlp exporter requires an endpoint",
				Suggestion: "set the collector endpoint, e.g. localhost:4318",
			})
		}
	default:
		result.add(&ValidationError{
			Field:      "telemetry.exporter.type",
			Value:      cfg.Exporter.Type,
			Message:    "unsupported exporter type",
			Suggestion: "use stdout or otlp",
		})
	}
	if cfg.Sampling.Rate < 0 || cfg.Sampling.Rate > 1 {
		result.add(&ValidationError{
			Field:      "telemetry.sampling.rate",
			Value:      cfg.Sampling.Rate,
			Message:    "sampling rate must be between 0.0 and 1.0",
			Suggestion: "use a fraction such as 0.1",
		})
	}
}
