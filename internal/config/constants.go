package config

import "time"

// Application constants for configuration defaults and bounds
const (
	// Serve-mode polling
	DefaultPollInterval = 15 * time.Second // How often serve mode re-checks the pool
	MinPollInterval     = time.Second      // Polling faster than this hammers the pool

	// Metrics endpoint rate limiting
	DefaultRateLimit = 10.0 // Requests per second per endpoint
	DefaultRateBurst = 20   // Burst requests allowed

	// Telemetry defaults
	DefaultServiceName  = "phpfpm-pool-check" // Default telemetry service name
	DefaultSamplingRate = 0.1                 // Default telemetry sampling rate (10%)
)

// Environment-specific constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Telemetry exporter types
const (
	ExporterTypeStdout = "stdout"
	ExporterTypeOTLP   = "otlp"
)
