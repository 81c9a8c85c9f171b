// Package config provides configuration loading and validation for the
// dqsnd service — the surrounding process that wraps the deterministic
// Shield Contract v3 core (internal/dqsn) with transport, audit, and
// metrics. The core itself takes no configuration (spec §6): everything
// here governs the service around it.
//
// Configuration file: /etc/dqsnd/config.yaml (default)
// Schema version: 1
//
// Validation:
//   - Required addresses, paths and names must be non-empty.
//   - Numeric ranges enforced (retention days, shutdown timeout).
//   - Invalid config on startup: the service refuses to start (fatal error).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for dqsnd.
type Config struct {
	// SchemaVersion must be "1".
	SchemaVersion string `yaml:"schema_version"`

	// Transport configures the HTTP evaluate endpoint and the gRPC health
	// surface.
	Transport TransportConfig `yaml:"transport"`

	// Audit configures the BoltDB-backed replay ledger.
	Audit AuditConfig `yaml:"audit"`

	// Observability configures metrics and logging.
	Observability ObservabilityConfig `yaml:"observability"`

	// AdaptiveBridge holds the settings of the out-of-scope adaptive-event
	// emission collaborator (internal/adaptivebridge). They are validated
	// but not read by cmd/dqsnd, which does not emit adaptive events.
	AdaptiveBridge AdaptiveBridgeConfig `yaml:"adaptive_bridge"`
}

// TransportConfig holds the service's external surfaces.
type TransportConfig struct {
	// HTTPAddr is the HTTP listen address for POST /dqsnet/v3/evaluate.
	// Default: 127.0.0.1:8080.
	HTTPAddr string `yaml:"http_addr"`

	// GRPCHealthAddr is the gRPC listen address serving grpc_health_v1.
	// Default: 127.0.0.1:8443.
	GRPCHealthAddr string `yaml:"grpc_health_addr"`

	// ShutdownTimeout bounds graceful drain on SIGTERM/SIGINT.
	// Default: 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuditConfig holds BoltDB ledger parameters.
type AuditConfig struct {
	// DBPath is the absolute path to the BoltDB audit ledger file.
	// Default: /var/lib/dqsnd/audit.db.
	DBPath string `yaml:"db_path"`

	// RetentionDays is the ledger retention period. Default: 30.
	RetentionDays int `yaml:"retention_days"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`

	// AdvisoryScorer selects the registered contrib.ScoreProvider used to
	// re-derive an advisory score for operator dashboards. Never affects
	// the contract decision. Default: zscore.
	AdvisoryScorer string `yaml:"advisory_scorer"`
}

// AdaptiveBridgeConfig controls the non-deterministic downstream event
// re-shaping collaborator. It is explicitly outside the deterministic core
// (spec §1) and never affects Evaluate's result.
type AdaptiveBridgeConfig struct {
	// Enabled marks the bridge as enabled; when true, Validate requires
	// EmitAddr. dqsnd itself does not act on it. Default: false.
	Enabled bool `yaml:"enabled"`

	// EmitAddr is the downstream HTTP sink that receives AdaptiveEvents.
	EmitAddr string `yaml:"emit_addr"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	return Config{
		SchemaVersion: "1",
		Transport: TransportConfig{
			HTTPAddr:        "127.0.0.1:8080",
			GRPCHealthAddr:  "127.0.0.1:8443",
			ShutdownTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			DBPath:        DefaultDBPath,
			RetentionDays: 30,
		},
		Observability: ObservabilityConfig{
			MetricsAddr:    "127.0.0.1:9091",
			LogLevel:       "info",
			LogFormat:      "json",
			AdvisoryScorer: "zscore",
		},
		AdaptiveBridge: AdaptiveBridgeConfig{
			Enabled: false,
		},
	}
}

// DefaultDBPath mirrors the audit package's default ledger location.
const DefaultDBPath = "/var/lib/dqsnd/audit.db"

// Load reads and validates a config file from the given path. Returns the
// merged config (defaults overridden by file values). Returns an error if
// the file cannot be read, parsed, or validated — the caller (cmd/dqsnd)
// treats this as fatal at startup.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness. Returns a descriptive
// error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.Transport.HTTPAddr == "" {
		errs = append(errs, "transport.http_addr must not be empty")
	}
	if cfg.Transport.GRPCHealthAddr == "" {
		errs = append(errs, "transport.grpc_health_addr must not be empty")
	}
	if cfg.Transport.HTTPAddr == cfg.Transport.GRPCHealthAddr {
		errs = append(errs, "transport.http_addr and transport.grpc_health_addr must differ")
	}
	if cfg.Transport.ShutdownTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("transport.shutdown_timeout must be >= 1s, got %s", cfg.Transport.ShutdownTimeout))
	}
	if cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.db_path must not be empty")
	}
	if cfg.Audit.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("audit.retention_days must be >= 1, got %d", cfg.Audit.RetentionDays))
	}
	switch cfg.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_level must be one of debug|info|warn|error, got %q", cfg.Observability.LogLevel))
	}
	switch cfg.Observability.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_format must be one of json|console, got %q", cfg.Observability.LogFormat))
	}
	if cfg.AdaptiveBridge.Enabled && cfg.AdaptiveBridge.EmitAddr == "" {
		errs = append(errs, "adaptive_bridge.emit_addr is required when adaptive_bridge.enabled=true")
	}
	if cfg.Observability.AdvisoryScorer == "" {
		errs = append(errs, "observability.advisory_scorer must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s",
			joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
