package config

import (
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyShutdownTimeoutDefaults(cfg)
	applyControlPlaneDefaults(&cfg.ControlPlane)
	applyIPCDefaults(&cfg.IPC)
	applyBalanceDefaults(&cfg.Balance)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyControlPlaneDefaults sets control plane API server defaults.
// The API is always enabled (mandatory for managing quotas).
func applyControlPlaneDefaults(cfg *ControlPlaneConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
}

// applyIPCDefaults sets caller listener defaults.
func applyIPCDefaults(cfg *IPCConfig) {
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:7410"
	}
}

// applyBalanceDefaults sets balance store defaults.
func applyBalanceDefaults(cfg *BalanceConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}
	// Path has a default only for the badger backend
	if cfg.Type == "badger" && cfg.Path == "" {
		cfg.Path = filepath.Join(getConfigDir(), "balances")
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
