package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_NormalizesLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "warn"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected normalized level 'WARN', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_BalancePath(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Balance.Type != "badger" {
		t.Errorf("Expected default balance type 'badger', got %q", cfg.Balance.Type)
	}
	if cfg.Balance.Path == "" {
		t.Error("Expected a default path for the badger backend")
	}
}

func TestApplyDefaults_MemoryStoreNeedsNoPath(t *testing.T) {
	cfg := &Config{Balance: BalanceConfig{Type: "memory"}}
	ApplyDefaults(cfg)

	if cfg.Balance.Path != "" {
		t.Errorf("Expected no path for memory backend, got %q", cfg.Balance.Path)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging:         LoggingConfig{Level: "ERROR", Format: "json", Output: "stderr"},
		ShutdownTimeout: 5 * time.Second,
		ControlPlane:    ControlPlaneConfig{Port: 9000},
		IPC:             IPCConfig{Network: "unix", Address: "/tmp/paylink.sock"},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "ERROR" || cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Logging defaults overwrote explicit values: %+v", cfg.Logging)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected explicit shutdown timeout to survive, got %v", cfg.ShutdownTimeout)
	}
	if cfg.ControlPlane.Port != 9000 {
		t.Errorf("Expected explicit port to survive, got %d", cfg.ControlPlane.Port)
	}
	if cfg.IPC.Network != "unix" {
		t.Errorf("Expected explicit ipc network to survive, got %q", cfg.IPC.Network)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected default config to be valid, got: %v", err)
	}
}
