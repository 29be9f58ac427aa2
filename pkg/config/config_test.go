package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Minimal config: everything else should come from defaults
	configContent := `
logging:
  level: "INFO"

balance:
  type: memory
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.ControlPlane.Port != 8080 {
		t.Errorf("Expected control plane port 8080, got %d", cfg.ControlPlane.Port)
	}
	if cfg.IPC.Network != "tcp" {
		t.Errorf("Expected default ipc network 'tcp', got %q", cfg.IPC.Network)
	}
	if cfg.Balance.Type != "memory" {
		t.Errorf("Expected explicit balance type 'memory' to survive, got %q", cfg.Balance.Type)
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"
  format: "json"

shutdown_timeout: "5s"

controlplane:
  host: "0.0.0.0"
  port: 9000

ipc:
  network: unix
  address: /tmp/paylink.sock

balance:
  type: badger
  path: /tmp/paylink-balances
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Level is normalized to uppercase
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown_timeout 5s, got %v", cfg.ShutdownTimeout)
	}
	if got := cfg.ControlPlane.Addr(); got != "0.0.0.0:9000" {
		t.Errorf("Expected control plane addr '0.0.0.0:9000', got %q", got)
	}
	if cfg.IPC.Network != "unix" || cfg.IPC.Address != "/tmp/paylink.sock" {
		t.Errorf("Unexpected ipc config: %+v", cfg.IPC)
	}
	if cfg.Balance.Path != "/tmp/paylink-balances" {
		t.Errorf("Expected balance path '/tmp/paylink-balances', got %q", cfg.Balance.Path)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults when config file is missing, got error: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("logging: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

balance:
  type: memory
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("PAYLINK_LOGGING_LEVEL", "ERROR")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected env override level 'ERROR', got %q", cfg.Logging.Level)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "DEBUG"
	cfg.ControlPlane.Port = 9999

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Saved config not found: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected config file mode 0600, got %v", perm)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Logging.Level != "DEBUG" {
		t.Errorf("Expected level 'DEBUG' after round trip, got %q", loaded.Logging.Level)
	}
	if loaded.ControlPlane.Port != 9999 {
		t.Errorf("Expected port 9999 after round trip, got %d", loaded.ControlPlane.Port)
	}
}

func TestMustLoad_MissingExplicitFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
	if !strings.Contains(err.Error(), "paylink init") {
		t.Errorf("Expected init instructions in error, got: %v", err)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	want := filepath.Join("/custom/config", "paylink", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
