package config

import (
	"path/filepath"
	"testing"
)

func TestInitConfigToPath_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	written, err := InitConfigToPath(path, false)
	if err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}
	if written != path {
		t.Errorf("Expected written path %q, got %q", path, written)
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	if _, err := InitConfigToPath(path, false); err == nil {
		t.Fatal("Expected error when config already exists")
	}
}

func TestInitConfigToPath_Force(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	if _, err := InitConfigToPath(path, true); err != nil {
		t.Errorf("Expected force overwrite to succeed, got: %v", err)
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Generated config failed to load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Generated config failed validation: %v", err)
	}
}
