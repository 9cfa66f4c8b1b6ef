package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEnsureWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Ensure(path)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if cfg.Version != SchemaVersion {
		t.Fatalf("expected version %d, got %d", SchemaVersion, cfg.Version)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Registry.BaseURL != cfg.Registry.BaseURL {
		t.Fatalf("round trip mismatch: %q vs %q", reloaded.Registry.BaseURL, cfg.Registry.BaseURL)
	}
}

func TestLoadSparseFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	blob := "version = 1\n\n[registry]\nbase_url = \"https://registry.example/\"\n"
	if err := os.WriteFile(path, []byte(blob), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Registry.BaseURL != "https://registry.example/" {
		t.Fatalf("base_url = %q", cfg.Registry.BaseURL)
	}
	if cfg.Security.MaxEntries != DefaultMaxEntries {
		t.Fatalf("expected default max_entries, got %d", cfg.Security.MaxEntries)
	}
	if cfg.RegistryTimeout() != 30*time.Second {
		t.Fatalf("expected default timeout, got %v", cfg.RegistryTimeout())
	}
}

func TestLoadInvalidTOMLReturnsParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("version = ["), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "DOC_CONFIG_PARSE") {
		t.Fatalf("expected DOC_CONFIG_PARSE error, got %v", err)
	}
}

func TestValidateRejectsBadTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Registry.Timeout = "soon"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for bad timeout")
	}
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.MaxTotalBytes = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for negative limit")
	}
}
