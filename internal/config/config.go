package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"skilldock/internal/fsutil"
)

// Ensure loads the config at path, writing the defaults first if no file
// exists yet.
func Ensure(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	cfg = DefaultConfig()
	if err := Save(path, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("DOC_CONFIG_PARSE: %w", err)
	}
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	blob, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("DOC_CONFIG_ENCODE: %w", err)
	}
	return fsutil.AtomicWrite(path, blob, 0o644)
}

// Normalize fills zero values with defaults so a sparse config file works.
func Normalize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Version == 0 {
		cfg.Version = SchemaVersion
	}
	if cfg.Registry.BaseURL == "" {
		cfg.Registry.BaseURL = def.Registry.BaseURL
	}
	if cfg.Registry.APIVersion == "" {
		cfg.Registry.APIVersion = def.Registry.APIVersion
	}
	if cfg.Registry.Timeout == "" {
		cfg.Registry.Timeout = def.Registry.Timeout
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = def.Storage.Root
	}
	if cfg.Security.MaxEntries == 0 {
		cfg.Security.MaxEntries = def.Security.MaxEntries
	}
	if cfg.Security.MaxNameLength == 0 {
		cfg.Security.MaxNameLength = def.Security.MaxNameLength
	}
	if cfg.Security.MaxEntryBytes == 0 {
		cfg.Security.MaxEntryBytes = def.Security.MaxEntryBytes
	}
	if cfg.Security.MaxTotalBytes == 0 {
		cfg.Security.MaxTotalBytes = def.Security.MaxTotalBytes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	return cfg
}

func Validate(cfg Config) error {
	if cfg.Version != SchemaVersion {
		return fmt.Errorf("DOC_CONFIG_VERSION: unsupported config version %d", cfg.Version)
	}
	if cfg.Registry.BaseURL == "" {
		return fmt.Errorf("DOC_CONFIG_SCHEMA: registry base_url is required")
	}
	if _, err := time.ParseDuration(cfg.Registry.Timeout); err != nil {
		return fmt.Errorf("DOC_CONFIG_SCHEMA: invalid registry timeout %q", cfg.Registry.Timeout)
	}
	if cfg.Security.MaxEntries < 1 || cfg.Security.MaxNameLength < 1 ||
		cfg.Security.MaxEntryBytes < 1 || cfg.Security.MaxTotalBytes < 1 {
		return fmt.Errorf("DOC_CONFIG_SCHEMA: extraction limits must be positive")
	}
	return nil
}

// RegistryTimeout returns the parsed registry timeout. Validate guarantees
// the duration parses, so a zero return only happens for an unvalidated
// Config value.
func (c Config) RegistryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Registry.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
