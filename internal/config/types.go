package config

// Config is the frozen v1 schema for config.toml.
type Config struct {
	Version  int            `toml:"version"`
	Registry RegistryConfig `toml:"registry"`
	Storage  StorageConfig  `toml:"storage"`
	Security SecurityConfig `toml:"security"`
	Logging  LoggingConfig  `toml:"logging"`
}

type RegistryConfig struct {
	BaseURL    string `toml:"base_url"`
	APIVersion string `toml:"api_version"`
	Timeout    string `toml:"timeout"`
}

type StorageConfig struct {
	// Root is the install root; every installed skill lives at <root>/<slug>/
	// and the lockfile at <root>/.lock/lock.json.
	Root string `toml:"root"`
}

// SecurityConfig bounds archive extraction and tunes the threat analyzer.
type SecurityConfig struct {
	MaxEntries         int      `toml:"max_entries"`
	MaxNameLength      int      `toml:"max_name_length"`
	MaxEntryBytes      int64    `toml:"max_entry_bytes"`
	MaxTotalBytes      int64    `toml:"max_total_bytes"`
	DisabledCategories []string `toml:"disabled_categories,omitempty"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}
