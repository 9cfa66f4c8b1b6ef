package config

import "skilldock/internal/archive"

const (
	SchemaVersion = 1
)

// Extraction limits default to the archive package's stock values so the
// config document and the extractor cannot drift apart.
const (
	DefaultMaxEntries    = archive.DefaultMaxEntries
	DefaultMaxNameLength = archive.DefaultMaxNameLength
	DefaultMaxEntryBytes = archive.DefaultMaxEntryBytes
	DefaultMaxTotalBytes = archive.DefaultMaxTotalBytes
)

// DefaultConfig returns a fully-populated v1 config document.
func DefaultConfig() Config {
	return Config{
		Version: SchemaVersion,
		Registry: RegistryConfig{
			BaseURL:    "https://clawhub.ai/",
			APIVersion: "v1",
			Timeout:    "30s",
		},
		Storage: StorageConfig{
			Root: DefaultInstallRoot(),
		},
		Security: SecurityConfig{
			MaxEntries:    DefaultMaxEntries,
			MaxNameLength: DefaultMaxNameLength,
			MaxEntryBytes: DefaultMaxEntryBytes,
			MaxTotalBytes: DefaultMaxTotalBytes,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
