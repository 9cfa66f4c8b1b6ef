package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// DefaultConfigPath is where config.toml lives unless overridden.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "skilldock", "config.toml")
}

// DefaultInstallRoot is the default skill install root.
func DefaultInstallRoot() string {
	return filepath.Join(xdg.DataHome, "skilldock", "skills")
}
