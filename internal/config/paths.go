// Package config provides configuration management for the exposerver client.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// LogDirectory returns the directory the client writes its own log file to.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\exposerver\logs
//   - Unix: ~/.config/exposerver/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, ConfigDir, "logs")
		}
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "exposerver-logs")
	}
	return filepath.Join(configDir, ConfigDir, "logs")
}

// EnsureLogDirectory creates the log directory with owner-only permissions.
func EnsureLogDirectory() error {
	return os.MkdirAll(LogDirectory(), 0700)
}
