package history

import (
	"os"
	"path/filepath"
	"strings"

	pathutils "github.com/temirov/execrun/internal/utils/path"
)

const (
	configurationEnabledKeyConstant = "enabled"
	configurationPathKeyConstant    = "path"
	configurationKeySeparator       = "."
	defaultDirectoryNameConstant    = ".execrun"
	defaultDatabaseFileConstant     = "history.db"
)

// Configuration controls whether runs are recorded and where.
type Configuration struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DefaultConfigurationValues exposes the history defaults keyed under prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	return map[string]any{
		prefix + configurationKeySeparator + configurationEnabledKeyConstant: false,
		prefix + configurationKeySeparator + configurationPathKeyConstant:    DefaultDatabasePath(),
	}
}

// DefaultDatabasePath returns ~/.execrun/history.db, or a relative path when the home directory is unknown.
func DefaultDatabasePath() string {
	homeDirectory, homeError := os.UserHomeDir()
	if homeError != nil || len(homeDirectory) == 0 {
		return filepath.Join(defaultDirectoryNameConstant, defaultDatabaseFileConstant)
	}
	return filepath.Join(homeDirectory, defaultDirectoryNameConstant, defaultDatabaseFileConstant)
}

// ResolvedPath expands a leading "~" and falls back to the default path.
func (configuration Configuration) ResolvedPath() string {
	trimmedPath := strings.TrimSpace(configuration.Path)
	if len(trimmedPath) == 0 {
		return DefaultDatabasePath()
	}
	return pathutils.ExpandHome(trimmedPath)
}
