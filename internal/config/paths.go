package config

import (
	"os"
	"path/filepath"
)

// Dir returns the configuration directory path (~/.config/clawbridge).
// It can be overridden with the CLAWBRIDGE_CONFIG_DIR environment variable.
func Dir() string {
	if d := os.Getenv("CLAWBRIDGE_CONFIG_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "clawbridge")
	}
	return filepath.Join(home, ".config", "clawbridge")
}

// LogDir returns the path to the log files directory.
func LogDir() string {
	return filepath.Join(Dir(), "logs")
}

// FetchOutputDir returns the path to the fetch audit records directory.
func FetchOutputDir() string {
	return filepath.Join(Dir(), "fetch_outputs")
}

// HistoryFile returns the path to the persisted conversation history.
func HistoryFile() string {
	return filepath.Join(Dir(), "conversation_history.json")
}

// ConfigFile returns the path to the config.yaml file.
func ConfigFile() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultWorkingDir returns the assistant working directory used when none is
// configured (~/claude-workspace).
func DefaultWorkingDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "claude-workspace")
	}
	return filepath.Join(home, "claude-workspace")
}
