package config

import (
	"os"
	"path/filepath"
)

// DataPath returns the root directory for runner data.
// It uses $AGENTFORGE_PATH if set, otherwise defaults to ~/.agentforge.
func DataPath() string {
	if v := os.Getenv("AGENTFORGE_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".agentforge")
	}
	return filepath.Join(home, ".agentforge")
}

// ConfigPath returns the path to the runner config file.
func ConfigPath() string {
	return filepath.Join(DataPath(), "config.jsonc")
}

// DotenvPath returns the path to the runner .env file.
func DotenvPath() string {
	return filepath.Join(DataPath(), ".env")
}
