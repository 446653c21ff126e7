package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CREPO_CONFIG_PATH: config file location (default: ~/.config/crepo.toml)
//   - CREPO_HOME: base directory for crepo data (default: ~/.local/share/crepo)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking CREPO_CONFIG_PATH env
// var first, then falling back to the default ~/.config/crepo.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CREPO_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "crepo.toml"), nil
}

// getBaseDir returns the base directory for crepo data, checking CREPO_HOME
// env var first, then falling back to the XDG default ~/.local/share/crepo.
func getBaseDir() (string, error) {
	if path := os.Getenv("CREPO_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "crepo"), nil
}
