package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file from the working directory, if present.
// Variables already set in the environment take precedence.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - LAPSE_CONFIG_PATH: config file location (default: ~/.config/lapse.toml)
//   - LAPSE_HOME: base directory for lapse data (default: ~/.local/share/lapse)
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
		"spool_dir":   filepath.Join(baseDir, "spool"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv("LAPSE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "lapse.toml"), nil
}

// getBaseDir returns the base directory for recordings, the database and logs.
// LAPSE_HOME wins over the XDG default ~/.local/share/lapse.
func getBaseDir() (string, error) {
	if path := os.Getenv("LAPSE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "lapse"), nil
}
