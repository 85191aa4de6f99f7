package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds configuration for the solvetrack CLI
type LocalConfig struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	Client  ClientConfig  `yaml:"client"`
	Catalog CatalogConfig `yaml:"catalog"`
}

// DaemonConfig holds the address the CLI starts or reaches the daemon on
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
}

// ClientConfig identifies the user the CLI acts for
type ClientConfig struct {
	URL         string `yaml:"url,omitempty"`
	UserID      string `yaml:"user_id,omitempty"`
	RabbitMQURL string `yaml:"rabbitmq_url,omitempty"`
}

// CatalogConfig points at the problem catalog file
type CatalogConfig struct {
	Path string `yaml:"path,omitempty"`
}

// BaseURL returns the daemon URL, derived from bind and port unless set.
func (c *LocalConfig) BaseURL() string {
	if c.Client.URL != "" {
		return c.Client.URL
	}
	return fmt.Sprintf("http://%s:%d", c.Daemon.Bind, c.Daemon.Port)
}

// SolvetrackDir returns the path to ~/.solvetrack
func SolvetrackDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".solvetrack"), nil
}

// EnsureSolvetrackDir creates ~/.solvetrack and subdirectories if they don't exist
func EnsureSolvetrackDir() (string, error) {
	dir, err := SolvetrackDir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7432,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
	}
}

// LoadLocalConfig loads configuration from ~/.solvetrack/config.yaml and
// applies SOLVETRACK_URL and SOLVETRACK_USER overrides.
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := SolvetrackDir()
	if err != nil {
		return nil, err
	}

	cfg := DefaultLocalConfig()
	configPath := filepath.Join(dir, "config.yaml")

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.Client.URL = getEnv("SOLVETRACK_URL", cfg.Client.URL)
	cfg.Client.UserID = getEnv("SOLVETRACK_USER", cfg.Client.UserID)
	cfg.Client.RabbitMQURL = getEnv("RABBITMQ_URL", cfg.Client.RabbitMQURL)

	return cfg, nil
}

// SaveLocalConfig saves configuration to ~/.solvetrack/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureSolvetrackDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The file may carry broker credentials.
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
