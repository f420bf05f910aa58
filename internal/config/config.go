package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Scan     ScanConfig     `yaml:"scan"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ScanConfig holds scan pipeline settings.
type ScanConfig struct {
	// InputFile is the newline-delimited host list.
	InputFile string `yaml:"input_file"`
	// Workers is the number of host partitions scanned in parallel.
	Workers int `yaml:"workers"`
	// SessionsPerWorker bounds concurrent FTP sessions within one worker.
	// It is the only backpressure control on open sockets.
	SessionsPerWorker int `yaml:"sessions_per_worker"`
	// ConnectTimeoutSeconds bounds the connect and every control read/write.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
	// MaxDepth bounds recursive traversal of a remote directory tree.
	MaxDepth int `yaml:"max_depth"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return &Config{
		Scan: ScanConfig{
			Workers:               workers,
			SessionsPerWorker:     100,
			ConnectTimeoutSeconds: 10,
			MaxDepth:              16,
		},
		Database: DatabaseConfig{
			Path: "ftpsmasher.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("FTPSMASHER_INPUT_FILE"); v != "" {
		c.Scan.InputFile = v
	}
	if v := os.Getenv("FTPSMASHER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.Workers = n
		}
	}
	if v := os.Getenv("FTPSMASHER_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.SessionsPerWorker = n
		}
	}
	if v := os.Getenv("FTPSMASHER_CONNECT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.ConnectTimeoutSeconds = n
		}
	}
	if v := os.Getenv("FTPSMASHER_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.MaxDepth = n
		}
	}
	if v := os.Getenv("FTPSMASHER_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("FTPSMASHER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FTPSMASHER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("FTPSMASHER_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
}

func (c *Config) validate() error {
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers)
	}
	if c.Scan.SessionsPerWorker < 1 {
		return fmt.Errorf("scan.sessions_per_worker must be positive, got %d", c.Scan.SessionsPerWorker)
	}
	if c.Scan.ConnectTimeoutSeconds < 1 {
		return fmt.Errorf("scan.connect_timeout_seconds must be positive, got %d", c.Scan.ConnectTimeoutSeconds)
	}
	if c.Scan.MaxDepth < 1 {
		return fmt.Errorf("scan.max_depth must be positive, got %d", c.Scan.MaxDepth)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be %q or %q, got %q", "text", "json", c.Logging.Format)
	}
	return nil
}
