package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port             string        `yaml:"port"`
	BoardStoreURL    string        `yaml:"board_store_url"`
	DefaultBoard     string        `yaml:"default_board"`
	MaxAppendRetries int           `yaml:"max_append_retries"`
	RetryBackoff     time.Duration `yaml:"append_retry_backoff"`
	FrontendURL      string        `yaml:"frontend_url"`
	LogLevel         string        `yaml:"log_level"`
	MDNSEnabled      bool          `yaml:"mdns_enabled"`
}

func Default() *Config {
	return &Config{
		Port:             "3001",
		BoardStoreURL:    "file://./data/boards",
		DefaultBoard:     "default",
		MaxAppendRetries: 3,
		RetryBackoff:     50 * time.Millisecond,
		LogLevel:         "info",
	}
}

// Load builds the configuration from defaults, a .env file, environment
// variables and finally the YAML file at path, each overriding the last.
// An empty path skips the YAML step.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"PORT":            &c.Port,
		"BOARD_STORE_URL": &c.BoardStoreURL,
		"DEFAULT_BOARD":   &c.DefaultBoard,
		"FRONTEND_URL":    &c.FrontendURL,
		"LOG_LEVEL":       &c.LogLevel,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("MAX_APPEND_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_APPEND_RETRIES: %w", err)
		}
		c.MaxAppendRetries = n
	}
	if v := os.Getenv("APPEND_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("APPEND_RETRY_BACKOFF: %w", err)
		}
		c.RetryBackoff = d
	}
	if v := os.Getenv("MDNS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MDNS_ENABLED: %w", err)
		}
		c.MDNSEnabled = b
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port %q is not a number", c.Port)
	}
	if c.BoardStoreURL == "" {
		return fmt.Errorf("board store url is required")
	}
	if c.DefaultBoard == "" {
		return fmt.Errorf("default board is required")
	}
	if c.MaxAppendRetries < 1 {
		return fmt.Errorf("max append retries must be at least 1, got %d", c.MaxAppendRetries)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("append retry backoff must not be negative")
	}
	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c *Config) PortNumber() int {
	n, _ := strconv.Atoi(c.Port)
	return n
}
