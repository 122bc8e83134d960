package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFile decodes a YAML file over the defaults. Keys absent from the file
// keep their default and explicit zero values such as "failure_threshold: 0"
// take effect. A missing path returns the defaults unchanged.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// EnvString returns the trimmed value of an environment variable when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses a duration environment variable such as "20s".
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// ApplyEnv overrides fields from GOODREADS_* environment variables.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("GOODREADS_BASE_URL"); ok {
		c.BaseURL = value
	}
	if value, ok := EnvString("GOODREADS_DATA_DIR"); ok {
		c.DataDir = value
	}
	if value, ok := EnvString("GOODREADS_STORE"); ok {
		c.StoreBackend = strings.ToLower(value)
	}
	if value, ok := EnvString("GOODREADS_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	if value, ok, err := EnvInt("GOODREADS_FAILURE_THRESHOLD"); err != nil {
		return err
	} else if ok {
		c.FailureThreshold = value
	}
	if value, ok, err := EnvDuration("GOODREADS_CONTENT_WAIT"); err != nil {
		return err
	} else if ok {
		c.ContentWait = value
	}
	return nil
}
