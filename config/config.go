package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper and ranking configuration.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	Genre            string        `yaml:"genre"`
	DataDir          string        `yaml:"data_dir"`
	StoreBackend     string        `yaml:"store_backend"` // file or sqlite
	SQLitePath       string        `yaml:"sqlite_path"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ContentWait      time.Duration `yaml:"content_wait"`
	Timeout          time.Duration `yaml:"timeout"`
	Delay            time.Duration `yaml:"delay"`
	RandomDelay      time.Duration `yaml:"random_delay"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	ReportFile       string        `yaml:"report_file"`
	ReportFormat     string        `yaml:"report_format"` // csv, json, or dual
	UserAgent        string        `yaml:"user_agent"`
	SkipPlots        bool          `yaml:"skip_plots"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	Verbose          bool          `yaml:"verbose"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`
}

// DefaultConfig returns conservative defaults for goodreads.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.goodreads.com",
		Genre:            "science-fiction",
		DataDir:          "Data",
		StoreBackend:     "file",
		SQLitePath:       "Data/artifacts.db",
		FailureThreshold: 5,
		ContentWait:      20 * time.Second,
		Timeout:          10 * time.Second,
		Delay:            500 * time.Millisecond,
		RandomDelay:      250 * time.Millisecond,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		ReportFile:       "output/rankings.csv",
		ReportFormat:     "csv",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		SkipPlots:        false,
		MetricsAddr:      "",
		Verbose:          false,
		RespectRobotsTxt: false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Genre == "" {
		return fmt.Errorf("genre cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	if c.StoreBackend != "file" && c.StoreBackend != "sqlite" {
		return fmt.Errorf("store backend must be file or sqlite")
	}
	if c.StoreBackend == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("sqlite path cannot be empty for the sqlite backend")
	}
	if c.FailureThreshold < 0 {
		return fmt.Errorf("failure threshold cannot be negative")
	}
	if c.ContentWait <= 0 {
		return fmt.Errorf("content wait must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.ReportFile == "" {
		return fmt.Errorf("report file cannot be empty")
	}
	if c.ReportFormat != "csv" && c.ReportFormat != "json" && c.ReportFormat != "dual" {
		return fmt.Errorf("report format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
