package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all tunables for the scraper library.
type Config struct {
	// HTTP settings for the query engine and media downloads
	HTTP HTTPConfig `yaml:"http"`

	// Query settings for edge pagination
	Query QueryConfig `yaml:"query"`

	// Download settings for media acquisition
	Download DownloadConfig `yaml:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig holds transport settings.
type HTTPConfig struct {
	// Timeout caps every network call, independent of retries.
	Timeout time.Duration `yaml:"timeout"`
	// RetryAttempts is the number of attempts for transient network failures.
	RetryAttempts int    `yaml:"retry_attempts"`
	UserAgent     string `yaml:"user_agent"`
	// Proxy, when set, is used for all requests.
	Proxy string `yaml:"proxy"`
	// BaseURL is the web frontend host; APIBaseURL is the mobile API host
	// used for reverse user-id lookups. Overridable for mirrors and tests.
	BaseURL    string `yaml:"base_url"`
	APIBaseURL string `yaml:"api_base_url"`
}

// QueryConfig holds edge pagination settings.
type QueryConfig struct {
	// PageSize is the `first` variable sent with paginated queries.
	PageSize int `yaml:"page_size"`
	// PageDelayMin/Max bound the randomized sleep between page fetches.
	PageDelayMin time.Duration `yaml:"page_delay_min"`
	PageDelayMax time.Duration `yaml:"page_delay_max"`
}

// DownloadConfig holds media acquisition settings.
type DownloadConfig struct {
	Directory string `yaml:"directory"`
	// Verify compares content checksums instead of byte sizes when deciding
	// whether an existing file can be skipped.
	Verify bool `yaml:"verify"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

const (
	// DefaultPageSize is the maximum amount of nodes per edge page.
	DefaultPageSize = 50

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/60.0.3112.113 Safari/537.36"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			RetryAttempts: 5,
			UserAgent:     defaultUserAgent,
			BaseURL:       "https://www.instagram.com",
			APIBaseURL:    "https://i.instagram.com",
		},
		Query: QueryConfig{
			PageSize:     DefaultPageSize,
			PageDelayMin: 1 * time.Second,
			PageDelayMax: 5 * time.Second,
		},
		Download: DownloadConfig{
			Directory: ".",
			Verify:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load builds a Config from defaults, an optional YAML file and environment
// variables, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	// A .env file is optional; missing is fine.
	_ = godotenv.Load()
	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile merges settings from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv merges settings from INSTASCRAPE_* environment variables.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("INSTASCRAPE_USER_AGENT"); v != "" {
		c.HTTP.UserAgent = v
	}
	if v := os.Getenv("INSTASCRAPE_PROXY"); v != "" {
		c.HTTP.Proxy = v
	}
	if v := os.Getenv("INSTASCRAPE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.Timeout = d
		}
	}
	if v := os.Getenv("INSTASCRAPE_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HTTP.RetryAttempts = n
		}
	}
	if v := os.Getenv("INSTASCRAPE_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Query.PageSize = n
		}
	}
	if v := os.Getenv("INSTASCRAPE_DOWNLOAD_DIR"); v != "" {
		c.Download.Directory = v
	}
	if v := os.Getenv("INSTASCRAPE_VERIFY"); v != "" {
		c.Download.Verify = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("INSTASCRAPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %v", c.HTTP.Timeout)
	}
	if c.HTTP.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.HTTP.RetryAttempts)
	}
	if c.Query.PageSize < 1 || c.Query.PageSize > DefaultPageSize {
		return fmt.Errorf("page size must be between 1 and %d, got %d", DefaultPageSize, c.Query.PageSize)
	}
	if c.Query.PageDelayMin < 0 || c.Query.PageDelayMax < c.Query.PageDelayMin {
		return fmt.Errorf("invalid page delay bounds: min=%v max=%v", c.Query.PageDelayMin, c.Query.PageDelayMax)
	}
	return nil
}
