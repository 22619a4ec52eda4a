package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Source         string
	BaseURL        string
	MaxPages       int
	PageSize       int
	MaxWorkers     int
	RequestTimeout time.Duration
	RunTimeout     time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	Render         bool
	Headless       bool
	CSVPath        string
	DatabaseURL    string
	RabbitMQURL    string
	RabbitExchange string
	LogFormat      string
	LogColor       bool
}

func DefaultConfig() *Config {
	return &Config{
		Source:         "suumo",
		BaseURL:        "https://suumo.jp",
		MaxPages:       5,
		PageSize:       50,
		MaxWorkers:     3,
		RequestTimeout: 30 * time.Second,
		RunTimeout:     10 * time.Minute,
		MinDelay:       1 * time.Second,
		MaxDelay:       3 * time.Second,
		MaxRetries:     3,
		RetryBackoff:   1 * time.Second,
		Render:         false,
		Headless:       true,
		CSVPath:        "",
		DatabaseURL:    "sqlite://listings.db",
		RabbitMQURL:    "",
		RabbitExchange: "listings",
		LogFormat:      "text",
		LogColor:       true,
	}
}

// Suumo only accepts these result page sizes.
var allowedPageSizes = map[int]bool{10: true, 20: true, 30: true, 50: true, 100: true}

// Load reads an optional .env file (or the given paths) into the process
// environment and overlays the environment onto DefaultConfig.
func Load(envPaths ...string) (*Config, error) {
	if err := godotenv.Load(envPaths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("could not load env file %v: %w", envPaths, err)
	}

	cfg := DefaultConfig()
	r := envReader{}

	cfg.Source = strings.ToLower(r.str("SOURCE", cfg.Source))
	cfg.BaseURL = strings.TrimRight(r.str("BASE_URL", cfg.BaseURL), "/")
	cfg.MaxPages = r.integer("MAX_PAGES", cfg.MaxPages)
	cfg.PageSize = r.integer("PAGE_SIZE", cfg.PageSize)
	cfg.MaxWorkers = r.integer("MAX_WORKERS", cfg.MaxWorkers)
	cfg.RequestTimeout = r.duration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.RunTimeout = r.duration("RUN_TIMEOUT", cfg.RunTimeout)
	cfg.MinDelay = r.duration("MIN_DELAY", cfg.MinDelay)
	cfg.MaxDelay = r.duration("MAX_DELAY", cfg.MaxDelay)
	cfg.MaxRetries = r.integer("MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBackoff = r.duration("RETRY_BACKOFF", cfg.RetryBackoff)
	cfg.Render = r.boolean("RENDER", cfg.Render)
	cfg.Headless = r.boolean("HEADLESS", cfg.Headless)
	cfg.CSVPath = r.str("CSV_PATH", cfg.CSVPath)
	cfg.DatabaseURL = r.str("DATABASE_URL", cfg.DatabaseURL)
	cfg.RabbitMQURL = r.str("RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.RabbitExchange = r.str("RABBITMQ_EXCHANGE", cfg.RabbitExchange)
	cfg.LogFormat = strings.ToLower(r.str("LOG_FORMAT", cfg.LogFormat))
	cfg.LogColor = r.boolean("LOG_COLOR", cfg.LogColor)

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL must not be empty"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL must not be empty"))
	}
	if c.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("MAX_PAGES must be at least 1, got %d", c.MaxPages))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("MAX_WORKERS must be at least 1, got %d", c.MaxWorkers))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries))
	}
	if !allowedPageSizes[c.PageSize] {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be one of 10, 20, 30, 50, 100, got %d", c.PageSize))
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		errs = append(errs, fmt.Errorf("delay range %v-%v is invalid", c.MinDelay, c.MaxDelay))
	}
	if c.RequestTimeout <= 0 || c.RunTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT and RUN_TIMEOUT must be positive"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

type envReader struct {
	errs []error
}

func (r *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *envReader) integer(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return def
	}
	return v
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return v
}

func (r *envReader) boolean(key string, def bool) bool {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid boolean %q", key, raw))
		return def
	}
	return v
}
