package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort               = 8080
	defaultEndpointURL        = "http://localhost:5000/process"
	defaultAcceptedMediaType  = "text/csv"
	defaultDownloadName       = "processed_dataset.csv"
	defaultSessionTTL         = 30 * time.Minute
	defaultRateLimitPerMinute = 600
	defaultLogLevel           = "info"
)

// Config describes runtime configuration for the client.
type Config struct {
	Port               int           `yaml:"port"`
	EndpointURL        string        `yaml:"endpoint_url"`
	AcceptedMediaType  string        `yaml:"accepted_media_type"`
	DownloadName       string        `yaml:"download_name"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	SessionTTL         time.Duration `yaml:"session_ttl"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	LogLevel           string        `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:               defaultPort,
		EndpointURL:        defaultEndpointURL,
		AcceptedMediaType:  defaultAcceptedMediaType,
		DownloadName:       defaultDownloadName,
		SessionTTL:         defaultSessionTTL,
		RateLimitPerMinute: defaultRateLimitPerMinute,
		LogLevel:           defaultLogLevel,
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	cfg.EndpointURL = strings.TrimSpace(cfg.EndpointURL)
	if cfg.EndpointURL == "" {
		cfg.EndpointURL = defaultEndpointURL
	}
	cfg.AcceptedMediaType = strings.TrimSpace(cfg.AcceptedMediaType)
	if cfg.AcceptedMediaType == "" {
		cfg.AcceptedMediaType = defaultAcceptedMediaType
	}
	if strings.TrimSpace(cfg.DownloadName) == "" {
		cfg.DownloadName = defaultDownloadName
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = defaultRateLimitPerMinute
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
}

// Validate rejects values the client cannot run with.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	u, err := url.Parse(c.EndpointURL)
	if err != nil {
		return fmt.Errorf("invalid endpoint_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid endpoint_url %q: must be an absolute http(s) url", c.EndpointURL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("invalid request_timeout: %s (must be >= 0)", c.RequestTimeout)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("invalid session_ttl: %s (must be > 0)", c.SessionTTL)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("invalid rate_limit_per_minute: %d (must be >= 1)", c.RateLimitPerMinute)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the configured zerolog level, falling back to info.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
