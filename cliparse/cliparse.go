// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Database types
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
	DatabaseMemory   = "memory"
)

type Config struct {
	Port         int    `yaml:"port"`
	BaseURL      string `yaml:"base_url"`
	DatabaseURL  string `yaml:"database_url"`
	DatabaseType string `yaml:"database_type"`
	RedisURL     string `yaml:"redis_url"`

	HostKeySalt   string `yaml:"host_key_salt"`
	SessionSecret string `yaml:"session_secret"`

	SpotifyClientID     string `yaml:"spotify_client_id"`
	SpotifyClientSecret string `yaml:"spotify_client_secret"`
	SpotifyRedirectURI  string `yaml:"spotify_redirect_uri"`

	DefaultThreshold  int           `yaml:"default_threshold"`
	DispatchTimeout   time.Duration `yaml:"dispatch_timeout"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`

	RateLimitRPS   int `yaml:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst"`

	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// ParseFlags builds the configuration.
// Precedence: CLI flag, then environment, then config file, then default.
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var configFile string
	reconcile := time.Duration(-1)

	fs := flag.NewFlagSet("crowdlist", flag.ContinueOnError)

	fs.StringVar(&configFile, "c", "", "YAML config file")

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite, postgres or memory)")
	fs.StringVar(&cfg.RedisURL, "redis", "", "Redis URL for cross-process vote locks")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Public base URL used in join links")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.HostKeySalt, "host-salt", "", "Host key salt (prefer env)")
	fs.StringVar(&cfg.SessionSecret, "session-secret", "", "Host session signing secret (prefer env)")

	fs.IntVar(&cfg.DefaultThreshold, "threshold", 0, "Default vote threshold for new events")
	fs.DurationVar(&cfg.DispatchTimeout, "dispatch-timeout", 0, "Timeout for playlist append calls")
	fs.DurationVar(&reconcile, "reconcile", -1, "Interval between commit reconciliation passes (0 disables)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	var file Config
	if configFile != "" {
		loaded, err := loadFile(configFile)
		if err != nil {
			return Config{}, err
		}
		file = *loaded
	}

	// Fall back to environment variables, then the config file
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else if file.Port != 0 {
			cfg.Port = file.Port
		} else {
			cfg.Port = 3318 // default
		}
	}

	cfg.DatabaseURL = firstNonEmpty(cfg.DatabaseURL, os.Getenv("DATABASE_URL"), file.DatabaseURL)
	cfg.DatabaseType = firstNonEmpty(cfg.DatabaseType, os.Getenv("DATABASE_TYPE"), file.DatabaseType, DatabaseSQLite)
	switch cfg.DatabaseType {
	case DatabaseSQLite, DatabasePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
		}
	case DatabaseMemory:
	default:
		return Config{}, fmt.Errorf("unknown database type %q", cfg.DatabaseType)
	}

	cfg.RedisURL = firstNonEmpty(cfg.RedisURL, os.Getenv("REDIS_URL"), file.RedisURL)
	cfg.BaseURL = firstNonEmpty(cfg.BaseURL, os.Getenv("BASE_URL"), file.BaseURL, "http://localhost:"+strconv.Itoa(cfg.Port))

	cfg.SpotifyClientID = firstNonEmpty(os.Getenv("SPOTIFY_CLIENT_ID"), file.SpotifyClientID)
	cfg.SpotifyClientSecret = firstNonEmpty(os.Getenv("SPOTIFY_CLIENT_SECRET"), file.SpotifyClientSecret)
	cfg.SpotifyRedirectURI = firstNonEmpty(os.Getenv("SPOTIFY_REDIRECT_URI"), file.SpotifyRedirectURI)

	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), file.LogLevel, "info")
	cfg.LogFormat = firstNonEmpty(os.Getenv("LOG_FORMAT"), file.LogFormat, "text")
	cfg.OTLPEndpoint = firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), file.OTLPEndpoint)

	var err error
	if cfg.DefaultThreshold, err = intSetting(cfg.DefaultThreshold, "DEFAULT_THRESHOLD", file.DefaultThreshold, 5); err != nil {
		return Config{}, err
	}
	if cfg.DefaultThreshold < 1 {
		return Config{}, errors.New("default threshold must be positive")
	}
	if cfg.RateLimitRPS, err = intSetting(0, "RATE_LIMIT_RPS", file.RateLimitRPS, 10); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = intSetting(0, "RATE_LIMIT_BURST", file.RateLimitBurst, 20); err != nil {
		return Config{}, err
	}

	if cfg.DispatchTimeout, err = durationSetting(cfg.DispatchTimeout, "DISPATCH_TIMEOUT", file.DispatchTimeout, 10*time.Second); err != nil {
		return Config{}, err
	}
	// zero is meaningful for the reconcile interval, so -1 marks "unset"
	if reconcile < 0 {
		reconcile = 0
		if s := os.Getenv("RECONCILE_INTERVAL"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return Config{}, errors.New("invalid RECONCILE_INTERVAL env variable")
			}
			reconcile = d
		} else if file.ReconcileInterval != 0 {
			reconcile = file.ReconcileInterval
		} else {
			reconcile = 30 * time.Second
		}
	}
	cfg.ReconcileInterval = reconcile

	// Secrets - MUST be provided
	cfg.HostKeySalt = firstNonEmpty(cfg.HostKeySalt, os.Getenv("HOST_KEY_SALT"), file.HostKeySalt)
	if cfg.HostKeySalt == "" {
		return Config{}, errors.New("HOST_KEY_SALT required")
	}

	cfg.SessionSecret = firstNonEmpty(cfg.SessionSecret, os.Getenv("SESSION_SECRET"), file.SessionSecret)
	if cfg.SessionSecret == "" {
		return Config{}, errors.New("SESSION_SECRET required")
	}

	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intSetting(flagVal int, env string, fileVal, def int) (int, error) {
	if flagVal != 0 {
		return flagVal, nil
	}
	if s := os.Getenv(env); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s env variable", env)
		}
		return v, nil
	}
	if fileVal != 0 {
		return fileVal, nil
	}
	return def, nil
}

func durationSetting(flagVal time.Duration, env string, fileVal, def time.Duration) (time.Duration, error) {
	if flagVal != 0 {
		return flagVal, nil
	}
	if s := os.Getenv(env); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s env variable", env)
		}
		return d, nil
	}
	if fileVal != 0 {
		return fileVal, nil
	}
	return def, nil
}
