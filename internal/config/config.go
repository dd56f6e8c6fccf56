package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Source  SourceConfig
	Refresh RefreshConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
}

type SourceConfig struct {
	BaseURL      string
	FetchTimeout time.Duration
}

type RefreshConfig struct {
	DefaultStartYear int
	DefaultEndYear   int
	// Interval enables the built-in periodic refresh when > 0.
	// Zero leaves triggering entirely to the HTTP endpoint.
	Interval     time.Duration
	ScanPageSize int
	BatchSize    int
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	startYear := getEnvInt("START_YEAR", 2025)

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 5),
		},
		Source: SourceConfig{
			BaseURL:      getEnv("IGP_BASE_URL", "https://ultimosismo.igp.gob.pe/api/ultimo-sismo/ajaxb"),
			FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 15*time.Second),
		},
		Refresh: RefreshConfig{
			DefaultStartYear: startYear,
			DefaultEndYear:   getEnvInt("END_YEAR", startYear),
			Interval:         getEnvDuration("REFRESH_INTERVAL", 0),
			ScanPageSize:     getEnvInt("SCAN_PAGE_SIZE", 100),
			BatchSize:        getEnvInt("BATCH_SIZE", 25),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/sismos.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Source.BaseURL == "" {
		return fmt.Errorf("IGP_BASE_URL must not be empty")
	}
	if c.Source.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}

	if c.Refresh.DefaultStartYear < 1900 || c.Refresh.DefaultStartYear > 2200 {
		return fmt.Errorf("invalid default start year: %d", c.Refresh.DefaultStartYear)
	}
	if c.Refresh.Interval != 0 && c.Refresh.Interval < time.Minute {
		return fmt.Errorf("refresh interval must be at least 1 minute")
	}
	if c.Refresh.ScanPageSize < 1 {
		return fmt.Errorf("scan page size must be positive")
	}
	if c.Refresh.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
