// Package config loads process configuration from the environment, with
// an optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/waymarkapp/core/internal/db"
	"github.com/waymarkapp/core/internal/models"
)

type Config struct {
	DataDir   string
	Server    ServerConfig
	Sync      SyncConfig
	TileCache TileCacheConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	URL      string
	APIToken string
}

type SyncConfig struct {
	TickInterval  time.Duration
	PurgeInterval time.Duration
	BatchSize     int
	MinInterval   time.Duration
	HourlyCap     int
	MaxAttempts   int
}

type TileCacheConfig struct {
	BudgetBytes int64
}

type LoggingConfig struct {
	Level string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in when present.
func Load() (*Config, error) {
	godotenv.Load()

	tick, err := time.ParseDuration(getEnv("SYNC_TICK_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_TICK_INTERVAL: %w", err)
	}

	purge, err := time.ParseDuration(getEnv("SYNC_PURGE_INTERVAL", "6h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_PURGE_INTERVAL: %w", err)
	}

	minInterval, err := time.ParseDuration(getEnv("SYNC_MIN_INTERVAL", "65s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_MIN_INTERVAL: %w", err)
	}

	return &Config{
		DataDir: getEnv("DATA_DIR", "data"),
		Server: ServerConfig{
			URL:      getEnv("SERVER_URL", ""),
			APIToken: getEnv("API_TOKEN", ""),
		},
		Sync: SyncConfig{
			TickInterval:  tick,
			PurgeInterval: purge,
			BatchSize:     getEnvAsInt("SYNC_BATCH_SIZE", 50),
			MinInterval:   minInterval,
			HourlyCap:     getEnvAsInt("SYNC_HOURLY_CAP", 55),
			MaxAttempts:   getEnvAsInt("SYNC_MAX_MUTATION_ATTEMPTS", 5),
		},
		TileCache: TileCacheConfig{
			BudgetBytes: int64(getEnvAsInt("TILE_CACHE_BUDGET_MB", 250)) * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

// Seed copies server credentials from the environment into the settings
// store when they are set, so a fresh install comes up configured.
// Values already in the store are only overwritten by non-empty
// environment values.
func (c *Config) Seed(repo *db.Repository) error {
	if c.Server.URL != "" {
		if err := repo.SetSetting(models.SettingServerURL, c.Server.URL); err != nil {
			return err
		}
	}
	if c.Server.APIToken != "" {
		if err := repo.SetSetting(models.SettingAPIToken, c.Server.APIToken); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
