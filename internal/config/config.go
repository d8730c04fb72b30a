// Package config loads the immutable configuration value consumed at
// initialization by the storage backends, the query executor, and the
// result cache. No mutable global state is read during query execution;
// everything here is resolved once, at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sensorquery/internal/model"
)

// StorageMode selects which backend(s) the executor keeps active.
type StorageMode string

const (
	StorageModeRemote StorageMode = "remote"
	StorageModeLocal  StorageMode = "local"
	StorageModeHybrid StorageMode = "hybrid"
)

// AzureConfig configures the remote object-store backend.
type AzureConfig struct {
	BlobEndpoint      string `yaml:"blob_endpoint"`
	SASToken          string `yaml:"sas_token"`
	StorageAccount    string `yaml:"storage_account"`
	StorageKey        string `yaml:"storage_key"`
	ContainerName     string `yaml:"container_name"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	MaxWorkers        int    `yaml:"max_workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// LocalStorageConfig configures the local filesystem backend.
type LocalStorageConfig struct {
	DataPath      string `yaml:"data_path"`
	EnableWatcher bool   `yaml:"enable_watcher"`
}

// QueryConfig bounds query execution.
type QueryConfig struct {
	MaxQueryDurationHours  int  `yaml:"max_query_duration_hours"`
	DefaultMaxDatapoints   int  `yaml:"default_max_datapoints"`
	MaxAbsoluteDatapoints  int  `yaml:"max_absolute_datapoints"`
	DefaultIntervalMS      int64 `yaml:"default_interval_ms"`
	EnableSmartAggregation bool `yaml:"enable_smart_aggregation"`
	MaxWorkers             int  `yaml:"max_workers"`
}

// CacheConfig bounds the result cache envelope.
type CacheConfig struct {
	Enabled            bool  `yaml:"enabled"`
	SizeMB             int   `yaml:"size_mb"`
	TTLSeconds         int   `yaml:"ttl_seconds"`
	MaxEntries         int   `yaml:"max_entries"`
	FrequencyMaxAgeHrs int   `yaml:"frequency_max_age_hours"`
}

// SizeMaxBytes returns the cache's byte budget.
func (c CacheConfig) SizeMaxBytes() int64 { return int64(c.SizeMB) * 1024 * 1024 }

// TTL returns the base TTL as a duration.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

// FrequencyMaxAge returns the housekeeping bound as a duration.
func (c CacheConfig) FrequencyMaxAge() time.Duration {
	return time.Duration(c.FrequencyMaxAgeHrs) * time.Hour
}

// TierConfig sets the duration thresholds used to pick a tier.
type TierConfig struct {
	RawTierMaxHours         int `yaml:"raw_tier_max_hours"`
	AggregatedTierMaxHours  int `yaml:"aggregated_tier_max_hours"`
	DailyTierThresholdHours int `yaml:"daily_tier_threshold_hours"`
}

// TierFor returns the preferred tier for a query spanning durationHours.
func (t TierConfig) TierFor(durationHours float64) model.Tier {
	switch {
	case durationHours <= float64(t.RawTierMaxHours):
		return model.TierRaw
	case durationHours <= float64(t.AggregatedTierMaxHours):
		return model.TierAggregated
	default:
		return model.TierDaily
	}
}

// Config is the complete, immutable application configuration.
type Config struct {
	StorageMode  StorageMode         `yaml:"storage_mode"`
	Azure        AzureConfig         `yaml:"azure"`
	LocalStorage LocalStorageConfig  `yaml:"local_storage"`
	Query        QueryConfig         `yaml:"query"`
	Cache        CacheConfig         `yaml:"cache"`
	Tiers        TierConfig          `yaml:"tiers"`
}

// DefaultConfig returns the service's documented defaults.
func DefaultConfig() Config {
	return Config{
		StorageMode: StorageModeHybrid,
		Azure: AzureConfig{
			ContainerName:     "sensor-data-cold-storage",
			ConnectionTimeout: 30 * time.Second,
			RetryAttempts:     3,
			MaxWorkers:        8,
			RequestsPerSecond: 20,
		},
		LocalStorage: LocalStorageConfig{
			DataPath:      "/data",
			EnableWatcher: true,
		},
		Query: QueryConfig{
			MaxQueryDurationHours:  168,
			DefaultMaxDatapoints:   10000,
			MaxAbsoluteDatapoints:  100000,
			DefaultIntervalMS:      1000,
			EnableSmartAggregation: true,
			MaxWorkers:             4,
		},
		Cache: CacheConfig{
			Enabled:            true,
			SizeMB:             512,
			TTLSeconds:         3600,
			MaxEntries:         10000,
			FrequencyMaxAgeHrs: 24,
		},
		Tiers: TierConfig{
			RawTierMaxHours:         24,
			AggregatedTierMaxHours:  168,
			DailyTierThresholdHours: 168,
		},
	}
}

// Load reads a YAML configuration file on top of DefaultConfig, then
// applies a small set of environment overrides, matching the original
// service's env-var precedence over config.py defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("STORAGE_MODE")); v != "" {
		cfg.StorageMode = StorageMode(v)
	}
	if v := strings.TrimSpace(os.Getenv("CACHE_ENABLED")); v != "" {
		cfg.Cache.Enabled = v == "true"
	}
	if v := strings.TrimSpace(os.Getenv("AZURE_CONTAINER_NAME")); v != "" {
		cfg.Azure.ContainerName = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCAL_STORAGE_PATH")); v != "" {
		cfg.LocalStorage.DataPath = v
	}
	if v := strings.TrimSpace(os.Getenv("MAX_ABSOLUTE_DATAPOINTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.MaxAbsoluteDatapoints = n
		}
	}
}

// Validate cross-checks field relationships, matching the original
// service's validate_config: bad thresholds, an unknown storage mode, or a
// missing container name or data path are fatal at initialization. Azure
// credential pairs are not checked here; azureblob.New rejects a missing
// pair when the remote backend is built.
func Validate(cfg Config) error {
	if cfg.Tiers.RawTierMaxHours >= cfg.Tiers.AggregatedTierMaxHours {
		return &model.ConfigurationError{Field: "tiers", Msg: "raw_tier_max_hours must be < aggregated_tier_max_hours"}
	}
	if cfg.Tiers.AggregatedTierMaxHours > cfg.Tiers.DailyTierThresholdHours {
		return &model.ConfigurationError{Field: "tiers", Msg: "aggregated_tier_max_hours must be <= daily_tier_threshold_hours"}
	}
	if cfg.Query.MaxAbsoluteDatapoints < cfg.Query.DefaultMaxDatapoints {
		return &model.ConfigurationError{Field: "query", Msg: "max_absolute_datapoints must be >= default_max_datapoints"}
	}
	if cfg.Query.MaxQueryDurationHours <= 0 {
		return &model.ConfigurationError{Field: "query", Msg: "max_query_duration_hours must be positive"}
	}
	if cfg.StorageMode != StorageModeRemote && cfg.StorageMode != StorageModeLocal && cfg.StorageMode != StorageModeHybrid {
		return &model.ConfigurationError{Field: "storage_mode", Msg: "must be one of remote, local, hybrid"}
	}
	if (cfg.StorageMode == StorageModeRemote || cfg.StorageMode == StorageModeHybrid) && cfg.Azure.ContainerName == "" {
		return &model.ConfigurationError{Field: "azure.container_name", Msg: "required when storage_mode uses the remote backend"}
	}
	if (cfg.StorageMode == StorageModeLocal || cfg.StorageMode == StorageModeHybrid) && cfg.LocalStorage.DataPath == "" {
		return &model.ConfigurationError{Field: "local_storage.data_path", Msg: "required when storage_mode uses the local backend"}
	}
	return nil
}
