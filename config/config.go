// Package config loads the EAV engine configuration via Viper.
//
// Precedence (lowest to highest): defaults < eav.toml found by upward
// search from the working directory < EAV_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/andrfilipenk/new-sub004/errors"
)

// Config is the root configuration for the engine.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	EAV      EAVConfig      `mapstructure:"eav"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Sync     SyncConfig     `mapstructure:"sync"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path                string `mapstructure:"path"`
	QueryTimeoutSeconds int    `mapstructure:"query_timeout_seconds"`
}

// EAVConfig configures entity-attribute-value storage and querying.
type EAVConfig struct {
	TablePrefix string      `mapstructure:"table_prefix"` // value tables are <prefix>_<backend_type>
	Query       QueryConfig `mapstructure:"query"`
	Batch       BatchConfig `mapstructure:"batch"`
}

// QueryConfig bounds join planning.
type QueryConfig struct {
	MaxJoins int `mapstructure:"max_joins"` // joins beyond this fall back to correlated subqueries
}

// BatchConfig bounds bulk operations.
type BatchConfig struct {
	MaxSize   int `mapstructure:"max_size"`
	ChunkSize int `mapstructure:"chunk_size"`
}

// CacheConfig configures the cross-request cache.
type CacheConfig struct {
	DefaultTTLSeconds int    `mapstructure:"default_ttl_seconds"`
	KeyPrefix         string `mapstructure:"key_prefix"`
}

// BackupConfig configures schema/data backups.
type BackupConfig struct {
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// SyncConfig configures schema synchronization.
type SyncConfig struct {
	AutoBackup bool `mapstructure:"auto_backup"`
}

var (
	globalConfig  *Config
	viperInstance *viper.Viper
)

// Load reads the engine configuration using Viper. The result is cached
// for the process; use Reset in tests.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// GetViper returns the Viper instance for advanced configuration access.
func GetViper() *viper.Viper {
	return initViper()
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("EAV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if configPath := findProjectConfig(); configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		// Best effort: a broken project config falls back to defaults.
		_ = v.MergeInConfig()
	}

	viperInstance = v
	return v
}

// findProjectConfig searches for eav.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "eav.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
