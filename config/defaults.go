package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "eav.db")
	v.SetDefault("database.query_timeout_seconds", 30)

	// EAV storage defaults
	v.SetDefault("eav.table_prefix", "eav_value")
	v.SetDefault("eav.query.max_joins", 10)      // joins past this use correlated subqueries
	v.SetDefault("eav.batch.max_size", 5000)     // hard ceiling per batch call
	v.SetDefault("eav.batch.chunk_size", 1000)   // rows per statement within a batch

	// Cache defaults
	v.SetDefault("cache.default_ttl_seconds", 3600)
	v.SetDefault("cache.key_prefix", "eav")

	// Backup defaults
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.retention_days", 30)

	// Sync defaults
	v.SetDefault("sync.auto_backup", true)
}
