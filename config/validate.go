package config

import "github.com/andrfilipenk/new-sub004/errors"

// Validate checks that the configuration is internally consistent.
// Fails fast so a bad deployment is caught at load time, not mid-operation.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.NewConfigurationError("database.path", "must not be empty")
	}
	if c.Database.QueryTimeoutSeconds <= 0 {
		return errors.NewConfigurationError("database.query_timeout_seconds", "must be positive, got %d", c.Database.QueryTimeoutSeconds)
	}
	if c.EAV.TablePrefix == "" {
		return errors.NewConfigurationError("eav.table_prefix", "must not be empty")
	}
	if c.EAV.Query.MaxJoins < 1 {
		return errors.NewConfigurationError("eav.query.max_joins", "must be at least 1, got %d", c.EAV.Query.MaxJoins)
	}
	if c.EAV.Batch.MaxSize < 1 {
		return errors.NewConfigurationError("eav.batch.max_size", "must be at least 1, got %d", c.EAV.Batch.MaxSize)
	}
	if c.EAV.Batch.ChunkSize < 1 || c.EAV.Batch.ChunkSize > c.EAV.Batch.MaxSize {
		return errors.NewConfigurationError("eav.batch.chunk_size", "must be between 1 and eav.batch.max_size, got %d", c.EAV.Batch.ChunkSize)
	}
	if c.Cache.DefaultTTLSeconds < 0 {
		return errors.NewConfigurationError("cache.default_ttl_seconds", "must not be negative, got %d", c.Cache.DefaultTTLSeconds)
	}
	if c.Backup.RetentionDays < 1 {
		return errors.NewConfigurationError("backup.retention_days", "must be at least 1, got %d", c.Backup.RetentionDays)
	}
	return nil
}
