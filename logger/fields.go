package logger

// Standard field names for consistent structured logging across the engine.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Components and operations
	FieldComponent = "component"
	FieldOperation = "operation"

	// EAV domain
	FieldEntityType  = "entity_type"
	FieldEntityID    = "entity_id"
	FieldAttribute   = "attribute"
	FieldBackendType = "backend_type"

	// Schema synchronization
	FieldStrategy  = "strategy"
	FieldMigration = "migration"
	FieldBackupID  = "backup_id"
	FieldRiskScore = "risk_score"
	FieldRiskLevel = "risk_level"

	// Counts and timing
	FieldCount      = "count"
	FieldBatchSize  = "batch_size"
	FieldChunkSize  = "chunk_size"
	FieldDurationMS = "duration_ms"

	// Cache
	FieldCacheKey = "cache_key"
	FieldCacheHit = "cache_hit"
	FieldTTL      = "ttl"

	// Errors
	FieldError = "error"
)
