package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/errors"
)

// Query constants
const (
	cacheUpsertQuery = `
		INSERT INTO eav_cache (cache_key, cache_value, ttl, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			cache_value = excluded.cache_value,
			ttl = excluded.ttl,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`

	cacheSelectQuery = `
		SELECT cache_value, expires_at FROM eav_cache WHERE cache_key = ?`

	cacheDeleteQuery = `
		DELETE FROM eav_cache WHERE cache_key = ?`

	cacheDeleteLikeQuery = `
		DELETE FROM eav_cache WHERE cache_key LIKE ? ESCAPE '\'`

	cachePurgeQuery = `
		DELETE FROM eav_cache WHERE expires_at <= ?`
)

// CacheStore is the durable tier of the cross-request cache. Writers use
// an upsert-by-key pattern; concurrent writers to the same key race with
// last-writer-wins semantics, which the cache design tolerates.
type CacheStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewCacheStore creates a cache store. logger may be nil.
func NewCacheStore(db *sql.DB, logger *zap.SugaredLogger) *CacheStore {
	return &CacheStore{db: db, logger: logger}
}

// Upsert stores a serialized value under key with the given TTL.
func (s *CacheStore) Upsert(ctx context.Context, key, value string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, cacheUpsertQuery,
		key, value, int64(ttl.Seconds()), now.Add(ttl), now, now)
	if err != nil {
		return errors.Wrapf(err, "cache upsert %s", key)
	}
	return nil
}

// Get returns the cached value for key if present and unexpired.
func (s *CacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, cacheSelectQuery, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "cache get %s", key)
	}
	if !expiresAt.After(time.Now().UTC()) {
		return "", false, nil
	}
	return value, true, nil
}

// Delete removes one cache entry.
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, cacheDeleteQuery, key); err != nil {
		return errors.Wrapf(err, "cache delete %s", key)
	}
	return nil
}

// DeleteLike removes all entries whose key matches the LIKE pattern.
// A trailing * in the pattern is treated as a wildcard; literal % and _
// in the rest of the pattern are escaped.
func (s *CacheStore) DeleteLike(ctx context.Context, pattern string) (int64, error) {
	res, err := s.db.ExecContext(ctx, cacheDeleteLikeQuery, likePattern(pattern))
	if err != nil {
		return 0, errors.Wrapf(err, "cache clear %s", pattern)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return affected, nil
}

// PurgeExpired removes every entry past its expires_at.
func (s *CacheStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, cachePurgeQuery, time.Now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "cache purge")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	if s.logger != nil && affected > 0 {
		s.logger.Debugw("Purged expired cache entries", "count", affected)
	}
	return affected, nil
}

// likePattern converts a key pattern with * wildcards into a SQL LIKE
// pattern, escaping literal % and _ characters.
func likePattern(pattern string) string {
	s := strings.ReplaceAll(pattern, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return strings.ReplaceAll(s, "*", "%")
}
