// Package cache implements the cross-request cache: an in-process memory
// tier in front of the durable eav_cache table. Entries carry an explicit
// TTL and are serialized as JSON. The memory tier is best-effort; the
// durable tier is the source of truth across processes.
package cache

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/storage"
	"github.com/andrfilipenk/new-sub004/errors"
)

// DefaultTTL applies when a caller passes a non-positive TTL.
const DefaultTTL = time.Hour

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Manager is safe for concurrent use. Concurrent writers to the same key
// race with last-writer-wins semantics, which is acceptable for cache
// entries (never for primary entity data).
type Manager struct {
	store      *storage.CacheStore
	prefix     string
	defaultTTL time.Duration
	logger     *zap.SugaredLogger

	mu     sync.RWMutex
	memory map[string]memoryEntry
}

// NewManager creates a cache manager. logger may be nil.
func NewManager(store *storage.CacheStore, prefix string, defaultTTL time.Duration, logger *zap.SugaredLogger) *Manager {
	if prefix == "" {
		prefix = "eav"
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Manager{
		store:      store,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		logger:     logger,
		memory:     make(map[string]memoryEntry),
	}
}

// Prefix returns the key prefix all helpers build on.
func (m *Manager) Prefix() string {
	return m.prefix
}

// Get loads the value under key into dest. It reports whether an
// unexpired entry was found.
func (m *Manager) Get(ctx context.Context, key string, dest any) (bool, error) {
	now := time.Now().UTC()

	m.mu.RLock()
	entry, ok := m.memory[key]
	m.mu.RUnlock()
	if ok && entry.expiresAt.After(now) {
		if err := json.Unmarshal([]byte(entry.value), dest); err != nil {
			return false, errors.Wrapf(err, "decode cached %s", key)
		}
		if m.logger != nil {
			m.logger.Debugw("Cache hit", "cache_key", key, "tier", "memory")
		}
		return true, nil
	}

	raw, found, err := m.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, errors.Wrapf(err, "decode cached %s", key)
	}

	// The durable row's own expiry still governs across processes; the
	// memory copy just avoids re-reading it for a while.
	m.mu.Lock()
	m.memory[key] = memoryEntry{value: raw, expiresAt: now.Add(m.defaultTTL)}
	m.mu.Unlock()
	return true, nil
}

// Set stores v under key for ttl. Non-positive ttl means the default.
func (m *Manager) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if err := m.store.Upsert(ctx, key, string(raw), ttl); err != nil {
		return err
	}

	m.mu.Lock()
	m.memory[key] = memoryEntry{value: string(raw), expiresAt: time.Now().UTC().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Remember returns the cached value under key, producing and storing it
// on a miss. dest receives the value either way; the produced value is
// round-tripped through JSON so hit and miss yield identical shapes.
func (m *Manager) Remember(ctx context.Context, key string, ttl time.Duration, dest any, produce func(context.Context) (any, error)) error {
	found, err := m.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	v, err := produce(ctx)
	if err != nil {
		return err
	}
	if err := m.Set(ctx, key, v, ttl); err != nil {
		return err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return errors.Wrapf(json.Unmarshal(raw, dest), "decode produced %s", key)
}

// Delete removes one entry from both tiers.
func (m *Manager) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.memory, key)
	m.mu.Unlock()
	return m.store.Delete(ctx, key)
}

// Clear removes all entries matching pattern (* wildcards) from both
// tiers and returns the number of durable rows removed.
func (m *Manager) Clear(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	for key := range m.memory {
		if matched, _ := path.Match(pattern, key); matched {
			delete(m.memory, key)
		}
	}
	m.mu.Unlock()

	removed, err := m.store.DeleteLike(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if m.logger != nil && removed > 0 {
		m.logger.Debugw("Cleared cache entries", "pattern", pattern, "count", removed)
	}
	return removed, nil
}

// InvalidateEntity drops the cached entry for one entity along with the
// entity type's aggregate and query entries, which may embed it.
func (m *Manager) InvalidateEntity(ctx context.Context, typeCode string, entityID int64) error {
	if err := m.Delete(ctx, m.EntityKey(typeCode, entityID)); err != nil {
		return err
	}
	return m.InvalidateEntityType(ctx, typeCode)
}

// InvalidateEntityType drops the type aggregate, every cached entity of
// the type, and all query results.
func (m *Manager) InvalidateEntityType(ctx context.Context, typeCode string) error {
	if err := m.Delete(ctx, m.TypeKey(typeCode)); err != nil {
		return err
	}
	if _, err := m.Clear(ctx, m.prefix+":entity:"+typeCode+":*"); err != nil {
		return err
	}
	_, err := m.Clear(ctx, m.prefix+":query:*")
	return err
}

// InvalidateQuery drops one cached query result.
func (m *Manager) InvalidateQuery(ctx context.Context, hash string) error {
	return m.Delete(ctx, m.QueryKey(hash))
}

// PurgeExpired sweeps expired entries from both tiers.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	m.mu.Lock()
	for key, entry := range m.memory {
		if !entry.expiresAt.After(now) {
			delete(m.memory, key)
		}
	}
	m.mu.Unlock()
	return m.store.PurgeExpired(ctx)
}
