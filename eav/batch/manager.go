// Package batch implements bulk entity operations. Every batch call is
// all-or-nothing: inputs over the size limit are rejected before any
// write, accepted batches run chunked inside one transaction, and any
// chunk failure rolls the whole call back.
package batch

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/cache"
	"github.com/andrfilipenk/new-sub004/eav/storage"
	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/eav/values"
	"github.com/andrfilipenk/new-sub004/errors"
)

const (
	// DefaultMaxBatchSize caps how many items one batch call accepts.
	DefaultMaxBatchSize = 5000
	// DefaultChunkSize is the unit of work inside a batch transaction.
	DefaultChunkSize = 1000
)

// Result reports what a batch call changed.
type Result struct {
	Created   int      `json:"created,omitempty"`
	Updated   int      `json:"updated,omitempty"`
	Deleted   int      `json:"deleted,omitempty"`
	EntityIDs []int64  `json:"entity_ids,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// Manager executes bulk entity operations.
type Manager struct {
	db           *sql.DB
	entityStore  *storage.EntityStore
	valueStore   *storage.ValueStore
	transformer  *values.Transformer
	cache        *cache.Manager
	maxBatchSize int
	chunkSize    int
	logger       *zap.SugaredLogger
}

// NewManager creates a batch manager. Non-positive sizes fall back to
// the defaults; cacheManager and logger may be nil.
func NewManager(db *sql.DB, tablePrefix string, maxBatchSize, chunkSize int, cacheManager *cache.Manager, logger *zap.SugaredLogger) *Manager {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	transformer := values.NewTransformer()
	return &Manager{
		db:           db,
		entityStore:  storage.NewEntityStore(db, logger),
		valueStore:   storage.NewValueStore(db, tablePrefix, transformer, logger),
		transformer:  transformer,
		cache:        cacheManager,
		maxBatchSize: maxBatchSize,
		chunkSize:    chunkSize,
		logger:       logger,
	}
}

// BatchCreate inserts one entity per item. Items are maps of attribute
// code to value; every item is validated before the first write.
func (m *Manager) BatchCreate(ctx context.Context, et *types.EntityType, items []map[string]any) (*Result, error) {
	result := &Result{}
	if len(items) == 0 {
		return result, nil
	}
	if err := m.guardSize(len(items)); err != nil {
		return nil, err
	}

	verrs := errors.NewValidationErrors()
	for i, item := range items {
		m.validateItem(verrs, et, i, item, true)
	}
	if err := verrs.ErrOrNil(); err != nil {
		return nil, err
	}

	err := m.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		return m.eachChunk(len(items), func(lo, hi int) error {
			for _, item := range items[lo:hi] {
				id, err := m.entityStore.Insert(ctx, tx, et, now)
				if err != nil {
					return err
				}
				if err := m.valueStore.SaveValues(ctx, tx, et, id, item); err != nil {
					return err
				}
				result.EntityIDs = append(result.EntityIDs, id)
				result.Created++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	m.invalidateType(ctx, et.Code)
	m.logDone("Batch create", et.Code, result.Created)
	return result, nil
}

// BatchUpdateValues writes attribute values for existing entities and
// touches their updated_at timestamps. A nil value deletes the row.
func (m *Manager) BatchUpdateValues(ctx context.Context, et *types.EntityType, updates map[int64]map[string]any) (*Result, error) {
	return m.writeValues(ctx, et, updates, true)
}

// BatchInsertValues upserts attribute values without touching entity
// timestamps. Existing rows for the same (entity, attribute) pair are
// overwritten.
func (m *Manager) BatchInsertValues(ctx context.Context, et *types.EntityType, inserts map[int64]map[string]any) (*Result, error) {
	return m.writeValues(ctx, et, inserts, false)
}

func (m *Manager) writeValues(ctx context.Context, et *types.EntityType, byEntity map[int64]map[string]any, touch bool) (*Result, error) {
	result := &Result{}
	if len(byEntity) == 0 {
		return result, nil
	}
	if err := m.guardSize(len(byEntity)); err != nil {
		return nil, err
	}

	verrs := errors.NewValidationErrors()
	ids := make([]int64, 0, len(byEntity))
	i := 0
	for id, vals := range byEntity {
		ids = append(ids, id)
		m.validateItem(verrs, et, i, vals, false)
		i++
	}
	if err := verrs.ErrOrNil(); err != nil {
		return nil, err
	}

	err := m.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		return m.eachChunk(len(ids), func(lo, hi int) error {
			for _, id := range ids[lo:hi] {
				if touch {
					if err := m.entityStore.Touch(ctx, tx, et, id, now); err != nil {
						return err
					}
				}
				if err := m.valueStore.SaveValues(ctx, tx, et, id, byEntity[id]); err != nil {
					return err
				}
				result.EntityIDs = append(result.EntityIDs, id)
				result.Updated++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	m.invalidateType(ctx, et.Code)
	m.logDone("Batch value write", et.Code, result.Updated)
	return result, nil
}

// BatchDelete removes entities. A hard delete removes the value rows
// from every backend table before the entity rows; a soft delete removes
// only the entity rows and leaves value cleanup to the schema's cascade.
func (m *Manager) BatchDelete(ctx context.Context, et *types.EntityType, entityIDs []int64, hard bool) (*Result, error) {
	result := &Result{}
	if len(entityIDs) == 0 {
		return result, nil
	}
	if err := m.guardSize(len(entityIDs)); err != nil {
		return nil, err
	}

	err := m.inTx(ctx, func(tx *sql.Tx) error {
		return m.eachChunk(len(entityIDs), func(lo, hi int) error {
			for _, id := range entityIDs[lo:hi] {
				if hard {
					if err := m.valueStore.DeleteAllValues(ctx, tx, et, id); err != nil {
						return err
					}
				}
				if err := m.entityStore.Delete(ctx, tx, et, id); err != nil {
					return err
				}
				result.EntityIDs = append(result.EntityIDs, id)
				result.Deleted++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	m.invalidateType(ctx, et.Code)
	m.logDone("Batch delete", et.Code, result.Deleted)
	return result, nil
}

// BatchCopy duplicates existing entities with all their attribute
// values. Source ids that do not exist fail the whole call.
func (m *Manager) BatchCopy(ctx context.Context, et *types.EntityType, sourceIDs []int64) (*Result, error) {
	result := &Result{}
	if len(sourceIDs) == 0 {
		return result, nil
	}
	if err := m.guardSize(len(sourceIDs)); err != nil {
		return nil, err
	}

	rows, err := m.entityStore.Select(ctx, et, sourceIDs)
	if err != nil {
		return nil, err
	}
	verrs := errors.NewValidationErrors()
	for _, id := range sourceIDs {
		if _, ok := rows[id]; !ok {
			verrs.Add("source", "entity %d does not exist", id)
		}
	}
	if err := verrs.ErrOrNil(); err != nil {
		return nil, err
	}

	valsByID, err := m.valueStore.LoadMultiple(ctx, et, sourceIDs)
	if err != nil {
		return nil, err
	}

	err = m.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		return m.eachChunk(len(sourceIDs), func(lo, hi int) error {
			for _, sourceID := range sourceIDs[lo:hi] {
				id, err := m.entityStore.Insert(ctx, tx, et, now)
				if err != nil {
					return err
				}
				if vals := valsByID[sourceID]; len(vals) > 0 {
					if err := m.valueStore.SaveValues(ctx, tx, et, id, vals); err != nil {
						return err
					}
				}
				result.EntityIDs = append(result.EntityIDs, id)
				result.Created++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	m.invalidateType(ctx, et.Code)
	m.logDone("Batch copy", et.Code, result.Created)
	return result, nil
}

// guardSize rejects batches over the configured maximum before any
// write happens.
func (m *Manager) guardSize(n int) error {
	if n > m.maxBatchSize {
		verrs := errors.NewValidationErrors()
		verrs.Add("batch", "size %d exceeds maximum %d", n, m.maxBatchSize)
		return verrs.ErrOrNil()
	}
	return nil
}

// validateItem checks one item's values against the type's attributes,
// keying messages by item index and attribute code.
func (m *Manager) validateItem(verrs *errors.ValidationErrors, et *types.EntityType, index int, vals map[string]any, requireRequired bool) {
	for code, v := range vals {
		attr, ok := et.Attribute(code)
		if !ok {
			verrs.Add(itemField(index, code), "unknown attribute")
			continue
		}
		if err := m.transformer.Validate(attr.Backend, v); err != nil {
			verrs.Add(itemField(index, code), "%s", err.Error())
		}
	}
	if !requireRequired {
		return
	}
	for _, attr := range et.Attributes.All() {
		if !attr.Required {
			continue
		}
		if v, ok := vals[attr.Code]; !ok || v == nil {
			verrs.Add(itemField(index, attr.Code), "value is required")
		}
	}
}

func itemField(index int, code string) string {
	return "item[" + strconv.Itoa(index) + "]." + code
}

// inTx runs fn inside one transaction covering the whole batch call.
func (m *Manager) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin batch transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit batch transaction")
}

// eachChunk invokes fn over [lo, hi) windows of chunkSize.
func (m *Manager) eachChunk(n int, fn func(lo, hi int) error) error {
	for lo := 0; lo < n; lo += m.chunkSize {
		hi := lo + m.chunkSize
		if hi > n {
			hi = n
		}
		if err := fn(lo, hi); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) invalidateType(ctx context.Context, typeCode string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.InvalidateEntityType(ctx, typeCode); err != nil && m.logger != nil {
		m.logger.Warnw("Cache invalidation failed after batch", "entity_type", typeCode, "error", err)
	}
}

func (m *Manager) logDone(op, typeCode string, count int) {
	if m.logger != nil {
		m.logger.Infow(op+" committed", "entity_type", typeCode, "count", count, "chunk_size", m.chunkSize)
	}
}
