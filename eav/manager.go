// Package eav is the entry point of the entity engine. The Manager wires
// metadata, value storage, querying and caching behind a small CRUD
// surface; packages underneath it stay usable on their own.
package eav

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/cache"
	"github.com/andrfilipenk/new-sub004/eav/query"
	"github.com/andrfilipenk/new-sub004/eav/storage"
	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/eav/values"
	"github.com/andrfilipenk/new-sub004/errors"
)

// requestRow is one entry of the per-unit-of-work request cache: the
// loaded semantic values plus row timestamps, kept so a reload inside
// the same unit of work skips storage without sharing entity pointers.
type requestRow struct {
	createdAt time.Time
	updatedAt time.Time
	values    map[string]any
}

// entityPayload is the cross-request cache form of an entity. Values are
// kept in storage form so the JSON round trip cannot distort types.
type entityPayload struct {
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Values    map[string]string `json:"values"`
}

// Manager coordinates entity CRUD. The identity map and request cache
// are scoped to one logical unit of work; Manager instances must not be
// shared across concurrent units of work without calling NewUnitOfWork
// per unit (or constructing one Manager per unit).
type Manager struct {
	db          *sql.DB
	registry    *Registry
	entityStore *storage.EntityStore
	valueStore  *storage.ValueStore
	queryStore  *storage.QueryStore
	transformer *values.Transformer
	cache       *cache.Manager
	notifiers   []Notifier
	logger      *zap.SugaredLogger

	identity    map[string]*types.Entity
	requestRows map[string]requestRow
}

// NewManager creates an entity manager. cacheManager and logger may be
// nil; without a cache manager the cross-request tier is skipped.
func NewManager(db *sql.DB, tablePrefix string, maxJoins int, cacheManager *cache.Manager, logger *zap.SugaredLogger) *Manager {
	transformer := values.NewTransformer()
	optimizer := query.NewOptimizer(maxJoins, tablePrefix)
	return &Manager{
		db:          db,
		registry:    NewRegistry(storage.NewMetadataStore(db, logger), logger),
		entityStore: storage.NewEntityStore(db, logger),
		valueStore:  storage.NewValueStore(db, tablePrefix, transformer, logger),
		queryStore:  storage.NewQueryStore(db, optimizer, transformer, logger),
		transformer: transformer,
		cache:       cacheManager,
		logger:      logger,
		identity:    make(map[string]*types.Entity),
		requestRows: make(map[string]requestRow),
	}
}

// Registry exposes the metadata registry for schema tooling.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// RegisterNotifier adds a lifecycle observer. Not safe to call
// concurrently with entity operations.
func (m *Manager) RegisterNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// NewUnitOfWork discards the identity map and request cache. Call at
// the start of each logical unit of work (request, job, script run).
func (m *Manager) NewUnitOfWork() {
	m.identity = make(map[string]*types.Entity)
	m.requestRows = make(map[string]requestRow)
}

// Create returns a new unsaved entity of the given type.
func (m *Manager) Create(ctx context.Context, typeCode string) (*types.Entity, error) {
	et, err := m.registry.Get(ctx, typeCode)
	if err != nil {
		return nil, err
	}
	return types.NewEntity(et), nil
}

// Load returns the entity with the given id, consulting the identity
// map, then the request cache, then the cross-request cache, then
// storage. Caches are populated on miss.
func (m *Manager) Load(ctx context.Context, typeCode string, entityID int64) (*types.Entity, error) {
	et, err := m.registry.Get(ctx, typeCode)
	if err != nil {
		return nil, err
	}
	key := unitKey(typeCode, entityID)

	if e, ok := m.identity[key]; ok {
		return e, nil
	}

	if row, ok := m.requestRows[key]; ok {
		e := m.materialize(et, entityID, row)
		m.identity[key] = e
		m.notifyLoaded(ctx, e)
		return e, nil
	}

	if e, ok := m.loadFromCache(ctx, et, entityID); ok {
		m.notifyLoaded(ctx, e)
		return e, nil
	}

	exists, createdAt, updatedAt, err := m.entityStore.Exists(ctx, et, entityID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NewEntityError(errors.EntityNotFound, typeCode, entityID, errors.ErrNotFound)
	}
	vals, err := m.valueStore.LoadValues(ctx, et, entityID)
	if err != nil {
		return nil, err
	}

	row := requestRow{createdAt: createdAt, updatedAt: updatedAt, values: vals}
	e := m.materialize(et, entityID, row)
	m.remember(key, e, row)
	m.storeInCache(ctx, e)
	m.notifyLoaded(ctx, e)
	return e, nil
}

// LoadMultiple returns the entities with the given ids, batching value
// reads for ids not already cached. Missing ids are absent from the
// result, not an error.
func (m *Manager) LoadMultiple(ctx context.Context, typeCode string, entityIDs []int64) (map[int64]*types.Entity, error) {
	et, err := m.registry.Get(ctx, typeCode)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]*types.Entity, len(entityIDs))
	var missing []int64
	for _, id := range entityIDs {
		if e, ok := m.identity[unitKey(typeCode, id)]; ok {
			out[id] = e
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	rows, err := m.entityStore.Select(ctx, et, missing)
	if err != nil {
		return nil, err
	}
	found := make([]int64, 0, len(rows))
	for id := range rows {
		found = append(found, id)
	}
	valsByID, err := m.valueStore.LoadMultiple(ctx, et, found)
	if err != nil {
		return nil, err
	}

	for id, entityRow := range rows {
		row := requestRow{
			createdAt: entityRow.CreatedAt,
			updatedAt: entityRow.UpdatedAt,
			values:    valsByID[id],
		}
		if row.values == nil {
			row.values = make(map[string]any)
		}
		e := m.materialize(et, id, row)
		m.remember(unitKey(typeCode, id), e, row)
		m.storeInCache(ctx, e)
		m.notifyLoaded(ctx, e)
		out[id] = e
	}
	return out, nil
}

// Save persists the entity: insert when new, otherwise an update of the
// dirty attributes only. Validation runs before any write; caches are
// updated and invalidated only after the transaction committed.
func (m *Manager) Save(ctx context.Context, e *types.Entity) error {
	et := e.Type

	if err := m.validate(e); err != nil {
		return err
	}
	for _, n := range m.notifiers {
		if err := n.BeforeSave(ctx, e); err != nil {
			return err
		}
	}
	if !e.IsNew() && !e.IsDirty() {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewEntityError(errors.EntitySaveFailed, et.Code, e.EntityID, err)
	}
	defer tx.Rollback()

	if err := m.checkUnique(ctx, tx, e); err != nil {
		return err
	}

	now := time.Now().UTC()
	entityID := e.EntityID
	if e.IsNew() {
		entityID, err = m.entityStore.Insert(ctx, tx, et, now)
		if err != nil {
			return errors.NewEntityError(errors.EntitySaveFailed, et.Code, 0, err)
		}
		if err := m.valueStore.SaveValues(ctx, tx, et, entityID, e.Values()); err != nil {
			return errors.NewEntityError(errors.EntitySaveFailed, et.Code, entityID, err)
		}
	} else {
		if err := m.entityStore.Touch(ctx, tx, et, entityID, now); err != nil {
			return errors.NewEntityError(errors.EntitySaveFailed, et.Code, entityID, err)
		}
		dirty := make(map[string]any)
		for _, code := range e.DirtyAttributes() {
			v, ok := e.Get(code)
			if !ok {
				v = nil // unset attribute, deletes the value row
			}
			dirty[code] = v
		}
		if err := m.valueStore.SaveValues(ctx, tx, et, entityID, dirty); err != nil {
			return errors.NewEntityError(errors.EntitySaveFailed, et.Code, entityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewEntityError(errors.EntitySaveFailed, et.Code, entityID, err)
	}

	wasNew := e.IsNew()
	e.EntityID = entityID
	if wasNew {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.MarkClean()

	key := unitKey(et.Code, entityID)
	m.remember(key, e, requestRow{createdAt: e.CreatedAt, updatedAt: e.UpdatedAt, values: e.Values()})
	if err := m.invalidate(ctx, et.Code, entityID); err != nil {
		return err
	}

	if m.logger != nil {
		m.logger.Debugw("Saved entity", "entity_type", et.Code, "entity_id", entityID, "inserted", wasNew)
	}
	for _, n := range m.notifiers {
		n.AfterSave(ctx, e)
	}
	return nil
}

// Delete removes the entity and all its value rows. Deleting an entity
// that was never persisted is an error.
func (m *Manager) Delete(ctx context.Context, e *types.Entity) error {
	et := e.Type
	if e.IsNew() {
		return errors.NewEntityError(errors.EntityDeleteFailed, et.Code, 0,
			errors.Wrap(errors.ErrInvalidRequest, "entity was never persisted"))
	}
	for _, n := range m.notifiers {
		if err := n.BeforeDelete(ctx, e); err != nil {
			return err
		}
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewEntityError(errors.EntityDeleteFailed, et.Code, e.EntityID, err)
	}
	defer tx.Rollback()

	if err := m.valueStore.DeleteAllValues(ctx, tx, et, e.EntityID); err != nil {
		return errors.NewEntityError(errors.EntityDeleteFailed, et.Code, e.EntityID, err)
	}
	if err := m.entityStore.Delete(ctx, tx, et, e.EntityID); err != nil {
		if errors.IsNotFoundError(err) {
			return errors.NewEntityError(errors.EntityNotFound, et.Code, e.EntityID, err)
		}
		return errors.NewEntityError(errors.EntityDeleteFailed, et.Code, e.EntityID, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewEntityError(errors.EntityDeleteFailed, et.Code, e.EntityID, err)
	}

	key := unitKey(et.Code, e.EntityID)
	delete(m.identity, key)
	delete(m.requestRows, key)
	if err := m.invalidate(ctx, et.Code, e.EntityID); err != nil {
		return err
	}

	if m.logger != nil {
		m.logger.Debugw("Deleted entity", "entity_type", et.Code, "entity_id", e.EntityID)
	}
	for _, n := range m.notifiers {
		n.AfterDelete(ctx, e)
	}
	return nil
}

// Find returns entities matching the filters, in query order. The id
// list is cached per query; mutations through the manager invalidate it.
func (m *Manager) Find(ctx context.Context, typeCode string, filters []types.Filter, sorts []types.Sort, limit, offset int) ([]*types.Entity, error) {
	et, err := m.registry.Get(ctx, typeCode)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if m.cache != nil {
		key := m.cache.QueryKey(cache.HashQuery("find", typeCode, filters, sorts, limit, offset))
		err = m.cache.Remember(ctx, key, 0, &ids, func(ctx context.Context) (any, error) {
			return m.queryStore.FindIDs(ctx, et, filters, sorts, limit, offset)
		})
	} else {
		ids, err = m.queryStore.FindIDs(ctx, et, filters, sorts, limit, offset)
	}
	if err != nil {
		return nil, err
	}

	byID, err := m.LoadMultiple(ctx, typeCode, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Count returns the number of entities matching the filters, cached the
// same way as Find.
func (m *Manager) Count(ctx context.Context, typeCode string, filters []types.Filter) (int64, error) {
	et, err := m.registry.Get(ctx, typeCode)
	if err != nil {
		return 0, err
	}
	if m.cache == nil {
		return m.queryStore.Count(ctx, et, filters)
	}

	var count int64
	key := m.cache.QueryKey(cache.HashQuery("count", typeCode, filters))
	err = m.cache.Remember(ctx, key, 0, &count, func(ctx context.Context) (any, error) {
		return m.queryStore.Count(ctx, et, filters)
	})
	return count, err
}

// validate checks every set value against its backend type and, for new
// entities, that required attributes are present.
func (m *Manager) validate(e *types.Entity) error {
	et := e.Type
	verrs := errors.NewValidationErrors()

	for code, v := range e.Values() {
		attr, ok := et.Attribute(code)
		if !ok {
			verrs.Add(code, "unknown attribute")
			continue
		}
		if err := m.transformer.Validate(attr.Backend, v); err != nil {
			verrs.Add(code, "%s", err.Error())
		}
	}
	if e.IsNew() {
		for _, attr := range et.Attributes.All() {
			if !attr.Required {
				continue
			}
			if v, ok := e.Get(attr.Code); !ok || v == nil {
				verrs.Add(attr.Code, "value is required")
			}
		}
	}
	return verrs.ErrOrNil()
}

// checkUnique verifies unique attributes inside the save transaction so
// the existence check and the write see the same snapshot.
func (m *Manager) checkUnique(ctx context.Context, tx *sql.Tx, e *types.Entity) error {
	verrs := errors.NewValidationErrors()
	for _, attr := range e.Type.Attributes.All() {
		if !attr.Unique {
			continue
		}
		v, ok := e.Get(attr.Code)
		if !ok || v == nil {
			continue
		}
		taken, err := m.valueStore.ValueExistsForOther(ctx, tx, attr, v, e.EntityID)
		if err != nil {
			return err
		}
		if taken {
			verrs.Add(attr.Code, "value is already in use")
		}
	}
	return verrs.ErrOrNil()
}

// materialize builds a fresh entity from a loaded row. Every caller gets
// its own values map; only the identity map shares pointers.
func (m *Manager) materialize(et *types.EntityType, entityID int64, row requestRow) *types.Entity {
	e := types.NewEntity(et)
	e.EntityID = entityID
	e.CreatedAt = row.createdAt
	e.UpdatedAt = row.updatedAt
	for code, v := range row.values {
		e.SetLoaded(code, v)
	}
	return e
}

// remember stores the entity and its row in the unit-of-work caches.
func (m *Manager) remember(key string, e *types.Entity, row requestRow) {
	m.identity[key] = e
	copied := make(map[string]any, len(row.values))
	for code, v := range row.values {
		copied[code] = v
	}
	m.requestRows[key] = requestRow{createdAt: row.createdAt, updatedAt: row.updatedAt, values: copied}
}

// loadFromCache tries the cross-request cache. Failures degrade to a
// miss; the durable cache is best-effort on the read side.
func (m *Manager) loadFromCache(ctx context.Context, et *types.EntityType, entityID int64) (*types.Entity, bool) {
	if m.cache == nil {
		return nil, false
	}
	var payload entityPayload
	found, err := m.cache.Get(ctx, m.cache.EntityKey(et.Code, entityID), &payload)
	if err != nil || !found {
		if err != nil && m.logger != nil {
			m.logger.Warnw("Cache read failed", "entity_type", et.Code, "entity_id", entityID, "error", err)
		}
		return nil, false
	}

	vals := make(map[string]any, len(payload.Values))
	for code, stored := range payload.Values {
		attr, ok := et.Attribute(code)
		if !ok {
			return nil, false // stale payload from an older schema
		}
		v, err := m.transformer.FromStorage(attr.Backend, stored)
		if err != nil {
			return nil, false
		}
		vals[code] = v
	}

	row := requestRow{createdAt: payload.CreatedAt, updatedAt: payload.UpdatedAt, values: vals}
	e := m.materialize(et, entityID, row)
	m.remember(unitKey(et.Code, entityID), e, row)
	return e, true
}

// storeInCache writes the entity into the cross-request cache in storage
// form. Best-effort: failures are logged, never surfaced.
func (m *Manager) storeInCache(ctx context.Context, e *types.Entity) {
	if m.cache == nil {
		return
	}
	payload := entityPayload{
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		Values:    make(map[string]string),
	}
	for code, v := range e.Values() {
		if v == nil {
			continue
		}
		attr, ok := e.Type.Attribute(code)
		if !ok {
			continue
		}
		stored, err := m.transformer.ToStorage(attr.Backend, v)
		if err != nil {
			return
		}
		payload.Values[code] = stored
	}
	if err := m.cache.Set(ctx, m.cache.EntityKey(e.Type.Code, e.EntityID), payload, 0); err != nil && m.logger != nil {
		m.logger.Warnw("Cache write failed", "entity_type", e.Type.Code, "entity_id", e.EntityID, "error", err)
	}
}

// invalidate drops cross-request cache entries after a committed
// mutation. A stale read after a committed write is a correctness bug,
// so invalidation failure is surfaced even though the write committed.
func (m *Manager) invalidate(ctx context.Context, typeCode string, entityID int64) error {
	if m.cache == nil {
		return nil
	}
	if err := m.cache.InvalidateEntity(ctx, typeCode, entityID); err != nil {
		return errors.Wrapf(err, "invalidate cache for %s/%d after committed write", typeCode, entityID)
	}
	return nil
}

func (m *Manager) notifyLoaded(ctx context.Context, e *types.Entity) {
	for _, n := range m.notifiers {
		n.AfterLoad(ctx, e)
	}
}

func unitKey(typeCode string, entityID int64) string {
	return typeCode + ":" + strconv.FormatInt(entityID, 10)
}
