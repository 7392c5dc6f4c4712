package eav

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/storage"
	"github.com/andrfilipenk/new-sub004/eav/types"
)

// Registry caches entity type metadata loaded from the metadata store.
// Metadata changes rarely; a loaded type stays cached until Invalidate
// is called (the sync engine does this after applying schema changes).
// Safe for concurrent use.
type Registry struct {
	store  *storage.MetadataStore
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	byCode map[string]*types.EntityType
}

// NewRegistry creates a metadata registry. logger may be nil.
func NewRegistry(store *storage.MetadataStore, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
		byCode: make(map[string]*types.EntityType),
	}
}

// Get returns the entity type for code, loading it on first use.
func (r *Registry) Get(ctx context.Context, code string) (*types.EntityType, error) {
	r.mu.RLock()
	et, ok := r.byCode[code]
	r.mu.RUnlock()
	if ok {
		return et, nil
	}

	et, err := r.store.LoadEntityType(ctx, code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// Another goroutine may have loaded it meanwhile; keep the first copy
	// so all callers share one *EntityType.
	if cached, ok := r.byCode[code]; ok {
		et = cached
	} else {
		r.byCode[code] = et
	}
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Debugw("Loaded entity type metadata", "entity_type", code)
	}
	return et, nil
}

// Register stores a new entity type definition and caches it.
func (r *Registry) Register(ctx context.Context, et *types.EntityType) error {
	if err := r.store.SaveEntityType(ctx, et); err != nil {
		return err
	}
	r.mu.Lock()
	r.byCode[et.Code] = et
	r.mu.Unlock()
	return nil
}

// Invalidate drops a cached type so the next Get reloads it. An empty
// code drops everything.
func (r *Registry) Invalidate(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code == "" {
		r.byCode = make(map[string]*types.EntityType)
		return
	}
	delete(r.byCode, code)
}

// Codes lists all registered entity type codes from storage.
func (r *Registry) Codes(ctx context.Context) ([]string, error) {
	return r.store.ListEntityTypeCodes(ctx)
}
