package types

import (
	"reflect"
	"sort"
	"time"

	"github.com/andrfilipenk/new-sub004/errors"
)

// Entity is one instance of an EntityType. An EntityID of 0 means the
// entity is new and has never been persisted. Attribute writes go through
// Set so unknown codes fail instead of silently no-oping, and the dirty
// set tracks which codes changed since the last clean mark.
type Entity struct {
	Type      *EntityType
	EntityID  int64
	CreatedAt time.Time
	UpdatedAt time.Time

	values map[string]any
	dirty  map[string]struct{}
}

// NewEntity creates an unsaved entity of the given type.
func NewEntity(et *EntityType) *Entity {
	return &Entity{
		Type:   et,
		values: make(map[string]any),
		dirty:  make(map[string]struct{}),
	}
}

// IsNew reports whether the entity has never been persisted.
func (e *Entity) IsNew() bool {
	return e.EntityID == 0
}

// Get returns the value for an attribute code.
func (e *Entity) Get(code string) (any, bool) {
	v, ok := e.values[code]
	return v, ok
}

// Set stores a value for an attribute code and marks it dirty. Setting a
// value equal to the current one does not re-dirty the attribute.
// Unknown attribute codes are an error.
func (e *Entity) Set(code string, value any) error {
	if _, ok := e.Type.Attribute(code); !ok {
		return errors.Newf("unknown attribute %q on entity type %q", code, e.Type.Code)
	}

	current, exists := e.values[code]
	if exists && valuesEqual(current, value) {
		return nil
	}

	e.values[code] = value
	e.dirty[code] = struct{}{}
	return nil
}

// Unset removes a value and marks the attribute dirty, so the next save
// deletes its value row.
func (e *Entity) Unset(code string) error {
	if _, ok := e.Type.Attribute(code); !ok {
		return errors.Newf("unknown attribute %q on entity type %q", code, e.Type.Code)
	}
	if _, exists := e.values[code]; !exists {
		return nil
	}
	delete(e.values, code)
	e.dirty[code] = struct{}{}
	return nil
}

// Values returns a copy of the attribute-code → value map.
func (e *Entity) Values() map[string]any {
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// SetLoaded stores a value without dirtying. Used by storage hydration.
func (e *Entity) SetLoaded(code string, value any) {
	e.values[code] = value
}

// IsDirty reports whether any attribute changed since the last clean mark.
func (e *Entity) IsDirty() bool {
	return len(e.dirty) > 0
}

// DirtyAttributes returns the changed attribute codes, sorted.
func (e *Entity) DirtyAttributes() []string {
	codes := make([]string, 0, len(e.dirty))
	for code := range e.dirty {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// MarkClean clears the dirty set. Called after a confirmed persist.
func (e *Entity) MarkClean() {
	e.dirty = make(map[string]struct{})
}

func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}
