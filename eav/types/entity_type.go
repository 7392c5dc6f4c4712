package types

import (
	"github.com/andrfilipenk/new-sub004/errors"
)

// StorageStrategy selects how an entity type persists its attributes.
type StorageStrategy string

const (
	// StorageEAV stores attribute values as rows in per-backend-type
	// value tables.
	StorageEAV StorageStrategy = "eav"
	// StorageFlat stores attributes as real columns on the entity table.
	StorageFlat StorageStrategy = "flat"
)

// EntityType declares a dynamic entity type and its attribute set.
type EntityType struct {
	TypeID      int64                `db:"type_id" json:"type_id,omitempty"`
	Code        string               `db:"type_code" json:"code"`
	Label       string               `db:"label" json:"label,omitempty"`
	EntityTable string               `db:"entity_table" json:"entity_table,omitempty"`
	Storage     StorageStrategy      `db:"storage" json:"storage,omitempty"`
	Attributes  *AttributeCollection `json:"attributes,omitempty"`
}

// NewEntityType builds a validated entity type with defaults applied
// (entity table "eav_entity", storage "eav").
func NewEntityType(code, label string, attrs ...*Attribute) (*EntityType, error) {
	collection, err := NewAttributeCollection(attrs...)
	if err != nil {
		return nil, err
	}
	et := &EntityType{
		Code:        code,
		Label:       label,
		EntityTable: "eav_entity",
		Storage:     StorageEAV,
		Attributes:  collection,
	}
	if err := et.Validate(); err != nil {
		return nil, err
	}
	return et, nil
}

// Validate checks the declaration. Called at configuration load time.
func (et *EntityType) Validate() error {
	if et.Code == "" {
		return errors.NewConfigurationError("entity_type", "type code must not be empty")
	}
	if et.EntityTable == "" {
		return errors.NewConfigurationError(et.Code, "entity table must not be empty")
	}
	switch et.Storage {
	case StorageEAV, StorageFlat:
	default:
		return errors.NewConfigurationError(et.Code, "unknown storage strategy %q", et.Storage)
	}
	if et.Attributes == nil {
		return errors.NewConfigurationError(et.Code, "attribute collection must not be nil")
	}
	return nil
}

// Attribute returns the attribute with the given code.
func (et *EntityType) Attribute(code string) (*Attribute, bool) {
	return et.Attributes.Get(code)
}
