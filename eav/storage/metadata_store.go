package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/errors"
)

// Query constants
const (
	entityTypeInsertQuery = `
		INSERT INTO eav_entity_type (type_code, label, entity_table, storage)
		VALUES (?, ?, ?, ?)`

	entityTypeSelectQuery = `
		SELECT type_id, type_code, label, entity_table, storage
		FROM eav_entity_type WHERE type_code = ?`

	entityTypeListQuery = `
		SELECT type_code FROM eav_entity_type ORDER BY type_code`

	attributeInsertQuery = `
		INSERT INTO eav_attribute (entity_type_id, attribute_code, label, backend_type,
			frontend_input, is_required, is_unique, is_searchable, is_filterable,
			default_value, validation, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	attributeSelectQuery = `
		SELECT attribute_id, attribute_code, label, backend_type, frontend_input,
			is_required, is_unique, is_searchable, is_filterable,
			default_value, validation, sort_order
		FROM eav_attribute WHERE entity_type_id = ?
		ORDER BY sort_order, attribute_id`
)

// MetadataStore persists entity-type and attribute declarations.
type MetadataStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewMetadataStore creates a metadata store. logger may be nil.
func NewMetadataStore(db *sql.DB, logger *zap.SugaredLogger) *MetadataStore {
	return &MetadataStore{db: db, logger: logger}
}

// SaveEntityType persists a declared entity type and its attributes,
// assigning numeric ids on the passed structs. Declarations are validated
// before any row is written.
func (s *MetadataStore) SaveEntityType(ctx context.Context, et *types.EntityType) error {
	if err := et.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin metadata tx")
	}

	res, err := tx.ExecContext(ctx, entityTypeInsertQuery, et.Code, et.Label, et.EntityTable, string(et.Storage))
	if err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "insert entity type %s", et.Code)
	}
	typeID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "entity type id")
	}

	attrIDs := make([]int64, 0, et.Attributes.Len())
	for _, attr := range et.Attributes.All() {
		validation, err := json.Marshal(attr.Validation)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "marshal validation rules for %s", attr.Code)
		}
		res, err := tx.ExecContext(ctx, attributeInsertQuery,
			typeID, attr.Code, attr.Label, string(attr.Backend), attr.FrontendInput,
			attr.Required, attr.Unique, attr.Searchable, attr.Filterable,
			attr.DefaultValue, string(validation), attr.SortOrder)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert attribute %s.%s", et.Code, attr.Code)
		}
		attrID, err := res.LastInsertId()
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "attribute id for %s", attr.Code)
		}
		attrIDs = append(attrIDs, attrID)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit metadata tx")
	}

	// Assign ids only after the commit succeeded.
	et.TypeID = typeID
	for i, attr := range et.Attributes.All() {
		attr.AttributeID = attrIDs[i]
	}

	if s.logger != nil {
		s.logger.Infow("Entity type registered",
			"entity_type", et.Code,
			"type_id", typeID,
			"attributes", et.Attributes.Len(),
		)
	}
	return nil
}

// LoadEntityType hydrates an entity type and its attributes from the
// database. Returns errors.ErrNotFound when the code is unknown.
func (s *MetadataStore) LoadEntityType(ctx context.Context, code string) (*types.EntityType, error) {
	et := &types.EntityType{}
	var storage string
	err := s.db.QueryRowContext(ctx, entityTypeSelectQuery, code).
		Scan(&et.TypeID, &et.Code, &et.Label, &et.EntityTable, &storage)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("entity type %q", code)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load entity type %s", code)
	}
	et.Storage = types.StorageStrategy(storage)

	rows, err := s.db.QueryContext(ctx, attributeSelectQuery, et.TypeID)
	if err != nil {
		return nil, errors.Wrapf(err, "load attributes of %s", code)
	}
	defer rows.Close()

	var attrs []*types.Attribute
	for rows.Next() {
		attr := &types.Attribute{}
		var backend, validation string
		var defaultValue sql.NullString
		if err := rows.Scan(&attr.AttributeID, &attr.Code, &attr.Label, &backend,
			&attr.FrontendInput, &attr.Required, &attr.Unique, &attr.Searchable,
			&attr.Filterable, &defaultValue, &validation, &attr.SortOrder); err != nil {
			return nil, errors.Wrapf(err, "scan attribute of %s", code)
		}
		attr.Backend = types.BackendType(backend)
		attr.DefaultValue = defaultValue.String
		if validation != "" && validation != "null" {
			if err := json.Unmarshal([]byte(validation), &attr.Validation); err != nil {
				return nil, errors.Wrapf(err, "parse validation rules for %s.%s", code, attr.Code)
			}
		}
		attrs = append(attrs, attr)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate attributes of %s", code)
	}

	collection, err := types.NewAttributeCollection(attrs...)
	if err != nil {
		return nil, err
	}
	et.Attributes = collection
	return et, nil
}

// ListEntityTypeCodes returns all registered entity type codes, sorted.
func (s *MetadataStore) ListEntityTypeCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, entityTypeListQuery)
	if err != nil {
		return nil, errors.Wrap(err, "list entity types")
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, errors.Wrap(err, "scan entity type code")
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
