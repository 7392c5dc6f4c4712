package storage

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/eav/values"
	"github.com/andrfilipenk/new-sub004/errors"
)

// ValueStore maps (entity_id, attribute_id) to rows in the per-backend-type
// value tables. Null values have no row: writing nil deletes, loading an
// absent row yields no map entry, keeping load and delete symmetric.
type ValueStore struct {
	db          *sql.DB
	prefix      string
	transformer *values.Transformer
	logger      *zap.SugaredLogger
}

// NewValueStore creates a value store for value tables named
// <prefix>_<backend_type>. logger may be nil.
func NewValueStore(db *sql.DB, prefix string, transformer *values.Transformer, logger *zap.SugaredLogger) *ValueStore {
	return &ValueStore{db: db, prefix: prefix, transformer: transformer, logger: logger}
}

// TablePrefix returns the configured value table prefix.
func (s *ValueStore) TablePrefix() string {
	return s.prefix
}

// LoadValues loads all attribute values of one entity, one query per
// backend-type table that the entity type declares attributes for.
func (s *ValueStore) LoadValues(ctx context.Context, et *types.EntityType, entityID int64) (map[string]any, error) {
	loaded, err := s.LoadMultiple(ctx, et, []int64{entityID})
	if err != nil {
		return nil, err
	}
	vals, ok := loaded[entityID]
	if !ok {
		return map[string]any{}, nil
	}
	return vals, nil
}

// LoadMultiple loads attribute values for many entities, minimizing round
// trips: one query per backend-type table with entity_id IN (...).
func (s *ValueStore) LoadMultiple(ctx context.Context, et *types.EntityType, entityIDs []int64) (map[int64]map[string]any, error) {
	out := make(map[int64]map[string]any, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}

	idArgs := make([]any, len(entityIDs))
	for i, id := range entityIDs {
		idArgs[i] = id
	}

	for backend, attrs := range et.Attributes.ByBackend() {
		codeByID := make(map[int64]string, len(attrs))
		attrArgs := make([]any, 0, len(attrs))
		for _, attr := range attrs {
			codeByID[attr.AttributeID] = attr.Code
			attrArgs = append(attrArgs, attr.AttributeID)
		}

		query := "SELECT entity_id, attribute_id, value FROM " + backend.ValueTable(s.prefix) +
			" WHERE entity_id IN (" + placeholders(len(idArgs)) + ")" +
			" AND attribute_id IN (" + placeholders(len(attrArgs)) + ")"
		args := append(append([]any{}, idArgs...), attrArgs...)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s values of type %s", backend, et.Code)
		}

		for rows.Next() {
			var entityID, attrID int64
			var stored sql.NullString
			if err := rows.Scan(&entityID, &attrID, &stored); err != nil {
				rows.Close()
				return nil, errors.Wrapf(err, "scan %s value", backend)
			}
			if !stored.Valid {
				continue
			}
			semantic, err := s.transformer.FromStorage(backend, stored.String)
			if err != nil {
				rows.Close()
				return nil, errors.Wrapf(err, "decode %s value of attribute %s", backend, codeByID[attrID])
			}
			if out[entityID] == nil {
				out[entityID] = make(map[string]any)
			}
			out[entityID][codeByID[attrID]] = semantic
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, errors.Wrapf(err, "iterate %s values", backend)
		}
		rows.Close()
	}

	return out, nil
}

// SaveValues writes attribute values for one entity. Non-nil values are
// upserted; nil values delete the underlying row. Values must already be
// validated by the caller; transformation failures here abort the write.
func (s *ValueStore) SaveValues(ctx context.Context, q DBTX, et *types.EntityType, entityID int64, vals map[string]any) error {
	for code, v := range vals {
		attr, ok := et.Attribute(code)
		if !ok {
			return errors.Newf("unknown attribute %q on entity type %q", code, et.Code)
		}
		table := attr.Backend.ValueTable(s.prefix)

		if v == nil {
			if _, err := q.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE entity_id = ? AND attribute_id = ?",
				entityID, attr.AttributeID); err != nil {
				return errors.Wrapf(err, "clear value %s.%s", et.Code, code)
			}
			continue
		}

		stored, err := s.transformer.ToStorage(attr.Backend, v)
		if err != nil {
			return errors.Wrapf(err, "transform value %s.%s", et.Code, code)
		}
		if _, err := q.ExecContext(ctx,
			"INSERT INTO "+table+" (entity_id, attribute_id, value) VALUES (?, ?, ?) "+
				"ON CONFLICT(entity_id, attribute_id) DO UPDATE SET value = excluded.value",
			entityID, attr.AttributeID, stored); err != nil {
			return errors.Wrapf(err, "save value %s.%s", et.Code, code)
		}
	}
	return nil
}

// DeleteValues removes the value rows for the given attribute codes.
func (s *ValueStore) DeleteValues(ctx context.Context, q DBTX, et *types.EntityType, entityID int64, codes []string) error {
	for _, code := range codes {
		attr, ok := et.Attribute(code)
		if !ok {
			return errors.Newf("unknown attribute %q on entity type %q", code, et.Code)
		}
		if _, err := q.ExecContext(ctx,
			"DELETE FROM "+attr.Backend.ValueTable(s.prefix)+" WHERE entity_id = ? AND attribute_id = ?",
			entityID, attr.AttributeID); err != nil {
			return errors.Wrapf(err, "delete value %s.%s", et.Code, code)
		}
	}
	return nil
}

// DeleteAllValues removes every value row of an entity across all value
// tables, so a hard delete leaves no orphaned values behind.
func (s *ValueStore) DeleteAllValues(ctx context.Context, q DBTX, et *types.EntityType, entityID int64) error {
	for _, backend := range types.AllBackendTypes {
		if _, err := q.ExecContext(ctx,
			"DELETE FROM "+backend.ValueTable(s.prefix)+" WHERE entity_id = ?",
			entityID); err != nil {
			return errors.Wrapf(err, "delete %s values of entity %d", backend, entityID)
		}
	}
	return nil
}

// ValueExistsForOther reports whether another entity already stores the
// given value for a unique attribute.
func (s *ValueStore) ValueExistsForOther(ctx context.Context, q DBTX, attr *types.Attribute, v any, excludeEntityID int64) (bool, error) {
	stored, err := s.transformer.ToStorage(attr.Backend, v)
	if err != nil {
		return false, errors.Wrapf(err, "transform uniqueness probe for %s", attr.Code)
	}
	var exists bool
	err = q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM "+attr.Backend.ValueTable(s.prefix)+
			" WHERE attribute_id = ? AND value = ? AND entity_id != ?)",
		attr.AttributeID, stored, excludeEntityID).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "uniqueness check for %s", attr.Code)
	}
	return exists, nil
}
