package storage

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/errors"
)

// EntityStore persists entity rows in an entity type's backing table.
type EntityStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewEntityStore creates an entity store. logger may be nil.
func NewEntityStore(db *sql.DB, logger *zap.SugaredLogger) *EntityStore {
	return &EntityStore{db: db, logger: logger}
}

// Insert creates an entity row and returns its id. now is stored for both
// created_at and updated_at.
func (s *EntityStore) Insert(ctx context.Context, q DBTX, et *types.EntityType, now time.Time) (int64, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO "+et.EntityTable+" (entity_type_id, created_at, updated_at) VALUES (?, ?, ?)",
		et.TypeID, now.UTC(), now.UTC())
	if err != nil {
		return 0, errors.Wrapf(err, "insert entity of type %s", et.Code)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "entity id")
	}
	return id, nil
}

// Touch updates an entity row's updated_at timestamp.
func (s *EntityStore) Touch(ctx context.Context, q DBTX, et *types.EntityType, entityID int64, now time.Time) error {
	res, err := q.ExecContext(ctx,
		"UPDATE "+et.EntityTable+" SET updated_at = ? WHERE entity_id = ? AND entity_type_id = ?",
		now.UTC(), entityID, et.TypeID)
	if err != nil {
		return errors.Wrapf(err, "touch entity %d of type %s", entityID, et.Code)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.NewNotFoundError("entity %d of type %s", entityID, et.Code)
	}
	return nil
}

// Delete removes an entity row.
func (s *EntityStore) Delete(ctx context.Context, q DBTX, et *types.EntityType, entityID int64) error {
	res, err := q.ExecContext(ctx,
		"DELETE FROM "+et.EntityTable+" WHERE entity_id = ? AND entity_type_id = ?",
		entityID, et.TypeID)
	if err != nil {
		return errors.Wrapf(err, "delete entity %d of type %s", entityID, et.Code)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.NewNotFoundError("entity %d of type %s", entityID, et.Code)
	}
	return nil
}

// Exists reports whether an entity row exists, returning its timestamps.
func (s *EntityStore) Exists(ctx context.Context, et *types.EntityType, entityID int64) (bool, time.Time, time.Time, error) {
	var createdAt, updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT created_at, updated_at FROM "+et.EntityTable+" WHERE entity_id = ? AND entity_type_id = ?",
		entityID, et.TypeID).Scan(&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return false, time.Time{}, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, time.Time{}, errors.Wrapf(err, "check entity %d of type %s", entityID, et.Code)
	}
	return true, createdAt, updatedAt, nil
}

// EntityRow is one entity table row.
type EntityRow struct {
	EntityID  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Select returns the rows for the given entity ids in one query. Missing
// ids are simply absent from the result.
func (s *EntityStore) Select(ctx context.Context, et *types.EntityType, entityIDs []int64) (map[int64]EntityRow, error) {
	out := make(map[int64]EntityRow, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(entityIDs)+1)
	args = append(args, et.TypeID)
	for _, id := range entityIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT entity_id, created_at, updated_at FROM "+et.EntityTable+
			" WHERE entity_type_id = ? AND entity_id IN ("+placeholders(len(entityIDs))+")",
		args...)
	if err != nil {
		return nil, errors.Wrapf(err, "select entities of type %s", et.Code)
	}
	defer rows.Close()

	for rows.Next() {
		var row EntityRow
		if err := rows.Scan(&row.EntityID, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan entity row")
		}
		out[row.EntityID] = row
	}
	return out, rows.Err()
}

// Count returns the number of entities of the given type.
func (s *EntityStore) Count(ctx context.Context, et *types.EntityType) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+et.EntityTable+" WHERE entity_type_id = ?", et.TypeID).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "count entities of type %s", et.Code)
	}
	return count, nil
}
