package migration

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/errors"
)

// Executor applies and reverts migrations. Each direction runs in one
// transaction; applied migrations are recorded in eav_migrations.
type Executor struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewExecutor creates an executor. logger may be nil.
func NewExecutor(db *sql.DB, logger *zap.SugaredLogger) *Executor {
	return &Executor{db: db, logger: logger}
}

// Apply runs the migration's forward statements and records it.
// Applying an already-recorded migration is an error.
func (e *Executor) Apply(ctx context.Context, m *Migration) error {
	applied, err := e.IsApplied(ctx, m.Name)
	if err != nil {
		return err
	}
	if applied {
		return errors.Newf("migration %s is already applied", m.Name)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin migration transaction")
	}
	defer tx.Rollback()

	for _, stmt := range m.UpSQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "apply %s: %s", m.Name, firstLine(stmt))
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO eav_migrations (name, entity_type, applied_at) VALUES (?, ?, ?)",
		m.Name, m.EntityType, time.Now().UTC()); err != nil {
		return errors.Wrapf(err, "record %s", m.Name)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", m.Name)
	}

	if e.logger != nil {
		e.logger.Infow("Applied migration", "migration", m.Name, "entity_type", m.EntityType, "statements", len(m.UpSQL))
	}
	return nil
}

// Revert runs the migration's down statements in reverse order and
// removes its record. Irreversible migrations are refused.
func (e *Executor) Revert(ctx context.Context, m *Migration) error {
	if !m.Reversible() {
		return errors.Newf("migration %s is not reversible", m.Name)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin revert transaction")
	}
	defer tx.Rollback()

	for i := len(m.DownSQL) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, m.DownSQL[i]); err != nil {
			return errors.Wrapf(err, "revert %s: %s", m.Name, firstLine(m.DownSQL[i]))
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM eav_migrations WHERE name = ?", m.Name); err != nil {
		return errors.Wrapf(err, "unrecord %s", m.Name)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit revert of %s", m.Name)
	}

	if e.logger != nil {
		e.logger.Infow("Reverted migration", "migration", m.Name, "entity_type", m.EntityType)
	}
	return nil
}

// IsApplied reports whether a migration name is recorded.
func (e *Executor) IsApplied(ctx context.Context, name string) (bool, error) {
	var n int
	err := e.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM eav_migrations WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "check migration %s", name)
	}
	return n > 0, nil
}

// AppliedRecord is one row of the migration log.
type AppliedRecord struct {
	Name       string    `json:"name"`
	EntityType string    `json:"entity_type"`
	AppliedAt  time.Time `json:"applied_at"`
}

// Applied lists recorded migrations, oldest first. An empty typeCode
// lists all entity types.
func (e *Executor) Applied(ctx context.Context, typeCode string) ([]AppliedRecord, error) {
	query := "SELECT name, entity_type, applied_at FROM eav_migrations"
	var args []any
	if typeCode != "" {
		query += " WHERE entity_type = ?"
		args = append(args, typeCode)
	}
	query += " ORDER BY applied_at, name"

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list applied migrations")
	}
	defer rows.Close()

	var out []AppliedRecord
	for rows.Next() {
		var rec AppliedRecord
		if err := rows.Scan(&rec.Name, &rec.EntityType, &rec.AppliedAt); err != nil {
			return nil, errors.Wrap(err, "scan migration record")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
