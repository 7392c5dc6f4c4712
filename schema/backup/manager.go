// Package backup writes point-in-time snapshots of an entity type's
// tables to the filesystem and restores them. Backups gate destructive
// schema synchronization.
package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/errors"
)

// Kind selects what a backup captures.
type Kind string

const (
	KindSchema Kind = "schema"
	KindData   Kind = "data"
	KindFull   Kind = "full"
)

// ParseKind validates a backup kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSchema, KindData, KindFull:
		return Kind(s), nil
	}
	return "", errors.NewConfigurationError("backup", "unknown backup kind %q", s)
}

// Record describes one stored backup.
type Record struct {
	ID        string    `json:"id"`
	TypeCode  string    `json:"entity_type"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// tableDump is one table's rows in column order.
type tableDump struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// artifact is the on-disk backup format.
type artifact struct {
	Manifest  Record               `json:"manifest"`
	SchemaSQL []string             `json:"schema_sql,omitempty"`
	Tables    map[string]tableDump `json:"tables,omitempty"`
}

// Manager creates, lists, restores and expires backups under one
// directory. The filesystem is injected so tests run on afero.MemMapFs.
type Manager struct {
	fs            afero.Fs
	db            *sql.DB
	dir           string
	tablePrefix   string
	retentionDays int
	logger        *zap.SugaredLogger
}

// NewManager creates a backup manager. logger may be nil; a
// non-positive retention disables sweeping.
func NewManager(fs afero.Fs, db *sql.DB, dir, tablePrefix string, retentionDays int, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		fs:            fs,
		db:            db,
		dir:           dir,
		tablePrefix:   tablePrefix,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Create snapshots the entity type's tables and writes one JSON
// artifact, returning its record.
func (m *Manager) Create(ctx context.Context, et *types.EntityType, kind Kind) (*Record, error) {
	now := time.Now().UTC()
	art := artifact{
		Manifest: Record{
			ID:        uuid.NewString(),
			TypeCode:  et.Code,
			Kind:      kind,
			CreatedAt: now,
		},
	}

	tables := m.relevantTables(et)
	if kind == KindSchema || kind == KindFull {
		ddl, err := m.dumpDDL(ctx, tables)
		if err != nil {
			return nil, err
		}
		art.SchemaSQL = ddl
	}
	if kind == KindData || kind == KindFull {
		art.Tables = make(map[string]tableDump, len(tables))
		for _, table := range tables {
			dump, err := m.dumpTable(ctx, table)
			if err != nil {
				return nil, err
			}
			art.Tables[table] = dump
		}
	}

	name := now.Format("20060102150405") + "_" + string(kind) + "_" + art.Manifest.ID[:8] + ".json"
	path := filepath.Join(m.dir, et.Code, name)
	art.Manifest.Path = path

	raw, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode backup artifact")
	}
	art.Manifest.Size = int64(len(raw))

	// Size is part of the manifest, so encode once more with it set.
	raw, err = json.MarshalIndent(art, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode backup artifact")
	}

	if err := m.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create backup dir for %s", et.Code)
	}
	if err := afero.WriteFile(m.fs, path, raw, 0o644); err != nil {
		return nil, errors.Wrapf(err, "write backup %s", path)
	}

	if m.logger != nil {
		m.logger.Infow("Created backup",
			"backup_id", art.Manifest.ID,
			"entity_type", et.Code,
			"kind", kind,
			"size", art.Manifest.Size,
		)
	}
	record := art.Manifest
	return &record, nil
}

// List returns the stored backup records, newest first. An empty
// typeCode lists every entity type.
func (m *Manager) List(typeCode string) ([]Record, error) {
	var records []Record
	walk := func(path string) error {
		art, err := m.readArtifact(path)
		if err != nil {
			return err
		}
		records = append(records, art.Manifest)
		return nil
	}

	dirs := []string{filepath.Join(m.dir, typeCode)}
	if typeCode == "" {
		entries, err := afero.ReadDir(m.fs, m.dir)
		if err != nil {
			return nil, nil // no backups yet
		}
		dirs = dirs[:0]
		for _, entry := range entries {
			if entry.IsDir() {
				dirs = append(dirs, filepath.Join(m.dir, entry.Name()))
			}
		}
	}

	for _, dir := range dirs {
		entries, err := afero.ReadDir(m.fs, dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			if err := walk(filepath.Join(dir, entry.Name())); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Find returns the record with the given backup id.
func (m *Manager) Find(id string) (*Record, error) {
	records, err := m.List("")
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, errors.NewNotFoundError("backup %s", id)
}

// Restore rebuilds tables from a backup artifact: schema artifacts drop
// and recreate the tables, data artifacts clear and re-insert the rows.
func (m *Manager) Restore(ctx context.Context, id string) error {
	record, err := m.Find(id)
	if err != nil {
		return err
	}
	art, err := m.readArtifact(record.Path)
	if err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin restore transaction")
	}
	defer tx.Rollback()

	// Parent tables (the entity table) come before value tables so
	// re-inserted rows satisfy the foreign keys.
	ordered := m.orderTables(art)

	if len(art.SchemaSQL) > 0 {
		for i := len(ordered) - 1; i >= 0; i-- {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ordered[i]); err != nil {
				return errors.Wrapf(err, "drop %s for restore", ordered[i])
			}
		}
		for _, stmt := range art.SchemaSQL {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.Wrapf(err, "restore schema from %s", id)
			}
		}
	}

	for _, table := range ordered {
		dump, ok := art.Tables[table]
		if !ok {
			continue
		}
		if len(art.SchemaSQL) == 0 {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return errors.Wrapf(err, "clear %s for restore", table)
			}
		}
		if err := insertDump(ctx, tx, table, dump); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit restore of %s", id)
	}
	if m.logger != nil {
		m.logger.Infow("Restored backup", "backup_id", id, "entity_type", record.TypeCode, "kind", record.Kind)
	}
	return nil
}

// Sweep removes artifacts older than the retention window and returns
// how many were removed.
func (m *Manager) Sweep() (int, error) {
	if m.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -m.retentionDays)

	records, err := m.List("")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, record := range records {
		if record.CreatedAt.After(cutoff) {
			continue
		}
		if err := m.fs.Remove(record.Path); err != nil {
			return removed, errors.Wrapf(err, "remove backup %s", record.ID)
		}
		removed++
	}
	if m.logger != nil && removed > 0 {
		m.logger.Infow("Swept expired backups", "count", removed, "retention_days", m.retentionDays)
	}
	return removed, nil
}

// orderTables returns the artifact's tables with non-prefixed (entity)
// tables first and value tables after, each group sorted.
func (m *Manager) orderTables(art *artifact) []string {
	seen := make(map[string]struct{})
	add := func(name string) {
		if name != "" {
			seen[name] = struct{}{}
		}
	}
	for table := range art.Tables {
		add(table)
	}
	for _, stmt := range art.SchemaSQL {
		add(createTarget(stmt))
	}

	var parents, values []string
	for table := range seen {
		if strings.HasPrefix(table, m.tablePrefix+"_") {
			values = append(values, table)
		} else {
			parents = append(parents, table)
		}
	}
	sort.Strings(parents)
	sort.Strings(values)
	return append(parents, values...)
}

func (m *Manager) relevantTables(et *types.EntityType) []string {
	tables := []string{et.EntityTable}
	seen := make(map[string]struct{})
	for _, attr := range et.Attributes.All() {
		table := attr.Backend.ValueTable(m.tablePrefix)
		if _, ok := seen[table]; ok {
			continue
		}
		seen[table] = struct{}{}
		tables = append(tables, table)
	}
	return tables
}

// dumpDDL captures the CREATE statements for the tables and their
// indexes from sqlite_master.
func (m *Manager) dumpDDL(ctx context.Context, tables []string) ([]string, error) {
	marks := make([]string, len(tables))
	args := make([]any, len(tables))
	for i, table := range tables {
		marks[i] = "?"
		args[i] = table
	}
	rows, err := m.db.QueryContext(ctx,
		"SELECT sql FROM sqlite_master WHERE tbl_name IN ("+strings.Join(marks, ", ")+") AND sql IS NOT NULL ORDER BY type DESC, name",
		args...)
	if err != nil {
		return nil, errors.Wrap(err, "dump schema")
	}
	defer rows.Close()

	var ddl []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return nil, errors.Wrap(err, "scan ddl")
		}
		ddl = append(ddl, stmt)
	}
	return ddl, rows.Err()
}

func (m *Manager) dumpTable(ctx context.Context, table string) (tableDump, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return tableDump{}, errors.Wrapf(err, "dump %s", table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return tableDump{}, errors.Wrap(err, "columns")
	}
	dump := tableDump{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return tableDump{}, errors.Wrapf(err, "scan %s row", table)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		dump.Rows = append(dump.Rows, vals)
	}
	return dump, rows.Err()
}

func insertDump(ctx context.Context, tx *sql.Tx, table string, dump tableDump) error {
	if len(dump.Rows) == 0 {
		return nil
	}
	marks := make([]string, len(dump.Columns))
	for i := range marks {
		marks[i] = "?"
	}
	stmt := "INSERT INTO " + table + " (" + strings.Join(dump.Columns, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	for _, row := range dump.Rows {
		if _, err := tx.ExecContext(ctx, stmt, row...); err != nil {
			return errors.Wrapf(err, "restore row into %s", table)
		}
	}
	return nil
}

func (m *Manager) readArtifact(path string) (*artifact, error) {
	raw, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read backup %s", path)
	}
	var art artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, errors.Wrapf(err, "decode backup %s", path)
	}
	return &art, nil
}

// createTarget extracts the table name from a CREATE TABLE statement.
func createTarget(stmt string) string {
	upper := strings.ToUpper(stmt)
	if !strings.HasPrefix(upper, "CREATE TABLE") {
		return ""
	}
	fields := strings.Fields(stmt)
	for i, f := range fields {
		if strings.EqualFold(f, "TABLE") && i+1 < len(fields) {
			name := fields[i+1]
			if strings.EqualFold(name, "IF") && i+3 < len(fields) {
				name = fields[i+3]
			}
			return strings.Trim(name, `"(`)
		}
	}
	return ""
}
