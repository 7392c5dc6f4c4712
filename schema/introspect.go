package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/andrfilipenk/new-sub004/errors"
)

// Column is one column of a live table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null,omitempty"`
	Default    string `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// Index is one index of a live table.
type Index struct {
	Name    string   `json:"name"`
	Unique  bool     `json:"unique,omitempty"`
	Columns []string `json:"columns"`
}

// TableSchema is the introspected shape of one table.
type TableSchema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Indexes []Index  `json:"indexes,omitempty"`
}

// Column returns the column with the given name.
func (t *TableSchema) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// IndexOn reports whether an index covers exactly the given columns, and
// whether that index is unique.
func (t *TableSchema) IndexOn(cols ...string) (exists, unique bool) {
	for _, idx := range t.Indexes {
		if len(idx.Columns) != len(cols) {
			continue
		}
		match := true
		for i, c := range cols {
			if idx.Columns[i] != c {
				match = false
				break
			}
		}
		if match {
			if idx.Unique {
				return true, true
			}
			exists = true
		}
	}
	return exists, false
}

// Introspector reads the live database schema.
type Introspector interface {
	TableExists(ctx context.Context, name string) (bool, error)
	Table(ctx context.Context, name string) (*TableSchema, error)
	TableNames(ctx context.Context, prefix string) ([]string, error)
}

// SQLiteIntrospector reads schema via sqlite_master and PRAGMAs.
type SQLiteIntrospector struct {
	db *sql.DB
}

// NewSQLiteIntrospector creates an introspector over db.
func NewSQLiteIntrospector(db *sql.DB) *SQLiteIntrospector {
	return &SQLiteIntrospector{db: db}
}

// TableExists reports whether a table with the given name exists.
func (in *SQLiteIntrospector) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := in.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "check table %s", name)
	}
	return n > 0, nil
}

// TableNames lists tables whose name starts with prefix.
func (in *SQLiteIntrospector) TableNames(ctx context.Context, prefix string) ([]string, error) {
	rows, err := in.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ORDER BY name",
		prefix+"%")
	if err != nil {
		return nil, errors.Wrap(err, "list tables")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan table name")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Table returns the full shape of one table, or ErrNotFound.
func (in *SQLiteIntrospector) Table(ctx context.Context, name string) (*TableSchema, error) {
	exists, err := in.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NewNotFoundError("table %s", name)
	}

	t := &TableSchema{Name: name}
	if err := in.readColumns(ctx, t); err != nil {
		return nil, err
	}
	if err := in.readIndexes(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// PRAGMA statements do not accept bind parameters for identifiers, so
// table names are double-quoted inline.
func (in *SQLiteIntrospector) readColumns(ctx context.Context, t *TableSchema) error {
	rows, err := in.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", t.Name))
	if err != nil {
		return errors.Wrapf(err, "table_info %s", t.Name)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return errors.Wrap(err, "scan column")
		}
		t.Columns = append(t.Columns, Column{
			Name:       name,
			Type:       strings.ToUpper(colType),
			NotNull:    notNull != 0,
			Default:    dflt.String,
			PrimaryKey: pk != 0,
		})
	}
	return rows.Err()
}

func (in *SQLiteIntrospector) readIndexes(ctx context.Context, t *TableSchema) error {
	rows, err := in.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%q)", t.Name))
	if err != nil {
		return errors.Wrapf(err, "index_list %s", t.Name)
	}
	defer rows.Close()

	type indexRow struct {
		name   string
		unique bool
	}
	var list []indexRow
	for rows.Next() {
		var (
			seq, unique, partial int
			name, origin         string
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return errors.Wrap(err, "scan index")
		}
		list = append(list, indexRow{name: name, unique: unique != 0})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, idx := range list {
		cols, err := in.indexColumns(ctx, idx.name)
		if err != nil {
			return err
		}
		t.Indexes = append(t.Indexes, Index{Name: idx.name, Unique: idx.unique, Columns: cols})
	}
	return nil
}

func (in *SQLiteIntrospector) indexColumns(ctx context.Context, indexName string) ([]string, error) {
	rows, err := in.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%q)", indexName))
	if err != nil {
		return nil, errors.Wrapf(err, "index_info %s", indexName)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			seqno, cid int
			name       sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, errors.Wrap(err, "scan index column")
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}
