// Package migration turns schema differences into storable, reversible
// migration artifacts and applies them.
package migration

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/errors"
	"github.com/andrfilipenk/new-sub004/schema"
)

// Strategy selects which differences a sync run may act on.
type Strategy string

const (
	// StrategyAdditive never emits drop or recreate operations.
	StrategyAdditive Strategy = "additive"
	// StrategyFull may emit destructive operations, gated by validation.
	StrategyFull Strategy = "full"
	// StrategyDryRun analyzes and validates without touching the schema.
	StrategyDryRun Strategy = "dry_run"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAdditive, StrategyFull, StrategyDryRun:
		return Strategy(s), nil
	}
	return "", errors.NewConfigurationError("strategy", "unknown sync strategy %q", s)
}

// IrreversibleMarker flags a down step whose data cannot be restored by
// SQL alone. The executor refuses to revert past it.
const IrreversibleMarker = "-- irreversible:"

// Migration is a generated, storable schema change artifact.
type Migration struct {
	Name        string                     `json:"name"`
	EntityType  string                     `json:"entity_type"`
	UpSQL       []string                   `json:"up_sql"`
	DownSQL     []string                   `json:"down_sql"`
	Differences []*schema.SchemaDifference `json:"differences"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// Reversible reports whether the down path can fully restore the
// previous schema and data.
func (m *Migration) Reversible() bool {
	if len(m.DownSQL) == 0 {
		return false
	}
	for _, stmt := range m.DownSQL {
		if strings.HasPrefix(stmt, IrreversibleMarker) {
			return false
		}
	}
	return true
}

// RiskScore aggregates the member differences, clamped to 0..100.
func (m *Migration) RiskScore() int {
	set := &schema.DifferenceSet{TypeCode: m.EntityType, Differences: m.Differences}
	return set.AggregateRisk()
}

// HasDestructive reports whether any member difference discards data.
func (m *Migration) HasDestructive() bool {
	for _, d := range m.Differences {
		if d.IsDestructive() {
			return true
		}
	}
	return false
}

// Generator builds migrations from difference sets.
type Generator struct {
	prefix string
	logger *zap.SugaredLogger
}

// NewGenerator creates a generator for tables under tablePrefix. logger
// may be nil.
func NewGenerator(tablePrefix string, logger *zap.SugaredLogger) *Generator {
	return &Generator{prefix: tablePrefix, logger: logger}
}

// Generate turns a difference set into a migration. The additive
// strategy drops destructive differences before generation; a set left
// empty after filtering yields a nil migration.
func (g *Generator) Generate(set *schema.DifferenceSet, strategy Strategy) (*Migration, error) {
	diffs := set.Differences
	if strategy == StrategyAdditive {
		kept := make([]*schema.SchemaDifference, 0, len(diffs))
		for _, d := range diffs {
			if !d.IsDestructive() {
				kept = append(kept, d)
			}
		}
		diffs = kept
	}
	if len(diffs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	m := &Migration{
		Name:        now.Format("20060102150405") + "_" + set.TypeCode,
		EntityType:  set.TypeCode,
		Differences: diffs,
		CreatedAt:   now,
	}
	for _, d := range diffs {
		up, down, err := g.statements(d)
		if err != nil {
			return nil, err
		}
		m.UpSQL = append(m.UpSQL, up...)
		m.DownSQL = append(m.DownSQL, down...)
	}

	if g.logger != nil {
		g.logger.Infow("Generated migration",
			"migration", m.Name,
			"entity_type", m.EntityType,
			"statements", len(m.UpSQL),
			"strategy", strategy,
		)
	}
	return m, nil
}

func (g *Generator) statements(d *schema.SchemaDifference) (up, down []string, err error) {
	switch d.Type {
	case schema.DiffMissingTable:
		if backend := d.Metadata["backend_type"]; backend != "" {
			bt, err := types.ParseBackendType(backend)
			if err != nil {
				return nil, nil, err
			}
			return valueTableDDL(g.prefix, bt),
				[]string{"DROP TABLE IF EXISTS " + d.Table}, nil
		}
		return []string{entityTableDDL(d.Table)},
			[]string{"DROP TABLE IF EXISTS " + d.Table}, nil

	case schema.DiffMissingColumn:
		colType, ok := expectedColumnType(d.Column)
		if !ok {
			return nil, nil, errors.Newf("no declared type for column %s.%s", d.Table, d.Column)
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", d.Table, d.Column, colType)},
			[]string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Table, d.Column)}, nil

	case schema.DiffMissingIndex:
		index := fmt.Sprintf("idx_%s_%s", d.Table, strings.TrimSuffix(d.Column, "_id"))
		return []string{fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", index, d.Table, d.Column)},
			[]string{"DROP INDEX IF EXISTS " + index}, nil

	case schema.DiffTypeMismatch, schema.DiffConstraintMismatch, schema.DiffDefaultMismatch:
		// SQLite cannot alter a column in place; rebuild the value table
		// copying the rows through.
		bt, err := backendForTable(g.prefix, d.Table)
		if err != nil {
			return nil, nil, err
		}
		return rebuildTableDDL(g.prefix, bt),
			[]string{IrreversibleMarker + " " + d.Table + " rebuilt in place, prior column definition not retained"}, nil

	case schema.DiffOrphanedTable:
		return []string{"DROP TABLE IF EXISTS " + d.Table},
			[]string{IrreversibleMarker + " table " + d.Table + " dropped with its data"}, nil

	case schema.DiffOrphanedColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Table, d.Column)},
			[]string{IrreversibleMarker + " column " + d.Table + "." + d.Column + " dropped with its data"}, nil
	}
	return nil, nil, errors.Newf("no generation rule for difference type %q", d.Type)
}

// expectedColumnType maps the known entity/value table columns to DDL
// types for ADD COLUMN.
func expectedColumnType(column string) (string, bool) {
	switch column {
	case "entity_id", "entity_type_id", "attribute_id", "value_id":
		return "INTEGER NOT NULL DEFAULT 0", true
	case "created_at", "updated_at":
		return "TIMESTAMP", true
	case "value":
		return "TEXT", true
	}
	return "", false
}

func backendForTable(prefix, table string) (types.BackendType, error) {
	for _, bt := range types.AllBackendTypes {
		if bt.ValueTable(prefix) == table {
			return bt, nil
		}
	}
	return "", errors.Newf("table %s maps to no backend type", table)
}

func entityTableDDL(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    entity_id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type_id INTEGER NOT NULL REFERENCES eav_entity_type(type_id),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, name)
}

func valueTableDDL(prefix string, bt types.BackendType) []string {
	table := bt.ValueTable(prefix)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    value_id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL REFERENCES eav_entity(entity_id) ON DELETE CASCADE,
    attribute_id INTEGER NOT NULL REFERENCES eav_attribute(attribute_id) ON DELETE CASCADE,
    value %s,
    UNIQUE(entity_id, attribute_id)
)`, table, bt.ColumnType()),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_attr ON %s(attribute_id)", table, table),
	}
}

// rebuildTableDDL recreates a value table with the declared shape and
// copies shared columns across.
func rebuildTableDDL(prefix string, bt types.BackendType) []string {
	table := bt.ValueTable(prefix)
	tmp := table + "_new"
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
    value_id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL REFERENCES eav_entity(entity_id) ON DELETE CASCADE,
    attribute_id INTEGER NOT NULL REFERENCES eav_attribute(attribute_id) ON DELETE CASCADE,
    value %s,
    UNIQUE(entity_id, attribute_id)
)`, tmp, bt.ColumnType()),
		fmt.Sprintf("INSERT INTO %s (value_id, entity_id, attribute_id, value) SELECT value_id, entity_id, attribute_id, value FROM %s", tmp, table),
		"DROP TABLE " + table,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_attr ON %s(attribute_id)", table, table),
	}
}
