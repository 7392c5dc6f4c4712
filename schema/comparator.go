package schema

import (
	"context"
	"strings"

	"github.com/andrfilipenk/new-sub004/eav/types"
)

// entityColumns is the expected shape of an entity table.
var entityColumns = []string{"entity_id", "entity_type_id", "created_at", "updated_at"}

// valueColumns is the expected shape of a value table.
var valueColumns = []string{"value_id", "entity_id", "attribute_id", "value"}

// Comparator walks an entity type's declared attributes against the
// live schema. Value tables are shared across entity types, so a table
// is only reported orphaned when it carries the value-table prefix but
// maps to no known backend type at all.
type Comparator struct {
	prefix       string
	introspector Introspector
}

// NewComparator creates a comparator for tables under tablePrefix.
func NewComparator(introspector Introspector, tablePrefix string) *Comparator {
	return &Comparator{prefix: tablePrefix, introspector: introspector}
}

// Compare returns every divergence between the declared metadata and
// the live schema for one entity type.
func (c *Comparator) Compare(ctx context.Context, et *types.EntityType) (*DifferenceSet, error) {
	set := &DifferenceSet{TypeCode: et.Code}

	if err := c.compareEntityTable(ctx, et, set); err != nil {
		return nil, err
	}
	for _, backend := range c.usedBackends(et) {
		if err := c.compareValueTable(ctx, backend, set); err != nil {
			return nil, err
		}
	}
	if err := c.findOrphanedTables(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

func (c *Comparator) compareEntityTable(ctx context.Context, et *types.EntityType, set *DifferenceSet) error {
	table, err := c.introspectIfExists(ctx, et.EntityTable)
	if err != nil {
		return err
	}
	if table == nil {
		set.Add(&SchemaDifference{
			Type:        DiffMissingTable,
			Severity:    SeverityCritical,
			Action:      ActionAdd,
			Table:       et.EntityTable,
			Description: "entity table " + et.EntityTable + " does not exist",
		})
		return nil
	}
	for _, col := range entityColumns {
		if _, ok := table.Column(col); !ok {
			set.Add(&SchemaDifference{
				Type:        DiffMissingColumn,
				Severity:    SeverityHigh,
				Action:      ActionAdd,
				Table:       et.EntityTable,
				Column:      col,
				Description: "entity table is missing column " + col,
			})
		}
	}
	return nil
}

func (c *Comparator) compareValueTable(ctx context.Context, backend types.BackendType, set *DifferenceSet) error {
	name := backend.ValueTable(c.prefix)
	table, err := c.introspectIfExists(ctx, name)
	if err != nil {
		return err
	}
	if table == nil {
		set.Add(&SchemaDifference{
			Type:        DiffMissingTable,
			Severity:    SeverityCritical,
			Action:      ActionAdd,
			Table:       name,
			Description: "value table " + name + " does not exist",
			Metadata:    map[string]string{"backend_type": string(backend)},
		})
		return nil
	}

	for _, col := range valueColumns {
		if _, ok := table.Column(col); !ok {
			set.Add(&SchemaDifference{
				Type:        DiffMissingColumn,
				Severity:    SeverityHigh,
				Action:      ActionAdd,
				Table:       name,
				Column:      col,
				Description: "value table " + name + " is missing column " + col,
			})
		}
	}

	if col, ok := table.Column("value"); ok {
		expected := backend.ColumnType()
		if !strings.EqualFold(col.Type, expected) {
			set.Add(&SchemaDifference{
				Type:        DiffTypeMismatch,
				Severity:    SeverityHigh,
				Action:      ActionModify,
				Table:       name,
				Column:      "value",
				Description: "value column is " + col.Type + ", declared backend needs " + expected,
				Metadata:    map[string]string{"expected": expected, "actual": col.Type},
			})
		}
	}

	if _, unique := table.IndexOn("entity_id", "attribute_id"); !unique {
		set.Add(&SchemaDifference{
			Type:        DiffConstraintMismatch,
			Severity:    SeverityMedium,
			Action:      ActionModify,
			Table:       name,
			Description: "value table " + name + " lacks the unique (entity_id, attribute_id) constraint",
		})
	}
	if exists, _ := table.IndexOn("attribute_id"); !exists {
		set.Add(&SchemaDifference{
			Type:        DiffMissingIndex,
			Severity:    SeverityLow,
			Action:      ActionAdd,
			Table:       name,
			Column:      "attribute_id",
			Description: "value table " + name + " has no attribute_id index",
		})
	}

	for _, col := range table.Columns {
		if !contains(valueColumns, col.Name) {
			set.Add(&SchemaDifference{
				Type:        DiffOrphanedColumn,
				Severity:    SeverityMedium,
				Action:      ActionDrop,
				Table:       name,
				Column:      col.Name,
				Description: "value table " + name + " carries undeclared column " + col.Name,
			})
		}
	}
	return nil
}

// findOrphanedTables flags prefix tables that map to no backend type.
func (c *Comparator) findOrphanedTables(ctx context.Context, set *DifferenceSet) error {
	names, err := c.introspector.TableNames(ctx, c.prefix+"_")
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(types.AllBackendTypes))
	for _, backend := range types.AllBackendTypes {
		known[backend.ValueTable(c.prefix)] = struct{}{}
	}
	for _, name := range names {
		if _, ok := known[name]; !ok {
			set.Add(&SchemaDifference{
				Type:        DiffOrphanedTable,
				Severity:    SeverityMedium,
				Action:      ActionDrop,
				Table:       name,
				Description: "table " + name + " matches the value-table prefix but no backend type",
			})
		}
	}
	return nil
}

func (c *Comparator) introspectIfExists(ctx context.Context, name string) (*TableSchema, error) {
	exists, err := c.introspector.TableExists(ctx, name)
	if err != nil || !exists {
		return nil, err
	}
	return c.introspector.Table(ctx, name)
}

// usedBackends returns the backend types the entity type's attributes
// actually use, in declaration order.
func (c *Comparator) usedBackends(et *types.EntityType) []types.BackendType {
	seen := make(map[types.BackendType]struct{})
	var out []types.BackendType
	for _, attr := range et.Attributes.All() {
		if _, ok := seen[attr.Backend]; ok {
			continue
		}
		seen[attr.Backend] = struct{}{}
		out = append(out, attr.Backend)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
