package query

import (
	"strings"
	"testing"

	"github.com/andrfilipenk/new-sub004/eav/types"
)

func builderFixture(t *testing.T) (*types.EntityType, *Optimizer, *Builder) {
	t.Helper()
	et, err := types.NewEntityType("product", "Product",
		&types.Attribute{Code: "sku", Backend: types.BackendVarchar, SortOrder: 1},
		&types.Attribute{Code: "price", Backend: types.BackendDecimal, SortOrder: 2},
		&types.Attribute{Code: "qty", Backend: types.BackendInt, SortOrder: 3},
	)
	if err != nil {
		t.Fatalf("NewEntityType() error: %v", err)
	}
	et.TypeID = 1
	for i, attr := range et.Attributes.All() {
		attr.AttributeID = int64(i + 1)
	}
	return et, NewOptimizer(10, "eav_value"), NewBuilder("eav_value")
}

func TestSelectIDsWithJoins(t *testing.T) {
	et, o, b := builderFixture(t)
	filters := []types.Filter{types.Eq("sku", "P1")}
	plan := o.OptimizeJoins(et.Attributes.All(), filters)

	sql, args, err := b.SelectIDs(et, plan, filters, nil, 10, 5)
	if err != nil {
		t.Fatalf("SelectIDs() error: %v", err)
	}

	if !strings.Contains(sql, "LEFT JOIN eav_value_varchar v0") {
		t.Errorf("missing varchar join: %s", sql)
	}
	if !strings.Contains(sql, "v0.value = ?") {
		t.Errorf("missing filter clause: %s", sql)
	}
	if !strings.Contains(sql, "LIMIT ?") || !strings.Contains(sql, "OFFSET ?") {
		t.Errorf("missing limit/offset: %s", sql)
	}
	// join attr ids (3) + type id + filter value + limit + offset
	if len(args) != 7 {
		t.Errorf("args = %d (%v), want 7", len(args), args)
	}
}

func TestSelectIDsSubqueryFallback(t *testing.T) {
	et, _, b := builderFixture(t)
	o := NewOptimizer(1, "eav_value")
	filters := []types.Filter{
		types.Eq("sku", "P1"),
		{Code: "qty", Op: types.OpGte, Value: int64(1)},
	}
	plan := o.OptimizeJoins(et.Attributes.All(), filters)

	sql, _, err := b.SelectIDs(et, plan, filters, nil, 0, 0)
	if err != nil {
		t.Fatalf("SelectIDs() error: %v", err)
	}

	if !strings.Contains(sql, "(SELECT value FROM eav_value_int WHERE entity_id = e.entity_id AND attribute_id = ? LIMIT 1) >= ?") {
		t.Errorf("missing correlated subquery for qty: %s", sql)
	}
	if strings.Count(sql, "LEFT JOIN") != 1 {
		t.Errorf("join count != 1: %s", sql)
	}
}

func TestSelectIDsInFilter(t *testing.T) {
	et, o, b := builderFixture(t)
	filters := []types.Filter{{Code: "sku", Op: types.OpIn, Value: []any{"P1", "P2"}}}
	plan := o.OptimizeJoins(et.Attributes.All(), filters)

	sql, args, err := b.SelectIDs(et, plan, filters, nil, 0, 0)
	if err != nil {
		t.Fatalf("SelectIDs() error: %v", err)
	}
	if !strings.Contains(sql, "IN (?, ?)") {
		t.Errorf("missing IN clause: %s", sql)
	}
	found := 0
	for _, a := range args {
		if a == "P1" || a == "P2" {
			found++
		}
	}
	if found != 2 {
		t.Errorf("IN values missing from args: %v", args)
	}
}

func TestSelectIDsInFilterRejectsBadValue(t *testing.T) {
	et, o, b := builderFixture(t)
	filters := []types.Filter{{Code: "sku", Op: types.OpIn, Value: "P1"}}
	plan := o.OptimizeJoins(et.Attributes.All(), filters)

	if _, _, err := b.SelectIDs(et, plan, filters, nil, 0, 0); err == nil {
		t.Error("IN with non-slice value should fail")
	}
}

func TestSelectIDsSorts(t *testing.T) {
	et, o, b := builderFixture(t)
	plan := o.OptimizeJoins(et.Attributes.All(), nil)

	sql, _, err := b.SelectIDs(et, plan, nil, []types.Sort{{Code: "price", Desc: true}}, 0, 0)
	if err != nil {
		t.Fatalf("SelectIDs() error: %v", err)
	}
	if !strings.Contains(sql, "ORDER BY") || !strings.Contains(sql, "DESC") {
		t.Errorf("missing descending order: %s", sql)
	}
}

func TestSelectIDsUnknownAttribute(t *testing.T) {
	et, o, b := builderFixture(t)
	filters := []types.Filter{types.Eq("color", "red")}
	plan := o.OptimizeJoins(et.Attributes.All(), nil)

	if _, _, err := b.SelectIDs(et, plan, filters, nil, 0, 0); err == nil {
		t.Error("unknown filter attribute should fail")
	}
}

func TestCount(t *testing.T) {
	et, o, b := builderFixture(t)
	filters := []types.Filter{types.Eq("qty", int64(5))}
	plan := o.OptimizeJoins(et.Attributes.All(), filters)

	sql, args, err := b.Count(et, plan, filters)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if !strings.HasPrefix(sql, "SELECT COUNT(DISTINCT e.entity_id)") {
		t.Errorf("unexpected count statement: %s", sql)
	}
	if strings.Contains(sql, "LIMIT") {
		t.Errorf("count must not limit: %s", sql)
	}
	if len(args) == 0 {
		t.Error("count lost its bind args")
	}
}
