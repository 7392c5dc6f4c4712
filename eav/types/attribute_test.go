package types

import (
	"testing"

	"github.com/andrfilipenk/new-sub004/errors"
)

func TestParseBackendType(t *testing.T) {
	for _, valid := range []string{"varchar", "int", "decimal", "text", "datetime"} {
		if _, err := ParseBackendType(valid); err != nil {
			t.Errorf("ParseBackendType(%q) error: %v", valid, err)
		}
	}

	_, err := ParseBackendType("blob")
	if err == nil {
		t.Fatal("ParseBackendType(blob) should fail")
	}
	var confErr *errors.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Errorf("unknown backend type should be a ConfigurationError, got %T", err)
	}
}

func TestBackendTypeValueTable(t *testing.T) {
	if got := BackendDecimal.ValueTable("eav_value"); got != "eav_value_decimal" {
		t.Errorf("ValueTable() = %q, want eav_value_decimal", got)
	}
}

func TestAttributeCollectionOrderAndLookup(t *testing.T) {
	c, err := NewAttributeCollection(
		&Attribute{Code: "qty", Backend: BackendInt, SortOrder: 20},
		&Attribute{Code: "sku", Backend: BackendVarchar, SortOrder: 10},
		&Attribute{Code: "price", Backend: BackendDecimal, SortOrder: 15},
	)
	if err != nil {
		t.Fatalf("NewAttributeCollection() error: %v", err)
	}

	var codes []string
	for _, a := range c.All() {
		codes = append(codes, a.Code)
	}
	want := []string{"sku", "price", "qty"}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("order = %v, want %v", codes, want)
		}
	}

	if attr, ok := c.Get("price"); !ok || attr.Backend != BackendDecimal {
		t.Errorf("Get(price) = (%v, %v)", attr, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should report absence")
	}
}

func TestAttributeCollectionRejectsDuplicates(t *testing.T) {
	_, err := NewAttributeCollection(
		&Attribute{Code: "sku", Backend: BackendVarchar},
		&Attribute{Code: "sku", Backend: BackendText},
	)
	if err == nil {
		t.Fatal("duplicate codes should fail")
	}
}

func TestAttributeCollectionRejectsUnknownBackend(t *testing.T) {
	_, err := NewAttributeCollection(
		&Attribute{Code: "sku", Backend: "json"},
	)
	if err == nil {
		t.Fatal("unknown backend type should fail at collection build time")
	}
}

func TestAttributeCollectionViews(t *testing.T) {
	c, err := NewAttributeCollection(
		&Attribute{Code: "sku", Backend: BackendVarchar, Searchable: true, Filterable: true},
		&Attribute{Code: "price", Backend: BackendDecimal, Filterable: true},
		&Attribute{Code: "description", Backend: BackendText},
	)
	if err != nil {
		t.Fatalf("NewAttributeCollection() error: %v", err)
	}

	if got := len(c.Searchable()); got != 1 {
		t.Errorf("Searchable() length = %d, want 1", got)
	}
	if got := len(c.Filterable()); got != 2 {
		t.Errorf("Filterable() length = %d, want 2", got)
	}

	groups := c.ByBackend()
	if len(groups[BackendVarchar]) != 1 || len(groups[BackendDecimal]) != 1 || len(groups[BackendText]) != 1 {
		t.Errorf("ByBackend() groups = %v", groups)
	}
}

func TestEntityTypeValidate(t *testing.T) {
	if _, err := NewEntityType("", "Nameless"); err == nil {
		t.Error("empty type code should fail")
	}

	et, err := NewEntityType("customer", "Customer")
	if err != nil {
		t.Fatalf("NewEntityType() error: %v", err)
	}
	if et.EntityTable != "eav_entity" || et.Storage != StorageEAV {
		t.Errorf("defaults not applied: table=%q storage=%q", et.EntityTable, et.Storage)
	}

	et.Storage = "columnar"
	if err := et.Validate(); err == nil {
		t.Error("unknown storage strategy should fail")
	}
}
