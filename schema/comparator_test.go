package schema

import (
	"context"
	"database/sql"
	"testing"

	"github.com/andrfilipenk/new-sub004/eav/types"
	qtesting "github.com/andrfilipenk/new-sub004/internal/testing"
)

func schemaFixture(t *testing.T) (*sql.DB, *types.EntityType, *Comparator) {
	t.Helper()
	db := qtesting.CreateTestDB(t)

	et, err := types.NewEntityType("product", "Product",
		&types.Attribute{Code: "sku", Backend: types.BackendVarchar, SortOrder: 1},
		&types.Attribute{Code: "price", Backend: types.BackendDecimal, SortOrder: 2},
	)
	if err != nil {
		t.Fatalf("NewEntityType() error: %v", err)
	}

	return db, et, NewComparator(NewSQLiteIntrospector(db), "eav_value")
}

func TestCompareCleanSchemaInSync(t *testing.T) {
	_, et, c := schemaFixture(t)

	set, err := c.Compare(context.Background(), et)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if !set.Empty() {
		t.Errorf("base schema should be in sync, got %d differences", len(set.Differences))
	}
}

func TestCompareDetectsMissingValueTable(t *testing.T) {
	db, et, c := schemaFixture(t)

	if _, err := db.Exec("DROP TABLE eav_value_varchar"); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	set, err := c.Compare(context.Background(), et)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	d := findDiff(t, set, DiffMissingTable)
	if d.Table != "eav_value_varchar" || d.Action != ActionAdd || d.Severity != SeverityCritical {
		t.Errorf("difference = %+v", d)
	}
	if d.IsDestructive() {
		t.Error("adding a missing table is not destructive")
	}
}

func TestCompareDetectsMissingIndex(t *testing.T) {
	db, et, c := schemaFixture(t)

	if _, err := db.Exec("DROP INDEX idx_eav_value_decimal_attr"); err != nil {
		t.Fatalf("drop index: %v", err)
	}

	set, err := c.Compare(context.Background(), et)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	d := findDiff(t, set, DiffMissingIndex)
	if d.Table != "eav_value_decimal" || d.Column != "attribute_id" {
		t.Errorf("difference = %+v", d)
	}
}

func TestCompareDetectsTypeMismatch(t *testing.T) {
	db, et, c := schemaFixture(t)

	// Rebuild the decimal table with a TEXT value column.
	stmts := []string{
		"DROP TABLE eav_value_decimal",
		`CREATE TABLE eav_value_decimal (
			value_id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_id INTEGER NOT NULL,
			attribute_id INTEGER NOT NULL,
			value TEXT,
			UNIQUE (entity_id, attribute_id)
		)`,
		"CREATE INDEX idx_eav_value_decimal_attr ON eav_value_decimal (attribute_id)",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	set, err := c.Compare(context.Background(), et)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	d := findDiff(t, set, DiffTypeMismatch)
	if d.Action != ActionModify || d.Metadata["expected"] != "NUMERIC" {
		t.Errorf("difference = %+v", d)
	}
}

func TestCompareDetectsOrphanedTableAndColumn(t *testing.T) {
	db, et, c := schemaFixture(t)

	if _, err := db.Exec("CREATE TABLE eav_value_blob (value_id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create orphan table: %v", err)
	}
	if _, err := db.Exec("ALTER TABLE eav_value_varchar ADD COLUMN legacy_flag INTEGER"); err != nil {
		t.Fatalf("add orphan column: %v", err)
	}

	set, err := c.Compare(context.Background(), et)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}

	table := findDiff(t, set, DiffOrphanedTable)
	if table.Table != "eav_value_blob" || !table.IsDestructive() {
		t.Errorf("orphaned table difference = %+v", table)
	}
	col := findDiff(t, set, DiffOrphanedColumn)
	if col.Column != "legacy_flag" || col.Action != ActionDrop {
		t.Errorf("orphaned column difference = %+v", col)
	}
}

func findDiff(t *testing.T, set *DifferenceSet, dt DifferenceType) *SchemaDifference {
	t.Helper()
	for _, d := range set.Differences {
		if d.Type == dt {
			return d
		}
	}
	t.Fatalf("no %s difference in %+v", dt, set.Differences)
	return nil
}

type stubMetadata struct {
	et *types.EntityType
}

func (s stubMetadata) Get(context.Context, string) (*types.EntityType, error) { return s.et, nil }
func (s stubMetadata) Codes(context.Context) ([]string, error)               { return []string{s.et.Code}, nil }

func TestAnalyzerReportsRisk(t *testing.T) {
	db, et, c := schemaFixture(t)

	if _, err := db.Exec("CREATE TABLE eav_value_blob (value_id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create orphan table: %v", err)
	}

	a := NewAnalyzer(stubMetadata{et: et}, c, nil)
	report, err := a.Analyze(context.Background(), "product")
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if report.InSync() {
		t.Fatal("report should carry the orphaned table")
	}
	// One medium+drop difference scores 50, which bands as medium.
	if report.RiskScore != 50 || report.RiskLevel != RiskMedium {
		t.Errorf("risk = %d/%s, want 50/medium", report.RiskScore, report.RiskLevel)
	}
	if len(report.Recommendations) == 0 {
		t.Error("destructive changes should yield recommendations")
	}

	all, err := a.AnalyzeAll(context.Background())
	if err != nil {
		t.Fatalf("AnalyzeAll() error: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("AnalyzeAll() returned %d reports, want 1", len(all))
	}
}
