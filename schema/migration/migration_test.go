package migration

import (
	"context"
	"strings"
	"testing"

	"github.com/andrfilipenk/new-sub004/schema"
	qtesting "github.com/andrfilipenk/new-sub004/internal/testing"
)

func missingTableDiff() *schema.SchemaDifference {
	return &schema.SchemaDifference{
		TypeCode:    "product",
		Type:        schema.DiffMissingTable,
		Severity:    schema.SeverityCritical,
		Action:      schema.ActionAdd,
		Table:       "eav_value_varchar",
		Description: "value table eav_value_varchar does not exist",
		Metadata:    map[string]string{"backend_type": "varchar"},
	}
}

func orphanedTableDiff() *schema.SchemaDifference {
	return &schema.SchemaDifference{
		TypeCode:    "product",
		Type:        schema.DiffOrphanedTable,
		Severity:    schema.SeverityMedium,
		Action:      schema.ActionDrop,
		Table:       "eav_value_blob",
		Description: "table eav_value_blob matches the value-table prefix but no backend type",
	}
}

func diffSet(diffs ...*schema.SchemaDifference) *schema.DifferenceSet {
	set := &schema.DifferenceSet{TypeCode: "product"}
	for _, d := range diffs {
		set.Add(d)
	}
	return set
}

func TestGenerateCreateTable(t *testing.T) {
	g := NewGenerator("eav_value", nil)

	m, err := g.Generate(diffSet(missingTableDiff()), StrategyFull)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if m == nil {
		t.Fatal("expected a migration")
	}
	if !strings.HasSuffix(m.Name, "_product") {
		t.Errorf("name = %q, want timestamped _product suffix", m.Name)
	}
	if len(m.UpSQL) != 2 || !strings.Contains(m.UpSQL[0], "CREATE TABLE") {
		t.Errorf("up = %v", m.UpSQL)
	}
	if !m.Reversible() {
		t.Error("creating a table is reversible via drop")
	}
}

func TestAdditiveStrategyFiltersDestructive(t *testing.T) {
	g := NewGenerator("eav_value", nil)

	m, err := g.Generate(diffSet(missingTableDiff(), orphanedTableDiff()), StrategyAdditive)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if len(m.Differences) != 1 || m.Differences[0].Type != schema.DiffMissingTable {
		t.Errorf("additive kept %+v, want only the missing table", m.Differences)
	}
	for _, stmt := range m.UpSQL {
		if strings.Contains(stmt, "DROP TABLE eav_value_blob") {
			t.Error("additive migration must not drop tables")
		}
	}

	// A purely destructive set yields nothing under additive.
	m, err = g.Generate(diffSet(orphanedTableDiff()), StrategyAdditive)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if m != nil {
		t.Error("additive over only-destructive differences should yield no migration")
	}
}

func TestDestructiveDownPathIsMarkedIrreversible(t *testing.T) {
	g := NewGenerator("eav_value", nil)

	m, err := g.Generate(diffSet(orphanedTableDiff()), StrategyFull)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if m.Reversible() {
		t.Error("dropping a table cannot be reversible")
	}
	if !strings.HasPrefix(m.DownSQL[0], IrreversibleMarker) {
		t.Errorf("down = %v, want irreversible marker", m.DownSQL)
	}
}

func TestValidatorDestructiveWithoutBackupIsError(t *testing.T) {
	g := NewGenerator("eav_value", nil)
	v := NewValidator(nil)

	m, err := g.Generate(diffSet(orphanedTableDiff()), StrategyFull)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	result := v.Validate(m, false)
	if result.Valid() {
		t.Error("destructive change without backup must be an error")
	}
	if result.AutoApprove {
		t.Error("errors block auto-approval")
	}

	withBackup := v.Validate(m, true)
	if !withBackup.Valid() {
		t.Errorf("backup should clear the error, got %v", withBackup.Errors)
	}
	// medium+drop scores 50, above the auto-approve threshold.
	if withBackup.AutoApprove {
		t.Error("risk 50 requires explicit confirmation")
	}
	if len(withBackup.Warnings) == 0 {
		t.Error("irreversible down path should warn")
	}
}

func TestValidatorAutoApprovesLowRisk(t *testing.T) {
	g := NewGenerator("eav_value", nil)
	v := NewValidator(nil)

	m, err := g.Generate(diffSet(missingTableDiff()), StrategyFull)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	result := v.Validate(m, false)
	if !result.Valid() {
		t.Fatalf("errors = %v", result.Errors)
	}
	// critical+add scores exactly 40, the auto-approve boundary.
	if result.RiskScore != 40 || !result.AutoApprove {
		t.Errorf("risk = %d auto = %v, want 40/true", result.RiskScore, result.AutoApprove)
	}
}

func TestValidatorEmptyUpIsError(t *testing.T) {
	v := NewValidator(nil)
	m := &Migration{Name: "x_product", EntityType: "product"}
	result := v.Validate(m, true)
	if result.Valid() {
		t.Error("empty forward path must be an error")
	}
}

func TestExecutorApplyAndRevert(t *testing.T) {
	db := qtesting.CreateTestDB(t)
	ctx := context.Background()
	g := NewGenerator("eav_value", nil)
	e := NewExecutor(db, nil)

	if _, err := db.Exec("DROP TABLE eav_value_varchar"); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	m, err := g.Generate(diffSet(missingTableDiff()), StrategyFull)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if err := e.Apply(ctx, m); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	var n int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'eav_value_varchar'").Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 1 {
		t.Error("apply should recreate the table")
	}

	applied, err := e.IsApplied(ctx, m.Name)
	if err != nil || !applied {
		t.Fatalf("IsApplied() = %v, %v", applied, err)
	}
	if err := e.Apply(ctx, m); err == nil {
		t.Error("re-applying a recorded migration must fail")
	}

	records, err := e.Applied(ctx, "product")
	if err != nil || len(records) != 1 {
		t.Fatalf("Applied() = %v, %v", records, err)
	}

	if err := e.Revert(ctx, m); err != nil {
		t.Fatalf("Revert() error: %v", err)
	}
	if applied, _ := e.IsApplied(ctx, m.Name); applied {
		t.Error("revert should remove the record")
	}
}

func TestExecutorRefusesIrreversibleRevert(t *testing.T) {
	db := qtesting.CreateTestDB(t)
	g := NewGenerator("eav_value", nil)
	e := NewExecutor(db, nil)

	m, err := g.Generate(diffSet(orphanedTableDiff()), StrategyFull)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if err := e.Revert(context.Background(), m); err == nil {
		t.Error("irreversible migration must refuse revert")
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"additive", "full", "dry_run"} {
		if _, err := ParseStrategy(s); err != nil {
			t.Errorf("ParseStrategy(%s) error: %v", s, err)
		}
	}
	if _, err := ParseStrategy("yolo"); err == nil {
		t.Error("unknown strategy should fail")
	}
}
