package batch

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/andrfilipenk/new-sub004/eav/storage"
	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/errors"
	qtesting "github.com/andrfilipenk/new-sub004/internal/testing"
)

func batchFixture(t *testing.T) (*sql.DB, *types.EntityType, *Manager) {
	t.Helper()
	db := qtesting.CreateTestDB(t)

	et, err := types.NewEntityType("product", "Product",
		&types.Attribute{Code: "sku", Backend: types.BackendVarchar, Required: true, SortOrder: 1},
		&types.Attribute{Code: "price", Backend: types.BackendDecimal, SortOrder: 2},
		&types.Attribute{Code: "qty", Backend: types.BackendInt, SortOrder: 3},
	)
	if err != nil {
		t.Fatalf("NewEntityType() error: %v", err)
	}
	if err := storage.NewMetadataStore(db, nil).SaveEntityType(context.Background(), et); err != nil {
		t.Fatalf("SaveEntityType() error: %v", err)
	}

	return db, et, NewManager(db, "eav_value", 10, 3, nil, nil)
}

func entityCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM eav_entity").Scan(&n); err != nil {
		t.Fatalf("count entities: %v", err)
	}
	return n
}

func items(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"sku": fmt.Sprintf("P%d", i), "qty": int64(i)}
	}
	return out
}

func TestBatchCreateChunked(t *testing.T) {
	db, et, m := batchFixture(t)

	// 8 items across chunk size 3 means three chunks in one transaction.
	result, err := m.BatchCreate(context.Background(), et, items(8))
	if err != nil {
		t.Fatalf("BatchCreate() error: %v", err)
	}
	if result.Created != 8 || len(result.EntityIDs) != 8 {
		t.Errorf("result = %+v, want 8 created", result)
	}
	if entityCount(t, db) != 8 {
		t.Errorf("entity rows = %d, want 8", entityCount(t, db))
	}
}

func TestBatchOverLimitRejectedWithoutEffect(t *testing.T) {
	db, et, m := batchFixture(t)

	before := entityCount(t, db)
	_, err := m.BatchCreate(context.Background(), et, items(11))
	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("BatchCreate() = %v, want ValidationErrors", err)
	}
	if entityCount(t, db) != before {
		t.Error("over-limit batch must have no partial effect")
	}
}

func TestDefaultLimitRejectsOversizedBatch(t *testing.T) {
	db, et, _ := batchFixture(t)
	m := NewManager(db, "eav_value", 0, 0, nil, nil)

	before := entityCount(t, db)
	_, err := m.BatchCreate(context.Background(), et, items(DefaultMaxBatchSize+1))
	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("BatchCreate() = %v, want ValidationErrors", err)
	}
	if entityCount(t, db) != before {
		t.Error("oversized batch must have no partial effect")
	}
}

func TestBatchCreateValidatesBeforeWrite(t *testing.T) {
	db, et, m := batchFixture(t)

	bad := items(4)
	bad[2]["qty"] = "not a number"
	delete(bad[3], "sku")

	_, err := m.BatchCreate(context.Background(), et, bad)
	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("BatchCreate() = %v, want ValidationErrors", err)
	}
	if _, ok := verrs.Fields["item[2].qty"]; !ok {
		t.Errorf("bad qty should be keyed by item index, got %v", verrs.Fields)
	}
	if _, ok := verrs.Fields["item[3].sku"]; !ok {
		t.Errorf("missing sku should be keyed by item index, got %v", verrs.Fields)
	}
	if entityCount(t, db) != 0 {
		t.Error("invalid batch must not write")
	}
}

func TestBatchUpdateValues(t *testing.T) {
	db, et, m := batchFixture(t)
	ctx := context.Background()

	created, err := m.BatchCreate(ctx, et, items(3))
	if err != nil {
		t.Fatalf("BatchCreate() error: %v", err)
	}

	updates := map[int64]map[string]any{
		created.EntityIDs[0]: {"price": 9.99},
		created.EntityIDs[1]: {"price": 19.99, "qty": nil},
	}
	result, err := m.BatchUpdateValues(ctx, et, updates)
	if err != nil {
		t.Fatalf("BatchUpdateValues() error: %v", err)
	}
	if result.Updated != 2 {
		t.Errorf("updated = %d, want 2", result.Updated)
	}

	var n int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM eav_value_int WHERE entity_id = ?", created.EntityIDs[1]).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 0 {
		t.Error("nil value should delete the qty row")
	}
}

func TestBatchDeleteRollsBackOnMissingEntity(t *testing.T) {
	db, et, m := batchFixture(t)
	ctx := context.Background()

	created, err := m.BatchCreate(ctx, et, items(4))
	if err != nil {
		t.Fatalf("BatchCreate() error: %v", err)
	}

	// The missing id lands in the second chunk; the first chunk's
	// deletes must be rolled back with it.
	ids := append(created.EntityIDs[:4:4], 9999)
	_, err = m.BatchDelete(ctx, et, ids, true)
	if err == nil {
		t.Fatal("delete with missing id should fail")
	}
	if entityCount(t, db) != 4 {
		t.Errorf("entity rows = %d, want 4 (full rollback)", entityCount(t, db))
	}
}

func TestBatchHardDeleteRemovesValueRows(t *testing.T) {
	db, et, m := batchFixture(t)
	ctx := context.Background()

	created, err := m.BatchCreate(ctx, et, items(2))
	if err != nil {
		t.Fatalf("BatchCreate() error: %v", err)
	}
	result, err := m.BatchDelete(ctx, et, created.EntityIDs, true)
	if err != nil {
		t.Fatalf("BatchDelete() error: %v", err)
	}
	if result.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", result.Deleted)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM eav_value_varchar").Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 0 {
		t.Errorf("varchar rows = %d, want 0", n)
	}
}

func TestBatchCopyDuplicatesValues(t *testing.T) {
	db, et, m := batchFixture(t)
	ctx := context.Background()

	created, err := m.BatchCreate(ctx, et, []map[string]any{
		{"sku": "P0", "price": 9.99, "qty": int64(5)},
	})
	if err != nil {
		t.Fatalf("BatchCreate() error: %v", err)
	}

	result, err := m.BatchCopy(ctx, et, created.EntityIDs)
	if err != nil {
		t.Fatalf("BatchCopy() error: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("created = %d, want 1", result.Created)
	}

	var sku string
	if err := db.QueryRow(
		"SELECT value FROM eav_value_varchar WHERE entity_id = ?", result.EntityIDs[0]).Scan(&sku); err != nil {
		t.Fatalf("query copy: %v", err)
	}
	if sku != "P0" {
		t.Errorf("copied sku = %q, want P0", sku)
	}

	_, err = m.BatchCopy(ctx, et, []int64{12345})
	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("BatchCopy(missing) = %v, want ValidationErrors", err)
	}
}
