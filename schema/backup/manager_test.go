package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/andrfilipenk/new-sub004/eav/storage"
	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/eav/values"
	qtesting "github.com/andrfilipenk/new-sub004/internal/testing"
)

func backupFixture(t *testing.T) (*sql.DB, *types.EntityType, *Manager) {
	t.Helper()
	db := qtesting.CreateTestDB(t)

	et, err := types.NewEntityType("product", "Product",
		&types.Attribute{Code: "sku", Backend: types.BackendVarchar, SortOrder: 1},
		&types.Attribute{Code: "qty", Backend: types.BackendInt, SortOrder: 2},
	)
	if err != nil {
		t.Fatalf("NewEntityType() error: %v", err)
	}
	if err := storage.NewMetadataStore(db, nil).SaveEntityType(context.Background(), et); err != nil {
		t.Fatalf("SaveEntityType() error: %v", err)
	}

	return db, et, NewManager(afero.NewMemMapFs(), db, "/backups", "eav_value", 30, nil)
}

func seedEntity(t *testing.T, db *sql.DB, et *types.EntityType, sku string, qty int64) int64 {
	t.Helper()
	ctx := context.Background()
	es := storage.NewEntityStore(db, nil)
	vs := storage.NewValueStore(db, "eav_value", values.NewTransformer(), nil)

	id, err := es.Insert(ctx, db, et, time.Now())
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if err := vs.SaveValues(ctx, db, et, id, map[string]any{"sku": sku, "qty": qty}); err != nil {
		t.Fatalf("SaveValues() error: %v", err)
	}
	return id
}

func TestCreateAndListBackups(t *testing.T) {
	db, et, m := backupFixture(t)
	ctx := context.Background()

	seedEntity(t, db, et, "P1", 5)
	record, err := m.Create(ctx, et, KindFull)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if record.ID == "" || record.Size == 0 || record.TypeCode != "product" {
		t.Errorf("record = %+v", record)
	}

	records, err := m.List("product")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 1 || records[0].ID != record.ID {
		t.Errorf("records = %+v", records)
	}

	all, err := m.List("")
	if err != nil || len(all) != 1 {
		t.Fatalf("List(all) = %v, %v", all, err)
	}

	if _, err := m.Find(record.ID); err != nil {
		t.Errorf("Find() error: %v", err)
	}
	if _, err := m.Find("nope"); err == nil {
		t.Error("unknown backup id should fail")
	}
}

func TestRestoreDataBackup(t *testing.T) {
	db, et, m := backupFixture(t)
	ctx := context.Background()

	id := seedEntity(t, db, et, "P1", 5)
	record, err := m.Create(ctx, et, KindData)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Mutate after the backup, then restore.
	if _, err := db.Exec("UPDATE eav_value_int SET value = 99 WHERE entity_id = ?", id); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if err := m.Restore(ctx, record.ID); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	var qty int64
	if err := db.QueryRow("SELECT value FROM eav_value_int WHERE entity_id = ?", id).Scan(&qty); err != nil {
		t.Fatalf("query: %v", err)
	}
	if qty != 5 {
		t.Errorf("qty = %d, want restored 5", qty)
	}
}

func TestRestoreFullBackupRecreatesDroppedTable(t *testing.T) {
	db, et, m := backupFixture(t)
	ctx := context.Background()

	id := seedEntity(t, db, et, "P1", 5)
	record, err := m.Create(ctx, et, KindFull)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := db.Exec("DROP TABLE eav_value_varchar"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := m.Restore(ctx, record.ID); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	var sku string
	if err := db.QueryRow("SELECT value FROM eav_value_varchar WHERE entity_id = ?", id).Scan(&sku); err != nil {
		t.Fatalf("query: %v", err)
	}
	if sku != "P1" {
		t.Errorf("sku = %q, want P1", sku)
	}
}

func TestSweepRemovesExpiredOnly(t *testing.T) {
	db, et, _ := backupFixture(t)
	ctx := context.Background()

	fs := afero.NewMemMapFs()
	m := NewManager(fs, db, "/backups", "eav_value", 7, nil)

	fresh, err := m.Create(ctx, et, KindSchema)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Age a second artifact past retention by rewriting its manifest.
	old, err := m.Create(ctx, et, KindSchema)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	art, err := m.readArtifact(old.Path)
	if err != nil {
		t.Fatalf("readArtifact() error: %v", err)
	}
	art.Manifest.CreatedAt = time.Now().UTC().AddDate(0, 0, -8)
	raw, err := json.Marshal(art)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := afero.WriteFile(fs, old.Path, raw, 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	removed, err := m.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := m.Find(fresh.ID); err != nil {
		t.Error("fresh backup should survive the sweep")
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"schema", "data", "full"} {
		if _, err := ParseKind(s); err != nil {
			t.Errorf("ParseKind(%s) error: %v", s, err)
		}
	}
	if _, err := ParseKind("tarball"); err == nil {
		t.Error("unknown kind should fail")
	}
}
