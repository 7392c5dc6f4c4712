package cache

import (
	"context"
	"testing"
	"time"

	"github.com/andrfilipenk/new-sub004/eav/storage"
	qtesting "github.com/andrfilipenk/new-sub004/internal/testing"
)

func cacheFixture(t *testing.T) *Manager {
	t.Helper()
	db := qtesting.CreateTestDB(t)
	return NewManager(storage.NewCacheStore(db, nil), "eav", time.Hour, nil)
}

func TestSetGetRoundTrip(t *testing.T) {
	m := cacheFixture(t)
	ctx := context.Background()

	type payload struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	}

	if err := m.Set(ctx, m.EntityKey("product", 1), payload{Name: "Widget", Price: 9.99}, 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	var got payload
	found, err := m.Get(ctx, m.EntityKey("product", 1), &got)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.Name != "Widget" || got.Price != 9.99 {
		t.Errorf("got %+v", got)
	}
}

func TestGetSurvivesMemoryLoss(t *testing.T) {
	db := qtesting.CreateTestDB(t)
	ctx := context.Background()
	store := storage.NewCacheStore(db, nil)

	writer := NewManager(store, "eav", time.Hour, nil)
	if err := writer.Set(ctx, writer.TypeKey("product"), 42, 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	// A fresh manager has an empty memory tier and must fall back to
	// the durable table.
	reader := NewManager(store, "eav", time.Hour, nil)
	var got int
	found, err := reader.Get(ctx, reader.TypeKey("product"), &got)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !found || got != 42 {
		t.Errorf("found=%v got=%d, want durable hit 42", found, got)
	}
}

func TestRememberProducesOnce(t *testing.T) {
	m := cacheFixture(t)
	ctx := context.Background()

	calls := 0
	produce := func(context.Context) (any, error) {
		calls++
		return []int64{1, 2, 3}, nil
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		ids = nil
		if err := m.Remember(ctx, m.QueryKey("abc"), time.Minute, &ids, produce); err != nil {
			t.Fatalf("Remember() error: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("producer ran %d times, want 1", calls)
	}
	if len(ids) != 3 || ids[2] != 3 {
		t.Errorf("ids = %v", ids)
	}
}

func TestInvalidateEntityClearsRelatedKeys(t *testing.T) {
	m := cacheFixture(t)
	ctx := context.Background()

	keys := []string{
		m.EntityKey("product", 1),
		m.EntityKey("product", 2),
		m.TypeKey("product"),
		m.QueryKey("q1"),
		m.EntityKey("customer", 1),
	}
	for _, key := range keys {
		if err := m.Set(ctx, key, "v", 0); err != nil {
			t.Fatalf("Set(%s) error: %v", key, err)
		}
	}

	if err := m.InvalidateEntity(ctx, "product", 1); err != nil {
		t.Fatalf("InvalidateEntity() error: %v", err)
	}

	var v string
	for _, key := range keys[:4] {
		if found, _ := m.Get(ctx, key, &v); found {
			t.Errorf("%s should be invalidated", key)
		}
	}
	if found, _ := m.Get(ctx, m.EntityKey("customer", 1), &v); !found {
		t.Error("unrelated entity type should survive invalidation")
	}
}

func TestExpiredEntryMisses(t *testing.T) {
	m := cacheFixture(t)
	ctx := context.Background()

	if err := m.Set(ctx, m.QueryKey("old"), "v", time.Nanosecond); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	var v string
	if found, _ := m.Get(ctx, m.QueryKey("old"), &v); found {
		t.Error("expired entry should miss")
	}

	if _, err := m.PurgeExpired(ctx); err != nil {
		t.Fatalf("PurgeExpired() error: %v", err)
	}
}

func TestHashQueryIsStable(t *testing.T) {
	a := HashQuery("product", "price>5", "sku desc", 10, 0)
	b := HashQuery("product", "price>5", "sku desc", 10, 0)
	c := HashQuery("product", "price>5", "sku desc", 10, 10)
	if a != b {
		t.Error("identical inputs should hash equal")
	}
	if a == c {
		t.Error("different paging should hash differently")
	}
}
