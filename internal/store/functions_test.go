package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/skiffcloud/skiff/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *fakeDB) {
	t.Helper()
	database := newFakeDB()
	s, err := New(context.Background(), database)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, database
}

func batchFn(name, code string) *domain.Function {
	return &domain.Function{Name: name, Code: code, Status: domain.StatusEnabled, Version: 1}
}

func TestUpsertInsertThenUpdate(t *testing.T) {
	s, database := newTestStore(t)
	ctx := context.Background()

	results, err := s.UpsertFunctions(ctx, "t1", []*domain.Function{batchFn("hello", "v1")})
	if err != nil {
		t.Fatalf("first deploy failed: %v", err)
	}
	if results[0].Action != ActionInserted || results[0].ID == "" {
		t.Fatalf("expected insert with generated id, got %+v", results[0])
	}

	results, err = s.UpsertFunctions(ctx, "t1", []*domain.Function{batchFn("hello", "v2")})
	if err != nil {
		t.Fatalf("second deploy failed: %v", err)
	}
	if results[0].Action != ActionUpdated || results[0].Matched != 1 {
		t.Fatalf("expected update with matched=1, got %+v", results[0])
	}

	if len(database.functions) != 1 {
		t.Fatalf("expected a single row, got %d", len(database.functions))
	}
	fn, err := s.FindByName(ctx, "t1", "hello")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if fn.Code != "v2" {
		t.Fatalf("update did not replace the code: %q", fn.Code)
	}
}

func TestUpsertAllOrNothing(t *testing.T) {
	s, database := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertFunctions(ctx, "t1", []*domain.Function{batchFn("existing", "v1")}); err != nil {
		t.Fatalf("seed deploy failed: %v", err)
	}

	database.failExec = func(sql string, args []any) error {
		if strings.Contains(sql, "INSERT INTO functions") && args[2] == "boom" {
			return fmt.Errorf("connection reset by peer")
		}
		return nil
	}

	_, err := s.UpsertFunctions(ctx, "t1", []*domain.Function{
		batchFn("existing", "v2"),
		batchFn("boom", "v1"),
		batchFn("untouched", "v1"),
	})
	if err == nil {
		t.Fatal("expected the batch to fail")
	}

	// The whole batch rolled back: the first item's update is gone too.
	database.failExec = nil
	fn, err := s.FindByName(ctx, "t1", "existing")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if fn.Code != "v1" {
		t.Fatalf("rolled-back update leaked: %q", fn.Code)
	}
	if len(database.functions) != 1 {
		t.Fatalf("expected only the seeded row, got %d", len(database.functions))
	}
}

func TestUpsertLastWriteWins(t *testing.T) {
	s, database := newTestStore(t)
	ctx := context.Background()

	results, err := s.UpsertFunctions(ctx, "t1", []*domain.Function{
		batchFn("dup", "first"),
		batchFn("dup", "second"),
	})
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	if results[0].Action != ActionInserted {
		t.Fatalf("first occurrence should insert, got %+v", results[0])
	}
	if results[1].Action != ActionUpdated || results[1].Matched != 1 {
		t.Fatalf("second occurrence should update the first, got %+v", results[1])
	}
	if len(database.functions) != 1 {
		t.Fatalf("expected a single row, got %d", len(database.functions))
	}

	fn, err := s.FindByName(ctx, "t1", "dup")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if fn.Code != "second" {
		t.Fatalf("expected the later occurrence to win, got %q", fn.Code)
	}
}

func TestUpsertDiscardsClientID(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	fn := batchFn("hello", "v1")
	fn.ID = "client-picked-id"
	results, err := s.UpsertFunctions(ctx, "t1", []*domain.Function{fn})
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	if results[0].ID == "client-picked-id" {
		t.Fatal("store must assign its own identity")
	}

	stored, err := s.FindByName(ctx, "t1", "hello")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if stored.ID != results[0].ID {
		t.Fatalf("stored id %q does not match reported id %q", stored.ID, results[0].ID)
	}
	if stored.TenantID != "t1" {
		t.Fatalf("tenant id not stamped: %q", stored.TenantID)
	}
}

func TestUpsertUpdateKeepsStoredIdentity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	results, err := s.UpsertFunctions(ctx, "t1", []*domain.Function{batchFn("hello", "v1")})
	if err != nil {
		t.Fatalf("first deploy failed: %v", err)
	}
	assignedID := results[0].ID
	if assignedID == "" {
		t.Fatal("insert must assign an id")
	}

	update := batchFn("hello", "v2")
	update.ID = "sender-supplied-id"
	if _, err := s.UpsertFunctions(ctx, "t1", []*domain.Function{update}); err != nil {
		t.Fatalf("second deploy failed: %v", err)
	}

	stored, err := s.FindByName(ctx, "t1", "hello")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if stored.ID != assignedID {
		t.Fatalf("update lost the store-assigned identity: want %q, got %q", assignedID, stored.ID)
	}
	if stored.Code != "v2" {
		t.Fatalf("update did not replace the code: %q", stored.Code)
	}
}

func TestUpsertScopedByTenant(t *testing.T) {
	s, database := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertFunctions(ctx, "t1", []*domain.Function{batchFn("hello", "tenant-one")}); err != nil {
		t.Fatalf("deploy to t1 failed: %v", err)
	}
	results, err := s.UpsertFunctions(ctx, "t2", []*domain.Function{batchFn("hello", "tenant-two")})
	if err != nil {
		t.Fatalf("deploy to t2 failed: %v", err)
	}
	if results[0].Action != ActionInserted {
		t.Fatalf("same name under another tenant must insert, got %+v", results[0])
	}
	if len(database.functions) != 2 {
		t.Fatalf("expected one row per tenant, got %d", len(database.functions))
	}

	fn, err := s.FindByName(ctx, "t1", "hello")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if fn.Code != "tenant-one" {
		t.Fatalf("t1's function was overwritten: %q", fn.Code)
	}
}

func TestSaveAndFindByTenant(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, fn := range []*domain.Function{
		{TenantID: "t1", Name: "zeta", Code: "z"},
		{TenantID: "t1", Name: "alpha", Code: "a"},
		{TenantID: "t2", Name: "other", Code: "o"},
	} {
		if err := s.SaveFunction(ctx, fn); err != nil {
			t.Fatalf("SaveFunction %s failed: %v", fn.Name, err)
		}
	}

	fns, err := s.FindByTenant(ctx, "t1")
	if err != nil {
		t.Fatalf("FindByTenant failed: %v", err)
	}
	if len(fns) != 2 {
		t.Fatalf("expected 2 functions for t1, got %d", len(fns))
	}
	if fns[0].Name != "alpha" || fns[1].Name != "zeta" {
		t.Fatalf("expected name order, got %s, %s", fns[0].Name, fns[1].Name)
	}
	if fns[0].Hash == "" {
		t.Fatal("save must compute the content hash")
	}
}

func TestSaveFunctionOverwritesByName(t *testing.T) {
	s, database := newTestStore(t)
	ctx := context.Background()

	first := &domain.Function{TenantID: "t1", Name: "hello", Code: "v1"}
	if err := s.SaveFunction(ctx, first); err != nil {
		t.Fatalf("SaveFunction failed: %v", err)
	}
	second := &domain.Function{TenantID: "t1", Name: "hello", Code: "v2"}
	if err := s.SaveFunction(ctx, second); err != nil {
		t.Fatalf("SaveFunction failed: %v", err)
	}

	if len(database.functions) != 1 {
		t.Fatalf("expected a single row, got %d", len(database.functions))
	}
	fn, err := s.FindByName(ctx, "t1", "hello")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if fn.Code != "v2" {
		t.Fatalf("expected overwrite, got %q", fn.Code)
	}
}

func TestFindByNameNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.FindByName(context.Background(), "t1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestDeleteFunction(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveFunction(ctx, &domain.Function{TenantID: "t1", Name: "hello", Code: "v1"}); err != nil {
		t.Fatalf("SaveFunction failed: %v", err)
	}
	if err := s.DeleteFunction(ctx, "t1", "hello"); err != nil {
		t.Fatalf("DeleteFunction failed: %v", err)
	}
	if err := s.DeleteFunction(ctx, "t1", "hello"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got: %v", err)
	}
}
