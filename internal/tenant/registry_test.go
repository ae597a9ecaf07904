package tenant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/skiffcloud/skiff/internal/cache"
	"github.com/skiffcloud/skiff/internal/domain"
	"github.com/skiffcloud/skiff/internal/store"
)

type fakeRecords struct {
	tenants map[string]*domain.Tenant
	gets    int
}

func newFakeRecords(tenants ...*domain.Tenant) *fakeRecords {
	f := &fakeRecords{tenants: make(map[string]*domain.Tenant)}
	for _, t := range tenants {
		f.tenants[t.ID] = t
	}
	return f
}

func (f *fakeRecords) GetTenant(_ context.Context, id string) (*domain.Tenant, error) {
	f.gets++
	t, ok := f.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, store.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRecords) CreateTenant(_ context.Context, t *domain.Tenant) error {
	if _, exists := f.tenants[t.ID]; exists {
		return fmt.Errorf("tenant %s already exists", t.ID)
	}
	cp := *t
	f.tenants[t.ID] = &cp
	return nil
}

func (f *fakeRecords) UpdateTenantStatus(_ context.Context, id string, status domain.TenantStatus) error {
	t, ok := f.tenants[id]
	if !ok {
		return fmt.Errorf("tenant %s: %w", id, store.ErrNotFound)
	}
	t.Status = status
	return nil
}

const baseURI = "postgres://localhost:5432/postgres?sslmode=disable"

func TestResolve(t *testing.T) {
	records := newFakeRecords(&domain.Tenant{
		ID: "t1", Name: "app one", DBName: "skiff_t1", DBUser: "skiff_t1_rw", DBPassword: "pw",
	})
	reg := NewRegistry(records, baseURI, nil)

	cfg, err := reg.Resolve(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.DBName != "skiff_t1" || cfg.DBUser != "skiff_t1_rw" || cfg.DBPassword != "pw" {
		t.Fatalf("bad config: %+v", cfg)
	}
	if cfg.BaseURI != baseURI {
		t.Fatalf("base uri not set: %s", cfg.BaseURI)
	}
}

func TestResolveNotFound(t *testing.T) {
	reg := NewRegistry(newFakeRecords(), baseURI, nil)

	_, err := reg.Resolve(context.Background(), "missing")
	if !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got: %v", err)
	}

	_, err = reg.Resolve(context.Background(), "  ")
	if !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound for blank id, got: %v", err)
	}
}

func TestResolveInvalidConfig(t *testing.T) {
	tests := []domain.Tenant{
		{ID: "t1", Name: "a", DBUser: "u", DBPassword: "p"},
		{ID: "t2", Name: "b", DBName: "db", DBPassword: "p"},
		{ID: "t3", Name: "c", DBName: "db", DBUser: "u"},
	}

	for _, tenant := range tests {
		reg := NewRegistry(newFakeRecords(&tenant), baseURI, nil)
		_, err := reg.Resolve(context.Background(), tenant.ID)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("tenant %s: expected ErrInvalidConfig, got: %v", tenant.ID, err)
		}
	}
}

func TestGetUsesCache(t *testing.T) {
	records := newFakeRecords(&domain.Tenant{
		ID: "t1", Name: "app", DBName: "db", DBUser: "u", DBPassword: "p",
	})
	c := cache.NewInMemory()
	defer c.Close()
	reg := NewRegistry(records, baseURI, c)

	ctx := context.Background()
	if _, err := reg.Get(ctx, "t1"); err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	if _, err := reg.Get(ctx, "t1"); err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if records.gets != 1 {
		t.Fatalf("expected one store lookup, got %d", records.gets)
	}
}

func TestCreateDerivesCredentials(t *testing.T) {
	records := newFakeRecords()
	reg := NewRegistry(records, baseURI, nil)

	tenant, err := reg.Create(context.Background(), "my app", "user-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if tenant.ID == "" {
		t.Fatal("expected generated tenant id")
	}
	if tenant.DBName == "" || tenant.DBUser == "" || tenant.DBPassword == "" {
		t.Fatalf("credentials not derived: %+v", tenant)
	}
	if tenant.Status != domain.TenantCreated {
		t.Fatalf("expected created status, got %s", tenant.Status)
	}

	// The derived record must already resolve to a valid config.
	if _, err := reg.Resolve(context.Background(), tenant.ID); err != nil {
		t.Fatalf("Resolve of fresh tenant failed: %v", err)
	}
}

func TestMarkRunningInvalidatesCache(t *testing.T) {
	records := newFakeRecords(&domain.Tenant{
		ID: "t1", Name: "app", Status: domain.TenantCreated,
		DBName: "db", DBUser: "u", DBPassword: "p",
	})
	c := cache.NewInMemory()
	defer c.Close()
	reg := NewRegistry(records, baseURI, c)

	ctx := context.Background()
	if _, err := reg.Get(ctx, "t1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if err := reg.MarkRunning(ctx, "t1"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	tenant, err := reg.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get after MarkRunning failed: %v", err)
	}
	if tenant.Status != domain.TenantRunning {
		t.Fatalf("stale cached record returned: %+v", tenant)
	}
}

func TestMarkStoppedInvalidatesCache(t *testing.T) {
	records := newFakeRecords(&domain.Tenant{
		ID: "t1", Name: "app", Status: domain.TenantRunning,
		DBName: "db", DBUser: "u", DBPassword: "p",
	})
	c := cache.NewInMemory()
	defer c.Close()
	reg := NewRegistry(records, baseURI, c)

	ctx := context.Background()
	if _, err := reg.Get(ctx, "t1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if err := reg.MarkStopped(ctx, "t1"); err != nil {
		t.Fatalf("MarkStopped failed: %v", err)
	}

	tenant, err := reg.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get after MarkStopped failed: %v", err)
	}
	if tenant.Status != domain.TenantStopped {
		t.Fatalf("stale cached record returned: %+v", tenant)
	}
}
