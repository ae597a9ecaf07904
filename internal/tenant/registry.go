// Package tenant implements the tenant registry: resolving a tenant id to
// the connection configuration of its dedicated database, and creating new
// tenant records with derived credentials.
package tenant

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skiffcloud/skiff/internal/cache"
	"github.com/skiffcloud/skiff/internal/domain"
	"github.com/skiffcloud/skiff/internal/store"
)

// Standard sentinel errors for tenant resolution.
var (
	// ErrTenantNotFound is returned when no tenant record matches the id.
	ErrTenantNotFound = errors.New("tenant: not found")

	// ErrInvalidConfig is returned when a tenant record is missing one of
	// the credential fields required to open its database.
	ErrInvalidConfig = errors.New("tenant: invalid connection config")
)

const cacheTTL = 30 * time.Second

// Records is the slice of the system store the registry needs.
// *store.Store satisfies it.
type Records interface {
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
	CreateTenant(ctx context.Context, tenant *domain.Tenant) error
	UpdateTenantStatus(ctx context.Context, id string, status domain.TenantStatus) error
}

// Registry resolves tenant identities against the system store, with an
// optional read cache in front of tenant record lookups.
type Registry struct {
	store   Records
	baseURI string
	cache   cache.Cache
}

// NewRegistry creates a tenant registry. The cache may be nil, in which case
// every lookup hits the system store.
func NewRegistry(s Records, baseURI string, c cache.Cache) *Registry {
	return &Registry{store: s, baseURI: baseURI, cache: c}
}

// Get loads a tenant record by id.
func (r *Registry) Get(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("empty tenant id: %w", ErrTenantNotFound)
	}

	if r.cache != nil {
		if data, err := r.cache.Get(ctx, cacheKey(tenantID)); err == nil {
			var tenant domain.Tenant
			if err := json.Unmarshal(data, &tenant); err == nil {
				return &tenant, nil
			}
		}
	}

	tenant, err := r.store.GetTenant(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrTenantNotFound)
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(tenant); err == nil {
			r.cache.Set(ctx, cacheKey(tenantID), data, cacheTTL)
		}
	}
	return tenant, nil
}

// Resolve maps a tenant id to the connection configuration of its dedicated
// database. The credential triple is validated before the config is handed
// out; a record missing any of the three fails with ErrInvalidConfig.
func (r *Registry) Resolve(ctx context.Context, tenantID string) (*domain.ConnConfig, error) {
	tenant, err := r.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	cfg := tenant.ConnConfig(r.baseURI)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tenant %s: %v: %w", tenantID, err, ErrInvalidConfig)
	}
	return cfg, nil
}

// Create generates a new tenant record with derived database credentials and
// persists it. Provisioning the physical database is the caller's next step.
func (r *Registry) Create(ctx context.Context, name, createdBy string) (*domain.Tenant, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("tenant name is required")
	}

	id := uuid.New().String()
	suffix := strings.ReplaceAll(id, "-", "")[:12]
	password, err := randomPassword()
	if err != nil {
		return nil, err
	}

	tenant := &domain.Tenant{
		ID:         id,
		Name:       name,
		Status:     domain.TenantCreated,
		DBName:     "skiff_" + suffix,
		DBUser:     "skiff_" + suffix + "_rw",
		DBPassword: password,
		CreatedBy:  createdBy,
	}

	if err := r.store.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// MarkRunning transitions a tenant to running after its database has been
// provisioned, and drops any cached copy of the record.
func (r *Registry) MarkRunning(ctx context.Context, tenantID string) error {
	return r.setStatus(ctx, tenantID, domain.TenantRunning)
}

// MarkStopped transitions a tenant to stopped, and drops any cached copy of
// the record so the stale status cannot be served.
func (r *Registry) MarkStopped(ctx context.Context, tenantID string) error {
	return r.setStatus(ctx, tenantID, domain.TenantStopped)
}

func (r *Registry) setStatus(ctx context.Context, tenantID string, status domain.TenantStatus) error {
	if err := r.store.UpdateTenantStatus(ctx, tenantID, status); err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.Delete(ctx, cacheKey(tenantID))
	}
	return nil
}

func cacheKey(tenantID string) string {
	return "tenant:" + tenantID
}

func randomPassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
