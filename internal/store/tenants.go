package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skiffcloud/skiff/internal/db"
	"github.com/skiffcloud/skiff/internal/domain"
)

// CreateTenant persists a new tenant record. The caller supplies the id and
// derived database credentials.
func (s *Store) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	if tenant == nil || tenant.ID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(tenant.Name) == "" {
		return fmt.Errorf("tenant name is required")
	}

	now := domain.NowMillis()
	if tenant.CreatedAt == 0 {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now
	if tenant.Status == "" {
		tenant.Status = domain.TenantCreated
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO tenants (id, name, status, db_name, db_user, db_password, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tenant.ID, tenant.Name, string(tenant.Status), tenant.DBName, tenant.DBUser,
		tenant.DBPassword, tenant.CreatedBy, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// GetTenant loads a tenant record by id. Returns ErrNotFound if absent.
func (s *Store) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	var tenant domain.Tenant
	var status string
	err := s.db.QueryRow(ctx, `
		SELECT id, name, status, db_name, db_user, db_password, created_by, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(
		&tenant.ID,
		&tenant.Name,
		&status,
		&tenant.DBName,
		&tenant.DBUser,
		&tenant.DBPassword,
		&tenant.CreatedBy,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if errors.Is(err, db.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	tenant.Status = domain.TenantStatus(status)
	return &tenant, nil
}

// ListTenants returns tenant records ordered by id.
func (s *Store) ListTenants(ctx context.Context, limit, offset int) ([]*domain.Tenant, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, name, status, db_name, db_user, db_password, created_by, created_at, updated_at
		FROM tenants
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*domain.Tenant, 0)
	for rows.Next() {
		var tenant domain.Tenant
		var status string
		if err := rows.Scan(
			&tenant.ID,
			&tenant.Name,
			&status,
			&tenant.DBName,
			&tenant.DBUser,
			&tenant.DBPassword,
			&tenant.CreatedBy,
			&tenant.CreatedAt,
			&tenant.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenant.Status = domain.TenantStatus(status)
		tenants = append(tenants, &tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tenants rows: %w", err)
	}
	return tenants, nil
}

// UpdateTenantStatus moves a tenant to a new lifecycle status.
func (s *Store) UpdateTenantStatus(ctx context.Context, id string, status domain.TenantStatus) error {
	res, err := s.db.Exec(ctx, `
		UPDATE tenants SET status = $2, updated_at = $3 WHERE id = $1
	`, id, string(status), domain.NowMillis())
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return nil
}
