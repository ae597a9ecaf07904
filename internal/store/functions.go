package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/skiffcloud/skiff/internal/db"
	"github.com/skiffcloud/skiff/internal/domain"
)

// SaveFunction upserts an authored function definition by (tenant_id, name).
// The content hash is recomputed from the source on every write.
func (s *Store) SaveFunction(ctx context.Context, fn *domain.Function) error {
	if fn.TenantID == "" {
		return fmt.Errorf("function tenant id is required")
	}
	if err := fn.Validate(); err != nil {
		return err
	}
	if fn.ID == "" {
		fn.ID = uuid.New().String()
	}
	if fn.Status == "" {
		fn.Status = domain.StatusEnabled
	}
	fn.Rehash()

	now := domain.NowMillis()
	if fn.CreatedAt == 0 {
		fn.CreatedAt = now
	}
	fn.UpdatedAt = now

	data, err := json.Marshal(fn)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO functions (id, tenant_id, name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		ON CONFLICT (tenant_id, name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, fn.ID, fn.TenantID, fn.Name, data, fn.CreatedAt, fn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save function: %w", err)
	}
	return nil
}

// FindByTenant returns every function definition for the tenant, ordered by
// name. Disabled functions are included; publish snapshots carry them for
// operator visibility.
func (s *Store) FindByTenant(ctx context.Context, tenantID string) ([]*domain.Function, error) {
	rows, err := s.db.Query(ctx, `
		SELECT data
		FROM functions
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("find functions by tenant: %w", err)
	}
	defer rows.Close()

	var functions []*domain.Function
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("find functions scan: %w", err)
		}
		var fn domain.Function
		if err := json.Unmarshal(data, &fn); err != nil {
			return nil, fmt.Errorf("decode function: %w", err)
		}
		if fn.TenantID == "" {
			fn.TenantID = tenantID
		}
		functions = append(functions, &fn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find functions rows: %w", err)
	}
	return functions, nil
}

// FindByName loads one function definition by (tenant_id, name).
// Returns ErrNotFound if absent.
func (s *Store) FindByName(ctx context.Context, tenantID, name string) (*domain.Function, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `
		SELECT data
		FROM functions
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, name).Scan(&data)
	if errors.Is(err, db.ErrNoRows) {
		return nil, fmt.Errorf("function %s/%s: %w", tenantID, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find function by name: %w", err)
	}

	var fn domain.Function
	if err := json.Unmarshal(data, &fn); err != nil {
		return nil, fmt.Errorf("decode function: %w", err)
	}
	if fn.TenantID == "" {
		fn.TenantID = tenantID
	}
	return &fn, nil
}

// DeleteFunction removes one authored definition.
func (s *Store) DeleteFunction(ctx context.Context, tenantID, name string) error {
	res, err := s.db.Exec(ctx, `
		DELETE FROM functions
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, name)
	if err != nil {
		return fmt.Errorf("delete function: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("function %s/%s: %w", tenantID, name, ErrNotFound)
	}
	return nil
}

// UpsertAction describes what one batch item did to the system store.
type UpsertAction string

const (
	ActionUpdated  UpsertAction = "updated"
	ActionInserted UpsertAction = "inserted"
)

// UpsertResult reports the outcome of one item in a deploy batch.
type UpsertResult struct {
	Name    string       `json:"name"`
	Action  UpsertAction `json:"action"`
	Matched int64        `json:"matched,omitempty"`
	ID      string       `json:"id,omitempty"`
}

// UpsertFunctions applies a deploy batch to the system store as one
// transaction. Items are applied in batch order, so a duplicate name later in
// the batch overwrites an earlier one (last write wins). Any failure rolls
// the whole batch back.
func (s *Store) UpsertFunctions(ctx context.Context, tenantID string, fns []*domain.Function) ([]UpsertResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	results := make([]UpsertResult, 0, len(fns))
	for _, fn := range fns {
		res, err := upsertOne(ctx, tx, tenantID, fn)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit deploy: %w", err)
	}
	return results, nil
}

// upsertOne updates an existing row matched by (tenant_id, name) or inserts a
// new one. The store owns identity: a matched row keeps its stored id and a
// new row gets a fresh one; whatever id the sender carried is ignored.
func upsertOne(ctx context.Context, tx db.Tx, tenantID string, fn *domain.Function) (UpsertResult, error) {
	fn.TenantID = tenantID
	if fn.UpdatedAt == 0 {
		fn.UpdatedAt = domain.NowMillis()
	}
	if fn.CreatedAt == 0 {
		fn.CreatedAt = fn.UpdatedAt
	}

	var existingID string
	err := tx.QueryRow(ctx, `
		SELECT id
		FROM functions
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, fn.Name).Scan(&existingID)
	if err != nil && !errors.Is(err, db.ErrNoRows) {
		return UpsertResult{}, fmt.Errorf("deploy lookup %s: %w", fn.Name, err)
	}

	if err == nil {
		fn.ID = existingID
		data, err := json.Marshal(fn)
		if err != nil {
			return UpsertResult{}, err
		}
		res, err := tx.Exec(ctx, `
			UPDATE functions
			SET data = $3::jsonb, updated_at = $4
			WHERE tenant_id = $1 AND name = $2
		`, tenantID, fn.Name, data, fn.UpdatedAt)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("deploy update %s: %w", fn.Name, err)
		}
		return UpsertResult{Name: fn.Name, Action: ActionUpdated, Matched: res.RowsAffected()}, nil
	}

	fn.ID = uuid.New().String()
	data, err := json.Marshal(fn)
	if err != nil {
		return UpsertResult{}, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO functions (id, tenant_id, name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
	`, fn.ID, tenantID, fn.Name, data, fn.CreatedAt, fn.UpdatedAt); err != nil {
		return UpsertResult{}, fmt.Errorf("deploy insert %s: %w", fn.Name, err)
	}
	return UpsertResult{Name: fn.Name, Action: ActionInserted, ID: fn.ID}, nil
}
