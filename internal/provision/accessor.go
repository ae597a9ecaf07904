package provision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skiffcloud/skiff/internal/db"
	"github.com/skiffcloud/skiff/internal/domain"
)

// publishLockKey serializes function replacement within one tenant database.
// Advisory locks are scoped to the database they are taken in, and each
// tenant has its own database, so a constant key locks exactly one tenant.
const publishLockKey int64 = 0x736b665f707562 // "skf_pub"

// Accessor is an open, initialized connection scoped to one tenant database.
type Accessor struct {
	db     db.Database
	dbName string
}

// NewAccessor wraps an already open database. Used by tests; production
// accessors come from Provisioner.Open.
func NewAccessor(database db.Database, dbName string) *Accessor {
	return &Accessor{db: database, dbName: dbName}
}

// DBName returns the name of the tenant database this accessor is bound to.
func (a *Accessor) DBName() string {
	return a.dbName
}

// Close releases the accessor's connections. It must be called exactly once
// per successful Open, on every exit path.
func (a *Accessor) Close() {
	a.db.Close()
}

func (a *Accessor) ensureSchema(ctx context.Context) error {
	_, err := a.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS functions (
			name TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure tenant schema: %w", err)
	}
	return nil
}

// ReplaceFunctions wholesale replaces the tenant's deployed function set
// inside a single transaction: delete everything, insert the new snapshot.
// Readers never observe a partial state; on any failure the transaction
// rolls back and the previous set stays in place.
func (a *Accessor) ReplaceFunctions(ctx context.Context, fns []*domain.DeployedFunction) error {
	tx, err := a.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, publishLockKey); err != nil {
		return fmt.Errorf("acquire publish lock: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM functions`); err != nil {
		return fmt.Errorf("clear deployed functions: %w", err)
	}

	for _, fn := range fns {
		data, err := json.Marshal(fn)
		if err != nil {
			return fmt.Errorf("encode function %s: %w", fn.Name, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO functions (name, data, created_at, updated_at)
			VALUES ($1, $2::jsonb, $3, $4)
		`, fn.Name, data, fn.CreatedAt, fn.UpdatedAt); err != nil {
			return fmt.Errorf("insert function %s: %w", fn.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// ListFunctions returns the tenant's deployed functions ordered by name.
func (a *Accessor) ListFunctions(ctx context.Context) ([]*domain.DeployedFunction, error) {
	rows, err := a.db.Query(ctx, `SELECT data FROM functions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list deployed functions: %w", err)
	}
	defer rows.Close()

	var fns []*domain.DeployedFunction
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan deployed function: %w", err)
		}
		var fn domain.DeployedFunction
		if err := json.Unmarshal(data, &fn); err != nil {
			return nil, fmt.Errorf("decode deployed function: %w", err)
		}
		fns = append(fns, &fn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deployed functions rows: %w", err)
	}
	return fns, nil
}
