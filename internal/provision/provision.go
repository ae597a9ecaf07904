// Package provision owns the lifecycle of tenant database connections: it
// opens accessors scoped to one tenant's database, replaces a tenant's
// deployed function set transactionally, and provisions new tenant databases
// with a least-privilege user.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/skiffcloud/skiff/internal/db"
	"github.com/skiffcloud/skiff/internal/domain"
)

// ErrConnection is returned when a tenant database cannot be reached or
// refuses the tenant credentials.
var ErrConnection = errors.New("provision: connection failed")

// Provisioner opens tenant database accessors. Accessors are opened fresh
// per call and never cached; sharing one across requests would leak state
// between them.
type Provisioner struct {
	// adminDSN is used only by CreateTenantDatabase and must carry
	// CREATEDB/CREATEROLE privileges.
	adminDSN string
}

// New creates a Provisioner.
func New(adminDSN string) *Provisioner {
	return &Provisioner{adminDSN: adminDSN}
}

// Open establishes a direct connection to the tenant database described by
// cfg, validating connectivity eagerly. Every successful Open must be paired
// with exactly one Close on the returned accessor.
func (p *Provisioner) Open(ctx context.Context, cfg *domain.ConnConfig) (*Accessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("open accessor: %w", err)
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, fmt.Errorf("open accessor: %w", err)
	}

	database, err := db.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open accessor for %s: %v: %w", cfg.DBName, err, ErrConnection)
	}

	a := &Accessor{db: database, dbName: cfg.DBName}
	if err := a.ensureSchema(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return a, nil
}

// CreateTenantDatabase provisions the tenant's dedicated database and a
// least-privilege user with read-write access to that single database only.
// It is not idempotent: creating a user or database that already exists
// fails.
func (p *Provisioner) CreateTenantDatabase(ctx context.Context, cfg *domain.ConnConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("create tenant database: %w", err)
	}

	admin, err := db.OpenPostgres(ctx, p.adminDSN)
	if err != nil {
		return fmt.Errorf("connect admin: %v: %w", err, ErrConnection)
	}
	defer admin.Close()

	user := pgx.Identifier{cfg.DBUser}.Sanitize()
	name := pgx.Identifier{cfg.DBName}.Sanitize()

	stmts := []string{
		fmt.Sprintf(`CREATE USER %s WITH LOGIN PASSWORD %s`, user, quoteLiteral(cfg.DBPassword)),
		fmt.Sprintf(`CREATE DATABASE %s`, name),
		fmt.Sprintf(`REVOKE CONNECT ON DATABASE %s FROM PUBLIC`, name),
		fmt.Sprintf(`GRANT CONNECT ON DATABASE %s TO %s`, name, user),
	}
	for _, stmt := range stmts {
		if _, err := admin.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create tenant database %s: %w", cfg.DBName, err)
		}
	}

	// Schema-level grants must run inside the new database.
	tenantAdminDSN, err := replaceDatabase(p.adminDSN, cfg.DBName)
	if err != nil {
		return fmt.Errorf("create tenant database %s: %w", cfg.DBName, err)
	}
	tenantAdmin, err := db.OpenPostgres(ctx, tenantAdminDSN)
	if err != nil {
		return fmt.Errorf("connect tenant database %s: %v: %w", cfg.DBName, err, ErrConnection)
	}
	defer tenantAdmin.Close()

	grants := []string{
		fmt.Sprintf(`GRANT USAGE, CREATE ON SCHEMA public TO %s`, user),
	}
	for _, stmt := range grants {
		if _, err := tenantAdmin.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("grant on tenant database %s: %w", cfg.DBName, err)
		}
	}
	return nil
}

func replaceDatabase(dsn, dbName string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse admin dsn: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
