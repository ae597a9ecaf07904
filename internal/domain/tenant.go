package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// TenantStatus tracks the lifecycle of a tenant record.
type TenantStatus string

const (
	TenantCreated TenantStatus = "created"
	TenantRunning TenantStatus = "running"
	TenantStopped TenantStatus = "stopped"
)

// Tenant is one isolated application unit with a dedicated database. The
// credential triple is derived at creation time and stored with the record.
type Tenant struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Status     TenantStatus `json:"status"`
	DBName     string       `json:"db_name"`
	DBUser     string       `json:"db_user"`
	DBPassword string       `json:"db_password"`
	CreatedBy  string       `json:"created_by,omitempty"`
	CreatedAt  int64        `json:"created_at"`
	UpdatedAt  int64        `json:"updated_at"`
}

// ConnConfig carries everything needed to open a connection to one tenant's
// database. It is recomputed from the tenant record on demand, never
// persisted on its own.
type ConnConfig struct {
	DBName     string `json:"db_name"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	BaseURI    string `json:"base_uri"`
}

// Validate checks the credential triple before any connection attempt.
func (c *ConnConfig) Validate() error {
	if strings.TrimSpace(c.DBName) == "" {
		return fmt.Errorf("empty db_name")
	}
	if strings.TrimSpace(c.DBUser) == "" {
		return fmt.Errorf("empty db_user")
	}
	if strings.TrimSpace(c.DBPassword) == "" {
		return fmt.Errorf("empty db_password")
	}
	return nil
}

// DSN builds the tenant connection string from the base URI template,
// substituting database, user and password.
func (c *ConnConfig) DSN() (string, error) {
	u, err := url.Parse(c.BaseURI)
	if err != nil {
		return "", fmt.Errorf("parse base uri: %w", err)
	}
	u.User = url.UserPassword(c.DBUser, c.DBPassword)
	u.Path = "/" + c.DBName
	return u.String(), nil
}

// ConnConfig derives the connection configuration for the tenant from its
// stored credentials and the given base URI.
func (t *Tenant) ConnConfig(baseURI string) *ConnConfig {
	return &ConnConfig{
		DBName:     t.DBName,
		DBUser:     t.DBUser,
		DBPassword: t.DBPassword,
		BaseURI:    baseURI,
	}
}
