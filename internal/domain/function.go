package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/skiffcloud/skiff/internal/pkg/crypto"
)

// FunctionStatus indicates whether a function is externally invocable.
// Disabled functions still take part in publish snapshots so operators can
// see them in the tenant store.
type FunctionStatus string

const (
	StatusEnabled  FunctionStatus = "enabled"
	StatusDisabled FunctionStatus = "disabled"
)

func (s FunctionStatus) IsValid() bool {
	return s == StatusEnabled || s == StatusDisabled
}

var functionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateFunctionName enforces the accepted function name format.
func ValidateFunctionName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if !functionNamePattern.MatchString(name) {
		return fmt.Errorf("invalid name %q: must match %s", name, functionNamePattern.String())
	}
	return nil
}

// Trigger is an opaque trigger descriptor attached to a function. The
// deployment pipeline carries triggers through unchanged; interpreting them
// is the runtime's concern.
type Trigger struct {
	ID     string          `json:"id,omitempty"`
	Type   string          `json:"type,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Function is one cloud function definition in the system store, identified
// by (tenant_id, name).
type Function struct {
	ID           string         `json:"id,omitempty"`
	TenantID     string         `json:"tenant_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Code         string         `json:"code"`
	CompiledCode string         `json:"compiled_code,omitempty"`
	Status       FunctionStatus `json:"status"`
	Version      int64          `json:"version"`
	Hash         string         `json:"hash,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Triggers     []Trigger      `json:"triggers,omitempty"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
	CreatedBy    string         `json:"created_by,omitempty"`
}

// Validate checks the fields required before a definition may enter the
// system store. Malformed payloads are rejected here, before they reach the
// deployment engine.
func (f *Function) Validate() error {
	if err := ValidateFunctionName(f.Name); err != nil {
		return err
	}
	if f.Status != "" && !f.Status.IsValid() {
		return fmt.Errorf("invalid status %q for function %s", f.Status, f.Name)
	}
	if f.Version < 0 {
		return fmt.Errorf("invalid version %d for function %s", f.Version, f.Name)
	}
	return nil
}

// Rehash recomputes the content hash from the source code.
func (f *Function) Rehash() {
	f.Hash = crypto.HashString(f.Code)
}

// DeployedFunction is the tenant-local projection of a Function. The tenant
// store is physically scoped to one tenant, so name alone is the identity and
// no tenant id is carried.
type DeployedFunction struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Code         string         `json:"code"`
	CompiledCode string         `json:"compiled_code"`
	Status       FunctionStatus `json:"status"`
	Version      int64          `json:"version"`
	Hash         string         `json:"hash,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Triggers     []Trigger      `json:"triggers,omitempty"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
}

// Deployed projects the definition into its tenant-local representation with
// the given compiled artifact.
func (f *Function) Deployed(artifact string) *DeployedFunction {
	return &DeployedFunction{
		Name:         f.Name,
		Description:  f.Description,
		Code:         f.Code,
		CompiledCode: artifact,
		Status:       f.Status,
		Version:      f.Version,
		Hash:         f.Hash,
		Tags:         f.Tags,
		Triggers:     f.Triggers,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// NowMillis returns the current time as epoch milliseconds, the timestamp
// format used across function records.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
