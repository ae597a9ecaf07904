// Package manifest parses YAML function manifests used by the CLI to author
// and deploy function definitions.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/skiffcloud/skiff/internal/domain"
)

// FunctionManifest defines the YAML manifest for one function definition
type FunctionManifest struct {
	// API version for future compatibility
	APIVersion string `yaml:"apiVersion,omitempty"`
	// Kind is always "Function"
	Kind string `yaml:"kind,omitempty"`

	// Metadata
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`

	// Code is either inline source or a path to a source file. Exactly one
	// of Code and CodeFile may be set.
	Code     string `yaml:"code,omitempty"`
	CodeFile string `yaml:"codeFile,omitempty"`

	// Status defaults to enabled.
	Status string `yaml:"status,omitempty"`

	Triggers []TriggerManifest `yaml:"triggers,omitempty"`
}

// TriggerManifest defines a trigger attached to a function. Config is
// carried through opaquely.
type TriggerManifest struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config,omitempty"`
}

// MultiManifest holds every function manifest from a single file.
type MultiManifest struct {
	Functions []FunctionManifest
}

// ParseFile parses a YAML file containing one or more function manifests.
func ParseFile(path string) (*MultiManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return Parse(f, filepath.Dir(path))
}

// Parse parses YAML content containing one or more function manifests.
// Relative codeFile paths resolve against baseDir.
func Parse(r io.Reader, baseDir string) (*MultiManifest, error) {
	decoder := yaml.NewDecoder(r)
	var manifests []FunctionManifest

	for {
		var m FunctionManifest
		err := decoder.Decode(&m)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}

		// Skip empty documents
		if m.Name == "" && m.Code == "" && m.CodeFile == "" {
			continue
		}

		if m.CodeFile != "" && !filepath.IsAbs(m.CodeFile) {
			m.CodeFile = filepath.Join(baseDir, m.CodeFile)
		}

		manifests = append(manifests, m)
	}

	if len(manifests) == 0 {
		return nil, fmt.Errorf("no valid function manifests found")
	}

	return &MultiManifest{Functions: manifests}, nil
}

// Validate validates a function manifest.
func (m *FunctionManifest) Validate() error {
	if err := domain.ValidateFunctionName(m.Name); err != nil {
		return err
	}
	if m.Code == "" && m.CodeFile == "" {
		return fmt.Errorf("function %s: either code or codeFile is required", m.Name)
	}
	if m.Code != "" && m.CodeFile != "" {
		return fmt.Errorf("function %s: code and codeFile are mutually exclusive", m.Name)
	}
	if m.CodeFile != "" {
		if _, err := os.Stat(m.CodeFile); os.IsNotExist(err) {
			return fmt.Errorf("function %s: code file not found: %s", m.Name, m.CodeFile)
		}
	}
	if m.Status != "" && !domain.FunctionStatus(m.Status).IsValid() {
		return fmt.Errorf("function %s: invalid status: %s (valid: enabled, disabled)", m.Name, m.Status)
	}
	for i, tr := range m.Triggers {
		if tr.Type == "" {
			return fmt.Errorf("function %s: trigger %d: type is required", m.Name, i)
		}
	}
	return nil
}

// ToFunction converts a manifest to a function definition, loading the
// source from codeFile when set.
func (m *FunctionManifest) ToFunction(tenantID string) (*domain.Function, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	code := m.Code
	if m.CodeFile != "" {
		raw, err := os.ReadFile(m.CodeFile)
		if err != nil {
			return nil, fmt.Errorf("function %s: read code file: %w", m.Name, err)
		}
		code = string(raw)
	}

	fn := &domain.Function{
		TenantID:    tenantID,
		Name:        m.Name,
		Description: m.Description,
		Code:        code,
		Status:      domain.FunctionStatus(m.Status),
		Tags:        m.Tags,
	}
	if fn.Status == "" {
		fn.Status = domain.StatusEnabled
	}

	for _, tr := range m.Triggers {
		cfg, err := json.Marshal(tr.Config)
		if err != nil {
			return nil, fmt.Errorf("function %s: encode trigger config: %w", m.Name, err)
		}
		fn.Triggers = append(fn.Triggers, domain.Trigger{Type: tr.Type, Config: cfg})
	}

	fn.Rehash()
	return fn, nil
}

// ExampleYAML returns an example manifest file.
func ExampleYAML() string {
	return `# Skiff Function Manifest
apiVersion: skiff/v1
kind: Function

name: hello-world
description: A simple hello world function
code: |
  export const main = async (ctx) => {
    return { message: "hello world" }
  }

# Status: enabled (default) or disabled
status: enabled

tags:
  - example

# Triggers are carried through to the runtime unchanged
triggers:
  - type: http
    config:
      method: GET
      path: /hello
`
}
