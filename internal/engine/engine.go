// Package engine implements the deployment pipeline: publishing compiled
// function snapshots from the system store into tenant databases, and
// deploying function batches pushed from remote environments into the
// system store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skiffcloud/skiff/internal/compiler"
	"github.com/skiffcloud/skiff/internal/domain"
	"github.com/skiffcloud/skiff/internal/logging"
	"github.com/skiffcloud/skiff/internal/metrics"
	"github.com/skiffcloud/skiff/internal/observability"
	"github.com/skiffcloud/skiff/internal/provision"
	"github.com/skiffcloud/skiff/internal/store"
)

// Failure signals for whole operations. Compile, resolution and connection
// errors keep their own types and pass through untouched.
var (
	// ErrPublishFailed marks a publish whose replacement transaction did
	// not apply. The tenant store is unchanged; the call is safe to retry.
	ErrPublishFailed = errors.New("engine: publish failed")

	// ErrDeployFailed marks a deploy batch that was rejected or rolled
	// back as a unit. The system store is unchanged; the sender may retry
	// the whole batch.
	ErrDeployFailed = errors.New("engine: deploy failed")
)

// CompilePolicy decides what a publish does when one definition fails to
// compile.
type CompilePolicy string

const (
	// PolicySkip drops the failing definition from the snapshot, reports
	// it, and deploys the rest.
	PolicySkip CompilePolicy = "skip"
	// PolicyAbort fails the whole publish on the first compile error.
	PolicyAbort CompilePolicy = "abort"
)

// ParsePolicy maps a config string to a CompilePolicy, defaulting to skip.
func ParsePolicy(s string) CompilePolicy {
	if s == string(PolicyAbort) {
		return PolicyAbort
	}
	return PolicySkip
}

// SystemStore is the slice of the system store the engine needs.
// *store.Store satisfies it.
type SystemStore interface {
	FindByTenant(ctx context.Context, tenantID string) ([]*domain.Function, error)
	UpsertFunctions(ctx context.Context, tenantID string, fns []*domain.Function) ([]store.UpsertResult, error)
}

// ConfigResolver resolves a tenant id to its connection configuration.
// *tenant.Registry satisfies it.
type ConfigResolver interface {
	Resolve(ctx context.Context, tenantID string) (*domain.ConnConfig, error)
}

// TenantAccessor is an open connection to one tenant database.
type TenantAccessor interface {
	ReplaceFunctions(ctx context.Context, fns []*domain.DeployedFunction) error
	Close()
}

// Opener opens tenant accessors.
type Opener interface {
	Open(ctx context.Context, cfg *domain.ConnConfig) (TenantAccessor, error)
}

// ProvisionerOpener adapts *provision.Provisioner to the Opener interface.
type ProvisionerOpener struct {
	*provision.Provisioner
}

func (p ProvisionerOpener) Open(ctx context.Context, cfg *domain.ConnConfig) (TenantAccessor, error) {
	return p.Provisioner.Open(ctx, cfg)
}

// Engine orchestrates Publish and Deploy. Each call owns its own
// transaction and accessor lifetime; the engine itself is safe for
// concurrent use.
type Engine struct {
	store    SystemStore
	tenants  ConfigResolver
	opener   Opener
	compiler compiler.Compiler
	policy   CompilePolicy
	metrics  *metrics.Metrics
	locks    *tenantLocks
}

// New creates a deployment engine. Metrics may be nil.
func New(s SystemStore, tenants ConfigResolver, opener Opener, c compiler.Compiler, policy CompilePolicy, m *metrics.Metrics) *Engine {
	return &Engine{
		store:    s,
		tenants:  tenants,
		opener:   opener,
		compiler: c,
		policy:   policy,
		metrics:  m,
		locks:    newTenantLocks(),
	}
}

// SkippedFunction reports one definition excluded from a publish snapshot
// because it failed to compile.
type SkippedFunction struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// PublishResult summarizes a completed publish.
type PublishResult struct {
	TenantID  string            `json:"tenant_id"`
	Published int               `json:"published"`
	Skipped   []SkippedFunction `json:"skipped,omitempty"`
}

// Publish replaces the tenant's entire deployed function set with a freshly
// compiled snapshot of its definitions in the system store. The replacement
// is one transaction on the tenant database: readers never see a partial
// state, and a failure leaves the previous set in place.
func (e *Engine) Publish(ctx context.Context, tenantID string) (*PublishResult, error) {
	e.locks.Lock(tenantID)
	defer e.locks.Unlock(tenantID)

	ctx, span := observability.Tracer().Start(ctx, "engine.Publish",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	started := time.Now()
	result, err := e.publish(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		if e.metrics != nil {
			e.metrics.ObservePublish("error", 0, 0, time.Since(started))
		}
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.ObservePublish("ok", result.Published, len(result.Skipped), time.Since(started))
	}
	return result, nil
}

func (e *Engine) publish(ctx context.Context, tenantID string) (*PublishResult, error) {
	defs, err := e.store.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("read definitions for %s: %v: %w", tenantID, err, ErrPublishFailed)
	}

	// Disabled functions stay in the snapshot; operators expect to see
	// them in the tenant store.
	snapshot := make([]*domain.DeployedFunction, 0, len(defs))
	var skipped []SkippedFunction
	for _, def := range defs {
		artifact, err := e.compiler.Compile(def.Code)
		if err != nil {
			if e.policy == PolicyAbort {
				return nil, fmt.Errorf("compile %s/%s: %w", tenantID, def.Name, err)
			}
			logging.Op().Warn("skipping function with compile error",
				"tenant", tenantID, "function", def.Name, "error", err)
			skipped = append(skipped, SkippedFunction{Name: def.Name, Reason: err.Error()})
			continue
		}
		snapshot = append(snapshot, def.Deployed(artifact))
	}

	cfg, err := e.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	accessor, err := e.opener.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer accessor.Close()

	if err := accessor.ReplaceFunctions(ctx, snapshot); err != nil {
		logging.Op().Error("publish transaction failed",
			"tenant", tenantID, "error", err)
		return nil, fmt.Errorf("replace functions for %s: %v: %w", tenantID, err, ErrPublishFailed)
	}

	logging.Op().Info("published tenant functions",
		"tenant", tenantID, "published", len(snapshot), "skipped", len(skipped))
	return &PublishResult{TenantID: tenantID, Published: len(snapshot), Skipped: skipped}, nil
}

// Deploy applies a batch of function definitions pushed from a remote
// environment to the system store, strictly all-or-nothing. Duplicate names
// within one batch resolve last-write-wins, in batch order.
func (e *Engine) Deploy(ctx context.Context, tenantID string, fns []*domain.Function) ([]store.UpsertResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "engine.Deploy",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("batch.size", len(fns)),
		))
	defer span.End()

	if err := validateBatch(tenantID, fns); err != nil {
		span.RecordError(err)
		if e.metrics != nil {
			e.metrics.ObserveDeploy("rejected", len(fns))
		}
		return nil, err
	}

	results, err := e.store.UpsertFunctions(ctx, tenantID, fns)
	if err != nil {
		span.RecordError(err)
		logging.Op().Error("deploy transaction failed",
			"tenant", tenantID, "batch", len(fns), "error", err)
		if e.metrics != nil {
			e.metrics.ObserveDeploy("error", len(fns))
		}
		return nil, fmt.Errorf("deploy %d functions to %s: %v: %w", len(fns), tenantID, err, ErrDeployFailed)
	}

	for _, r := range results {
		switch r.Action {
		case store.ActionUpdated:
			logging.Op().Debug("deploy function: updated existing",
				"tenant", tenantID, "function", r.Name, "matched", r.Matched)
		case store.ActionInserted:
			logging.Op().Debug("deploy function: inserted new",
				"tenant", tenantID, "function", r.Name, "id", r.ID)
		}
	}
	if e.metrics != nil {
		e.metrics.ObserveDeploy("ok", len(fns))
	}
	return results, nil
}

func validateBatch(tenantID string, fns []*domain.Function) error {
	if tenantID == "" {
		return fmt.Errorf("empty tenant id: %w", ErrDeployFailed)
	}
	if len(fns) == 0 {
		return fmt.Errorf("empty batch for %s: %w", tenantID, ErrDeployFailed)
	}
	for i, fn := range fns {
		if fn == nil {
			return fmt.Errorf("nil function at index %d: %w", i, ErrDeployFailed)
		}
		if err := fn.Validate(); err != nil {
			return fmt.Errorf("invalid function at index %d: %v: %w", i, err, ErrDeployFailed)
		}
	}
	return nil
}
