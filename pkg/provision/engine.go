package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/observability"
	"github.com/acorn-pups/dbinfra/pkg/policy"
	"github.com/acorn-pups/dbinfra/pkg/schema"
)

// Applied is the outcome of applying one declaration.
type Applied struct {
	Handle  TableHandle
	Created bool
}

// TableService creates a table or updates it in place to match a declaration.
type TableService interface {
	ApplyTable(ctx context.Context, decl TableDeclaration) (Applied, error)
}

// Rollbacker is implemented by services that can remove a table created earlier in the same
// run.
type Rollbacker interface {
	RollbackTable(ctx context.Context, handle TableHandle) error
}

// Engine applies every catalog table through a TableService. It never retries; provider errors
// are surfaced verbatim inside a provisioning error naming the entity.
type Engine struct {
	service TableService
	logger  observability.StructuredLogger
}

type Option func(*Engine)

func WithLogger(l observability.StructuredLogger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func NewEngine(service TableService, opts ...Option) *Engine {
	e := &Engine{service: service, logger: observability.NewNoOpLogger()}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = observability.OrNoOp(e.logger).WithComponent("provision")
	return e
}

// Provision declares every table in c under p. All declarations are validated before the first
// is submitted. The first failure aborts the remaining tables; tables created earlier in this
// run are rolled back when the service supports it.
func (e *Engine) Provision(ctx context.Context, app string, c schema.Catalog, p policy.Policy) (Handles, error) {
	decls, err := Declarations(app, c, p)
	if err != nil {
		return Handles{}, err
	}
	return e.Apply(ctx, decls)
}

// Apply submits pre-built declarations in order, after validating all of them. A service
// that reports Created alongside an error has left a table behind; it is rolled back with the
// rest.
func (e *Engine) Apply(ctx context.Context, decls []TableDeclaration) (Handles, error) {
	if e == nil || e.service == nil {
		return Handles{}, dbinfra.NewError(dbinfra.ErrorCodeProvisionFailed, "", "table service is not configured")
	}
	for _, d := range decls {
		if err := d.Validate(); err != nil {
			return Handles{}, err
		}
	}

	var (
		handles Handles
		created []TableHandle
	)
	for _, d := range decls {
		if err := ctx.Err(); err != nil {
			return Handles{}, e.abort(ctx, created, dbinfra.WrapError(dbinfra.ErrorCodeProvisionFailed, d.Entity, err))
		}

		log := e.logger.WithEntity(d.Entity)
		applied, err := e.service.ApplyTable(ctx, d)
		if err != nil {
			log.Error("table apply failed", map[string]any{"table": d.Name, "error": err, "created": applied.Created})
			if applied.Created {
				created = append(created, partialHandle(applied.Handle, d))
			}
			return Handles{}, e.abort(ctx, created, dbinfra.WrapError(dbinfra.ErrorCodeProvisionFailed, d.Entity, err))
		}
		h := applied.Handle
		if h.Entity == "" {
			h.Entity = d.Entity
		}
		if h.Resource == "" {
			h.Resource = d.Resource
		}
		if h.DisplayName == "" {
			h.DisplayName = d.DisplayName
		}
		if applied.Created {
			created = append(created, h)
		}
		if !h.Resolved() {
			err := fmt.Errorf("service returned an unresolved handle for %s", d.Name)
			return Handles{}, e.abort(ctx, created, dbinfra.WrapError(dbinfra.ErrorCodeProvisionFailed, d.Entity, err))
		}
		handles.add(h)

		log.Info("table applied", map[string]any{
			"table":              h.Name,
			"created":            applied.Created,
			"recovery_enabled":   d.RecoveryEnabled,
			"deletion_protected": d.DeletionProtected,
			"indexes":            len(d.Indexes),
		})
	}
	return handles, nil
}

// partialHandle fills the naming fields of a handle for a table whose apply did not finish.
func partialHandle(h TableHandle, d TableDeclaration) TableHandle {
	if h.Entity == "" {
		h.Entity = d.Entity
	}
	if h.Resource == "" {
		h.Resource = d.Resource
	}
	if h.DisplayName == "" {
		h.DisplayName = d.DisplayName
	}
	if h.Name == "" {
		h.Name = d.Name
	}
	return h
}

func (e *Engine) abort(ctx context.Context, created []TableHandle, cause error) error {
	rb, ok := e.service.(Rollbacker)
	if !ok || len(created) == 0 {
		return cause
	}

	// Rollback must run even when ctx is already done.
	rbCtx := context.WithoutCancel(ctx)
	var errs []error
	for i := len(created) - 1; i >= 0; i-- {
		h := created[i]
		if err := rb.RollbackTable(rbCtx, h); err != nil {
			e.logger.WithEntity(h.Entity).Error("rollback failed", map[string]any{"table": h.Name, "error": err})
			errs = append(errs, fmt.Errorf("rollback %s: %w", h.Entity, err))
			continue
		}
		e.logger.WithEntity(h.Entity).Warn("table rolled back", map[string]any{"table": h.Name})
	}
	if len(errs) == 0 {
		return cause
	}
	return errors.Join(append([]error{cause}, errs...)...)
}
