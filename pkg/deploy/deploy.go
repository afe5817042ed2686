// Package deploy runs the database deployment as ordered phases: resolve the environment
// policy, provision the tables, publish their identities and configure monitoring.
package deploy

import (
	"context"
	"time"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/monitoring"
	"github.com/acorn-pups/dbinfra/pkg/naming"
	"github.com/acorn-pups/dbinfra/pkg/observability"
	"github.com/acorn-pups/dbinfra/pkg/params"
	"github.com/acorn-pups/dbinfra/pkg/policy"
	"github.com/acorn-pups/dbinfra/pkg/provision"
	"github.com/acorn-pups/dbinfra/pkg/schema"
)

// Phase names.
const (
	PhasePolicy    = "policy"
	PhaseProvision = "provision"
	PhasePublish   = "publish"
	PhaseMonitor   = "monitor"
)

// Stack components used to name the publishing stacks.
const (
	ComponentDatabase   = "dynamodb"
	ComponentMonitoring = "monitoring"
)

// Config identifies the deployment.
type Config struct {
	App         string
	Environment string
	Region      string
}

// Services are the external providers a run writes to. Exporter is optional.
type Services struct {
	Tables     provision.TableService
	Registry   params.Registry
	Exporter   params.Exporter
	Monitoring monitoring.Service
}

// Result is everything a run produced. Fields of phases that did not run are zero.
type Result struct {
	RunID   string
	Policy  policy.Policy
	Handles provision.Handles
	Entries []params.Entry
	Plan    monitoring.Plan
	Phases  []PhaseResult
}

// Deployer runs the phases against a set of services.
type Deployer struct {
	cfg      Config
	svc      Services
	catalog  schema.Catalog
	resolver *policy.Resolver
	ids      dbinfra.IDGenerator
	logger   observability.StructuredLogger
	hooks    *observability.Hooks
	now      func() time.Time
}

type Option func(*Deployer)

func WithCatalog(c schema.Catalog) Option {
	return func(d *Deployer) {
		d.catalog = c
	}
}

func WithResolver(r *policy.Resolver) Option {
	return func(d *Deployer) {
		d.resolver = r
	}
}

func WithIDGenerator(g dbinfra.IDGenerator) Option {
	return func(d *Deployer) {
		d.ids = g
	}
}

func WithLogger(l observability.StructuredLogger) Option {
	return func(d *Deployer) {
		d.logger = l
	}
}

// WithHooks replaces the phase event hooks derived from the logger.
func WithHooks(h observability.Hooks) Option {
	return func(d *Deployer) {
		d.hooks = &h
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Deployer) {
		d.now = now
	}
}

func New(cfg Config, svc Services, opts ...Option) (*Deployer, error) {
	d := &Deployer{
		cfg:      cfg,
		svc:      svc,
		catalog:  schema.Default(),
		resolver: policy.DefaultResolver(),
		ids:      dbinfra.ULIDGenerator{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.logger = observability.OrNoOp(d.logger)

	switch {
	case cfg.App == "":
		return nil, dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, "", "app is required")
	case svc.Tables == nil:
		return nil, dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, cfg.Environment, "table service is required")
	case svc.Registry == nil:
		return nil, dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, cfg.Environment, "parameter registry is required")
	case svc.Monitoring == nil:
		return nil, dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, cfg.Environment, "monitoring service is required")
	}
	if err := d.catalog.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// DatabaseStack returns the name of the stack that owns the table outputs.
func (d *Deployer) DatabaseStack() string {
	return naming.StackName(d.cfg.App, d.cfg.Environment, ComponentDatabase)
}

// Run executes policy, provision, publish and monitor as a chain; a failed phase skips every
// phase after it. The returned Result is never nil.
func (d *Deployer) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: d.ids.NewID()}
	logger := d.logger.WithRunID(res.RunID).WithEnvironment(d.cfg.Environment)

	hooks := observability.HooksFromLogger(d.logger)
	if d.hooks != nil {
		hooks = *d.hooks
	}
	scope := RunScope{RunID: res.RunID, Environment: d.cfg.Environment, Hooks: hooks, Now: d.now}

	phases := []Phase{
		{
			Name: PhasePolicy,
			Run: func(context.Context) error {
				p, err := d.resolver.Resolve(d.cfg.Environment)
				if err != nil {
					return err
				}
				res.Policy = p
				return nil
			},
		},
		{
			Name:      PhaseProvision,
			DependsOn: []string{PhasePolicy},
			Run: func(ctx context.Context) error {
				engine := provision.NewEngine(d.svc.Tables, provision.WithLogger(logger))
				hs, err := engine.Provision(ctx, d.cfg.App, d.catalog, res.Policy)
				if err != nil {
					return err
				}
				res.Handles = hs
				return nil
			},
		},
		{
			Name:      PhasePublish,
			DependsOn: []string{PhaseProvision},
			Run: func(ctx context.Context) error {
				pub, err := params.NewPublisher(params.Config{
					App:         d.cfg.App,
					Environment: d.cfg.Environment,
					StackName:   d.DatabaseStack(),
				}, d.svc.Registry, d.svc.Exporter, params.WithLogger(logger))
				if err != nil {
					return err
				}
				entries, err := pub.PublishTables(ctx, res.Handles)
				res.Entries = entries
				return err
			},
		},
		{
			Name:      PhaseMonitor,
			DependsOn: []string{PhaseProvision, PhasePublish},
			Run: func(ctx context.Context) error {
				plan, err := monitoring.Configure(d.cfg.App, res.Policy, d.catalog, res.Handles)
				if err != nil {
					return err
				}
				res.Plan = plan
				return monitoring.Apply(ctx, d.svc.Monitoring, plan, monitoring.WithLogger(logger))
			},
		},
	}

	logger.Info("deployment started", map[string]any{"app": d.cfg.App, "region": d.cfg.Region, "tables": len(d.catalog.Tables)})
	results, err := RunPhases(ctx, scope, phases)
	res.Phases = results
	if err != nil {
		logger.Error("deployment failed", map[string]any{"error": err, "error_code": dbinfra.CodeOf(err)})
		return res, err
	}
	logger.Info("deployment finished", map[string]any{"parameters": len(res.Entries), "alarms": len(res.Plan.Alarms())})
	return res, nil
}
