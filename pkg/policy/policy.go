// Package policy resolves an environment tag to the bundle of durability, retention and alarm
// settings applied to every table in that environment.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/acorn-pups/dbinfra"
)

// Recognised environment tags.
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// CapacityMode is the table billing mode.
type CapacityMode string

const (
	CapacityOnDemand    CapacityMode = "on-demand"
	CapacityProvisioned CapacityMode = "provisioned"
)

// Teardown decides what happens to a table when its declaration is removed.
type Teardown string

const (
	TeardownRetain  Teardown = "retain"
	TeardownDestroy Teardown = "destroy"
)

// Policy is the resolved bundle for one environment. It is immutable once resolved.
type Policy struct {
	Environment            string       `yaml:"environment" json:"environment"`
	Production             bool         `yaml:"production" json:"production"`
	DurableRecoveryEnabled bool         `yaml:"durableRecoveryEnabled" json:"durableRecoveryEnabled"`
	DeletionProtected      bool         `yaml:"deletionProtected" json:"deletionProtected"`
	RetentionDays          int          `yaml:"retentionDays" json:"retentionDays"`
	AlarmsEnabled          bool         `yaml:"alarmsEnabled" json:"alarmsEnabled"`
	DetailedMonitoring     bool         `yaml:"detailedMonitoring" json:"detailedMonitoring"`
	CapacityMode           CapacityMode `yaml:"capacityMode" json:"capacityMode"`
	Teardown               Teardown     `yaml:"teardown" json:"teardown"`
}

// Validate reports an inconsistent bundle.
func (p Policy) Validate() error {
	switch {
	case strings.TrimSpace(p.Environment) == "":
		return dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, "", "policy environment is required")
	case p.RetentionDays <= 0:
		return dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, p.Environment,
			fmt.Sprintf("retention days must be positive, got %d", p.RetentionDays))
	case p.CapacityMode != CapacityOnDemand && p.CapacityMode != CapacityProvisioned:
		return dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, p.Environment,
			fmt.Sprintf("unsupported capacity mode %q", p.CapacityMode))
	case p.Teardown != TeardownRetain && p.Teardown != TeardownDestroy:
		return dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, p.Environment,
			fmt.Sprintf("unsupported teardown %q", p.Teardown))
	case p.Environment == EnvProd && !p.Production:
		return dbinfra.NewError(dbinfra.ErrorCodeInvalidEnvironment, p.Environment, "prod must be a production policy")
	}
	if p.Production {
		return p.validateProduction()
	}
	return nil
}

// validateProduction enforces recovery, deletion protection, alarms and retain teardown on
// every production bundle.
func (p Policy) validateProduction() error {
	var missing []string
	if !p.DurableRecoveryEnabled {
		missing = append(missing, "durable recovery")
	}
	if !p.DeletionProtected {
		missing = append(missing, "deletion protection")
	}
	if !p.AlarmsEnabled {
		missing = append(missing, "alarms")
	}
	if p.Teardown != TeardownRetain {
		missing = append(missing, "retain teardown")
	}
	if len(missing) == 0 {
		return nil
	}
	return dbinfra.NewError(dbinfra.ErrorCodeInvalidEnvironment, p.Environment,
		"production policy requires "+strings.Join(missing, ", "))
}

// Defaults returns the built-in bundles for dev and prod.
func Defaults() map[string]Policy {
	return map[string]Policy{
		EnvDev: {
			Environment:   EnvDev,
			RetentionDays: 7,
			CapacityMode:  CapacityOnDemand,
			Teardown:      TeardownDestroy,
		},
		EnvProd: {
			Environment:            EnvProd,
			Production:             true,
			DurableRecoveryEnabled: true,
			DeletionProtected:      true,
			RetentionDays:          30,
			AlarmsEnabled:          true,
			DetailedMonitoring:     true,
			CapacityMode:           CapacityOnDemand,
			Teardown:               TeardownRetain,
		},
	}
}

// Resolver maps environment tags to policies.
type Resolver struct {
	bundles map[string]Policy
}

// NewResolver returns a Resolver over the given bundles. Each bundle is validated and keyed by
// its Environment.
func NewResolver(bundles map[string]Policy) (*Resolver, error) {
	if len(bundles) == 0 {
		return nil, dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, "", "at least one environment policy is required")
	}
	r := &Resolver{bundles: make(map[string]Policy, len(bundles))}
	for tag, p := range bundles {
		if p.Environment == "" {
			p.Environment = tag
		}
		if p.Environment != tag {
			return nil, dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, tag,
				fmt.Sprintf("policy declares environment %q", p.Environment))
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		r.bundles[tag] = p
	}
	return r, nil
}

// DefaultResolver resolves dev and prod.
func DefaultResolver() *Resolver {
	r, err := NewResolver(Defaults())
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the policy for env. Unknown tags are configuration errors naming the tag;
// tags are matched exactly, without aliasing or case folding.
func (r *Resolver) Resolve(env string) (Policy, error) {
	if r != nil {
		if p, ok := r.bundles[env]; ok {
			return p, nil
		}
	}
	return Policy{}, dbinfra.NewError(dbinfra.ErrorCodeInvalidEnvironment, env,
		fmt.Sprintf("invalid environment, must be one of %s", strings.Join(r.Environments(), ", ")))
}

// Environments returns the recognised tags, sorted.
func (r *Resolver) Environments() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.bundles))
	for tag := range r.bundles {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Resolve resolves env against the default bundles.
func Resolve(env string) (Policy, error) {
	return DefaultResolver().Resolve(env)
}
