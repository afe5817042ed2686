// Package provision turns the schema catalog and an environment policy into table declarations
// and applies them through a TableService, one table at a time in catalog order.
package provision

import (
	"fmt"
	"maps"
	"strings"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/naming"
	"github.com/acorn-pups/dbinfra/pkg/policy"
	"github.com/acorn-pups/dbinfra/pkg/schema"
)

// TableDeclaration is everything a table service needs to create or update one table.
type TableDeclaration struct {
	Entity      string `json:"entity" yaml:"entity"`
	Resource    string `json:"resource" yaml:"resource"`
	DisplayName string `json:"displayName" yaml:"displayName"`
	Name        string `json:"name" yaml:"name"`

	PartitionKey schema.KeyDef   `json:"partitionKey" yaml:"partitionKey"`
	SortKey      *schema.KeyDef  `json:"sortKey,omitempty" yaml:"sortKey,omitempty"`
	Attributes   []schema.KeyDef `json:"attributes" yaml:"attributes"`
	Indexes      []schema.Index  `json:"indexes,omitempty" yaml:"indexes,omitempty"`

	CapacityMode        policy.CapacityMode `json:"capacityMode" yaml:"capacityMode"`
	RecoveryEnabled     bool                `json:"recoveryEnabled" yaml:"recoveryEnabled"`
	DeletionProtected   bool                `json:"deletionProtected" yaml:"deletionProtected"`
	Teardown            policy.Teardown     `json:"teardown" yaml:"teardown"`
	TimeToLiveAttribute string              `json:"timeToLiveAttribute,omitempty" yaml:"timeToLiveAttribute,omitempty"`
	Tags                map[string]string   `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Validate checks a declaration before it reaches a table service.
func (d TableDeclaration) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Entity) == "" {
		problems = append(problems, "entity is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "table name is required")
	}
	if d.PartitionKey.Name == "" {
		problems = append(problems, "partition key is required")
	}
	if len(d.Indexes) > schema.MaxIndexesPerTable {
		problems = append(problems, fmt.Sprintf("%d secondary indexes exceeds the limit of %d", len(d.Indexes), schema.MaxIndexesPerTable))
	}
	if d.CapacityMode != policy.CapacityOnDemand && d.CapacityMode != policy.CapacityProvisioned {
		problems = append(problems, fmt.Sprintf("unsupported capacity mode %q", d.CapacityMode))
	}
	if d.Teardown != policy.TeardownRetain && d.Teardown != policy.TeardownDestroy {
		problems = append(problems, fmt.Sprintf("unsupported teardown %q", d.Teardown))
	}
	if len(problems) == 0 {
		return nil
	}
	return dbinfra.NewError(dbinfra.ErrorCodeSchemaInvalid, d.Entity, strings.Join(problems, "; "))
}

// DefaultTags returns the tags applied to every table.
func DefaultTags(app, env string) map[string]string {
	return map[string]string{
		"Project":     app,
		"Environment": env,
		"Service":     "Database",
	}
}

// Declarations builds one declaration per catalog table, in catalog order. It validates the
// catalog first so that nothing is declared from a broken schema.
func Declarations(app string, c schema.Catalog, p policy.Policy) ([]TableDeclaration, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tags := DefaultTags(app, p.Environment)
	out := make([]TableDeclaration, 0, len(c.Tables))
	for _, t := range c.Clone().Tables {
		d := TableDeclaration{
			Entity:              t.Entity,
			Resource:            t.Resource,
			DisplayName:         t.DisplayName,
			Name:                naming.TableName(app, t.Resource, p.Environment),
			PartitionKey:        t.PartitionKey,
			SortKey:             t.SortKey,
			Attributes:          t.AttributeNames(),
			Indexes:             t.Indexes,
			CapacityMode:        p.CapacityMode,
			RecoveryEnabled:     p.DurableRecoveryEnabled,
			DeletionProtected:   p.DeletionProtected,
			Teardown:            p.Teardown,
			TimeToLiveAttribute: t.TimeToLiveAttribute,
			Tags:                maps.Clone(tags),
		}
		out = append(out, d)
	}
	return out, nil
}
