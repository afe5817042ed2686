// Package cdkstack declares the database and monitoring stacks as CDK constructs. The same
// provisioning, publishing and monitoring code that drives the SDK path runs here against
// construct-backed providers, so a synthesized template and a direct deployment agree.
package cdkstack

import (
	"context"
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/acorn-pups/dbinfra/pkg/policy"
	"github.com/acorn-pups/dbinfra/pkg/provision"
	"github.com/acorn-pups/dbinfra/pkg/schema"
)

const (
	tableIDSuffix            = "Table"
	provisionedCapacityUnits = 5
)

// TableService declares one awsdynamodb.Table per declaration in its scope. Handles carry the
// physical table name and the ARN token.
type TableService struct {
	scope  constructs.Construct
	tables map[string]awsdynamodb.Table
}

var _ provision.TableService = (*TableService)(nil)

func NewTableService(scope constructs.Construct) *TableService {
	return &TableService{scope: scope, tables: map[string]awsdynamodb.Table{}}
}

func (s *TableService) ApplyTable(_ context.Context, d provision.TableDeclaration) (provision.Applied, error) {
	id := d.Entity + tableIDSuffix
	if s.scope.Node().TryFindChild(jsii.String(id)) != nil {
		return provision.Applied{}, fmt.Errorf("construct %s already exists in %s", id, *s.scope.Node().Path())
	}

	props := &awsdynamodb.TableProps{
		TableName:    jsii.String(d.Name),
		PartitionKey: attribute(d.PartitionKey),
		BillingMode:  billingMode(d.CapacityMode),
		PointInTimeRecoverySpecification: &awsdynamodb.PointInTimeRecoverySpecification{
			PointInTimeRecoveryEnabled: jsii.Bool(d.RecoveryEnabled),
		},
		DeletionProtection: jsii.Bool(d.DeletionProtected),
		RemovalPolicy:      removalPolicy(d.Teardown),
	}
	if d.SortKey != nil {
		props.SortKey = attribute(*d.SortKey)
	}
	if d.TimeToLiveAttribute != "" {
		props.TimeToLiveAttribute = jsii.String(d.TimeToLiveAttribute)
	}
	if d.CapacityMode == policy.CapacityProvisioned {
		props.ReadCapacity = jsii.Number(provisionedCapacityUnits)
		props.WriteCapacity = jsii.Number(provisionedCapacityUnits)
	}

	table := awsdynamodb.NewTable(s.scope, jsii.String(id), props)
	for _, idx := range d.Indexes {
		gsi := &awsdynamodb.GlobalSecondaryIndexProps{
			IndexName:      jsii.String(idx.Name),
			PartitionKey:   attribute(idx.PartitionKey),
			ProjectionType: projectionType(idx.Projection),
		}
		if idx.SortKey != nil {
			gsi.SortKey = attribute(*idx.SortKey)
		}
		if d.CapacityMode == policy.CapacityProvisioned {
			gsi.ReadCapacity = jsii.Number(provisionedCapacityUnits)
			gsi.WriteCapacity = jsii.Number(provisionedCapacityUnits)
		}
		table.AddGlobalSecondaryIndex(gsi)
	}
	for _, k := range sortedKeys(d.Tags) {
		awscdk.Tags_Of(table).Add(jsii.String(k), jsii.String(d.Tags[k]), nil)
	}
	s.tables[d.Entity] = table

	return provision.Applied{
		Handle: provision.TableHandle{
			Entity:      d.Entity,
			Resource:    d.Resource,
			DisplayName: d.DisplayName,
			Name:        d.Name,
			Identifier:  *table.TableArn(),
		},
		Created: true,
	}, nil
}

// Table returns the construct declared for entity.
func (s *TableService) Table(entity string) (awsdynamodb.Table, bool) {
	t, ok := s.tables[entity]
	return t, ok
}

func attribute(k schema.KeyDef) *awsdynamodb.Attribute {
	return &awsdynamodb.Attribute{Name: jsii.String(k.Name), Type: attributeType(k.Kind)}
}

func attributeType(k schema.KeyKind) awsdynamodb.AttributeType {
	switch k {
	case schema.KeyKindNumber:
		return awsdynamodb.AttributeType_NUMBER
	case schema.KeyKindBinary:
		return awsdynamodb.AttributeType_BINARY
	default:
		return awsdynamodb.AttributeType_STRING
	}
}

func billingMode(m policy.CapacityMode) awsdynamodb.BillingMode {
	if m == policy.CapacityProvisioned {
		return awsdynamodb.BillingMode_PROVISIONED
	}
	return awsdynamodb.BillingMode_PAY_PER_REQUEST
}

func removalPolicy(t policy.Teardown) awscdk.RemovalPolicy {
	if t == policy.TeardownRetain {
		return awscdk.RemovalPolicy_RETAIN
	}
	return awscdk.RemovalPolicy_DESTROY
}

func projectionType(p schema.Projection) awsdynamodb.ProjectionType {
	switch p {
	case "KEYS_ONLY":
		return awsdynamodb.ProjectionType_KEYS_ONLY
	case "INCLUDE":
		return awsdynamodb.ProjectionType_INCLUDE
	default:
		return awsdynamodb.ProjectionType_ALL
	}
}
