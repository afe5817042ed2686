package awsapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acorn-pups/dbinfra/pkg/observability"
	"github.com/acorn-pups/dbinfra/pkg/policy"
	"github.com/acorn-pups/dbinfra/pkg/provision"
	"github.com/acorn-pups/dbinfra/pkg/schema"
)

// ManagedByTag marks tables created by direct provisioning.
const ManagedByTag = "acorn-pups-provision"

const (
	defaultProvisionedUnits = 5
	defaultMaxWait          = 10 * time.Minute
	defaultPollInterval     = 5 * time.Second
)

// DynamoDBAPI is the subset of the DynamoDB client the table service uses.
type DynamoDBAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTable(ctx context.Context, params *dynamodb.UpdateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	UpdateContinuousBackups(ctx context.Context, params *dynamodb.UpdateContinuousBackupsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateContinuousBackupsOutput, error)
	DescribeTimeToLive(ctx context.Context, params *dynamodb.DescribeTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTimeToLiveOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
	TagResource(ctx context.Context, params *dynamodb.TagResourceInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TagResourceOutput, error)
}

var _ DynamoDBAPI = (*dynamodb.Client)(nil)

// TableService applies table declarations with the DynamoDB control plane. Missing tables are
// created; existing tables get missing indexes, deletion protection, recovery, time to live and
// tags reconciled. Billing mode and key schema of an existing table are never changed.
type TableService struct {
	client       DynamoDBAPI
	logger       observability.StructuredLogger
	maxWait      time.Duration
	pollInterval time.Duration
	managedBy    string

	mu      sync.Mutex
	created map[string]provision.TableDeclaration
}

var (
	_ provision.TableService = (*TableService)(nil)
	_ provision.Rollbacker   = (*TableService)(nil)
)

type TableOption func(*TableService)

func WithTableLogger(l observability.StructuredLogger) TableOption {
	return func(s *TableService) {
		s.logger = l
	}
}

// WithWait bounds how long the service waits for a table or index to become active, and how
// often it polls index status.
func WithWait(maxWait, pollInterval time.Duration) TableOption {
	return func(s *TableService) {
		if maxWait > 0 {
			s.maxWait = maxWait
		}
		if pollInterval > 0 {
			s.pollInterval = pollInterval
		}
	}
}

func NewTableService(client DynamoDBAPI, opts ...TableOption) *TableService {
	s := &TableService{
		client:       client,
		maxWait:      defaultMaxWait,
		pollInterval: defaultPollInterval,
		managedBy:    ManagedByTag,
		created:      map[string]provision.TableDeclaration{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = observability.OrNoOp(s.logger).WithComponent("dynamodb")
	return s
}

// ApplyTable creates or reconciles one table. When a step after CreateTable fails, the returned
// Applied still reports Created so the caller can roll the new table back.
func (s *TableService) ApplyTable(ctx context.Context, decl provision.TableDeclaration) (provision.Applied, error) {
	log := s.logger.WithEntity(decl.Entity)

	current, err := s.describe(ctx, decl.Name)
	if err != nil {
		return provision.Applied{}, err
	}

	created := current == nil
	if created {
		if err := s.create(ctx, decl); err != nil {
			return provision.Applied{}, err
		}
		s.mu.Lock()
		s.created[decl.Name] = decl
		s.mu.Unlock()
		log.Info("table created", map[string]any{"table": decl.Name})
	} else if err := s.reconcile(ctx, decl, current); err != nil {
		return provision.Applied{}, err
	}

	partial := provision.Applied{
		Handle: provision.TableHandle{
			Entity:      decl.Entity,
			Resource:    decl.Resource,
			DisplayName: decl.DisplayName,
			Name:        decl.Name,
		},
		Created: created,
	}

	desc, err := s.waitActive(ctx, decl.Name)
	if err != nil {
		return partial, err
	}
	partial.Handle.Identifier = aws.ToString(desc.TableArn)

	if err := s.applyRecovery(ctx, decl); err != nil {
		return partial, err
	}
	if err := s.applyTimeToLive(ctx, decl); err != nil {
		return partial, err
	}
	if !created {
		if err := s.applyTags(ctx, decl, aws.ToString(desc.TableArn)); err != nil {
			return partial, err
		}
	}

	if n := aws.ToString(desc.TableName); n != "" {
		partial.Handle.Name = n
	}
	return partial, nil
}

// RollbackTable deletes a table this service created. Tables declared with the retain teardown
// are left in place.
func (s *TableService) RollbackTable(ctx context.Context, h provision.TableHandle) error {
	s.mu.Lock()
	decl, ok := s.created[h.Name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("table %s was not created by this run", h.Name)
	}

	log := s.logger.WithEntity(h.Entity)
	if decl.Teardown == policy.TeardownRetain {
		log.Warn("table retained on rollback", map[string]any{"table": h.Name})
		return nil
	}

	if decl.DeletionProtected {
		_, err := s.client.UpdateTable(ctx, &dynamodb.UpdateTableInput{
			TableName:                 aws.String(h.Name),
			DeletionProtectionEnabled: aws.Bool(false),
		})
		if err != nil {
			return fmt.Errorf("disable deletion protection %s: %w", h.Name, err)
		}
		if _, err := s.waitActive(ctx, h.Name); err != nil {
			return err
		}
	}

	if _, err := s.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(h.Name)}); err != nil {
		return fmt.Errorf("delete table %s: %w", h.Name, err)
	}
	waiter := dynamodb.NewTableNotExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(h.Name)}, s.maxWait); err != nil {
		return fmt.Errorf("wait for table %s deletion: %w", h.Name, err)
	}

	s.mu.Lock()
	delete(s.created, h.Name)
	s.mu.Unlock()
	return nil
}

// describe returns nil when the table does not exist.
func (s *TableService) describe(ctx context.Context, name string) (*ddbtypes.TableDescription, error) {
	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err != nil {
		var notFound *ddbtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("describe table %s: %w", name, err)
	}
	return out.Table, nil
}

func (s *TableService) create(ctx context.Context, decl provision.TableDeclaration) error {
	in := &dynamodb.CreateTableInput{
		TableName:                 aws.String(decl.Name),
		AttributeDefinitions:      attributeDefinitions(decl.Attributes),
		KeySchema:                 keySchema(decl.PartitionKey, decl.SortKey),
		BillingMode:               billingMode(decl.CapacityMode),
		DeletionProtectionEnabled: aws.Bool(decl.DeletionProtected),
		Tags:                      s.tags(decl),
	}
	if decl.CapacityMode == policy.CapacityProvisioned {
		in.ProvisionedThroughput = throughput()
	}
	for _, idx := range decl.Indexes {
		gsi := ddbtypes.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.Name),
			KeySchema:  keySchema(idx.PartitionKey, idx.SortKey),
			Projection: &ddbtypes.Projection{ProjectionType: projectionType(idx.Projection)},
		}
		if decl.CapacityMode == policy.CapacityProvisioned {
			gsi.ProvisionedThroughput = throughput()
		}
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, gsi)
	}

	if _, err := s.client.CreateTable(ctx, in); err != nil {
		return fmt.Errorf("create table %s: %w", decl.Name, err)
	}
	return nil
}

func (s *TableService) reconcile(ctx context.Context, decl provision.TableDeclaration, current *ddbtypes.TableDescription) error {
	log := s.logger.WithEntity(decl.Entity)

	if aws.ToBool(current.DeletionProtectionEnabled) != decl.DeletionProtected {
		_, err := s.client.UpdateTable(ctx, &dynamodb.UpdateTableInput{
			TableName:                 aws.String(decl.Name),
			DeletionProtectionEnabled: aws.Bool(decl.DeletionProtected),
		})
		if err != nil {
			return fmt.Errorf("update deletion protection %s: %w", decl.Name, err)
		}
		log.Info("deletion protection updated", map[string]any{"table": decl.Name, "enabled": decl.DeletionProtected})
		if _, err := s.waitActive(ctx, decl.Name); err != nil {
			return err
		}
	}

	existing := map[string]bool{}
	for _, g := range current.GlobalSecondaryIndexes {
		existing[aws.ToString(g.IndexName)] = true
	}
	for _, idx := range decl.Indexes {
		if existing[idx.Name] {
			continue
		}
		action := &ddbtypes.CreateGlobalSecondaryIndexAction{
			IndexName:  aws.String(idx.Name),
			KeySchema:  keySchema(idx.PartitionKey, idx.SortKey),
			Projection: &ddbtypes.Projection{ProjectionType: projectionType(idx.Projection)},
		}
		if decl.CapacityMode == policy.CapacityProvisioned {
			action.ProvisionedThroughput = throughput()
		}
		// One index per update; DynamoDB rejects concurrent index creation.
		_, err := s.client.UpdateTable(ctx, &dynamodb.UpdateTableInput{
			TableName:                   aws.String(decl.Name),
			AttributeDefinitions:        attributeDefinitions(decl.Attributes),
			GlobalSecondaryIndexUpdates: []ddbtypes.GlobalSecondaryIndexUpdate{{Create: action}},
		})
		if err != nil {
			return fmt.Errorf("create index %s on %s: %w", idx.Name, decl.Name, err)
		}
		log.Info("index created", map[string]any{"table": decl.Name, "index": idx.Name})
		if err := s.waitIndexes(ctx, decl.Name); err != nil {
			return err
		}
	}

	declared := map[string]bool{}
	for _, idx := range decl.Indexes {
		declared[idx.Name] = true
	}
	for name := range existing {
		if !declared[name] {
			log.Warn("undeclared index left in place", map[string]any{"table": decl.Name, "index": name})
		}
	}
	return nil
}

func (s *TableService) waitActive(ctx context.Context, name string) (*ddbtypes.TableDescription, error) {
	waiter := dynamodb.NewTableExistsWaiter(s.client)
	out, err := waiter.WaitForOutput(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, s.maxWait)
	if err != nil {
		return nil, fmt.Errorf("wait for table %s: %w", name, err)
	}
	return out.Table, nil
}

// waitIndexes polls until the table and all of its indexes are active.
func (s *TableService) waitIndexes(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.maxWait)
	defer cancel()

	for {
		desc, err := s.describe(ctx, name)
		if err != nil {
			return err
		}
		if desc != nil && indexesActive(desc) {
			return nil
		}

		timer := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for indexes on %s: %w", name, ctx.Err())
		case <-timer.C:
		}
	}
}

func indexesActive(desc *ddbtypes.TableDescription) bool {
	if desc.TableStatus != ddbtypes.TableStatusActive {
		return false
	}
	for _, g := range desc.GlobalSecondaryIndexes {
		if g.IndexStatus != ddbtypes.IndexStatusActive {
			return false
		}
	}
	return true
}

func (s *TableService) applyRecovery(ctx context.Context, decl provision.TableDeclaration) error {
	_, err := s.client.UpdateContinuousBackups(ctx, &dynamodb.UpdateContinuousBackupsInput{
		TableName: aws.String(decl.Name),
		PointInTimeRecoverySpecification: &ddbtypes.PointInTimeRecoverySpecification{
			PointInTimeRecoveryEnabled: aws.Bool(decl.RecoveryEnabled),
		},
	})
	if err != nil {
		return fmt.Errorf("update point in time recovery %s: %w", decl.Name, err)
	}
	return nil
}

func (s *TableService) applyTimeToLive(ctx context.Context, decl provision.TableDeclaration) error {
	if decl.TimeToLiveAttribute == "" {
		return nil
	}
	out, err := s.client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{TableName: aws.String(decl.Name)})
	if err != nil {
		return fmt.Errorf("describe time to live %s: %w", decl.Name, err)
	}
	if d := out.TimeToLiveDescription; d != nil && aws.ToString(d.AttributeName) == decl.TimeToLiveAttribute {
		switch d.TimeToLiveStatus {
		case ddbtypes.TimeToLiveStatusEnabled, ddbtypes.TimeToLiveStatusEnabling:
			return nil
		}
	}

	_, err = s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(decl.Name),
		TimeToLiveSpecification: &ddbtypes.TimeToLiveSpecification{
			AttributeName: aws.String(decl.TimeToLiveAttribute),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("update time to live %s: %w", decl.Name, err)
	}
	return nil
}

func (s *TableService) applyTags(ctx context.Context, decl provision.TableDeclaration, arn string) error {
	tags := s.tags(decl)
	if len(tags) == 0 || arn == "" {
		return nil
	}
	if _, err := s.client.TagResource(ctx, &dynamodb.TagResourceInput{ResourceArn: aws.String(arn), Tags: tags}); err != nil {
		return fmt.Errorf("tag table %s: %w", decl.Name, err)
	}
	return nil
}

func (s *TableService) tags(decl provision.TableDeclaration) []ddbtypes.Tag {
	merged := map[string]string{}
	for k, v := range decl.Tags {
		merged[k] = v
	}
	if _, ok := merged["ManagedBy"]; !ok && s.managedBy != "" {
		merged["ManagedBy"] = s.managedBy
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ddbtypes.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, ddbtypes.Tag{Key: aws.String(k), Value: aws.String(merged[k])})
	}
	return out
}

func attributeDefinitions(attrs []schema.KeyDef) []ddbtypes.AttributeDefinition {
	out := make([]ddbtypes.AttributeDefinition, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, ddbtypes.AttributeDefinition{
			AttributeName: aws.String(a.Name),
			AttributeType: ddbtypes.ScalarAttributeType(a.Kind),
		})
	}
	return out
}

func keySchema(pk schema.KeyDef, sk *schema.KeyDef) []ddbtypes.KeySchemaElement {
	out := []ddbtypes.KeySchemaElement{{AttributeName: aws.String(pk.Name), KeyType: ddbtypes.KeyTypeHash}}
	if sk != nil {
		out = append(out, ddbtypes.KeySchemaElement{AttributeName: aws.String(sk.Name), KeyType: ddbtypes.KeyTypeRange})
	}
	return out
}

func projectionType(p schema.Projection) ddbtypes.ProjectionType {
	switch p {
	case schema.ProjectionAll, "":
		return ddbtypes.ProjectionTypeAll
	default:
		return ddbtypes.ProjectionType(p)
	}
}

func billingMode(m policy.CapacityMode) ddbtypes.BillingMode {
	if m == policy.CapacityProvisioned {
		return ddbtypes.BillingModeProvisioned
	}
	return ddbtypes.BillingModePayPerRequest
}

func throughput() *ddbtypes.ProvisionedThroughput {
	return &ddbtypes.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(defaultProvisionedUnits),
		WriteCapacityUnits: aws.Int64(defaultProvisionedUnits),
	}
}
