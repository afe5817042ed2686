package awsapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/acorn-pups/dbinfra/pkg/policy"
	"github.com/acorn-pups/dbinfra/pkg/provision"
	"github.com/acorn-pups/dbinfra/pkg/schema"
)

const invitationsArn = "arn:aws:dynamodb:us-east-1:123456789012:table/acorn-pups-invitations-dev"

func invitationsDecl(env string) provision.TableDeclaration {
	p, _ := policy.Resolve(env)
	decls, _ := provision.Declarations("acorn-pups", schema.Default(), p)
	for _, d := range decls {
		if d.Entity == "Invitations" {
			return d
		}
	}
	panic("invitations table missing from catalog")
}

func tableNamed(name string) interface{} {
	return mock.MatchedBy(func(in *dynamodb.DescribeTableInput) bool { return aws.ToString(in.TableName) == name })
}

func activeTable(name, arn string, indexes ...string) *dynamodb.DescribeTableOutput {
	desc := &ddbtypes.TableDescription{
		TableName:   aws.String(name),
		TableArn:    aws.String(arn),
		TableStatus: ddbtypes.TableStatusActive,
	}
	for _, idx := range indexes {
		desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, ddbtypes.GlobalSecondaryIndexDescription{
			IndexName:   aws.String(idx),
			IndexStatus: ddbtypes.IndexStatusActive,
		})
	}
	return &dynamodb.DescribeTableOutput{Table: desc}
}

func newService(client DynamoDBAPI) *TableService {
	return NewTableService(client, WithWait(5*time.Second, time.Millisecond))
}

func notFound() error {
	return &ddbtypes.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
}

func TestTableService_CreatesMissingTable(t *testing.T) {
	t.Parallel()

	decl := invitationsDecl("dev")
	name := decl.Name
	client := &mockDynamo{}

	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(nil, notFound()).Once()
	client.On("CreateTable", mock.Anything, mock.MatchedBy(func(in *dynamodb.CreateTableInput) bool {
		tags := map[string]string{}
		for _, tag := range in.Tags {
			tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
		return aws.ToString(in.TableName) == name &&
			in.BillingMode == ddbtypes.BillingModePayPerRequest &&
			in.ProvisionedThroughput == nil &&
			!aws.ToBool(in.DeletionProtectionEnabled) &&
			len(in.KeySchema) == 2 && in.KeySchema[0].KeyType == ddbtypes.KeyTypeHash &&
			len(in.GlobalSecondaryIndexes) == len(decl.Indexes) &&
			in.GlobalSecondaryIndexes[0].Projection.ProjectionType == ddbtypes.ProjectionTypeAll &&
			tags["ManagedBy"] == ManagedByTag && tags["Environment"] == "dev" && tags["Service"] == "Database"
	})).Return(&dynamodb.CreateTableOutput{}, nil).Once()
	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(activeTable(name, invitationsArn, "GSI1"), nil)
	client.On("UpdateContinuousBackups", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateContinuousBackupsInput) bool {
		return !aws.ToBool(in.PointInTimeRecoverySpecification.PointInTimeRecoveryEnabled)
	})).Return(&dynamodb.UpdateContinuousBackupsOutput{}, nil).Once()
	client.On("DescribeTimeToLive", mock.Anything, mock.Anything).Return(&dynamodb.DescribeTimeToLiveOutput{
		TimeToLiveDescription: &ddbtypes.TimeToLiveDescription{TimeToLiveStatus: ddbtypes.TimeToLiveStatusDisabled},
	}, nil).Once()
	client.On("UpdateTimeToLive", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateTimeToLiveInput) bool {
		return aws.ToString(in.TimeToLiveSpecification.AttributeName) == "ttl" && aws.ToBool(in.TimeToLiveSpecification.Enabled)
	})).Return(&dynamodb.UpdateTimeToLiveOutput{}, nil).Once()

	applied, err := newService(client).ApplyTable(context.Background(), decl)
	require.NoError(t, err)
	require.True(t, applied.Created)
	require.Equal(t, provision.TableHandle{
		Entity:      "Invitations",
		Resource:    "invitations",
		DisplayName: "Invitations",
		Name:        name,
		Identifier:  invitationsArn,
	}, applied.Handle)
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "TagResource", mock.Anything, mock.Anything)
}

func TestTableService_ReconcilesExistingTable(t *testing.T) {
	t.Parallel()

	decl := invitationsDecl("prod")
	decl.TimeToLiveAttribute = ""
	name := decl.Name
	arn := "arn:aws:dynamodb:us-east-1:123456789012:table/" + name
	client := &mockDynamo{}

	existing := activeTable(name, arn, "GSI2", "LegacyIndex")
	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(existing, nil).Once()
	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(activeTable(name, arn, "GSI1", "GSI2", "LegacyIndex"), nil)
	client.On("UpdateTable", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateTableInput) bool {
		return in.DeletionProtectionEnabled != nil && aws.ToBool(in.DeletionProtectionEnabled)
	})).Return(&dynamodb.UpdateTableOutput{}, nil).Once()
	client.On("UpdateTable", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateTableInput) bool {
		return len(in.GlobalSecondaryIndexUpdates) == 1 &&
			aws.ToString(in.GlobalSecondaryIndexUpdates[0].Create.IndexName) == "GSI1" &&
			len(in.AttributeDefinitions) == len(decl.Attributes)
	})).Return(&dynamodb.UpdateTableOutput{}, nil).Once()
	client.On("UpdateContinuousBackups", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateContinuousBackupsInput) bool {
		return aws.ToBool(in.PointInTimeRecoverySpecification.PointInTimeRecoveryEnabled)
	})).Return(&dynamodb.UpdateContinuousBackupsOutput{}, nil).Once()
	client.On("TagResource", mock.Anything, mock.MatchedBy(func(in *dynamodb.TagResourceInput) bool {
		return aws.ToString(in.ResourceArn) == arn && len(in.Tags) == 4
	})).Return(&dynamodb.TagResourceOutput{}, nil).Once()

	applied, err := newService(client).ApplyTable(context.Background(), decl)
	require.NoError(t, err)
	require.False(t, applied.Created)
	require.Equal(t, arn, applied.Handle.Identifier)
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "CreateTable", mock.Anything, mock.Anything)
}

func TestTableService_SurfacesProviderErrors(t *testing.T) {
	t.Parallel()

	decl := invitationsDecl("dev")
	client := &mockDynamo{}
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(nil, notFound()).Once()
	client.On("CreateTable", mock.Anything, mock.Anything).
		Return(nil, &ddbtypes.LimitExceededException{Message: aws.String("Subscriber limit exceeded")}).Once()

	_, err := newService(client).ApplyTable(context.Background(), decl)
	require.Error(t, err)
	var limit *ddbtypes.LimitExceededException
	require.True(t, errors.As(err, &limit))
	require.Equal(t, "LimitExceededException", ErrorCode(err))
	require.Contains(t, err.Error(), decl.Name)
}

func TestTableService_DescribeErrorIsNotTreatedAsMissing(t *testing.T) {
	t.Parallel()

	client := &mockDynamo{}
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(nil, errors.New("AccessDeniedException")).Once()

	_, err := newService(client).ApplyTable(context.Background(), invitationsDecl("dev"))
	require.ErrorContains(t, err, "AccessDeniedException")
	client.AssertNotCalled(t, "CreateTable", mock.Anything, mock.Anything)
}

func TestTableService_RollbackDeletesCreatedTables(t *testing.T) {
	t.Parallel()

	decl := invitationsDecl("dev")
	decl.TimeToLiveAttribute = ""
	name := decl.Name
	client := &mockDynamo{}
	svc := newService(client)

	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(nil, notFound()).Once()
	client.On("CreateTable", mock.Anything, mock.Anything).Return(&dynamodb.CreateTableOutput{}, nil).Once()
	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(activeTable(name, invitationsArn, "GSI1"), nil).Once()
	client.On("UpdateContinuousBackups", mock.Anything, mock.Anything).Return(&dynamodb.UpdateContinuousBackupsOutput{}, nil).Once()

	applied, err := svc.ApplyTable(context.Background(), decl)
	require.NoError(t, err)

	client.On("DeleteTable", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteTableInput) bool {
		return aws.ToString(in.TableName) == name
	})).Return(&dynamodb.DeleteTableOutput{}, nil).Once()
	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(nil, notFound()).Once()

	require.NoError(t, svc.RollbackTable(context.Background(), applied.Handle))
	client.AssertExpectations(t)

	require.Error(t, svc.RollbackTable(context.Background(), applied.Handle), "second rollback has nothing to delete")
}

func TestTableService_RollbackRetainsProtectedTeardown(t *testing.T) {
	t.Parallel()

	decl := invitationsDecl("prod")
	decl.TimeToLiveAttribute = ""
	name := decl.Name
	client := &mockDynamo{}
	svc := newService(client)

	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(nil, notFound()).Once()
	client.On("CreateTable", mock.Anything, mock.MatchedBy(func(in *dynamodb.CreateTableInput) bool {
		return aws.ToBool(in.DeletionProtectionEnabled)
	})).Return(&dynamodb.CreateTableOutput{}, nil).Once()
	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(activeTable(name, invitationsArn, "GSI1"), nil).Once()
	client.On("UpdateContinuousBackups", mock.Anything, mock.Anything).Return(&dynamodb.UpdateContinuousBackupsOutput{}, nil).Once()

	applied, err := svc.ApplyTable(context.Background(), decl)
	require.NoError(t, err)

	require.NoError(t, svc.RollbackTable(context.Background(), applied.Handle))
	client.AssertNotCalled(t, "DeleteTable", mock.Anything, mock.Anything)
}

func TestTableService_ReportsCreatedWhenLaterStepFails(t *testing.T) {
	t.Parallel()

	decl := invitationsDecl("dev")
	name := decl.Name
	client := &mockDynamo{}

	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(nil, notFound()).Once()
	client.On("CreateTable", mock.Anything, mock.Anything).Return(&dynamodb.CreateTableOutput{}, nil).Once()
	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(activeTable(name, invitationsArn, "GSI1"), nil).Once()
	client.On("UpdateContinuousBackups", mock.Anything, mock.Anything).
		Return(nil, errors.New("ValidationException: boom")).Once()

	applied, err := newService(client).ApplyTable(context.Background(), decl)
	require.ErrorContains(t, err, "update point in time recovery "+name)
	require.True(t, applied.Created)
	require.Equal(t, name, applied.Handle.Name)
	require.Equal(t, invitationsArn, applied.Handle.Identifier)
	client.AssertExpectations(t)
}

func TestTableService_EngineRollsBackTableWhenRecoveryUpdateFails(t *testing.T) {
	t.Parallel()

	decl := invitationsDecl("dev")
	name := decl.Name
	client := &mockDynamo{}

	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(nil, notFound()).Once()
	client.On("CreateTable", mock.Anything, mock.Anything).Return(&dynamodb.CreateTableOutput{}, nil).Once()
	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(activeTable(name, invitationsArn, "GSI1"), nil).Once()
	client.On("UpdateContinuousBackups", mock.Anything, mock.Anything).
		Return(nil, errors.New("ValidationException: boom")).Once()
	client.On("DeleteTable", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteTableInput) bool {
		return aws.ToString(in.TableName) == name
	})).Return(&dynamodb.DeleteTableOutput{}, nil).Once()
	client.On("DescribeTable", mock.Anything, tableNamed(name)).Return(nil, notFound()).Once()

	_, err := provision.NewEngine(newService(client)).Apply(context.Background(), []provision.TableDeclaration{decl})
	require.ErrorContains(t, err, "ValidationException: boom")
	require.ErrorContains(t, err, `"Invitations"`)
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "DeleteTable", 1)
}

func TestTableService_WorksWithProvisioningEngine(t *testing.T) {
	t.Parallel()

	p, err := policy.Resolve("dev")
	require.NoError(t, err)
	client := &mockDynamo{}
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(nil, errors.New("ThrottlingException")).Once()

	_, err = provision.NewEngine(newService(client)).Provision(context.Background(), "acorn-pups", schema.Default(), p)
	require.ErrorContains(t, err, "ThrottlingException")
	require.ErrorContains(t, err, `"Users"`)
}
