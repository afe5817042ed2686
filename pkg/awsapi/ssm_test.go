package awsapi

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/params"
)

func overwrite(want bool) interface{} {
	return mock.MatchedBy(func(in *ssm.PutParameterInput) bool { return aws.ToBool(in.Overwrite) == want })
}

func describeOwner(path, description string) *ssm.DescribeParametersOutput {
	return &ssm.DescribeParametersOutput{Parameters: []ssmtypes.ParameterMetadata{{
		Name:        aws.String(path),
		Description: aws.String(description),
	}}}
}

func usersParameter(owner string) params.Parameter {
	return params.Parameter{
		ID:             "UsersTableNameParameter",
		Path:           "/acorn-pups/dev/dynamodb-tables/users/name",
		Value:          "acorn-pups-users-dev",
		Description:    params.RegistryDescription(owner, "Name of the Users DynamoDB table"),
		Tier:           params.TierStandard,
		AllowedPattern: params.AllowedPatternAny,
		Owner:          owner,
	}
}

func TestParameterRegistry_CreatesNewParameter(t *testing.T) {
	t.Parallel()

	client := &mockSSM{}
	client.On("PutParameter", mock.Anything, mock.MatchedBy(func(in *ssm.PutParameterInput) bool {
		return aws.ToString(in.Name) == "/acorn-pups/dev/dynamodb-tables/users/name" &&
			aws.ToString(in.Value) == "acorn-pups-users-dev" &&
			aws.ToString(in.Description) == "[acorn-pups-db-dev-dynamodb] Name of the Users DynamoDB table" &&
			in.Type == ssmtypes.ParameterTypeString &&
			in.Tier == ssmtypes.ParameterTierStandard &&
			aws.ToString(in.AllowedPattern) == ".*" &&
			!aws.ToBool(in.Overwrite)
	})).Return(&ssm.PutParameterOutput{}, nil).Once()

	reg := NewParameterRegistry(client, nil)
	require.NoError(t, reg.PutParameter(context.Background(), usersParameter("acorn-pups-db-dev-dynamodb")))
	client.AssertExpectations(t)
}

func TestParameterRegistry_OwnerMayOverwrite(t *testing.T) {
	t.Parallel()

	p := usersParameter("acorn-pups-db-dev-dynamodb")
	client := &mockSSM{}
	client.On("PutParameter", mock.Anything, overwrite(false)).Return(nil, &ssmtypes.ParameterAlreadyExists{}).Once()
	client.On("DescribeParameters", mock.Anything, mock.Anything).Return(describeOwner(p.Path, p.Description), nil).Once()
	client.On("PutParameter", mock.Anything, overwrite(true)).Return(&ssm.PutParameterOutput{}, nil).Once()

	require.NoError(t, NewParameterRegistry(client, nil).PutParameter(context.Background(), p))
	client.AssertExpectations(t)
}

func TestParameterRegistry_RejectsPathOwnedElsewhere(t *testing.T) {
	t.Parallel()

	p := usersParameter("demo-stack")
	client := &mockSSM{}
	client.On("PutParameter", mock.Anything, overwrite(false)).Return(nil, &ssmtypes.ParameterAlreadyExists{}).Once()
	client.On("DescribeParameters", mock.Anything, mock.Anything).
		Return(describeOwner(p.Path, "[acorn-pups-db-dev-dynamodb] Name of the Users DynamoDB table"), nil).Once()

	err := NewParameterRegistry(client, nil).PutParameter(context.Background(), p)
	require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeDuplicatePath))
	require.Contains(t, err.Error(), "acorn-pups-db-dev-dynamodb")
	require.Contains(t, err.Error(), p.Path)
	client.AssertNotCalled(t, "PutParameter", mock.Anything, overwrite(true))
}

func TestParameterRegistry_UnmanagedParameterIsNotOverwritten(t *testing.T) {
	t.Parallel()

	p := usersParameter("demo-stack")
	client := &mockSSM{}
	client.On("PutParameter", mock.Anything, overwrite(false)).Return(nil, &ssmtypes.ParameterAlreadyExists{}).Once()
	client.On("DescribeParameters", mock.Anything, mock.Anything).Return(describeOwner(p.Path, "hand made"), nil).Once()

	err := NewParameterRegistry(client, nil).PutParameter(context.Background(), p)
	require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeDuplicatePath))
	require.Contains(t, err.Error(), "an unmanaged writer")
}

func TestParameterRegistry_GetParameter(t *testing.T) {
	t.Parallel()

	client := &mockSSM{}
	client.On("GetParameter", mock.Anything, mock.MatchedBy(func(in *ssm.GetParameterInput) bool {
		return aws.ToString(in.Name) == "/acorn-pups/dev/dynamodb-tables/users/name"
	})).Return(&ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String("acorn-pups-users-dev")}}, nil)
	client.On("GetParameter", mock.Anything, mock.MatchedBy(func(in *ssm.GetParameterInput) bool {
		return aws.ToString(in.Name) == "/acorn-pups/dev/dynamodb-tables/users/arn"
	})).Return(&ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String("arn:aws:dynamodb:us-east-1:1:table/acorn-pups-users-dev")}}, nil)
	client.On("GetParameter", mock.Anything, mock.Anything).Return(nil, &ssmtypes.ParameterNotFound{})

	reg := NewParameterRegistry(client, nil)
	ref, err := params.ResolveTable(context.Background(), reg, "acorn-pups", "dev", "users")
	require.NoError(t, err)
	require.Equal(t, "acorn-pups-users-dev", ref.Name)

	_, err = reg.GetParameter(context.Background(), "/acorn-pups/prod/dynamodb-tables/users/name")
	require.ErrorIs(t, err, params.ErrParameterNotFound)
}
