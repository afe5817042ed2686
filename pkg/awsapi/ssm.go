package awsapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/observability"
	"github.com/acorn-pups/dbinfra/pkg/params"
)

// SSMAPI is the subset of the Systems Manager client the registry uses.
type SSMAPI interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error)
}

var _ SSMAPI = (*ssm.Client)(nil)

// ParameterRegistry stores parameters in Parameter Store. A path is owned by the stack named in
// its description; the owner may overwrite it and any other writer gets a duplicate-path error.
type ParameterRegistry struct {
	client SSMAPI
	logger observability.StructuredLogger
}

var (
	_ params.Registry = (*ParameterRegistry)(nil)
	_ params.Reader   = (*ParameterRegistry)(nil)
)

func NewParameterRegistry(client SSMAPI, logger observability.StructuredLogger) *ParameterRegistry {
	return &ParameterRegistry{client: client, logger: observability.OrNoOp(logger).WithComponent("ssm")}
}

func (r *ParameterRegistry) PutParameter(ctx context.Context, p params.Parameter) error {
	err := r.put(ctx, p, false)
	if err == nil {
		return nil
	}
	var exists *ssmtypes.ParameterAlreadyExists
	if !errors.As(err, &exists) {
		return fmt.Errorf("put parameter %s: %w", p.Path, err)
	}

	owner, err := r.owner(ctx, p.Path)
	if err != nil {
		return err
	}
	if owner != p.Owner {
		return dbinfra.NewError(dbinfra.ErrorCodeDuplicatePath, p.Path,
			fmt.Sprintf("duplicate parameter path, owned by %s", ownerLabel(owner)))
	}

	if err := r.put(ctx, p, true); err != nil {
		return fmt.Errorf("overwrite parameter %s: %w", p.Path, err)
	}
	r.logger.Debug("parameter overwritten", map[string]any{"path": p.Path, "owner": owner})
	return nil
}

func (r *ParameterRegistry) GetParameter(ctx context.Context, path string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(path)})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", params.ErrParameterNotFound, path)
		}
		return "", fmt.Errorf("get parameter %s: %w", path, err)
	}
	if out.Parameter == nil {
		return "", fmt.Errorf("%w: %s", params.ErrParameterNotFound, path)
	}
	return aws.ToString(out.Parameter.Value), nil
}

func (r *ParameterRegistry) put(ctx context.Context, p params.Parameter, overwrite bool) error {
	in := &ssm.PutParameterInput{
		Name:        aws.String(p.Path),
		Value:       aws.String(p.Value),
		Description: aws.String(p.Description),
		Type:        ssmtypes.ParameterTypeString,
		Tier:        ssmtypes.ParameterTier(p.Tier),
		Overwrite:   aws.Bool(overwrite),
	}
	if p.AllowedPattern != "" {
		in.AllowedPattern = aws.String(p.AllowedPattern)
	}
	_, err := r.client.PutParameter(ctx, in)
	return err
}

func (r *ParameterRegistry) owner(ctx context.Context, path string) (string, error) {
	out, err := r.client.DescribeParameters(ctx, &ssm.DescribeParametersInput{
		ParameterFilters: []ssmtypes.ParameterStringFilter{{
			Key:    aws.String("Name"),
			Option: aws.String("Equals"),
			Values: []string{path},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("describe parameter %s: %w", path, err)
	}
	for _, md := range out.Parameters {
		if aws.ToString(md.Name) == path {
			return params.OwnerOf(aws.ToString(md.Description)), nil
		}
	}
	return "", nil
}

func ownerLabel(owner string) string {
	if owner == "" {
		return "an unmanaged writer"
	}
	return owner
}
