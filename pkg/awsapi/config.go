// Package awsapi implements the table, parameter and monitoring providers on the AWS SDK for
// direct provisioning without a deployment framework.
package awsapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/smithy-go"

	"github.com/acorn-pups/dbinfra/pkg/config"
)

// LoadOptions returns the SDK load options for the configured region, profile, static
// credentials and endpoint override.
func LoadOptions(c config.AWSConfig, region string) []func(*awsconfig.LoadOptions) error {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}
	if c.HasStaticCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}
	if c.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(c.Endpoint))
	}
	return opts
}

// LoadConfig loads the SDK configuration.
func LoadConfig(ctx context.Context, c config.AWSConfig, region string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, LoadOptions(c, region)...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// ErrorCode returns the service error code of err, or "" when err is not an API error.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
