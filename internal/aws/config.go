package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// Options selects the AWS environment the clients talk to.
type Options struct {
	Region string
	// DynamoDBEndpoint points the DynamoDB client at a local emulator.
	DynamoDBEndpoint string
	// LocalCredentials swaps the default credential chain for fixed dummy
	// keys, which is all a local emulator checks.
	LocalCredentials bool
}

func LoadAWSConfig(ctx context.Context, opts Options) (sdkaws.Config, error) {
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	loaders := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.LocalCredentials {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return cfg, nil
}
