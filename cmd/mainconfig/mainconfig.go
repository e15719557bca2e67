// Package mainconfig centralizes SDK initialization shared by the binaries.
package mainconfig

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	appconfig "github.com/ordena/pizzabot/internal/config"
)

// LoadAWSConfig builds the AWS SDK configuration used for Bedrock calls.
// Credentials come from the default provider chain.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
}
