// Package mainconfig builds shared SDK configuration for the binaries.
package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/accessmod/lead-marketplace/internal/config"
)

// LoadAWSConfig loads region and credentials from cfg, falling back to the
// default provider chain when no static keys are set.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, loaders...)
}

// Clients are the AWS service clients used by the API.
type Clients struct {
	SQS      *sqs.Client
	DynamoDB *dynamodb.Client
	S3       *s3.Client
	SES      *sesv2.Client
}

// NewClients builds every client from awsCfg. A non-empty endpoint override
// (LocalStack) is applied to all of them; S3 then also uses path-style addressing.
func NewClients(awsCfg aws.Config, endpointOverride string) Clients {
	endpoint := strings.TrimSpace(endpointOverride)
	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}
	return Clients{
		SQS: sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			o.BaseEndpoint = base
		}),
		DynamoDB: dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = base
		}),
		S3: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = base
			o.UsePathStyle = base != nil
		}),
		SES: sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			o.BaseEndpoint = base
		}),
	}
}
