package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awsrekognition "github.com/aws/aws-sdk-go-v2/service/rekognition"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/kirillkom/filemeta-worker/internal/config"
)

type awsClients struct {
	s3          *awss3.Client
	sqs         *awssqs.Client
	rekognition *awsrekognition.Client
	bedrock     *bedrockruntime.Client
}

// newAWSClients builds SDK clients from the default credential chain. Static
// keys and a custom endpoint (LocalStack, MinIO through the S3 API) override it.
func newAWSClients(ctx context.Context, cfg config.Config) (awsClients, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return awsClients{}, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.AWSEndpointURL
	return awsClients{
		s3: awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		}),
		sqs: awssqs.NewFromConfig(awsCfg, func(o *awssqs.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}),
		rekognition: awsrekognition.NewFromConfig(awsCfg, func(o *awsrekognition.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}),
		bedrock: bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}),
	}, nil
}
