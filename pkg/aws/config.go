package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/rs/zerolog/log"

	"timebridge.service/internal/config"
)

// NewAWSConfig creates a new AWS configuration, pointing to LocalStack when
// running locally with an endpoint override.
func NewAWSConfig(ctx context.Context, appConfig config.Config) (aws.Config, error) {
	if appConfig.IsLocalDev && appConfig.AWSEndpoint != "" {
		log.Info().Str("endpoint", appConfig.AWSEndpoint).Msg("Local development mode detected. Routing AWS calls to LocalStack.")
		return awsConfig.LoadDefaultConfig(ctx,
			awsConfig.WithRegion(appConfig.AWSRegion),
			awsConfig.WithBaseEndpoint(appConfig.AWSEndpoint),
			awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		)
	}

	// Standard credential chain (env, shared config, IAM role for service accounts).
	return awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(appConfig.AWSRegion))
}

// Enabled reports whether any AWS-backed notifier is configured.
func Enabled(appConfig config.Config) bool {
	return appConfig.NotifySQSQueueURL != "" || appConfig.TriggerSQSQueueURL != "" ||
		(appConfig.AlertEmailFrom != "" && appConfig.AlertEmailTo != "")
}
