package messaging

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Notifier observes the lifecycle of sync jobs. Progress is called from
// inside a running job and must return promptly.
type Notifier interface {
	Queued(ctx context.Context, ev JobEvent)
	Started(ctx context.Context, ev JobEvent)
	Progress(ctx context.Context, ev ProgressEvent)
	Completed(ctx context.Context, ev CompletionEvent)
}

// MessageSender defines the interface for sending raw messages to a messaging system.
type MessageSender interface {
	SendMessage(ctx context.Context, destination, eventType string, body []byte) error
}

// SQSClient defines the interface for the AWS SQS client.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}
