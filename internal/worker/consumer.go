package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"timebridge.service/pkg/logger"
	"timebridge.service/pkg/telemetry"
)

type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Processor handles one queue message and tells the consumer whether to
// delete it or make it visible again after retryDelay seconds.
type Processor interface {
	Process(ctx context.Context, msg types.Message) (shouldRetry bool, retryDelay int32, err error)
}

// Consumer long-polls an SQS queue and hands messages to a Processor.
type Consumer struct {
	client    SQSClient
	queueURL  string
	processor Processor
	// Concurrency controls how many messages are processed at the same time.
	Concurrency int
	// WaitTime is the long-poll duration in seconds.
	WaitTime int32
	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration
}

func NewConsumer(client SQSClient, url string, proc Processor) *Consumer {
	return &Consumer{
		client:       client,
		queueURL:     url,
		processor:    proc,
		Concurrency:  2,
		WaitTime:     20,
		ErrorBackoff: 5 * time.Second,
	}
}

// Start polls until ctx is cancelled, then waits for in-flight messages.
func (c *Consumer) Start(ctx context.Context) {
	log.Info().Str("queue", c.queueURL).Int("concurrency", c.Concurrency).Msg("Trigger consumer started")

	messagesCh := make(chan types.Message, c.Concurrency)
	done := make(chan struct{})
	for i := 0; i < c.Concurrency; i++ {
		go func() {
			c.processMessages(ctx, messagesCh)
			done <- struct{}{}
		}()
	}

	c.pollMessages(ctx, messagesCh)
	for i := 0; i < c.Concurrency; i++ {
		<-done
	}
}

func (c *Consumer) pollMessages(ctx context.Context, messagesCh chan<- types.Message) {
	defer close(messagesCh)

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Trigger consumer shutting down")
			return
		}
		output, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:                    &c.queueURL,
			MaxNumberOfMessages:         int32(c.Concurrency),
			WaitTimeSeconds:             c.WaitTime,
			MessageAttributeNames:       []string{"All"},
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("Error receiving messages")
			select {
			case <-ctx.Done():
			case <-time.After(c.ErrorBackoff):
			}
			continue
		}
		if len(output.Messages) > 0 {
			log.Debug().Int("count", len(output.Messages)).Msg("Received trigger messages")
		}
		for _, msg := range output.Messages {
			messagesCh <- msg
		}
	}
}

func (c *Consumer) processMessages(ctx context.Context, messagesCh <-chan types.Message) {
	for msg := range messagesCh {
		c.handleSingleMessage(context.WithoutCancel(ctx), msg)
	}
}

// handleSingleMessage either makes the message visible again after the
// processor's delay or deletes it. Unrecoverable messages are deleted too.
func (c *Consumer) handleSingleMessage(ctx context.Context, msg types.Message) {
	ctx, span := telemetry.StartSpanFromSQSMessage(ctx, msg)
	defer span.End()

	ctx = logger.EnrichContextWithLogger(ctx)

	shouldRetry, retryDelay, err := c.processor.Process(ctx, msg)

	if err != nil && shouldRetry {
		log.Ctx(ctx).Warn().Err(err).Int32("retry_delay", retryDelay).Msg("Processing failed, will retry")

		if _, verr := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          &c.queueURL,
			ReceiptHandle:     msg.ReceiptHandle,
			VisibilityTimeout: retryDelay,
		}); verr != nil {
			log.Ctx(ctx).Error().Err(verr).Msg("Failed to change message visibility")
		}
		return
	}

	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Unrecoverable error processing message, dropping it")
	}
	if _, derr := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: msg.ReceiptHandle,
	}); derr != nil {
		log.Ctx(ctx).Error().Err(derr).Msg("Failed to delete message")
	}
}

// receiveCount reads the ApproximateReceiveCount system attribute.
func receiveCount(msg types.Message) int {
	n, err := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
