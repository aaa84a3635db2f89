package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoQueue = errors.New("queue URL is not configured")

// Producer publishes completion events and trigger requests. It is a
// Notifier that only acts on Completed.
type Producer struct {
	NopNotifier
	sender          MessageSender
	notifyQueueURL  string
	triggerQueueURL string
}

func NewProducer(sender MessageSender, notifyQueueURL, triggerQueueURL string) *Producer {
	return &Producer{
		sender:          sender,
		notifyQueueURL:  notifyQueueURL,
		triggerQueueURL: triggerQueueURL,
	}
}

func NewSQSProducer(client SQSClient, notifyQueueURL, triggerQueueURL string) *Producer {
	return NewProducer(NewSQSSender(client), notifyQueueURL, triggerQueueURL)
}

func (p *Producer) PublishCompletion(ctx context.Context, ev CompletionEvent) error {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("app.sync_type", string(ev.SyncType)),
			attribute.Int64("app.run_id", ev.Result.RunID),
		)
	}
	return p.publish(ctx, p.notifyQueueURL, EventTypeCompleted, ev)
}

func (p *Producer) PublishTrigger(ctx context.Context, msg TriggerMessage) error {
	return p.publish(ctx, p.triggerQueueURL, EventTypeTrigger, msg)
}

// Completed publishes ev, logging instead of failing the job.
func (p *Producer) Completed(ctx context.Context, ev CompletionEvent) {
	if p.notifyQueueURL == "" {
		return
	}
	if err := p.PublishCompletion(ctx, ev); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("job_id", ev.JobID).Msg("Failed to publish completion event")
	}
}

func (p *Producer) publish(ctx context.Context, destination, eventType string, body any) error {
	if destination == "" {
		return fmt.Errorf("publish %s: %w", eventType, ErrNoQueue)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}
	if err := p.sender.SendMessage(ctx, destination, eventType, b); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
