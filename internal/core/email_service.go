package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"timebridge.service/internal/core/model"
)

type EmailService interface {
	SendRunAlert(ctx context.Context, to []string, res model.SyncResult) error
}

// SESClient is the part of *ses.Client used to send alerts.
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESEmailService struct {
	client SESClient
	sender string
}

func NewSESEmailService(client SESClient, sender string) *SESEmailService {
	return &SESEmailService{client: client, sender: sender}
}

// SendRunAlert mails a summary of a failed or partially failed run.
func (s *SESEmailService) SendRunAlert(ctx context.Context, to []string, res model.SyncResult) error {
	tracer := otel.Tracer("ses-email-service")
	ctx, span := tracer.Start(ctx, "send_run_alert", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("app.sync_type", string(res.Type)),
		attribute.Int64("app.run_id", res.RunID),
	)

	input := &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: to,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(AlertSubject(res)),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(AlertBody(res)),
				},
			},
		},
	}

	_, err := s.client.SendEmail(ctx, input)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("send run alert: %w", err)
	}
	return nil
}

func AlertSubject(res model.SyncResult) string {
	if !res.OK {
		return fmt.Sprintf("Timebridge %s run #%d failed", res.Type, res.RunID)
	}
	return fmt.Sprintf("Timebridge %s run #%d: %d records failed", res.Type, res.RunID, res.Stats.Failed)
}

func AlertBody(res model.SyncResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\nThe %s run #%d finished with problems.\n\n", res.Type, res.RunID)
	fmt.Fprintf(&b, "Processed: %d\nSucceeded: %d\nFailed: %d\nSkipped: %d\n\n",
		res.Stats.Processed, res.Stats.Success, res.Stats.Failed, res.Stats.Skipped)
	fmt.Fprintf(&b, "Message: %s\n", res.Message)
	return b.String()
}

// NeedsAlert reports whether a run result is worth telling an operator about.
func NeedsAlert(res model.SyncResult) bool {
	return !res.OK || res.Stats.Failed > 0
}
