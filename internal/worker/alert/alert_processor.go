package alert

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"timebridge.service/internal/core"
	"timebridge.service/internal/ports/messaging"
)

// WebhookPoster sends a Slack incoming-webhook message.
type WebhookPoster func(ctx context.Context, url string, msg *slack.WebhookMessage) error

// AlertProcessor tells operators about runs that failed or left failed
// records, by email and/or Slack. It only acts on Completed.
type AlertProcessor struct {
	messaging.NopNotifier
	emailService core.EmailService
	recipients   []string
	webhookURL   string
	post         WebhookPoster
}

// NewProcessor returns an alerter. A nil email service or empty webhook URL
// disables that channel.
func NewProcessor(emailService core.EmailService, recipients []string, webhookURL string) *AlertProcessor {
	return &AlertProcessor{
		emailService: emailService,
		recipients:   recipients,
		webhookURL:   webhookURL,
		post:         slack.PostWebhookContext,
	}
}

// ParseRecipients splits a comma separated address list.
func ParseRecipients(raw string) []string {
	var out []string
	for _, addr := range strings.Split(raw, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func (p *AlertProcessor) Completed(ctx context.Context, ev messaging.CompletionEvent) {
	if ev.Skipped || !core.NeedsAlert(ev.Result) {
		return
	}
	if err := p.Process(ctx, ev); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("job_id", ev.JobID).Msg("Failed to deliver run alert")
	}
}

// Process delivers one alert on every configured channel. A failing channel
// does not stop the others.
func (p *AlertProcessor) Process(ctx context.Context, ev messaging.CompletionEvent) error {
	var errs []string

	if p.emailService != nil && len(p.recipients) > 0 {
		if err := p.emailService.SendRunAlert(ctx, p.recipients, ev.Result); err != nil {
			errs = append(errs, err.Error())
		} else {
			log.Ctx(ctx).Info().Strs("to", p.recipients).Msg("Run alert emailed")
		}
	}

	if p.webhookURL != "" {
		if err := p.post(ctx, p.webhookURL, slackMessage(ev)); err != nil {
			errs = append(errs, fmt.Sprintf("slack webhook: %v", err))
		} else {
			log.Ctx(ctx).Info().Msg("Run alert posted to Slack")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("alert delivery: %s", strings.Join(errs, "; "))
	}
	return nil
}

func slackMessage(ev messaging.CompletionEvent) *slack.WebhookMessage {
	res := ev.Result
	color := "warning"
	if !res.OK {
		color = "danger"
	}
	return &slack.WebhookMessage{
		Text: core.AlertSubject(res),
		Attachments: []slack.Attachment{{
			Color: color,
			Text:  res.Message,
			Fields: []slack.AttachmentField{
				{Title: "Trigger", Value: string(ev.Trigger), Short: true},
				{Title: "Processed", Value: strconv.Itoa(res.Stats.Processed), Short: true},
				{Title: "Succeeded", Value: strconv.Itoa(res.Stats.Success), Short: true},
				{Title: "Failed", Value: strconv.Itoa(res.Stats.Failed), Short: true},
			},
		}},
	}
}
