package alerting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// SlackHandler posts alerts to a Slack incoming webhook.
type SlackHandler struct {
	enabled    bool
	webhookURL string
	logger     zerolog.Logger
}

func NewSlackHandler(enabled bool, webhookURL string, logger zerolog.Logger) *SlackHandler {
	return &SlackHandler{
		enabled:    enabled,
		webhookURL: webhookURL,
		logger:     logger.With().Str("component", "alert_slack").Logger(),
	}
}

func (h *SlackHandler) Name() string { return "slack" }

func (h *SlackHandler) Enabled() bool { return h.enabled }

func (h *SlackHandler) SendAlert(ctx context.Context, alert Alert) error {
	msg := &slack.WebhookMessage{
		Text: "*macrowatch alert*\n```" + renderAlertText(alert) + "```",
	}
	if err := slack.PostWebhookContext(ctx, h.webhookURL, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	h.logger.Info().
		Str("rule", alert.RuleName).
		Str("severity", alert.Severity).
		Msg("alert sent")
	return nil
}

func (h *SlackHandler) SendDigest(ctx context.Context, alerts []Alert, summary Summary) error {
	msg := &slack.WebhookMessage{
		Text: "*macrowatch digest*\n```" + renderDigestText(alerts, summary) + "```",
	}
	if err := slack.PostWebhookContext(ctx, h.webhookURL, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	h.logger.Info().Int("alerts", len(alerts)).Msg("digest sent")
	return nil
}

var _ Handler = (*SlackHandler)(nil)
