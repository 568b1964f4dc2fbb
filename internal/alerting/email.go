package alerting

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"macrowatch/internal/config"
)

// EmailHandler delivers alerts and digests over SMTP as plain text.
type EmailHandler struct {
	cfg    config.EmailConfig
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
	logger zerolog.Logger
}

func NewEmailHandler(cfg config.EmailConfig, logger zerolog.Logger) *EmailHandler {
	return &EmailHandler{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

func (h *EmailHandler) Name() string { return "email" }

func (h *EmailHandler) Enabled() bool { return h.cfg.Enabled }

func (h *EmailHandler) SendAlert(_ context.Context, alert Alert) error {
	subject := fmt.Sprintf("[macrowatch] [%s] %s", strings.ToUpper(alert.Severity), alert.RuleName)
	return h.deliver(subject, renderAlertText(alert))
}

func (h *EmailHandler) SendDigest(_ context.Context, alerts []Alert, summary Summary) error {
	subject := fmt.Sprintf("[macrowatch digest] %s - %d alerts", summary.Date, summary.TotalCount)
	return h.deliver(subject, renderDigestText(alerts, summary))
}

func (h *EmailHandler) deliver(subject, body string) error {
	if !h.cfg.Enabled {
		return nil
	}
	if len(h.cfg.ToAddresses) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", h.cfg.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(h.cfg.ToAddresses, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", h.cfg.SMTPHost, h.cfg.SMTPPort)
	var auth smtp.Auth
	if h.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", h.cfg.SMTPUser, h.cfg.SMTPPass, h.cfg.SMTPHost)
	}

	if err := h.send(addr, auth, h.cfg.FromAddress, h.cfg.ToAddresses, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	h.logger.Info().Str("subject", subject).Int("recipients", len(h.cfg.ToAddresses)).Msg("email sent")
	return nil
}

var _ Handler = (*EmailHandler)(nil)
