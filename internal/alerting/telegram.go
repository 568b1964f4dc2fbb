package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramHandler pushes alerts through the Telegram Bot API.
type TelegramHandler struct {
	enabled  bool
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

func NewTelegramHandler(enabled bool, botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramHandler{
		enabled:  enabled,
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

func (h *TelegramHandler) Name() string { return "telegram" }

func (h *TelegramHandler) Enabled() bool { return h.enabled }

func (h *TelegramHandler) SendAlert(ctx context.Context, alert Alert) error {
	text := "[macrowatch alert]\n" + renderAlertText(alert)
	if err := h.sendMessage(ctx, text); err != nil {
		return err
	}
	h.logger.Info().
		Str("rule", alert.RuleName).
		Str("severity", alert.Severity).
		Msg("alert sent")
	return nil
}

func (h *TelegramHandler) SendDigest(ctx context.Context, alerts []Alert, summary Summary) error {
	text := "[macrowatch digest]\n" + renderDigestText(alerts, summary)
	if err := h.sendMessage(ctx, text); err != nil {
		return err
	}
	h.logger.Info().Int("alerts", len(alerts)).Msg("digest sent")
	return nil
}

func (h *TelegramHandler) sendMessage(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id": h.chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", h.baseURL, h.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}
	return nil
}

var _ Handler = (*TelegramHandler)(nil)
