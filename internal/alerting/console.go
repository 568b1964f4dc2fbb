package alerting

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ConsoleHandler prints alerts to a writer. Intended for development and as
// an always-available fallback channel.
type ConsoleHandler struct {
	enabled bool
	out     io.Writer
}

func NewConsoleHandler(enabled bool) *ConsoleHandler {
	return &ConsoleHandler{enabled: enabled, out: os.Stdout}
}

// NewConsoleHandlerTo directs output to an arbitrary writer.
func NewConsoleHandlerTo(enabled bool, out io.Writer) *ConsoleHandler {
	return &ConsoleHandler{enabled: enabled, out: out}
}

func (h *ConsoleHandler) Name() string { return "console" }

func (h *ConsoleHandler) Enabled() bool { return h.enabled }

func (h *ConsoleHandler) SendAlert(_ context.Context, alert Alert) error {
	_, err := fmt.Fprint(h.out, renderAlertText(alert))
	return err
}

func (h *ConsoleHandler) SendDigest(_ context.Context, alerts []Alert, summary Summary) error {
	_, err := fmt.Fprint(h.out, renderDigestText(alerts, summary))
	return err
}

var _ Handler = (*ConsoleHandler)(nil)
