package app

import (
	"context"
	"fmt"
	"time"

	"macrowatch/internal/alerting"
)

// SendDigest flushes the buffered alert digest manually. With nothing
// buffered in this process it simply reports an empty digest.
func (a *App) SendDigest(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := a.newEngine(store)
	if err != nil {
		return err
	}
	if engine == nil {
		return fmt.Errorf("alerting is disabled")
	}

	engine.SendDigest(ctx)
	fmt.Println("Digest sent")
	return nil
}

// TestAlert pushes a synthetic alert through the configured handlers to
// verify delivery end to end.
func (a *App) TestAlert(ctx context.Context, ruleName string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := a.newEngine(store)
	if err != nil {
		return err
	}
	if engine == nil {
		return fmt.Errorf("alerting is disabled")
	}

	engine.Dispatch(ctx, alerting.Alert{
		RuleName:    ruleName,
		Severity:    "warning",
		Description: fmt.Sprintf("Test alert for rule: %s", ruleName),
		Timestamp:   time.Now(),
		Details:     "This is a test alert to verify the alerting system is working",
		Metadata:    map[string]any{"test": true},
	})

	if a.Config.Alerting.DigestMode {
		engine.SendDigest(ctx)
	}
	fmt.Printf("Test alert sent for rule: %s\n", ruleName)
	return nil
}
