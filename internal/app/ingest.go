package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"macrowatch/internal/ingest"
)

// Ingest executes one orchestrated ingestion run and prints its health
// summary. Concurrent runs are excluded with a postgres advisory lock.
func (a *App) Ingest(ctx context.Context, rawMode string) error {
	mode, err := ingest.ParseMode(rawMode)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Database.AdvisoryLockKey)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("another ingestion run is already in progress")
	}
	defer unlock()

	cat, err := a.loadCatalog()
	if err != nil {
		return err
	}
	engine, err := a.newEngine(store)
	if err != nil {
		return err
	}
	orchestrator, err := a.newOrchestrator(cat, store, engine)
	if err != nil {
		return err
	}

	runID, err := orchestrator.Run(ctx, mode)
	if err != nil {
		return err
	}

	health, err := orchestrator.HealthSummary(ctx, runID)
	if err != nil {
		return err
	}
	return printHealth(health)
}

func printHealth(health *ingest.Health) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(health)
}
