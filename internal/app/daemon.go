package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"macrowatch/internal/ingest"
	"macrowatch/internal/scheduler"
)

// runLocker serializes ingestion runs across processes.
type runLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error)
}

// lockedRunner makes scheduled runs take the same advisory lock as one-shot
// ingest commands. A held lock skips the tick.
type lockedRunner struct {
	runner  scheduler.Runner
	locker  runLocker
	lockKey int64
	logger  zerolog.Logger
}

func (r *lockedRunner) Run(ctx context.Context, mode ingest.Mode) (string, error) {
	unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, r.lockKey)
	if err != nil {
		return "", err
	}
	if !acquired {
		r.logger.Warn().Msg("another ingestion run is in progress, skipping scheduled run")
		return "", nil
	}
	defer unlock()
	return r.runner.Run(ctx, mode)
}

// RunDaemon starts the cron-scheduled ingestion service and blocks until a
// termination signal arrives.
func (a *App) RunDaemon(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

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

	var digest scheduler.DigestSender
	if engine != nil && a.Config.Alerting.DigestMode {
		digest = engine
	}

	runner := &lockedRunner{
		runner:  orchestrator,
		locker:  store,
		lockKey: a.Config.Database.AdvisoryLockKey,
		logger:  a.Logger,
	}
	sched, err := scheduler.New(ctx, runner, digest, a.Config.Scheduler.Timezone, a.Logger)
	if err != nil {
		return err
	}
	if err := sched.Register(a.Config.Scheduler.IngestCron, a.Config.Scheduler.DigestCron); err != nil {
		return err
	}

	sched.Start()
	a.Logger.Info().
		Str("ingest_cron", a.Config.Scheduler.IngestCron).
		Str("digest_cron", a.Config.Scheduler.DigestCron).
		Msg("ingestion daemon running")

	<-ctx.Done()
	sched.Stop()
	a.Logger.Info().Msg("ingestion daemon stopped")
	return nil
}
