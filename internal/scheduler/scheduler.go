// Package scheduler runs the recurring ingestion and digest jobs on cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"macrowatch/internal/ingest"
)

// DigestSender flushes the buffered alert digest.
type DigestSender interface {
	SendDigest(ctx context.Context)
}

// Runner starts an ingestion run. An empty run id with a nil error means
// the runner skipped the run.
type Runner interface {
	Run(ctx context.Context, mode ingest.Mode) (string, error)
}

// Scheduler registers the ingest and digest cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	digest DigestSender
	logger zerolog.Logger
	ctx    context.Context
}

// New builds a scheduler in the given timezone. An empty timezone means UTC.
func New(ctx context.Context, runner Runner, digest DigestSender, timezone string, logger zerolog.Logger) (*Scheduler, error) {
	location := time.UTC
	if timezone != "" {
		loaded, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		location = loaded
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(location)),
		runner: runner,
		digest: digest,
		logger: logger.With().Str("component", "scheduler").Logger(),
		ctx:    ctx,
	}, nil
}

// Register adds the incremental ingest job and, when a digest sender is
// configured, the daily digest flush.
func (s *Scheduler) Register(ingestSpec, digestSpec string) error {
	if _, err := s.cron.AddFunc(ingestSpec, s.ingestJob); err != nil {
		return fmt.Errorf("register ingest job: %w", err)
	}
	if s.digest != nil {
		if _, err := s.cron.AddFunc(digestSpec, s.digestJob); err != nil {
			return fmt.Errorf("register digest job: %w", err)
		}
	}
	return nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) ingestJob() {
	s.logger.Info().Msg("scheduled incremental ingest starting")
	runID, err := s.runner.Run(s.ctx, ingest.ModeIncremental)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("scheduled ingest failed")
		return
	}
	if runID == "" {
		return
	}
	s.logger.Info().Str("run_id", runID).Msg("scheduled ingest finished")
}

func (s *Scheduler) digestJob() {
	s.logger.Info().Msg("flushing alert digest")
	s.digest.SendDigest(s.ctx)
}
