// Package app aggregates configuration and shared dependencies for the CLI
// commands.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"macrowatch/internal/alerting"
	"macrowatch/internal/catalog"
	"macrowatch/internal/config"
	"macrowatch/internal/fetcher"
	"macrowatch/internal/ingest"
	"macrowatch/internal/source"
	"macrowatch/internal/storage"
	"macrowatch/internal/validation"
)

// App holds the application handle shared by all commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) loadCatalog() (*catalog.Catalog, error) {
	cat, err := catalog.Load(a.Config.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load series catalog: %w", err)
	}
	return cat, nil
}

func (a *App) providerOptions(name string) fetcher.Options {
	provider := a.Config.Sources.Provider(name)
	return fetcher.Options{
		BaseURL:     provider.BaseURL,
		APIKey:      provider.APIKey,
		Timeout:     provider.RequestTimeout,
		MinInterval: provider.MinInterval,
		UserAgent:   provider.UserAgent,
	}
}

func (a *App) newRouter() (*source.Router, error) {
	router := source.NewRouter()
	router.Register(source.FRED, fetcher.NewFRED(a.providerOptions("FRED"), a.Logger))
	router.Register(source.BLS, fetcher.NewBLS(a.providerOptions("BLS"), a.Logger))
	router.Register(source.Treasury, fetcher.NewTreasury(a.providerOptions("TREASURY"), a.Logger))
	router.Register(source.Census, fetcher.NewCensus(a.providerOptions("CENSUS"), a.Logger))

	for name, alt := range a.Config.Sources.Fallbacks {
		src, err := source.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("fallback source: %w", err)
		}
		altSrc, err := source.Parse(alt)
		if err != nil {
			return nil, fmt.Errorf("fallback target: %w", err)
		}
		if err := router.SetFallback(src, altSrc); err != nil {
			return nil, err
		}
	}
	return router, nil
}

func (a *App) newHandlers() []alerting.Handler {
	cfg := a.Config.Alerting
	handlers := []alerting.Handler{
		alerting.NewConsoleHandler(cfg.Console.Enabled),
		alerting.NewTelegramHandler(
			cfg.Telegram.Enabled,
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.APIBase,
			10*time.Second,
			a.Logger,
		),
		alerting.NewSlackHandler(cfg.Slack.Enabled, cfg.Slack.WebhookURL, a.Logger),
		alerting.NewEmailHandler(cfg.Email, a.Logger),
	}
	return handlers
}

func (a *App) newEngine(store storage.AlertStore) (*alerting.Engine, error) {
	if !a.Config.Alerting.Enabled {
		return nil, nil
	}

	rules, err := alerting.BuildRules(a.Config.Alerting.Rules)
	if err != nil {
		return nil, err
	}
	return alerting.NewEngine(rules, a.newHandlers(), store, a.Config.Alerting.DigestMode, a.Logger), nil
}

func (a *App) newOrchestrator(cat *catalog.Catalog, store *storage.Store, engine *alerting.Engine) (*ingest.Orchestrator, error) {
	router, err := a.newRouter()
	if err != nil {
		return nil, err
	}

	var alerter ingest.Alerter
	if engine != nil {
		alerter = engine
	}
	return ingest.NewOrchestrator(cat, router, store, validation.New(store), alerter, a.Logger), nil
}
