package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/config"
	"github.com/deidaraiorek/snippethunt/internal/logger"
	"github.com/deidaraiorek/snippethunt/internal/mwapi"
	"github.com/deidaraiorek/snippethunt/internal/replica"
	"github.com/deidaraiorek/snippethunt/internal/snippet"
	"github.com/deidaraiorek/snippethunt/internal/storage"
)

// app is what every command starts from: process settings, the language
// configuration and a logger.
type app struct {
	settings config.Settings
	cfg      *config.Config
	logger   *zap.Logger
}

func newApp() (*app, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	if langFlag != "" {
		settings.Lang = langFlag
	}
	log, err := logger.NewLogger(settings.Env, settings.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg, err := config.ForLanguage(settings.Lang)
	if err != nil {
		return nil, err
	}
	return &app{settings: settings, cfg: cfg, logger: log.With(zap.String("lang", cfg.LangCode))}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) newAPI() *mwapi.Client {
	return mwapi.New(a.cfg.APIURL(), a.cfg.UserAgent, a.logger)
}

func (a *app) openReplica() (*replica.Replica, error) {
	if a.settings.ReplicaDSN == "" {
		return nil, errors.New("SH_REPLICA_DSN is required")
	}
	return replica.Open(a.settings.ReplicaDSN, a.logger)
}

func (a *app) openStore(path string) (*storage.Store, error) {
	return storage.Open(path, a.logger, storage.WithMaxSnippetLength(a.cfg.SnippetMaxSize*2))
}

// templates returns the configured citation needed templates plus every
// template redirecting to one of them.
func (a *app) templates(ctx context.Context, api *mwapi.Client) ([]string, error) {
	names, err := snippet.ResolveRedirects(ctx, api, a.cfg.CitationNeededTemplates)
	if err != nil {
		return nil, err
	}
	a.logger.Info("resolved citation needed templates",
		zap.Int("configured", len(a.cfg.CitationNeededTemplates)),
		zap.Int("total", len(names)))
	return names, nil
}

// newExtractor builds an extractor with its own API client.
func (a *app) newExtractor(templates []string) (*snippet.Extractor, *mwapi.Client, error) {
	api := a.newAPI()
	ex, err := snippet.New(a.cfg, api, a.logger, snippet.WithTemplates(templates))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create extractor: %w", err)
	}
	return ex, api, nil
}
