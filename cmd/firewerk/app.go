package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manthysbr/firewerk/internal/adapters/browser"
	"github.com/manthysbr/firewerk/internal/adapters/docker"
	"github.com/manthysbr/firewerk/internal/adapters/duckdb"
	"github.com/manthysbr/firewerk/internal/adapters/prompts"
	appconfig "github.com/manthysbr/firewerk/internal/config"
	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
	"github.com/manthysbr/firewerk/internal/core/services"
)

// app is the wired object graph shared by serve and run.
type app struct {
	logger      *slog.Logger
	cfg         *domain.AppConfig
	repo        *duckdb.Repository
	provisioner *docker.ChromeProvisioner
	workspace   *services.WorkspaceManager
	eventBus    *services.EventBus
	prompts     *prompts.Loader
	manager     *services.JobManager
}

func buildApp(ctx context.Context, logger *slog.Logger, cfg *domain.AppConfig, metrics *services.Metrics) (*app, error) {
	profiles, err := appconfig.LoadProfiles(cfg.ProfilesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	repo, err := duckdb.NewRepository(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init repository: %w", err)
	}

	a := &app{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		workspace: services.NewWorkspaceManager(cfg.Storage.OutputDir),
		eventBus:  services.NewEventBus(logger),
		prompts:   prompts.NewLoader(cfg.Storage.PromptsDir),
	}

	var provisioner ports.BrowserProvisioner
	if cfg.Browser.Mode == browser.ModeDocker {
		a.provisioner, err = docker.NewChromeProvisioner(logger, cfg.Browser.DockerImage)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to init docker: %w", err)
		}
		if n, err := a.provisioner.Reap(ctx); err != nil {
			logger.Warn("failed to reap leftover browser containers", "error", err)
		} else if n > 0 {
			logger.Info("reaped leftover browser containers", "count", n)
		}
		provisioner = a.provisioner
	}

	sessions, err := browser.NewProvider(logger, cfg.Browser, provisioner)
	if err != nil {
		repo.Close()
		return nil, err
	}

	scheduler := services.NewJobScheduler(logger, cfg.Scheduler)
	a.manager = services.NewJobManager(logger, scheduler, sessions, repo, a.workspace, a.eventBus, profiles, metrics, cfg.Engine, cfg.Storage.RetainFor)
	logger.Info("firewerk ready",
		"browser_mode", cfg.Browser.Mode,
		"profiles", profiles.Names(),
		"output", a.workspace.Root(),
		"max_concurrent_jobs", cfg.Scheduler.MaxConcurrentJobs,
	)
	return a, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("failed to close repository", "error", err)
	}
}
