// Package browser implements the session ports on top of the Chrome
// DevTools protocol.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

const (
	ModeLocal  = "local"
	ModeRemote = "remote"
	ModeDocker = "docker"
)

// Provider hands every job its own browser: a local Chrome process, a new
// target on a remote DevTools endpoint, or a dedicated container.
type Provider struct {
	logger      *slog.Logger
	cfg         domain.BrowserConfig
	provisioner ports.BrowserProvisioner
}

// NewProvider validates cfg. provisioner is required for docker mode only.
func NewProvider(logger *slog.Logger, cfg domain.BrowserConfig, provisioner ports.BrowserProvisioner) (*Provider, error) {
	switch cfg.Mode {
	case "", ModeLocal:
		cfg.Mode = ModeLocal
	case ModeRemote:
		if strings.TrimSpace(cfg.CDPURL) == "" {
			return nil, fmt.Errorf("browser mode %q requires cdp_url", cfg.Mode)
		}
	case ModeDocker:
		if provisioner == nil {
			return nil, fmt.Errorf("browser mode %q requires a container runtime", cfg.Mode)
		}
	default:
		return nil, fmt.Errorf("unknown browser mode %q", cfg.Mode)
	}
	return &Provider{logger: logger, cfg: cfg, provisioner: provisioner}, nil
}

var _ ports.SessionProvider = (*Provider)(nil)

func (p *Provider) Acquire(ctx context.Context, jobID domain.JobID) (ports.Session, error) {
	logger := p.logger.With("job_id", jobID, "browser_mode", p.cfg.Mode)

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
		release     func()
	)
	switch p.cfg.Mode {
	case ModeRemote:
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), p.cfg.CDPURL)
	case ModeDocker:
		ep, err := p.provisioner.Provision(ctx, jobID)
		if err != nil {
			return nil, err
		}
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), ep.CDPURL)
		release = func() {
			if err := p.provisioner.Release(context.Background(), ep.ID); err != nil {
				logger.Warn("failed to release browser container", "container_id", ep.ID, "error", err)
			}
		}
	default:
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), p.execOptions()...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx, p.contextOptions()...)
	sess := newSession(tabCtx, func() {
		tabCancel()
		allocCancel()
		if release != nil {
			release()
		}
	}, logger)
	chromedp.ListenTarget(tabCtx, sess.onEvent)

	// The first Run starts the browser and must use the tab context itself,
	// or the browser would die with a caller's shorter deadline.
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx, network.Enable())
	stop()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	if c := chromedp.FromContext(tabCtx); c != nil {
		sess.browserContextID = c.BrowserContextID
	}
	logger.Info("browser session ready", "browser_context", sess.browserContextID)
	return sess, nil
}

// contextOptions isolates remote sessions in their own browser context, so
// jobs sharing one endpoint never see each other's cookies, storage or
// downloads. Local and docker sessions already own the whole browser.
func (p *Provider) contextOptions() []chromedp.ContextOption {
	if p.cfg.Mode == ModeRemote {
		return []chromedp.ContextOption{chromedp.WithNewBrowserContext()}
	}
	return nil
}

func (p *Provider) execOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", p.cfg.Headless),
		chromedp.WindowSize(1440, 960),
	)
	if path := strings.TrimSpace(p.cfg.ExecPath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	if dir := strings.TrimSpace(p.cfg.UserDataDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			opts = append(opts, chromedp.UserDataDir(dir))
		}
	}
	return opts
}
