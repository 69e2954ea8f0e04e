package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

const (
	overlayPasses    = 3
	cookieBannerWait = 3 * time.Second
)

// Page resolves logical targets through a profile's ranked locators.
type Page struct {
	profile  domain.Profile
	interval time.Duration
}

func NewPage(profile domain.Profile, interval time.Duration) Page {
	return Page{profile: profile, interval: interval}
}

func (p Page) Profile() domain.Profile { return p.profile }

// FindAll returns the matches of the first locator of target that matches
// anything.
func (p Page) FindAll(ctx context.Context, sess ports.Session, target string) ([]ports.Element, error) {
	locators := p.profile.Locators(target)
	if len(locators) == 0 {
		return nil, fmt.Errorf("%w: %s has no locators", domain.ErrTargetNotFound, target)
	}
	for _, loc := range locators {
		els, err := sess.Query(ctx, loc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if len(els) > 0 {
			return els, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrTargetNotFound, target)
}

// Find returns the first visible match of target, or the first match when
// none reports visible.
func (p Page) Find(ctx context.Context, sess ports.Session, target string) (ports.Element, error) {
	els, err := p.FindAll(ctx, sess, target)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if ok, err := el.Visible(ctx); err == nil && ok {
			return el, nil
		}
	}
	return els[0], nil
}

// WaitFor polls for target until it appears or timeout elapses.
func (p Page) WaitFor(ctx context.Context, sess ports.Session, target string, timeout time.Duration) (ports.Element, error) {
	var found ports.Element
	ok, err := Poll(ctx, timeout, p.interval, func(ctx context.Context) (bool, error) {
		el, err := p.Find(ctx, sess, target)
		if err != nil {
			return false, err
		}
		found = el
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s after %s", domain.ErrTargetNotFound, target, timeout)
	}
	return found, nil
}

// Prepare opens the profile URL and clears the cookie banner and any
// blocking overlays. Only navigation errors are returned.
func (p Page) Prepare(ctx context.Context, sess ports.Session, logger *slog.Logger) error {
	if p.profile.URL != "" {
		if err := sess.Navigate(ctx, p.profile.URL); err != nil {
			return fmt.Errorf("navigate %s: %w", p.profile.URL, err)
		}
	}
	p.dismissCookieBanner(ctx, sess, logger)
	p.closeOverlays(ctx, sess, logger)
	return nil
}

func (p Page) dismissCookieBanner(ctx context.Context, sess ports.Session, logger *slog.Logger) {
	if len(p.profile.Locators(domain.TargetCookieAccept)) == 0 {
		return
	}
	el, err := p.WaitFor(ctx, sess, domain.TargetCookieAccept, cookieBannerWait)
	if err != nil {
		return
	}
	if err := el.Click(ctx); err != nil {
		logger.Debug("cookie banner click failed", "error", err)
		return
	}
	logger.Info("cookie banner dismissed")
}

func (p Page) closeOverlays(ctx context.Context, sess ports.Session, logger *slog.Logger) {
	if len(p.profile.Locators(domain.TargetOverlayClose)) == 0 {
		return
	}
	for pass := 0; pass < overlayPasses; pass++ {
		els, err := p.FindAll(ctx, sess, domain.TargetOverlayClose)
		if err != nil {
			return
		}
		closed := 0
		for _, el := range els {
			if ok, _ := el.Visible(ctx); !ok {
				continue
			}
			if err := el.Click(ctx); err == nil {
				closed++
			}
		}
		if closed == 0 {
			return
		}
		_ = sess.PressKeys(ctx, "Escape")
		logger.Info("closed blocking overlays", "count", closed, "pass", pass+1)
		Sleep(ctx, p.intervalOrDefault(), nil)
	}
}

func (p Page) intervalOrDefault() time.Duration {
	if p.interval <= 0 {
		return defaultPollInterval
	}
	return p.interval
}
