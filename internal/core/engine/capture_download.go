package engine

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

const downloadDirName = ".downloads"

// downloadCandidates reveals and clicks the export control, then waits for
// the browser to report a finished download.
func (p *Pipeline) downloadCandidates(ctx context.Context, sess ports.Session, req CaptureRequest, wait time.Duration) ([]candidate, error) {
	if len(p.page.Profile().Locators(domain.TargetDownload)) == 0 {
		return nil, fmt.Errorf("%w: no download control configured", domain.ErrNotFound)
	}

	dir := filepath.Join(req.OutputDir, downloadDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	feed, unsub, err := sess.Downloads(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("enable downloads: %w", err)
	}
	defer unsub()

	deadline := time.Now().Add(wait)

	if len(p.page.Profile().Locators(domain.TargetDownloadReveal)) > 0 {
		if el, err := p.page.Find(ctx, sess, domain.TargetDownloadReveal); err == nil {
			if err := el.Hover(ctx); err != nil {
				p.logger.Debug("download reveal hover failed", "error", err)
			}
		}
	}

	btn, err := p.page.WaitFor(ctx, sess, domain.TargetDownload, time.Until(deadline))
	if err != nil {
		return nil, err
	}
	if err := btn.Click(ctx); err != nil {
		if err := btn.InvokeClick(ctx); err != nil {
			return nil, fmt.Errorf("click download: %w", err)
		}
	}

	timer := time.NewTimer(max(time.Until(deadline), 0))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: download did not finish within %s", domain.ErrNotFound, wait)
	case d, ok := <-feed:
		if !ok {
			return nil, fmt.Errorf("%w: download feed closed", domain.ErrNotFound)
		}
		data, err := os.ReadFile(d.Path)
		if err != nil {
			return nil, fmt.Errorf("read download: %w", err)
		}
		_ = os.Remove(d.Path)
		return []candidate{{
			CaptureCandidate: domain.CaptureCandidate{
				Source:    "download:" + d.GUID,
				Mode:      domain.CaptureDownload,
				SizeBytes: int64(len(data)),
				MimeHint:  mime.TypeByExtension(filepath.Ext(d.SuggestedFilename)),
			},
			data: data,
		}}, nil
	}
}
