package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

// CaptureConfig bounds how long each capture mode waits.
type CaptureConfig struct {
	Kind          domain.JobKind
	Spec          domain.CaptureSpec
	Timeout       time.Duration
	ListenTimeout time.Duration
	Settle        time.Duration
	PollInterval  time.Duration
}

// CaptureRequest names where a captured artifact goes.
type CaptureRequest struct {
	JobID     domain.JobID
	ItemID    string
	Variant   int
	OutputDir string
	Preferred domain.CaptureMode
}

// candidate is a located source plus the means to read its bytes.
type candidate struct {
	domain.CaptureCandidate
	data []byte
	read func(ctx context.Context) ([]byte, string, error)
}

// Pipeline obtains the artifact produced by a submission and writes it to
// the output location.
type Pipeline struct {
	logger   *slog.Logger
	page     Page
	cfg      CaptureConfig
	dedupe   *Deduper
	recorder Recorder
	allow    map[string]bool
}

func NewPipeline(logger *slog.Logger, page Page, cfg CaptureConfig, dedupe *Deduper, recorder Recorder) *Pipeline {
	allow := make(map[string]bool, len(cfg.Spec.MimeTypes))
	for _, mt := range cfg.Spec.MimeTypes {
		allow[strings.ToLower(strings.TrimSpace(mt))] = true
	}
	if dedupe == nil {
		dedupe = NewDeduper(0)
	}
	return &Pipeline{
		logger:   logger,
		page:     page,
		cfg:      cfg,
		dedupe:   dedupe,
		recorder: recorderOrNop(recorder),
		allow:    allow,
	}
}

// Capture tries the preferred mode with the full wait, then the remaining
// modes with a short one. It returns domain.ErrNotFound when nothing usable
// turned up.
func (p *Pipeline) Capture(ctx context.Context, sess ports.Session, win *Window, req CaptureRequest) (domain.Artifact, error) {
	for i, mode := range p.page.Profile().ModeOrder(req.Preferred) {
		if err := ctx.Err(); err != nil {
			return domain.Artifact{}, err
		}
		wait := p.cfg.Settle
		if i == 0 {
			wait = p.cfg.Timeout
			if mode == domain.CaptureNetwork {
				wait = p.cfg.ListenTimeout
			}
		}

		cands, err := p.locate(ctx, sess, win, mode, req, wait)
		if err == nil {
			var art domain.Artifact
			art, err = p.commit(ctx, mode, cands, req)
			if err == nil {
				p.recorder.Capture(mode, "ok")
				return art, nil
			}
		}
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrTargetNotFound) {
			p.recorder.Capture(mode, "not_found")
		} else {
			p.recorder.Capture(mode, "error")
		}
		p.logger.Debug("capture mode yielded nothing", "mode", mode, "item_id", req.ItemID, "variant", req.Variant, "error", err)
	}
	return domain.Artifact{}, domain.ErrNotFound
}

func (p *Pipeline) locate(ctx context.Context, sess ports.Session, win *Window, mode domain.CaptureMode, req CaptureRequest, wait time.Duration) ([]candidate, error) {
	switch mode {
	case domain.CaptureNetwork:
		if win == nil {
			return nil, domain.ErrNotFound
		}
		return win.Collect(ctx, wait, p.cfg.Spec.MaxCandidates, p.cfg.Settle), nil
	case domain.CaptureElement:
		return p.elementCandidates(ctx, sess, wait)
	case domain.CaptureDownload:
		return p.downloadCandidates(ctx, sess, req, wait)
	}
	return nil, fmt.Errorf("unknown capture mode %q", mode)
}

// commit reads the candidates, ranks them largest first and writes the first
// one that is not a duplicate of an earlier artifact.
func (p *Pipeline) commit(ctx context.Context, mode domain.CaptureMode, cands []candidate, req CaptureRequest) (domain.Artifact, error) {
	ready := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if c.data == nil && c.read != nil {
			data, ct, err := c.read(ctx)
			if err != nil {
				p.logger.Debug("candidate unreadable", "source", c.Source, "error", err)
				continue
			}
			c.data = data
			if ct != "" {
				c.MimeHint = ct
			}
		}
		c.SizeBytes = int64(len(c.data))
		ready = append(ready, c)
	}

	for _, c := range rank(ready, p.cfg.Spec.MinBytes) {
		digest := Digest(c.data)
		if prev, dup := p.dedupe.Seen(digest); dup {
			p.logger.Info("skipping duplicate candidate", "source", c.Source, "previous", prev)
			continue
		}

		ext, mediaType := InferExtension(c.MimeHint, c.data, p.fallbackExt())
		path := filepath.Join(req.OutputDir, ArtifactName(req.ItemID, req.Variant, ext))
		if err := writeAtomic(path, c.data); err != nil {
			return domain.Artifact{}, err
		}
		p.dedupe.Remember(digest, path)
		p.dedupe.RememberSource(c.Source, path)

		p.logger.Info("artifact saved", "job_id", req.JobID, "item_id", req.ItemID, "variant", req.Variant,
			"mode", mode, "path", path, "bytes", c.SizeBytes)
		return domain.Artifact{
			JobID:     req.JobID,
			ItemID:    req.ItemID,
			Variant:   req.Variant,
			Path:      path,
			SizeBytes: c.SizeBytes,
			MimeType:  mediaType,
			Mode:      mode,
			Digest:    digest,
			CreatedAt: time.Now().UTC(),
		}, nil
	}
	return domain.Artifact{}, domain.ErrNotFound
}

func (p *Pipeline) fallbackExt() string {
	if p.cfg.Spec.FallbackExt != "" {
		return p.cfg.Spec.FallbackExt
	}
	if p.cfg.Kind == domain.JobKindSpeech {
		return "mp3"
	}
	return "jpg"
}

func (p *Pipeline) allowed(contentType string) bool {
	if len(p.allow) == 0 {
		return true
	}
	return p.allow[BaseMediaType(contentType)]
}

// rank drops candidates under minBytes and orders the rest by size,
// largest first. Ties keep their arrival order.
func rank(cands []candidate, minBytes int64) []candidate {
	out := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if c.SizeBytes >= minBytes {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b candidate) int {
		return cmp.Compare(b.SizeBytes, a.SizeBytes)
	})
	return out
}

// SelectLargest returns the largest candidate of at least minBytes.
func SelectLargest(cands []domain.CaptureCandidate, minBytes int64) (domain.CaptureCandidate, bool) {
	wrapped := make([]candidate, len(cands))
	for i, c := range cands {
		wrapped[i] = candidate{CaptureCandidate: c}
	}
	ranked := rank(wrapped, minBytes)
	if len(ranked) == 0 {
		return domain.CaptureCandidate{}, false
	}
	return ranked[0].CaptureCandidate, true
}
