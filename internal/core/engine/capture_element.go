package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

// elementCandidates polls the result media targets until at least one
// element large enough to be a real result shows up.
func (p *Pipeline) elementCandidates(ctx context.Context, sess ports.Session, wait time.Duration) ([]candidate, error) {
	var out []candidate
	ok, err := Poll(ctx, wait, p.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		els, err := p.page.FindAll(ctx, sess, domain.TargetResultMedia)
		if err != nil {
			return false, err
		}
		out = out[:0]
		for _, el := range els {
			info, err := el.Media(ctx)
			if err != nil || info.Src == "" || p.dedupe.SeenSource(info.Src) {
				continue
			}
			if !p.bigEnough(info) {
				continue
			}
			out = append(out, p.elementCandidate(sess, el, info))
			if limit := p.cfg.Spec.MaxCandidates; limit > 0 && len(out) >= limit {
				break
			}
		}
		return len(out) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

func (p *Pipeline) bigEnough(info ports.MediaInfo) bool {
	if p.cfg.Kind == domain.JobKindSpeech || strings.EqualFold(info.Tag, "audio") {
		return true
	}
	return info.Width >= p.cfg.Spec.MinWidth && info.Height >= p.cfg.Spec.MinHeight
}

// elementCandidate rasterizes in-memory image sources and fetches everything
// else through the page.
func (p *Pipeline) elementCandidate(sess ports.Session, el ports.Element, info ports.MediaInfo) candidate {
	c := candidate{
		CaptureCandidate: domain.CaptureCandidate{
			Source: info.Src,
			Mode:   domain.CaptureElement,
			Width:  info.Width,
			Height: info.Height,
		},
	}
	inMemory := strings.HasPrefix(info.Src, "blob:") || strings.HasPrefix(info.Src, "data:")
	if inMemory && !strings.EqualFold(info.Tag, "audio") {
		c.MimeHint = "image/png"
		c.read = func(ctx context.Context) ([]byte, string, error) {
			data, err := el.Screenshot(ctx)
			return data, "image/png", err
		}
		return c
	}
	c.read = func(ctx context.Context) ([]byte, string, error) {
		res, err := sess.Fetch(ctx, info.Src)
		if err != nil {
			return nil, "", err
		}
		if !p.allowed(res.ContentType) && res.ContentType != "" {
			return nil, "", fmt.Errorf("%w: %s has type %s", domain.ErrNotFound, info.Src, res.ContentType)
		}
		return res.Body, res.ContentType, nil
	}
	return c
}
