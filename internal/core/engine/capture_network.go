package engine

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
	_ "golang.org/x/image/webp"
)

// Window records qualifying network transfers for one attempt. It is opened
// right before the submission and must be closed before the next attempt
// opens its own, so candidates never leak between attempts.
type Window struct {
	mu     sync.Mutex
	cands  []candidate
	seen   map[string]bool
	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	unsub  func()
	once   sync.Once
}

// OpenWindow starts recording the session's transfers.
func (p *Pipeline) OpenWindow(ctx context.Context, sess ports.Session) *Window {
	feed, unsub := sess.Transfers()
	wctx, cancel := context.WithCancel(ctx)
	w := &Window{
		seen:   make(map[string]bool),
		notify: make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
		unsub:  unsub,
	}
	go w.record(wctx, feed, p.accept)
	return w
}

func (w *Window) record(ctx context.Context, feed <-chan ports.Transfer, accept func(context.Context, ports.Transfer) (candidate, bool)) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-feed:
			if !ok {
				return
			}
			if w.claim(t.URL) {
				if c, ok := accept(ctx, t); ok {
					w.add(c)
				}
			}
		}
	}
}

// claim reports whether url is new to this window.
func (w *Window) claim(url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[url] {
		return false
	}
	w.seen[url] = true
	return true
}

func (w *Window) add(c candidate) {
	w.mu.Lock()
	w.cands = append(w.cands, c)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Snapshot returns the candidates recorded so far.
func (w *Window) Snapshot() []candidate {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.cands)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.cands)
}

// Collect waits until limit candidates arrived, wait elapsed, or no new
// candidate showed up for settle after the first one.
func (w *Window) Collect(ctx context.Context, wait time.Duration, limit int, settle time.Duration) []candidate {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		n := w.Len()
		if limit > 0 && n >= limit {
			break
		}
		var quiet <-chan time.Time
		if n > 0 && settle > 0 {
			quiet = time.After(settle)
		}
		select {
		case <-ctx.Done():
			return w.Snapshot()
		case <-deadline.C:
			return w.Snapshot()
		case <-quiet:
			return w.Snapshot()
		case <-w.notify:
		}
	}
	return w.Snapshot()
}

// Close stops recording and waits for the recorder to exit. Safe to call
// more than once.
func (w *Window) Close() {
	w.once.Do(func() {
		w.cancel()
		<-w.done
		w.unsub()
	})
}

// accept applies the type, size and dimension filters and reads the body.
func (p *Pipeline) accept(ctx context.Context, t ports.Transfer) (candidate, bool) {
	if !p.allowed(t.ContentType) || p.dedupe.SeenSource(t.URL) {
		return candidate{}, false
	}
	if t.Size > 0 && t.Size < p.cfg.Spec.MinBytes {
		return candidate{}, false
	}
	if t.Body == nil {
		return candidate{}, false
	}
	body, err := t.Body(ctx)
	if err != nil || int64(len(body)) < p.cfg.Spec.MinBytes {
		return candidate{}, false
	}

	c := candidate{
		CaptureCandidate: domain.CaptureCandidate{
			Source:    t.URL,
			Mode:      domain.CaptureNetwork,
			SizeBytes: int64(len(body)),
			MimeHint:  t.ContentType,
		},
		data: body,
	}
	if strings.HasPrefix(BaseMediaType(t.ContentType), "image/") {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(body)); err == nil {
			c.Width, c.Height = cfg.Width, cfg.Height
			if cfg.Width < p.cfg.Spec.MinWidth || cfg.Height < p.cfg.Spec.MinHeight {
				return candidate{}, false
			}
		}
	}
	return c, true
}
