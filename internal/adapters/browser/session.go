package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

type response struct {
	url      string
	mimeType string
}

// Session is one browser tab owned by a single job.
type Session struct {
	ctx    context.Context
	logger *slog.Logger

	closeOnce sync.Once
	closeFn   func()

	// browserContextID is set when the session runs in its own browser
	// context on a shared browser.
	browserContextID cdp.BrowserContextID

	mu          sync.Mutex
	responses   map[network.RequestID]response
	transfers   []chan ports.Transfer
	downloadDir string
	suggested   map[string]string
	downloads   []chan ports.Download
}

func newSession(ctx context.Context, closeFn func(), logger *slog.Logger) *Session {
	return &Session{
		ctx:       ctx,
		logger:    logger,
		closeFn:   closeFn,
		responses: make(map[network.RequestID]response),
		suggested: make(map[string]string),
	}
}

var _ ports.Session = (*Session)(nil)

// run executes actions on the tab, bounded by the caller's ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(rctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *Session) Query(ctx context.Context, loc domain.Locator) ([]ports.Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(loc.CSS, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	out := make([]ports.Element, 0, len(nodes))
	want := strings.ToLower(loc.Text)
	for _, n := range nodes {
		el := &Element{sess: s, node: n}
		if want != "" {
			text, err := el.Text(ctx)
			if err != nil || !strings.Contains(strings.ToLower(text), want) {
				continue
			}
		}
		out = append(out, el)
	}
	return out, nil
}

func (s *Session) PressKeys(ctx context.Context, chord string) error {
	key, mods, err := parseChord(chord)
	if err != nil {
		return err
	}
	var opts []chromedp.KeyOption
	if len(mods) > 0 {
		opts = append(opts, chromedp.KeyModifiers(mods...))
	}
	return s.run(ctx, chromedp.KeyEvent(key, opts...))
}

var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"return":    kb.Enter,
	"escape":    kb.Escape,
	"esc":       kb.Escape,
	"tab":       kb.Tab,
	"backspace": kb.Backspace,
	"space":     " ",
}

// parseChord splits "Meta+Shift+Enter" into the key and its modifiers.
func parseChord(chord string) (string, []input.Modifier, error) {
	parts := strings.Split(chord, "+")
	var mods []input.Modifier
	for _, part := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "meta", "cmd", "command":
			mods = append(mods, input.ModifierMeta)
		case "control", "ctrl":
			mods = append(mods, input.ModifierCtrl)
		case "shift":
			mods = append(mods, input.ModifierShift)
		case "alt", "option":
			mods = append(mods, input.ModifierAlt)
		default:
			return "", nil, fmt.Errorf("unknown modifier %q in %q", part, chord)
		}
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	if key, ok := namedKeys[strings.ToLower(last)]; ok {
		return key, mods, nil
	}
	if len([]rune(last)) != 1 {
		return "", nil, fmt.Errorf("unknown key %q in %q", last, chord)
	}
	return last, mods, nil
}

func (s *Session) PageText(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

const fetchScript = `(async () => {
	const r = await fetch(%s, {credentials: "include"});
	const b = await r.blob();
	const data = await new Promise((ok, fail) => {
		const fr = new FileReader();
		fr.onload = () => ok(fr.result);
		fr.onerror = () => fail(fr.error);
		fr.readAsDataURL(b);
	});
	return {status: r.status, type: b.type || r.headers.get("content-type") || "", data: String(data).split(",")[1] || ""};
})()`

type fetchResult struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Data   string `json:"data"`
}

// Fetch runs fetch() inside the page so cookies and blob: URLs resolve.
func (s *Session) Fetch(ctx context.Context, url string) (ports.Resource, error) {
	quoted, err := json.Marshal(url)
	if err != nil {
		return ports.Resource{}, err
	}
	var res fetchResult
	err = s.run(ctx, chromedp.Evaluate(fmt.Sprintf(fetchScript, quoted), &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return ports.Resource{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	if res.Status >= 400 {
		return ports.Resource{}, fmt.Errorf("fetch %s: status %d", url, res.Status)
	}
	body, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		return ports.Resource{}, fmt.Errorf("fetch %s: decode: %w", url, err)
	}
	return ports.Resource{Body: body, ContentType: res.Type}, nil
}

func (s *Session) Transfers() (<-chan ports.Transfer, func()) {
	ch := make(chan ports.Transfer, 64)
	s.mu.Lock()
	s.transfers = append(s.transfers, ch)
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.transfers {
			if sub == ch {
				s.transfers = append(s.transfers[:i], s.transfers[i+1:]...)
				break
			}
		}
		if len(s.transfers) == 0 {
			clear(s.responses)
		}
	}
}

func downloadBehavior(dir string, id cdp.BrowserContextID) *browser.SetDownloadBehaviorParams {
	params := browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
		WithDownloadPath(dir).
		WithEventsEnabled(true)
	if id != "" {
		params = params.WithBrowserContextID(id)
	}
	return params
}

func (s *Session) Downloads(ctx context.Context, dir string) (<-chan ports.Download, func(), error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, err
	}
	err = s.run(ctx, downloadBehavior(abs, s.browserContextID))
	if err != nil {
		return nil, nil, fmt.Errorf("set download behavior: %w", err)
	}

	ch := make(chan ports.Download, 8)
	s.mu.Lock()
	s.downloadDir = abs
	s.downloads = append(s.downloads, ch)
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.downloads {
			if sub == ch {
				s.downloads = append(s.downloads[:i], s.downloads[i+1:]...)
				break
			}
		}
	}, nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeFn()
	})
	return nil
}

// onEvent runs on the CDP event loop and must not block.
func (s *Session) onEvent(ev any) {
	switch ev := ev.(type) {
	case *network.EventResponseReceived:
		if ev.Response == nil {
			return
		}
		s.mu.Lock()
		if len(s.transfers) > 0 {
			s.responses[ev.RequestID] = response{url: ev.Response.URL, mimeType: ev.Response.MimeType}
		}
		s.mu.Unlock()

	case *network.EventLoadingFailed:
		s.mu.Lock()
		delete(s.responses, ev.RequestID)
		s.mu.Unlock()

	case *network.EventLoadingFinished:
		s.mu.Lock()
		resp, ok := s.responses[ev.RequestID]
		delete(s.responses, ev.RequestID)
		subs := append([]chan ports.Transfer(nil), s.transfers...)
		s.mu.Unlock()
		if !ok || len(subs) == 0 {
			return
		}
		t := ports.Transfer{
			URL:         resp.url,
			ContentType: resp.mimeType,
			Size:        int64(ev.EncodedDataLength),
			Body:        s.responseBody(ev.RequestID),
		}
		for _, ch := range subs {
			select {
			case ch <- t:
			default:
				s.logger.Debug("transfer subscriber full, dropping", "url", resp.url)
			}
		}

	case *browser.EventDownloadWillBegin:
		s.mu.Lock()
		s.suggested[ev.GUID] = ev.SuggestedFilename
		s.mu.Unlock()

	case *browser.EventDownloadProgress:
		if ev.State != browser.DownloadProgressStateCompleted {
			if ev.State == browser.DownloadProgressStateCanceled {
				s.mu.Lock()
				delete(s.suggested, ev.GUID)
				s.mu.Unlock()
			}
			return
		}
		s.mu.Lock()
		d := ports.Download{
			GUID:              ev.GUID,
			SuggestedFilename: s.suggested[ev.GUID],
			Path:              filepath.Join(s.downloadDir, ev.GUID),
			Size:              int64(ev.ReceivedBytes),
		}
		delete(s.suggested, ev.GUID)
		subs := append([]chan ports.Download(nil), s.downloads...)
		s.mu.Unlock()
		for _, ch := range subs {
			select {
			case ch <- d:
			default:
			}
		}
	}
}

func (s *Session) responseBody(id network.RequestID) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		var body []byte
		err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}))
		return body, err
	}
}
