// Package portstest provides in-memory implementations of the session ports
// for tests.
package portstest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

var ErrClosed = errors.New("session closed")

// Element is a scriptable page element.
type Element struct {
	mu         sync.Mutex
	text       string
	attrs      map[string]string
	hidden     bool
	media      ports.MediaInfo
	shot       []byte
	onClick    func(ctx context.Context) error
	clicks     int
	scripted   int
	dispatched []string
	filled     string
	focused    int
	hovered    int
}

func NewElement(text string) *Element {
	return &Element{text: text, attrs: map[string]string{}}
}

func (e *Element) WithMedia(info ports.MediaInfo) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.media = info
	return e
}

func (e *Element) WithScreenshot(data []byte) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shot = data
	return e
}

// OnClick runs fn for native clicks, script clicks and dispatched "click"
// events.
func (e *Element) OnClick(fn func(ctx context.Context) error) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClick = fn
	return e
}

func (e *Element) SetAttr(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
}

func (e *Element) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

func (e *Element) SetHidden(hidden bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = hidden
}

func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

func (e *Element) ScriptClicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scripted
}

func (e *Element) Dispatched() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.dispatched...)
}

func (e *Element) Filled() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filled
}

func (e *Element) Hovers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hovered
}

func (e *Element) fireClick(ctx context.Context) error {
	e.mu.Lock()
	fn := e.onClick
	e.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	e.clicks++
	e.mu.Unlock()
	return e.fireClick(ctx)
}

func (e *Element) InvokeClick(ctx context.Context) error {
	e.mu.Lock()
	e.scripted++
	e.mu.Unlock()
	return e.fireClick(ctx)
}

func (e *Element) Dispatch(ctx context.Context, eventTypes ...string) error {
	e.mu.Lock()
	e.dispatched = append(e.dispatched, eventTypes...)
	e.mu.Unlock()
	for _, t := range eventTypes {
		if t == "click" {
			return e.fireClick(ctx)
		}
	}
	return nil
}

func (e *Element) Fill(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filled = text
	return nil
}

func (e *Element) Focus(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focused++
	return nil
}

func (e *Element) Hover(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hovered++
	return nil
}

func (e *Element) Text(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

func (e *Element) Attribute(_ context.Context, name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *Element) Visible(context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.hidden, nil
}

func (e *Element) Media(context.Context) (ports.MediaInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.media, nil
}

func (e *Element) Screenshot(context.Context) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shot == nil {
		return nil, errors.New("no screenshot")
	}
	return append([]byte(nil), e.shot...), nil
}

// Session is an in-memory ports.Session keyed by CSS selector.
type Session struct {
	mu          sync.Mutex
	elements    map[string][]*Element
	pageText    string
	resources   map[string]ports.Resource
	onKeys      func(ctx context.Context, chord string) error
	keys        []string
	navigations []string
	transfers   []chan ports.Transfer
	downloads   []chan ports.Download
	downloadDir string
	closed      bool
}

func NewSession() *Session {
	return &Session{
		elements:  make(map[string][]*Element),
		resources: make(map[string]ports.Resource),
	}
}

// Add appends el under css and returns it.
func (s *Session) Add(css string, el *Element) *Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements[css] = append(s.elements[css], el)
	return el
}

func (s *Session) Remove(css string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.elements, css)
}

func (s *Session) SetPageText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageText = text
}

func (s *Session) AddResource(url string, res ports.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[url] = res
}

// OnKeys runs fn for every PressKeys call.
func (s *Session) OnKeys(fn func(ctx context.Context, chord string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onKeys = fn
}

func (s *Session) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func (s *Session) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) DownloadDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloadDir
}

// EmitTransfer delivers t to every current subscriber.
func (s *Session) EmitTransfer(t ports.Transfer) {
	s.mu.Lock()
	subs := append([]chan ports.Transfer(nil), s.transfers...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- t:
		default:
		}
	}
}

// EmitDownload delivers d to every current download subscriber.
func (s *Session) EmitDownload(d ports.Download) {
	s.mu.Lock()
	subs := append([]chan ports.Download(nil), s.downloads...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- d:
		default:
		}
	}
}

// BytesTransfer builds a transfer whose body is data.
func BytesTransfer(url, contentType string, data []byte) ports.Transfer {
	return ports.Transfer{
		URL:         url,
		ContentType: contentType,
		Size:        int64(len(data)),
		Body: func(context.Context) ([]byte, error) {
			return data, nil
		},
	}
}

func (s *Session) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.navigations = append(s.navigations, url)
	return nil
}

func (s *Session) Query(_ context.Context, loc domain.Locator) ([]ports.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []ports.Element
	for _, el := range s.elements[loc.CSS] {
		if loc.Text != "" {
			text, _ := el.Text(context.Background())
			if !strings.Contains(strings.ToLower(text), strings.ToLower(loc.Text)) {
				continue
			}
		}
		out = append(out, el)
	}
	return out, nil
}

func (s *Session) PressKeys(ctx context.Context, chord string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.keys = append(s.keys, chord)
	fn := s.onKeys
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, chord)
	}
	return nil
}

func (s *Session) PageText(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageText, nil
}

func (s *Session) Fetch(_ context.Context, url string) (ports.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[url]
	if !ok {
		return ports.Resource{}, errors.New("fetch " + url + ": 404")
	}
	return res, nil
}

func (s *Session) Transfers() (<-chan ports.Transfer, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan ports.Transfer, 64)
	s.transfers = append(s.transfers, ch)
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.transfers {
			if sub == ch {
				s.transfers = append(s.transfers[:i], s.transfers[i+1:]...)
				break
			}
		}
	}
}

func (s *Session) Downloads(_ context.Context, dir string) (<-chan ports.Download, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	s.downloadDir = dir
	ch := make(chan ports.Download, 8)
	s.downloads = append(s.downloads, ch)
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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Provider hands out sessions built by New and remembers them.
type Provider struct {
	New func(jobID domain.JobID) *Session
	Err error

	mu       sync.Mutex
	sessions map[domain.JobID]*Session
}

func (p *Provider) Acquire(_ context.Context, jobID domain.JobID) (ports.Session, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	sess := p.New(jobID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessions == nil {
		p.sessions = make(map[domain.JobID]*Session)
	}
	p.sessions[jobID] = sess
	return sess, nil
}

func (p *Provider) Session(jobID domain.JobID) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[jobID]
}

var (
	_ ports.Session         = (*Session)(nil)
	_ ports.Element         = (*Element)(nil)
	_ ports.SessionProvider = (*Provider)(nil)
)
