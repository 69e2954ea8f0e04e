package portstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

// Selectors used by Profile and Site.
const (
	PromptCSS = "#prompt"
	SubmitCSS = "#submit"
	ResultCSS = "img.result"
	LoaderCSS = ".spinner"
)

// Profile returns a minimal image profile that matches Site.
func Profile() domain.Profile {
	return domain.Profile{
		Name: "test-site",
		URL:  "https://generate.test/image",
		Kind: domain.JobKindImage,
		Targets: map[string][]domain.Locator{
			domain.TargetPromptInput: {{CSS: PromptCSS}},
			domain.TargetSubmit:      {{CSS: SubmitCSS}},
			domain.TargetResultMedia: {{CSS: ResultCSS}},
			"loader":                 {{CSS: LoaderCSS}},
		},
		Signals: domain.SignalSpec{
			Busy:    []domain.AttributeCheck{{Target: domain.TargetSubmit, Attribute: "aria-busy", Value: "true"}},
			Markers: []string{"loader"},
		},
		Capture: domain.CaptureSpec{
			Modes:         []domain.CaptureMode{domain.CaptureNetwork},
			MimeTypes:     []string{"image/png", "image/jpeg", "image/webp"},
			MinBytes:      1024,
			MaxCandidates: 1,
		},
	}
}

// Site simulates a generation page. Submitting with Meta+Enter marks the
// submit control busy and, unless told to drop it, emits a result transfer.
type Site struct {
	*Session
	Input  *Element
	Submit *Element

	mu          sync.Mutex
	submissions int
	drop        int
	onSubmit    func(n int)
}

func NewSite() *Site {
	s := &Site{Session: NewSession()}
	s.Input = s.Add(PromptCSS, NewElement(""))
	s.Submit = s.Add(SubmitCSS, NewElement("Generate"))
	s.OnKeys(func(_ context.Context, chord string) error {
		if chord == "Meta+Enter" {
			s.submit()
		}
		return nil
	})
	return s
}

// DropResults makes the next n submissions produce no artifact.
func (s *Site) DropResults(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = n
}

// OnSubmit runs fn after every submission with its 1-based number.
func (s *Site) OnSubmit(fn func(n int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSubmit = fn
}

func (s *Site) Submissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions
}

func (s *Site) submit() {
	s.mu.Lock()
	s.submissions++
	n := s.submissions
	dropped := s.drop > 0
	if dropped {
		s.drop--
	}
	hook := s.onSubmit
	s.mu.Unlock()

	s.Submit.SetAttr("aria-busy", "true")
	if !dropped {
		s.EmitTransfer(BytesTransfer(fmt.Sprintf("https://cdn.generate.test/result/%d.png", n), "image/png", ResultBytes(n, 4096)))
	}
	if hook != nil {
		hook(n)
	}
}

// ResultBytes returns size bytes that are unique per n.
func ResultBytes(n, size int) []byte {
	data := make([]byte, size)
	copy(data, fmt.Sprintf("result-%d;", n))
	for i := 16; i < size; i++ {
		data[i] = byte(n + i)
	}
	return data
}
