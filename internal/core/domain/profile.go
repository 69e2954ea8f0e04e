package domain

import (
	"fmt"
	"strings"
)

// Logical target names the engine looks up in a profile.
const (
	TargetPromptInput    = "prompt_input"
	TargetSubmit         = "submit"
	TargetResultMedia    = "result_media"
	TargetDownload       = "download"
	TargetDownloadReveal = "download_reveal"
	TargetCookieAccept   = "cookie_accept"
	TargetOverlayClose   = "overlay_close"
	TargetOptionItem     = "option_item"
)

// Locator is one selector-like descriptor. Text, when set, keeps only the
// elements whose text content contains it (case-insensitive).
type Locator struct {
	CSS  string `yaml:"css" json:"css"`
	Text string `yaml:"text,omitempty" json:"text,omitempty"`
}

func (l Locator) String() string {
	if l.Text == "" {
		return l.CSS
	}
	return fmt.Sprintf("%s:has-text(%q)", l.CSS, l.Text)
}

// AttributeCheck fires when Target carries Attribute, or when Value is set,
// when the attribute equals Value.
type AttributeCheck struct {
	Target    string `yaml:"target" json:"target"`
	Attribute string `yaml:"attribute" json:"attribute"`
	Value     string `yaml:"value,omitempty" json:"value,omitempty"`
}

// SignalSpec lists the observable hints that a submission took effect.
type SignalSpec struct {
	Busy            []AttributeCheck `yaml:"busy" json:"busy"`
	Markers         []string         `yaml:"markers" json:"markers"`
	TextPattern     string           `yaml:"text_pattern" json:"text_pattern"`
	PlaceholderText string           `yaml:"placeholder_text" json:"placeholder_text"`
}

// ParamSpec tells the engine how to set one parameter: open Picker, then
// choose the Option element whose text matches the resolved value.
type ParamSpec struct {
	Picker  string            `yaml:"picker" json:"picker"`
	Option  string            `yaml:"option,omitempty" json:"option,omitempty"`
	Aliases map[string]string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Resolve maps a caller-facing value to the label shown in the UI.
func (p ParamSpec) Resolve(value string) string {
	v := strings.TrimSpace(value)
	for alias, label := range p.Aliases {
		if strings.EqualFold(alias, v) {
			return label
		}
	}
	return v
}

func (p ParamSpec) OptionTarget() string {
	if p.Option == "" {
		return TargetOptionItem
	}
	return p.Option
}

// CaptureSpec holds the candidate filters and the preferred mode order.
type CaptureSpec struct {
	Modes         []CaptureMode `yaml:"modes" json:"modes"`
	MimeTypes     []string      `yaml:"mime_types" json:"mime_types"`
	MinBytes      int64         `yaml:"min_bytes" json:"min_bytes"`
	MinWidth      int           `yaml:"min_width" json:"min_width"`
	MinHeight     int           `yaml:"min_height" json:"min_height"`
	MaxCandidates int           `yaml:"max_candidates" json:"max_candidates"`
	FallbackExt   string        `yaml:"fallback_ext" json:"fallback_ext"`
}

// Profile is the selector configuration for one remote UI.
type Profile struct {
	Name             string                 `yaml:"name" json:"name"`
	URL              string                 `yaml:"url" json:"url"`
	Kind             JobKind                `yaml:"kind" json:"kind"`
	Targets          map[string][]Locator   `yaml:"targets" json:"targets"`
	Signals          SignalSpec             `yaml:"signals" json:"signals"`
	Parameters       map[ParamKey]ParamSpec `yaml:"parameters" json:"parameters"`
	Capture          CaptureSpec            `yaml:"capture" json:"capture"`
	SubmitStrategies []string               `yaml:"submit_strategies,omitempty" json:"submit_strategies,omitempty"`
}

func (p Profile) Locators(target string) []Locator {
	return p.Targets[target]
}

// ModeOrder returns the capture modes to try, preferred first, followed by
// every remaining mode.
func (p Profile) ModeOrder(preferred CaptureMode) []CaptureMode {
	order := make([]CaptureMode, 0, len(AllCaptureModes))
	seen := make(map[CaptureMode]bool, len(AllCaptureModes))
	add := func(m CaptureMode) {
		if m.Valid() && !seen[m] {
			seen[m] = true
			order = append(order, m)
		}
	}
	add(preferred)
	for _, m := range p.Capture.Modes {
		add(m)
	}
	for _, m := range AllCaptureModes {
		add(m)
	}
	return order
}

func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile: name is required")
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("profile %s: %w %q", p.Name, ErrUnknownKind, p.Kind)
	}
	if len(p.Locators(TargetPromptInput)) == 0 {
		return fmt.Errorf("profile %s: target %q has no locators", p.Name, TargetPromptInput)
	}
	for key := range p.Parameters {
		if !key.Known() {
			return fmt.Errorf("profile %s: unknown parameter %q", p.Name, key)
		}
	}
	return nil
}
