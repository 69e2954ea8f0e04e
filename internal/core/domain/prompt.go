package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// ParamKey names a UI setting that can be applied before submission.
type ParamKey string

const (
	ParamModel       ParamKey = "model"
	ParamAspectRatio ParamKey = "aspect_ratio"
	ParamStyle       ParamKey = "style"
	ParamVoice       ParamKey = "voice"
	ParamLanguage    ParamKey = "language"
)

// KnownParams lists the recognized keys in the order they are applied.
var KnownParams = []ParamKey{ParamModel, ParamAspectRatio, ParamStyle, ParamVoice, ParamLanguage}

func (k ParamKey) Known() bool {
	for _, known := range KnownParams {
		if k == known {
			return true
		}
	}
	return false
}

// ParseParamKey normalizes column and field spellings ("aspectRatio",
// "Aspect Ratio") to a ParamKey.
func ParseParamKey(raw string) ParamKey {
	s := strings.TrimSpace(raw)
	var b strings.Builder
	var prev rune
	for _, r := range s {
		switch {
		case r == ' ' || r == '-':
			r = '_'
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			if prev >= 'a' && prev <= 'z' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return ParamKey(b.String())
}

// Parameters is the open per-item settings map. Unknown keys are carried but
// never applied.
type Parameters map[ParamKey]string

// Get returns the trimmed value for key, or "".
func (p Parameters) Get(key ParamKey) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p[key])
}

// PromptItem is one row of requested output.
type PromptItem struct {
	ID           string     `json:"id"`
	Payload      string     `json:"payload"`
	Parameters   Parameters `json:"parameters,omitempty"`
	VariantCount int        `json:"variant_count"`
}

// Normalized fills the generated id and the default variant count.
func (p PromptItem) Normalized() PromptItem {
	if strings.TrimSpace(p.ID) == "" {
		p.ID = "item_" + randomHex(4)
	}
	if p.VariantCount < 1 {
		p.VariantCount = 1
	}
	return p
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// JobOptions are job-wide settings that apply to every item.
type JobOptions struct {
	OutputDir         string      `json:"output_dir,omitempty"`
	VariantsPerPrompt int         `json:"variants_per_prompt,omitempty"`
	GlobalStyle       string      `json:"global_style,omitempty"`
	CaptureMode       CaptureMode `json:"capture_mode,omitempty"`
	Profile           string      `json:"profile,omitempty"`
	Parameters        Parameters  `json:"parameters,omitempty"`
}

// Apply folds job-wide options into an item: the variant override, missing
// parameters and the global style suffix.
func (o JobOptions) Apply(item PromptItem) PromptItem {
	if o.VariantsPerPrompt > 0 {
		item.VariantCount = o.VariantsPerPrompt
	}
	if len(o.Parameters) > 0 {
		merged := make(Parameters, len(item.Parameters)+len(o.Parameters))
		for k, v := range o.Parameters {
			merged[k] = v
		}
		for k, v := range item.Parameters {
			if strings.TrimSpace(v) != "" {
				merged[k] = v
			}
		}
		item.Parameters = merged
	}
	if style := strings.TrimSpace(o.GlobalStyle); style != "" {
		item.Payload = item.Payload + ", " + style
	}
	return item.Normalized()
}

// StartRequest is what a caller submits to start a job.
type StartRequest struct {
	Kind    JobKind
	Items   []PromptItem
	Options JobOptions
}
