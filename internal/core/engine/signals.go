package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/manthysbr/firewerk/internal/core/ports"
)

// AttributeSignal fires when any element of Target carries Attribute (or,
// with Value set, when the attribute equals Value).
type AttributeSignal struct {
	Page      Page
	Target    string
	Attribute string
	Value     string
}

func (s AttributeSignal) Name() string {
	if s.Value == "" {
		return fmt.Sprintf("%s[%s]", s.Target, s.Attribute)
	}
	return fmt.Sprintf("%s[%s=%s]", s.Target, s.Attribute, s.Value)
}

func (s AttributeSignal) Fired(ctx context.Context, sess ports.Session) (bool, error) {
	els, err := s.Page.FindAll(ctx, sess, s.Target)
	if err != nil {
		return false, err
	}
	for _, el := range els {
		v, present, err := el.Attribute(ctx, s.Attribute)
		if err != nil || !present {
			continue
		}
		if s.Value == "" {
			if !strings.EqualFold(v, "false") {
				return true, nil
			}
			continue
		}
		if strings.EqualFold(v, s.Value) {
			return true, nil
		}
	}
	return false, nil
}

// PresenceSignal fires when a visible element of Target exists, such as a
// loader or progress marker.
type PresenceSignal struct {
	Page   Page
	Target string
}

func (s PresenceSignal) Name() string { return s.Target + ":present" }

func (s PresenceSignal) Fired(ctx context.Context, sess ports.Session) (bool, error) {
	els, err := s.Page.FindAll(ctx, sess, s.Target)
	if err != nil {
		return false, err
	}
	for _, el := range els {
		if ok, err := el.Visible(ctx); err == nil && ok {
			return true, nil
		}
	}
	return false, nil
}

// TextSignal fires when the page text matches Pattern.
type TextSignal struct {
	Pattern *regexp.Regexp
}

func (s TextSignal) Name() string { return "text:" + s.Pattern.String() }

func (s TextSignal) Fired(ctx context.Context, sess ports.Session) (bool, error) {
	text, err := sess.PageText(ctx)
	if err != nil {
		return false, err
	}
	return s.Pattern.MatchString(text), nil
}

// TextAbsentSignal fires when the page text no longer contains Text.
type TextAbsentSignal struct {
	Text string
}

func (s TextAbsentSignal) Name() string { return "text-absent:" + s.Text }

func (s TextAbsentSignal) Fired(ctx context.Context, sess ports.Session) (bool, error) {
	text, err := sess.PageText(ctx)
	if err != nil {
		return false, err
	}
	return !strings.Contains(strings.ToLower(text), strings.ToLower(s.Text)), nil
}

// TargetTextSignal fires when an element of Target shows text containing
// Contains. Used to confirm a picker now displays the chosen option.
type TargetTextSignal struct {
	Page     Page
	Target   string
	Contains string
}

func (s TargetTextSignal) Name() string { return fmt.Sprintf("%s:text(%s)", s.Target, s.Contains) }

func (s TargetTextSignal) Fired(ctx context.Context, sess ports.Session) (bool, error) {
	els, err := s.Page.FindAll(ctx, sess, s.Target)
	if err != nil {
		return false, err
	}
	want := strings.ToLower(s.Contains)
	for _, el := range els {
		text, err := el.Text(ctx)
		if err == nil && strings.Contains(strings.ToLower(text), want) {
			return true, nil
		}
	}
	return false, nil
}

// SubmitSignals builds the submission confirmation signals described by the
// profile.
func SubmitSignals(page Page) ([]Signal, error) {
	spec := page.Profile().Signals
	var out []Signal
	for _, check := range spec.Busy {
		out = append(out, AttributeSignal{Page: page, Target: check.Target, Attribute: check.Attribute, Value: check.Value})
	}
	for _, marker := range spec.Markers {
		out = append(out, PresenceSignal{Page: page, Target: marker})
	}
	if spec.TextPattern != "" {
		re, err := regexp.Compile(spec.TextPattern)
		if err != nil {
			return nil, fmt.Errorf("profile %s: text_pattern: %w", page.Profile().Name, err)
		}
		out = append(out, TextSignal{Pattern: re})
	}
	if spec.PlaceholderText != "" {
		out = append(out, TextAbsentSignal{Text: spec.PlaceholderText})
	}
	return out, nil
}

var (
	_ Signal = AttributeSignal{}
	_ Signal = PresenceSignal{}
	_ Signal = TextSignal{}
	_ Signal = TextAbsentSignal{}
	_ Signal = TargetTextSignal{}
)
