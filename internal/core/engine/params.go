package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

const optionWait = 3 * time.Second

// ParamEffect applies one parameter value to the page.
type ParamEffect func(ctx context.Context, sess ports.Session, value string) error

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, sess ports.Session, timeout time.Duration) bool

func (f VerifierFunc) AwaitSignal(ctx context.Context, sess ports.Session, timeout time.Duration) bool {
	return f(ctx, sess, timeout)
}

// ParamTable maps the recognized parameter keys to their effect on the page.
type ParamTable struct {
	logger  *slog.Logger
	effects map[domain.ParamKey]ParamEffect
}

// NewParamTable builds picker effects for every parameter the profile
// declares.
func NewParamTable(logger *slog.Logger, page Page, verifyTimeout time.Duration, recorder Recorder) *ParamTable {
	t := &ParamTable{logger: logger, effects: make(map[domain.ParamKey]ParamEffect)}
	for key, spec := range page.Profile().Parameters {
		t.effects[key] = pickerEffect(logger, page, key, spec, verifyTimeout, recorder)
	}
	return t
}

// Set registers or replaces the effect for key.
func (t *ParamTable) Set(key domain.ParamKey, effect ParamEffect) {
	t.effects[key] = effect
}

// Apply sets every recognized parameter in a fixed order. Unknown keys are
// ignored and logged. Failures are logged and never abort the item.
func (t *ParamTable) Apply(ctx context.Context, sess ports.Session, params domain.Parameters) []domain.ParamKey {
	unknown := make([]string, 0)
	for key := range params {
		if !key.Known() {
			unknown = append(unknown, string(key))
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		t.logger.Warn("ignoring unknown parameter", "param", key)
	}

	var applied []domain.ParamKey
	for _, key := range domain.KnownParams {
		value := params.Get(key)
		if value == "" {
			continue
		}
		effect, ok := t.effects[key]
		if !ok {
			t.logger.Debug("parameter not supported by profile", "param", key)
			continue
		}
		if err := effect(ctx, sess, value); err != nil {
			t.logger.Warn("failed to set parameter", "param", key, "value", value, "error", err)
			continue
		}
		applied = append(applied, key)
	}
	return applied
}

func pickerEffect(logger *slog.Logger, page Page, key domain.ParamKey, spec domain.ParamSpec, verifyTimeout time.Duration, recorder Recorder) ParamEffect {
	return func(ctx context.Context, sess ports.Session, value string) error {
		label := spec.Resolve(value)

		var verifier Verifier = VerifierFunc(func(context.Context, ports.Session, time.Duration) bool { return true })
		if spec.Picker != "" {
			shown := TargetTextSignal{Page: page, Target: spec.Picker, Contains: label}
			if ok, _ := shown.Fired(ctx, sess); ok {
				return nil
			}
			picker, err := page.Find(ctx, sess, spec.Picker)
			if err != nil {
				return fmt.Errorf("open %s picker: %w", key, err)
			}
			if err := picker.Click(ctx); err != nil {
				return fmt.Errorf("open %s picker: %w", key, err)
			}
			verifier = NewOracle(page.intervalOrDefault(), shown)
		}

		option := func(ctx context.Context) (ports.Element, error) {
			return findOption(ctx, sess, page, spec.OptionTarget(), label)
		}
		strategies := []Strategy{
			{Name: "option-click", Execute: func(ctx context.Context, _ ports.Session) error {
				el, err := option(ctx)
				if err != nil {
					return err
				}
				return el.Click(ctx)
			}},
			{Name: "option-script-click", Execute: func(ctx context.Context, _ ports.Session) error {
				el, err := option(ctx)
				if err != nil {
					return err
				}
				return el.InvokeClick(ctx)
			}},
		}

		res := NewChain(logger, verifier, verifyTimeout, recorder).Run(ctx, sess, "set:"+string(key), strategies)
		if !res.OK {
			_ = sess.PressKeys(ctx, "Escape")
			return fmt.Errorf("%s=%q not confirmed after %s", key, label, strings.Join(res.Tried, ", "))
		}
		return nil
	}
}

// findOption waits briefly for an option whose text equals label, falling
// back to one that contains it.
func findOption(ctx context.Context, sess ports.Session, page Page, target, label string) (ports.Element, error) {
	want := strings.ToLower(strings.TrimSpace(label))
	var found ports.Element
	ok, err := Poll(ctx, optionWait, page.intervalOrDefault(), func(ctx context.Context) (bool, error) {
		els, err := page.FindAll(ctx, sess, target)
		if err != nil {
			return false, err
		}
		var partial ports.Element
		for _, el := range els {
			text, err := el.Text(ctx)
			if err != nil {
				continue
			}
			text = strings.ToLower(strings.TrimSpace(text))
			if text == want {
				found = el
				return true, nil
			}
			if partial == nil && strings.Contains(text, want) {
				partial = el
			}
		}
		if partial != nil {
			found = partial
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: option %q", domain.ErrTargetNotFound, label)
	}
	return found, nil
}
