package engine

import (
	"context"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

// Submit strategy names, usable in a profile's submit_strategies list.
const (
	StrategyMetaEnter       = "shortcut:Meta+Enter"
	StrategyControlEnter    = "shortcut:Control+Enter"
	StrategyClick           = "click"
	StrategyScriptClick     = "script-click"
	StrategyPointerSequence = "pointer-sequence"
)

var defaultSubmitOrder = []string{
	StrategyMetaEnter,
	StrategyControlEnter,
	StrategyClick,
	StrategyScriptClick,
	StrategyPointerSequence,
}

var pointerSequence = []string{"pointerdown", "mousedown", "pointerup", "mouseup", "click"}

// SubmitStrategies builds the submit chain, cheapest first: keyboard
// shortcuts on the entry element, then increasingly forceful clicks on the
// submit control. Unknown names are skipped.
func SubmitStrategies(page Page, entry ports.Element) []Strategy {
	names := page.Profile().SubmitStrategies
	if len(names) == 0 {
		names = defaultSubmitOrder
	}
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		if s, ok := submitStrategy(page, entry, name); ok {
			out = append(out, s)
		}
	}
	return out
}

func submitStrategy(page Page, entry ports.Element, name string) (Strategy, bool) {
	switch name {
	case StrategyMetaEnter:
		return shortcut(name, entry, "Meta+Enter"), true
	case StrategyControlEnter:
		return shortcut(name, entry, "Control+Enter"), true
	case StrategyClick:
		return onSubmit(page, name, func(ctx context.Context, el ports.Element) error {
			return el.Click(ctx)
		}), true
	case StrategyScriptClick:
		return onSubmit(page, name, func(ctx context.Context, el ports.Element) error {
			return el.InvokeClick(ctx)
		}), true
	case StrategyPointerSequence:
		return onSubmit(page, name, func(ctx context.Context, el ports.Element) error {
			return el.Dispatch(ctx, pointerSequence...)
		}), true
	}
	return Strategy{}, false
}

func shortcut(name string, entry ports.Element, chord string) Strategy {
	return Strategy{
		Name: name,
		Execute: func(ctx context.Context, sess ports.Session) error {
			if entry != nil {
				if err := entry.Focus(ctx); err != nil {
					return err
				}
			}
			return sess.PressKeys(ctx, chord)
		},
	}
}

func onSubmit(page Page, name string, act func(context.Context, ports.Element) error) Strategy {
	return Strategy{
		Name: name,
		Execute: func(ctx context.Context, sess ports.Session) error {
			el, err := page.Find(ctx, sess, domain.TargetSubmit)
			if err != nil {
				return err
			}
			return act(ctx, el)
		},
	}
}
