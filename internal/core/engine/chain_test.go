package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
	"github.com/manthysbr/firewerk/internal/core/ports/portstest"
)

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) StrategyResult(action, strategy string, verified bool) {
	m.Called(action, strategy, verified)
}

func (m *MockRecorder) Attempt(kind domain.JobKind, outcome string) {
	m.Called(kind, outcome)
}

func (m *MockRecorder) Capture(mode domain.CaptureMode, outcome string) {
	m.Called(mode, outcome)
}

func TestChain_StopsAtFirstVerifiedStrategy(t *testing.T) {
	sess := portstest.NewSession()
	var calls []string
	confirmed := false

	verifier := VerifierFunc(func(context.Context, ports.Session, time.Duration) bool {
		return confirmed
	})
	strategy := func(name string, err error, confirms bool) Strategy {
		return Strategy{Name: name, Execute: func(context.Context, ports.Session) error {
			calls = append(calls, name)
			if err == nil && confirms {
				confirmed = true
			}
			return err
		}}
	}

	rec := new(MockRecorder)
	rec.On("StrategyResult", "submit", "a", false).Once()
	rec.On("StrategyResult", "submit", "b", false).Once()
	rec.On("StrategyResult", "submit", "c", true).Once()

	chain := NewChain(testLogger(), verifier, 10*time.Millisecond, rec)
	res := chain.Run(context.Background(), sess, "submit", []Strategy{
		strategy("a", errors.New("not interactable"), false),
		strategy("b", nil, false),
		strategy("c", nil, true),
		strategy("d", nil, true),
	})

	assert.True(t, res.OK)
	assert.Equal(t, "c", res.Strategy)
	assert.Equal(t, []string{"a", "b", "c"}, res.Tried)
	assert.Equal(t, []string{"a", "b", "c"}, calls, "strategies after the verified one must not run")
	rec.AssertExpectations(t)
}

func TestChain_ExhaustedIsFailureNotError(t *testing.T) {
	sess := portstest.NewSession()
	never := VerifierFunc(func(context.Context, ports.Session, time.Duration) bool { return false })
	chain := NewChain(testLogger(), never, time.Millisecond, nil)

	res := chain.Run(context.Background(), sess, "submit", []Strategy{
		{Name: "x", Execute: func(context.Context, ports.Session) error { return domain.ErrTargetNotFound }},
		{Name: "y", Execute: func(context.Context, ports.Session) error { return nil }},
	})
	assert.False(t, res.OK)
	assert.Empty(t, res.Strategy)
	assert.Equal(t, []string{"x", "y"}, res.Tried)
}

func TestChain_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	chain := NewChain(testLogger(), VerifierFunc(func(context.Context, ports.Session, time.Duration) bool { return true }), time.Millisecond, nil)
	res := chain.Run(ctx, portstest.NewSession(), "submit", []Strategy{
		{Name: "x", Execute: func(context.Context, ports.Session) error { ran = true; return nil }},
	})
	assert.False(t, res.OK)
	assert.False(t, ran)
}

func TestSubmitStrategies_DefaultOrderAndFallback(t *testing.T) {
	site := portstest.NewSite()
	// Keyboard shortcuts do nothing on this page; only the pointer
	// sequence reaches the control.
	site.OnKeys(func(context.Context, string) error { return nil })
	site.Submit.OnClick(func(context.Context) error {
		if len(site.Submit.Dispatched()) > 0 {
			site.Submit.SetAttr("aria-busy", "true")
		}
		return nil
	})

	page := NewPage(portstest.Profile(), 5*time.Millisecond)
	signals, err := SubmitSignals(page)
	assert.NoError(t, err)
	chain := NewChain(testLogger(), NewOracle(5*time.Millisecond, signals...), 20*time.Millisecond, nil)

	strategies := SubmitStrategies(page, site.Input)
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name
	}
	assert.Equal(t, defaultSubmitOrder, names)

	res := chain.Run(context.Background(), site, "submit", strategies)
	assert.True(t, res.OK)
	assert.Equal(t, StrategyPointerSequence, res.Strategy)
	assert.Equal(t, []string{"Meta+Enter", "Control+Enter"}, site.Keys())
	assert.Equal(t, 1, site.Submit.Clicks())
	assert.Equal(t, 1, site.Submit.ScriptClicks())
	assert.Equal(t, pointerSequence, site.Submit.Dispatched())
}

func TestSubmitStrategies_ProfileRestricts(t *testing.T) {
	profile := portstest.Profile()
	profile.SubmitStrategies = []string{StrategyClick, "bogus", StrategyMetaEnter}
	strategies := SubmitStrategies(NewPage(profile, time.Millisecond), nil)
	if assert.Len(t, strategies, 2) {
		assert.Equal(t, StrategyClick, strategies[0].Name)
		assert.Equal(t, StrategyMetaEnter, strategies[1].Name)
	}
}
