package engine

import (
	"context"
	"time"

	"github.com/manthysbr/firewerk/internal/core/ports"
)

// Signal is one observable hint that an action took effect.
type Signal interface {
	Name() string
	Fired(ctx context.Context, sess ports.Session) (bool, error)
}

// Verifier decides whether an action took effect within a bounded time.
type Verifier interface {
	AwaitSignal(ctx context.Context, sess ports.Session, timeout time.Duration) bool
}

// Oracle ORs a set of independent signals. A signal that errors counts as not
// fired; it never blocks the others.
type Oracle struct {
	signals  []Signal
	interval time.Duration
}

func NewOracle(interval time.Duration, signals ...Signal) *Oracle {
	return &Oracle{signals: signals, interval: interval}
}

// AwaitSignal polls until any signal fires or timeout elapses.
func (o *Oracle) AwaitSignal(ctx context.Context, sess ports.Session, timeout time.Duration) bool {
	ok, _ := Poll(ctx, timeout, o.interval, func(ctx context.Context) (bool, error) {
		_, fired := o.Check(ctx, sess)
		return fired, nil
	})
	return ok
}

// Check evaluates every signal once and returns the name of the first one
// that fired.
func (o *Oracle) Check(ctx context.Context, sess ports.Session) (string, bool) {
	for _, s := range o.signals {
		if ok, err := s.Fired(ctx, sess); err == nil && ok {
			return s.Name(), true
		}
	}
	return "", false
}

func (o *Oracle) Signals() []Signal { return o.signals }
