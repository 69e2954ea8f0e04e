package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

// ErrStopped ends a retry loop early because the job was asked to stop.
var ErrStopped = errors.New("stop requested")

// RetryPolicy reruns a whole attempt after a jittered delay.
type RetryPolicy struct {
	BaseDelay  time.Duration
	Jitter     time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

// jitterBackOff waits BaseDelay plus a uniform draw from [0, Jitter), in
// whole milliseconds.
type jitterBackOff struct {
	base   time.Duration
	jitter time.Duration
}

func (b *jitterBackOff) NextBackOff() time.Duration {
	return JitteredDelay(b.base, b.jitter)
}

func (b *jitterBackOff) Reset() {}

// JitteredDelay returns base + U[0, jitter) truncated to milliseconds.
func JitteredDelay(base, jitter time.Duration) time.Duration {
	d := base.Truncate(time.Millisecond)
	if ms := jitter.Milliseconds(); ms > 0 {
		d += time.Duration(rand.Int64N(ms)) * time.Millisecond
	}
	return d
}

// Run calls attempt until it succeeds, returns a structural or stop error, or
// MaxRetries additional attempts were spent. attempt receives the 0-based
// attempt index. The number of attempts made is returned.
func (p RetryPolicy) Run(ctx context.Context, attempt func(ctx context.Context, n int) error) (int, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := max(p.MaxRetries, 0)

	n := 0
	op := func() (struct{}, error) {
		i := n
		n++
		err := attempt(ctx, i)
		if err != nil && (errors.Is(err, domain.ErrStructural) || errors.Is(err, ErrStopped)) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&jitterBackOff{base: p.BaseDelay, jitter: p.Jitter}),
		backoff.WithMaxTries(uint(retries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("attempt failed, retrying", "attempt", n, "of", retries+1, "delay", next, "error", err)
		}),
	)
	return n, err
}

// Pacing spaces out successful variants and items as a courtesy to the
// remote system. It is independent of retries.
type Pacing struct {
	Base   time.Duration
	Jitter time.Duration
}

// Variant is the pause between variants of one item.
func (p Pacing) Variant() time.Duration {
	return JitteredDelay(p.Base, p.Jitter)
}

// Item is the longer pause between prompt items.
func (p Pacing) Item() time.Duration {
	return JitteredDelay(2*p.Base, 2*p.Jitter)
}
