package engine

import (
	"context"
	"time"
)

const defaultPollInterval = 100 * time.Millisecond

// Poll evaluates cond every interval until it reports true or timeout
// elapses. Errors from cond count as "not yet". The returned error is non-nil
// only when ctx itself ended.
func Poll(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) (bool, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if timeout <= 0 {
		ok, _ := cond(ctx)
		return ok, ctx.Err()
	}

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ok, err := cond(pctx); err == nil && ok {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-pctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

// Sleep waits for d unless ctx ends or stop is closed first. It reports
// whether the full delay elapsed.
func Sleep(ctx context.Context, d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}
