package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

// Hooks connects a run to the job that owns it.
type Hooks interface {
	// Stopped reports whether a stop was requested. Checked at every item and
	// variant boundary.
	Stopped() bool
	// StopSignal is closed when a stop is requested. Pacing sleeps wake on it.
	StopSignal() <-chan struct{}
	ArtifactSaved(artifact domain.Artifact)
	VariantFailed(item domain.PromptItem, variant int, err error)
	ItemDone(index int, item domain.PromptItem)
}

// RunSpec is one job's worth of work for a Runner.
type RunSpec struct {
	JobID     domain.JobID
	Items     []domain.PromptItem
	OutputDir string
	Preferred domain.CaptureMode
}

// Runner drives prompt items through the page of one profile: set
// parameters, then for every variant submit and capture under the retry
// policy.
type Runner struct {
	logger   *slog.Logger
	kind     domain.JobKind
	page     Page
	chain    *Chain
	params   *ParamTable
	pipeline *Pipeline
	retry    RetryPolicy
	pacing   Pacing
	cfg      domain.EngineConfig
	recorder Recorder
}

// NewRunner wires the chain, oracle, parameter table and capture pipeline
// for profile. A Runner holds per-job dedupe state and must not be shared
// between jobs.
func NewRunner(logger *slog.Logger, profile domain.Profile, cfg domain.EngineConfig, recorder Recorder) (*Runner, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	recorder = recorderOrNop(recorder)
	page := NewPage(profile, cfg.PollInterval)

	signals, err := SubmitSignals(page)
	if err != nil {
		return nil, err
	}
	oracle := NewOracle(cfg.PollInterval, signals...)

	pipeline := NewPipeline(logger, page, CaptureConfig{
		Kind:          profile.Kind,
		Spec:          profile.Capture,
		Timeout:       cfg.Timeout,
		ListenTimeout: cfg.ListenTimeout(),
		Settle:        cfg.Settle,
		PollInterval:  cfg.PollInterval,
	}, NewDeduper(cfg.DedupeSize), recorder)

	return &Runner{
		logger:   logger,
		kind:     profile.Kind,
		page:     page,
		chain:    NewChain(logger, oracle, cfg.VerifyTimeout, recorder),
		params:   NewParamTable(logger, page, cfg.VerifyTimeout, recorder),
		pipeline: pipeline,
		retry: RetryPolicy{
			BaseDelay:  cfg.BaseDelay,
			Jitter:     cfg.Jitter,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		},
		pacing:   Pacing{Base: cfg.PaceDelay, Jitter: cfg.PaceJitter},
		cfg:      cfg,
		recorder: recorder,
	}, nil
}

// Params exposes the parameter table so callers can register extra effects.
func (r *Runner) Params() *ParamTable { return r.params }

// Run processes items in order. It returns nil when every item was handled
// or a stop was observed, and an error wrapping domain.ErrStructural when the
// page's entry surface could not be found.
func (r *Runner) Run(ctx context.Context, sess ports.Session, spec RunSpec, hooks Hooks) error {
	logger := r.logger.With("job_id", spec.JobID)

	if err := r.page.Prepare(ctx, sess, logger); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStructural, err)
	}

	for i, item := range spec.Items {
		if hooks.Stopped() {
			logger.Info("stop observed", "item_index", i)
			return nil
		}
		logger.Info("processing item", "item_id", item.ID, "index", i+1, "of", len(spec.Items), "variants", item.VariantCount)

		if err := r.runItem(ctx, sess, spec, item, hooks); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}
		hooks.ItemDone(i, item)

		if i < len(spec.Items)-1 {
			Sleep(ctx, r.pacing.Item(), hooks.StopSignal())
		}
	}
	return nil
}

func (r *Runner) runItem(ctx context.Context, sess ports.Session, spec RunSpec, item domain.PromptItem, hooks Hooks) error {
	logger := r.logger.With("job_id", spec.JobID, "item_id", item.ID)

	if _, err := r.page.WaitFor(ctx, sess, domain.TargetPromptInput, r.cfg.EntryTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", domain.ErrStructural, err)
	}
	r.params.Apply(ctx, sess, item.Parameters)

	for v := 0; v < item.VariantCount; v++ {
		if hooks.Stopped() {
			return ErrStopped
		}

		art, attempts, err := r.runVariant(ctx, sess, spec, item, v, hooks)
		switch {
		case err == nil:
			hooks.ArtifactSaved(art)
		case errors.Is(err, domain.ErrStructural), errors.Is(err, ErrStopped):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logger.Warn("variant failed", "variant", v+1, "attempts", attempts, "error", err)
			hooks.VariantFailed(item, v+1, err)
			continue
		}

		if v < item.VariantCount-1 {
			Sleep(ctx, r.pacing.Variant(), hooks.StopSignal())
		}
	}
	return nil
}

func (r *Runner) runVariant(ctx context.Context, sess ports.Session, spec RunSpec, item domain.PromptItem, v int, hooks Hooks) (domain.Artifact, int, error) {
	var art domain.Artifact
	attempts, err := r.retry.Run(ctx, func(ctx context.Context, n int) error {
		if hooks.Stopped() {
			return ErrStopped
		}
		if n > 0 {
			r.params.Apply(ctx, sess, item.Parameters)
		}
		a, err := r.attempt(ctx, sess, spec, item, v, n)
		r.recorder.Attempt(r.kind, attemptOutcome(err))
		if err != nil {
			return err
		}
		art = a
		return nil
	})
	return art, attempts, err
}

// attempt is one full submit-and-capture pass with its own capture window.
func (r *Runner) attempt(ctx context.Context, sess ports.Session, spec RunSpec, item domain.PromptItem, v, n int) (domain.Artifact, error) {
	logger := r.logger.With("job_id", spec.JobID, "item_id", item.ID, "variant", v+1, "attempt", n+1)

	entry, err := r.page.WaitFor(ctx, sess, domain.TargetPromptInput, r.cfg.EntryTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Artifact{}, ctx.Err()
		}
		return domain.Artifact{}, fmt.Errorf("%w: %w", domain.ErrStructural, err)
	}
	if err := entry.Fill(ctx, item.Payload); err != nil {
		return domain.Artifact{}, fmt.Errorf("fill prompt: %w", err)
	}

	win := r.pipeline.OpenWindow(ctx, sess)
	defer win.Close()

	res := r.chain.Run(ctx, sess, "submit", SubmitStrategies(r.page, entry))
	if !res.OK {
		logger.Warn("submission not confirmed, capturing anyway", "tried", res.Tried)
	}

	return r.pipeline.Capture(ctx, sess, win, CaptureRequest{
		JobID:     spec.JobID,
		ItemID:    item.ID,
		Variant:   v + 1,
		OutputDir: spec.OutputDir,
		Preferred: spec.Preferred,
	})
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrStructural):
		return "structural"
	case errors.Is(err, ErrStopped):
		return "stopped"
	default:
		return "error"
	}
}
