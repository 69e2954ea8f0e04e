package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/manthysbr/firewerk/internal/core/ports"
)

// Strategy is one way of performing a logical action. Earlier strategies are
// preferred.
type Strategy struct {
	Name    string
	Execute func(ctx context.Context, sess ports.Session) error
}

// ChainResult reports how an action chain ended. OK is false when every
// strategy was exhausted without confirmation.
type ChainResult struct {
	OK       bool
	Strategy string
	Tried    []string
}

// Chain runs strategies in order and stops at the first one the verifier
// confirms.
type Chain struct {
	logger        *slog.Logger
	verifier      Verifier
	verifyTimeout time.Duration
	recorder      Recorder
}

func NewChain(logger *slog.Logger, verifier Verifier, verifyTimeout time.Duration, recorder Recorder) *Chain {
	return &Chain{
		logger:        logger,
		verifier:      verifier,
		verifyTimeout: verifyTimeout,
		recorder:      recorderOrNop(recorder),
	}
}

// Run executes action through strategies. A strategy that errors is logged
// and skipped; once a strategy is verified no later strategy runs.
func (c *Chain) Run(ctx context.Context, sess ports.Session, action string, strategies []Strategy) ChainResult {
	res := ChainResult{Tried: make([]string, 0, len(strategies))}
	for _, s := range strategies {
		if ctx.Err() != nil {
			return res
		}
		res.Tried = append(res.Tried, s.Name)

		if err := s.Execute(ctx, sess); err != nil {
			c.logger.Warn("strategy failed", "action", action, "strategy", s.Name, "error", err)
			c.recorder.StrategyResult(action, s.Name, false)
			continue
		}

		if c.verifier.AwaitSignal(ctx, sess, c.verifyTimeout) {
			c.logger.Info("action confirmed", "action", action, "strategy", s.Name)
			c.recorder.StrategyResult(action, s.Name, true)
			res.OK = true
			res.Strategy = s.Name
			return res
		}
		c.logger.Warn("strategy not confirmed", "action", action, "strategy", s.Name, "timeout", c.verifyTimeout)
		c.recorder.StrategyResult(action, s.Name, false)
	}
	return res
}
