package engine

import "github.com/manthysbr/firewerk/internal/core/domain"

// Recorder receives engine outcomes for metrics.
type Recorder interface {
	StrategyResult(action, strategy string, verified bool)
	Attempt(kind domain.JobKind, outcome string)
	Capture(mode domain.CaptureMode, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) StrategyResult(string, string, bool) {}
func (nopRecorder) Attempt(domain.JobKind, string) {}
func (nopRecorder) Capture(domain.CaptureMode, string) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
