package engine

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func testConfig() domain.EngineConfig {
	return domain.EngineConfig{
		BaseDelay:     time.Millisecond,
		MaxRetries:    2,
		Timeout:       300 * time.Millisecond,
		VerifyTimeout: 100 * time.Millisecond,
		EntryTimeout:  100 * time.Millisecond,
		ListenCap:     300 * time.Millisecond,
		Settle:        20 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		DedupeSize:    16,
	}
}

// recordingHooks collects runner callbacks and can request a stop.
type recordingHooks struct {
	mu        sync.Mutex
	stop      chan struct{}
	stopOnce  sync.Once
	artifacts []domain.Artifact
	failed    []string
	done      []int
	onSaved   func(domain.Artifact)
}

func newHooks() *recordingHooks {
	return &recordingHooks{stop: make(chan struct{})}
}

func (h *recordingHooks) requestStop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *recordingHooks) Stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

func (h *recordingHooks) StopSignal() <-chan struct{} { return h.stop }

func (h *recordingHooks) ArtifactSaved(a domain.Artifact) {
	h.mu.Lock()
	h.artifacts = append(h.artifacts, a)
	fn := h.onSaved
	h.mu.Unlock()
	if fn != nil {
		fn(a)
	}
}

func (h *recordingHooks) VariantFailed(item domain.PromptItem, variant int, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, item.ID)
}

func (h *recordingHooks) ItemDone(index int, _ domain.PromptItem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = append(h.done, index)
}
