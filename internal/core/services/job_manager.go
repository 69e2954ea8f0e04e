package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/engine"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

// trackedJob is the in-memory record of one job. job and artifacts are
// guarded by JobManager.mu.
type trackedJob struct {
	job       domain.Job
	items     []domain.PromptItem
	profile   domain.Profile
	preferred domain.CaptureMode
	artifacts []domain.Artifact

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func (t *trackedJob) requestStop() { t.stopOnce.Do(func() { close(t.stop) }) }
func (t *trackedJob) markDone()    { t.doneOnce.Do(func() { close(t.done) }) }

// JobManager owns the job table: it starts jobs, runs them through the
// scheduler, and answers status, stop and artifact queries.
type JobManager struct {
	logger    *slog.Logger
	scheduler *JobScheduler
	sessions  ports.SessionProvider
	repo      ports.JobRepository
	workspace *WorkspaceManager
	eventBus  *EventBus
	profiles  ports.ProfileSource
	metrics   *Metrics
	cfg       domain.EngineConfig
	retainFor time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[domain.JobID]*trackedJob
}

func NewJobManager(
	logger *slog.Logger,
	scheduler *JobScheduler,
	sessions ports.SessionProvider,
	repo ports.JobRepository,
	ws *WorkspaceManager,
	eventBus *EventBus,
	profiles ports.ProfileSource,
	metrics *Metrics,
	cfg domain.EngineConfig,
	retainFor time.Duration,
) *JobManager {
	return &JobManager{
		logger:    logger,
		scheduler: scheduler,
		sessions:  sessions,
		repo:      repo,
		workspace: ws,
		eventBus:  eventBus,
		profiles:  profiles,
		metrics:   metrics,
		cfg:       cfg,
		retainFor: retainFor,
		now:       func() time.Time { return time.Now().UTC() },
		jobs:      make(map[domain.JobID]*trackedJob),
	}
}

// Run starts the scheduler and the eviction janitor and blocks until ctx
// ends and every running job has returned.
func (m *JobManager) Run(ctx context.Context) error {
	m.scheduler.Start(ctx, m.executeJob)

	interval := m.retainFor / 4
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.abandonQueued(context.Cause(ctx))
			m.scheduler.Wait()
			return nil
		case <-ticker.C:
			if n := m.Evict(m.now()); n > 0 {
				m.logger.Info("evicted finished jobs", "count", n)
			}
		}
	}
}

// StartJob registers a RUNNING job and queues it. It does not wait for any
// work to happen.
func (m *JobManager) StartJob(ctx context.Context, req domain.StartRequest) (domain.Job, error) {
	if !req.Kind.Valid() {
		return domain.Job{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, req.Kind)
	}
	items := make([]domain.PromptItem, 0, len(req.Items))
	for _, item := range req.Items {
		if strings.TrimSpace(item.Payload) == "" {
			continue
		}
		items = append(items, req.Options.Apply(item))
	}
	if len(items) == 0 {
		return domain.Job{}, domain.ErrEmptyPromptSet
	}
	uniqueStems(items)

	profile, err := m.profiles.Resolve(req.Kind, req.Options.Profile)
	if err != nil {
		return domain.Job{}, err
	}

	preferred := req.Options.CaptureMode
	if preferred != "" && !preferred.Valid() {
		m.logger.Warn("ignoring unknown capture mode", "capture_mode", preferred)
		preferred = ""
	}

	id := domain.JobID(req.Kind.IDPrefix() + "_" + uuid.NewString())
	outputDir, err := m.workspace.PrepareJobDir(id, req.Options.OutputDir)
	if err != nil {
		return domain.Job{}, err
	}

	tj := &trackedJob{
		job:       domain.NewJob(id, req.Kind, len(items), outputDir, m.now()),
		items:     items,
		profile:   profile,
		preferred: preferred,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[id] = tj
	snapshot := tj.job
	m.mu.Unlock()

	m.metrics.JobStarted(req.Kind)
	m.persist(ctx, snapshot)
	m.publishStatus(snapshot)
	m.logger.Info("job started", "job_id", id, "kind", req.Kind, "items", len(items), "profile", profile.Name, "output", outputDir)

	if err := m.scheduler.SubmitJob(ctx, snapshot); err != nil {
		snapshot = m.finish(ctx, tj, domain.JobStatusFailed, err)
		tj.markDone()
		return snapshot, err
	}
	return snapshot, nil
}

// uniqueStems renames items whose file name stem repeats an earlier item's,
// so every id and variant pair maps to its own artifact path. Stems are
// compared case-insensitively.
func uniqueStems(items []domain.PromptItem) {
	const maxBase = 110
	taken := make(map[string]bool, len(items))
	for i := range items {
		stem := engine.SanitizeID(items[i].ID)
		if taken[strings.ToLower(stem)] {
			base := stem
			if len(base) > maxBase {
				base = base[:maxBase]
			}
			for n := i + 1; taken[strings.ToLower(stem)]; n++ {
				stem = fmt.Sprintf("%s_%d", base, n)
			}
			items[i].ID = stem
		}
		taken[strings.ToLower(stem)] = true
	}
}

// GetStatus returns a snapshot of the job, falling back to the repository
// for evicted jobs.
func (m *JobManager) GetStatus(ctx context.Context, id domain.JobID) (domain.Job, error) {
	m.mu.RLock()
	tj, ok := m.jobs[id]
	var snapshot domain.Job
	if ok {
		snapshot = tj.job
	}
	m.mu.RUnlock()
	if ok {
		return snapshot, nil
	}

	if m.repo == nil {
		return domain.Job{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	job, err := m.repo.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// StopJob asks a running job to stop. The job is STOPPED immediately; its
// worker releases the session at the next item or variant boundary.
// Stopping a finished job returns it unchanged.
func (m *JobManager) StopJob(ctx context.Context, id domain.JobID) (domain.Job, error) {
	m.mu.RLock()
	tj, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		job, err := m.GetStatus(ctx, id)
		if err != nil {
			return domain.Job{}, err
		}
		return job, nil
	}

	snapshot := m.finish(ctx, tj, domain.JobStatusStopped, nil)
	tj.requestStop()
	return snapshot, nil
}

// ListJobs returns tracked jobs plus persisted history, newest first.
func (m *JobManager) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	m.mu.RLock()
	byID := make(map[domain.JobID]domain.Job, len(m.jobs))
	for id, tj := range m.jobs {
		byID[id] = tj.job
	}
	m.mu.RUnlock()

	if m.repo != nil {
		history, err := m.repo.ListJobs(ctx, limit)
		if err != nil {
			return nil, err
		}
		for _, job := range history {
			if _, ok := byID[job.ID]; !ok {
				byID[job.ID] = job
			}
		}
	}

	jobs := make([]domain.Job, 0, len(byID))
	for _, job := range byID {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b domain.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Artifacts lists what a job has written so far.
func (m *JobManager) Artifacts(ctx context.Context, id domain.JobID) ([]domain.Artifact, error) {
	m.mu.RLock()
	tj, ok := m.jobs[id]
	var arts []domain.Artifact
	if ok {
		arts = slices.Clone(tj.artifacts)
	}
	m.mu.RUnlock()
	if ok {
		if arts == nil {
			arts = []domain.Artifact{}
		}
		return arts, nil
	}

	if _, err := m.GetStatus(ctx, id); err != nil {
		return nil, err
	}
	return m.repo.ListArtifacts(ctx, id)
}

// Subscribe streams the events of one job.
func (m *JobManager) Subscribe(id domain.JobID) (<-chan Event, func()) {
	return m.eventBus.Subscribe(id)
}

// Wait blocks until the job's worker has returned and the session is closed.
func (m *JobManager) Wait(ctx context.Context, id domain.JobID) (domain.Job, error) {
	m.mu.RLock()
	tj, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return m.GetStatus(ctx, id)
	}
	select {
	case <-ctx.Done():
		return domain.Job{}, ctx.Err()
	case <-tj.done:
	}
	return m.GetStatus(ctx, id)
}

// Evict forgets terminal jobs last updated before now-retainFor. The
// repository keeps them. Returns how many were removed.
func (m *JobManager) Evict(now time.Time) int {
	if m.retainFor <= 0 {
		return 0
	}
	cutoff := now.Add(-m.retainFor)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, tj := range m.jobs {
		if tj.job.Status.Terminal() && tj.job.UpdatedAt.Before(cutoff) {
			select {
			case <-tj.done:
			default:
				continue
			}
			delete(m.jobs, id)
			n++
		}
	}
	return n
}

// abandonQueued fails every job the scheduler never started.
func (m *JobManager) abandonQueued(cause error) {
	for _, job := range m.scheduler.Drain() {
		m.mu.RLock()
		tj, ok := m.jobs[job.ID]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		m.finish(context.Background(), tj, domain.JobStatusFailed, fmt.Errorf("shutdown: %w", cause))
		tj.markDone()
	}
}

// executeJob is the callback for the scheduler
func (m *JobManager) executeJob(ctx context.Context, job domain.Job) {
	m.mu.RLock()
	tj, ok := m.jobs[job.ID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	defer tj.markDone()

	logger := m.logger.With("job_id", job.ID)
	hooks := &jobHooks{m: m, tj: tj}
	if hooks.Stopped() {
		logger.Info("job stopped before it started")
		return
	}
	if err := ctx.Err(); err != nil {
		m.finish(context.Background(), tj, domain.JobStatusFailed, fmt.Errorf("shutdown: %w", context.Cause(ctx)))
		return
	}

	runner, err := engine.NewRunner(m.logger, tj.profile, m.cfg, m.metrics)
	if err != nil {
		m.finish(ctx, tj, domain.JobStatusFailed, fmt.Errorf("build runner: %w", err))
		return
	}

	sess, err := m.sessions.Acquire(ctx, job.ID)
	if err != nil {
		m.finish(ctx, tj, domain.JobStatusFailed, fmt.Errorf("acquire session: %w", err))
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
		logger.Info("session released")
	}()

	m.publishLog(job.ID, "session acquired, opening "+tj.profile.URL)
	err = runner.Run(ctx, sess, engine.RunSpec{
		JobID:     job.ID,
		Items:     tj.items,
		OutputDir: job.OutputLocation,
		Preferred: tj.preferred,
	}, hooks)

	switch {
	case err == nil:
		m.finish(ctx, tj, domain.JobStatusCompleted, nil)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		m.finish(context.Background(), tj, domain.JobStatusFailed, fmt.Errorf("shutdown: %w", err))
	default:
		m.finish(ctx, tj, domain.JobStatusFailed, err)
	}
}

// finish applies a terminal transition. Transitions out of a terminal status
// are ignored and the current snapshot is returned.
func (m *JobManager) finish(ctx context.Context, tj *trackedJob, status domain.JobStatus, cause error) domain.Job {
	m.mu.Lock()
	changed := tj.job.Finish(status, cause, m.now())
	snapshot := tj.job
	m.mu.Unlock()
	if !changed {
		return snapshot
	}

	m.metrics.JobFinished(snapshot.Kind, status)
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	m.persist(ctx, snapshot)
	m.publishStatus(snapshot)

	logger := m.logger.With("job_id", snapshot.ID, "status", status, "completed_items", snapshot.CompletedItems, "artifacts", snapshot.Artifacts)
	if cause != nil {
		logger.Error("job finished", "error", cause)
	} else {
		logger.Info("job finished")
	}
	return snapshot
}

func (m *JobManager) persist(ctx context.Context, job domain.Job) {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveJob(ctx, job); err != nil {
		m.logger.Error("failed to save job status", "job_id", job.ID, "error", err)
	}
}

func (m *JobManager) publishStatus(job domain.Job) {
	m.eventBus.Publish(NewEvent(job.ID, EventTypeStatus, job))
}

func (m *JobManager) publishLog(id domain.JobID, msg string) {
	m.eventBus.Publish(NewEvent(id, EventTypeLog, msg))
}

// jobHooks feeds runner progress back into the job table.
type jobHooks struct {
	m  *JobManager
	tj *trackedJob
}

func (h *jobHooks) Stopped() bool {
	select {
	case <-h.tj.stop:
		return true
	default:
		return false
	}
}

func (h *jobHooks) StopSignal() <-chan struct{} { return h.tj.stop }

func (h *jobHooks) ArtifactSaved(a domain.Artifact) {
	m := h.m
	m.mu.Lock()
	h.tj.job.RecordArtifact(m.now())
	h.tj.artifacts = append(h.tj.artifacts, a)
	snapshot := h.tj.job
	m.mu.Unlock()

	ctx := context.Background()
	if m.repo != nil {
		if err := m.repo.SaveArtifact(ctx, a); err != nil {
			m.logger.Error("failed to save artifact", "job_id", a.JobID, "path", a.Path, "error", err)
		}
	}
	m.persist(ctx, snapshot)
	m.metrics.ArtifactSaved(snapshot.Kind, a.SizeBytes)
	m.eventBus.Publish(NewEvent(a.JobID, EventTypeArtifact, a))
}

func (h *jobHooks) VariantFailed(item domain.PromptItem, variant int, err error) {
	m := h.m
	m.mu.Lock()
	h.tj.job.RecordFailure(m.now())
	snapshot := h.tj.job
	m.mu.Unlock()

	m.metrics.VariantFailed(snapshot.Kind)
	m.persist(context.Background(), snapshot)
	m.publishLog(snapshot.ID, fmt.Sprintf("item %s variant %d failed: %v", item.ID, variant, err))
}

func (h *jobHooks) ItemDone(index int, item domain.PromptItem) {
	m := h.m
	m.mu.Lock()
	h.tj.job.Advance(m.now())
	snapshot := h.tj.job
	m.mu.Unlock()

	m.persist(context.Background(), snapshot)
	m.eventBus.Publish(NewEvent(snapshot.ID, EventTypeProgress, map[string]any{
		"item_id":         item.ID,
		"index":           index,
		"completed_items": snapshot.CompletedItems,
		"total_items":     snapshot.TotalItems,
	}))
}

var _ engine.Hooks = (*jobHooks)(nil)
