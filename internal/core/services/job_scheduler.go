package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

type JobScheduler struct {
	logger       *slog.Logger
	pendingQueue chan domain.Job
	semaphore    *semaphore.Weighted
	running      sync.WaitGroup

	mu       sync.Mutex
	stranded []domain.Job
	loopDone chan struct{}
}

func NewJobScheduler(logger *slog.Logger, cfg domain.SchedulerConfig) *JobScheduler {
	limit := cfg.MaxConcurrentJobs
	if limit <= 0 {
		limit = 2
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}

	return &JobScheduler{
		logger:       logger,
		pendingQueue: make(chan domain.Job, size),
		semaphore:    semaphore.NewWeighted(limit),
		loopDone:     make(chan struct{}),
	}
}

// SubmitJob adds a job to the scheduling queue without blocking.
func (s *JobScheduler) SubmitJob(_ context.Context, job domain.Job) error {
	select {
	case s.pendingQueue <- job:
		s.logger.Info("job submitted", "job_id", job.ID)
		return nil
	default:
		return fmt.Errorf("%w: %s", domain.ErrQueueFull, job.ID)
	}
}

// Start consumes queued jobs and runs handler for each, never more than
// MaxConcurrentJobs at a time. It returns immediately.
func (s *JobScheduler) Start(ctx context.Context, handler func(context.Context, domain.Job)) {
	s.logger.Info("starting job scheduler")

	go func() {
		defer close(s.loopDone)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("stopping scheduler")
				return
			case job := <-s.pendingQueue:
				if err := s.semaphore.Acquire(ctx, 1); err != nil {
					s.logger.Warn("scheduler stopped before job could start", "job_id", job.ID, "error", err)
					s.mu.Lock()
					s.stranded = append(s.stranded, job)
					s.mu.Unlock()
					return
				}

				s.running.Add(1)
				go func(j domain.Job) {
					defer s.running.Done()
					defer s.semaphore.Release(1)
					handler(ctx, j)
				}(job)
			}
		}
	}()
}

// Wait blocks until every started handler returned.
func (s *JobScheduler) Wait() {
	s.running.Wait()
}

// Drain waits for the dispatch loop started by Start to exit and returns
// every job that was queued but never handed to the handler. Call it only
// after the Start context is done.
func (s *JobScheduler) Drain() []domain.Job {
	<-s.loopDone

	s.mu.Lock()
	jobs := s.stranded
	s.stranded = nil
	s.mu.Unlock()

	for {
		select {
		case job := <-s.pendingQueue:
			jobs = append(jobs, job)
		default:
			return jobs
		}
	}
}
