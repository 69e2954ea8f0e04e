package domain

import (
	"errors"
	"time"
)

type JobID string

type JobStatus string

const (
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusStopped   JobStatus = "STOPPED"
)

// Terminal reports whether the status is absorbing.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusStopped
}

type JobKind string

const (
	JobKindImage  JobKind = "image"
	JobKindSpeech JobKind = "speech"
)

func (k JobKind) Valid() bool {
	return k == JobKindImage || k == JobKindSpeech
}

// IDPrefix is the prefix used for generated job ids of this kind.
func (k JobKind) IDPrefix() string {
	if k == JobKindSpeech {
		return "speech"
	}
	return "img"
}

// Job is one prompt set being driven through the remote UI.
type Job struct {
	ID             JobID     `json:"id"`
	Kind           JobKind   `json:"kind"`
	Status         JobStatus `json:"status"`
	TotalItems     int       `json:"total_items"`
	CompletedItems int       `json:"completed_items"`
	Artifacts      int       `json:"artifacts"`
	FailedVariants int       `json:"failed_variants"`
	Error          *string   `json:"error,omitempty"`
	OutputLocation string    `json:"output_location"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewJob returns a RUNNING job for the given prompt set size.
func NewJob(id JobID, kind JobKind, total int, output string, now time.Time) Job {
	return Job{
		ID:             id,
		Kind:           kind,
		Status:         JobStatusRunning,
		TotalItems:     total,
		OutputLocation: output,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Advance marks one more prompt item as processed. It is a no-op once the
// job is terminal or every item has been counted.
func (j *Job) Advance(now time.Time) bool {
	if j.Status != JobStatusRunning || j.CompletedItems >= j.TotalItems {
		return false
	}
	j.CompletedItems++
	j.UpdatedAt = now
	return true
}

// RecordArtifact counts a file written to the output location. An attempt
// that was in flight when the job stopped still lands on disk, so it is
// counted in any status; only a running job has its UpdatedAt moved.
func (j *Job) RecordArtifact(now time.Time) {
	j.Artifacts++
	if j.Status == JobStatusRunning {
		j.UpdatedAt = now
	}
}

func (j *Job) RecordFailure(now time.Time) bool {
	if j.Status != JobStatusRunning {
		return false
	}
	j.FailedVariants++
	j.UpdatedAt = now
	return true
}

// Finish moves a running job into a terminal status. cause is recorded only
// for FAILED and must be non-nil there. Returns false if the job already left
// RUNNING.
func (j *Job) Finish(status JobStatus, cause error, now time.Time) bool {
	if j.Status != JobStatusRunning || !status.Terminal() {
		return false
	}
	j.Status = status
	j.UpdatedAt = now
	if status == JobStatusFailed {
		msg := "job failed"
		if cause != nil {
			msg = cause.Error()
		}
		j.Error = &msg
	}
	return true
}

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrEmptyPromptSet = errors.New("prompt set is empty")
	ErrUnknownKind    = errors.New("unknown job kind")
	ErrQueueFull      = errors.New("scheduling queue full")
	ErrProfileMissing = errors.New("profile not found")
)
