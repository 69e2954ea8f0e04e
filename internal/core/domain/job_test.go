package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_AdvanceIsCapped(t *testing.T) {
	now := time.Now()
	job := NewJob("img_1", JobKindImage, 2, "/tmp/out", now)

	assert.True(t, job.Advance(now))
	assert.True(t, job.Advance(now))
	assert.False(t, job.Advance(now))
	assert.Equal(t, 2, job.CompletedItems)

	require.True(t, job.Finish(JobStatusCompleted, nil, now))
	assert.False(t, job.Advance(now))
	assert.Equal(t, 2, job.CompletedItems)
}

func TestJob_FinishIsAbsorbing(t *testing.T) {
	start := time.Now()
	job := NewJob("img_1", JobKindImage, 1, "/tmp/out", start)

	require.True(t, job.Finish(JobStatusStopped, nil, start.Add(time.Second)))
	assert.False(t, job.Finish(JobStatusFailed, errors.New("late"), start.Add(2*time.Second)))
	assert.False(t, job.Finish(JobStatusCompleted, nil, start.Add(3*time.Second)))

	assert.Equal(t, JobStatusStopped, job.Status)
	assert.Nil(t, job.Error)
	assert.Equal(t, start.Add(time.Second), job.UpdatedAt)
}

func TestJob_FinishRejectsNonTerminalStatus(t *testing.T) {
	job := NewJob("img_1", JobKindImage, 1, "/tmp/out", time.Now())
	assert.False(t, job.Finish(JobStatusRunning, nil, time.Now()))
	assert.Equal(t, JobStatusRunning, job.Status)
}

func TestJob_ErrorSetOnlyWhenFailed(t *testing.T) {
	now := time.Now()
	tests := []struct {
		status  JobStatus
		cause   error
		wantErr string
	}{
		{JobStatusCompleted, nil, ""},
		{JobStatusStopped, nil, ""},
		{JobStatusFailed, errors.New("structural failure: no prompt input"), "structural failure: no prompt input"},
		{JobStatusFailed, nil, "job failed"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+tt.wantErr, func(t *testing.T) {
			job := NewJob("img_1", JobKindImage, 1, "/tmp/out", now)
			require.True(t, job.Finish(tt.status, tt.cause, now))
			if tt.wantErr == "" {
				assert.Nil(t, job.Error)
				return
			}
			require.NotNil(t, job.Error)
			assert.Equal(t, tt.wantErr, *job.Error)
		})
	}
}

func TestJob_CountersAfterStop(t *testing.T) {
	start := time.Now()
	job := NewJob("img_1", JobKindImage, 3, "/tmp/out", start)
	job.RecordArtifact(start)
	require.True(t, job.Finish(JobStatusStopped, nil, start.Add(time.Second)))

	job.RecordArtifact(start.Add(2 * time.Second))
	assert.Equal(t, 2, job.Artifacts, "a write that lands after the stop is still counted")
	assert.Equal(t, start.Add(time.Second), job.UpdatedAt)

	assert.False(t, job.RecordFailure(start.Add(3*time.Second)))
	assert.Zero(t, job.FailedVariants)
}
