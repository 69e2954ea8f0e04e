package duckdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_Jobs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	job := domain.NewJob("img_1", domain.JobKindImage, 3, "/out/img_1", now)
	require.NoError(t, repo.SaveJob(ctx, job))

	fetched, err := repo.GetJob(ctx, "img_1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, fetched.Status)
	assert.Equal(t, 3, fetched.TotalItems)
	assert.Equal(t, "/out/img_1", fetched.OutputLocation)
	assert.Nil(t, fetched.Error)
	assert.WithinDuration(t, now, fetched.CreatedAt, time.Millisecond)

	job.Advance(now.Add(time.Second))
	job.RecordArtifact(now.Add(time.Second))
	job.Finish(domain.JobStatusFailed, errors.New("structural failure: prompt_input"), now.Add(2*time.Second))
	require.NoError(t, repo.SaveJob(ctx, job))

	fetched, err = repo.GetJob(ctx, "img_1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, fetched.Status)
	assert.Equal(t, 1, fetched.CompletedItems)
	assert.Equal(t, 1, fetched.Artifacts)
	require.NotNil(t, fetched.Error)
	assert.Equal(t, "structural failure: prompt_input", *fetched.Error)

	older := domain.NewJob("speech_0", domain.JobKindSpeech, 1, "/out/speech_0", now.Add(-time.Hour))
	require.NoError(t, repo.SaveJob(ctx, older))

	jobs, err := repo.ListJobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, domain.JobID("img_1"), jobs[0].ID)
	assert.Equal(t, domain.JobKindSpeech, jobs[1].Kind)

	jobs, err = repo.ListJobs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestRepository_GetJobNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetJob(context.Background(), "img_missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestRepository_Artifacts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	art := domain.Artifact{
		JobID: "img_1", ItemID: "cat", Variant: 1, Path: "/out/cat_1.png",
		SizeBytes: 4096, MimeType: "image/png", Mode: domain.CaptureNetwork,
		Digest: 0xfedcba9876543210, CreatedAt: now,
	}
	require.NoError(t, repo.SaveArtifact(ctx, art))
	require.NoError(t, repo.SaveArtifact(ctx, domain.Artifact{
		JobID: "img_1", ItemID: "cat", Variant: 2, Path: "/out/cat_2.png",
		SizeBytes: 2048, MimeType: "image/png", Mode: domain.CaptureElement, CreatedAt: now.Add(time.Second),
	}))
	require.NoError(t, repo.SaveArtifact(ctx, domain.Artifact{
		JobID: "img_2", ItemID: "dog", Variant: 1, Path: "/out/dog_1.png", MimeType: "image/png", Mode: domain.CaptureNetwork, CreatedAt: now,
	}))

	arts, err := repo.ListArtifacts(ctx, "img_1")
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "/out/cat_1.png", arts[0].Path)
	assert.Equal(t, uint64(0xfedcba9876543210), arts[0].Digest)
	assert.Equal(t, domain.CaptureElement, arts[1].Mode)

	none, err := repo.ListArtifacts(ctx, "img_9")
	require.NoError(t, err)
	assert.Empty(t, none)
}
