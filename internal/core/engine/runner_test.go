package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports/portstest"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(testLogger(), portstest.Profile(), testConfig(), nil)
	require.NoError(t, err)
	return r
}

func items(ids ...string) []domain.PromptItem {
	out := make([]domain.PromptItem, len(ids))
	for i, id := range ids {
		out[i] = domain.PromptItem{ID: id, Payload: "a photo of a " + id, VariantCount: 1}
	}
	return out
}

func TestRunner_CapturesEveryItem(t *testing.T) {
	site := portstest.NewSite()
	hooks := newHooks()
	out := t.TempDir()

	err := newTestRunner(t).Run(context.Background(), site, RunSpec{JobID: "img_1", Items: items("cat", "dog"), OutputDir: out}, hooks)
	require.NoError(t, err)

	require.Len(t, hooks.artifacts, 2)
	assert.Equal(t, filepath.Join(out, "cat_1.png"), hooks.artifacts[0].Path)
	assert.Equal(t, filepath.Join(out, "dog_1.png"), hooks.artifacts[1].Path)
	assert.FileExists(t, hooks.artifacts[0].Path)
	assert.Equal(t, []int{0, 1}, hooks.done)
	assert.Empty(t, hooks.failed)
	assert.Equal(t, 2, site.Submissions())
	assert.Equal(t, "a photo of a dog", site.Input.Filled())
	assert.Equal(t, []string{"https://generate.test/image"}, site.Navigations())
}

func TestRunner_RetriesUntilResultArrives(t *testing.T) {
	site := portstest.NewSite()
	site.DropResults(2)
	hooks := newHooks()

	err := newTestRunner(t).Run(context.Background(), site, RunSpec{JobID: "img_1", Items: items("cat"), OutputDir: t.TempDir()}, hooks)
	require.NoError(t, err)

	assert.Equal(t, 3, site.Submissions())
	assert.Len(t, hooks.artifacts, 1)
	assert.Empty(t, hooks.failed)
}

func TestRunner_ExhaustedVariantDoesNotStopJob(t *testing.T) {
	site := portstest.NewSite()
	site.DropResults(3)
	hooks := newHooks()
	out := t.TempDir()

	err := newTestRunner(t).Run(context.Background(), site, RunSpec{JobID: "img_1", Items: items("cat", "dog"), OutputDir: out}, hooks)
	require.NoError(t, err)

	assert.Equal(t, []string{"cat"}, hooks.failed)
	require.Len(t, hooks.artifacts, 1)
	assert.Equal(t, filepath.Join(out, "dog_1.png"), hooks.artifacts[0].Path)
	assert.Equal(t, []int{0, 1}, hooks.done)
	assert.Equal(t, 4, site.Submissions())
}

func TestRunner_MissingEntryIsStructural(t *testing.T) {
	hooks := newHooks()
	err := newTestRunner(t).Run(context.Background(), portstest.NewSession(), RunSpec{JobID: "img_1", Items: items("cat"), OutputDir: t.TempDir()}, hooks)
	assert.ErrorIs(t, err, domain.ErrStructural)
	assert.Empty(t, hooks.artifacts)
}

func TestRunner_StopKeepsSavedArtifacts(t *testing.T) {
	site := portstest.NewSite()
	hooks := newHooks()
	hooks.onSaved = func(domain.Artifact) { hooks.requestStop() }

	spec := RunSpec{JobID: "img_1", Items: items("cat", "dog"), OutputDir: t.TempDir()}
	spec.Items[0].VariantCount = 2

	err := newTestRunner(t).Run(context.Background(), site, spec, hooks)
	require.NoError(t, err)

	require.Len(t, hooks.artifacts, 1)
	assert.FileExists(t, hooks.artifacts[0].Path)
	assert.Empty(t, hooks.done)
	assert.Equal(t, 1, site.Submissions())
}

func TestNewRunner_RejectsInvalidProfile(t *testing.T) {
	profile := portstest.Profile()
	delete(profile.Targets, domain.TargetPromptInput)
	_, err := NewRunner(testLogger(), profile, testConfig(), nil)
	assert.Error(t, err)
}
