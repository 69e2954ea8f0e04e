package kernel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/firewerk/internal/adapters/prompts"
	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/services"
)

type MockJobs struct {
	mock.Mock
}

func (m *MockJobs) StartJob(ctx context.Context, req domain.StartRequest) (domain.Job, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Job), args.Error(1)
}

func (m *MockJobs) GetStatus(ctx context.Context, id domain.JobID) (domain.Job, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Job), args.Error(1)
}

func (m *MockJobs) StopJob(ctx context.Context, id domain.JobID) (domain.Job, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Job), args.Error(1)
}

func (m *MockJobs) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.Job), args.Error(1)
}

func (m *MockJobs) Artifacts(ctx context.Context, id domain.JobID) ([]domain.Artifact, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]domain.Artifact), args.Error(1)
}

func (m *MockJobs) Subscribe(id domain.JobID) (<-chan services.Event, func()) {
	args := m.Called(id)
	return args.Get(0).(<-chan services.Event), args.Get(1).(func())
}

type fixture struct {
	jobs      *MockJobs
	handler   http.Handler
	promptDir string
	outputDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	f := &fixture{
		jobs:      new(MockJobs),
		promptDir: t.TempDir(),
		outputDir: t.TempDir(),
	}
	reg := prometheus.NewRegistry()
	services.MustNewMetrics(reg).JobStarted(domain.JobKindImage)

	server, err := NewServer(logger, f.jobs, prompts.NewLoader(f.promptDir), services.NewWorkspaceManager(f.outputDir),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	require.NoError(t, err)
	f.handler = server.Handler()
	t.Cleanup(func() { f.jobs.AssertExpectations(t) })
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func runningJob(id string) domain.Job {
	return domain.NewJob(domain.JobID(id), domain.JobKindImage, 1, "/out/"+id, time.Now().UTC())
}

func TestServer_StartJobWithItems(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("StartJob", mock.Anything, mock.MatchedBy(func(req domain.StartRequest) bool {
		return req.Kind == domain.JobKindImage &&
			len(req.Items) == 2 &&
			req.Items[0].Payload == "a cat" &&
			req.Items[0].VariantCount == 2 &&
			req.Items[1].Parameters.Get(domain.ParamStyle) == "noir" &&
			req.Options.Parameters.Get(domain.ParamAspectRatio) == "square" &&
			req.Options.CaptureMode == domain.CaptureElement &&
			req.Options.GlobalStyle == "cinematic"
	})).Return(runningJob("img_1"), nil).Once()

	w := f.do("POST", "/v1/jobs", `{
		"kind": "image",
		"items": [{"id": "cat", "text": "a cat", "variants": 2}, {"text": "a dog", "parameters": {"style": "noir"}}],
		"options": {"aspectRatio": "square", "captureMode": "screenshot", "globalStyle": "cinematic"}
	}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "img_1", resp["id"])
	assert.Equal(t, "RUNNING", resp["status"])
}

func TestServer_StartJobFromPromptFile(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.promptDir, "batch.csv"), []byte("id,text\nfox,a fox\n"), 0o644))
	f.jobs.On("StartJob", mock.Anything, mock.MatchedBy(func(req domain.StartRequest) bool {
		return len(req.Items) == 1 && req.Items[0].ID == "fox" && req.Kind == domain.JobKindImage
	})).Return(runningJob("img_2"), nil).Once()

	w := f.do("POST", "/v1/jobs", `{"promptFile": "batch.csv"}`)
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = f.do("POST", "/v1/jobs", `{"promptFile": "missing.csv"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "not found")
}

func TestServer_StartJobRejected(t *testing.T) {
	f := newFixture(t)

	w := f.do("POST", "/v1/jobs", `{"kind": "video", "items": [{"text": "x"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("POST", "/v1/jobs", `{"items": [{"id": "no-text"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.jobs.On("StartJob", mock.Anything, mock.Anything).Return(domain.Job{}, domain.ErrEmptyPromptSet).Once()
	w = f.do("POST", "/v1/jobs", `{"kind": "speech", "items": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrEmptyPromptSet.Error(), decode(t, w)["error"])

	f.jobs.On("StartJob", mock.Anything, mock.Anything).Return(domain.Job{}, fmt.Errorf("submit: %w", domain.ErrQueueFull)).Once()
	w = f.do("POST", "/v1/jobs", `{"items": [{"text": "x"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_GetAndStopJob(t *testing.T) {
	f := newFixture(t)
	job := runningJob("img_3")
	f.jobs.On("GetStatus", mock.Anything, domain.JobID("img_3")).Return(job, nil).Once()
	f.jobs.On("GetStatus", mock.Anything, domain.JobID("nope")).
		Return(domain.Job{}, fmt.Errorf("%w: nope", domain.ErrJobNotFound)).Once()

	w := f.do("GET", "/v1/jobs/img_3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "img_3", decode(t, w)["id"])

	w = f.do("GET", "/v1/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	stopped := job
	stopped.Finish(domain.JobStatusStopped, nil, time.Now())
	f.jobs.On("StopJob", mock.Anything, domain.JobID("img_3")).Return(stopped, nil).Once()
	f.jobs.On("StopJob", mock.Anything, domain.JobID("nope")).Return(domain.Job{}, domain.ErrJobNotFound).Once()

	w = f.do("POST", "/v1/jobs/img_3/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "STOPPED", resp["status"])
	assert.Equal(t, "STOPPED", resp["job"].(map[string]any)["status"])

	w = f.do("POST", "/v1/jobs/nope/stop", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ListJobsAndArtifacts(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("ListJobs", mock.Anything, 5).Return([]domain.Job{runningJob("a"), runningJob("b")}, nil).Once()
	f.jobs.On("Artifacts", mock.Anything, domain.JobID("a")).Return([]domain.Artifact{{JobID: "a", ItemID: "cat", Variant: 1}}, nil).Once()

	w := f.do("GET", "/v1/jobs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["count"])

	w = f.do("GET", "/v1/jobs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("GET", "/v1/jobs/a/artifacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.EqualValues(t, 1, resp["count"])
	assert.Equal(t, "cat", resp["artifacts"].([]any)[0].(map[string]any)["item_id"])
}

func TestServer_JobEventsStreamUntilTerminal(t *testing.T) {
	f := newFixture(t)
	job := runningJob("img_4")
	ch := make(chan services.Event, 4)
	f.jobs.On("Subscribe", domain.JobID("img_4")).Return((<-chan services.Event)(ch), func() {}).Once()
	f.jobs.On("GetStatus", mock.Anything, domain.JobID("img_4")).Return(job, nil).Once()

	done := job
	done.Advance(time.Now())
	done.Finish(domain.JobStatusCompleted, nil, time.Now())
	ch <- services.NewEvent(job.ID, services.EventTypeProgress, map[string]int{"completed": 1})
	ch <- services.NewEvent(job.ID, services.EventTypeStatus, done)

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/jobs/img_4/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var kinds []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			kinds = append(kinds, name)
		}
	}
	assert.Equal(t, []string{"status", "progress", "status"}, kinds)
}

func TestServer_PromptsOutputsAndHealth(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.promptDir, "voices.json"), []byte(`[{"text": "hi", "voice": "Aria"}]`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(f.outputDir, "img_1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.outputDir, "img_1", "cat_1.png"), []byte("png"), 0o644))

	w := f.do("GET", "/v1/prompts", "")
	require.Equal(t, http.StatusOK, w.Code)
	files := decode(t, w)["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, "speech", files[0].(map[string]any)["kind"])

	w = f.do("GET", "/v1/prompts/voices.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = f.do("GET", "/v1/prompts/absent.csv", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do("GET", "/v1/prompts/notes.txt", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("GET", "/v1/outputs", "")
	require.Equal(t, http.StatusOK, w.Code)
	dirs := decode(t, w)["directories"].([]any)
	require.Len(t, dirs, 1)
	assert.Equal(t, "img_1", dirs[0].(map[string]any)["name"])

	w = f.do("GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do("GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "firewerk_jobs_started_total")
}
