package kernel

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"

	"github.com/manthysbr/firewerk/internal/adapters/prompts"
	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/services"
)

//go:embed openapi.yaml
var openapiSpec []byte

// JobService is the part of the job manager the API exposes.
type JobService interface {
	StartJob(ctx context.Context, req domain.StartRequest) (domain.Job, error)
	GetStatus(ctx context.Context, id domain.JobID) (domain.Job, error)
	StopJob(ctx context.Context, id domain.JobID) (domain.Job, error)
	ListJobs(ctx context.Context, limit int) ([]domain.Job, error)
	Artifacts(ctx context.Context, id domain.JobID) ([]domain.Artifact, error)
	Subscribe(id domain.JobID) (<-chan services.Event, func())
}

// PromptCatalog lists and reads prompt files by bare name.
type PromptCatalog interface {
	List(ctx context.Context) ([]prompts.FileInfo, error)
	Open(ctx context.Context, name string) ([]domain.PromptItem, error)
}

type OutputLister interface {
	Root() string
	ListOutputs() ([]services.OutputDir, error)
}

type Server struct {
	logger  *slog.Logger
	jobs    JobService
	prompts PromptCatalog
	outputs OutputLister
	metrics http.Handler
	router  routers.Router
}

// NewServer loads the embedded OpenAPI document used to validate requests.
// metrics may be nil to leave /metrics unmounted.
func NewServer(logger *slog.Logger, jobs JobService, catalog PromptCatalog, outputs OutputLister, metrics http.Handler) (*Server, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &Server{
		logger:  logger,
		jobs:    jobs,
		prompts: catalog,
		outputs: outputs,
		metrics: metrics,
		router:  router,
	}, nil
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/jobs", s.handleStartJob)
	mux.HandleFunc("GET /v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /v1/jobs/{id}/stop", s.handleStopJob)
	mux.HandleFunc("GET /v1/jobs/{id}/artifacts", s.handleListArtifacts)
	mux.HandleFunc("GET /v1/jobs/{id}/events", s.handleJobEvents)
	mux.HandleFunc("GET /v1/prompts", s.handleListPrompts)
	mux.HandleFunc("GET /v1/prompts/{file}", s.handleGetPromptFile)
	mux.HandleFunc("GET /v1/outputs", s.handleListOutputs)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return s.validate(mux)
}

// validate rejects requests that do not match the OpenAPI document. Paths
// the document does not describe pass through untouched.
func (s *Server) validate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := s.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyPromptSet),
		errors.Is(err, domain.ErrUnknownKind),
		errors.Is(err, domain.ErrProfileMissing),
		errors.Is(err, prompts.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}
