package kernel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

// StartJobRequest is the body of POST /v1/jobs. Items and PromptFile may be
// combined; file items come first.
type StartJobRequest struct {
	Kind       string              `json:"kind"`
	PromptFile string              `json:"promptFile,omitempty"`
	Items      []PromptItemRequest `json:"items,omitempty"`
	Options    JobOptionsRequest   `json:"options"`
}

type PromptItemRequest struct {
	ID         string            `json:"id,omitempty"`
	Text       string            `json:"text"`
	Variants   int               `json:"variants,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

type JobOptionsRequest struct {
	OutputDir         string            `json:"outputDir,omitempty"`
	VariantsPerPrompt int               `json:"variantsPerPrompt,omitempty"`
	GlobalStyle       string            `json:"globalStyle,omitempty"`
	CaptureMode       string            `json:"captureMode,omitempty"`
	Profile           string            `json:"profile,omitempty"`
	Model             string            `json:"model,omitempty"`
	AspectRatio       string            `json:"aspectRatio,omitempty"`
	Style             string            `json:"style,omitempty"`
	Voice             string            `json:"voice,omitempty"`
	Language          string            `json:"language,omitempty"`
	Parameters        map[string]string `json:"parameters,omitempty"`
}

func toParameters(raw map[string]string) domain.Parameters {
	if len(raw) == 0 {
		return nil
	}
	p := make(domain.Parameters, len(raw))
	for k, v := range raw {
		p[domain.ParseParamKey(k)] = v
	}
	return p
}

func (o JobOptionsRequest) toDomain() domain.JobOptions {
	opts := domain.JobOptions{
		OutputDir:         o.OutputDir,
		VariantsPerPrompt: o.VariantsPerPrompt,
		GlobalStyle:       o.GlobalStyle,
		Profile:           o.Profile,
		Parameters:        toParameters(o.Parameters),
	}
	if o.CaptureMode != "" {
		if mode, ok := domain.ParseCaptureMode(o.CaptureMode); ok {
			opts.CaptureMode = mode
		} else {
			// the manager logs and ignores it
			opts.CaptureMode = domain.CaptureMode(o.CaptureMode)
		}
	}
	for key, v := range map[domain.ParamKey]string{
		domain.ParamModel:       o.Model,
		domain.ParamAspectRatio: o.AspectRatio,
		domain.ParamStyle:       o.Style,
		domain.ParamVoice:       o.Voice,
		domain.ParamLanguage:    o.Language,
	} {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if opts.Parameters == nil {
			opts.Parameters = domain.Parameters{}
		}
		opts.Parameters[key] = v
	}
	return opts
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var body StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := domain.StartRequest{
		Kind:    domain.JobKind(body.Kind),
		Options: body.Options.toDomain(),
	}
	if req.Kind == "" {
		req.Kind = domain.JobKindImage
	}
	if body.PromptFile != "" {
		items, err := s.prompts.Open(r.Context(), body.PromptFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("prompt file %q not found", body.PromptFile)
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Items = append(req.Items, items...)
	}
	for _, it := range body.Items {
		req.Items = append(req.Items, domain.PromptItem{
			ID:           it.ID,
			Payload:      it.Text,
			VariantCount: it.Variants,
			Parameters:   toParameters(it.Parameters),
		})
	}

	job, err := s.jobs.StartJob(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := s.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// jobID binds the {id} path segment.
func jobID(r *http.Request) (domain.JobID, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", r.PathValue("id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	return domain.JobID(id), err
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.jobs.GetStatus(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.jobs.StopJob(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": job.Status, "job": job})
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	arts, err := s.jobs.Artifacts(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if arts == nil {
		arts = []domain.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "artifacts": arts, "count": len(arts)})
}
