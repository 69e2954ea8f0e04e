package kernel

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/firewerk/internal/adapters/prompts"
)

// GET /v1/prompts
func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	files, err := s.prompts.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

// GET /v1/prompts/{file}
func (s *Server) handleGetPromptFile(w http.ResponseWriter, r *http.Request) {
	var name string
	err := runtime.BindStyledParameterWithOptions("simple", "file", r.PathValue("file"), &name, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Required:      true,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.prompts.Open(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file":  name,
		"kind":  prompts.GuessKind(items),
		"items": items,
		"count": len(items),
	})
}

// GET /v1/outputs
func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	dirs, err := s.outputs.ListOutputs()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"root": s.outputs.Root(), "directories": dirs})
}
