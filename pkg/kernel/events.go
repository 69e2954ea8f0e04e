package kernel

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/services"
)

// handleJobEvents streams a job's events as SSE. The first event is the
// current status; the stream ends after a terminal status.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before the snapshot so no transition is lost in between.
	ch, unsub := s.jobs.Subscribe(id)
	defer unsub()

	job, err := s.jobs.GetStatus(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, services.NewEvent(id, services.EventTypeStatus, job))
	flusher.Flush()
	if job.Status.Terminal() {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, evt)
			flusher.Flush()
			if evt.Type == services.EventTypeStatus && terminalStatus(evt.Data) {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt services.Event) {
	payload, _ := json.Marshal(evt)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
}

func terminalStatus(data string) bool {
	var job domain.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return false
	}
	return job.Status.Terminal()
}
