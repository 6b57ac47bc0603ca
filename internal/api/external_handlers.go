package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/pkg/httputil"
)

type startExternalRequest struct {
	ListReference string               `json:"list_reference"`
	Config        *domain.ImportConfig `json:"config"`
}

// HandleStartExternalImport launches a background import of a third-party
// list. A 409 for an in-flight list carries the running job id.
// POST /api/import/external
func (h *Handlers) HandleStartExternalImport(w http.ResponseWriter, r *http.Request) {
	var req startExternalRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	snap, err := h.lists.StartExternalImport(r.Context(), req.ListReference, req.Config)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Accepted(w, snap)
}

// HandleGetProgress returns the latest progress snapshot for a job.
// GET /api/import/external/{jobId}
func (h *Handlers) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := h.lists.GetProgress(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, snap)
}

// HandleListJobs lists known external import jobs, newest first.
// GET /api/import/external
func (h *Handlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.lists.ListJobs(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"jobs":  jobs,
		"total": len(jobs),
	})
}
