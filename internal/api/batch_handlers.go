package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/pkg/httputil"
	"github.com/ignite/contact-import/internal/service/contactimport"
)

// =============================================================================
// BATCH IMPORT HANDLERS
// =============================================================================
// Upload a CSV, confirm the column mapping, preview the outcome and commit.

type createBatchRequest struct {
	Content   string `json:"content"`
	Filename  string `json:"filename"`
	Delimiter string `json:"delimiter"`
	HasHeader *bool  `json:"has_header"`
}

type setMappingRequest struct {
	Mapping []domain.ColumnMapping `json:"mapping"`
	Config  *domain.ImportConfig   `json:"config"`
}

// HandleListFields returns the canonical field catalogue for the mapping UI.
// GET /api/import/fields
func (h *Handlers) HandleListFields(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"fields": h.imports.Fields(),
	})
}

// HandleCreateBatch accepts a multipart "file" upload or a JSON body with
// inline content, sniffs it and returns the suggested mapping.
// POST /api/import/batches
func (h *Handlers) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	// Allow the multipart envelope on top of the content limit.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartMemory)

	in, ok := h.readBatchInput(w, r)
	if !ok {
		return
	}
	res, err := h.imports.CreateBatch(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, res)
}

func (h *Handlers) readBatchInput(w http.ResponseWriter, r *http.Request) (contactimport.CreateBatchInput, bool) {
	var in contactimport.CreateBatchInput

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			httputil.BadRequest(w, "invalid multipart upload: "+err.Error())
			return in, false
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.BadRequest(w, "missing file field")
			return in, false
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
		if err != nil {
			httputil.BadRequest(w, "failed to read upload")
			return in, false
		}
		in.Content = data
		in.Filename = header.Filename
		in.Delimiter = r.FormValue("delimiter")
		if v := r.FormValue("has_header"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				httputil.BadRequest(w, "has_header must be true or false")
				return in, false
			}
			in.HasHeader = &b
		}
		return in, true
	}

	var req createBatchRequest
	if !httputil.Decode(w, r, &req) {
		return in, false
	}
	in.Content = []byte(req.Content)
	in.Filename = req.Filename
	in.Delimiter = req.Delimiter
	in.HasHeader = req.HasHeader
	return in, true
}

// HandleGetBatch returns a batch with its phase, mapping and outcome.
// GET /api/import/batches/{batchId}
func (h *Handlers) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.imports.GetBatch(r.Context(), chi.URLParam(r, "batchId"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, b)
}

// HandleDeleteBatch removes the raw upload and batch metadata.
// DELETE /api/import/batches/{batchId}
func (h *Handlers) HandleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.imports.DeleteBatch(r.Context(), chi.URLParam(r, "batchId")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// HandleSetMapping stores the confirmed mapping and import options.
// PUT /api/import/batches/{batchId}/mapping
func (h *Handlers) HandleSetMapping(w http.ResponseWriter, r *http.Request) {
	var req setMappingRequest
	if !httputil.DecodeStrict(w, r, &req) {
		return
	}
	b, err := h.imports.SetMapping(r.Context(), chi.URLParam(r, "batchId"), req.Mapping, req.Config)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, b)
}

// HandleValidate runs the dry-run preview over every row.
// POST /api/import/batches/{batchId}/validate
func (h *Handlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	report, err := h.imports.Validate(r.Context(), chi.URLParam(r, "batchId"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, report)
}

// HandleCommit writes the batch to the contact store.
// POST /api/import/batches/{batchId}/commit
func (h *Handlers) HandleCommit(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.imports.Commit(r.Context(), chi.URLParam(r, "batchId"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, outcome)
}
