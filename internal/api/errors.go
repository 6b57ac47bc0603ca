package api

import (
	"errors"
	"net/http"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/pkg/httputil"
	"github.com/ignite/contact-import/internal/pkg/logger"
)

// statusForKind maps a domain error kind to its HTTP status.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindEmptyOrUnreadableInput, domain.KindInvalidMapping, domain.KindInvalidListReference:
		return http.StatusBadRequest
	case domain.KindUnknownBatch, domain.KindUnknownJob:
		return http.StatusNotFound
	case domain.KindBatchNotMapped, domain.KindBatchNotValidated, domain.KindBatchAlreadyCommitted,
		domain.KindBatchFailed, domain.KindValidationBlocked, domain.KindBatchBusy, domain.KindJobAlreadyRunning:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondServiceError writes a typed error envelope for domain errors and a
// sanitized 500 for anything else. Internal details never reach the client.
func respondServiceError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		respondSafeError(w, http.StatusInternalServerError, err, "internal server error")
		return
	}
	status := statusForKind(de.Kind)
	if status >= 500 {
		respondSafeError(w, status, err, "internal server error")
		return
	}

	var details any
	switch {
	case len(de.Fields) > 0:
		details = map[string]any{"fields": de.Fields}
	case de.Ref != "" && de.Kind == domain.KindJobAlreadyRunning:
		details = map[string]any{"job_id": de.Ref}
	case de.Ref != "":
		details = map[string]any{"ref": de.Ref}
	}
	httputil.ErrorWithCode(w, status, string(de.Kind), de.Error(), details)
}

// respondSafeError logs the full internal error and sends a public-safe message.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if internalErr != nil {
		logger.Error("[API] request failed", "status", code, "public", publicMsg, "error", internalErr)
	}
	httputil.Error(w, code, publicMsg)
}
