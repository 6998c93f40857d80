package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/transport-marketplace/internal/catalog"
	"github.com/example/transport-marketplace/internal/marketplace"
	"github.com/example/transport-marketplace/internal/reservation"
	"github.com/example/transport-marketplace/internal/routing"
	"github.com/example/transport-marketplace/internal/storage"
)

type apiError struct {
	Status    int      `json:"status"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	RequestID string   `json:"request_id,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apiError{Message: err.Error(), RequestID: requestIDFromContext(r.Context())}

	var blocked *reservation.BlockedError
	switch {
	case errors.As(err, &blocked):
		e.Status, e.Code = http.StatusUnprocessableEntity, "blocked"
		for _, reason := range blocked.Reasons {
			e.Reasons = append(e.Reasons, reason.Error())
		}
	case errors.Is(err, storage.ErrConflict):
		e.Status, e.Code = http.StatusConflict, "conflict"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		e.Status, e.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, storage.ErrInvalid), errors.Is(err, catalog.ErrInvalid), errors.Is(err, routing.ErrTooFewPoints):
		e.Status, e.Code = http.StatusBadRequest, "invalid"
	case errors.Is(err, marketplace.ErrForbidden):
		e.Status, e.Code = http.StatusForbidden, "forbidden"
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", e.RequestID, "error", err)
		e.Status, e.Code, e.Message = http.StatusInternalServerError, "internal", "internal error"
	}
	writeJSON(w, e.Status, e)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{
			Status:    http.StatusBadRequest,
			Code:      "bad_json",
			Message:   err.Error(),
			RequestID: requestIDFromContext(r.Context()),
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
