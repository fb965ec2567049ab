package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/eventcard/backend/internal/middleware"
	"github.com/eventcard/backend/internal/models"
	"github.com/eventcard/backend/internal/services"
	log "github.com/sirupsen/logrus"
)

// decodeJSON reads exactly one JSON object into dst and validates it. It
// writes the 400 response itself and reports whether the caller may go on.
func decodeJSON(w http.ResponseWriter, r *http.Request, validator *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// requireActor fetches the authenticated actor or answers 401.
func requireActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return models.Actor{}, false
	}
	return actor, true
}

// writeServiceError maps engine failures to HTTP. Storage details are logged,
// never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ibe *services.InsufficientBalanceError
	switch {
	case errors.As(err, &ibe):
		services.SendJSON(w, http.StatusConflict, services.ErrorResponse{
			Error:   "Insufficient balance",
			Details: map[string]string{"available": ibe.Available.StringFixed(2)},
		})
	case errors.Is(err, services.ErrCardNotFound):
		services.SendErrorResponse(w, "Card not found", http.StatusNotFound, nil)
	case errors.Is(err, services.ErrEntryNotFound):
		services.SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
	case errors.Is(err, services.ErrUnauthorized):
		services.SendErrorResponse(w, "Operation not allowed", http.StatusForbidden, nil)
	case errors.Is(err, services.ErrCardBlocked):
		services.SendErrorResponse(w, "Card is blocked", http.StatusForbidden, nil)
	case errors.Is(err, services.ErrAlreadyVoided):
		services.SendErrorResponse(w, "Sale already voided", http.StatusConflict, nil)
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidItems),
		errors.Is(err, services.ErrWrongType),
		errors.Is(err, services.ErrCardMismatch),
		errors.Is(err, services.ErrInvalidEntryType):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrBusy):
		w.Header().Set("Retry-After", "1")
		services.SendErrorResponse(w, "Card is busy, retry", http.StatusServiceUnavailable, nil)
	default:
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("[HTTP] request failed")
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
