package handler

import (
	"encoding/json"
	"errors"
	"livesession/internal/model"
	"livesession/internal/service"
	"livesession/internal/transport/rest/middleware"
	"net/http"
	"strconv"
)

// AuthHandler exposes the caller's identity as the API sees it
type AuthHandler struct{}

// NewAuthHandler creates a new auth handler
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me handles GET /v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

var denialStatus = map[model.DenialReason]int{
	model.ReasonSessionEnded:     http.StatusConflict,
	model.ReasonTooEarly:         http.StatusConflict,
	model.ReasonNotAssigned:      http.StatusForbidden,
	model.ReasonFull:             http.StatusConflict,
	model.ReasonPasswordRequired: http.StatusUnauthorized,
	model.ReasonWrongPassword:    http.StatusForbidden,
	model.ReasonLockedOut:        http.StatusLocked,
	model.ReasonPreviewExpired:   http.StatusForbidden,
	model.ReasonNotHost:          http.StatusForbidden,
}

func writeDenial(w http.ResponseWriter, d *model.Denial) {
	status, ok := denialStatus[d.Reason]
	if !ok {
		status = http.StatusForbidden
	}
	if d.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
	}
	writeJSON(w, status, d)
}

// writeServiceError maps gateway errors. Infrastructure failures are
// reported as retryable so clients know the request may be repeated.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrTransportTimeout), errors.Is(err, service.ErrPersistenceFailed):
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":     err.Error(),
			"retryable": true,
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
