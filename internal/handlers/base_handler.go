package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kubeusers/backend/internal/models"
	"go.uber.org/zap"
)

// BaseHandler carries the response helpers shared by all handlers
type BaseHandler struct {
	Logger *zap.Logger
}

// RespondJSON sends a JSON response
func (h *BaseHandler) RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// RespondError sends an error JSON response
func (h *BaseHandler) RespondError(w http.ResponseWriter, status int, message string) {
	h.RespondJSON(w, status, map[string]string{"error": message})
}

// DecodeJSON reads a JSON body into dst and writes the error response itself on failure
func (h *BaseHandler) DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		h.RespondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, io.EOF):
		h.RespondError(w, http.StatusBadRequest, "Request body is required")
	default:
		h.RespondError(w, http.StatusBadRequest, "Invalid request body")
	}
	return false
}

// RespondServiceError maps service errors to status codes. Unknown errors are logged and
// reported as a generic internal error.
func (h *BaseHandler) RespondServiceError(w http.ResponseWriter, err error, msg string) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.RespondError(w, http.StatusBadRequest, validationErr.Message)
	case errors.Is(err, models.ErrDuplicateUsername):
		h.RespondError(w, http.StatusBadRequest, "Username already exists")
	case errors.Is(err, models.ErrDuplicateEmail):
		h.RespondError(w, http.StatusBadRequest, "Email already exists")
	case errors.Is(err, models.ErrInvalidCredentials):
		h.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, models.ErrUnauthenticated):
		h.RespondError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, models.ErrAccountDeactivated):
		h.RespondError(w, http.StatusForbidden, "Account is deactivated")
	case errors.Is(err, models.ErrForbidden):
		h.RespondError(w, http.StatusForbidden, "Insufficient permissions")
	case errors.Is(err, models.ErrAccountNotFound):
		h.RespondError(w, http.StatusNotFound, "User not found")
	default:
		h.Logger.Error(msg, zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
