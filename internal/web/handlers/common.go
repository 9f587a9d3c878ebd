package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorResponse is the body of failed kiosk operations.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

// statusForError maps kiosk and backend errors to an HTTP status and body.
func statusForError(err error) (int, errorResponse) {
	var de *capture.DeviceError
	if errors.As(err, &de) {
		return http.StatusServiceUnavailable, errorResponse{Error: de.Message(), Kind: de.Kind.String()}
	}
	var ve *kiosk.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, errorResponse{Error: ve.Message, Field: ve.Field}
	}
	var se *backend.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway, errorResponse{Error: se.ErrorMessage()}
	}

	switch {
	case errors.Is(err, kiosk.ErrAccessDenied):
		return http.StatusForbidden, errorResponse{Error: "admin access required"}
	case errors.Is(err, capture.ErrNotAcquired):
		return http.StatusConflict, errorResponse{Error: "camera is not started"}
	case errors.Is(err, kiosk.ErrCameraBusy):
		return http.StatusConflict, errorResponse{Error: err.Error()}
	case errors.Is(err, kiosk.ErrNoFrame):
		return http.StatusServiceUnavailable, errorResponse{Error: "camera has not produced a frame yet"}
	case errors.Is(err, kiosk.ErrNoImage):
		return http.StatusBadRequest, errorResponse{Error: "capture or upload a photo first", Field: "face_image"}
	case errors.Is(err, kiosk.ErrInvalidImage):
		return http.StatusBadRequest, errorResponse{Error: "please upload a valid image file"}
	case errors.Is(err, kiosk.ErrRejected):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, kiosk.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{Error: "image must be smaller than 5MB"}
	}
	return http.StatusBadGateway, errorResponse{Error: err.Error()}
}

// respondFailure sends the response for a failed kiosk operation.
func respondFailure(w http.ResponseWriter, err error) {
	status, body := statusForError(err)
	respondJSON(w, status, body)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
