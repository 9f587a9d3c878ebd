package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
	"github.com/kozaktomas/attendance-kiosk/internal/scanner"
	"github.com/kozaktomas/attendance-kiosk/internal/web/middleware"
)

// ControlHandler drives the camera and the scanning loop.
type ControlHandler struct {
	kiosk *kiosk.Kiosk
}

// NewControlHandler creates a new control handler
func NewControlHandler(k *kiosk.Kiosk) *ControlHandler {
	return &ControlHandler{kiosk: k}
}

// CameraResponse describes the camera after a control request.
type CameraResponse struct {
	Status     capture.Status `json:"status"`
	Handle     string         `json:"handle,omitempty"`
	Width      int            `json:"width,omitempty"`
	Height     int            `json:"height,omitempty"`
	AcquiredAt *time.Time     `json:"acquired_at,omitempty"`
}

// StartCamera acquires the camera.
func (h *ControlHandler) StartCamera(w http.ResponseWriter, r *http.Request) {
	handle, err := h.kiosk.Live.StartCamera()
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CameraResponse{
		Status:     h.kiosk.Camera.Status(),
		Handle:     handle.ID,
		Width:      handle.Constraints.Width,
		Height:     handle.Constraints.Height,
		AcquiredAt: &handle.AcquiredAt,
	})
}

// StopCamera stops scanning and releases the camera.
func (h *ControlHandler) StopCamera(w http.ResponseWriter, r *http.Request) {
	h.kiosk.Live.StopCamera()
	respondJSON(w, http.StatusOK, CameraResponse{Status: h.kiosk.Camera.Status()})
}

// ScanResponse reports the scan loop after a control request.
type ScanResponse struct {
	Started bool          `json:"started"`
	State   scanner.State `json:"state"`
}

// StartScan starts the recognition loop.
func (h *ControlHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	started, err := h.kiosk.Live.StartScanning()
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ScanResponse{Started: started, State: h.kiosk.Live.State().Scan})
}

// StopScan stops the recognition loop and keeps the camera on.
func (h *ControlHandler) StopScan(w http.ResponseWriter, r *http.Request) {
	h.kiosk.Live.StopScanning()
	respondJSON(w, http.StatusOK, ScanResponse{State: h.kiosk.Live.State().Scan})
}

// Capture recognizes the current frame once.
func (h *ControlHandler) Capture(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.kiosk.Live.ManualCapture(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

type modeRequest struct {
	Mode recognition.Mode `json:"mode"`
}

// SetMode switches between check-in and check-out. The admin token comes
// from the request context.
func (h *ControlHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	token := middleware.GetAdminToken(r.Context())
	if err := h.kiosk.Live.SetMode(token, req.Mode); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.kiosk.Live.State().Scan)
}
