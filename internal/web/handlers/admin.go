package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/kozaktomas/attendance-kiosk/internal/web/middleware"
)

// Backend is the part of the attendance backend served directly.
type Backend interface {
	Health(ctx context.Context) (*backend.HealthResponse, error)
	RecognitionLogs(ctx context.Context) ([]backend.RecognitionLog, error)
}

// sessionIssuer is implemented by gates that hand out session tokens.
type sessionIssuer interface {
	Login(secret string) (string, time.Time, error)
	GrantedUntil(token string) time.Time
	Revoke(token string)
}

// AdminHandler handles operator login and admin-only backend views.
type AdminHandler struct {
	gate    kiosk.Gate
	backend Backend
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(gate kiosk.Gate, b Backend) *AdminHandler {
	return &AdminHandler{gate: gate, backend: b}
}

type loginRequest struct {
	Token string `json:"token"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool       `json:"success"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Login exchanges the admin secret for a session token. The token is sent
// as X-Admin-Token on later requests until it expires or is logged out.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	issuer, ok := h.gate.(sessionIssuer)
	if !ok {
		if req.Token == "" || !h.gate.Admit(req.Token) {
			respondJSON(w, http.StatusUnauthorized, LoginResponse{Error: "invalid admin token"})
			return
		}
		respondJSON(w, http.StatusOK, LoginResponse{Success: true})
		return
	}

	token, until, err := issuer.Login(req.Token)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{Error: "invalid admin token"})
		return
	}
	respondJSON(w, http.StatusOK, LoginResponse{Success: true, Token: token, ExpiresAt: &until})
}

// Logout ends the caller's session.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if issuer, ok := h.gate.(sessionIssuer); ok {
		issuer.Revoke(middleware.GetAdminToken(r.Context()))
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Status reports whether the caller's session is live.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := LoginResponse{}
	if issuer, ok := h.gate.(sessionIssuer); ok {
		if until := issuer.GrantedUntil(middleware.GetAdminToken(r.Context())); !until.IsZero() {
			resp.Success = true
			resp.ExpiresAt = &until
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// RecognitionLogs lists recent recognition attempts from the backend.
func (h *AdminHandler) RecognitionLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.backend.RecognitionLogs(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// BackendHealth proxies the backend health check.
func (h *AdminHandler) BackendHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.backend.Health(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, health)
}
