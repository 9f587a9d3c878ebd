package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/capture/mock"
	"github.com/kozaktomas/attendance-kiosk/internal/clock"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
)

const testToken = "s3cret"

type stubServices struct{}

func (stubServices) Recognize(ctx context.Context, frame capture.Frame, mode recognition.Mode) recognition.Outcome {
	return recognition.Outcome{Kind: recognition.NotRecognized, Mode: mode}
}

func (stubServices) Detect(ctx context.Context, frame capture.Frame) (bool, error) {
	return true, nil
}

func (stubServices) Attendance(ctx context.Context, day time.Time) ([]backend.AttendanceRecord, error) {
	return nil, nil
}

func (stubServices) PresentToday(ctx context.Context) (*backend.PresentResponse, error) {
	return &backend.PresentResponse{}, nil
}

func (stubServices) RegisterPerson(ctx context.Context, person backend.Person, faceImage string) (*backend.RegistrationResponse, error) {
	return &backend.RegistrationResponse{ID: 1, Name: person.Name}, nil
}

func (stubServices) Health(ctx context.Context) (*backend.HealthResponse, error) {
	return nil, errors.New("backend offline")
}

func (stubServices) RecognitionLogs(ctx context.Context) ([]backend.RecognitionLog, error) {
	return []backend.RecognitionLog{}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Backend: config.BackendConfig{Timeout: time.Second},
		Camera:  config.CameraConfig{Width: 640, Height: 480},
		Scan: config.ScanConfig{
			Interval:          2 * time.Second,
			FrameRetry:        500 * time.Millisecond,
			RecognizedBackoff: 3,
			ModeSwitchPause:   500 * time.Millisecond,
		},
		Enrollment: config.EnrollmentConfig{
			PresenceInterval: time.Second,
			CountdownTick:    time.Second,
			CountdownStart:   3,
		},
		Admin: config.AdminConfig{Token: testToken},
		Web:   config.WebConfig{Host: "127.0.0.1", Port: 0},
	}
	svc := stubServices{}
	k := kiosk.New(cfg, mock.NewDevice(), kiosk.Services{
		Recognizer: svc,
		Detector:   svc,
		Attendance: svc,
		Registrar:  svc,
	}, kiosk.WithClock(clock.NewFake()))
	t.Cleanup(k.Close)
	return NewServer(cfg, k, svc)
}

func serve(s *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = serve(s, http.MethodGet, "/api/v1/health/backend", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for offline backend, got %d", rec.Code)
	}
}

func TestServer_DisplayPage(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/", "/some/client/route"} {
		rec := serve(s, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s: expected html, got %s", path, ct)
		}
	}

	rec := serve(s, http.MethodGet, "/app.js", "", nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/javascript") {
		t.Errorf("expected javascript, got %s", ct)
	}
	if rec.Header().Get("X-Frame-Options") == "" {
		t.Error("expected security headers on the display page")
	}
}

func TestServer_SetModeWithHeaderToken(t *testing.T) {
	s := newTestServer(t)
	header := http.Header{"Content-Type": {"application/json"}}

	rec := serve(s, http.MethodPut, "/api/v1/mode", `{"mode":"check_out"}`, header)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", rec.Code)
	}

	header.Set("X-Admin-Token", testToken)
	rec = serve(s, http.MethodPut, "/api/v1/mode", `{"mode":"check_out"}`, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(s, http.MethodGet, "/api/v1/live/state", "", nil)
	var st struct {
		Scan struct {
			Mode string `json:"mode"`
		} `json:"scan"`
	}
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Scan.Mode != "check_out" {
		t.Errorf("expected check_out mode, got %q", st.Scan.Mode)
	}
}

func TestServer_LoginSessionIsPerClient(t *testing.T) {
	s := newTestServer(t)
	header := http.Header{"Content-Type": {"application/json"}}

	rec := serve(s, http.MethodPost, "/api/v1/admin/login", `{"token":"s3cret"}`, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var login struct {
		Token string `json:"token"`
	}
	json.Unmarshal(rec.Body.Bytes(), &login)
	if login.Token == "" {
		t.Fatal("expected a session token")
	}

	rec = serve(s, http.MethodPut, "/api/v1/mode", `{"mode":"check_out"}`, header)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a client without a token, got %d", rec.Code)
	}
	rec = serve(s, http.MethodGet, "/api/v1/admin/recognition-logs", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for logs without a token, got %d", rec.Code)
	}

	header.Set("X-Admin-Token", login.Token)
	rec = serve(s, http.MethodPut, "/api/v1/mode", `{"mode":"check_out"}`, header)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with the session token, got %d", rec.Code)
	}
}

func TestServer_RecognitionLogsRequireAdmin(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodGet, "/api/v1/admin/recognition-logs", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	rec = serve(s, http.MethodGet, "/api/v1/admin/recognition-logs", "", http.Header{"Authorization": {"Bearer " + testToken}})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestServer_CameraRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodPost, "/api/v1/scan/start", "", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 without camera, got %d", rec.Code)
	}

	rec = serve(s, http.MethodPost, "/api/v1/camera/start", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = serve(s, http.MethodPost, "/api/v1/scan/start", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
