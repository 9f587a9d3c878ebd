package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
	"github.com/kozaktomas/attendance-kiosk/internal/scanner"
)

func TestControlHandler_CameraLifecycle(t *testing.T) {
	env := newTestKiosk(t, recognition.Outcome{})
	h := NewControlHandler(env.kiosk)

	rec := httptest.NewRecorder()
	h.StartCamera(rec, httptest.NewRequest(http.MethodPost, "/api/v1/camera/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var started CameraResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if started.Status != capture.StatusActive || started.Handle == "" || started.Width != 640 {
		t.Errorf("unexpected camera response %+v", started)
	}

	rec = httptest.NewRecorder()
	h.StopCamera(rec, httptest.NewRequest(http.MethodPost, "/api/v1/camera/stop", nil))
	var stopped map[string]any
	json.Unmarshal(rec.Body.Bytes(), &stopped)
	if stopped["status"] != "stopped" {
		t.Errorf("expected stopped, got %v", stopped)
	}
}

func TestControlHandler_StartCameraDeviceError(t *testing.T) {
	env := newTestKiosk(t, recognition.Outcome{})
	env.device.OpenError = &capture.DeviceError{Kind: capture.DevicePermissionDenied}
	h := NewControlHandler(env.kiosk)

	rec := httptest.NewRecorder()
	h.StartCamera(rec, httptest.NewRequest(http.MethodPost, "/api/v1/camera/start", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body errorResponse
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Kind != "permission_denied" || body.Error == "" {
		t.Errorf("unexpected error body %+v", body)
	}
}

func TestControlHandler_StartScanWithoutCamera(t *testing.T) {
	env := newTestKiosk(t, recognition.Outcome{})
	h := NewControlHandler(env.kiosk)

	rec := httptest.NewRecorder()
	h.StartScan(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scan/start", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestControlHandler_ScanLifecycle(t *testing.T) {
	env := newTestKiosk(t, recognition.Outcome{})
	h := NewControlHandler(env.kiosk)
	env.kiosk.Live.StartCamera()

	rec := httptest.NewRecorder()
	h.StartScan(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scan/start", nil))
	var resp ScanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp.Started || !resp.State.Running || resp.State.Interval != 2*time.Second {
		t.Errorf("unexpected scan response %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.StartScan(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scan/start", nil))
	resp = ScanResponse{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Started {
		t.Error("expected second start to report already running")
	}

	rec = httptest.NewRecorder()
	h.StopScan(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scan/stop", nil))
	resp = ScanResponse{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.State.Running {
		t.Error("expected scanning stopped")
	}
	if !env.kiosk.Camera.Active() {
		t.Error("expected camera to stay on")
	}
}

func TestControlHandler_Capture(t *testing.T) {
	env := newTestKiosk(t, recognition.Outcome{Kind: recognition.Recognized, SubjectID: 7, Name: "Jana", Confidence: 0.92})
	h := NewControlHandler(env.kiosk)
	env.kiosk.Live.StartCamera()

	rec := httptest.NewRecorder()
	h.Capture(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scan/capture", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["kind"] != "recognized" || out["name"] != "Jana" || out["mode"] != "check_in" {
		t.Errorf("unexpected outcome %v", out)
	}
}

func TestControlHandler_CaptureNoFrame(t *testing.T) {
	env := newTestKiosk(t, recognition.Outcome{})
	h := NewControlHandler(env.kiosk)
	env.kiosk.Live.StartCamera()
	env.device.SetReady(false)

	rec := httptest.NewRecorder()
	h.Capture(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scan/capture", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestControlHandler_SetMode(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		token      string
		wantStatus int
		wantMode   recognition.Mode
	}{
		{"admitted", `{"mode":"check_out"}`, testToken, http.StatusOK, recognition.CheckOut},
		{"short form", `{"mode":"out"}`, testToken, http.StatusOK, recognition.CheckOut},
		{"no token", `{"mode":"check_out"}`, "", http.StatusForbidden, recognition.CheckIn},
		{"wrong token", `{"mode":"check_out"}`, "nope", http.StatusForbidden, recognition.CheckIn},
		{"invalid mode", `{"mode":"lunch"}`, testToken, http.StatusBadRequest, recognition.CheckIn},
		{"invalid json", `{`, testToken, http.StatusBadRequest, recognition.CheckIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestKiosk(t, recognition.Outcome{})
			h := NewControlHandler(env.kiosk)

			rec := httptest.NewRecorder()
			h.SetMode(rec, jsonRequest(http.MethodPut, "/api/v1/mode", tt.body, tt.token))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if got := env.kiosk.Live.Mode(); got != tt.wantMode {
				t.Errorf("expected mode %v, got %v", tt.wantMode, got)
			}
			if rec.Code == http.StatusOK {
				var st scanner.State
				json.Unmarshal(rec.Body.Bytes(), &st)
				if st.Mode != tt.wantMode {
					t.Errorf("expected mode %v in response, got %v", tt.wantMode, st.Mode)
				}
			}
		})
	}
}
