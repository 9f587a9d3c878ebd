package handlers

import (
	"context"
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
	"github.com/kozaktomas/attendance-kiosk/internal/web/middleware"
)

const testToken = "s3cret"

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
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
			DetectorFallback: true,
		},
		Admin: config.AdminConfig{Token: testToken},
	}
}

type fakeRecognizer struct {
	outcome recognition.Outcome
}

func (f fakeRecognizer) Recognize(ctx context.Context, frame capture.Frame, mode recognition.Mode) recognition.Outcome {
	o := f.outcome
	o.Mode = mode
	return o
}

type fakeDetector struct{}

func (fakeDetector) Detect(ctx context.Context, frame capture.Frame) (bool, error) {
	return true, nil
}

type fakeAttendance struct {
	err error
}

func (f fakeAttendance) Attendance(ctx context.Context, day time.Time) ([]backend.AttendanceRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []backend.AttendanceRecord{{ID: 1, PersonID: 7, PersonName: "Jana", Status: "present"}}, nil
}

func (f fakeAttendance) PresentToday(ctx context.Context) (*backend.PresentResponse, error) {
	return &backend.PresentResponse{PresentCount: 1, Employees: []backend.PresentEmployee{{ID: 7, Name: "Jana"}}}, nil
}

type fakeRegistrar struct{}

func (fakeRegistrar) RegisterPerson(ctx context.Context, person backend.Person, faceImage string) (*backend.RegistrationResponse, error) {
	if person.Email == "taken@example.com" {
		return nil, &backend.StatusError{Code: http.StatusBadRequest, Body: `{"error":"Email already exists"}`}
	}
	return &backend.RegistrationResponse{ID: 12, Name: person.Name, Status: "success"}, nil
}

type fakeBackend struct {
	err error
}

func (f fakeBackend) Health(ctx context.Context) (*backend.HealthResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &backend.HealthResponse{Status: "healthy", ArcFaceLoaded: true}, nil
}

func (f fakeBackend) RecognitionLogs(ctx context.Context) ([]backend.RecognitionLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []backend.RecognitionLog{{ID: 1, PersonName: "Jana", ConfidenceScore: 0.92, DetectionStatus: "success"}}, nil
}

var errBackendDown = errors.New("connection refused")

type testEnv struct {
	clk    *clock.Fake
	device *mock.Device
	kiosk  *kiosk.Kiosk
}

// newTestKiosk builds a kiosk on a mock camera and in-memory backend.
func newTestKiosk(t *testing.T, outcome recognition.Outcome) *testEnv {
	t.Helper()
	env := &testEnv{clk: clock.NewFake(), device: mock.NewDevice()}
	env.kiosk = kiosk.New(testConfig(), env.device, kiosk.Services{
		Recognizer: fakeRecognizer{outcome: outcome},
		Detector:   fakeDetector{},
		Attendance: fakeAttendance{},
		Registrar:  fakeRegistrar{},
	}, kiosk.WithClock(env.clk))
	t.Cleanup(env.kiosk.Close)
	return env
}

// jsonRequest creates a request with a JSON body and the admin token, if any.
func jsonRequest(method, path, body, token string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req = req.WithContext(middleware.SetAdminTokenInContext(req.Context(), token))
	}
	return req
}
