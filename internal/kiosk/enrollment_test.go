package kiosk

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/broadcast"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/capture/mock"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/countdown"
)

var validForm = PersonForm{Name: "  Jana   Nováková ", Email: "jana@example.com", Department: "R&D"}

// captureStill runs the countdown to completion.
func captureStill(t *testing.T, h *harness) {
	t.Helper()
	if _, err := h.k.Enrollment.Start(); err != nil {
		t.Fatalf("Enrollment.Start: %v", err)
	}
	h.clk.Advance(4 * time.Second)
	if st := h.k.Enrollment.State(); st.Countdown.Phase != countdown.Done {
		t.Fatalf("expected countdown done, got %+v", st.Countdown)
	}
}

func TestEnrollment_CaptureAndRegister(t *testing.T) {
	h := newHarness(t)
	sub := h.k.Events.Subscribe(broadcast.TopicEnrollment)
	defer sub.Close()

	captureStill(t, h)

	if h.k.Camera.Active() {
		t.Error("expected camera released after capture")
	}
	still, ok := h.k.Enrollment.Image()
	if !ok || still.ContentType != "image/jpeg" || len(still.Data) == 0 {
		t.Fatalf("expected captured still, got %v %v", still.ContentType, ok)
	}
	if e := nextEvent(t, sub); e.Data.(EnrollmentEvent).Stage != StageCaptured {
		t.Errorf("expected captured stage, got %+v", e.Data)
	}

	resp, err := h.k.Enrollment.Register(context.Background(), validForm)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.ID != 12 {
		t.Errorf("expected id 12, got %d", resp.ID)
	}
	if len(h.reg.persons) != 1 {
		t.Fatalf("expected one registration, got %d", len(h.reg.persons))
	}
	if p := h.reg.persons[0]; p.Name != "Jana Nováková" || p.Status != StatusActive {
		t.Errorf("expected cleaned person, got %+v", p)
	}
	if img := h.reg.images[0]; !strings.HasPrefix(img, "data:image/jpeg;base64,") {
		t.Errorf("expected jpeg data URL, got %.40s", img)
	}
	if img := h.reg.images[0]; img != still.DataURL() {
		t.Error("expected the captured still to be submitted")
	}

	if _, ok := h.k.Enrollment.Image(); ok {
		t.Error("expected image cleared after registration")
	}
	ev := nextEvent(t, sub).Data.(EnrollmentEvent)
	if ev.Stage != StageRegistered || ev.PersonID != 12 {
		t.Errorf("expected registered event, got %+v", ev)
	}
	if h.k.Enrollment.State().Session != "" {
		t.Error("expected session cleared after registration")
	}
}

func TestEnrollment_StartPausesScanning(t *testing.T) {
	h := newHarness(t)
	h.k.Live.StartCamera()
	h.k.Live.StartScanning()

	session, err := h.k.Enrollment.Start()
	if err != nil {
		t.Fatalf("Enrollment.Start: %v", err)
	}
	if session == "" {
		t.Error("expected a session id")
	}
	if h.k.Live.State().Scan.Running {
		t.Error("expected live scanning paused")
	}
	if h.dev.Opens() != 1 {
		t.Errorf("expected the camera to be shared, got %d opens", h.dev.Opens())
	}
	if !h.k.Enrollment.Active() {
		t.Error("expected enrollment active")
	}
	h.clk.Advance(10 * time.Second)
	if h.rec.Calls() != 0 {
		t.Errorf("expected no recognition during enrollment, got %d", h.rec.Calls())
	}
}

func TestEnrollment_StartCameraError(t *testing.T) {
	h := newHarness(t)
	h.dev.OpenError = &capture.DeviceError{Kind: capture.DevicePermissionDenied}

	_, err := h.k.Enrollment.Start()
	var de *capture.DeviceError
	if !errors.As(err, &de) || de.Kind != capture.DevicePermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if h.k.Enrollment.Active() {
		t.Error("expected enrollment inactive")
	}
}

func TestEnrollment_RegisterWithoutImage(t *testing.T) {
	h := newHarness(t)

	if _, err := h.k.Enrollment.Register(context.Background(), validForm); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
	if len(h.reg.persons) != 0 {
		t.Error("expected no registration")
	}
}

func TestEnrollment_RegisterInvalidForm(t *testing.T) {
	h := newHarness(t)
	captureStill(t, h)

	_, err := h.k.Enrollment.Register(context.Background(), PersonForm{Name: "Jana", Email: "not-an-email"})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}
	if len(h.reg.persons) != 0 {
		t.Error("expected no registration")
	}
	if _, ok := h.k.Enrollment.Image(); !ok {
		t.Error("expected still kept after validation failure")
	}
}

func TestEnrollment_RegisterRejected(t *testing.T) {
	h := newHarness(t)
	h.reg.err = &backend.StatusError{Code: 400, Body: `{"error":"Email already exists"}`}
	captureStill(t, h)

	_, err := h.k.Enrollment.Register(context.Background(), validForm)
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "Email already exists") {
		t.Fatalf("expected rejection with backend message, got %v", err)
	}
	if _, ok := h.k.Enrollment.Image(); !ok {
		t.Error("expected still kept for another attempt")
	}
}

func TestEnrollment_RegisterServerError(t *testing.T) {
	h := newHarness(t)
	h.reg.err = &backend.StatusError{Code: 503, Body: "unavailable"}
	captureStill(t, h)

	_, err := h.k.Enrollment.Register(context.Background(), validForm)
	var se *backend.StatusError
	if !errors.As(err, &se) || se.Code != 503 {
		t.Fatalf("expected wrapped status error, got %v", err)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, mock.Solid(w, h, color.RGBA{G: 200, A: 255})); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestEnrollment_UseImage(t *testing.T) {
	h := newHarness(t)
	h.k.Enrollment.Start()

	if err := h.k.Enrollment.UseImage(pngBytes(t, 80, 60), "image/png"); err != nil {
		t.Fatalf("UseImage: %v", err)
	}

	img, ok := h.k.Enrollment.Image()
	if !ok {
		t.Fatal("expected uploaded image")
	}
	if img.ContentType != "image/jpeg" || img.Width != 80 || img.Height != 60 {
		t.Errorf("expected re-encoded 80x60 jpeg, got %s %dx%d", img.ContentType, img.Width, img.Height)
	}
	if h.k.Enrollment.Active() || h.k.Camera.Active() {
		t.Error("expected upload to stop the countdown and release the camera")
	}

	if _, err := h.k.Enrollment.Register(context.Background(), validForm); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h.reg.images[0] != img.DataURL() {
		t.Error("expected the uploaded image to be submitted")
	}
}

func TestEnrollment_UseImageRejects(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		contentType string
		want        error
	}{
		{"not an image type", []byte("hello"), "text/plain", ErrInvalidImage},
		{"undecodable", []byte("not really a png"), "image/png", ErrInvalidImage},
		{"too large", make([]byte, constants.MaxUploadSize+1), "image/jpeg", ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if err := h.k.Enrollment.UseImage(tt.data, tt.contentType); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if _, ok := h.k.Enrollment.Image(); ok {
				t.Error("expected no image stored")
			}
		})
	}
}

func TestEnrollment_Retake(t *testing.T) {
	h := newHarness(t)
	captureStill(t, h)

	if _, err := h.k.Enrollment.Start(); err != nil {
		t.Fatalf("retake Start: %v", err)
	}
	if _, ok := h.k.Enrollment.Image(); ok {
		t.Error("expected previous still discarded on retake")
	}
	if !h.k.Camera.Active() {
		t.Error("expected camera reacquired for retake")
	}

	h.clk.Advance(4 * time.Second)
	if _, ok := h.k.Enrollment.Image(); !ok {
		t.Error("expected a new still")
	}
}

func TestEnrollment_StopAndReset(t *testing.T) {
	h := newHarness(t)
	captureStill(t, h)

	h.k.Enrollment.Stop()
	if _, ok := h.k.Enrollment.Image(); !ok {
		t.Error("expected still kept after stop")
	}

	h.k.Enrollment.Reset()
	if _, ok := h.k.Enrollment.Image(); ok {
		t.Error("expected still cleared after reset")
	}
	if st := h.k.Enrollment.State(); st.Session != "" || st.HasImage {
		t.Errorf("expected empty state after reset, got %+v", st)
	}
}

func TestEnrollment_StopDuringCountdown(t *testing.T) {
	h := newHarness(t)
	h.k.Enrollment.Start()
	h.clk.Advance(2 * time.Second)

	h.k.Enrollment.Stop()
	h.clk.Advance(10 * time.Second)

	if _, ok := h.k.Enrollment.Image(); ok {
		t.Error("expected no capture after stop")
	}
	if h.k.Camera.Active() {
		t.Error("expected camera released")
	}
}
