// Package kiosk assembles the attendance kiosk: one shared camera, the
// live scanning session, the enrollment session, and the event hub that
// feeds the display.
package kiosk

import (
	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/broadcast"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/clock"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/countdown"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
	"github.com/kozaktomas/attendance-kiosk/internal/scanner"
)

// Services are the backend collaborators of the kiosk.
type Services struct {
	Recognizer recognition.Recognizer
	Detector   recognition.PresenceDetector
	Attendance AttendanceSource
	Registrar  Registrar
}

// ServicesFromBackend wires all services to a single backend client.
func ServicesFromBackend(b *backend.Client, cfg *config.Config) Services {
	return Services{
		Recognizer: recognition.NewClient(b, recognition.WithTimeout(cfg.Backend.Timeout)),
		Detector:   recognition.NewDetector(b, cfg.Backend.Timeout),
		Attendance: b,
		Registrar:  b,
	}
}

// State is the combined kiosk state shown on the display.
type State struct {
	Camera     capture.Status       `json:"camera"`
	Scan       scanner.State        `json:"scan"`
	Latest     *recognition.Outcome `json:"latest,omitempty"`
	Present    int                  `json:"present_count"`
	Countdown  countdown.State      `json:"countdown"`
	Enrollment EnrollmentState      `json:"enrollment"`
}

// Kiosk owns the camera and both sessions that use it.
type Kiosk struct {
	Camera     *capture.Capture
	Events     *broadcast.Broadcaster
	Live       *Live
	Enrollment *Enrollment
	Gate       Gate
}

// Option configures a Kiosk.
type Option func(*options)

type options struct {
	clock clock.Clock
	gate  Gate
}

// WithClock sets the clock shared by all timers.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithGate replaces the admin gate built from the configured token.
func WithGate(g Gate) Option {
	return func(o *options) { o.gate = g }
}

// New assembles a kiosk around device.
func New(cfg *config.Config, device capture.Device, svc Services, opts ...Option) *Kiosk {
	o := options{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.gate == nil {
		o.gate = NewAdminGate(cfg.Admin.Token, o.clock)
	}

	events := broadcast.NewWithClock(o.clock.Now)
	camera := capture.New(device,
		capture.WithStatusFunc(events.PublishStatus),
		capture.WithNow(o.clock.Now),
	)
	constraints := capture.Constraints{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	}

	live := NewLive(camera, svc.Recognizer, svc.Attendance, o.gate, events, o.clock, LiveConfig{
		Constraints: constraints,
		Interval:    cfg.Scan.Interval,
		Scan: scanner.Config{
			FrameRetry:        cfg.Scan.FrameRetry,
			RecognizedBackoff: cfg.Scan.RecognizedBackoff,
			ModeSwitchPause:   cfg.Scan.ModeSwitchPause,
		},
		RefreshTimeout: cfg.Backend.Timeout,
	})
	enrollment := NewEnrollment(camera, svc.Detector, svc.Registrar, events, o.clock, EnrollmentConfig{
		Constraints: constraints,
		Countdown: countdown.Config{
			PresenceInterval: cfg.Enrollment.PresenceInterval,
			Tick:             cfg.Enrollment.CountdownTick,
			Start:            cfg.Enrollment.CountdownStart,
			Fallback:         cfg.Enrollment.DetectorFallback,
		},
	}, live.StopScanning)
	live.busy = enrollment.Active

	return &Kiosk{
		Camera:     camera,
		Events:     events,
		Live:       live,
		Enrollment: enrollment,
		Gate:       o.gate,
	}
}

// State returns the combined state.
func (k *Kiosk) State() State {
	ls := k.Live.State()
	es := k.Enrollment.State()
	return State{
		Camera:     ls.Camera,
		Scan:       ls.Scan,
		Latest:     ls.Latest,
		Present:    ls.Present,
		Countdown:  es.Countdown,
		Enrollment: es,
	}
}

// Close stops both sessions and releases the camera.
func (k *Kiosk) Close() {
	k.Enrollment.Stop()
	k.Live.StopCamera()
}
