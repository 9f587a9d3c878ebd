package kiosk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/broadcast"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/clock"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
	"github.com/kozaktomas/attendance-kiosk/internal/scanner"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAccessDenied is returned when the gate rejects an admin action.
	ErrAccessDenied = errors.New("access denied")
	// ErrNoFrame is returned when the camera has not produced a frame yet.
	ErrNoFrame = errors.New("no frame available")
	// ErrCameraBusy is returned when enrollment holds the camera.
	ErrCameraBusy = errors.New("camera is in use by enrollment")
)

// AttendanceSource reads the day's attendance from the backend.
type AttendanceSource interface {
	Attendance(ctx context.Context, day time.Time) ([]backend.AttendanceRecord, error)
	PresentToday(ctx context.Context) (*backend.PresentResponse, error)
}

// Snapshot is today's attendance as last fetched.
type Snapshot struct {
	Date         string                     `json:"date"`
	Records      []backend.AttendanceRecord `json:"records"`
	Present      []backend.PresentEmployee  `json:"present"`
	PresentCount int                        `json:"present_count"`
	RefreshedAt  time.Time                  `json:"refreshed_at"`
}

// LiveState is the observable state of the live session.
type LiveState struct {
	Camera  capture.Status       `json:"camera"`
	Scan    scanner.State        `json:"scan"`
	Latest  *recognition.Outcome `json:"latest,omitempty"`
	Present int                  `json:"present_count"`
}

// Live is the attendance scanning session: it owns the camera while
// scanning and refreshes today's attendance after each recognition.
type Live struct {
	camera         *capture.Capture
	scanner        *scanner.Scheduler
	broadcaster    *broadcast.Broadcaster
	attendance     AttendanceSource
	gate           Gate
	clock          clock.Clock
	constraints    capture.Constraints
	interval       time.Duration
	refreshTimeout time.Duration
	busy           func() bool
	log            *logrus.Entry

	mu             sync.Mutex
	snapshot       Snapshot
	refreshing     bool
	refreshPending bool
}

// LiveConfig holds the live session settings.
type LiveConfig struct {
	Constraints    capture.Constraints
	Interval       time.Duration
	Scan           scanner.Config
	RefreshTimeout time.Duration
}

// NewLive creates a live session on camera.
func NewLive(camera *capture.Capture, recognizer recognition.Recognizer, attendance AttendanceSource, gate Gate, b *broadcast.Broadcaster, clk clock.Clock, cfg LiveConfig) *Live {
	l := &Live{
		camera:         camera,
		broadcaster:    b,
		attendance:     attendance,
		gate:           gate,
		clock:          clk,
		constraints:    cfg.Constraints,
		interval:       cfg.Interval,
		refreshTimeout: cfg.RefreshTimeout,
		busy:           func() bool { return false },
		log:            logrus.WithField("component", "live"),
	}
	l.scanner = scanner.New(camera, recognizer, livePublisher{l},
		scanner.WithClock(clk),
		scanner.WithConfig(cfg.Scan),
	)
	return l
}

// livePublisher forwards outcomes to the broadcaster and schedules an
// attendance refresh after a recognition.
type livePublisher struct {
	l *Live
}

func (p livePublisher) PublishResult(o recognition.Outcome) {
	p.l.broadcaster.PublishResult(o)
	if o.Kind == recognition.Recognized {
		p.l.log.WithFields(logrus.Fields{"subject": o.SubjectID, "mode": o.Mode.String()}).Info(o.Summary())
		p.l.requestRefresh()
	}
}

// StartCamera acquires the camera.
func (l *Live) StartCamera() (capture.Handle, error) {
	if l.busy() {
		return capture.Handle{}, ErrCameraBusy
	}
	h, err := l.camera.Acquire(l.constraints)
	if err != nil {
		return capture.Handle{}, fmt.Errorf("start camera: %w", err)
	}
	return h, nil
}

// StopCamera stops scanning and releases the camera.
func (l *Live) StopCamera() {
	l.scanner.Stop()
	l.camera.Release()
}

// StartScanning starts the recognition loop in the current mode. It
// returns false if the loop was already running.
func (l *Live) StartScanning() (bool, error) {
	if l.busy() {
		return false, ErrCameraBusy
	}
	if !l.camera.Active() {
		return false, capture.ErrNotAcquired
	}
	return l.scanner.Start(l.interval, l.scanner.Mode()), nil
}

// StopScanning stops the recognition loop. The camera stays on.
func (l *Live) StopScanning() {
	l.scanner.Stop()
}

// SetMode switches between check-in and check-out if the gate admits token.
func (l *Live) SetMode(token string, mode recognition.Mode) error {
	if !l.gate.Admit(token) {
		l.log.Warn("Mode switch denied")
		return ErrAccessDenied
	}
	if l.scanner.Mode() == mode && !l.scanner.State().Switching {
		return nil
	}
	l.scanner.ChangeMode(mode)
	return nil
}

// Mode returns the current recognition mode.
func (l *Live) Mode() recognition.Mode {
	return l.scanner.Mode()
}

// ManualCapture recognizes the current frame once, outside the loop.
func (l *Live) ManualCapture(ctx context.Context) (recognition.Outcome, error) {
	if !l.camera.Active() {
		return recognition.Outcome{}, capture.ErrNotAcquired
	}
	out, ok := l.scanner.RecognizeNow(ctx, l.scanner.Mode())
	if !ok {
		return recognition.Outcome{}, ErrNoFrame
	}
	return out, nil
}

// State returns the live session state.
func (l *Live) State() LiveState {
	st := LiveState{
		Camera: l.camera.Status(),
		Scan:   l.scanner.State(),
	}
	if o, ok := l.broadcaster.LatestResult(); ok {
		st.Latest = &o
	}
	l.mu.Lock()
	st.Present = l.snapshot.PresentCount
	l.mu.Unlock()
	return st
}

// Snapshot returns the last fetched attendance.
func (l *Live) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot
}

// Refresh fetches today's records and the present set.
func (l *Live) Refresh(ctx context.Context) error {
	now := l.clock.Now()
	records, err := l.attendance.Attendance(ctx, now)
	if err != nil {
		return fmt.Errorf("refresh attendance: %w", err)
	}
	present, err := l.attendance.PresentToday(ctx)
	if err != nil {
		return fmt.Errorf("refresh present: %w", err)
	}

	snap := Snapshot{
		Date:         now.Format(time.DateOnly),
		Records:      records,
		Present:      present.Employees,
		PresentCount: present.PresentCount,
		RefreshedAt:  now,
	}
	l.mu.Lock()
	l.snapshot = snap
	l.mu.Unlock()

	l.broadcaster.Publish(broadcast.TopicAttendance, snap)
	return nil
}

// requestRefresh runs Refresh in the background. Requests arriving while a
// refresh runs collapse into one follow-up refresh.
func (l *Live) requestRefresh() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refreshing {
		l.refreshPending = true
		return
	}
	l.refreshing = true
	go l.refreshLoop()
}

func (l *Live) refreshLoop() {
	for {
		ctx := context.Background()
		var cancel context.CancelFunc = func() {}
		if l.refreshTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, l.refreshTimeout)
		}
		if err := l.Refresh(ctx); err != nil {
			l.log.WithError(err).Warn("Attendance refresh failed")
		}
		cancel()

		l.mu.Lock()
		if !l.refreshPending {
			l.refreshing = false
			l.mu.Unlock()
			return
		}
		l.refreshPending = false
		l.mu.Unlock()
	}
}
