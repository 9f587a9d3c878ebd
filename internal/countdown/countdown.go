// Package countdown implements enrollment auto-capture: once a face has
// been seen, a countdown runs while it stays in view and a single still is
// taken when it reaches zero.
package countdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/clock"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
	"github.com/sirupsen/logrus"
)

// Phase is the countdown state.
type Phase int

const (
	Idle Phase = iota
	FaceHeld
	Capturing
	Done
)

func (p Phase) String() string {
	switch p {
	case FaceHeld:
		return "face_held"
	case Capturing:
		return "capturing"
	case Done:
		return "done"
	default:
		return "idle"
	}
}

// MarshalText encodes the phase as its lowercase name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	for _, candidate := range []Phase{Idle, FaceHeld, Capturing, Done} {
		if candidate.String() == string(b) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown countdown phase %q", b)
}

// State is the observable countdown state. Remaining is set in FaceHeld.
type State struct {
	Phase     Phase `json:"phase"`
	Remaining int   `json:"remaining,omitempty"`
	Sampling  bool  `json:"sampling"`
}

// Camera is the capture surface the countdown needs.
type Camera interface {
	Grab(t capture.Treatment) (capture.Frame, bool)
	Release()
}

// Publisher receives state transitions. It is called with the countdown
// lock held and must not call back into the Countdown.
type Publisher interface {
	PublishCountdown(s State)
}

// CaptureFunc receives the still taken when the countdown completes.
type CaptureFunc func(frame capture.Frame)

// Config holds the countdown timings.
type Config struct {
	// PresenceInterval is the period between presence samples.
	PresenceInterval time.Duration
	// Tick is the countdown step.
	Tick time.Duration
	// Start is the number of ticks from first presence to capture.
	Start int
	// Fallback treats a failed presence check as a face being present.
	Fallback bool
}

// DefaultConfig returns the standard countdown settings.
func DefaultConfig() Config {
	return Config{
		PresenceInterval: constants.PresencePollInterval,
		Tick:             constants.CountdownTick,
		Start:            constants.CountdownStart,
		Fallback:         true,
	}
}

// Countdown is the auto-capture state machine.
type Countdown struct {
	camera    Camera
	detector  recognition.PresenceDetector
	publisher Publisher
	onCapture CaptureFunc
	clock     clock.Clock
	cfg       Config
	log       *logrus.Entry

	mu        sync.Mutex
	gen       uint64
	sampling  bool
	detecting bool
	phase     Phase
	remaining int
	presence  clock.Timer
	tick      clock.Timer
	cancel    context.CancelFunc
	still     *capture.Frame
}

// Option configures a Countdown.
type Option func(*Countdown)

// WithClock sets the clock used for both timers.
func WithClock(c clock.Clock) Option {
	return func(cd *Countdown) { cd.clock = c }
}

// WithConfig overrides the countdown settings.
func WithConfig(cfg Config) Option {
	return func(cd *Countdown) { cd.cfg = cfg }
}

// WithCaptureFunc registers a callback for the captured still. It runs
// without the countdown lock held.
func WithCaptureFunc(f CaptureFunc) Option {
	return func(cd *Countdown) { cd.onCapture = f }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(cd *Countdown) { cd.log = log }
}

// New creates an idle Countdown.
func New(camera Camera, detector recognition.PresenceDetector, publisher Publisher, opts ...Option) *Countdown {
	cd := &Countdown{
		camera:    camera,
		detector:  detector,
		publisher: publisher,
		clock:     clock.Real{},
		cfg:       DefaultConfig(),
		log:       logrus.WithField("component", "countdown"),
	}
	for _, opt := range opts {
		opt(cd)
	}
	if cd.cfg.Start < 1 {
		cd.cfg.Start = 1
	}
	return cd
}

// Start begins presence sampling from Idle. It is a no-op while sampling
// is already running. Starting after Done resets the machine for a retake.
func (cd *Countdown) Start() bool {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if cd.sampling {
		return false
	}
	cd.gen++
	cd.sampling = true
	cd.phase = Idle
	cd.remaining = 0
	cd.still = nil
	cd.log.Info("Waiting for a face")
	cd.publishLocked()
	cd.schedulePresenceLocked(cd.gen)
	return true
}

// Stop cancels both timers and discards any in-flight presence check.
// The phase returns to Idle unless a still was already taken. Stop is
// idempotent.
func (cd *Countdown) Stop() {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.stopLocked()
	if cd.phase != Done {
		cd.phase = Idle
		cd.remaining = 0
	}
	cd.publishLocked()
}

// Reset stops the countdown and forgets the captured still.
func (cd *Countdown) Reset() {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.stopLocked()
	cd.phase = Idle
	cd.remaining = 0
	cd.still = nil
	cd.publishLocked()
}

func (cd *Countdown) stopLocked() {
	cd.gen++
	cd.sampling = false
	cd.stopPresenceLocked()
	cd.stopTickLocked()
	if cd.cancel != nil {
		cd.cancel()
		cd.cancel = nil
	}
}

func (cd *Countdown) stopPresenceLocked() {
	if cd.presence != nil {
		cd.presence.Stop()
		cd.presence = nil
	}
}

func (cd *Countdown) stopTickLocked() {
	if cd.tick != nil {
		cd.tick.Stop()
		cd.tick = nil
	}
}

// State returns the current state.
func (cd *Countdown) State() State {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.stateLocked()
}

// Still returns the captured still once the countdown is Done.
func (cd *Countdown) Still() (capture.Frame, bool) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if cd.still == nil {
		return capture.Frame{}, false
	}
	return *cd.still, true
}

func (cd *Countdown) stateLocked() State {
	s := State{Phase: cd.phase, Sampling: cd.sampling}
	if cd.phase == FaceHeld {
		s.Remaining = cd.remaining
	}
	return s
}

func (cd *Countdown) publishLocked() {
	if cd.publisher != nil {
		cd.publisher.PublishCountdown(cd.stateLocked())
	}
}

func (cd *Countdown) liveLocked(gen uint64) bool {
	return cd.sampling && cd.gen == gen
}

func (cd *Countdown) schedulePresenceLocked(gen uint64) {
	cd.presence = cd.clock.AfterFunc(cd.cfg.PresenceInterval, func() { cd.sample(gen) })
}

// sample runs one presence check. Sampling pauses while capturing and
// while a previous check is still in flight.
func (cd *Countdown) sample(gen uint64) {
	cd.mu.Lock()
	if !cd.liveLocked(gen) || cd.phase == Capturing || cd.phase == Done {
		cd.mu.Unlock()
		return
	}
	cd.presence = nil
	if cd.detecting {
		cd.schedulePresenceLocked(gen)
		cd.mu.Unlock()
		return
	}
	cd.detecting = true
	ctx, cancel := context.WithCancel(context.Background())
	cd.cancel = cancel
	cd.mu.Unlock()

	present, ok := cd.detect(ctx)
	cancel()

	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.detecting = false
	if !cd.liveLocked(gen) {
		return
	}
	cd.cancel = nil
	if ok {
		cd.applyLocked(gen, present)
	}
	if cd.phase == Idle || cd.phase == FaceHeld {
		cd.schedulePresenceLocked(gen)
	}
}

// detect returns the presence signal. ok is false when the sample should
// be ignored.
func (cd *Countdown) detect(ctx context.Context) (present, ok bool) {
	frame, grabbed := cd.camera.Grab(capture.ForPresence)
	if !grabbed {
		return false, false
	}
	present, err := cd.detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return false, false
		}
		if cd.cfg.Fallback {
			cd.log.WithError(err).Warn("Face detection failed, falling back to timed capture")
			return true, true
		}
		cd.log.WithError(err).Warn("Face detection failed, ignoring sample")
		return false, false
	}
	return present, true
}

func (cd *Countdown) applyLocked(gen uint64, present bool) {
	switch {
	case cd.phase == Idle && present:
		cd.phase = FaceHeld
		cd.remaining = cd.cfg.Start
		cd.log.Infof("Face detected, capturing in %d", cd.remaining)
		cd.publishLocked()
		cd.tick = cd.clock.AfterFunc(cd.cfg.Tick, func() { cd.countdownTick(gen) })
	case cd.phase == FaceHeld && !present:
		cd.stopTickLocked()
		cd.phase = Idle
		cd.remaining = 0
		cd.log.Info("Face lost, countdown cancelled")
		cd.publishLocked()
	}
}

func (cd *Countdown) countdownTick(gen uint64) {
	cd.mu.Lock()
	if !cd.liveLocked(gen) || cd.phase != FaceHeld {
		cd.mu.Unlock()
		return
	}
	cd.tick = nil
	cd.remaining--
	if cd.remaining > 0 {
		cd.publishLocked()
		cd.tick = cd.clock.AfterFunc(cd.cfg.Tick, func() { cd.countdownTick(gen) })
		cd.mu.Unlock()
		return
	}

	cd.phase = Capturing
	cd.stopPresenceLocked()
	if cd.cancel != nil {
		cd.cancel()
		cd.cancel = nil
	}
	cd.publishLocked()
	cd.mu.Unlock()

	cd.capture(gen)
}

func (cd *Countdown) capture(gen uint64) {
	frame, ok := cd.camera.Grab(capture.ForEnrollment)

	cd.mu.Lock()
	if !cd.liveLocked(gen) {
		cd.mu.Unlock()
		return
	}
	if !ok {
		cd.log.Warn("No frame available for capture, waiting for a face again")
		cd.phase = Idle
		cd.publishLocked()
		cd.schedulePresenceLocked(gen)
		cd.mu.Unlock()
		return
	}

	cd.camera.Release()
	cd.still = &frame
	cd.phase = Done
	cd.sampling = false
	cd.gen++
	cd.log.WithField("bytes", len(frame.Data)).Info("Image captured")
	cd.publishLocked()
	onCapture := cd.onCapture
	cd.mu.Unlock()

	if onCapture != nil {
		onCapture(frame)
	}
}
