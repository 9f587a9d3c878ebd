// Package scanner runs the continuous recognition loop. Each tick grabs a
// frame, submits it, publishes the outcome, and only then schedules the
// next tick, so at most one recognition call is in flight per Scheduler.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/clock"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
	"github.com/sirupsen/logrus"
)

// FrameSource yields frames for recognition.
type FrameSource interface {
	GrabFrame() (capture.Frame, bool)
}

// Publisher receives outcomes. PublishResult is called with the scheduler
// lock held and must not call back into the Scheduler.
type Publisher interface {
	PublishResult(o recognition.Outcome)
}

// Config holds the loop timings.
type Config struct {
	// FrameRetry is the delay after a tick found no frame.
	FrameRetry time.Duration
	// RecognizedBackoff multiplies the interval after a Recognized outcome.
	RecognizedBackoff int
	// ModeSwitchPause separates stop and restart in ChangeMode.
	ModeSwitchPause time.Duration
}

// DefaultConfig returns the standard loop timings.
func DefaultConfig() Config {
	return Config{
		FrameRetry:        constants.FrameRetryDelay,
		RecognizedBackoff: constants.RecognizedBackoffFactor,
		ModeSwitchPause:   constants.ModeSwitchPause,
	}
}

// State is a snapshot of the scan loop.
type State struct {
	Running   bool             `json:"running"`
	Mode      recognition.Mode `json:"mode"`
	Interval  time.Duration    `json:"interval"`
	NextWake  *time.Time       `json:"next_wake,omitempty"`
	InFlight  bool             `json:"in_flight"`
	Switching bool             `json:"switching"`
}

// Scheduler is the scan loop. The zero value is not usable; use New.
type Scheduler struct {
	source     FrameSource
	recognizer recognition.Recognizer
	publisher  Publisher
	clock      clock.Clock
	cfg        Config
	log        *logrus.Entry

	mu       sync.Mutex
	running  bool
	gen      uint64
	mode     recognition.Mode
	interval time.Duration
	timer    clock.Timer
	wake     time.Time
	restart  clock.Timer
	cancel   context.CancelFunc
	inFlight bool

	// call serializes recognition requests, including a stale request
	// still unwinding after Stop and a Start that followed it.
	call sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for scheduling.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithConfig overrides the loop timings.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Scheduler) { s.log = log }
}

// New creates an idle Scheduler.
func New(source FrameSource, recognizer recognition.Recognizer, publisher Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:     source,
		recognizer: recognizer,
		publisher:  publisher,
		clock:      clock.Real{},
		cfg:        DefaultConfig(),
		log:        logrus.WithField("component", "scanner"),
		interval:   constants.DefaultScanInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.RecognizedBackoff < 1 {
		s.cfg.RecognizedBackoff = 1
	}
	return s
}

// Start begins scanning. It returns false without side effects when the
// loop is already running. A non-positive interval uses the default.
func (s *Scheduler) Start(interval time.Duration, mode recognition.Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(interval, mode)
}

func (s *Scheduler) startLocked(interval time.Duration, mode recognition.Mode) bool {
	if s.running {
		return false
	}
	if interval <= 0 {
		interval = constants.DefaultScanInterval
	}
	s.stopRestartLocked()
	s.gen++
	s.running = true
	s.interval = interval
	s.mode = mode
	s.log.WithFields(logrus.Fields{"interval": interval, "mode": mode.String()}).Info("Scanning started")
	s.scheduleLocked(s.gen, 0)
	return true
}

// Stop halts scanning. A pending tick is cancelled and the continuation of
// an in-flight request is discarded. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Info("Scanning stopped")
	}
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	s.gen++
	s.running = false
	s.stopRestartLocked()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.wake = time.Time{}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Scheduler) stopRestartLocked() {
	if s.restart != nil {
		s.restart.Stop()
		s.restart = nil
	}
}

// ChangeMode switches the recognition mode. A running loop is stopped and
// restarted with the new mode after a short pause; outcomes of the old
// mode that arrive meanwhile are discarded. A switch during the pause of
// an earlier switch replaces it. An idle loop only records the mode for
// the next Start.
func (s *Scheduler) ChangeMode(mode recognition.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasRunning := s.running || s.restart != nil
	interval := s.interval
	s.stopLocked()
	s.mode = mode
	if !wasRunning {
		return
	}

	gen := s.gen
	s.log.WithField("mode", mode.String()).Info("Switching mode")
	s.restart = s.clock.AfterFunc(s.cfg.ModeSwitchPause, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// Start or Stop during the pause takes precedence.
		if s.gen != gen || s.running {
			return
		}
		s.restart = nil
		s.startLocked(interval, mode)
	})
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Mode returns the current recognition mode.
func (s *Scheduler) Mode() recognition.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// State returns a snapshot of the loop.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Running:   s.running,
		Mode:      s.mode,
		Interval:  s.interval,
		InFlight:  s.inFlight,
		Switching: s.restart != nil,
	}
	if !s.wake.IsZero() {
		wake := s.wake
		st.NextWake = &wake
	}
	return st
}

// scheduleLocked arms the next tick for generation gen.
func (s *Scheduler) scheduleLocked(gen uint64, delay time.Duration) {
	s.wake = s.clock.Now().Add(delay)
	s.timer = s.clock.AfterFunc(delay, func() { s.tick(gen) })
}

// liveLocked reports whether generation gen is still the running loop.
func (s *Scheduler) liveLocked(gen uint64) bool {
	return s.running && s.gen == gen
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if !s.liveLocked(gen) {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.wake = time.Time{}
	mode := s.mode
	interval := s.interval
	s.mu.Unlock()

	frame, ok := s.source.GrabFrame()
	if !ok {
		s.mu.Lock()
		if s.liveLocked(gen) {
			s.scheduleLocked(gen, s.cfg.FrameRetry)
		}
		s.mu.Unlock()
		return
	}

	outcome, ok := s.submit(gen, frame, mode)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(gen) {
		s.log.WithField("kind", outcome.Kind.String()).Debug("Discarding result of stopped scan")
		return
	}

	s.publisher.PublishResult(outcome)

	delay := interval
	if outcome.Kind == recognition.Recognized {
		delay = interval * time.Duration(s.cfg.RecognizedBackoff)
	}
	s.scheduleLocked(gen, delay)
}

// submit runs one recognition call for generation gen. ok is false when the
// generation ended while waiting for a previous call to finish.
func (s *Scheduler) submit(gen uint64, frame capture.Frame, mode recognition.Mode) (recognition.Outcome, bool) {
	s.call.Lock()
	defer s.call.Unlock()

	s.mu.Lock()
	if !s.liveLocked(gen) {
		s.mu.Unlock()
		return recognition.Outcome{}, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.inFlight = true
	s.mu.Unlock()

	outcome := s.recognizer.Recognize(ctx, frame, mode)
	if outcome.Kind == recognition.TransportFailure {
		s.log.WithField("reason", outcome.Reason).Warn("Recognition failed, continuing")
	}

	s.mu.Lock()
	s.inFlight = false
	if s.gen == gen {
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel()

	return outcome, true
}

// RecognizeNow submits the current frame once, outside the loop, in the
// given mode and publishes the outcome. It waits for any in-flight loop
// request first. ok is false when no frame is available.
func (s *Scheduler) RecognizeNow(ctx context.Context, mode recognition.Mode) (recognition.Outcome, bool) {
	frame, ok := s.source.GrabFrame()
	if !ok {
		return recognition.Outcome{}, false
	}

	s.call.Lock()
	s.mu.Lock()
	s.inFlight = true
	s.mu.Unlock()

	outcome := s.recognizer.Recognize(ctx, frame, mode)

	s.mu.Lock()
	s.inFlight = false
	s.publisher.PublishResult(outcome)
	s.mu.Unlock()
	s.call.Unlock()

	return outcome, true
}
