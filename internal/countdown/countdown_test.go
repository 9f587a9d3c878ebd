package countdown

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/clock"
)

type fakeCamera struct {
	mu       sync.Mutex
	noFrame  bool
	noStill  bool
	previews int
	stills   int
	releases int
}

func (c *fakeCamera) Grab(t capture.Treatment) (capture.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Mirror {
		if c.noStill {
			return capture.Frame{}, false
		}
		c.stills++
		return capture.Frame{Data: []byte("still"), ContentType: "image/jpeg", Width: 640, Height: 480}, true
	}
	if c.noFrame {
		return capture.Frame{}, false
	}
	c.previews++
	return capture.Frame{Data: []byte("preview"), ContentType: "image/jpeg", Width: 640, Height: 480}, true
}

func (c *fakeCamera) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
}

type sample struct {
	present bool
	err     error
}

// fakeDetector returns scripted samples, then fallback forever.
type fakeDetector struct {
	mu       sync.Mutex
	script   []sample
	fallback sample
	calls    int
	gate     chan struct{}
	entered  chan struct{}
}

func (d *fakeDetector) Detect(ctx context.Context, frame capture.Frame) (bool, error) {
	d.mu.Lock()
	idx := d.calls
	d.calls++
	s := d.fallback
	if idx < len(d.script) {
		s = d.script[idx]
	}
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		d.entered <- struct{}{}
		<-gate
	}
	return s.present, s.err
}

func (d *fakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) PublishCountdown(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) All() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

type fixture struct {
	clk      *clock.Fake
	cam      *fakeCamera
	det      *fakeDetector
	pub      *stateRecorder
	cd       *Countdown
	captures []time.Time
}

var testConfig = Config{PresenceInterval: time.Second, Tick: time.Second, Start: 3, Fallback: true}

func newFixture(cfg Config, script ...sample) *fixture {
	f := &fixture{
		clk: clock.NewFake(),
		cam: &fakeCamera{},
		det: &fakeDetector{script: script},
		pub: &stateRecorder{},
	}
	f.cd = New(f.cam, f.det, f.pub,
		WithClock(f.clk),
		WithConfig(cfg),
		WithCaptureFunc(func(capture.Frame) { f.captures = append(f.captures, f.clk.Now()) }),
	)
	return f
}

func present() sample { return sample{present: true} }
func absent() sample  { return sample{present: false} }

func TestSustainedPresence_CapturesOnce(t *testing.T) {
	f := newFixture(testConfig, present(), present(), present())
	f.cd.Start()

	f.clk.Advance(time.Second)
	firstSeen := f.clk.Now()
	if st := f.cd.State(); st.Phase != FaceHeld || st.Remaining != 3 {
		t.Fatalf("expected face_held(3), got %+v", st)
	}

	f.clk.Advance(3 * time.Second)

	if len(f.captures) != 1 {
		t.Fatalf("expected exactly one capture, got %d", len(f.captures))
	}
	if d := f.captures[0].Sub(firstSeen); d != 3*time.Second {
		t.Errorf("expected capture 3s after first presence, got %v", d)
	}
	if f.det.Calls() != 3 {
		t.Errorf("expected 3 presence samples, got %d", f.det.Calls())
	}
	if f.cam.stills != 1 {
		t.Errorf("expected one still grab, got %d", f.cam.stills)
	}
	if f.cam.releases != 1 {
		t.Errorf("expected camera released once, got %d", f.cam.releases)
	}
	if st := f.cd.State(); st.Phase != Done || st.Sampling {
		t.Errorf("expected done and not sampling, got %+v", st)
	}
	if still, ok := f.cd.Still(); !ok || string(still.Data) != "still" {
		t.Errorf("expected stored still, got %v %v", still, ok)
	}

	f.clk.Advance(10 * time.Second)
	if len(f.captures) != 1 {
		t.Errorf("expected no further captures, got %d", len(f.captures))
	}
	if pending := f.clk.Pending(); len(pending) != 0 {
		t.Errorf("expected no timers after capture, got %v", pending)
	}
}

func TestPublishedStates(t *testing.T) {
	f := newFixture(testConfig, present(), present(), present())
	f.cd.Start()
	f.clk.Advance(4 * time.Second)

	var got []State
	for _, s := range f.pub.All() {
		got = append(got, State{Phase: s.Phase, Remaining: s.Remaining})
	}
	want := []State{
		{Phase: Idle},
		{Phase: FaceHeld, Remaining: 3},
		{Phase: FaceHeld, Remaining: 2},
		{Phase: FaceHeld, Remaining: 1},
		{Phase: Capturing},
		{Phase: Done},
	}
	if !slices.Equal(got, want) {
		t.Errorf("unexpected state sequence:\n got %+v\nwant %+v", got, want)
	}
}

func TestAbsentSample_ResetsToIdle(t *testing.T) {
	tests := []struct {
		name   string
		script []sample
	}{
		{"lost after first", []sample{present(), absent()}},
		{"lost after second", []sample{present(), present(), absent()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(testConfig, tt.script...)
			f.cd.Start()

			f.clk.Advance(time.Duration(len(tt.script)) * time.Second)

			if st := f.cd.State(); st.Phase != Idle {
				t.Fatalf("expected idle after face loss, got %+v", st)
			}
			// Only the presence timer survives; the countdown timer is gone.
			if pending := f.clk.Pending(); !slices.Equal(pending, []time.Duration{time.Second}) {
				t.Errorf("expected only the presence timer, got %v", pending)
			}

			f.clk.Advance(10 * time.Second)
			if len(f.captures) != 0 {
				t.Errorf("expected no capture, got %d", len(f.captures))
			}
		})
	}
}

func TestFaceReturns_RestartsCountdown(t *testing.T) {
	f := newFixture(testConfig, present(), absent(), present(), present(), present())
	f.cd.Start()

	f.clk.Advance(2 * time.Second)
	if f.cd.State().Phase != Idle {
		t.Fatalf("expected idle, got %+v", f.cd.State())
	}

	f.clk.Advance(time.Second)
	if st := f.cd.State(); st.Phase != FaceHeld || st.Remaining != 3 {
		t.Fatalf("expected fresh face_held(3), got %+v", st)
	}

	f.clk.Advance(3 * time.Second)
	if len(f.captures) != 1 {
		t.Errorf("expected one capture, got %d", len(f.captures))
	}
}

func TestDetectorFailure_Fallback(t *testing.T) {
	f := newFixture(testConfig)
	f.det.fallback = sample{err: errors.New("connection refused")}
	f.cd.Start()

	f.clk.Advance(4 * time.Second)

	if len(f.captures) != 1 {
		t.Fatalf("expected timed capture on detector failure, got %d", len(f.captures))
	}
}

func TestDetectorFailure_FallbackDisabled(t *testing.T) {
	cfg := testConfig
	cfg.Fallback = false
	f := newFixture(cfg)
	f.det.fallback = sample{err: errors.New("connection refused")}
	f.cd.Start()

	f.clk.Advance(10 * time.Second)

	if len(f.captures) != 0 {
		t.Fatalf("expected no capture, got %d", len(f.captures))
	}
	if f.cd.State().Phase != Idle {
		t.Errorf("expected idle, got %+v", f.cd.State())
	}
	if f.det.Calls() != 10 {
		t.Errorf("expected sampling to continue, got %d calls", f.det.Calls())
	}
}

func TestDetectorFailure_FallbackDisabled_KeepsCountdown(t *testing.T) {
	cfg := testConfig
	cfg.Fallback = false
	f := newFixture(cfg, present(), sample{err: errors.New("timeout")}, present())
	f.cd.Start()

	f.clk.Advance(4 * time.Second)

	if len(f.captures) != 1 {
		t.Errorf("an ignored sample must not cancel the countdown, got %d captures", len(f.captures))
	}
}

func TestNoPreviewFrame_SkipsSample(t *testing.T) {
	f := newFixture(testConfig, present())
	f.cam.noFrame = true
	f.cd.Start()

	f.clk.Advance(3 * time.Second)

	if f.det.Calls() != 0 {
		t.Errorf("expected no detector calls without frames, got %d", f.det.Calls())
	}
	if f.cd.State().Phase != Idle {
		t.Errorf("expected idle, got %+v", f.cd.State())
	}
}

func TestNoStill_ReturnsToIdle(t *testing.T) {
	f := newFixture(testConfig, present(), present(), present())
	f.cam.noStill = true
	f.cd.Start()

	f.clk.Advance(4 * time.Second)

	if len(f.captures) != 0 {
		t.Fatalf("expected no capture, got %d", len(f.captures))
	}
	if st := f.cd.State(); st.Phase != Idle || !st.Sampling {
		t.Errorf("expected idle and sampling, got %+v", st)
	}
	if f.cam.releases != 0 {
		t.Errorf("camera must stay on after a failed capture, got %d releases", f.cam.releases)
	}
}

func TestStop_DuringCountdown(t *testing.T) {
	f := newFixture(testConfig, present(), present(), present())
	f.cd.Start()
	f.clk.Advance(2 * time.Second)

	f.cd.Stop()
	f.cd.Stop()

	if pending := f.clk.Pending(); len(pending) != 0 {
		t.Fatalf("expected all timers cancelled, got %v", pending)
	}
	f.clk.Advance(10 * time.Second)
	if len(f.captures) != 0 {
		t.Errorf("expected no capture after stop, got %d", len(f.captures))
	}
	if st := f.cd.State(); st.Phase != Idle || st.Sampling {
		t.Errorf("expected idle and not sampling, got %+v", st)
	}
}

func TestStop_DiscardsInFlightSample(t *testing.T) {
	f := newFixture(testConfig, present())
	f.det.gate = make(chan struct{})
	f.det.entered = make(chan struct{}, 1)
	f.cd.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.clk.Advance(time.Second)
	}()
	select {
	case <-f.det.entered:
	case <-time.After(time.Second):
		t.Fatal("detector was never called")
	}

	f.cd.Stop()
	close(f.det.gate)
	<-done

	if st := f.cd.State(); st.Phase != Idle {
		t.Errorf("late presence sample must be discarded, got %+v", st)
	}
	if pending := f.clk.Pending(); len(pending) != 0 {
		t.Errorf("expected no timers, got %v", pending)
	}
}

func TestStart_Idempotent(t *testing.T) {
	f := newFixture(testConfig)
	if !f.cd.Start() {
		t.Fatal("expected Start to begin sampling")
	}
	if f.cd.Start() {
		t.Error("expected second Start to be a no-op")
	}
	if pending := f.clk.Pending(); len(pending) != 1 {
		t.Errorf("expected a single presence timer, got %v", pending)
	}
}

func TestStart_AfterDone_Retake(t *testing.T) {
	f := newFixture(testConfig, present(), present(), present(), present(), present(), present())
	f.cd.Start()
	f.clk.Advance(4 * time.Second)
	if f.cd.State().Phase != Done {
		t.Fatalf("expected done, got %+v", f.cd.State())
	}

	if !f.cd.Start() {
		t.Fatal("expected retake to start")
	}
	if _, ok := f.cd.Still(); ok {
		t.Error("expected previous still to be cleared")
	}
	f.clk.Advance(4 * time.Second)

	if len(f.captures) != 2 {
		t.Errorf("expected a second capture, got %d", len(f.captures))
	}
}

func TestReset_ForgetsStill(t *testing.T) {
	f := newFixture(testConfig, present(), present(), present())
	f.cd.Start()
	f.clk.Advance(4 * time.Second)
	if _, ok := f.cd.Still(); !ok {
		t.Fatal("expected a still before reset")
	}

	f.cd.Reset()

	if _, ok := f.cd.Still(); ok {
		t.Error("expected still to be cleared")
	}
	if st := f.cd.State(); st.Phase != Idle || st.Sampling {
		t.Errorf("expected idle and not sampling, got %+v", st)
	}
	if pending := f.clk.Pending(); len(pending) != 0 {
		t.Errorf("expected no timers after reset, got %v", pending)
	}
}
