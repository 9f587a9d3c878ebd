// Package capture owns the camera device: acquisition, release, and
// conversion of live frames into encoded stills.
package capture

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/sirupsen/logrus"
)

// Treatments used across the kiosk.
var (
	// ForRecognition encodes frames as displayed for the recognizer.
	ForRecognition = Treatment{Quality: constants.RecognitionJPEGQuality, MaxSize: constants.MaxImageSize}
	// ForPresence is a cheaper encoding for face presence checks.
	ForPresence = Treatment{Quality: constants.PresenceJPEGQuality, MaxSize: constants.MaxImageSize}
	// ForEnrollment flips the preview orientation so the stored reference
	// image matches the real world.
	ForEnrollment = Treatment{Quality: constants.EnrollmentJPEGQuality, Mirror: true}
)

// StatusFunc receives camera status transitions. It is called with the
// capture lock held and must not block or call back into the Capture.
type StatusFunc func(Status)

// Capture manages a single camera stream.
type Capture struct {
	device   Device
	onStatus StatusFunc
	now      func() time.Time
	log      *logrus.Entry

	mu     sync.Mutex
	stream Stream
	handle Handle
	status Status
}

// Option configures a Capture.
type Option func(*Capture)

// WithStatusFunc registers a callback for status transitions.
func WithStatusFunc(f StatusFunc) Option {
	return func(c *Capture) { c.onStatus = f }
}

// WithLogger sets the logger used by the capture.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Capture) { c.log = log }
}

// WithNow overrides the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(c *Capture) { c.now = now }
}

// New creates a Capture for the given device.
func New(device Device, opts ...Option) *Capture {
	c := &Capture{
		device: device,
		now:    time.Now,
		log:    logrus.WithField("component", "capture"),
		status: StatusStopped,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire opens the camera. Acquiring an already active capture returns
// the existing handle.
func (c *Capture) Acquire(constraints Constraints) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return c.handle, nil
	}

	stream, err := c.device.Open(constraints)
	if err != nil {
		de := AsDeviceError(constraints.Device, err)
		c.log.WithError(err).WithField("kind", de.Kind.String()).Error("Failed to acquire camera")
		c.setStatus(StatusError)
		return Handle{}, de
	}

	c.stream = stream
	c.handle = Handle{
		ID:          uuid.NewString(),
		Constraints: constraints,
		AcquiredAt:  c.now(),
	}
	c.log.WithField("handle", c.handle.ID).Infof("Camera %d acquired (%dx%d)", constraints.Device, constraints.Width, constraints.Height)
	c.setStatus(StatusActive)
	return c.handle, nil
}

// Release stops the stream. It is safe to call repeatedly and always
// leaves the status Stopped.
func (c *Capture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			c.log.WithError(err).Warn("Error closing camera stream")
		}
		c.log.WithField("handle", c.handle.ID).Info("Camera released")
		c.stream = nil
		c.handle = Handle{}
	}
	c.setStatus(StatusStopped)
}

// GrabFrame returns the current frame encoded for recognition. ok is false
// when no stream is active or the device has not produced a frame yet.
func (c *Capture) GrabFrame() (Frame, bool) {
	return c.Grab(ForRecognition)
}

// GrabStill returns the current frame encoded for storage.
func (c *Capture) GrabStill() (Frame, bool) {
	return c.Grab(ForEnrollment)
}

// Grab reads the current frame and encodes it with the given treatment.
func (c *Capture) Grab(t Treatment) (Frame, bool) {
	c.mu.Lock()
	if c.stream == nil {
		c.mu.Unlock()
		return Frame{}, false
	}
	img, ok := c.stream.Read()
	capturedAt := c.now()
	c.mu.Unlock()

	if !ok || img == nil || img.Bounds().Empty() {
		return Frame{}, false
	}

	data, w, h, err := Encode(img, t)
	if err != nil {
		c.log.WithError(err).Warn("Dropping frame")
		return Frame{}, false
	}
	return Frame{
		Data:        data,
		ContentType: "image/jpeg",
		Width:       w,
		Height:      h,
		CapturedAt:  capturedAt,
	}, true
}

// Status returns the current camera status.
func (c *Capture) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Active reports whether a stream is held.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

func (c *Capture) setStatus(s Status) {
	if c.status == s {
		return
	}
	c.status = s
	if c.onStatus != nil {
		c.onStatus(s)
	}
}
