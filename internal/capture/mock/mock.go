// Package mock provides an in-memory camera for testing.
package mock

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/kozaktomas/attendance-kiosk/internal/capture"
)

// Device is a fake capture.Device. Each Open returns a new Stream that
// serves Image until the device is told otherwise.
type Device struct {
	mu     sync.Mutex
	image  image.Image
	ready  bool
	open   int
	opens  int
	closes int

	// Error injection
	OpenError error
}

// NewDevice returns a ready device producing a small solid frame.
func NewDevice() *Device {
	return &Device{image: Solid(64, 48, color.RGBA{R: 200, G: 120, B: 80, A: 255}), ready: true}
}

// Open implements capture.Device.
func (d *Device) Open(c capture.Constraints) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	if d.open > 0 {
		return nil, &capture.DeviceError{Kind: capture.DeviceAlreadyInUse, Device: c.Device}
	}
	d.open++
	d.opens++
	return &Stream{device: d}, nil
}

// SetImage changes the frame served by open streams.
func (d *Device) SetImage(img image.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.image = img
}

// SetReady controls whether streams have produced their first frame.
func (d *Device) SetReady(ready bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = ready
}

// OpenStreams returns the number of streams not yet closed.
func (d *Device) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Opens returns how many times Open succeeded.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Closes returns how many streams were closed.
func (d *Device) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Stream is a fake capture.Stream.
type Stream struct {
	device *Device
	closed bool
}

// Read implements capture.Stream.
func (s *Stream) Read() (image.Image, bool) {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	if s.closed || !s.device.ready {
		return nil, false
	}
	return s.device.image, true
}

// Close implements capture.Stream.
func (s *Stream) Close() error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	if s.closed {
		return errors.New("stream already closed")
	}
	s.closed = true
	s.device.open--
	s.device.closes++
	return nil
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
