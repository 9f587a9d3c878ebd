package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"time"
)

// Status is the lifecycle state of the camera.
type Status int

const (
	StatusStopped Status = iota
	StatusActive
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusError:
		return "error"
	default:
		return "stopped"
	}
}

// MarshalText encodes the status as its lowercase name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = StatusActive
	case "error":
		*s = StatusError
	case "stopped":
		*s = StatusStopped
	default:
		return fmt.Errorf("unknown camera status %q", b)
	}
	return nil
}

// Constraints describe the requested video stream.
type Constraints struct {
	Device int
	Width  int
	Height int
}

// Device opens camera streams. Implementations return *DeviceError to
// classify failures; any other error is reported as DeviceOther.
type Device interface {
	Open(c Constraints) (Stream, error)
}

// Stream is a live camera stream.
type Stream interface {
	// Read returns the most recent frame. ok is false when the device has
	// not produced a frame yet.
	Read() (img image.Image, ok bool)
	Close() error
}

// Handle identifies the active stream of a Capture.
type Handle struct {
	ID          string
	Constraints Constraints
	AcquiredAt  time.Time
}

// Frame is an encoded still image. It is never retained by Capture after
// it has been returned.
type Frame struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	CapturedAt  time.Time
}

// DataURL returns the frame as a data URL suitable for JSON APIs.
func (f Frame) DataURL() string {
	return "data:" + f.ContentType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// Treatment controls how a raw frame is encoded.
type Treatment struct {
	Quality int  // JPEG quality 1-100
	Mirror  bool // flip horizontally before encoding
	MaxSize int  // longest edge in pixels, 0 keeps the original size
}

// DeviceErrorKind classifies camera acquisition failures.
type DeviceErrorKind int

const (
	DeviceOther DeviceErrorKind = iota
	DeviceNotFound
	DevicePermissionDenied
	DeviceAlreadyInUse
)

func (k DeviceErrorKind) String() string {
	switch k {
	case DeviceNotFound:
		return "not_found"
	case DevicePermissionDenied:
		return "permission_denied"
	case DeviceAlreadyInUse:
		return "already_in_use"
	default:
		return "other"
	}
}

// DeviceError is returned when the camera cannot be acquired.
type DeviceError struct {
	Kind   DeviceErrorKind
	Device int
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera %d: %s: %v", e.Device, e.Kind, e.Err)
	}
	return fmt.Sprintf("camera %d: %s", e.Device, e.Kind)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Message returns a user-facing explanation of the failure.
func (e *DeviceError) Message() string {
	switch e.Kind {
	case DeviceNotFound:
		return "Camera access failed: No camera found on this device."
	case DevicePermissionDenied:
		return "Camera access failed: Please allow camera permissions and try again."
	case DeviceAlreadyInUse:
		return "Camera access failed: Camera is already in use by another application."
	default:
		if e.Err != nil {
			return "Camera access failed: " + e.Err.Error()
		}
		return "Camera access failed."
	}
}

// ErrNotAcquired is returned by operations that need an active stream.
var ErrNotAcquired = errors.New("camera is not acquired")

// AsDeviceError classifies err, wrapping unknown errors as DeviceOther.
func AsDeviceError(device int, err error) *DeviceError {
	var de *DeviceError
	if errors.As(err, &de) {
		return de
	}
	return &DeviceError{Kind: DeviceOther, Device: device, Err: err}
}
