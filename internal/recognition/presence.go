package recognition

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
)

// PresenceDetector reports whether a face is visible in a frame.
type PresenceDetector interface {
	Detect(ctx context.Context, frame capture.Frame) (bool, error)
}

// DetectorBackend is the subset of the backend client used for face detection.
type DetectorBackend interface {
	DetectFace(ctx context.Context, image string) (*backend.DetectionResponse, error)
}

// MinFaceRatio is the smallest face box, relative to the frame area, that
// counts as present. The backend rejects smaller faces at registration.
const MinFaceRatio = 0.05

// Detector is a PresenceDetector backed by the remote face detector.
type Detector struct {
	backend  DetectorBackend
	timeout  time.Duration
	minRatio float64
}

// NewDetector creates a detector. A zero timeout disables the deadline.
func NewDetector(b DetectorBackend, timeout time.Duration) *Detector {
	return &Detector{backend: b, timeout: timeout, minRatio: MinFaceRatio}
}

// Detect returns true when the backend finds a face large enough to enroll.
func (d *Detector) Detect(ctx context.Context, frame capture.Frame) (bool, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp, err := d.backend.DetectFace(ctx, frame.DataURL())
	if err != nil {
		return false, fmt.Errorf("detect face: %w", err)
	}
	if !resp.FaceDetected {
		return false, nil
	}
	// Older backends omit the box; trust the flag.
	if resp.FaceArea == nil || frame.Width <= 0 || frame.Height <= 0 {
		return true, nil
	}
	return FaceRatio(*resp.FaceArea, frame.Width, frame.Height) >= d.minRatio, nil
}

// FaceRatio returns the face box area relative to a width x height frame,
// clipped to the frame.
func FaceRatio(area backend.FaceArea, width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	x1 := max(area.X, 0)
	y1 := max(area.Y, 0)
	x2 := min(area.X+area.Width, width)
	y2 := min(area.Y+area.Height, height)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	return float64((x2-x1)*(y2-y1)) / float64(width*height)
}
