// Package webcam is the OpenCV-backed camera driver.
package webcam

import (
	"errors"
	"fmt"
	"image"
	"os"
	"syscall"

	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Device opens local cameras by index through gocv.
type Device struct {
	log *logrus.Entry
}

// New creates a webcam device.
func New() *Device {
	return &Device{log: logrus.WithField("component", "webcam")}
}

// Open implements capture.Device.
func (d *Device) Open(c capture.Constraints) (capture.Stream, error) {
	vc, err := gocv.OpenVideoCapture(c.Device)
	if err != nil {
		return nil, classify(c.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, classify(c.Device, errors.New("device could not be opened"))
	}

	if c.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}

	// An opened device that yields no frame is held by another process.
	probe := gocv.NewMat()
	defer probe.Close()
	if ok := vc.Read(&probe); !ok {
		vc.Close()
		return nil, &capture.DeviceError{Kind: capture.DeviceAlreadyInUse, Device: c.Device, Err: errors.New("device opened but not readable")}
	}

	d.log.Debugf("Opened camera %d at %.0fx%.0f", c.Device,
		vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight))
	return &stream{vc: vc, mat: gocv.NewMat()}, nil
}

// classify maps an open failure to a device error kind by inspecting the
// video4linux node.
func classify(device int, err error) *capture.DeviceError {
	path := fmt.Sprintf("/dev/video%d", device)
	if _, statErr := os.Stat(path); statErr == nil {
		if f, openErr := os.OpenFile(path, os.O_RDWR, 0); openErr != nil {
			switch {
			case errors.Is(openErr, os.ErrPermission):
				return &capture.DeviceError{Kind: capture.DevicePermissionDenied, Device: device, Err: err}
			case errors.Is(openErr, syscall.EBUSY):
				return &capture.DeviceError{Kind: capture.DeviceAlreadyInUse, Device: device, Err: err}
			}
		} else {
			f.Close()
		}
		return &capture.DeviceError{Kind: capture.DeviceOther, Device: device, Err: err}
	}
	return &capture.DeviceError{Kind: capture.DeviceNotFound, Device: device, Err: err}
}

// stream reads frames from an open VideoCapture. The capture package
// serializes Read and Close.
type stream struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Read implements capture.Stream.
func (s *stream) Read() (image.Image, bool) {
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, false
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, false
	}
	return img, true
}

// Close implements capture.Stream.
func (s *stream) Close() error {
	if err := s.mat.Close(); err != nil {
		return fmt.Errorf("could not release frame buffer: %w", err)
	}
	if err := s.vc.Close(); err != nil {
		return fmt.Errorf("could not close camera: %w", err)
	}
	return nil
}
