package kiosk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/broadcast"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/clock"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/countdown"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoImage is returned when registering without a captured or uploaded face.
	ErrNoImage = errors.New("no face image captured")
	// ErrInvalidImage is returned for uploads that are not a decodable image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrImageTooLarge is returned for uploads over the size limit.
	ErrImageTooLarge = errors.New("image too large")
	// ErrRejected is returned when the backend refuses the registration.
	ErrRejected = errors.New("registration rejected")
)

// Registrar stores a new person with their reference face.
type Registrar interface {
	RegisterPerson(ctx context.Context, person backend.Person, faceImage string) (*backend.RegistrationResponse, error)
}

// EnrollmentEvent is published on the enrollment topic.
type EnrollmentEvent struct {
	Session  string `json:"session"`
	Stage    string `json:"stage"`
	PersonID int64  `json:"person_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Enrollment stages.
const (
	StageStarted    = "started"
	StageCaptured   = "captured"
	StageUploaded   = "uploaded"
	StageStopped    = "stopped"
	StageRegistered = "registered"
)

// EnrollmentState is the observable state of the enrollment session.
type EnrollmentState struct {
	Active    bool            `json:"active"`
	Session   string          `json:"session,omitempty"`
	Countdown countdown.State `json:"countdown"`
	HasImage  bool            `json:"has_image"`
}

// Enrollment registers new people: it holds the camera, runs the
// auto-capture countdown, and submits the still to the backend.
type Enrollment struct {
	camera      *capture.Capture
	countdown   *countdown.Countdown
	registrar   Registrar
	broadcaster *broadcast.Broadcaster
	constraints capture.Constraints
	pause       func()
	log         *logrus.Entry

	mu      sync.Mutex
	session string
	upload  *capture.Frame
}

// EnrollmentConfig holds the enrollment session settings.
type EnrollmentConfig struct {
	Constraints capture.Constraints
	Countdown   countdown.Config
}

// NewEnrollment creates an inactive enrollment session. pause is called
// before the camera is taken so live scanning does not compete for it.
func NewEnrollment(camera *capture.Capture, detector recognition.PresenceDetector, registrar Registrar, b *broadcast.Broadcaster, clk clock.Clock, cfg EnrollmentConfig, pause func()) *Enrollment {
	e := &Enrollment{
		camera:      camera,
		registrar:   registrar,
		broadcaster: b,
		constraints: cfg.Constraints,
		pause:       pause,
		log:         logrus.WithField("component", "enrollment"),
	}
	if e.pause == nil {
		e.pause = func() {}
	}
	e.countdown = countdown.New(camera, detector, b,
		countdown.WithClock(clk),
		countdown.WithConfig(cfg.Countdown),
		countdown.WithCaptureFunc(e.captured),
	)
	return e
}

// Start acquires the camera and begins waiting for a face. Calling it
// again after a capture discards the still and retakes it.
func (e *Enrollment) Start() (string, error) {
	e.pause()
	if _, err := e.camera.Acquire(e.constraints); err != nil {
		return "", fmt.Errorf("start enrollment: %w", err)
	}

	e.mu.Lock()
	if e.session == "" {
		e.session = uuid.NewString()
	}
	e.upload = nil
	session := e.session
	e.mu.Unlock()

	e.countdown.Start()
	e.log.WithField("session", session).Info("Enrollment started")
	e.broadcaster.Publish(broadcast.TopicEnrollment, EnrollmentEvent{Session: session, Stage: StageStarted})
	return session, nil
}

// Stop ends the session and releases the camera. The captured image is
// kept until Reset or a successful registration.
func (e *Enrollment) Stop() {
	e.countdown.Stop()
	e.camera.Release()

	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session != "" {
		e.broadcaster.Publish(broadcast.TopicEnrollment, EnrollmentEvent{Session: session, Stage: StageStopped})
	}
}

// Reset stops the session and forgets the captured image.
func (e *Enrollment) Reset() {
	e.Stop()
	e.countdown.Reset()
	e.mu.Lock()
	e.session = ""
	e.upload = nil
	e.mu.Unlock()
}

// Active reports whether the countdown is sampling the camera.
func (e *Enrollment) Active() bool {
	return e.countdown.State().Sampling
}

// State returns the enrollment state.
func (e *Enrollment) State() EnrollmentState {
	cd := e.countdown.State()
	_, has := e.Image()
	e.mu.Lock()
	defer e.mu.Unlock()
	return EnrollmentState{
		Active:    cd.Sampling,
		Session:   e.session,
		Countdown: cd,
		HasImage:  has,
	}
}

// Image returns the face image to register: an upload takes precedence
// over the countdown still.
func (e *Enrollment) Image() (capture.Frame, bool) {
	e.mu.Lock()
	upload := e.upload
	e.mu.Unlock()
	if upload != nil {
		return *upload, true
	}
	return e.countdown.Still()
}

// UseImage replaces the captured still with an uploaded image. The image
// is re-encoded as JPEG without mirroring.
func (e *Enrollment) UseImage(data []byte, contentType string) error {
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("%w: content type %q", ErrInvalidImage, contentType)
	}
	if len(data) > constants.MaxUploadSize {
		return ErrImageTooLarge
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	encoded, w, h, err := capture.Encode(img, capture.Treatment{Quality: constants.EnrollmentJPEGQuality, MaxSize: constants.MaxImageSize})
	if err != nil {
		return fmt.Errorf("encode upload: %w", err)
	}
	frame := capture.Frame{Data: encoded, ContentType: "image/jpeg", Width: w, Height: h}

	e.countdown.Stop()
	e.camera.Release()

	e.mu.Lock()
	e.upload = &frame
	if e.session == "" {
		e.session = uuid.NewString()
	}
	session := e.session
	e.mu.Unlock()

	e.broadcaster.Publish(broadcast.TopicEnrollment, EnrollmentEvent{Session: session, Stage: StageUploaded})
	return nil
}

// Register validates form and submits it together with the face image.
func (e *Enrollment) Register(ctx context.Context, form PersonForm) (*backend.RegistrationResponse, error) {
	person, err := form.Validate()
	if err != nil {
		return nil, err
	}
	frame, ok := e.Image()
	if !ok {
		return nil, ErrNoImage
	}

	resp, err := e.registrar.RegisterPerson(ctx, person, frame.DataURL())
	if err != nil {
		var se *backend.StatusError
		if errors.As(err, &se) && se.Code < 500 {
			if msg := se.ErrorMessage(); msg != "" {
				return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
			}
		}
		return nil, fmt.Errorf("register person: %w", err)
	}

	e.mu.Lock()
	session := e.session
	e.session = ""
	e.upload = nil
	e.mu.Unlock()
	e.countdown.Reset()
	e.camera.Release()

	e.log.WithFields(logrus.Fields{"person": resp.ID, "name": resp.Name}).Info("Person registered")
	e.broadcaster.Publish(broadcast.TopicEnrollment, EnrollmentEvent{
		Session:  session,
		Stage:    StageRegistered,
		PersonID: resp.ID,
		Name:     resp.Name,
		Message:  resp.Message,
	})
	return resp, nil
}

func (e *Enrollment) captured(frame capture.Frame) {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	e.log.WithField("session", session).Infof("Face captured (%dx%d)", frame.Width, frame.Height)
	e.broadcaster.Publish(broadcast.TopicEnrollment, EnrollmentEvent{Session: session, Stage: StageCaptured})
}
