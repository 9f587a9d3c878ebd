package recognition

import (
	"context"
	"errors"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/sirupsen/logrus"
)

// Recognizer submits a frame and always returns an Outcome.
type Recognizer interface {
	Recognize(ctx context.Context, frame capture.Frame, mode Mode) Outcome
}

// Backend is the subset of the backend client used for recognition.
type Backend interface {
	Recognize(ctx context.Context, image, mode string) (*backend.RecognitionResponse, error)
}

// Client is a stateless Recognizer backed by the remote service.
type Client struct {
	backend Backend
	timeout time.Duration
	now     func() time.Time
	log     *logrus.Entry
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds each recognition call. Zero disables the deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithClock overrides the timestamp source for outcomes.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a recognition client.
func NewClient(b Backend, opts ...ClientOption) *Client {
	c := &Client{
		backend: b,
		now:     time.Now,
		log:     logrus.WithField("component", "recognition"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Recognize submits frame in the given mode. Transport and service errors
// become TransportFailure; a request the backend rejects as unusable (no
// face, face too small) becomes NotRecognized with the backend's message.
func (c *Client) Recognize(ctx context.Context, frame capture.Frame, mode Mode) Outcome {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.backend.Recognize(ctx, frame.DataURL(), mode.String())
	at := c.now()
	if err != nil {
		var se *backend.StatusError
		// A 4xx means the service answered about this frame, so the
		// display shows its message instead of a service error.
		if errors.As(err, &se) && backend.IsClientError(err) {
			return Outcome{Kind: NotRecognized, Mode: mode, Message: se.ErrorMessage(), At: at}
		}
		c.log.WithError(err).Warn("Recognition request failed")
		return Outcome{Kind: TransportFailure, Mode: mode, Reason: reason(err), At: at}
	}

	if !resp.Recognized {
		msg := resp.Message
		if msg == "" {
			msg = resp.Error
		}
		return Outcome{Kind: NotRecognized, Mode: mode, Message: msg, Confidence: resp.Similarity, At: at}
	}

	// The backend echoes the mode it recorded; trust it over the request.
	if resp.Mode != "" {
		if m, err := ParseMode(resp.Mode); err == nil {
			mode = m
		}
	}
	return Outcome{
		Kind:         Recognized,
		Mode:         mode,
		SubjectID:    resp.PersonID,
		Name:         resp.PersonName,
		Confidence:   resp.Similarity,
		Status:       resp.Status,
		AttendanceID: resp.AttendanceID,
		Message:      resp.Message,
		At:           at,
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	default:
		return err.Error()
	}
}
