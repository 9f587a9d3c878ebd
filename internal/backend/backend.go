// Package backend is a client for the remote attendance backend. The
// backend owns face matching, person records, and attendance storage; the
// kiosk only submits images and reads back results.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the attendance backend's JSON API.
type Client struct {
	BaseURL   string
	parsedURL *url.URL
	http      *http.Client
	timeout   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the deadline applied to every request. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a client for the backend at rawURL (e.g. http://localhost:5000).
func New(rawURL string, opts ...Option) (*Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	apiURL := strings.TrimSuffix(rawURL, "/") + "/api"
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", rawURL)
	}

	c := &Client{BaseURL: apiURL, parsedURL: parsed, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveURL builds a full URL from the base API URL and the given endpoint.
// A query string on the endpoint (e.g. "attendance?date=2025-01-06") is kept.
func (c *Client) resolveURL(endpoint string) string {
	if pathPart, query, ok := strings.Cut(endpoint, "?"); ok {
		result := c.parsedURL.JoinPath(pathPart)
		result.RawQuery = query
		return result.String()
	}
	return c.parsedURL.JoinPath(endpoint).String()
}

// Recognize submits an image for identification and, on a match, records
// attendance in the given mode ("check_in" or "check_out").
func (c *Client) Recognize(ctx context.Context, image, mode string) (*RecognitionResponse, error) {
	resp, err := doPostJSON[RecognitionResponse](ctx, c, "face-recognition", RecognitionRequest{Image: image, Mode: mode})
	if err != nil {
		return nil, fmt.Errorf("face recognition: %w", err)
	}
	return resp, nil
}

// DetectFace checks whether an image contains a face without identifying it.
func (c *Client) DetectFace(ctx context.Context, image string) (*DetectionResponse, error) {
	resp, err := doPostJSON[DetectionResponse](ctx, c, "face-detection", DetectionRequest{Image: image})
	if err != nil {
		return nil, fmt.Errorf("face detection: %w", err)
	}
	return resp, nil
}

// RegisterPerson creates a person with a reference face image.
func (c *Client) RegisterPerson(ctx context.Context, person Person, faceImage string) (*RegistrationResponse, error) {
	resp, err := doPostJSONCreated[RegistrationResponse](ctx, c, "persons", RegistrationRequest{Person: person, FaceImage: faceImage})
	if err != nil {
		return nil, fmt.Errorf("register person: %w", err)
	}
	return resp, nil
}

// Health returns the backend health status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := doGetJSON[HealthResponse](ctx, c, "health")
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return resp, nil
}

// Attendance returns attendance records for the given day.
func (c *Client) Attendance(ctx context.Context, day time.Time) ([]AttendanceRecord, error) {
	endpoint := "attendance?" + url.Values{"date": {day.Format(time.DateOnly)}}.Encode()
	resp, err := doGetJSON[[]AttendanceRecord](ctx, c, endpoint)
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return *resp, nil
}

// PresentToday returns the people currently checked in.
func (c *Client) PresentToday(ctx context.Context) (*PresentResponse, error) {
	resp, err := doGetJSON[PresentResponse](ctx, c, "attendance/present-today")
	if err != nil {
		return nil, fmt.Errorf("get present today: %w", err)
	}
	return resp, nil
}

// RecognitionLogs returns the most recent recognition attempts.
func (c *Client) RecognitionLogs(ctx context.Context) ([]RecognitionLog, error) {
	resp, err := doGetJSON[[]RecognitionLog](ctx, c, "recognition-logs")
	if err != nil {
		return nil, fmt.Errorf("get recognition logs: %w", err)
	}
	return *resp, nil
}
