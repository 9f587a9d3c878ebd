// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Scanning constants
const (
	// DefaultScanInterval is the base delay between recognition attempts
	DefaultScanInterval = 2 * time.Second

	// FrameRetryDelay is the delay before retrying when the camera has no frame yet
	FrameRetryDelay = 500 * time.Millisecond

	// RecognizedBackoffFactor multiplies the base interval after a successful
	// recognition so the same presence event is not submitted twice
	RecognizedBackoffFactor = 3

	// ModeSwitchPause is how long the scanner stays idle while switching modes
	ModeSwitchPause = 500 * time.Millisecond
)

// Enrollment countdown constants
const (
	// PresencePollInterval is the period of face presence sampling
	PresencePollInterval = 500 * time.Millisecond

	// CountdownTick is the length of one countdown step
	CountdownTick = time.Second

	// CountdownStart is the number of ticks a face must be held before capture
	CountdownStart = 3
)

// Image encoding constants
const (
	// RecognitionJPEGQuality is used for frames submitted to the recognizer
	RecognitionJPEGQuality = 80

	// PresenceJPEGQuality is used for frames submitted to the presence detector
	PresenceJPEGQuality = 70

	// EnrollmentJPEGQuality is used for stored reference images
	EnrollmentJPEGQuality = 90

	// MaxImageSize is the maximum dimension (width or height) of an uploaded frame
	MaxImageSize = 1280

	// MaxUploadSize is the largest accepted enrollment image upload
	MaxUploadSize = 5 << 20
)

// Backend constants
const (
	// MaxErrorBodySize limits how much of an error response body is kept
	MaxErrorBodySize = 4 << 10
)

// Access gate constants
const (
	// AdminGrantDuration is how long an admin session token stays valid
	AdminGrantDuration = 30 * time.Minute
)
