// Package recognition wraps the remote recognizer and face detector in
// calls that always resolve to a typed result.
package recognition

import (
	"fmt"
	"time"
)

// Mode tells the backend whether a recognized face checks in or out.
type Mode int

const (
	CheckIn Mode = iota
	CheckOut
)

func (m Mode) String() string {
	if m == CheckOut {
		return "check_out"
	}
	return "check_in"
}

// Label returns the human readable mode ("Check In").
func (m Mode) Label() string {
	return Humanize(m.String())
}

// ParseMode parses "check_in" or "check_out". Dashes and case are ignored.
func ParseMode(s string) (Mode, error) {
	switch normalizeKey(s) {
	case "check_in", "checkin", "in":
		return CheckIn, nil
	case "check_out", "checkout", "out":
		return CheckOut, nil
	default:
		return CheckIn, fmt.Errorf("invalid mode %q: must be check_in or check_out", s)
	}
}

// MarshalText encodes the mode as its wire name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a wire name.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Kind tags an Outcome.
type Kind int

const (
	NotRecognized Kind = iota
	Recognized
	TransportFailure
)

func (k Kind) String() string {
	switch k {
	case Recognized:
		return "recognized"
	case TransportFailure:
		return "transport_failure"
	default:
		return "not_recognized"
	}
}

// MarshalText encodes the kind as its lowercase name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a lowercase kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range []Kind{NotRecognized, Recognized, TransportFailure} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", b)
}

// Outcome is the result of one submitted frame. SubjectID, Name,
// Confidence and Status are set only for Recognized; Reason only for
// TransportFailure.
type Outcome struct {
	Kind         Kind      `json:"kind"`
	Mode         Mode      `json:"mode"`
	SubjectID    int64     `json:"subject_id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Confidence   float64   `json:"confidence,omitempty"`
	Status       string    `json:"status,omitempty"`
	AttendanceID int64     `json:"attendance_id,omitempty"`
	Message      string    `json:"message,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// IsRecognized reports whether the outcome identified someone.
func (o Outcome) IsRecognized() bool {
	return o.Kind == Recognized
}

// DisplayStatus returns the attendance status in title case, e.g.
// "early_leave" becomes "Early Leave". Empty for unrecognized outcomes.
func (o Outcome) DisplayStatus() string {
	if o.Kind != Recognized || o.Status == "" {
		return ""
	}
	return Humanize(o.Status)
}

// Summary is a one-line description suitable for logs and the terminal.
func (o Outcome) Summary() string {
	switch o.Kind {
	case Recognized:
		s := fmt.Sprintf("%s recognized (%.0f%%) - %s", o.Name, o.Confidence*100, o.Mode.Label())
		if st := o.DisplayStatus(); st != "" {
			s += " [" + st + "]"
		}
		return s
	case TransportFailure:
		return "Recognition service error: " + o.Reason
	default:
		if o.Message != "" {
			return o.Message
		}
		return "Face not recognized"
	}
}
