package kiosk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Person statuses accepted by the backend.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// PersonForm is the enrollment form as entered by the operator.
type PersonForm struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Position   string `json:"position"`
	Status     string `json:"status"`
	Notes      string `json:"notes"`
}

// ValidationError reports an invalid form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the form and returns the cleaned person record.
func (f PersonForm) Validate() (backend.Person, error) {
	p := backend.Person{
		Name:       recognition.CleanName(f.Name),
		Email:      strings.TrimSpace(f.Email),
		Phone:      strings.TrimSpace(f.Phone),
		Department: strings.TrimSpace(f.Department),
		Position:   strings.TrimSpace(f.Position),
		Status:     strings.ToLower(strings.TrimSpace(f.Status)),
		Notes:      strings.TrimSpace(f.Notes),
	}

	if p.Name == "" {
		return p, &ValidationError{Field: "name", Message: "Name is required."}
	}
	if p.Email == "" {
		return p, &ValidationError{Field: "email", Message: "Email is required."}
	}
	if !emailRegex.MatchString(p.Email) {
		return p, &ValidationError{Field: "email", Message: "Please enter a valid email address."}
	}
	switch p.Status {
	case "":
		p.Status = StatusActive
	case StatusActive, StatusInactive:
	default:
		return p, &ValidationError{Field: "status", Message: "Status must be active or inactive."}
	}
	return p, nil
}
