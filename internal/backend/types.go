package backend

// RecognitionRequest is the body of POST /api/face-recognition.
type RecognitionRequest struct {
	Image string `json:"image"`
	Mode  string `json:"mode"`
}

// RecognitionResponse is returned by POST /api/face-recognition.
type RecognitionResponse struct {
	Recognized   bool     `json:"recognized"`
	PersonID     int64    `json:"person_id,omitempty"`
	PersonName   string   `json:"person_name,omitempty"`
	Similarity   float64  `json:"similarity,omitempty"`
	AttendanceID int64    `json:"attendance_id,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	Message      string   `json:"message"`
	Timestamp    string   `json:"timestamp,omitempty"`
	Status       string   `json:"status,omitempty"`
	TotalHours   *float64 `json:"total_hours,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// DetectionRequest is the body of POST /api/face-detection.
type DetectionRequest struct {
	Image string `json:"image"`
}

// FaceArea is the bounding box of the largest detected face.
type FaceArea struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectionResponse is returned by POST /api/face-detection.
type DetectionResponse struct {
	FaceDetected bool      `json:"face_detected"`
	FaceCount    int       `json:"face_count"`
	FaceArea     *FaceArea `json:"face_area,omitempty"`
	Confidence   float64   `json:"confidence"`
	Error        string    `json:"error,omitempty"`
}

// Person holds the registration fields of a person.
type Person struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
	Position   string `json:"position,omitempty"`
	Status     string `json:"status,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// RegistrationRequest is the body of POST /api/persons.
type RegistrationRequest struct {
	Person
	FaceImage string `json:"face_image"`
}

// RegistrationResponse is returned by POST /api/persons.
type RegistrationResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	FaceQuality float64 `json:"face_quality"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	ArcFaceLoaded bool   `json:"arcface_loaded"`
}

// AttendanceRecord is a single row of GET /api/attendance.
type AttendanceRecord struct {
	ID              int64    `json:"id"`
	PersonID        int64    `json:"person_id"`
	PersonName      string   `json:"person_name"`
	Department      string   `json:"department,omitempty"`
	Position        string   `json:"position,omitempty"`
	Date            string   `json:"date,omitempty"`
	CheckInTime     string   `json:"check_in_time,omitempty"`
	CheckOutTime    string   `json:"check_out_time,omitempty"`
	Status          string   `json:"status"`
	TotalHours      *float64 `json:"total_hours,omitempty"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// PresentEmployee is a person currently checked in.
type PresentEmployee struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Department      string  `json:"department,omitempty"`
	Position        string  `json:"position,omitempty"`
	CheckInTime     string  `json:"check_in_time,omitempty"`
	CheckOutTime    string  `json:"check_out_time,omitempty"`
	Status          string  `json:"status"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// PresentResponse is returned by GET /api/attendance/present-today.
type PresentResponse struct {
	Date         string            `json:"date"`
	PresentCount int               `json:"present_count"`
	Employees    []PresentEmployee `json:"employees"`
}

// RecognitionLog is a single recognition attempt.
type RecognitionLog struct {
	ID               int64   `json:"id"`
	PersonID         *int64  `json:"person_id,omitempty"`
	PersonName       string  `json:"person_name,omitempty"`
	RecognitionTime  string  `json:"recognition_time"`
	ConfidenceScore  float64 `json:"confidence_score"`
	DetectionStatus  string  `json:"detection_status"`
	ProcessingTimeMS int     `json:"processing_time_ms,omitempty"`
}
