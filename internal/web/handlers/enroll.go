package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/sirupsen/logrus"
)

// multipartOverhead is the allowance for form boundaries and headers on
// top of the image itself.
const multipartOverhead = 64 << 10

// EnrollHandler handles the enrollment endpoints.
type EnrollHandler struct {
	kiosk *kiosk.Kiosk
	log   *logrus.Entry
}

// NewEnrollHandler creates a new enroll handler
func NewEnrollHandler(k *kiosk.Kiosk) *EnrollHandler {
	return &EnrollHandler{kiosk: k, log: logrus.WithField("component", "enroll-api")}
}

// Start acquires the camera and starts the auto-capture countdown.
func (h *EnrollHandler) Start(w http.ResponseWriter, r *http.Request) {
	if _, err := h.kiosk.Enrollment.Start(); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.kiosk.Enrollment.State())
}

// Stop stops the countdown and releases the camera.
func (h *EnrollHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.kiosk.Enrollment.Stop()
	respondJSON(w, http.StatusOK, h.kiosk.Enrollment.State())
}

// Reset stops the session and discards the captured image.
func (h *EnrollHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.kiosk.Enrollment.Reset()
	respondJSON(w, http.StatusOK, h.kiosk.Enrollment.State())
}

// State returns the enrollment state.
func (h *EnrollHandler) State(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.kiosk.Enrollment.State())
}

// Image serves the captured or uploaded still.
func (h *EnrollHandler) Image(w http.ResponseWriter, r *http.Request) {
	frame, ok := h.kiosk.Enrollment.Image()
	if !ok {
		respondError(w, http.StatusNotFound, "no image captured")
		return
	}
	w.Header().Set("Content-Type", frame.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(frame.Data)
}

// Upload replaces the captured still with an uploaded image. It accepts
// a multipart form with an "image" file or a raw image body.
func (h *EnrollHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize+multipartOverhead)

	var (
		data        []byte
		contentType string
		err         error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		data, contentType, err = readMultipartImage(r)
	} else {
		contentType = r.Header.Get("Content-Type")
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondFailure(w, kiosk.ErrImageTooLarge)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	if err := h.kiosk.Enrollment.UseImage(data, contentType); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.kiosk.Enrollment.State())
}

func readMultipartImage(r *http.Request) ([]byte, string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize+1))
	if err != nil {
		return nil, "", err
	}
	return data, header.Header.Get("Content-Type"), nil
}

// Register validates the form and registers the person with the still.
func (h *EnrollHandler) Register(w http.ResponseWriter, r *http.Request) {
	var form kiosk.PersonForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	resp, err := h.kiosk.Enrollment.Register(r.Context(), form)
	if err != nil {
		h.log.WithError(err).WithField("name", sanitizeForLog(form.Name)).Warn("Registration failed")
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}
