package web

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/attendance-kiosk/internal/web/handlers"
	"github.com/kozaktomas/attendance-kiosk/internal/web/middleware"
	"github.com/kozaktomas/attendance-kiosk/internal/web/static"
)

// requestTimeout bounds control requests. The live feeds are excluded.
const requestTimeout = time.Minute

func (s *Server) setupRoutes() {
	// Create handlers
	liveHandler := handlers.NewLiveHandler(s.kiosk)
	controlHandler := handlers.NewControlHandler(s.kiosk)
	enrollHandler := handlers.NewEnrollHandler(s.kiosk)
	adminHandler := handlers.NewAdminHandler(s.kiosk.Gate, s.backend)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Get("/api/v1/health/backend", adminHandler.BackendHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Long-lived event feeds
		r.Get("/live/events", liveHandler.Events)
		r.Get("/live/ws", liveHandler.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))
			r.Use(middleware.AdminToken)

			// Live state
			r.Get("/live/state", liveHandler.State)
			r.Get("/attendance/today", liveHandler.Attendance)

			// Camera
			r.Post("/camera/start", controlHandler.StartCamera)
			r.Post("/camera/stop", controlHandler.StopCamera)

			// Scanning
			r.Post("/scan/start", controlHandler.StartScan)
			r.Post("/scan/stop", controlHandler.StopScan)
			r.Post("/scan/capture", controlHandler.Capture)
			r.Put("/mode", controlHandler.SetMode)

			// Enrollment
			r.Get("/enroll", enrollHandler.State)
			r.Post("/enroll/start", enrollHandler.Start)
			r.Post("/enroll/stop", enrollHandler.Stop)
			r.Post("/enroll/reset", enrollHandler.Reset)
			r.Get("/enroll/image", enrollHandler.Image)
			r.Post("/enroll/image", enrollHandler.Upload)
			r.Post("/enroll/register", enrollHandler.Register)

			// Admin
			r.Post("/admin/login", adminHandler.Login)
			r.Post("/admin/logout", adminHandler.Logout)
			r.Get("/admin/status", adminHandler.Status)
			r.With(middleware.RequireAdmin(s.kiosk.Gate)).Get("/admin/recognition-logs", adminHandler.RecognitionLogs)
		})
	})

	// Display page
	s.router.Get("/*", s.serveDisplay)
}

// serveDisplay serves the embedded kiosk display.
func (s *Server) serveDisplay(w http.ResponseWriter, r *http.Request) {
	fs := static.GetFileSystem()
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	f, err := fs.Open(path)
	if err != nil {
		// Unknown paths fall back to the display itself
		f, err = fs.Open("/index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		path = "/index.html"
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(path, ".html"):
		contentType = "text/html; charset=utf-8"
	case strings.HasSuffix(path, ".css"):
		contentType = "text/css; charset=utf-8"
	case strings.HasSuffix(path, ".js"):
		contentType = "application/javascript; charset=utf-8"
	case strings.HasSuffix(path, ".svg"):
		contentType = "image/svg+xml"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}
