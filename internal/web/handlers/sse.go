package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/broadcast"
)

// parseTopics reads the optional comma-separated "topics" query parameter.
// An empty result follows every topic.
func parseTopics(r *http.Request) []broadcast.Topic {
	var topics []broadcast.Topic
	for t := range strings.SplitSeq(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, broadcast.Topic(t))
		}
	}
	return topics
}

// setupSSEConnection sets up SSE headers and returns the flusher.
// On failure, writes an error response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return flusher, true
}

// sendSSEEvent writes e as a single SSE message named after its topic.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, e broadcast.Event) error {
	jsonData, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, _ = io.WriteString(w, "id: "+e.ID+"\n")
	_, _ = io.WriteString(w, "event: "+string(e.Topic)+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	if _, err := io.WriteString(w, "\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamSSEEvents streams the subscription until the client disconnects.
// A comment line is sent after every keepalive period without events.
func streamSSEEvents(w http.ResponseWriter, r *http.Request, sub *broadcast.Subscription, keepalive time.Duration) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	ctx := r.Context()
	for {
		waitCtx, cancel := context.WithTimeout(ctx, keepalive)
		e, err := sub.Next(waitCtx)
		cancel()

		switch {
		case err == nil:
			if err := sendSSEEvent(w, flusher, e); err != nil {
				return
			}
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		default:
			return
		}
	}
}
