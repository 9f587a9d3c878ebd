package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/sirupsen/logrus"
)

const (
	// writeWait is how long to wait for a websocket write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize limits what clients may send; the feed is one-way
	maxMessageSize = 512

	// sseKeepalive is the idle period before an SSE comment is sent
	sseKeepalive = 15 * time.Second
)

// LiveHandler serves the live kiosk state and event feeds.
type LiveHandler struct {
	kiosk     *kiosk.Kiosk
	keepalive time.Duration
	upgrader  websocket.Upgrader
	log       *logrus.Entry
}

// NewLiveHandler creates a new live handler
func NewLiveHandler(k *kiosk.Kiosk) *LiveHandler {
	return &LiveHandler{
		kiosk:     k,
		keepalive: sseKeepalive,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: logrus.WithField("component", "live-feed"),
	}
}

// State returns the combined kiosk state.
func (h *LiveHandler) State(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.kiosk.State())
}

// Events streams kiosk events over SSE. Each connection first receives the
// latest event of every followed topic.
func (h *LiveHandler) Events(w http.ResponseWriter, r *http.Request) {
	sub := h.kiosk.Events.Subscribe(parseTopics(r)...)
	defer sub.Close()

	h.log.WithField("subscriber", sub.ID).Debug("SSE client connected")
	streamSSEEvents(w, r, sub, h.keepalive)
	h.log.WithField("subscriber", sub.ID).Debug("SSE client disconnected")
}

// WebSocket streams kiosk events as JSON messages.
func (h *LiveHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.kiosk.Events.Subscribe(parseTopics(r)...)
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		readPump(conn)
	}()

	h.log.WithField("subscriber", sub.ID).Debug("Websocket client connected")
	for {
		waitCtx, waitCancel := context.WithTimeout(ctx, pingPeriod)
		e, err := sub.Next(waitCtx)
		waitCancel()

		switch {
		case err == nil:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		default:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readPump reads until the connection fails, which is how client
// disconnects and pong responses are observed.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Attendance returns today's attendance. It is fetched from the backend
// when nothing was fetched yet or when refresh=true is given.
func (h *LiveHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	snap := h.kiosk.Live.Snapshot()
	if refresh || snap.RefreshedAt.IsZero() {
		if err := h.kiosk.Live.Refresh(r.Context()); err != nil {
			h.log.WithError(err).Warn("Attendance refresh failed")
			respondFailure(w, err)
			return
		}
		snap = h.kiosk.Live.Snapshot()
	}
	respondJSON(w, http.StatusOK, snap)
}
