package kiosk

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance-kiosk/internal/clock"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
)

// Gate decides whether an operator may perform an admin action such as
// switching the recognition mode.
type Gate interface {
	Admit(token string) bool
}

// AdminGate admits the shared secret and session tokens issued by Login.
// A session expires after the grant duration. An empty token is never
// admitted.
type AdminGate struct {
	secret []byte
	grant  time.Duration
	clock  clock.Clock

	mu       sync.Mutex
	sessions map[string]time.Time
}

// NewAdminGate creates a gate for secret. An empty secret denies everything.
func NewAdminGate(secret string, clk clock.Clock) *AdminGate {
	if clk == nil {
		clk = clock.Real{}
	}
	return &AdminGate{
		secret:   []byte(secret),
		grant:    constants.AdminGrantDuration,
		clock:    clk,
		sessions: make(map[string]time.Time),
	}
}

func (g *AdminGate) matchesSecret(token string) bool {
	return len(g.secret) > 0 && subtle.ConstantTimeCompare([]byte(token), g.secret) == 1
}

// Admit implements Gate.
func (g *AdminGate) Admit(token string) bool {
	if len(g.secret) == 0 || token == "" {
		return false
	}
	if g.matchesSecret(token) {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.liveLocked(token)
}

// Login exchanges the secret for a new session token and its expiry.
func (g *AdminGate) Login(secret string) (string, time.Time, error) {
	if !g.matchesSecret(secret) {
		return "", time.Time{}, ErrAccessDenied
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	for token, until := range g.sessions {
		if !now.Before(until) {
			delete(g.sessions, token)
		}
	}
	token := uuid.NewString()
	until := now.Add(g.grant)
	g.sessions[token] = until
	return token, until, nil
}

// GrantedUntil returns when the session expires, zero if token is not a
// live session.
func (g *AdminGate) GrantedUntil(token string) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.liveLocked(token) {
		return time.Time{}
	}
	return g.sessions[token]
}

// Revoke ends the session. Other sessions are unaffected.
func (g *AdminGate) Revoke(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, token)
}

func (g *AdminGate) liveLocked(token string) bool {
	until, ok := g.sessions[token]
	if !ok {
		return false
	}
	if !g.clock.Now().Before(until) {
		delete(g.sessions, token)
		return false
	}
	return true
}
