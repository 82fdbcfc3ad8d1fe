package server

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxNameLength = 20

// RateLimiter keeps one token bucket per connection.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter // connectionID -> bucket
	mu       sync.Mutex
}

// NewRateLimiter allows perSecond messages per second with bursts of up to
// twice that. A non-positive perSecond disables limiting.
func NewRateLimiter(perSecond int) *RateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limit:    limit,
		burst:    max(2*perSecond, 1),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *RateLimiter) Allow(connectionID string) bool {
	r.mu.Lock()
	l, ok := r.limiters[connectionID]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[connectionID] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

func (r *RateLimiter) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, connectionID)
}

// ConnectionHealth tracks the last message time of each connection.
type ConnectionHealth struct {
	lastActivity map[string]time.Time
	now          func() time.Time
	mu           sync.RWMutex
}

func NewConnectionHealth(now func() time.Time) *ConnectionHealth {
	if now == nil {
		now = time.Now
	}
	return &ConnectionHealth{
		lastActivity: make(map[string]time.Time),
		now:          now,
	}
}

// UpdateActivity is called on every message received.
func (h *ConnectionHealth) UpdateActivity(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity[connectionID] = h.now()
}

// IsInactive reports false for connections that were never seen.
func (h *ConnectionHealth) IsInactive(connectionID string, timeout time.Duration) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	last, ok := h.lastActivity[connectionID]
	if !ok {
		return false
	}
	return h.now().Sub(last) > timeout
}

func (h *ConnectionHealth) GetInactiveConnections(timeout time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	inactive := make([]string, 0)
	for connID, last := range h.lastActivity {
		if now.Sub(last) > timeout {
			inactive = append(inactive, connID)
		}
	}
	return inactive
}

func (h *ConnectionHealth) RemoveConnection(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastActivity, connectionID)
}

var validMessageTypes = map[string]bool{
	"ping":              true,
	"create_room":       true,
	"join":              true,
	"reconnect":         true,
	"add_bot":           true,
	"start_game":        true,
	"draw_from_deck":    true,
	"draw_from_discard": true,
	"discard":           true,
	"move_tile":         true,
	"attempt_finish":    true,
	"show_indicator":    true,
	"sync":              true,
}

func ValidateMessageType(msgType string) error {
	if !validMessageTypes[msgType] {
		return fmt.Errorf("INVALID_MESSAGE_TYPE: Unknown message type '%s'", msgType)
	}
	return nil
}

// ValidateName accepts the empty name; the room picks a default for it.
func ValidateName(name string) error {
	if len([]rune(name)) > maxNameLength {
		return fmt.Errorf("NAME_INVALID: Name too long (max %d characters)", maxNameLength)
	}
	return nil
}
