package server

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("TOKEN_NOT_FOUND: Invalid session token")

// Session ties a seat in a room to the reconnect token issued for it and,
// while someone is connected, to that connection.
type Session struct {
	ID           string
	Token        string
	RoomCode     string
	Seat         int
	PlayerID     string
	ConnectionID string
}

type seatKey struct {
	room string
	seat int
}

// SessionRegistry owns every session. The token, connection and seat lookups
// are indices into the same map and are only ever updated together.
type SessionRegistry struct {
	sessions map[string]*Session // session ID -> session
	byToken  map[string]string
	byConn   map[string]string
	bySeat   map[seatKey]string
	mu       sync.RWMutex
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		byToken:  make(map[string]string),
		byConn:   make(map[string]string),
		bySeat:   make(map[seatKey]string),
	}
}

// Register issues a fresh token for the seat and binds connectionID to it.
func (r *SessionRegistry) Register(roomCode string, seat int, playerID, connectionID string) Session {
	return r.Restore(Session{
		ID:           uuid.NewString(),
		Token:        uuid.NewString(),
		RoomCode:     roomCode,
		Seat:         seat,
		PlayerID:     playerID,
		ConnectionID: connectionID,
	})
}

// Restore re-registers a known session, typically one loaded from storage
// with no connection attached.
func (r *SessionRegistry) Restore(s Session) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	stored := s
	r.sessions[s.ID] = &stored
	r.byToken[s.Token] = s.ID
	r.bySeat[seatKey{s.RoomCode, s.Seat}] = s.ID
	if s.ConnectionID != "" {
		r.byConn[s.ConnectionID] = s.ID
	}
	return stored
}

func (r *SessionRegistry) ByToken(token string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[token]
	if !ok {
		return Session{}, ErrInvalidToken
	}
	return *r.sessions[id], nil
}

func (r *SessionRegistry) ByConnection(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byConn[connectionID]
	if !ok {
		return Session{}, false
	}
	return *r.sessions[id], true
}

func (r *SessionRegistry) BySeat(roomCode string, seat int) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySeat[seatKey{roomCode, seat}]
	if !ok {
		return Session{}, false
	}
	return *r.sessions[id], true
}

// ConnectionForSeat returns the connection currently holding a seat, or "".
func (r *SessionRegistry) ConnectionForSeat(roomCode string, seat int) string {
	s, ok := r.BySeat(roomCode, seat)
	if !ok {
		return ""
	}
	return s.ConnectionID
}

// Attach moves the session to connectionID and returns the connection it
// replaced, if any.
func (r *SessionRegistry) Attach(sessionID, connectionID string) (previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ""
	}
	previous = s.ConnectionID
	if previous != "" {
		delete(r.byConn, previous)
	}
	s.ConnectionID = connectionID
	r.byConn[connectionID] = sessionID
	return previous
}

// Detach unbinds a connection but keeps the seat and token alive.
func (r *SessionRegistry) Detach(connectionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byConn[connectionID]
	if !ok {
		return Session{}, false
	}
	delete(r.byConn, connectionID)
	s := r.sessions[id]
	s.ConnectionID = ""
	return *s, true
}

// RemoveSeat forgets the seat's session and moves every higher seat in the
// room down by one. Tokens keep pointing at the same session.
func (r *SessionRegistry) RemoveSeat(roomCode string, seat int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.bySeat[seatKey{roomCode, seat}]; ok {
		r.deleteLocked(id)
	}

	var shifted []*Session
	for _, s := range r.sessions {
		if s.RoomCode == roomCode && s.Seat > seat {
			delete(r.bySeat, seatKey{roomCode, s.Seat})
			shifted = append(shifted, s)
		}
	}
	for _, s := range shifted {
		s.Seat--
		r.bySeat[seatKey{roomCode, s.Seat}] = s.ID
	}
}

// RemoveRoom forgets every session of the room.
func (r *SessionRegistry) RemoveRoom(roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		if s.RoomCode == roomCode {
			r.deleteLocked(id)
		}
	}
}

func (r *SessionRegistry) deleteLocked(id string) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	delete(r.byToken, s.Token)
	delete(r.bySeat, seatKey{s.RoomCode, s.Seat})
	if s.ConnectionID != "" {
		delete(r.byConn, s.ConnectionID)
	}
}

// ConnectedCount is the number of live connections mapped into the room.
func (r *SessionRegistry) ConnectedCount(roomCode string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.sessions {
		if s.RoomCode == roomCode && s.ConnectionID != "" {
			n++
		}
	}
	return n
}

func (r *SessionRegistry) RoomSessions(roomCode string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]Session, 0, 4)
	for _, s := range r.sessions {
		if s.RoomCode == roomCode {
			sessions = append(sessions, *s)
		}
	}
	return sessions
}
