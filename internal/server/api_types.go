package server

import "okey-server/internal/okey"

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// CREATE ROOM (create_room) / JOIN (join)
// ============================================================================
type CreateRoomRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

type JoinRoomResponse struct {
	RoomCode string `json:"roomCode"`
	Token    string `json:"token"`
	Seat     int    `json:"seat"`
	PlayerID string `json:"playerId"`
}

// ============================================================================
// RECONNECT (reconnect)
// ============================================================================
type ReconnectRequest struct {
	Token string `json:"token"`
}

type ReconnectResponse struct {
	RoomCode string `json:"roomCode"`
	Seat     int    `json:"seat"`
	PlayerID string `json:"playerId"`
	Message  string `json:"message,omitempty"`
}

// ============================================================================
// MATCH ACTIONS
// ============================================================================

// DrawRequest serves draw_from_deck and draw_from_discard. Without a slot
// the tile goes to the first empty one.
type DrawRequest struct {
	Slot *int `json:"slot,omitempty"`
}

func (r DrawRequest) TargetSlot() int {
	if r.Slot == nil {
		return -1
	}
	return *r.Slot
}

// SlotRequest serves discard and attempt_finish.
type SlotRequest struct {
	Slot int `json:"slot"`
}

type MoveTileRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type FinishResult struct {
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	Scores  []okey.PlayerScore `json:"scores,omitempty"`
}

// ============================================================================
// LOBBY STATE (lobby_update broadcast)
// ============================================================================
type LobbyState struct {
	RoomCode string        `json:"roomCode"`
	Status   string        `json:"status"`
	Players  []LobbyPlayer `json:"players"`
	CanStart bool          `json:"canStart"`
	YourSeat int           `json:"yourSeat"`
}

type LobbyPlayer struct {
	Seat      int    `json:"seat"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	IsBot     bool   `json:"isBot"`
	IsHost    bool   `json:"isHost"`
	Connected bool   `json:"connected"`
	IsYou     bool   `json:"isYou"`
}

// ============================================================================
// CONNECTION NOTICES
// ============================================================================
type NoticeMessage struct {
	Message string `json:"message"`
}
