package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"okey-server/internal/okey"
)

type RoomStatus string

const (
	RoomLobby  RoomStatus = "lobby"
	RoomGaming RoomStatus = "gaming"
)

const defaultAvatar = "avatar.png"

// Room is a table of up to four seats. Seat 0 hosts. Every field is guarded
// by mu; rooms are independent of each other.
type Room struct {
	Code         string
	Status       RoomStatus
	Players      []*okey.Player
	Match        *okey.Match
	CreatedAt    time.Time
	LastActivity time.Time

	closed bool
	log    zerolog.Logger
	mu     sync.Mutex
}

func newRoom(code string, now time.Time, log zerolog.Logger) *Room {
	return &Room{
		Code:         code,
		Status:       RoomLobby,
		CreatedAt:    now,
		LastActivity: now,
		log:          log.With().Str("room", code).Logger(),
	}
}

func (r *Room) Full() bool {
	return len(r.Players) >= okey.MaxPlayers
}

// InMatch reports whether a match is being played right now.
func (r *Room) InMatch() bool {
	return r.Match != nil && r.Match.Status == okey.StatusPlaying
}

func (r *Room) removeSeat(seat int) {
	r.Players = append(r.Players[:seat], r.Players[seat+1:]...)
	for i, p := range r.Players {
		p.SeatIndex = i
	}
}

func (r *Room) record(now time.Time) (MatchRecord, error) {
	data, err := r.Match.Snapshot()
	if err != nil {
		return MatchRecord{}, err
	}
	return MatchRecord{
		RoomCode:  r.Code,
		Status:    r.Match.Status,
		Data:      data,
		CreatedAt: r.CreatedAt,
		UpdatedAt: now,
	}, nil
}
