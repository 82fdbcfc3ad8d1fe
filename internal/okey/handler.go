package okey

import "errors"

var (
	ErrNotPlaying           = errors.New("NOT_PLAYING: Match is not in progress")
	ErrOutOfTurn            = errors.New("OUT_OF_TURN: Not your turn")
	ErrWrongPhase           = errors.New("WRONG_PHASE: Action not allowed in this phase")
	ErrInvalidPlacement     = errors.New("INVALID_PLACEMENT: Slot is empty, occupied or out of range")
	ErrEmptySource          = errors.New("EMPTY_SOURCE: Nothing to draw from")
	ErrInvalidHand          = errors.New("INVALID_HAND")
	ErrUnknownPlayer        = errors.New("UNKNOWN_PLAYER: Player is not seated in this match")
	ErrPlayerCount          = errors.New("PLAYER_COUNT: Need between 2 and 4 players")
	ErrIndicatorUnavailable = errors.New("INDICATOR_UNAVAILABLE: Cannot show the indicator now")
)

type DrawSource string

const (
	SourceDeck    DrawSource = "deck"
	SourceDiscard DrawSource = "discard"
)

type EventType string

const (
	EventTileDrawn      EventType = "tile_drawn"
	EventTileDiscarded  EventType = "tile_discarded"
	EventIndicatorShown EventType = "indicator_shown"
	EventSeatTakenOver  EventType = "seat_taken_over"
	EventStateChanged   EventType = "state_changed"
)

// Event is an outbound notification recorded by a Match mutation. Tile is
// private to PlayerID for deck draws; fan-out decides who sees it.
type Event struct {
	Type     EventType  `json:"type"`
	PlayerID string     `json:"playerId,omitempty"`
	Seat     int        `json:"seat"`
	Source   DrawSource `json:"source,omitempty"`
	Tile     *Tile      `json:"tile,omitempty"`
	Slot     int        `json:"slot"`
}

// Private reports whether the event's tile must only reach its owner.
func (e Event) Private() bool {
	return e.Type == EventTileDrawn && e.Source == SourceDeck
}
