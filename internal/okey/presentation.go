package okey

import "time"

// ClientState is everything one seat is allowed to see. Opponents appear only
// through their tile counts and discard tops. DiscardTops is indexed by seat.
type ClientState struct {
	Status        Status             `json:"status"`
	Phase         Phase              `json:"phase"`
	TurnID        int64              `json:"turnId"`
	CurrentSeat   int                `json:"currentSeat"`
	Seat          int                `json:"seat"`
	PlayerID      string             `json:"playerId"`
	Name          string             `json:"name"`
	DeckCount     int                `json:"deckCount"`
	Indicator     *Tile              `json:"indicator"`
	Rack          Rack               `json:"rack"`
	DiscardTops   []*Tile            `json:"discardTops"`
	Players       []OtherPlayerState `json:"players"`
	CanShow       bool               `json:"canShowIndicator"`
	TurnStartedAt time.Time          `json:"turnStartedAt"`
	TurnSeconds   int                `json:"turnSeconds"`
	WinnerID      string             `json:"winnerId,omitempty"`
	WinnerTiles   []*Tile            `json:"winnerTiles,omitempty"`
	IsPairWin     bool               `json:"isPairWin"`
	IsOkeyFinish  bool               `json:"isOkeyFinish"`
	Scores        []PlayerScore      `json:"scores,omitempty"`
}

type OtherPlayerState struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Avatar         string `json:"avatar"`
	Seat           int    `json:"seat"`
	TileCount      int    `json:"tileCount"`
	IsBot          bool   `json:"isBot"`
	IsActive       bool   `json:"isActive"`
	IsDisconnected bool   `json:"isDisconnected"`
}

func GetOtherPlayerState(p *Player) OtherPlayerState {
	return OtherPlayerState{
		ID:             p.ID,
		Name:           p.Name,
		Avatar:         p.Avatar,
		Seat:           p.SeatIndex,
		TileCount:      p.TileCount(),
		IsBot:          p.IsBot(),
		IsActive:       p.IsActive,
		IsDisconnected: p.ConnectionState == TempDisconnected || p.ConnectionState == ReplacedByBot,
	}
}

func (m *Match) GetClientState(seat int) *ClientState {
	player := m.Players[seat]

	otherStates := []OtherPlayerState{}
	for i, p := range m.Players {
		if i != seat {
			otherStates = append(otherStates, GetOtherPlayerState(p))
		}
	}

	tops := make([]*Tile, len(m.Players))
	for i, p := range m.Players {
		if pile := m.DiscardPiles[p.ID]; len(pile) > 0 {
			tops[i] = pile[len(pile)-1]
		}
	}

	state := &ClientState{
		Status:        m.Status,
		Phase:         m.Phase,
		TurnID:        m.TurnID,
		CurrentSeat:   m.CurrentPlayerIndex,
		Seat:          seat,
		PlayerID:      player.ID,
		Name:          player.Name,
		Indicator:     m.Indicator,
		Rack:          player.Rack,
		DiscardTops:   tops,
		Players:       otherStates,
		CanShow:       m.CanShowIndicator(player.ID),
		TurnStartedAt: m.TurnStartedAt,
		TurnSeconds:   int(m.TurnLimit() / time.Second),
	}
	if m.Deck != nil {
		state.DeckCount = m.Deck.Remaining()
	}

	if m.Status == StatusVictory || m.Status == StatusGameOver {
		state.WinnerID = m.WinnerID
		state.WinnerTiles = m.WinnerTiles
		state.IsPairWin = m.IsPairWin
		state.IsOkeyFinish = m.IsOkeyFinish
		state.Scores = m.Scores()
	}
	return state
}
