package okey

import "sort"

const RackSize = 26

type Rack [RackSize]*Tile

type PlayerKind string

const (
	Human PlayerKind = "human"
	Bot   PlayerKind = "bot"
)

type ConnectionState string

const (
	Connected        ConnectionState = "connected"
	TempDisconnected ConnectionState = "temp_disconnected"
	Reconnected      ConnectionState = "reconnected"
	ReplacedByBot    ConnectionState = "replaced_by_bot"
)

type Player struct {
	ID                      string          `json:"id"`
	Name                    string          `json:"name"`
	Avatar                  string          `json:"avatar"`
	Rack                    Rack            `json:"rack"`
	IsActive                bool            `json:"isActive"`
	Kind                    PlayerKind      `json:"kind"`
	ConnectionState         ConnectionState `json:"connectionState"`
	ConsecutiveMissedTurns  int             `json:"consecutiveMissedTurns"`
	IndicatorPenaltyApplied bool            `json:"indicatorPenaltyApplied"`
	IndicatorShown          bool            `json:"indicatorShown"`
	SeatIndex               int             `json:"seatIndex"`
	ReconnectToken          string          `json:"reconnectToken"`

	// Substituted marks a human seat currently driven by the bot policy.
	Substituted bool `json:"substituted"`
}

func NewPlayer(id, name, avatar string, kind PlayerKind) *Player {
	return &Player{
		ID:              id,
		Name:            name,
		Avatar:          avatar,
		Kind:            kind,
		ConnectionState: Connected,
	}
}

func (p *Player) IsBot() bool {
	return p.Kind == Bot
}

func validSlot(i int) bool {
	return i >= 0 && i < RackSize
}

// AddToFirstEmptySlot places t front-to-back and returns its slot, or -1 when full.
func (p *Player) AddToFirstEmptySlot(t *Tile) int {
	for i, slot := range p.Rack {
		if slot == nil {
			p.Rack[i] = t
			return i
		}
	}
	return -1
}

// AddToSlot places t at index, or returns -1 when the slot is taken or out of range.
func (p *Player) AddToSlot(t *Tile, index int) int {
	if !validSlot(index) || p.Rack[index] != nil {
		return -1
	}
	p.Rack[index] = t
	return index
}

// Place tries the requested slot first and falls back to the first empty one.
func (p *Player) Place(t *Tile, index int) int {
	if index >= 0 {
		if slot := p.AddToSlot(t, index); slot != -1 {
			return slot
		}
	}
	return p.AddToFirstEmptySlot(t)
}

// MoveTile swaps two slots. The from slot must hold a tile.
func (p *Player) MoveTile(from, to int) bool {
	if !validSlot(from) || !validSlot(to) || p.Rack[from] == nil {
		return false
	}
	p.Rack[from], p.Rack[to] = p.Rack[to], p.Rack[from]
	return true
}

func (p *Player) RemoveTile(index int) *Tile {
	if !validSlot(index) || p.Rack[index] == nil {
		return nil
	}
	t := p.Rack[index]
	p.Rack[index] = nil
	return t
}

func (p *Player) TileCount() int {
	n := 0
	for _, t := range p.Rack {
		if t != nil {
			n++
		}
	}
	return n
}

// LastOccupiedSlot returns the rightmost filled slot, or -1 for an empty rack.
func (p *Player) LastOccupiedSlot() int {
	for i := RackSize - 1; i >= 0; i-- {
		if p.Rack[i] != nil {
			return i
		}
	}
	return -1
}

func (p *Player) ClearRack() {
	p.Rack = Rack{}
}

// SortRack packs the rack to the left: wildcards first, then by color and value.
func (p *Player) SortRack() {
	tiles := make([]*Tile, 0, RackSize)
	for _, t := range p.Rack {
		if t != nil {
			tiles = append(tiles, t)
		}
	}
	sort.SliceStable(tiles, func(i, j int) bool {
		a, b := tiles[i], tiles[j]
		if a.IsWildcard != b.IsWildcard {
			return a.IsWildcard
		}
		if a.Color != b.Color {
			return a.Color < b.Color
		}
		return a.Value < b.Value
	})
	p.Rack = Rack{}
	copy(p.Rack[:], tiles)
}
