package okey

import (
	"fmt"
	"time"
)

/*
 * Draw Phase
 */

// DrawFromDeck moves the top deck tile into the player's rack, at slot when
// that slot is free, otherwise at the first empty slot. It returns the slot
// the tile landed in, or -1 and an error without touching any state.
func (m *Match) DrawFromDeck(playerID string, slot int) (int, error) {
	p, err := m.checkTurn(playerID, PhaseDraw)
	if err != nil {
		return -1, err
	}
	if p.TileCount() >= RackSize {
		return -1, ErrInvalidPlacement
	}

	tile, ok := m.Deck.Draw()
	if !ok {
		return -1, ErrEmptySource
	}

	landed := p.Place(tile, slot)
	m.Phase = PhaseDiscard

	m.log.Debug().Str("player", p.ID).Int64("turn", m.TurnID).Int("slot", landed).Msg("Drew from deck")
	m.emit(Event{Type: EventTileDrawn, PlayerID: p.ID, Seat: p.SeatIndex, Source: SourceDeck, Tile: tile, Slot: landed})
	m.emit(Event{Type: EventStateChanged})
	return landed, nil
}

// DrawFromDiscard takes the top tile of the previous seat's discard pile.
func (m *Match) DrawFromDiscard(playerID string, slot int) (int, error) {
	p, err := m.checkTurn(playerID, PhaseDraw)
	if err != nil {
		return -1, err
	}
	if p.TileCount() >= RackSize {
		return -1, ErrInvalidPlacement
	}

	sourceID := m.Players[m.previousSeat(p.SeatIndex)].ID
	pile := m.DiscardPiles[sourceID]
	if len(pile) == 0 {
		return -1, ErrEmptySource
	}

	tile := pile[len(pile)-1]
	m.DiscardPiles[sourceID] = pile[:len(pile)-1]

	landed := p.Place(tile, slot)
	m.Phase = PhaseDiscard

	m.log.Debug().Str("player", p.ID).Int64("turn", m.TurnID).Str("from", sourceID).Msg("Drew from discard")
	m.emit(Event{Type: EventTileDrawn, PlayerID: p.ID, Seat: p.SeatIndex, Source: SourceDiscard, Tile: tile, Slot: landed})
	m.emit(Event{Type: EventStateChanged})
	return landed, nil
}

/*
 * Discard Phase
 */

// Discard moves the tile at slot onto the player's own pile and passes the turn.
func (m *Match) Discard(playerID string, slot int) error {
	p, err := m.checkTurn(playerID, PhaseDiscard)
	if err != nil {
		return err
	}

	tile := p.RemoveTile(slot)
	if tile == nil {
		return ErrInvalidPlacement
	}
	m.DiscardPiles[p.ID] = append(m.DiscardPiles[p.ID], tile)

	m.log.Debug().Str("player", p.ID).Int64("turn", m.TurnID).Str("tile", tile.String()).Msg("Discarded")
	m.emit(Event{Type: EventTileDiscarded, PlayerID: p.ID, Seat: p.SeatIndex, Tile: tile, Slot: slot})

	m.advance()
	return nil
}

// Finish lets go of the tile at slot and checks the rest of the rack as a
// finished hand, either grouped sets and runs or seven pairs.
func (m *Match) Finish(playerID string, slot int) error {
	p, err := m.checkTurn(playerID, PhaseDiscard)
	if err != nil {
		return err
	}
	if !validSlot(slot) || p.Rack[slot] == nil {
		return ErrInvalidPlacement
	}

	view := p.Rack
	view[slot] = nil

	grouped, groupReason := ValidateHandGroups(view[:])
	pairs, pairReason := false, ""
	if !grouped {
		pairs, pairReason = ValidatePairs(view[:], m.Config.PairMaxWildcards)
	}
	if !grouped && !pairs {
		return fmt.Errorf("%w: %s; %s", ErrInvalidHand, groupReason, pairReason)
	}

	m.Status = StatusVictory
	m.WinnerID = p.ID
	m.IsPairWin = pairs
	m.IsOkeyFinish = p.Rack[slot].IsWildcard
	m.WinnerTiles = append([]*Tile(nil), view[:]...)
	p.IsActive = false

	m.log.Info().
		Str("winner", p.ID).
		Bool("pairs", m.IsPairWin).
		Bool("okeyFinish", m.IsOkeyFinish).
		Int64("turn", m.TurnID).
		Msg("Match won")
	m.emit(Event{Type: EventStateChanged})
	return nil
}

/*
 * Any time during play
 */

// MoveTile swaps two slots of the player's own rack.
func (m *Match) MoveTile(playerID string, from, to int) error {
	if m.Status != StatusPlaying {
		return ErrNotPlaying
	}
	p, ok := m.Player(playerID)
	if !ok {
		return ErrUnknownPlayer
	}
	if !p.MoveTile(from, to) {
		return ErrInvalidPlacement
	}
	return nil
}

// CanShowIndicator reports whether the player may declare the indicator now:
// seat 0 during the discard phase of turn 1, seat k during the draw phase of
// turn k+1, once per match, holding a tile with the indicator's face.
func (m *Match) CanShowIndicator(playerID string) bool {
	if m.Status != StatusPlaying || m.Indicator == nil {
		return false
	}
	p, ok := m.Player(playerID)
	if !ok || p.IndicatorShown || m.CurrentPlayerIndex != p.SeatIndex {
		return false
	}

	if p.SeatIndex == 0 {
		if m.TurnID != 1 || m.Phase != PhaseDiscard {
			return false
		}
	} else if m.TurnID != int64(p.SeatIndex)+1 || m.Phase != PhaseDraw {
		return false
	}

	for _, t := range p.Rack {
		if t != nil && t.Matches(m.Indicator.Value, m.Indicator.Color) {
			return true
		}
	}
	return false
}

// ShowIndicator flags every other seat with the indicator penalty.
func (m *Match) ShowIndicator(playerID string) error {
	if !m.CanShowIndicator(playerID) {
		return ErrIndicatorUnavailable
	}
	p, _ := m.Player(playerID)
	p.IndicatorShown = true
	for _, other := range m.Players {
		if other.ID != p.ID {
			other.IndicatorPenaltyApplied = true
		}
	}

	m.log.Info().Str("player", p.ID).Msg("Indicator shown")
	m.emit(Event{Type: EventIndicatorShown, PlayerID: p.ID, Seat: p.SeatIndex, Tile: m.Indicator})
	m.emit(Event{Type: EventStateChanged})
	return nil
}

/*
 * Turn advance
 */

func (m *Match) advance() {
	m.Current().IsActive = false

	if m.Deck.Remaining() == 0 {
		m.Status = StatusGameOver
		m.Phase = PhaseWaiting
		m.log.Info().Int64("turn", m.TurnID).Msg("Deck exhausted, match over")
		m.emit(Event{Type: EventStateChanged})
		return
	}

	m.CurrentPlayerIndex = (m.CurrentPlayerIndex + 1) % len(m.Players)
	m.Current().IsActive = true
	m.Phase = PhaseDraw
	m.TurnID++
	m.TurnStartedAt = m.now()

	m.checkBotTakeover()
	m.emit(Event{Type: EventStateChanged})
}

func (m *Match) checkBotTakeover() {
	p := m.Current()
	if p.IsBot() || p.ConsecutiveMissedTurns < max(1, m.Config.BotTakeoverAfter) {
		return
	}
	p.Kind = Bot
	p.Substituted = true
	p.ConnectionState = ReplacedByBot
	m.log.Info().Str("player", p.ID).Int("missed", p.ConsecutiveMissedTurns).Msg("Seat taken over by bot")
	m.emit(Event{Type: EventSeatTakenOver, PlayerID: p.ID, Seat: p.SeatIndex})
}

// Reclaim hands a bot-driven seat back to its human owner and clears the
// missed-turn count. Seats that were bots from the start stay bots.
func (m *Match) Reclaim(playerID string) error {
	p, ok := m.Player(playerID)
	if !ok {
		return ErrUnknownPlayer
	}
	if p.Substituted {
		p.Kind = Human
		p.Substituted = false
	}
	p.ConsecutiveMissedTurns = 0
	p.ConnectionState = Reconnected
	if m.Status == StatusPlaying && m.Current().ID == p.ID {
		m.TurnStartedAt = m.now()
	}
	m.emit(Event{Type: EventStateChanged})
	return nil
}

/*
 * Timeouts
 */

// TurnLimit is the time the current seat gets before an automatic move.
func (m *Match) TurnLimit() time.Duration {
	if m.Current().IsBot() {
		return m.Config.BotTurnDuration
	}
	return m.Config.TurnDuration
}

// CheckTimeout runs the automatic move when the current turn has overrun.
func (m *Match) CheckTimeout(now time.Time) bool {
	if m.Status != StatusPlaying {
		return false
	}
	if now.Sub(m.TurnStartedAt) <= m.TurnLimit() {
		return false
	}
	m.ExecuteAutoMove()
	return true
}

// ExecuteAutoMove plays the current phase's default action. Bots play a whole
// turn; humans are drawn for from the deck, or lose their rightmost tile and
// collect a missed turn.
func (m *Match) ExecuteAutoMove() {
	if m.Status != StatusPlaying {
		return
	}
	p := m.Current()
	if p.IsBot() {
		m.PlayBotTurn()
		return
	}

	switch m.Phase {
	case PhaseDraw:
		if _, err := m.DrawFromDeck(p.ID, -1); err != nil {
			m.log.Warn().Err(err).Str("player", p.ID).Msg("Auto draw failed")
		}
	case PhaseDiscard:
		slot := p.LastOccupiedSlot()
		if slot == -1 {
			return
		}
		if err := m.Discard(p.ID, slot); err != nil {
			m.log.Warn().Err(err).Str("player", p.ID).Msg("Auto discard failed")
			return
		}
		p.ConsecutiveMissedTurns++
		m.log.Info().Str("player", p.ID).Int("missed", p.ConsecutiveMissedTurns).Msg("Turn timed out")
	}
}
