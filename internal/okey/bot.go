package okey

import "math/rand"

// BotPolicy makes the two decisions of a bot turn. Implementations must only
// return choices that are legal for the view they are given.
type BotPolicy interface {
	ChooseDrawSource(discardTop *Tile) DrawSource
	ChooseDiscard(rack *Rack) int
}

const discardDrawChance = 0.3

// RandomPolicy takes the visible discard about a third of the time and
// throws away a random tile, keeping wildcards when it can.
type RandomPolicy struct {
	rng *rand.Rand
}

func NewRandomPolicy(rng *rand.Rand) *RandomPolicy {
	return &RandomPolicy{rng: rng}
}

func (r *RandomPolicy) ChooseDrawSource(discardTop *Tile) DrawSource {
	if discardTop != nil && r.rng.Float64() < discardDrawChance {
		return SourceDiscard
	}
	return SourceDeck
}

func (r *RandomPolicy) ChooseDiscard(rack *Rack) int {
	var plain, occupied []int
	for i, t := range rack {
		if t == nil {
			continue
		}
		occupied = append(occupied, i)
		if !t.IsWildcard {
			plain = append(plain, i)
		}
	}
	if len(plain) > 0 {
		return plain[r.rng.Intn(len(plain))]
	}
	if len(occupied) > 0 {
		return occupied[r.rng.Intn(len(occupied))]
	}
	return -1
}

// PlayBotTurn finishes the current bot seat's turn through the same entry
// points a human uses: a draw when one is due, then a discard.
func (m *Match) PlayBotTurn() {
	if m.Status != StatusPlaying {
		return
	}
	p := m.Current()
	if !p.IsBot() {
		return
	}

	if m.Phase == PhaseDraw {
		var top *Tile
		if pile := m.DiscardSource(p.SeatIndex); len(pile) > 0 {
			top = pile[len(pile)-1]
		}

		var err error
		if m.policy.ChooseDrawSource(top) == SourceDiscard {
			_, err = m.DrawFromDiscard(p.ID, -1)
		} else {
			_, err = m.DrawFromDeck(p.ID, -1)
		}
		if err != nil {
			if _, err = m.DrawFromDeck(p.ID, -1); err != nil {
				m.log.Warn().Err(err).Str("player", p.ID).Msg("Bot could not draw")
				return
			}
		}
	}

	slot := m.policy.ChooseDiscard(&p.Rack)
	if err := m.Discard(p.ID, slot); err != nil {
		slot = p.LastOccupiedSlot()
		if err = m.Discard(p.ID, slot); err != nil {
			m.log.Warn().Err(err).Str("player", p.ID).Msg("Bot could not discard")
		}
	}
}
