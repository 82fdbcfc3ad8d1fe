package okey

import (
	"encoding/json"
	"fmt"
)

// Snapshot serializes the full match, hidden state included, for storage.
func (m *Match) Snapshot() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal match: %w", err)
	}
	return data, nil
}

// RestoreMatch rebuilds a match from Snapshot output. Options supply the
// runtime collaborators that are not serialized.
func RestoreMatch(data []byte, opts ...Option) (*Match, error) {
	m := &Match{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	if len(m.Players) == 0 {
		return nil, fmt.Errorf("failed to restore match: %w", ErrPlayerCount)
	}
	if m.DiscardPiles == nil {
		m.DiscardPiles = make(map[string][]*Tile, len(m.Players))
	}
	m.attach(opts...)
	return m, nil
}
