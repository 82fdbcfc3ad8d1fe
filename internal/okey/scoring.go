package okey

const (
	startingScore    = 20
	regularWinLoss   = 2
	doubleWinLoss    = 4
	indicatorPenalty = 1
)

type PlayerScore struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Seat     int    `json:"seat"`
	Score    int    `json:"score"`
	Winner   bool   `json:"winner"`
}

// Scores returns one entry per seat in seat order. Everyone starts at 20.
// Non-winners lose 4 after a pair win or okey finish and 2 otherwise; the
// indicator penalty costs a further point. Scores never go below zero.
func (m *Match) Scores() []PlayerScore {
	loss := regularWinLoss
	if m.IsPairWin || m.IsOkeyFinish {
		loss = doubleWinLoss
	}

	scores := make([]PlayerScore, 0, len(m.Players))
	for _, p := range m.Players {
		s := PlayerScore{PlayerID: p.ID, Name: p.Name, Seat: p.SeatIndex, Score: startingScore}
		s.Winner = m.WinnerID != "" && p.ID == m.WinnerID

		if m.WinnerID != "" && !s.Winner {
			s.Score -= loss
		}
		if p.IndicatorPenaltyApplied && !s.Winner {
			s.Score -= indicatorPenalty
		}
		s.Score = max(s.Score, 0)
		scores = append(scores, s)
	}
	return scores
}
