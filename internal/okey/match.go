package okey

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

type Status string

const (
	StatusMenu     Status = "menu"
	StatusPlaying  Status = "playing"
	StatusVictory  Status = "victory"
	StatusGameOver Status = "game_over"
)

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseDraw    Phase = "draw"
	PhaseDiscard Phase = "discard"
)

const (
	MinPlayers = 2
	MaxPlayers = 4

	openingHand = 15
	regularHand = 14
)

type Config struct {
	TurnDuration     time.Duration `json:"turnDuration"`
	BotTurnDuration  time.Duration `json:"botTurnDuration"`
	BotTakeoverAfter int           `json:"botTakeoverAfter"`
	PairMaxWildcards int           `json:"pairMaxWildcards"`
}

func DefaultConfig() Config {
	return Config{
		TurnDuration:     30 * time.Second,
		BotTurnDuration:  1200 * time.Millisecond,
		BotTakeoverAfter: 1,
		PairMaxWildcards: 2,
	}
}

type Match struct {
	Status             Status             `json:"status"`
	Phase              Phase              `json:"phase"`
	Players            []*Player          `json:"players"`
	CurrentPlayerIndex int                `json:"currentPlayerIndex"`
	TurnID             int64              `json:"turnId"`
	TurnStartedAt      time.Time          `json:"turnStartedAt"`
	Config             Config             `json:"config"`
	Deck               *Deck              `json:"deck"`
	Indicator          *Tile              `json:"indicator"`
	OkeyTile           *Tile              `json:"okeyTile"`
	DiscardPiles       map[string][]*Tile `json:"discardPiles"`
	WinnerID           string             `json:"winnerId"`
	WinnerTiles        []*Tile            `json:"winnerTiles"`
	IsPairWin          bool               `json:"isPairWin"`
	IsOkeyFinish       bool               `json:"isOkeyFinish"`

	rng    *rand.Rand
	log    zerolog.Logger
	now    func() time.Time
	policy BotPolicy
	events []Event
}

type Option func(*Match)

func WithRand(rng *rand.Rand) Option {
	return func(m *Match) { m.rng = rng }
}

func WithLogger(log zerolog.Logger) Option {
	return func(m *Match) { m.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(m *Match) { m.now = now }
}

func WithBotPolicy(policy BotPolicy) Option {
	return func(m *Match) { m.policy = policy }
}

func WithConfig(cfg Config) Option {
	return func(m *Match) { m.Config = cfg }
}

// NewMatch seats players in the given order. Seat indices are rewritten to
// match their position.
func NewMatch(players []*Player, opts ...Option) *Match {
	m := &Match{
		Status:       StatusMenu,
		Phase:        PhaseWaiting,
		Players:      players,
		Config:       DefaultConfig(),
		DiscardPiles: make(map[string][]*Tile, len(players)),
	}
	for i, p := range players {
		p.SeatIndex = i
		m.DiscardPiles[p.ID] = []*Tile{}
	}
	m.attach(opts...)
	return m
}

func (m *Match) attach(opts ...Option) {
	m.log = zerolog.Nop()
	m.now = time.Now
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if m.policy == nil {
		m.policy = NewRandomPolicy(m.rng)
	}
	if m.Deck != nil {
		m.Deck.rng = m.rng
	}
}

// Start deals a fresh round. Seat 0 receives 15 tiles and opens in the
// discard phase.
func (m *Match) Start() error {
	if len(m.Players) < MinPlayers || len(m.Players) > MaxPlayers {
		return ErrPlayerCount
	}

	m.Deck = NewDeck(m.rng)
	m.Deck.Shuffle()
	m.drawIndicator()

	value, color := OkeyFor(*m.Indicator)
	m.OkeyTile = &Tile{ID: "okey_ref", Value: value, Color: color, IsWildcard: true}
	m.Deck.ApplyOkeyRules(value, color)

	m.DiscardPiles = make(map[string][]*Tile, len(m.Players))
	for i, p := range m.Players {
		p.SeatIndex = i
		p.ClearRack()
		p.IsActive = false
		p.IndicatorShown = false
		p.IndicatorPenaltyApplied = false
		p.ConsecutiveMissedTurns = 0
		m.DiscardPiles[p.ID] = []*Tile{}
	}

	for i, p := range m.Players {
		n := regularHand
		if i == 0 {
			n = openingHand
		}
		for range n {
			t, _ := m.Deck.Draw()
			p.AddToFirstEmptySlot(t)
		}
	}

	m.WinnerID = ""
	m.WinnerTiles = nil
	m.IsPairWin = false
	m.IsOkeyFinish = false

	m.CurrentPlayerIndex = 0
	m.Players[0].IsActive = true
	m.Phase = PhaseDiscard
	m.Status = StatusPlaying
	m.TurnID = 1
	m.TurnStartedAt = m.now()

	m.log.Info().
		Int("players", len(m.Players)).
		Str("indicator", m.Indicator.String()).
		Str("okey", m.OkeyTile.String()).
		Msg("Match started")

	m.emit(Event{Type: EventStateChanged})
	return nil
}

// drawIndicator takes the indicator from the shuffled deck. A fake okey cannot
// indicate, so it goes back under the deck and the next tile is used.
func (m *Match) drawIndicator() {
	for {
		t, _ := m.Deck.Draw()
		if !t.IsFakeOkey {
			m.Indicator = t
			return
		}
		m.Deck.Tiles = append([]*Tile{t}, m.Deck.Tiles...)
	}
}

func (m *Match) Current() *Player {
	return m.Players[m.CurrentPlayerIndex]
}

func (m *Match) Player(id string) (*Player, bool) {
	for _, p := range m.Players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (m *Match) previousSeat(seat int) int {
	return (seat - 1 + len(m.Players)) % len(m.Players)
}

// DiscardSource is the pile the given seat draws from: the previous seat's discards.
func (m *Match) DiscardSource(seat int) []*Tile {
	return m.DiscardPiles[m.Players[m.previousSeat(seat)].ID]
}

func (m *Match) PeekDeck() *Tile {
	if m.Deck == nil {
		return nil
	}
	t, _ := m.Deck.Peek()
	return t
}

func (m *Match) checkTurn(playerID string, phase Phase) (*Player, error) {
	if m.Status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	if m.Current().ID != playerID {
		return nil, ErrOutOfTurn
	}
	if m.Phase != phase {
		return nil, ErrWrongPhase
	}
	return m.Current(), nil
}

func (m *Match) emit(e Event) {
	m.events = append(m.events, e)
}

// Drain returns and clears the events recorded since the last call.
func (m *Match) Drain() []Event {
	events := m.events
	m.events = nil
	return events
}

// TilesInPlay counts every tile the match accounts for. It equals TileCount
// for any started match.
func (m *Match) TilesInPlay() int {
	n := 0
	for _, p := range m.Players {
		n += p.TileCount()
	}
	for _, pile := range m.DiscardPiles {
		n += len(pile)
	}
	if m.Deck != nil {
		n += m.Deck.Remaining()
	}
	if m.Indicator != nil {
		n++
	}
	return n
}
