package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"okey-server/internal/okey"
)

var (
	ErrRoomNotFound     = errors.New("ROOM_NOT_FOUND: Room does not exist")
	ErrRoomFull         = errors.New("ROOM_FULL: Room already has 4 players")
	ErrRoomInGame       = errors.New("ROOM_IN_GAME: Room is already playing")
	ErrNotInRoom        = errors.New("NOT_IN_ROOM: Join or reconnect first")
	ErrAlreadyInRoom    = errors.New("ALREADY_IN_ROOM: Connection already holds a seat")
	ErrNotHost          = errors.New("NOT_HOST: Only the host can do that")
	ErrNotEnoughPlayers = errors.New("NOT_ENOUGH_PLAYERS: Need at least 2 players")
	ErrGameNotStarted   = errors.New("GAME_NOT_STARTED: Game hasn't started yet")
)

// RoomManager owns every room and the session registry. Each room is locked
// on its own; the manager lock only guards the room index and is never held
// while a room lock is being acquired.
type RoomManager struct {
	rooms     map[string]*Room
	usedCodes map[string]bool
	sessions  *SessionRegistry
	sender    Sender
	persister Persister
	cfg       okey.Config
	log       zerolog.Logger
	now       func() time.Time
	rng       *rand.Rand // guarded by mu
	mu        sync.RWMutex
}

type ManagerOption func(*RoomManager)

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(rm *RoomManager) { rm.now = now }
}

func WithManagerSeed(seed int64) ManagerOption {
	return func(rm *RoomManager) { rm.rng = rand.New(rand.NewSource(seed)) }
}

func NewRoomManager(sender Sender, persister Persister, cfg okey.Config, log zerolog.Logger, opts ...ManagerOption) *RoomManager {
	rm := &RoomManager{
		rooms:     make(map[string]*Room),
		usedCodes: make(map[string]bool),
		sessions:  NewSessionRegistry(),
		sender:    sender,
		persister: persister,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rm)
	}
	if rm.rng == nil {
		rm.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rm
}

func (rm *RoomManager) Sessions() *SessionRegistry {
	return rm.sessions
}

func (rm *RoomManager) RoomCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}

func (rm *RoomManager) room(code string) *Room {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.rooms[code]
}

func (rm *RoomManager) allRooms() []*Room {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	rooms := make([]*Room, 0, len(rm.rooms))
	for _, r := range rm.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// lockSeat resolves the connection's room and locks it. The session is read
// again under the room lock because lobby re-indexing may have moved it.
// Callers must unlock the returned room.
func (rm *RoomManager) lockSeat(connID string) (*Room, Session, error) {
	s, ok := rm.sessions.ByConnection(connID)
	if !ok {
		return nil, Session{}, ErrNotInRoom
	}
	room := rm.room(s.RoomCode)
	if room == nil {
		return nil, Session{}, ErrRoomNotFound
	}

	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return nil, Session{}, ErrRoomNotFound
	}
	s, ok = rm.sessions.ByConnection(connID)
	if !ok || s.RoomCode != room.Code {
		room.mu.Unlock()
		return nil, Session{}, ErrNotInRoom
	}
	return room, s, nil
}

// ============================================================================
// ROOM LIFECYCLE
// ============================================================================

// CreateRoom opens a lobby under a fresh code and seats the caller as host.
func (rm *RoomManager) CreateRoom(connID, name, avatar string) (Session, error) {
	if _, ok := rm.sessions.ByConnection(connID); ok {
		return Session{}, ErrAlreadyInRoom
	}
	if err := ValidateName(name); err != nil {
		return Session{}, err
	}

	rm.mu.Lock()
	code := GenerateRoomCode(rm.rng, rm.usedCodes)
	rm.usedCodes[code] = true
	room := newRoom(code, rm.now(), rm.log)
	rm.rooms[code] = room
	rm.mu.Unlock()

	room.log.Info().Str("conn", connID).Msg("Room created")
	return rm.JoinRoom(connID, code, name, avatar)
}

func (rm *RoomManager) JoinRoom(connID, code, name, avatar string) (Session, error) {
	if _, ok := rm.sessions.ByConnection(connID); ok {
		return Session{}, ErrAlreadyInRoom
	}
	code = NormalizeRoomCode(code)
	if err := ValidateRoomCode(code); err != nil {
		return Session{}, err
	}
	if err := ValidateName(name); err != nil {
		return Session{}, err
	}

	room := rm.room(code)
	if room == nil {
		return Session{}, ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	switch {
	case room.closed:
		return Session{}, ErrRoomNotFound
	case room.Status != RoomLobby:
		return Session{}, ErrRoomInGame
	case room.Full():
		return Session{}, ErrRoomFull
	}

	seat := len(room.Players)
	if name == "" {
		name = fmt.Sprintf("Player %d", seat+1)
	}
	if avatar == "" {
		avatar = defaultAvatar
	}
	p := okey.NewPlayer(uuid.NewString(), name, avatar, okey.Human)
	p.SeatIndex = seat

	session := rm.sessions.Register(code, seat, p.ID, connID)
	p.ReconnectToken = session.Token
	room.Players = append(room.Players, p)
	room.LastActivity = rm.now()

	room.log.Info().Str("player", p.ID).Int("seat", seat).Msg("Player joined")
	rm.sender.Send(connID, ServerMessage{
		Type: "room_joined",
		Payload: JoinRoomResponse{
			RoomCode: code,
			Token:    session.Token,
			Seat:     seat,
			PlayerID: p.ID,
		},
	})
	rm.broadcastLobby(room)
	return session, nil
}

// Reconnect binds a new connection to the token's seat. The connection that
// held the seat before, if any, is told and closed. Rack and match state are
// left as they are; a bot-driven seat is handed back to its owner.
func (rm *RoomManager) Reconnect(connID, token string) (Session, error) {
	session, err := rm.sessions.ByToken(token)
	if err != nil {
		return Session{}, err
	}
	room := rm.room(session.RoomCode)
	if room == nil {
		return Session{}, ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return Session{}, ErrRoomNotFound
	}

	// Re-read under the room lock; the seat may have shifted.
	session, err = rm.sessions.ByToken(token)
	if err != nil {
		return Session{}, err
	}
	if existing, ok := rm.sessions.ByConnection(connID); ok && existing.ID != session.ID {
		return Session{}, ErrAlreadyInRoom
	}

	previous := rm.sessions.Attach(session.ID, connID)
	if previous != "" && previous != connID {
		rm.sender.Kick(previous, ServerMessage{
			Type:    "disconnected_elsewhere",
			Payload: NoticeMessage{Message: "Your seat was resumed from another connection"},
		})
	}
	session.ConnectionID = connID
	p := room.Players[session.Seat]
	room.LastActivity = rm.now()

	room.log.Info().Str("player", p.ID).Int("seat", session.Seat).Msg("Player reconnected")
	rm.sender.Send(connID, ServerMessage{
		Type: "reconnected",
		Payload: ReconnectResponse{
			RoomCode: room.Code,
			Seat:     session.Seat,
			PlayerID: p.ID,
		},
	})

	if room.Match == nil {
		p.ConnectionState = okey.Reconnected
		rm.broadcastLobby(room)
		return session, nil
	}
	if err := room.Match.Reclaim(p.ID); err != nil {
		return Session{}, err
	}
	rm.fanOut(room)
	rm.persist(room)
	return session, nil
}

// HandleDisconnect releases the connection's seat. In the lobby the seat is
// removed and higher seats move down; once a match exists the seat is only
// flagged. A room nobody is connected to any more is closed.
func (rm *RoomManager) HandleDisconnect(connID string) {
	room, session, err := rm.lockSeat(connID)
	if err != nil {
		return
	}
	defer room.mu.Unlock()

	p := room.Players[session.Seat]
	if room.Status == RoomLobby {
		rm.sessions.RemoveSeat(room.Code, session.Seat)
		room.removeSeat(session.Seat)
		room.log.Info().Str("player", p.ID).Int("seat", session.Seat).Msg("Player left lobby")
	} else {
		rm.sessions.Detach(connID)
		if p.ConnectionState != okey.ReplacedByBot {
			p.ConnectionState = okey.TempDisconnected
		}
		room.log.Info().Str("player", p.ID).Int("seat", session.Seat).Msg("Player disconnected")
	}

	if rm.sessions.ConnectedCount(room.Code) == 0 {
		rm.closeRoom(room)
		return
	}
	if room.Match == nil {
		rm.broadcastLobby(room)
		return
	}
	rm.broadcastState(room)
}

// closeRoom drops the room and every session in it. The room lock is held.
func (rm *RoomManager) closeRoom(room *Room) {
	room.closed = true
	rm.sessions.RemoveRoom(room.Code)

	rm.mu.Lock()
	delete(rm.rooms, room.Code)
	delete(rm.usedCodes, room.Code)
	rm.mu.Unlock()

	rm.persister.Forget(room.Code)
	room.log.Info().Msg("Room closed")
}

func (rm *RoomManager) AddBot(connID string) error {
	room, session, err := rm.lockSeat(connID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	switch {
	case session.Seat != 0:
		return ErrNotHost
	case room.Status != RoomLobby:
		return ErrRoomInGame
	case room.Full():
		return ErrRoomFull
	}

	seat := len(room.Players)
	bot := okey.NewPlayer(uuid.NewString(), fmt.Sprintf("Bot %d", seat+1), defaultAvatar, okey.Bot)
	bot.SeatIndex = seat
	room.Players = append(room.Players, bot)
	room.LastActivity = rm.now()

	room.log.Info().Str("player", bot.ID).Int("seat", seat).Msg("Bot added")
	rm.broadcastLobby(room)
	return nil
}

// StartGame deals a new match for the seated players. The host may call it
// again once a match has finished to play a rematch.
func (rm *RoomManager) StartGame(connID string) error {
	room, session, err := rm.lockSeat(connID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	switch {
	case session.Seat != 0:
		return ErrNotHost
	case room.InMatch():
		return ErrRoomInGame
	case len(room.Players) < okey.MinPlayers:
		return ErrNotEnoughPlayers
	}

	rm.mu.Lock()
	seed := rm.rng.Int63()
	rm.mu.Unlock()

	m := okey.NewMatch(room.Players,
		okey.WithConfig(rm.cfg),
		okey.WithLogger(room.log),
		okey.WithRand(rand.New(rand.NewSource(seed))),
		okey.WithClock(rm.now),
	)
	if err := m.Start(); err != nil {
		return err
	}
	room.Match = m
	room.Status = RoomGaming
	room.LastActivity = rm.now()

	room.log.Info().Int("players", len(room.Players)).Msg("Match started")
	rm.fanOut(room)
	rm.persist(room)
	return nil
}

// ============================================================================
// MATCH REQUESTS
// ============================================================================

// play runs fn against the caller's seat and, when it succeeds, fans out the
// resulting events. A snapshot is queued only if fn emitted any. Nothing is
// sent on failure.
func (rm *RoomManager) play(connID string, fn func(m *okey.Match, p *okey.Player) error) error {
	room, session, err := rm.lockSeat(connID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	if room.Match == nil {
		return ErrGameNotStarted
	}
	if err := fn(room.Match, room.Players[session.Seat]); err != nil {
		return err
	}
	room.LastActivity = rm.now()
	if rm.fanOut(room) {
		rm.persist(room)
	}
	return nil
}

func (rm *RoomManager) DrawFromDeck(connID string, slot int) error {
	return rm.play(connID, func(m *okey.Match, p *okey.Player) error {
		_, err := m.DrawFromDeck(p.ID, slot)
		return err
	})
}

func (rm *RoomManager) DrawFromDiscard(connID string, slot int) error {
	return rm.play(connID, func(m *okey.Match, p *okey.Player) error {
		_, err := m.DrawFromDiscard(p.ID, slot)
		return err
	})
}

func (rm *RoomManager) Discard(connID string, slot int) error {
	return rm.play(connID, func(m *okey.Match, p *okey.Player) error {
		return m.Discard(p.ID, slot)
	})
}

func (rm *RoomManager) MoveTile(connID string, from, to int) error {
	return rm.play(connID, func(m *okey.Match, p *okey.Player) error {
		return m.MoveTile(p.ID, from, to)
	})
}

func (rm *RoomManager) ShowIndicator(connID string) error {
	return rm.play(connID, func(m *okey.Match, p *okey.Player) error {
		return m.ShowIndicator(p.ID)
	})
}

// AttemptFinish tries to close the match with the tile in slot. A rejected
// hand is reported as an unsuccessful result rather than an error.
func (rm *RoomManager) AttemptFinish(connID string, slot int) (FinishResult, error) {
	var result FinishResult
	err := rm.play(connID, func(m *okey.Match, p *okey.Player) error {
		if err := m.Finish(p.ID, slot); err != nil {
			return err
		}
		result = FinishResult{Success: true, Scores: m.Scores()}
		return nil
	})
	if errors.Is(err, okey.ErrInvalidHand) {
		return FinishResult{Success: false, Message: err.Error()}, nil
	}
	if err != nil {
		return FinishResult{}, err
	}
	return result, nil
}

// Sync resends the caller's current view.
func (rm *RoomManager) Sync(connID string) error {
	room, session, err := rm.lockSeat(connID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	if room.Match == nil {
		rm.sender.Send(connID, ServerMessage{Type: "lobby_update", Payload: rm.lobbyState(room, session.Seat)})
		return nil
	}
	rm.sender.Send(connID, ServerMessage{Type: "state_changed", Payload: room.Match.GetClientState(session.Seat)})
	return nil
}

// ============================================================================
// FAN-OUT
// ============================================================================

// fanOut delivers the match's pending events. Deck draws reach every seat,
// but only the drawing seat learns the tile and where it went. A state change
// is sent once, after the other events, as each seat's own view. It reports
// whether there was anything to deliver.
func (rm *RoomManager) fanOut(room *Room) bool {
	events := room.Match.Drain()
	changed := false
	for _, e := range events {
		if e.Type == okey.EventStateChanged {
			changed = true
			continue
		}
		for seat := range room.Players {
			connID := rm.sessions.ConnectionForSeat(room.Code, seat)
			if connID == "" {
				continue
			}
			visible := e
			if e.Private() && seat != e.Seat {
				visible.Tile = nil
				visible.Slot = -1
			}
			rm.sender.Send(connID, ServerMessage{Type: string(e.Type), Payload: visible})
		}
	}
	if changed {
		rm.broadcastState(room)
	}
	return len(events) > 0
}

func (rm *RoomManager) broadcastState(room *Room) {
	for seat := range room.Players {
		connID := rm.sessions.ConnectionForSeat(room.Code, seat)
		if connID == "" {
			continue
		}
		rm.sender.Send(connID, ServerMessage{Type: "state_changed", Payload: room.Match.GetClientState(seat)})
	}
}

func (rm *RoomManager) broadcastLobby(room *Room) {
	for seat := range room.Players {
		connID := rm.sessions.ConnectionForSeat(room.Code, seat)
		if connID == "" {
			continue
		}
		rm.sender.Send(connID, ServerMessage{Type: "lobby_update", Payload: rm.lobbyState(room, seat)})
	}
}

func (rm *RoomManager) lobbyState(room *Room, seat int) LobbyState {
	players := make([]LobbyPlayer, len(room.Players))
	for i, p := range room.Players {
		players[i] = LobbyPlayer{
			Seat:      i,
			Name:      p.Name,
			Avatar:    p.Avatar,
			IsBot:     p.IsBot(),
			IsHost:    i == 0,
			Connected: p.IsBot() || rm.sessions.ConnectionForSeat(room.Code, i) != "",
			IsYou:     i == seat,
		}
	}
	return LobbyState{
		RoomCode: room.Code,
		Status:   string(room.Status),
		Players:  players,
		CanStart: !room.InMatch() && len(room.Players) >= okey.MinPlayers,
		YourSeat: seat,
	}
}

func (rm *RoomManager) persist(room *Room) {
	rec, err := room.record(rm.now())
	if err != nil {
		room.log.Error().Err(err).Msg("Failed to snapshot match")
		return
	}
	rm.persister.Enqueue(rec)
}

// ============================================================================
// BACKGROUND WORK
// ============================================================================

// Tick runs overdue turn timeouts across all rooms. It returns how many rooms
// had an automatic move.
func (rm *RoomManager) Tick(now time.Time) int {
	moved := 0
	for _, room := range rm.allRooms() {
		room.mu.Lock()
		if !room.closed && room.InMatch() && room.Match.CheckTimeout(now) {
			moved++
			rm.fanOut(room)
			rm.persist(room)
		}
		room.mu.Unlock()
	}
	return moved
}

// SaveAll writes every room that has a match directly to store.
func (rm *RoomManager) SaveAll(ctx context.Context, store MatchStore) (int, error) {
	saved := 0
	var errs []error
	for _, room := range rm.allRooms() {
		room.mu.Lock()
		if room.closed || room.Match == nil {
			room.mu.Unlock()
			continue
		}
		rec, err := room.record(rm.now())
		room.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := store.SaveMatch(ctx, rec); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// CleanupIdle closes rooms nobody is connected to that have seen no activity
// for maxIdle. Restored rooms that are never reclaimed end up here.
func (rm *RoomManager) CleanupIdle(now time.Time, maxIdle time.Duration) int {
	closed := 0
	for _, room := range rm.allRooms() {
		room.mu.Lock()
		if !room.closed &&
			rm.sessions.ConnectedCount(room.Code) == 0 &&
			now.Sub(room.LastActivity) > maxIdle {
			rm.closeRoom(room)
			closed++
		}
		room.mu.Unlock()
	}
	return closed
}

// RestoreRooms loads unfinished matches into rooms with every seat
// disconnected. Reconnect tokens stay valid so players can resume.
func (rm *RoomManager) RestoreRooms(ctx context.Context, store MatchStore) (int, error) {
	records, err := store.LoadActiveMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active matches: %w", err)
	}

	restored := 0
	for _, rec := range records {
		if rm.room(rec.RoomCode) != nil {
			continue
		}

		log := rm.log.With().Str("room", rec.RoomCode).Logger()
		rm.mu.Lock()
		seed := rm.rng.Int63()
		rm.mu.Unlock()

		m, err := okey.RestoreMatch(rec.Data,
			okey.WithLogger(log),
			okey.WithRand(rand.New(rand.NewSource(seed))),
			okey.WithClock(rm.now),
		)
		if err != nil {
			log.Error().Err(err).Msg("Skipping unreadable match")
			continue
		}

		room := newRoom(rec.RoomCode, rec.CreatedAt, rm.log)
		room.Status = RoomGaming
		room.Players = m.Players
		room.Match = m
		room.LastActivity = rm.now()

		for seat, p := range m.Players {
			if p.Kind == okey.Human {
				p.ConnectionState = okey.TempDisconnected
			}
			if p.ReconnectToken == "" {
				continue
			}
			rm.sessions.Restore(Session{
				Token:    p.ReconnectToken,
				RoomCode: room.Code,
				Seat:     seat,
				PlayerID: p.ID,
			})
		}

		rm.mu.Lock()
		rm.rooms[room.Code] = room
		rm.usedCodes[room.Code] = true
		rm.mu.Unlock()
		restored++
	}
	return restored, nil
}
