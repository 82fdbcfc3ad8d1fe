package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"okey-server/internal/database"
)

const (
	scanInterval    = time.Second
	cleanupInterval = time.Hour
)

type Server struct {
	cfg         Config
	log         zerolog.Logger
	db          database.Service
	store       MatchStore
	saver       *Saver
	connections *ConnectionManager
	rooms       *RoomManager
	limiter     *RateLimiter
	health      *ConnectionHealth
	now         func() time.Time
}

// NewServer wires the room layer to store. db is only used for health
// reporting and may be nil when matches are kept in memory.
func NewServer(cfg Config, log zerolog.Logger, store MatchStore, db database.Service) *Server {
	connections := NewConnectionManager(log)
	saver := NewSaver(store, log)

	return &Server{
		cfg:         cfg,
		log:         log,
		db:          db,
		store:       store,
		saver:       saver,
		connections: connections,
		rooms:       NewRoomManager(connections, saver, cfg.Match, log),
		limiter:     NewRateLimiter(cfg.RateLimitPerSecond),
		health:      NewConnectionHealth(time.Now),
		now:         time.Now,
	}
}

func (s *Server) Rooms() *RoomManager {
	return s.rooms
}

func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Restore brings unfinished matches back from the store.
func (s *Server) Restore(ctx context.Context) error {
	n, err := s.rooms.RestoreRooms(ctx, s.store)
	if err != nil {
		return err
	}
	s.log.Info().Int("rooms", n).Msg("Restored persisted matches")
	return nil
}

// Run drives the background tasks until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.saver.Run(ctx) })
	g.Go(func() error { s.every(ctx, scanInterval, s.scanTurns); return nil })
	g.Go(func() error { s.every(ctx, s.cfg.SaveInterval, s.periodicSave); return nil })
	g.Go(func() error { s.every(ctx, cleanupInterval, s.cleanup); return nil })
	if s.cfg.IdleTimeout > 0 {
		g.Go(func() error { s.every(ctx, s.cfg.IdleTimeout/2, s.sweepIdle); return nil })
	}

	return g.Wait()
}

func (s *Server) every(ctx context.Context, interval time.Duration, task func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

func (s *Server) scanTurns(ctx context.Context) {
	if n := s.rooms.Tick(s.now()); n > 0 {
		s.log.Debug().Int("rooms", n).Msg("Automatic moves played")
	}
}

// periodicSave catches state the per-move saves skipped, such as
// connection flags and dropped queue entries.
func (s *Server) periodicSave(ctx context.Context) {
	saved, err := s.rooms.SaveAll(ctx, s.store)
	if err != nil {
		s.log.Error().Err(err).Msg("Periodic save incomplete")
	}
	s.log.Debug().Int("matches", saved).Msg("Periodic save completed")
}

func (s *Server) cleanup(ctx context.Context) {
	deleted, err := s.store.CleanupFinished(ctx, s.cfg.CleanupAfter)
	if err != nil {
		s.log.Error().Err(err).Msg("Cleanup task failed")
	} else if deleted > 0 {
		s.log.Info().Int("matches", deleted).Msg("Deleted old finished matches")
	}

	if closed := s.rooms.CleanupIdle(s.now(), s.cfg.CleanupAfter); closed > 0 {
		s.log.Info().Int("rooms", closed).Msg("Closed abandoned rooms")
	}
}

func (s *Server) sweepIdle(ctx context.Context) {
	for _, id := range s.idleConnections() {
		s.log.Info().Str("conn", id).Msg("Closing idle connection")
		s.health.RemoveConnection(id)
		s.connections.Kick(id, ServerMessage{
			Type:    "idle_timeout",
			Payload: NoticeMessage{Message: "Connection closed after inactivity"},
		})
	}
}

// idleConnections lists quiet connections that hold no seat. Seated players
// may sit in a lobby or wait out other turns without sending anything.
func (s *Server) idleConnections() []string {
	var idle []string
	for _, id := range s.health.GetInactiveConnections(s.cfg.IdleTimeout) {
		if _, seated := s.rooms.Sessions().ByConnection(id); seated {
			continue
		}
		idle = append(idle, id)
	}
	return idle
}

// Shutdown saves every match and tells connected players the server is going
// away. The HTTP server is shut down by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Saving matches before shutdown")
	saved, err := s.rooms.SaveAll(ctx, s.store)
	s.log.Info().Int("matches", saved).Msg("Matches saved")

	s.connections.CloseAll(ServerMessage{
		Type:    "server_shutdown",
		Payload: NoticeMessage{Message: "Server is restarting, reconnect with your token"},
	})
	return err
}
