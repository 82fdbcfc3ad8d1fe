package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var ErrRateLimited = errors.New("RATE_LIMITED: Too many messages, slow down")

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler)

	mux.HandleFunc("/websocket", s.websocketHandler)

	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case slices.Contains(s.cfg.AllowedOrigins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.cfg.AllowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status      string            `json:"status"`
	Rooms       int               `json:"rooms"`
	Connections int               `json:"connections"`
	Database    map[string]string `json:"database,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "up",
		Rooms:       s.rooms.RoomCount(),
		Connections: s.connections.Count(),
	}
	status := http.StatusOK
	if s.db != nil {
		resp.Database = s.db.Health(r.Context())
		if resp.Database["status"] != "up" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Failed to marshal health check response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.log.Debug().Err(err).Msg("Failed to write health response")
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket accept failed")
		return
	}

	ctx := r.Context()
	connectionID := uuid.NewString()
	log := s.log.With().Str("conn", connectionID).Logger()

	s.connections.AddConnection(ctx, connectionID, socket)
	s.health.UpdateActivity(connectionID)
	log.Info().Msg("New connection")

	defer func() {
		s.rooms.HandleDisconnect(connectionID)
		s.connections.RemoveConnection(connectionID)
		s.limiter.RemoveConnection(connectionID)
		s.health.RemoveConnection(connectionID)
		log.Info().Msg("Connection closed")
	}()

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("Read ended")
			return
		}
		s.health.UpdateActivity(connectionID)

		if msgType != websocket.MessageText {
			log.Debug().Msg("Non-text input ignored")
			continue
		}
		if !s.limiter.Allow(connectionID) {
			s.sendError(connectionID, ErrRateLimited)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(connectionID, fmt.Errorf("INVALID_JSON: %v", err))
			continue
		}

		log.Debug().Str("type", msg.Type).Msg("Message received")
		if err := s.dispatch(connectionID, msg); err != nil {
			log.Debug().Err(err).Str("type", msg.Type).Msg("Request rejected")
			s.sendError(connectionID, err)
		}
	}
}

// originPatterns turns ALLOWED_ORIGINS into host patterns for the handshake
// origin check.
func (s *Server) originPatterns() []string {
	patterns := make([]string, 0, len(s.cfg.AllowedOrigins))
	for _, origin := range s.cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		origin = strings.TrimPrefix(origin, "https://")
		origin = strings.TrimPrefix(origin, "http://")
		if origin != "" {
			patterns = append(patterns, origin)
		}
	}
	return patterns
}

// dispatch routes one client message. A returned error goes back to the
// sender as an error message; successful requests answer through the room.
func (s *Server) dispatch(connectionID string, msg ClientMessage) error {
	if err := ValidateMessageType(msg.Type); err != nil {
		return err
	}

	switch msg.Type {
	case "ping":
		s.connections.Send(connectionID, ServerMessage{Type: "pong", Payload: struct{}{}})
		return nil

	case "create_room":
		var req CreateRoomRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return err
		}
		_, err := s.rooms.CreateRoom(connectionID, req.Name, req.Avatar)
		return err

	case "join":
		var req JoinRoomRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return err
		}
		_, err := s.rooms.JoinRoom(connectionID, req.RoomCode, req.Name, req.Avatar)
		return err

	case "reconnect":
		var req ReconnectRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return err
		}
		_, err := s.rooms.Reconnect(connectionID, req.Token)
		return err

	case "add_bot":
		return s.rooms.AddBot(connectionID)

	case "start_game":
		return s.rooms.StartGame(connectionID)

	case "draw_from_deck":
		var req DrawRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return err
		}
		return s.rooms.DrawFromDeck(connectionID, req.TargetSlot())

	case "draw_from_discard":
		var req DrawRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return err
		}
		return s.rooms.DrawFromDiscard(connectionID, req.TargetSlot())

	case "discard":
		var req SlotRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return err
		}
		return s.rooms.Discard(connectionID, req.Slot)

	case "move_tile":
		var req MoveTileRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return err
		}
		return s.rooms.MoveTile(connectionID, req.From, req.To)

	case "attempt_finish":
		var req SlotRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return err
		}
		result, err := s.rooms.AttemptFinish(connectionID, req.Slot)
		if err != nil {
			return err
		}
		s.connections.Send(connectionID, ServerMessage{Type: "finish_result", Payload: result})
		return nil

	case "show_indicator":
		return s.rooms.ShowIndicator(connectionID)

	case "sync":
		return s.rooms.Sync(connectionID)
	}
	return nil
}

// decodePayload accepts an absent payload as the zero request.
func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("INVALID_PAYLOAD: %v", err)
	}
	return nil
}

func (s *Server) sendError(connectionID string, err error) {
	s.connections.Send(connectionID, ServerMessage{
		Type:    "error",
		Payload: newErrorMessage(err),
	})
}

// newErrorMessage splits "CODE: message" errors so clients can switch on the
// code. Wrapped errors keep the code of their outermost prefix.
func newErrorMessage(err error) ErrorMessage {
	text := err.Error()
	code, _, found := strings.Cut(text, ":")
	if !found || code == "" || strings.ToUpper(code) != code || strings.ContainsRune(code, ' ') {
		return ErrorMessage{Message: text, Code: "INTERNAL"}
	}
	return ErrorMessage{Message: text, Code: code}
}
