// Package ws terminates client websockets: it accepts connections, runs the
// keepalive read loop, decodes envelopes, and dispatches commands to the hub
// and rooms.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/flipflop-server/internal/ai"
	"github.com/park285/flipflop-server/internal/apperrors"
	"github.com/park285/flipflop-server/internal/hub"
	"github.com/park285/flipflop-server/internal/obslog"
	"github.com/park285/flipflop-server/internal/protocol"
	"github.com/park285/flipflop-server/internal/room"
	"github.com/park285/flipflop-server/internal/validate"
)

// Config tunes the connection liveness protocol.
type Config struct {
	// PingInterval is how often clients are expected to ping; PingWait is the
	// slack on top before a silent connection is dropped.
	PingInterval time.Duration
	PingWait     time.Duration
}

func (c *Config) withDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PingWait <= 0 {
		c.PingWait = 15 * time.Second
	}
}

type Server struct {
	hub *hub.Hub
	cfg Config
}

func NewServer(h *hub.Hub, cfg Config) *Server {
	cfg.withDefaults()
	return &Server{hub: h, cfg: cfg}
}

// ServeHTTP upgrades the request and runs the connection until it drops.
// Reconnecting clients pass their previous identity as ?client_id=.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}

	c := newClient("", conn)
	clientID := s.hub.Connect(r.URL.Query().Get("client_id"), c)
	c.id = clientID
	go c.writeLoop()

	c.Send(protocol.NewMessage(protocol.MsgTypeConnected, protocol.JSONMap{"client_id": clientID}, ""))

	s.readLoop(r.Context(), c)

	s.hub.Disconnect(clientID, c)
	c.close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("ws_close", zap.String("client_id", clientID))
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	deadline := s.cfg.PingInterval + s.cfg.PingWait
	for {
		readCtx, cancel := context.WithTimeout(ctx, deadline)
		typ, data, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if string(data) == "ping" {
			c.Send([]byte("pong"))
			continue
		}
		s.dispatch(c, data)
	}
}

func (s *Server) dispatch(c *client, data []byte) {
	var msg protocol.IncomingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(c, apperrors.ErrInvalidMessageFormat, nil, "")
		return
	}
	if details, err := validate.Struct(msg); err != nil {
		s.sendError(c, apperrors.ErrInvalidMessageFormat, details, msg.RequestID)
		return
	}

	var err error
	switch msg.Type {
	case protocol.MsgTypeCreateRoom:
		err = s.handleCreate(c, msg)
	case protocol.MsgTypeJoinRoom:
		err = s.handleJoin(c, msg)
	case protocol.MsgTypeLeaveRoom:
		err = s.handleLeave(c, msg)
	case protocol.MsgTypeMove:
		err = s.handleMove(c, msg)
	case protocol.MsgTypeSendMessage:
		err = s.handleChat(c, msg)
	case protocol.MsgTypeForfeit:
		err = s.withRoom(c, func(r *room.Room) error { return r.Forfeit(c.id) })
	case protocol.MsgTypeRematch:
		err = s.withRoom(c, func(r *room.Room) error { return r.Rematch(c.id) })
	case protocol.MsgTypeCancelRematch:
		err = s.withRoom(c, func(r *room.Room) error { return r.CancelRematch(c.id) })
	default:
		err = apperrors.ErrInvalidMsgType
	}
	if err != nil {
		var ve *validationError
		if errors.As(err, &ve) {
			s.sendError(c, ve.sentinel, ve.details, msg.RequestID)
			return
		}
		s.sendError(c, err, nil, msg.RequestID)
	}
}

// validationError carries field details alongside the sentinel code.
type validationError struct {
	sentinel error
	details  map[string]string
}

func (e *validationError) Error() string { return e.sentinel.Error() }

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return apperrors.ErrInvalidMessagePayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.ErrInvalidMessagePayload
	}
	if details, err := validate.Struct(dst); err != nil {
		return &validationError{sentinel: apperrors.ErrValidationFailed, details: details}
	}
	return nil
}

func (s *Server) handleCreate(c *client, msg protocol.IncomingMessage) error {
	var p protocol.CreateRoom
	if err := decodePayload(msg.Payload, &p); err != nil {
		return err
	}
	r, err := s.hub.CreateRoom(c.id, c, p.Username, p.GameType, room.GameMode(p.GameMode), ai.Difficulty(p.AIDifficulty))
	if err != nil {
		return err
	}
	c.Send(protocol.NewMessage(protocol.MsgTypeRoomCreated, protocol.JSONMap{
		"room_id":      r.ID,
		"client_id":    c.id,
		"is_spectator": false,
		"game_state":   r.State(),
	}, msg.RequestID))
	// Singleplayer rooms have both seats filled from the start.
	r.Start()
	return nil
}

func (s *Server) handleJoin(c *client, msg protocol.IncomingMessage) error {
	var p protocol.JoinRoom
	if err := decodePayload(msg.Payload, &p); err != nil {
		return err
	}
	r, snap, err := s.hub.JoinRoom(c.id, c, strings.ToUpper(p.RoomID), p.Username)
	if err != nil {
		return err
	}
	c.Send(protocol.NewMessage(protocol.MsgTypeJoinedRoom, protocol.JSONMap{
		"room_id":      r.ID,
		"is_spectator": snap.IsSpectator,
		"game_type":    r.GameType,
		"game_mode":    r.GameMode,
		"game_state":   snap.State,
		"move_history": snap.History,
		"messages":     snap.Messages,
	}, msg.RequestID))
	r.Start()
	return nil
}

func (s *Server) handleLeave(c *client, msg protocol.IncomingMessage) error {
	if err := s.hub.LeaveRoom(c.id); err != nil {
		return err
	}
	c.Send(protocol.NewMessage(protocol.MsgTypeLeftRoom, protocol.JSONMap{}, msg.RequestID))
	return nil
}

func (s *Server) handleMove(c *client, msg protocol.IncomingMessage) error {
	var p protocol.MovePayload
	if err := decodePayload(msg.Payload, &p); err != nil {
		return err
	}
	return s.withRoom(c, func(r *room.Room) error {
		return r.HandleMove(c.id, p.From, p.To)
	})
}

func (s *Server) handleChat(c *client, msg protocol.IncomingMessage) error {
	var p protocol.ChatPayload
	if err := decodePayload(msg.Payload, &p); err != nil {
		return err
	}
	return s.withRoom(c, func(r *room.Room) error {
		return r.HandleChat(c.id, p.Content)
	})
}

func (s *Server) withRoom(c *client, fn func(*room.Room) error) error {
	r, err := s.hub.RoomFor(c.id)
	if err != nil {
		return err
	}
	return fn(r)
}

func (s *Server) sendError(c *client, sentinel error, details map[string]string, requestID string) {
	var det any
	if details != nil {
		det = details
	}
	c.Send(protocol.NewErrorMessage(apperrors.New(sentinel, det), requestID))
	obslog.L().Debug("ws_error",
		zap.String("client_id", c.id),
		zap.String("code", sentinel.Error()))
}
