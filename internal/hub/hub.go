// Package hub is the room registry and session manager: it issues client
// identities, generates room codes, binds each client to at most one room,
// and sweeps abandoned sessions and stale rooms in the background.
package hub

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/flipflop-server/internal/ai"
	"github.com/park285/flipflop-server/internal/apperrors"
	"github.com/park285/flipflop-server/internal/game"
	"github.com/park285/flipflop-server/internal/obslog"
	"github.com/park285/flipflop-server/internal/room"
)

const (
	roomCodeChars    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLen      = 4
	roomCodeAttempts = 1000
)

// Config tunes session and room lifetimes.
type Config struct {
	// ReconnectGrace is how long a disconnected player keeps their seat.
	ReconnectGrace time.Duration
	// RoomIdleTTL closes rooms that have seen no activity for this long.
	RoomIdleTTL time.Duration
	// SweepInterval is how often the janitor runs.
	SweepInterval time.Duration

	AIMoveDelay    time.Duration
	AIThinkTimeout time.Duration
	WinOnEntry     bool

	// OnEnd is forwarded to every room.
	OnEnd func(room.Result)
}

func (c *Config) withDefaults() {
	if c.ReconnectGrace <= 0 {
		c.ReconnectGrace = 30 * time.Second
	}
	if c.RoomIdleTTL <= 0 {
		c.RoomIdleTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Second
	}
}

// Conn is the transport handle of one live connection. The hub uses it to
// sever a socket whose identity has been claimed by a newer connection.
type Conn interface {
	Kick(reason string)
}

type session struct {
	conn           Conn // nil while disconnected
	roomID         string
	disconnectedAt time.Time // zero while connected
}

type Hub struct {
	cfg Config

	mu       sync.Mutex
	rooms    map[string]*room.Room
	sessions map[string]*session

	stop chan struct{}
	done chan struct{}
}

func New(cfg Config) *Hub {
	cfg.withDefaults()
	h := &Hub{
		cfg:      cfg,
		rooms:    make(map[string]*room.Room),
		sessions: make(map[string]*session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.janitor()
	return h
}

// Close stops the janitor and force-closes every room.
func (h *Hub) Close() {
	close(h.stop)
	<-h.done

	h.mu.Lock()
	rooms := make([]*room.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = make(map[string]*room.Room)
	h.mu.Unlock()

	for _, r := range rooms {
		r.Close("server_shutdown")
	}
}

// Connect registers a connection under the requested identity, or issues a
// fresh one when the id is empty or unknown. An identity belongs to exactly
// one connection at a time: claiming a live identity kicks the previous
// socket. Returns the effective client id.
func (h *Hub) Connect(requestedID string, conn Conn) string {
	h.mu.Lock()
	if requestedID != "" {
		if s, ok := h.sessions[requestedID]; ok {
			prev := s.conn
			s.conn = conn
			s.disconnectedAt = time.Time{}
			h.mu.Unlock()
			if prev != nil && prev != conn {
				prev.Kick("connection superseded")
			}
			obslog.L().Info("client_reconnect", zap.String("client_id", requestedID))
			return requestedID
		}
	}
	id := uuid.New().String()
	h.sessions[id] = &session{conn: conn}
	h.mu.Unlock()
	obslog.L().Info("client_connect", zap.String("client_id", id))
	return id
}

// Disconnect marks the session dropped and demotes the client in its room.
// The seat survives until the reconnect grace expires. Only the connection
// that currently owns the identity can disconnect it; a superseded socket
// closing is ignored.
func (h *Hub) Disconnect(clientID string, conn Conn) {
	h.mu.Lock()
	s, ok := h.sessions[clientID]
	if !ok || s.conn != conn {
		h.mu.Unlock()
		return
	}
	s.conn = nil
	s.disconnectedAt = time.Now()
	r := h.rooms[s.roomID]
	h.mu.Unlock()

	if r == nil {
		return
	}
	if closed := r.Leave(clientID); closed {
		h.removeRoom(r.ID)
	}
}

// CreateRoom builds a room with a fresh code and seats the creator as white.
func (h *Hub) CreateRoom(clientID string, sub room.Subscriber, username string, gt game.GameType, gm room.GameMode, diff ai.Difficulty) (*room.Room, error) {
	if gm != room.ModeSingleplayer && gm != room.ModeMultiplayer {
		return nil, apperrors.ErrInvalidGameMode
	}
	if gm == room.ModeSingleplayer && !ai.Valid(diff) {
		return nil, apperrors.ErrInvalidAIDifficulty
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[clientID]
	if !ok {
		return nil, apperrors.ErrClientNotFound
	}
	if s.roomID != "" {
		return nil, apperrors.ErrAlreadyInGame
	}

	code, err := h.newRoomCode()
	if err != nil {
		return nil, err
	}
	r, err := room.New(room.Config{
		ID:             code,
		GameType:       gt,
		GameMode:       gm,
		AIDifficulty:   diff,
		WinOnEntry:     h.cfg.WinOnEntry,
		AIMoveDelay:    h.cfg.AIMoveDelay,
		AIThinkTimeout: h.cfg.AIThinkTimeout,
		OnEnd:          h.cfg.OnEnd,
	}, room.InitialPlayer{ClientID: clientID, Username: username, Sub: sub})
	if err != nil {
		return nil, err
	}
	h.rooms[code] = r
	s.roomID = code
	obslog.L().Info("room_create",
		zap.String("room_id", code),
		zap.String("client_id", clientID),
		zap.Int("game_type", int(gt)),
		zap.Int("game_mode", int(gm)))
	return r, nil
}

// JoinRoom admits the client into an existing room, as player, rejoiner, or
// spectator. Callers are responsible for starting the room afterwards.
func (h *Hub) JoinRoom(clientID string, sub room.Subscriber, roomID, username string) (*room.Room, *room.JoinSnapshot, error) {
	h.mu.Lock()
	s, ok := h.sessions[clientID]
	if !ok {
		h.mu.Unlock()
		return nil, nil, apperrors.ErrClientNotFound
	}
	if s.roomID != "" && s.roomID != roomID {
		h.mu.Unlock()
		return nil, nil, apperrors.ErrAlreadyInGame
	}
	r, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return nil, nil, apperrors.ErrRoomNotFound
	}

	snap, err := r.Enter(clientID, sub, username)
	if err != nil {
		return nil, nil, err
	}

	h.mu.Lock()
	// The binding may have changed while Enter ran without the hub lock; a
	// client seated elsewhere in the meantime must not hold two rooms.
	if s.roomID != "" && s.roomID != roomID {
		h.mu.Unlock()
		if closed := r.Leave(clientID); closed {
			h.removeRoom(r.ID)
		}
		return nil, nil, apperrors.ErrAlreadyInGame
	}
	s.roomID = roomID
	if s.conn != nil {
		s.disconnectedAt = time.Time{}
	}
	h.mu.Unlock()
	return r, snap, nil
}

// LeaveRoom detaches the client from its room on explicit request.
func (h *Hub) LeaveRoom(clientID string) error {
	h.mu.Lock()
	s, ok := h.sessions[clientID]
	if !ok || s.roomID == "" {
		h.mu.Unlock()
		return apperrors.ErrNotInGame
	}
	r := h.rooms[s.roomID]
	s.roomID = ""
	h.mu.Unlock()

	if r == nil {
		return apperrors.ErrNotInGame
	}
	if closed := r.Leave(clientID); closed {
		h.removeRoom(r.ID)
	}
	return nil
}

// RoomFor resolves the room a client is bound to, for in-room commands.
func (h *Hub) RoomFor(clientID string) (*room.Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[clientID]
	if !ok || s.roomID == "" {
		return nil, apperrors.ErrNotInGame
	}
	r, ok := h.rooms[s.roomID]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return r, nil
}

// Room looks up a room by code.
func (h *Hub) Room(code string) (*room.Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[code]
	return r, ok
}

// newRoomCode draws random codes until one is free. Callers must hold h.mu.
func (h *Hub) newRoomCode() (string, error) {
	buf := make([]byte, roomCodeLen)
	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		for i := range buf {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeChars))))
			if err != nil {
				return "", apperrors.ErrIDGenerationFailed
			}
			buf[i] = roomCodeChars[n.Int64()]
		}
		code := string(buf)
		if _, taken := h.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", apperrors.ErrIDGenerationFailed
}

func (h *Hub) removeRoom(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, code)
	for _, s := range h.sessions {
		if s.roomID == code {
			s.roomID = ""
		}
	}
	obslog.L().Info("room_remove", zap.String("room_id", code))
}

func (h *Hub) janitor() {
	defer close(h.done)
	t := time.NewTicker(h.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-h.stop:
			return
		case now := <-t.C:
			h.sweep(now)
		}
	}
}

// sweep abandons sessions past the reconnect grace and retires closed or
// idle rooms.
func (h *Hub) sweep(now time.Time) {
	type expired struct {
		clientID string
		r        *room.Room
	}

	h.mu.Lock()
	var gone []expired
	for id, s := range h.sessions {
		if s.disconnectedAt.IsZero() {
			continue
		}
		if now.Sub(s.disconnectedAt) < h.cfg.ReconnectGrace {
			continue
		}
		gone = append(gone, expired{clientID: id, r: h.rooms[s.roomID]})
		delete(h.sessions, id)
	}
	var stale []*room.Room
	for _, r := range h.rooms {
		if r.Closed() || r.IdleSince(now) > h.cfg.RoomIdleTTL {
			stale = append(stale, r)
		}
	}
	h.mu.Unlock()

	for _, e := range gone {
		obslog.L().Info("session_expire", zap.String("client_id", e.clientID))
		if e.r == nil {
			continue
		}
		if closed := e.r.Abandon(e.clientID); closed {
			h.removeRoom(e.r.ID)
		}
	}
	for _, r := range stale {
		r.Close("room_expired")
		h.removeRoom(r.ID)
	}
}
