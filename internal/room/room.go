// Package room implements the per-room state machine: membership, turn
// tracking, chat, rematch negotiation, and the AI opponent loop. Every
// operation is serialized on the room mutex; events are fanned out through
// non-blocking subscriber queues, so a stalled client never holds up play.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/flipflop-server/internal/ai"
	"github.com/park285/flipflop-server/internal/apperrors"
	"github.com/park285/flipflop-server/internal/game"
	"github.com/park285/flipflop-server/internal/obslog"
	"github.com/park285/flipflop-server/internal/protocol"
)

const chatHistoryLimit = 100

// Config fixes a room's rules and timers at creation.
type Config struct {
	ID           string
	GameType     game.GameType
	GameMode     GameMode
	AIDifficulty ai.Difficulty
	WinOnEntry   bool

	// AIMoveDelay makes the computer feel like it is thinking; AIThinkTimeout
	// bounds the actual search.
	AIMoveDelay    time.Duration
	AIThinkTimeout time.Duration

	// OnEnd receives the result of every finished game, off the room lock.
	OnEnd func(Result)
}

// InitialPlayer is the creating client.
type InitialPlayer struct {
	ClientID string
	Username string
	Sub      Subscriber
}

type Room struct {
	ID       string
	GameType game.GameType
	GameMode GameMode

	mu    sync.Mutex
	cfg   Config
	g     *game.FlipFlop
	aiEng *ai.Engine

	player1 *PlayerSlot
	player2 *PlayerSlot
	subs    map[string]*member

	status       Status
	messages     []ChatMessage
	createdAt    time.Time
	startedAt    time.Time
	lastActivity time.Time
}

// New builds a room with the creator seated as white. Singleplayer rooms get
// an AI opponent in the black seat immediately.
func New(cfg Config, first InitialPlayer) (*Room, error) {
	var opts []game.Option
	if cfg.WinOnEntry {
		opts = append(opts, game.WithWinOnEntry())
	}
	g, err := game.New(cfg.GameType, opts...)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	r := &Room{
		ID:           cfg.ID,
		GameType:     cfg.GameType,
		GameMode:     cfg.GameMode,
		cfg:          cfg,
		g:            g,
		subs:         make(map[string]*member),
		status:       StatusWaiting,
		createdAt:    now,
		lastActivity: now,
	}

	r.player1 = &PlayerSlot{
		ID:       first.ClientID,
		Username: first.Username,
		Color:    game.White,
		IsActive: true,
	}
	r.subs[first.ClientID] = &member{sub: first.Sub, username: first.Username}

	if cfg.GameMode == ModeSingleplayer {
		eng, err := ai.New(g, cfg.AIDifficulty)
		if err != nil {
			return nil, err
		}
		r.aiEng = eng
		r.player2 = &PlayerSlot{
			ID:       uuid.New().String(),
			Username: ai.PickName(),
			Color:    game.Black,
			IsAI:     true,
			IsActive: true,
		}
	}
	return r, nil
}

// broadcast fans an event out to every member, optionally skipping one client.
// Callers must hold the room mutex.
func (r *Room) broadcast(t protocol.MsgType, payload any, skipID *string) {
	raw := protocol.NewMessage(t, payload, "")
	for id, m := range r.subs {
		if skipID != nil && id == *skipID {
			continue
		}
		m.sub.Send(raw)
	}
}

// gameState builds the snapshot payload. Callers must hold the room mutex.
func (r *Room) gameState() GameState {
	players := make([]PlayerSlot, 0, 2)
	if r.player1 != nil {
		players = append(players, *r.player1)
	}
	if r.player2 != nil {
		players = append(players, *r.player2)
	}
	return GameState{
		Board:       r.g.Board(),
		CurrentTurn: r.g.Turn(),
		Status:      r.status,
		Winner:      r.g.Winner(),
		Players:     players,
	}
}

func (r *Room) getPlayer(id string) *PlayerSlot {
	if r.player1 != nil && r.player1.ID == id {
		return r.player1
	}
	if r.player2 != nil && r.player2.ID == id {
		return r.player2
	}
	return nil
}

func (r *Room) playersInactive() bool {
	return (r.player1 == nil || !r.player1.IsActive) && (r.player2 == nil || !r.player2.IsActive)
}

// validateActionStatus gates game commands on room and game state. Room
// status wins over game state, so a closed room always reports room_closed.
func (r *Room) validateActionStatus() error {
	switch {
	case r.status == StatusClosed:
		return apperrors.ErrRoomClosed
	case r.status == StatusEnded || r.g.Ended():
		return apperrors.ErrGameEnded
	case r.status != StatusOngoing:
		return apperrors.ErrGameNotStarted
	}
	return nil
}

func (r *Room) snapshotLocked(spectator bool) *JoinSnapshot {
	msgs := r.messages
	if len(msgs) > chatHistoryLimit {
		msgs = msgs[len(msgs)-chatHistoryLimit:]
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return &JoinSnapshot{
		IsSpectator: spectator,
		State:       r.gameState(),
		History:     r.g.History(),
		Messages:    out,
	}
}

// Enter admits a client: seated players resume their seat (a fresh socket
// replaces the previous subscriber), new clients take a free seat or become
// spectators. Username may be empty only for returning players.
func (r *Room) Enter(clientID string, sub Subscriber, username string) (*JoinSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusClosed {
		return nil, apperrors.ErrRoomClosed
	}

	if player := r.getPlayer(clientID); player != nil && !player.IsAI {
		wasActive := player.IsActive
		player.IsActive = true
		r.subs[clientID] = &member{sub: sub, username: player.Username}
		r.lastActivity = time.Now()

		if !wasActive {
			r.broadcast(protocol.MsgPlayerRejoined, protocol.JSONMap{
				"player_id":  clientID,
				"game_state": r.gameState(),
			}, &clientID)
		}
		obslog.L().Info("room_rejoin", zap.String("room_id", r.ID), zap.String("client_id", clientID))
		return r.snapshotLocked(false), nil
	}

	if r.GameMode == ModeSingleplayer {
		return nil, apperrors.ErrRoomFull
	}
	if username == "" {
		return nil, apperrors.ErrUsernameRequired
	}

	var seat **PlayerSlot
	var color game.Color
	switch {
	case r.player1 == nil:
		seat, color = &r.player1, game.White
	case r.player2 == nil:
		seat, color = &r.player2, game.Black
	}

	r.subs[clientID] = &member{sub: sub, username: username}
	r.lastActivity = time.Now()

	if seat != nil {
		*seat = &PlayerSlot{ID: clientID, Username: username, Color: color, IsActive: true}
		obslog.L().Info("room_join", zap.String("room_id", r.ID), zap.String("client_id", clientID), zap.String("color", string(color)))
		return r.snapshotLocked(false), nil
	}

	obslog.L().Info("room_spectate", zap.String("room_id", r.ID), zap.String("client_id", clientID))
	return r.snapshotLocked(true), nil
}

// Start flips a waiting room to ongoing once both seats are filled and
// active, broadcasting the initial snapshot. Returns whether it started.
func (r *Room) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusWaiting {
		return false
	}
	if r.player1 == nil || r.player2 == nil || !r.player1.IsActive || !r.player2.IsActive {
		return false
	}

	r.status = StatusOngoing
	r.startedAt = time.Now()
	r.lastActivity = r.startedAt
	r.broadcast(protocol.MsgTypeGameStart, r.gameState(), nil)
	obslog.L().Info("game_start", zap.String("room_id", r.ID), zap.Int("game_type", int(r.GameType)))
	return true
}

// HandleMove validates and applies a player's move, broadcasting the update
// and any resulting game end. In singleplayer it then schedules the AI reply.
func (r *Room) HandleMove(clientID, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateActionStatus(); err != nil {
		return err
	}
	player := r.getPlayer(clientID)
	if player == nil {
		return apperrors.ErrClientNotFound
	}
	if !player.IsActive {
		return apperrors.ErrPlayerNotActive
	}
	if player.Color != r.g.Turn() {
		return apperrors.ErrNotYourTurn
	}

	fromPos, err := r.g.ParseSquare(from)
	if err != nil {
		return err
	}
	toPos, err := r.g.ParseSquare(to)
	if err != nil {
		return err
	}
	if err := r.g.Apply(fromPos, toPos); err != nil {
		return err
	}
	r.lastActivity = time.Now()

	// Echo the move in canonical notation, not the caller's spelling.
	size := r.g.Size()
	r.broadcast(protocol.MsgTypeMove, protocol.JSONMap{
		"player_id": clientID,
		"color":     player.Color,
		"move": protocol.JSONMap{
			"from": game.FormatSquare(fromPos, size),
			"to":   game.FormatSquare(toPos, size),
		},
		"board": r.g.Board(),
	}, nil)

	if r.g.Ended() {
		r.endGame(endReason(r.g.Winner()), r.g.Winner())
		return nil
	}
	if r.GameMode == ModeSingleplayer && r.player2 != nil && r.g.Turn() == r.player2.Color {
		go r.aiMove()
	}
	return nil
}

func endReason(winner game.Color) string {
	if winner == game.None {
		return "draw"
	}
	return "normal"
}

// aiMove waits out the move delay, then searches and applies the AI reply
// under the room lock.
func (r *Room) aiMove() {
	time.Sleep(r.cfg.AIMoveDelay)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.aiEng == nil || r.player2 == nil {
		return
	}
	if err := r.validateActionStatus(); err != nil {
		return
	}
	if r.g.Turn() != r.player2.Color {
		return
	}

	timeout := r.cfg.AIThinkTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	m, err := r.aiEng.ChooseMove(ctx, r.player2.Color)
	if err != nil {
		obslog.L().Error("ai_move_failed", zap.String("room_id", r.ID), zap.Error(err))
		return
	}
	if m == nil {
		// Nothing playable: the computer concedes.
		r.endGame("forfeit", r.player1.Color)
		return
	}

	size := r.g.Size()
	from := game.FormatSquare(m.From, size)
	to := game.FormatSquare(m.To, size)
	if err := r.g.Apply(m.From, m.To); err != nil {
		obslog.L().Error("ai_move_rejected", zap.String("room_id", r.ID), zap.Error(err))
		return
	}
	r.lastActivity = time.Now()

	r.broadcast(protocol.MsgTypeMove, protocol.JSONMap{
		"player_id": r.player2.ID,
		"color":     r.player2.Color,
		"move":      protocol.JSONMap{"from": from, "to": to},
		"board":     r.g.Board(),
	}, nil)

	if r.g.Ended() {
		r.endGame(endReason(r.g.Winner()), r.g.Winner())
	}
}

// endGame marks the game over and notifies members. Callers must hold the
// room mutex.
func (r *Room) endGame(reason string, winner game.Color) {
	r.status = StatusEnded
	r.lastActivity = time.Now()

	payload := protocol.JSONMap{"reason": reason}
	if winner != game.None {
		payload["winner"] = winner
	}
	r.broadcast(protocol.MsgTypeGameEnd, payload, nil)
	obslog.L().Info("game_end", zap.String("room_id", r.ID), zap.String("reason", reason), zap.String("winner", string(winner)))

	if r.cfg.OnEnd != nil {
		res := Result{
			RoomID:     r.ID,
			GameType:   r.GameType,
			GameMode:   r.GameMode,
			Winner:     winner,
			Reason:     reason,
			Moves:      len(r.g.History()),
			FinalBoard: r.g.Board(),
			StartedAt:  r.startedAt,
			EndedAt:    r.lastActivity,
		}
		if r.player1 != nil {
			res.WhiteID, res.WhiteName = r.player1.ID, r.player1.Username
		}
		if r.player2 != nil {
			res.BlackID, res.BlackName = r.player2.ID, r.player2.Username
		}
		go r.cfg.OnEnd(res)
	}

	if r.GameMode == ModeSingleplayer && r.player2 != nil {
		// The computer offers a rematch once the dust settles.
		aiID := r.player2.ID
		go func() {
			time.Sleep(2 * time.Second)
			_ = r.Rematch(aiID)
		}()
	}
}

// HandleChat appends and broadcasts a chat line to every member, sender
// included; the sender reconciles its optimistic echo by client id.
func (r *Room) HandleChat(clientID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusClosed {
		return apperrors.ErrRoomClosed
	}
	sender, ok := r.subs[clientID]
	if !ok {
		return apperrors.ErrClientNotFound
	}
	if content == "" {
		return nil
	}

	msg := ChatMessage{ClientID: clientID, Username: sender.username, Message: content}
	r.messages = append(r.messages, msg)
	r.lastActivity = time.Now()
	r.broadcast(protocol.MsgTypeChat, msg, nil)
	return nil
}

// Leave detaches a client. Players in a running game are only marked
// disconnected so they can rejoin; waiting players and spectators are removed
// outright. Returns true when the room closed as a result.
func (r *Room) Leave(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, clientID)

	player := r.getPlayer(clientID)
	if player == nil {
		return r.status == StatusClosed
	}

	if player.wantsRematch {
		player.wantsRematch = false
		r.broadcast(protocol.MsgTypeRematchCancelled, protocol.JSONMap{"player_id": clientID}, &clientID)
	}

	if r.status == StatusWaiting {
		// Nothing started yet: free the seat for someone else.
		r.vacate(clientID)
	} else {
		player.IsActive = false
	}
	r.broadcast(protocol.MsgPlayerLeft, protocol.JSONMap{"player_id": clientID}, nil)
	obslog.L().Info("room_leave", zap.String("room_id", r.ID), zap.String("client_id", clientID))

	if r.GameMode == ModeSingleplayer {
		r.status = StatusClosed
		return true
	}

	if r.playersInactive() {
		r.status = StatusClosed
		if len(r.subs) > 0 {
			r.broadcast(protocol.MsgTypeGameEnd, protocol.JSONMap{"reason": "players_left"}, nil)
		}
		return true
	}
	return false
}

func (r *Room) vacate(clientID string) {
	if r.player1 != nil && r.player1.ID == clientID {
		r.player1 = nil
	}
	if r.player2 != nil && r.player2.ID == clientID {
		r.player2 = nil
	}
}

// Abandon gives up a disconnected player's seat after the reconnect grace
// expired. A running game ends as a forfeit win for the opponent. Returns
// true when the room closed.
func (r *Room) Abandon(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	player := r.getPlayer(clientID)
	if player == nil || player.IsActive {
		return r.status == StatusClosed
	}

	if r.status == StatusOngoing {
		var winner game.Color
		if r.player1 != nil && r.player1.ID == clientID && r.player2 != nil {
			winner = r.player2.Color
		} else if r.player1 != nil {
			winner = r.player1.Color
		}
		r.endGame("forfeit", winner)
	}
	r.vacate(clientID)
	obslog.L().Info("room_abandon", zap.String("room_id", r.ID), zap.String("client_id", clientID))

	if r.playersInactive() {
		r.status = StatusClosed
		return true
	}
	return false
}

// Forfeit ends a running game immediately with the opponent as winner.
func (r *Room) Forfeit(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateActionStatus(); err != nil {
		return err
	}
	player := r.getPlayer(clientID)
	if player == nil {
		return apperrors.ErrClientNotFound
	}
	r.endGame("forfeit", player.Color.Opponent())
	return nil
}

// Rematch records one side's rematch request; when both sides have asked, the
// room resets to a fresh game and broadcasts a new start.
func (r *Room) Rematch(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusEnded {
		return apperrors.ErrGameNotEnded
	}
	player := r.getPlayer(clientID)
	if player == nil {
		return apperrors.ErrUnauthorizedAction
	}
	player.wantsRematch = true

	if r.player1 != nil && r.player2 != nil && r.player1.wantsRematch && r.player2.wantsRematch {
		var opts []game.Option
		if r.cfg.WinOnEntry {
			opts = append(opts, game.WithWinOnEntry())
		}
		g, err := game.New(r.GameType, opts...)
		if err != nil {
			return err
		}
		r.g = g
		if r.aiEng != nil {
			r.aiEng.Reset(g)
		}
		r.status = StatusOngoing
		r.startedAt = time.Now()
		r.lastActivity = r.startedAt
		r.player1.wantsRematch = false
		r.player2.wantsRematch = false
		r.broadcast(protocol.MsgTypeGameStart, r.gameState(), nil)
		obslog.L().Info("rematch_start", zap.String("room_id", r.ID))
		return nil
	}

	r.broadcast(protocol.MsgTypeRematchRequested, protocol.JSONMap{"player_id": clientID}, &clientID)
	return nil
}

// CancelRematch withdraws a pending rematch request.
func (r *Room) CancelRematch(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusEnded {
		return apperrors.ErrGameNotEnded
	}
	player := r.getPlayer(clientID)
	if player == nil {
		return apperrors.ErrUnauthorizedAction
	}
	player.wantsRematch = false
	r.broadcast(protocol.MsgTypeRematchCancelled, protocol.JSONMap{"player_id": clientID}, &clientID)
	return nil
}

// State returns the current snapshot for read-only consumers.
func (r *Room) State() GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameState()
}

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == StatusClosed
}

// IdleSince reports how long the room has seen no activity.
func (r *Room) IdleSince(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.Sub(r.lastActivity)
}

// Members lists the client ids of all connected members.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subs))
	for id := range r.subs {
		out = append(out, id)
	}
	return out
}

// Close force-closes the room, notifying remaining members. Used by the
// registry's idle sweep.
func (r *Room) Close(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusClosed {
		return
	}
	r.status = StatusClosed
	if len(r.subs) > 0 {
		r.broadcast(protocol.MsgTypeGameEnd, protocol.JSONMap{"reason": reason}, nil)
	}
}
