package room

import (
	"time"

	"github.com/park285/flipflop-server/internal/game"
)

// Status is the room lifecycle. Ended rooms stay open for rematch
// negotiation; closed rooms are unreachable and get evicted.
type Status string

const (
	StatusWaiting Status = "waiting_for_players"
	StatusOngoing Status = "ongoing"
	StatusEnded   Status = "ended"
	StatusClosed  Status = "closed"
)

type GameMode int

const (
	ModeSingleplayer GameMode = iota
	ModeMultiplayer
)

// PlayerSlot is one of the room's two player seats.
type PlayerSlot struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Color    game.Color `json:"color"`
	IsAI     bool       `json:"is_ai"`
	IsActive bool       `json:"is_active"`

	wantsRematch bool
}

// GameState is the board snapshot broadcast with start/rejoin events and
// returned from joins.
type GameState struct {
	Board       string       `json:"board"`
	CurrentTurn game.Color   `json:"current_turn"`
	Status      Status       `json:"status"`
	Winner      game.Color   `json:"winner,omitempty"`
	Players     []PlayerSlot `json:"players"`
}

// ChatMessage is one room chat entry, players and spectators alike.
type ChatMessage struct {
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Subscriber delivers outbound frames to one member connection. Send must not
// block; slow consumers are the transport layer's problem.
type Subscriber interface {
	ClientID() string
	Send(msg []byte)
}

// JoinSnapshot carries everything a joining or reconnecting client needs to
// rebuild its view without replaying events.
type JoinSnapshot struct {
	IsSpectator bool
	State       GameState
	History     []game.HistoryEntry
	Messages    []ChatMessage
}

// Result describes a finished game for archival.
type Result struct {
	RoomID     string        `json:"room_id"`
	GameType   game.GameType `json:"game_type"`
	GameMode   GameMode      `json:"game_mode"`
	WhiteID    string        `json:"white_id"`
	WhiteName  string        `json:"white_name"`
	BlackID    string        `json:"black_id"`
	BlackName  string        `json:"black_name"`
	Winner     game.Color    `json:"winner"`
	Reason     string        `json:"reason"`
	Moves      int           `json:"moves"`
	FinalBoard string        `json:"final_board"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at"`
}

// member is a connected client, player or spectator.
type member struct {
	sub      Subscriber
	username string
}
