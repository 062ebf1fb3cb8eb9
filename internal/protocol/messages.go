// Package protocol defines the JSON envelopes exchanged over the socket and
// the payload shapes for each request type.
package protocol

import (
	"encoding/json"

	"github.com/park285/flipflop-server/internal/apperrors"
	"github.com/park285/flipflop-server/internal/game"
)

type MsgType string

const (
	// Requests and their mirrored responses.
	MsgTypeCreateRoom    MsgType = "create"
	MsgTypeRoomCreated   MsgType = "created"
	MsgTypeJoinRoom      MsgType = "join"
	MsgTypeJoinedRoom    MsgType = "joined"
	MsgTypeLeaveRoom     MsgType = "leave"
	MsgTypeLeftRoom      MsgType = "left"
	MsgTypeMove          MsgType = "move"
	MsgTypeSendMessage   MsgType = "message"
	MsgTypeForfeit       MsgType = "forfeit"
	MsgTypeRematch       MsgType = "rematch"
	MsgTypeCancelRematch MsgType = "cancel_rematch"

	// Server-initiated events, delivered without a request_id.
	MsgTypeConnected        MsgType = "connected"
	MsgTypeGameStart        MsgType = "start"
	MsgTypeGameEnd          MsgType = "end"
	MsgTypeChat             MsgType = "chat"
	MsgPlayerLeft           MsgType = "player_left"
	MsgPlayerRejoined       MsgType = "player_rejoined"
	MsgTypeRematchRequested MsgType = "rematch_requested"
	MsgTypeRematchCancelled MsgType = "rematch_cancelled"
	MsgTypeError            MsgType = "error"
)

// IncomingMessage is the client→server envelope.
type IncomingMessage struct {
	Type      MsgType         `json:"type" validate:"required"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id" validate:"required"`
}

// OutgoingMessage covers both responses (request_id echoed) and events
// (request_id empty and omitted).
type OutgoingMessage struct {
	Type      MsgType `json:"type"`
	Payload   any     `json:"payload,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
}

// Request payloads.

type CreateRoom struct {
	Username     string        `json:"username" validate:"required,min=2,max=20"`
	GameType     game.GameType `json:"game_type" validate:"oneof=0 1"`
	GameMode     int           `json:"game_mode" validate:"oneof=0 1"`
	AIDifficulty string        `json:"ai_difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
}

type JoinRoom struct {
	RoomID string `json:"room_id" validate:"required,len=4"`
	// Username is absent on reconnect attempts.
	Username string `json:"username,omitempty" validate:"omitempty,min=2,max=20"`
}

type MovePayload struct {
	From string `json:"from" validate:"required,min=2,max=3"`
	To   string `json:"to" validate:"required,min=2,max=3"`
}

type ChatPayload struct {
	Content string `json:"content" validate:"required,min=1,max=1000"`
}

// JSONMap is shorthand for ad-hoc event payloads.
type JSONMap map[string]any

// NewMessage marshals an outbound envelope. Pass an empty requestID for events.
func NewMessage(t MsgType, payload any, requestID string) []byte {
	msg := OutgoingMessage{Type: t, Payload: payload, RequestID: requestID}
	raw, _ := json.Marshal(msg)
	return raw
}

// NewErrorMessage marshals an error envelope carrying the wire code.
func NewErrorMessage(appErr *apperrors.AppError, requestID string) []byte {
	return NewMessage(MsgTypeError, appErr, requestID)
}
