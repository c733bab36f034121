// Package protocol defines the websocket envelope and the payloads exchanged
// with game clients.
package protocol

import (
	"encoding/json"
)

// Client to server.
const (
	MsgStart       = "start"
	MsgFire        = "fire"
	MsgAngle       = "angle"
	MsgSurrender   = "surrender"
	MsgRequestHint = "request_hint"
)

// Server to client.
const (
	MsgWelcome      = "welcome"
	MsgState        = "state"
	MsgShot         = "shot"
	MsgKill         = "kill"
	MsgTurn         = "turn"
	MsgHintProgress = "hint_progress"
	MsgHint         = "hint"
	MsgError        = "error"
	MsgGameOver     = "game_over"
)

type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"` // raw payload bytes
}
