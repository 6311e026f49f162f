// Package message defines the tagged JSON message union exchanged between
// a browser WebSocket client and the shell bridge.
package message

import (
	"encoding/json"
	"fmt"
)

// Client-to-server message types.
const (
	TypeInput  = "input"
	TypeResize = "resize"
	TypePing   = "ping"
)

// Server-to-client message types.
const (
	TypeOutput     = "output"
	TypeErr        = "error"
	TypeDisconnect = "disconnect"
	TypePong       = "pong"
)

// envelope is the wire shape shared by every message: a type tag plus the
// session id it applies to. Payload fields are flattened onto it so a
// single json.Unmarshal captures everything a given type needs.
type envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      string `json:"data,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Text      string `json:"text,omitempty"`
}

// ClientMessage is the parsed form of whatever the browser sent.
type ClientMessage struct {
	Type      string
	SessionID string
	Data      string // input
	Cols      int    // resize
	Rows      int    // resize
}

// ParseClient decodes a raw WebSocket frame into a ClientMessage. An
// unknown Type is not rejected here — the bridge maps it to an error
// reply so the connection stays open.
func ParseClient(raw []byte) (*ClientMessage, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &ClientMessage{
		Type:      e.Type,
		SessionID: e.SessionID,
		Data:      e.Data,
		Cols:      e.Cols,
		Rows:      e.Rows,
	}, nil
}

// Output builds a server "output" message: shell bytes for sessionID.
func Output(sessionID string, data []byte) []byte {
	b, _ := json.Marshal(envelope{Type: TypeOutput, SessionID: sessionID, Data: string(data)})
	return b
}

// Error builds a server "error" message carrying a short human phrase.
func Error(sessionID string, text string) []byte {
	b, _ := json.Marshal(envelope{Type: TypeErr, SessionID: sessionID, Text: text})
	return b
}

// Disconnect builds a server "disconnect" message.
func Disconnect(sessionID string) []byte {
	b, _ := json.Marshal(envelope{Type: TypeDisconnect, SessionID: sessionID})
	return b
}

// Pong builds a server "pong" reply to a client ping.
func Pong(sessionID string) []byte {
	b, _ := json.Marshal(envelope{Type: TypePong, SessionID: sessionID})
	return b
}
