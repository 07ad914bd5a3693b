package types

import "github.com/partyrounds/session-backend/internal/session"

type ClientMessage struct {
	Type     string  `json:"type"`
	WinnerID *string `json:"winner_id,omitempty"`
}

type ServerMessage struct {
	Type    string         `json:"type"` // "Event" | "Error"
	Event   string         `json:"event,omitempty"`
	Version int            `json:"version,omitempty"`
	State   *session.State `json:"state,omitempty"`
	Error   string         `json:"error,omitempty"`
}
