package session

import (
	"github.com/partyrounds/session-backend/internal/playback"
	"github.com/partyrounds/session-backend/internal/round"
)

type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseActive       Phase = "active"
	PhaseCompleted    Phase = "completed"
	PhaseAborted      Phase = "aborted"
)

type EventType string

const (
	EventStateSnapshot    EventType = "stateSnapshot"
	EventRoundChanged     EventType = "roundChanged"
	EventPlaybackChanged  EventType = "playbackStateChanged"
	EventRevealed         EventType = "revealed"
	EventWinnerChanged    EventType = "winnerChanged"
	EventRoundUnavailable EventType = "roundUnavailable"
	EventSessionCompleted EventType = "sessionCompleted"
	EventSessionAborted   EventType = "sessionAborted"
)

// State is the client-facing view of the session at one version.
type State struct {
	SessionID  string         `json:"session_id"`
	Phase      Phase          `json:"phase"`
	RoundIndex int            `json:"round_index"`
	RoundCount int            `json:"round_count"`
	Round      *round.Round   `json:"round,omitempty"`
	Playback   playback.State `json:"playback,omitempty"`
	Progress   float64        `json:"progress"`
	// Winner is the current round's recorded awardee; nil when no selection
	// has been made, empty string when "no one scored" was recorded.
	Winner       *string        `json:"winner,omitempty"`
	Scores       map[string]int `json:"scores"`
	FinalWinners []string       `json:"final_winners,omitempty"`
	Fallback     bool           `json:"fallback,omitempty"`
	AbortReason  string         `json:"abort_reason,omitempty"`
}

// Snapshot is one broadcast: the event that caused it plus the full state.
type Snapshot struct {
	Version int
	Event   EventType
	State   State
}

type View struct {
	Version    int
	NumClients int
	State      State
}
