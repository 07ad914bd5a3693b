package session

import (
	"github.com/partyrounds/session-backend/internal/media"
	"github.com/partyrounds/session-backend/internal/playback"
)

type Msg interface{ isSessionMsg() }

type FromClient struct {
	Cmd Command
}

func (FromClient) isSessionMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isSessionMsg() {}

type Leave struct{ ClientID string }

func (Leave) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

// resolveDone carries the media resolution result back into the loop. Epoch
// tags let the loop drop a fetch that outlived an abort.
type resolveDone struct {
	epoch int
	batch media.Batch
	err   error
}

func (resolveDone) isSessionMsg() {}

// playbackSig forwards a controller signal into the loop; stale generations
// are dropped there.
type playbackSig struct {
	sig playback.Signal
}

func (playbackSig) isSessionMsg() {}

type CommandType string

const (
	CmdPlay         CommandType = "Play"
	CmdPause        CommandType = "Pause"
	CmdRestart      CommandType = "Restart"
	CmdReveal       CommandType = "Reveal"
	CmdSelectWinner CommandType = "SelectWinner"
	CmdNextRound    CommandType = "NextRound"
	CmdAbort        CommandType = "Abort"
)

// Command is one UI action routed into the session. WinnerID is only read
// for SelectWinner; nil means "no one scored this round".
type Command struct {
	Type     CommandType
	WinnerID *string
}
