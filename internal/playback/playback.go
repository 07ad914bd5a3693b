package playback

import (
	"context"
	"errors"
)

type State string

const (
	StateIdle     State = "idle"
	StatePlaying  State = "playing"
	StatePaused   State = "paused"
	StateStopped  State = "stopped"
	StateRevealed State = "revealed"
)

var ErrUnavailable = errors.New("round media unavailable")
var ErrAutoplayBlocked = errors.New("autoplay blocked")
var ErrAlreadyRevealed = errors.New("round already revealed")

// Player is the underlying media surface the controller drives. The server
// is authoritative for timing; actual audio output happens client-side, so
// the default player is a no-op that is always ready. Tests inject failing
// players to exercise the unavailable path.
type Player interface {
	// Load blocks until the media is ready to start or ctx is done.
	Load(ctx context.Context) error
	Start() error
	Pause()
	Stop()
}

// PlayerFactory builds a player for one round's media reference.
type PlayerFactory func(mediaRef string) Player

type NopPlayer struct{}

func (NopPlayer) Load(ctx context.Context) error { return nil }
func (NopPlayer) Start() error                   { return nil }
func (NopPlayer) Pause()                         {}
func (NopPlayer) Stop()                          {}

func NopFactory(string) Player { return NopPlayer{} }

// SignalKind discriminates the async notifications a controller emits into
// its owner's inbox.
type SignalKind string

const (
	// SignalReady fires when the load wait finishes (Err carries a load or
	// ready-timeout failure; the owner decides whether to attempt anyway).
	SignalReady SignalKind = "ready"
	// SignalTick fires on each progress interval while playing.
	SignalTick SignalKind = "tick"
	// SignalDone fires when the duration timer expires.
	SignalDone SignalKind = "done"
)

// Signal is tagged with the generation of the controller that issued it so
// the owner can drop fires that outlived their round.
type Signal struct {
	Kind SignalKind
	Gen  int
	Err  error
}
