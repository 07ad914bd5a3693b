package playback

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultTickInterval = 100 * time.Millisecond
	defaultReadyTimeout = 3 * time.Second
)

// Controller is the per-round playback state machine. It owns one duration
// timer and one progress ticker; both deliver generation-tagged signals via
// notify rather than mutating state directly.
//
// All methods must be called from the owning session loop goroutine. The
// timer and load goroutines only call notify, never touch controller fields,
// so no locking is needed.
type Controller struct {
	player   Player
	duration time.Duration
	notify   func(Signal)
	gen      int

	tickInterval time.Duration
	readyTimeout time.Duration

	state     State
	loaded    bool
	elapsed   time.Duration
	startedAt time.Time

	timer      *time.Timer
	tickerStop chan struct{}
	closed     chan struct{}
}

type Option func(*Controller)

func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.tickInterval = d }
}

func WithReadyTimeout(d time.Duration) Option {
	return func(c *Controller) { c.readyTimeout = d }
}

func NewController(player Player, duration time.Duration, gen int, notify func(Signal), opts ...Option) *Controller {
	c := &Controller{
		player:       player,
		duration:     duration,
		notify:       notify,
		gen:          gen,
		tickInterval: defaultTickInterval,
		readyTimeout: defaultReadyTimeout,
		state:        StateIdle,
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State { return c.state }
func (c *Controller) Gen() int     { return c.gen }

// Progress reports the elapsed fraction of the round in [0, 1].
func (c *Controller) Progress() float64 {
	elapsed := c.elapsed
	if c.state == StatePlaying {
		elapsed += time.Since(c.startedAt)
	}
	if c.duration <= 0 {
		return 1
	}
	frac := float64(elapsed) / float64(c.duration)
	if frac > 1 {
		frac = 1
	}
	return frac
}

// Play starts or resumes playback. From Idle with unloaded media it kicks
// off the load wait and returns; the owner gets a SignalReady and follows
// up with OnReady. From Paused it resumes at the preserved position.
func (c *Controller) Play() error {
	switch c.state {
	case StateIdle:
		if !c.loaded {
			c.awaitReady()
			return nil
		}
		return c.begin()
	case StatePaused:
		if err := c.player.Start(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.startTimers()
		c.state = StatePlaying
		return nil
	default:
		// Playing, Stopped and Revealed ignore play.
		return nil
	}
}

// OnReady completes the Idle -> Playing transition once the load wait has
// reported in. loadErr is the ready-timeout or load failure, if any; per the
// attempt-anyway policy the controller still tries to start, and only a
// start failure surfaces as Unavailable.
func (c *Controller) OnReady(loadErr error) error {
	if c.state != StateIdle {
		// Round was revealed or aborted while loading; nothing to start.
		return nil
	}
	c.loaded = true
	if err := c.begin(); err != nil {
		if loadErr != nil {
			return fmt.Errorf("%w (after load failure: %v)", ErrUnavailable, loadErr)
		}
		return err
	}
	return nil
}

func (c *Controller) begin() error {
	if err := c.player.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.startTimers()
	c.state = StatePlaying
	return nil
}

// Pause cancels both timers and preserves the elapsed position.
func (c *Controller) Pause() {
	if c.state != StatePlaying {
		return
	}
	c.stopTimers()
	c.elapsed += time.Since(c.startedAt)
	c.player.Pause()
	c.state = StatePaused
}

// OnDone handles the duration timer firing: automatic pause at 100%.
func (c *Controller) OnDone() {
	if c.state != StatePlaying {
		return
	}
	c.stopTimers()
	c.elapsed = c.duration
	c.player.Stop()
	c.state = StateStopped
}

// Reveal is idempotent: it cancels any active timers and ends the play
// phase. Revealing does not imply scoring.
func (c *Controller) Reveal() {
	if c.state == StateRevealed {
		return
	}
	c.stopTimers()
	if c.state == StatePlaying {
		c.elapsed += time.Since(c.startedAt)
	}
	c.player.Stop()
	c.state = StateRevealed
}

// Restart resets elapsed to zero and re-enters Playing. Not allowed once
// the round is revealed.
func (c *Controller) Restart() error {
	if c.state == StateRevealed {
		return ErrAlreadyRevealed
	}
	c.stopTimers()
	c.player.Stop()
	c.elapsed = 0
	c.state = StateIdle
	return c.Play()
}

// Reload drops the loaded flag and re-enters the load wait: the single
// retry the owner performs before declaring the round unplayable.
func (c *Controller) Reload() {
	c.stopTimers()
	c.player.Stop()
	c.loaded = false
	c.elapsed = 0
	c.state = StateIdle
	c.awaitReady()
}

// Close cancels timers and any pending load wait. Safe to call repeatedly.
func (c *Controller) Close() {
	c.stopTimers()
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	c.player.Stop()
}

func (c *Controller) awaitReady() {
	gen := c.gen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.readyTimeout)
		defer cancel()
		go func() {
			select {
			case <-c.closed:
				cancel()
			case <-ctx.Done():
			}
		}()

		err := c.player.Load(ctx)
		select {
		case <-c.closed:
			// Round advanced or session aborted while loading; drop the result.
			return
		default:
		}
		c.notify(Signal{Kind: SignalReady, Gen: gen, Err: err})
	}()
}

func (c *Controller) startTimers() {
	c.startedAt = time.Now()
	remaining := c.duration - c.elapsed
	if remaining < 0 {
		remaining = 0
	}

	gen := c.gen
	c.timer = time.AfterFunc(remaining, func() {
		c.notify(Signal{Kind: SignalDone, Gen: gen})
	})

	stop := make(chan struct{})
	c.tickerStop = stop
	go func() {
		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.notify(Signal{Kind: SignalTick, Gen: gen})
			case <-stop:
				return
			}
		}
	}()
}

func (c *Controller) stopTimers() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.tickerStop != nil {
		close(c.tickerStop)
		c.tickerStop = nil
	}
}
