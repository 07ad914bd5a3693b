package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/partyrounds/session-backend/internal/media"
	"github.com/partyrounds/session-backend/internal/playback"
	"github.com/partyrounds/session-backend/internal/round"
	"github.com/partyrounds/session-backend/internal/score"
)

var ErrNotEnoughRounds = errors.New("not enough playable rounds")

// Resolver is the narrow slice of the media resolver the session needs.
type Resolver interface {
	Resolve(ctx context.Context, sourceRef string, desiredCount int) (media.Batch, error)
}

// SavedProgress is a previously persisted session: round set, cursor and
// ledger entries. Reusing it on start keeps the original selection intact
// instead of re-resolving (and re-shuffling) the rounds.
type SavedProgress struct {
	CurrentIndex int
	Rounds       []round.Round
	Ledger       map[string]string
	Fallback     bool
}

// ProgressStore persists and restores session progress. LoadProgress
// returns (nil, nil) when no save exists.
type ProgressStore interface {
	SaveProgress(sessionID string, currentIndex int, rounds []round.Round, ledger map[string]string) error
	LoadProgress(sessionID string) (*SavedProgress, error)
}

// Deps are the session's external collaborators.
type Deps struct {
	Resolver Resolver
	Sink     score.Sink
	Store    ProgressStore // optional: nil disables resume support
	Players  playback.PlayerFactory
	Log      *zap.SugaredLogger
}

type Options struct {
	SessionID      string // assigned when empty
	SourceRef      string
	DesiredRounds  int
	PointsPerRound int
	Participants   []string

	// DefaultWinnerID re-enables the legacy "every round must score" rule:
	// a round advanced without an explicit selection credits this
	// participant. Off (empty) by default; an unscored round then awards
	// nobody.
	DefaultWinnerID string

	// RoundDuration overrides each round's own duration when positive.
	RoundDuration time.Duration
	TickInterval  time.Duration
	ReadyTimeout  time.Duration
}

// Session drives one challenge run: a single goroutine owns all state and
// consumes commands, timer signals and the resolve result from one inbox.
type Session struct {
	inbox chan Msg
	opts  Options
	deps  Deps
	log   *zap.SugaredLogger

	phase    Phase
	seq      *round.Sequencer
	ledger   *score.Ledger
	pc       *playback.Controller
	fallback bool

	// gen invalidates playback signals from an earlier round; epoch
	// invalidates a resolve that outlived an abort.
	gen   int
	epoch int

	// retried marks that the current round already used its one
	// reload-and-play-again attempt.
	retried bool

	abortReason  string
	finalScores  map[string]int
	finalWinners []string

	version int
	clients map[string]chan Snapshot

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, deps Deps, opts Options) *Session {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.DesiredRounds < 1 {
		opts.DesiredRounds = 1
	}
	if opts.PointsPerRound < 1 {
		opts.PointsPerRound = 1
	}
	if deps.Players == nil {
		deps.Players = playback.NopFactory
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:   make(chan Msg, 64), // Small buffer
		opts:    opts,
		deps:    deps,
		log:     deps.Log.With("session_id", opts.SessionID),
		phase:   PhaseInitializing,
		ledger:  score.NewLedger(opts.PointsPerRound, deps.Sink),
		clients: make(map[string]chan Snapshot),
		ctx:     ctx,
		cancel:  cancel,
	}

	go s.loop()
	return s
}

// Inbox exposes the message channel for the transport layer and tests.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) ID() string { return s.opts.SessionID }

func (s *Session) loop() {
	s.initialize()

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- Snapshot{Version: s.version, Event: EventStateSnapshot, State: s.stateView()}

			case Leave:
				delete(s.clients, msg.ClientID)

			case FromClient:
				s.handleCommand(msg.Cmd)

			case resolveDone:
				s.handleResolved(msg)

			case playbackSig:
				s.handleSignal(msg.sig)

			case GetState:
				msg.Reply <- View{
					Version:    s.version,
					NumClients: len(s.clients),
					State:      s.stateView(),
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

// initialize either restores saved progress or kicks off the resolve. The
// resolve runs off-loop and reports back through the inbox, epoch-tagged.
func (s *Session) initialize() {
	if s.deps.Store != nil {
		saved, err := s.deps.Store.LoadProgress(s.opts.SessionID)
		if err != nil {
			s.log.Warnw("loading saved progress failed, resolving fresh", "error", err)
		} else if saved != nil {
			s.restore(saved)
			return
		}
	}

	s.epoch++
	epoch := s.epoch
	go func() {
		batch, err := s.deps.Resolver.Resolve(s.ctx, s.opts.SourceRef, s.opts.DesiredRounds)
		select {
		case s.inbox <- resolveDone{epoch: epoch, batch: batch, err: err}:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Session) restore(saved *SavedProgress) {
	s.seq = round.Resume(saved.Rounds, saved.CurrentIndex)
	s.ledger.Restore(saved.Ledger)
	s.fallback = saved.Fallback
	s.log.Infow("resumed saved session", "round_index", saved.CurrentIndex, "rounds", len(saved.Rounds))

	if s.seq.Complete() {
		s.complete()
		return
	}
	s.enterActive()
}

func (s *Session) handleResolved(msg resolveDone) {
	if msg.epoch != s.epoch || s.phase != PhaseInitializing {
		return // stale resolve, e.g. finished after an abort
	}
	if msg.err != nil {
		s.log.Warnw("media resolution failed", "source_ref", s.opts.SourceRef, "error", msg.err)
		s.abort(msg.err.Error())
		return
	}
	if len(msg.batch.Items) == 0 {
		s.abort(ErrNotEnoughRounds.Error())
		return
	}

	rounds := make([]round.Round, 0, len(msg.batch.Items))
	for _, item := range msg.batch.Items {
		rounds = append(rounds, round.Round{
			ID:          item.ID,
			Title:       item.Title,
			MediaRef:    item.MediaRef,
			DurationSec: item.DurationSec,
		})
	}
	s.seq = round.NewSequencer(rounds)
	s.fallback = msg.batch.Fallback
	s.enterActive()
}

func (s *Session) enterActive() {
	s.phase = PhaseActive
	s.newController()
	s.broadcast(EventRoundChanged)
}

// newController builds a fresh playback controller for the current round
// under a new generation, so signals from the previous round fall dead.
func (s *Session) newController() {
	cur, ok := s.seq.Current()
	if !ok {
		return
	}

	s.gen++
	s.retried = false

	duration := time.Duration(cur.DurationSec) * time.Second
	if s.opts.RoundDuration > 0 {
		duration = s.opts.RoundDuration
	}

	var copts []playback.Option
	if s.opts.TickInterval > 0 {
		copts = append(copts, playback.WithTickInterval(s.opts.TickInterval))
	}
	if s.opts.ReadyTimeout > 0 {
		copts = append(copts, playback.WithReadyTimeout(s.opts.ReadyTimeout))
	}

	s.pc = playback.NewController(
		s.deps.Players(cur.MediaRef),
		duration,
		s.gen,
		func(sig playback.Signal) {
			select {
			case s.inbox <- playbackSig{sig: sig}:
			case <-s.ctx.Done():
			}
		},
		copts...,
	)
}

func (s *Session) handleCommand(cmd Command) {
	if cmd.Type == CmdAbort {
		if s.phase == PhaseInitializing || s.phase == PhaseActive {
			s.abort("aborted by host")
		}
		return
	}
	if s.phase != PhaseActive {
		return
	}

	cur, ok := s.seq.Current()
	if !ok {
		return
	}

	switch cmd.Type {
	case CmdPlay:
		if err := s.pc.Play(); err != nil {
			s.handleUnavailable(err)
			return
		}
		s.broadcast(EventPlaybackChanged)

	case CmdPause:
		s.pc.Pause()
		s.broadcast(EventPlaybackChanged)

	case CmdRestart:
		err := s.pc.Restart()
		switch {
		case errors.Is(err, playback.ErrAlreadyRevealed):
			return
		case err != nil:
			s.handleUnavailable(err)
			return
		}
		s.broadcast(EventPlaybackChanged)

	case CmdReveal:
		s.pc.Reveal()
		cur.Revealed = true
		s.broadcast(EventRevealed)

	case CmdSelectWinner:
		if cmd.WinnerID == nil {
			s.ledger.Revoke(cur.ID)
		} else {
			if !s.isParticipant(*cmd.WinnerID) {
				s.log.Warnw("winner selection for unknown participant", "participant_id", *cmd.WinnerID)
				return
			}
			s.ledger.Award(cur.ID, *cmd.WinnerID)
		}
		s.broadcast(EventWinnerChanged)

	case CmdNextRound:
		s.nextRound(cur)
	}
}

func (s *Session) nextRound(cur *round.Round) {
	// A round advanced without a selection awards nobody, unless the legacy
	// default-winner rule was explicitly enabled.
	if _, ok := s.ledger.EntryFor(cur.ID); !ok && s.opts.DefaultWinnerID != "" {
		s.ledger.Award(cur.ID, s.opts.DefaultWinnerID)
	}

	s.pc.Close()

	_, more := s.seq.Advance()
	s.saveProgress()

	if !more {
		s.complete()
		return
	}
	s.newController()
	s.broadcast(EventRoundChanged)
}

func (s *Session) handleSignal(sig playback.Signal) {
	if s.phase != PhaseActive || s.pc == nil || sig.Gen != s.pc.Gen() {
		return // stale fire from a previous round
	}

	switch sig.Kind {
	case playback.SignalReady:
		if err := s.pc.OnReady(sig.Err); err != nil {
			s.handleUnavailable(err)
			return
		}
		s.broadcast(EventPlaybackChanged)

	case playback.SignalTick:
		s.broadcast(EventPlaybackChanged)

	case playback.SignalDone:
		s.pc.OnDone()
		s.broadcast(EventPlaybackChanged)
	}
}

// handleUnavailable applies the one-retry policy: reload and play again
// once, then mark the round unplayable and advance it unscored.
func (s *Session) handleUnavailable(err error) {
	cur, ok := s.seq.Current()
	if !ok {
		return
	}

	if !s.retried {
		s.retried = true
		s.log.Warnw("playback failed, retrying round once", "round_id", cur.ID, "error", err)
		s.pc.Reload()
		return
	}

	s.log.Warnw("round media unavailable, skipping", "round_id", cur.ID, "error", err)
	// Record the skip as a nobody-scored entry so the default-winner rule
	// cannot later credit an unplayable round.
	s.ledger.Revoke(cur.ID)
	s.broadcast(EventRoundUnavailable)
	s.nextRound(cur)
}

func (s *Session) complete() {
	s.phase = PhaseCompleted
	s.finalScores = s.ledger.FinalScores(s.opts.Participants)
	s.finalWinners = score.Winners(s.finalScores)
	s.log.Infow("session completed", "winners", s.finalWinners)
	s.broadcast(EventSessionCompleted)
}

// abort tears the session down before completion: pending timers and
// fetches are invalidated and no further score deltas are emitted.
func (s *Session) abort(reason string) {
	if s.pc != nil {
		s.pc.Close()
		s.pc = nil
	}
	s.epoch++
	s.phase = PhaseAborted
	s.abortReason = reason
	s.broadcast(EventSessionAborted)
	s.cancel()
}

func (s *Session) saveProgress() {
	if s.deps.Store == nil {
		return
	}
	if err := s.deps.Store.SaveProgress(s.opts.SessionID, s.seq.Index(), s.seq.Rounds(), s.ledger.Snapshot()); err != nil {
		s.log.Warnw("saving progress failed", "error", err)
	}
}

func (s *Session) isParticipant(id string) bool {
	for _, p := range s.opts.Participants {
		if p == id {
			return true
		}
	}
	return false
}

func (s *Session) stateView() State {
	st := State{
		SessionID:   s.opts.SessionID,
		Phase:       s.phase,
		Scores:      s.ledger.FinalScores(s.opts.Participants),
		Fallback:    s.fallback,
		AbortReason: s.abortReason,
	}

	if s.seq != nil {
		st.RoundIndex = s.seq.Index()
		st.RoundCount = s.seq.Len()
		if cur, ok := s.seq.Current(); ok {
			r := *cur
			st.Round = &r
			if e, recorded := s.ledger.EntryFor(cur.ID); recorded {
				awardee := e.AwardeeID
				st.Winner = &awardee
			}
		}
	}

	if s.pc != nil {
		st.Playback = s.pc.State()
		st.Progress = s.pc.Progress()
	}

	if s.phase == PhaseCompleted {
		st.FinalWinners = s.finalWinners
		st.Scores = s.finalScores
	}
	return st
}

func (s *Session) broadcast(event EventType) {
	s.version++
	snap := Snapshot{Version: s.version, Event: event, State: s.stateView()}
	for id, ch := range s.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) shutdown() {
	if s.pc != nil {
		s.pc.Close()
		s.pc = nil
	}
	for id, ch := range s.clients {
		close(ch) // Tell client no more snapshots
		delete(s.clients, id)
	}
	s.cancel()
}
