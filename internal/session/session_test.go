package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partyrounds/session-backend/internal/media"
	"github.com/partyrounds/session-backend/internal/playback"
	"github.com/partyrounds/session-backend/internal/round"
)

type stubResolver struct {
	batch media.Batch
	err   error
	delay time.Duration
	calls int
}

func (r *stubResolver) Resolve(ctx context.Context, sourceRef string, desiredCount int) (media.Batch, error) {
	r.calls++
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return media.Batch{}, ctx.Err()
		}
	}
	return r.batch, r.err
}

type countingSink struct {
	mu     sync.Mutex
	deltas []int
	totals map[string]int
}

func newCountingSink() *countingSink {
	return &countingSink{totals: map[string]int{}}
}

func (s *countingSink) ApplyDelta(participantID string, points int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, points)
	s.totals[participantID] += points
}

func (s *countingSink) total(participantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[participantID]
}

func (s *countingSink) deltaCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deltas)
}

type memoryStore struct {
	mu    sync.Mutex
	saved map[string]*SavedProgress
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: map[string]*SavedProgress{}}
}

func (m *memoryStore) SaveProgress(sessionID string, currentIndex int, rounds []round.Round, ledger map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[sessionID] = &SavedProgress{CurrentIndex: currentIndex, Rounds: rounds, Ledger: ledger}
	return nil
}

func (m *memoryStore) LoadProgress(sessionID string) (*SavedProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[sessionID], nil
}

// brokenPlayer always fails to start, driving the unavailable path.
type brokenPlayer struct{}

func (brokenPlayer) Load(ctx context.Context) error { return nil }
func (brokenPlayer) Start() error                   { return errors.New("no media asset") }
func (brokenPlayer) Pause()                         {}
func (brokenPlayer) Stop()                          {}

func testBatch(n int) media.Batch {
	items := make([]media.Item, n)
	for i := range items {
		items[i] = media.Item{
			ID:          "track-" + string(rune('1'+i)),
			Title:       "Track",
			MediaRef:    "https://cdn.example.com/previews/" + string(rune('1'+i)) + ".mp3",
			DurationSec: 30,
		}
	}
	return media.Batch{Items: items}
}

// recvSnapshot receives one snapshot with a timeout so tests never hang.
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

// recvEvent scans past interleaved snapshots (progress ticks and the like)
// until one carrying the wanted event arrives.
func recvEvent(t *testing.T, ch <-chan Snapshot, event EventType, within time.Duration) Snapshot {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatalf("client outbox closed while waiting for %s", event)
			}
			if snap.Event == event {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
			return Snapshot{} // unreachable
		}
	}
}

func ptr(s string) *string { return &s }

func startSession(t *testing.T, deps Deps, opts Options) (*Session, chan Snapshot) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if opts.TickInterval == 0 {
		opts.TickInterval = 10 * time.Millisecond
	}
	if opts.ReadyTimeout == 0 {
		opts.ReadyTimeout = 100 * time.Millisecond
	}
	if opts.RoundDuration == 0 {
		opts.RoundDuration = time.Hour // rounds never expire on their own in tests
	}

	s := New(ctx, deps, opts)
	out := make(chan Snapshot, 256)
	s.Inbox() <- Join{ClientID: "c1", Outbox: out}
	return s, out
}

func TestSession_StartBroadcastsFirstRound(t *testing.T) {
	sink := newCountingSink()
	s, out := startSession(t,
		Deps{Resolver: &stubResolver{batch: testBatch(3)}, Sink: sink},
		Options{SourceRef: "playlist-1", DesiredRounds: 3, PointsPerRound: 2, Participants: []string{"a", "b"}},
	)
	defer func() { s.Inbox() <- Shutdown{} }()

	snap := recvEvent(t, out, EventRoundChanged, time.Second)
	assert.Equal(t, PhaseActive, snap.State.Phase)
	assert.Equal(t, 0, snap.State.RoundIndex)
	assert.Equal(t, 3, snap.State.RoundCount)
	require.NotNil(t, snap.State.Round)
	assert.Equal(t, "track-1", snap.State.Round.ID)
}

func TestSession_ThreeRoundTieScenario(t *testing.T) {
	sink := newCountingSink()
	s, out := startSession(t,
		Deps{Resolver: &stubResolver{batch: testBatch(3)}, Sink: sink},
		Options{SourceRef: "playlist-1", DesiredRounds: 3, PointsPerRound: 2, Participants: []string{"a", "b"}},
	)
	defer func() { s.Inbox() <- Shutdown{} }()

	recvEvent(t, out, EventRoundChanged, time.Second)

	// Round 1 -> award a.
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdSelectWinner, WinnerID: ptr("a")}}
	recvEvent(t, out, EventWinnerChanged, time.Second)
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdNextRound}}
	recvEvent(t, out, EventRoundChanged, time.Second)

	// Round 2 -> award b.
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdSelectWinner, WinnerID: ptr("b")}}
	recvEvent(t, out, EventWinnerChanged, time.Second)
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdNextRound}}
	recvEvent(t, out, EventRoundChanged, time.Second)

	// Round 3 -> nobody scores.
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdNextRound}}
	done := recvEvent(t, out, EventSessionCompleted, time.Second)

	assert.Equal(t, map[string]int{"a": 2, "b": 2}, done.State.Scores)
	assert.Equal(t, []string{"a", "b"}, done.State.FinalWinners, "a tie must be reported as the full set")

	// Aggregate invariant: scores equal the deltas actually sent.
	assert.Equal(t, 2, sink.total("a"))
	assert.Equal(t, 2, sink.total("b"))
	assert.Equal(t, 2, sink.deltaCount())
}

func TestSession_WinnerChangeIsRevokeThenAward(t *testing.T) {
	sink := newCountingSink()
	s, out := startSession(t,
		Deps{Resolver: &stubResolver{batch: testBatch(1)}, Sink: sink},
		Options{SourceRef: "playlist-1", DesiredRounds: 1, PointsPerRound: 3, Participants: []string{"a", "b"}},
	)
	defer func() { s.Inbox() <- Shutdown{} }()

	recvEvent(t, out, EventRoundChanged, time.Second)

	s.Inbox() <- FromClient{Cmd: Command{Type: CmdSelectWinner, WinnerID: ptr("a")}}
	recvEvent(t, out, EventWinnerChanged, time.Second)
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdSelectWinner, WinnerID: ptr("b")}}
	snap := recvEvent(t, out, EventWinnerChanged, time.Second)

	require.NotNil(t, snap.State.Winner)
	assert.Equal(t, "b", *snap.State.Winner)
	assert.Equal(t, 0, sink.total("a"))
	assert.Equal(t, 3, sink.total("b"))

	// Selecting nobody revokes the credit.
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdSelectWinner}}
	snap = recvEvent(t, out, EventWinnerChanged, time.Second)
	require.NotNil(t, snap.State.Winner)
	assert.Empty(t, *snap.State.Winner)
	assert.Equal(t, 0, sink.total("b"))
}

func TestSession_ShortResolveStillRuns(t *testing.T) {
	s, out := startSession(t,
		Deps{Resolver: &stubResolver{batch: testBatch(2)}, Sink: newCountingSink()},
		Options{SourceRef: "playlist-1", DesiredRounds: 5, PointsPerRound: 1, Participants: []string{"a"}},
	)
	defer func() { s.Inbox() <- Shutdown{} }()

	snap := recvEvent(t, out, EventRoundChanged, time.Second)
	assert.Equal(t, 2, snap.State.RoundCount, "fewer playable rounds than desired is not an error")
}

func TestSession_ResolveFailureAborts(t *testing.T) {
	s, out := startSession(t,
		Deps{Resolver: &stubResolver{err: media.ErrNotFound}, Sink: newCountingSink()},
		Options{SourceRef: "playlist-1", DesiredRounds: 3, Participants: []string{"a"}},
	)
	_ = s

	snap := recvEvent(t, out, EventSessionAborted, time.Second)
	assert.Equal(t, PhaseAborted, snap.State.Phase)
	assert.NotEmpty(t, snap.State.AbortReason)
}

func TestSession_UnplayableRoundSkippedUnscored(t *testing.T) {
	sink := newCountingSink()
	players := func(mediaRef string) playback.Player {
		if mediaRef == "https://cdn.example.com/previews/1.mp3" {
			return brokenPlayer{}
		}
		return playback.NopPlayer{}
	}

	s, out := startSession(t,
		Deps{Resolver: &stubResolver{batch: testBatch(2)}, Sink: sink, Players: players},
		Options{SourceRef: "playlist-1", DesiredRounds: 2, PointsPerRound: 2, Participants: []string{"a"}},
	)
	defer func() { s.Inbox() <- Shutdown{} }()

	recvEvent(t, out, EventRoundChanged, time.Second)

	// Play fails, is retried once, then the round is skipped with a single
	// unavailable notice.
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdPlay}}
	unavailable := recvEvent(t, out, EventRoundUnavailable, 2*time.Second)
	assert.Equal(t, 0, unavailable.State.RoundIndex)

	next := recvEvent(t, out, EventRoundChanged, time.Second)
	assert.Equal(t, 1, next.State.RoundIndex)
	assert.Equal(t, 0, sink.deltaCount(), "a skipped round must stay unscored")

	// Exactly one notice for the failed round.
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdNextRound}}
	done := recvEvent(t, out, EventSessionCompleted, time.Second)
	assert.Equal(t, PhaseCompleted, done.State.Phase)
	for _, ev := range drainEvents(out) {
		assert.NotEqual(t, EventRoundUnavailable, ev)
	}
}

func TestSession_PlaybackFlowBroadcastsProgress(t *testing.T) {
	s, out := startSession(t,
		Deps{Resolver: &stubResolver{batch: testBatch(1)}, Sink: newCountingSink()},
		Options{SourceRef: "playlist-1", DesiredRounds: 1, PointsPerRound: 1, Participants: []string{"a"},
			RoundDuration: 80 * time.Millisecond},
	)
	defer func() { s.Inbox() <- Shutdown{} }()

	recvEvent(t, out, EventRoundChanged, time.Second)

	// Play is asynchronous: the first broadcasts may still show the load
	// wait, so scan until the state machine reaches Playing, then Stopped.
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdPlay}}

	sawPlaying := false
	deadline := time.After(2 * time.Second)
	for {
		var snap Snapshot
		select {
		case snap = <-out:
		case <-deadline:
			t.Fatal("playback never reached stopped")
		}
		switch snap.State.Playback {
		case playback.StatePlaying:
			sawPlaying = true
		case playback.StateStopped:
			assert.True(t, sawPlaying, "expected a playing broadcast before the auto-stop")
			assert.Equal(t, 1.0, snap.State.Progress)
			return
		}
	}
}

func TestSession_RevealMarksRound(t *testing.T) {
	s, out := startSession(t,
		Deps{Resolver: &stubResolver{batch: testBatch(1)}, Sink: newCountingSink()},
		Options{SourceRef: "playlist-1", DesiredRounds: 1, PointsPerRound: 1, Participants: []string{"a"}},
	)
	defer func() { s.Inbox() <- Shutdown{} }()

	recvEvent(t, out, EventRoundChanged, time.Second)

	s.Inbox() <- FromClient{Cmd: Command{Type: CmdReveal}}
	snap := recvEvent(t, out, EventRevealed, time.Second)
	require.NotNil(t, snap.State.Round)
	assert.True(t, snap.State.Round.Revealed)
	assert.Equal(t, playback.StateRevealed, snap.State.Playback)
}

func TestSession_DefaultWinnerOption(t *testing.T) {
	sink := newCountingSink()
	s, out := startSession(t,
		Deps{Resolver: &stubResolver{batch: testBatch(1)}, Sink: sink},
		Options{SourceRef: "playlist-1", DesiredRounds: 1, PointsPerRound: 2,
			Participants: []string{"team-a", "team-b"}, DefaultWinnerID: "team-a"},
	)
	defer func() { s.Inbox() <- Shutdown{} }()

	recvEvent(t, out, EventRoundChanged, time.Second)

	s.Inbox() <- FromClient{Cmd: Command{Type: CmdNextRound}}
	done := recvEvent(t, out, EventSessionCompleted, time.Second)
	assert.Equal(t, 2, done.State.Scores["team-a"])
	assert.Equal(t, []string{"team-a"}, done.State.FinalWinners)
}

func TestSession_AbortDuringResolveDropsResult(t *testing.T) {
	sink := newCountingSink()
	s, out := startSession(t,
		Deps{Resolver: &stubResolver{batch: testBatch(3), delay: 50 * time.Millisecond}, Sink: sink},
		Options{SourceRef: "playlist-1", DesiredRounds: 3, PointsPerRound: 1, Participants: []string{"a"}},
	)

	s.Inbox() <- FromClient{Cmd: Command{Type: CmdAbort}}
	snap := recvEvent(t, out, EventSessionAborted, time.Second)
	assert.Equal(t, PhaseAborted, snap.State.Phase)

	// The late resolve result must not re-activate the discarded session.
	time.Sleep(100 * time.Millisecond)
	for _, ev := range drainEvents(out) {
		assert.NotEqual(t, EventRoundChanged, ev)
	}
}

func TestSession_ResumeSkipsResolver(t *testing.T) {
	sink := newCountingSink()
	resolver := &stubResolver{batch: testBatch(3)}
	store := newMemoryStore()
	rounds := []round.Round{
		{ID: "r1", MediaRef: "m1", DurationSec: 30},
		{ID: "r2", MediaRef: "m2", DurationSec: 30},
	}
	require.NoError(t, store.SaveProgress("saved-session", 1, rounds, map[string]string{"r1": "a"}))

	s, out := startSession(t,
		Deps{Resolver: resolver, Sink: sink, Store: store},
		Options{SessionID: "saved-session", SourceRef: "playlist-1", DesiredRounds: 2,
			PointsPerRound: 2, Participants: []string{"a", "b"}},
	)
	defer func() { s.Inbox() <- Shutdown{} }()

	snap := recvEvent(t, out, EventRoundChanged, time.Second)
	assert.Equal(t, 1, snap.State.RoundIndex, "resume must pick up at the saved cursor")
	require.NotNil(t, snap.State.Round)
	assert.Equal(t, "r2", snap.State.Round.ID, "resume must reuse the saved round set, not re-resolve")
	assert.Equal(t, 0, resolver.calls)

	// The restored ledger carries round 1's award without replaying deltas.
	assert.Equal(t, 2, snap.State.Scores["a"])
	assert.Equal(t, 0, sink.deltaCount())
}

func TestSession_ProgressSavedOnAdvance(t *testing.T) {
	store := newMemoryStore()
	s, out := startSession(t,
		Deps{Resolver: &stubResolver{batch: testBatch(2)}, Sink: newCountingSink(), Store: store},
		Options{SessionID: "sess-1", SourceRef: "playlist-1", DesiredRounds: 2,
			PointsPerRound: 1, Participants: []string{"a"}},
	)
	defer func() { s.Inbox() <- Shutdown{} }()

	recvEvent(t, out, EventRoundChanged, time.Second)
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdSelectWinner, WinnerID: ptr("a")}}
	recvEvent(t, out, EventWinnerChanged, time.Second)
	s.Inbox() <- FromClient{Cmd: Command{Type: CmdNextRound}}
	recvEvent(t, out, EventRoundChanged, time.Second)

	saved, err := store.LoadProgress("sess-1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, 1, saved.CurrentIndex)
	assert.Len(t, saved.Rounds, 2)
	assert.Equal(t, "a", saved.Ledger["track-1"])
}

func drainEvents(ch <-chan Snapshot) []EventType {
	var events []EventType
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, snap.Event)
		default:
			return events
		}
	}
}
