package hub

import (
	"context"
	"testing"
	"time"

	"github.com/partyrounds/session-backend/internal/media"
	"github.com/partyrounds/session-backend/internal/session"
)

type noopResolver struct{}

func (noopResolver) Resolve(ctx context.Context, sourceRef string, desiredCount int) (media.Batch, error) {
	return media.Batch{Items: []media.Item{{ID: "t1", MediaRef: "m1", DurationSec: 30}}}, nil
}

type noopSink struct{}

func (noopSink) ApplyDelta(participantID string, points int) {}

func testDeps() session.Deps {
	return session.Deps{Resolver: noopResolver{}, Sink: noopSink{}}
}

func testOpts() session.Options {
	return session.Options{SourceRef: "playlist-1", DesiredRounds: 1, PointsPerRound: 1, Participants: []string{"a"}}
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(ctx, testDeps(), nil)
	reply := make(chan *session.Session, 1)

	h.Inbox() <- CreateSession{Code: "ZED123", Opts: testOpts(), Reply: reply}
	s1 := <-reply

	h.Inbox() <- GetSession{Code: "ZED123", Reply: reply}
	s2 := <-reply

	if s1 == nil || s2 == nil || s1 != s2 {
		t.Fatalf("expected same session pointer")
	}
}

func TestHub_GetUnknownCodeIsNil(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(ctx, testDeps(), nil)
	reply := make(chan *session.Session, 1)

	h.Inbox() <- GetSession{Code: "NOPE", Reply: reply}
	if s := <-reply; s != nil {
		t.Fatalf("expected nil for unknown code, got %v", s.ID())
	}
}

func TestHub_RemoveMakesCodeAvailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(ctx, testDeps(), nil)
	reply := make(chan *session.Session, 1)

	h.Inbox() <- CreateSession{Code: "ABC123", Opts: testOpts(), Reply: reply}
	first := <-reply

	h.Inbox() <- RemoveSession{Code: "ABC123"}
	h.Inbox() <- EnsureSession{Code: "ABC123", Opts: testOpts(), Reply: reply}

	select {
	case second := <-reply:
		if second == nil || second == first {
			t.Fatalf("expected a fresh session after remove")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ensure reply")
	}
}
