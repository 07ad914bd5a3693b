package score

import "sort"

// Sink applies a signed point delta to the authoritative participant score
// store. Fire-and-forget from the engine's perspective; the sink owns its
// failure handling.
type Sink interface {
	ApplyDelta(participantID string, points int)
}

// Entry records the scoring outcome of one round. An empty AwardeeID is a
// valid terminal entry meaning nobody scored the round.
type Entry struct {
	RoundID   string `json:"round_id"`
	AwardeeID string `json:"awardee_id"`
}

// Ledger is the per-round award record. Awards are idempotent and a change
// of winner is revoke-then-award, so the sum of deltas sent to the sink
// always equals the aggregate the entries describe.
type Ledger struct {
	pointsPerRound int
	entries        map[string]Entry
	sink           Sink
}

func NewLedger(pointsPerRound int, sink Sink) *Ledger {
	return &Ledger{
		pointsPerRound: pointsPerRound,
		entries:        make(map[string]Entry),
		sink:           sink,
	}
}

// Award credits participantID for roundID. Repeating the same award is a
// no-op. Awarding a different participant revokes the previous credit first,
// as one logical operation, so the sink never sees both credited.
func (l *Ledger) Award(roundID, participantID string) {
	if participantID == "" {
		l.Revoke(roundID)
		return
	}

	prev, ok := l.entries[roundID]
	if ok && prev.AwardeeID == participantID {
		return
	}
	if ok && prev.AwardeeID != "" {
		l.sink.ApplyDelta(prev.AwardeeID, -l.pointsPerRound)
	}

	l.entries[roundID] = Entry{RoundID: roundID, AwardeeID: participantID}
	l.sink.ApplyDelta(participantID, l.pointsPerRound)
}

// Revoke withdraws any credit for roundID, leaving a nobody-scored entry.
// Revoking a round with no credit is a no-op, never an error.
func (l *Ledger) Revoke(roundID string) {
	prev, ok := l.entries[roundID]
	if ok && prev.AwardeeID != "" {
		l.sink.ApplyDelta(prev.AwardeeID, -l.pointsPerRound)
	}
	l.entries[roundID] = Entry{RoundID: roundID}
}

func (l *Ledger) EntryFor(roundID string) (Entry, bool) {
	e, ok := l.entries[roundID]
	return e, ok
}

// FinalScores derives the aggregate purely from the entries. Participants
// from the session scope appear even at zero so ties over zero are visible.
func (l *Ledger) FinalScores(participants []string) map[string]int {
	scores := make(map[string]int, len(participants))
	for _, p := range participants {
		scores[p] = 0
	}
	for _, e := range l.entries {
		if e.AwardeeID != "" {
			scores[e.AwardeeID] += l.pointsPerRound
		}
	}
	return scores
}

// Snapshot returns the entries keyed by round for progress persistence.
func (l *Ledger) Snapshot() map[string]string {
	snap := make(map[string]string, len(l.entries))
	for id, e := range l.entries {
		snap[id] = e.AwardeeID
	}
	return snap
}

// Restore rebuilds the ledger from a saved snapshot without emitting deltas;
// the sink already holds the credits from the original session.
func (l *Ledger) Restore(snap map[string]string) {
	for roundID, awardee := range snap {
		l.entries[roundID] = Entry{RoundID: roundID, AwardeeID: awardee}
	}
}

// Winners returns every participant holding the highest aggregate. A tie is
// reported as the full set; tie-breaking belongs to the caller.
func Winners(scores map[string]int) []string {
	best := 0
	first := true
	for _, pts := range scores {
		if first || pts > best {
			best = pts
			first = false
		}
	}

	var winners []string
	for p, pts := range scores {
		if pts == best {
			winners = append(winners, p)
		}
	}
	sort.Strings(winners)
	return winners
}
