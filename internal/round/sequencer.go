package round

// Sequencer owns the ordered round list and the current-round cursor.
// The cursor only ever moves forward; cursor == len(rounds) means the
// session is complete.
type Sequencer struct {
	rounds []Round
	cursor int
}

func NewSequencer(rounds []Round) *Sequencer {
	return &Sequencer{rounds: rounds}
}

// Resume rebuilds a sequencer at a saved cursor position. The cursor is
// clamped into [0, len(rounds)] so a corrupt save cannot panic the session.
func Resume(rounds []Round, cursor int) *Sequencer {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(rounds) {
		cursor = len(rounds)
	}
	return &Sequencer{rounds: rounds, cursor: cursor}
}

// Current returns the round under the cursor; ok is false once the
// sequence is exhausted.
func (s *Sequencer) Current() (*Round, bool) {
	if s.cursor >= len(s.rounds) {
		return nil, false
	}
	return &s.rounds[s.cursor], true
}

// Advance moves the cursor forward and returns the new current round.
// ok is false when the advance completed the session. There is no rewind.
func (s *Sequencer) Advance() (*Round, bool) {
	if s.cursor >= len(s.rounds) {
		return nil, false
	}
	s.cursor++
	return s.Current()
}

func (s *Sequencer) HasNext() bool {
	return s.cursor+1 < len(s.rounds)
}

func (s *Sequencer) Complete() bool {
	return s.cursor >= len(s.rounds)
}

func (s *Sequencer) Index() int {
	return s.cursor
}

func (s *Sequencer) Len() int {
	return len(s.rounds)
}

// Rounds exposes the full round list for progress snapshots.
func (s *Sequencer) Rounds() []Round {
	return s.rounds
}
