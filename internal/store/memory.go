package store

import "sync"

// MemorySink keeps aggregate scores in memory for DB-less local play.
type MemorySink struct {
	mu     sync.Mutex
	totals map[string]int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{totals: make(map[string]int)}
}

func (m *MemorySink) ApplyDelta(participantID string, points int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[participantID] += points
}

func (m *MemorySink) Total(participantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[participantID]
}
