package memory

import (
	"sync"

	"handbook-agent/internal/domain"
)

// DefaultWindowSize is the number of turns retained per conversation.
const DefaultWindowSize = 3

// Window is a fixed-capacity FIFO buffer of the most recent turns.
type Window struct {
	mu    sync.RWMutex
	size  int
	turns []domain.Turn
}

// NewWindow returns an empty window holding at most size turns.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{size: size, turns: make([]domain.Turn, 0, size)}
}

// Record appends a turn and drops the oldest ones beyond capacity.
func (w *Window) Record(input, output string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, domain.Turn{Input: input, Output: output})
	if over := len(w.turns) - w.size; over > 0 {
		w.turns = append(w.turns[:0:0], w.turns[over:]...)
	}
}

// RecentTurns returns the retained turns oldest-first.
func (w *Window) RecentTurns() []domain.Turn {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]domain.Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Len reports how many turns are retained.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.turns)
}
