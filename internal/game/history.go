// internal/game/history.go
package game

import "github.com/google/uuid"

// HistoryCapacity bounds how many recently played clip ids a room
// remembers; a clip in the window cannot be selected again.
const HistoryCapacity = 5

// History is a bounded FIFO of recently played clip ids. Oldest entries
// are evicted first. Not safe for concurrent use; it is only touched by
// the owning room goroutine.
type History struct {
	ids []uuid.UUID
	cap int
}

func NewHistory(capacity int) *History {
	return &History{cap: capacity}
}

// Push appends id, evicting the oldest entry when at capacity.
func (h *History) Push(id uuid.UUID) {
	if len(h.ids) >= h.cap {
		h.ids = h.ids[1:]
	}
	h.ids = append(h.ids, id)
}

// Contains reports whether id is inside the current window.
func (h *History) Contains(id uuid.UUID) bool {
	for _, v := range h.ids {
		if v == id {
			return true
		}
	}
	return false
}

func (h *History) Len() int { return len(h.ids) }

// IDs returns a copy of the window, oldest first.
func (h *History) IDs() []uuid.UUID {
	out := make([]uuid.UUID, len(h.ids))
	copy(out, h.ids)
	return out
}
