// internal/game/selection.go
package game

import (
	"math/rand"

	"github.com/google/uuid"
)

// maxSelectAttempts bounds the rejection-sampling loop. With the pool-size
// precondition enforced at room creation this is effectively never hit;
// exceeding it surfaces as ErrPoolExhausted and the room is closed.
const maxSelectAttempts = 100

// SelectClip uniformly samples an unseen clip id from pool, retrying while
// the draw is inside the history window.
func SelectClip(pool []uuid.UUID, history *History) (uuid.UUID, error) {
	if len(pool) == 0 {
		return uuid.Nil, ErrPoolExhausted
	}
	for i := 0; i < maxSelectAttempts; i++ {
		id := pool[rand.Intn(len(pool))]
		if !history.Contains(id) {
			return id, nil
		}
	}
	return uuid.Nil, ErrPoolExhausted
}

// shuffleAnswers randomizes candidate order in place so the correct
// answer's slot carries no signal.
func shuffleAnswers[T any](arr []T) {
	for i := len(arr) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		arr[i], arr[j] = arr[j], arr[i]
	}
}
