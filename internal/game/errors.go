// internal/game/errors.go
package game

import "errors"

var (
	// ErrInvalidPool rejects a room whose clip pool is unknown or too
	// small to honor the no-repeat history window.
	ErrInvalidPool = errors.New("invalid clip pool")

	// ErrPoolExhausted means selection could not find an unseen clip
	// within the retry ceiling. Room-fatal.
	ErrPoolExhausted = errors.New("clip pool exhausted")

	// ErrUnauthorized means the session token was missing or unknown.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRoomClosed is returned for operations on a room that has begun
	// teardown.
	ErrRoomClosed = errors.New("room closed")

	// ErrRoomFull is returned when a join would exceed max players.
	ErrRoomFull = errors.New("room full")
)
