package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the coarse lifecycle state of a room, as visible to the
// directory listing and the shared store snapshot.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomPlaying RoomStatus = "playing"
	RoomClosing RoomStatus = "closing"
	RoomOffline RoomStatus = "offline"
)

// ClipPool describes which clips a room draws from: every clip in the
// catalog, or a named collection.
type ClipPool struct {
	Type         string    `json:"type"` // "all" or "collection"
	CollectionID uuid.UUID `json:"collectionId,omitempty"`
}

const (
	PoolAll        = "all"
	PoolCollection = "collection"
)

// PlayerState is one connected player's in-room state. It lives only as
// long as the connection (or its reconnect window) and is never persisted.
type PlayerState struct {
	ConnID     uuid.UUID `json:"connId"`
	UserID     uuid.UUID `json:"userId"`
	Name       string    `json:"name"`
	Ready      bool      `json:"ready"`
	Loaded     bool      `json:"loaded"`
	Score      int       `json:"score"`
	RTTMillis  int64     `json:"rtt"`
	LastPongAt time.Time `json:"-"`
}

// RoomSummary is the directory-listing view of a room.
type RoomSummary struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Status      RoomStatus `json:"status"`
	PlayerCount int        `json:"playerCount"`
	MaxPlayers  int        `json:"maxPlayers"`
}

// RoomSnapshot is the serialized copy of a room written to the shared
// store under room:{id}. It is an eventually-consistent read model for
// other processes; the room goroutine keeps the authoritative state.
type RoomSnapshot struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	OwnerID    uuid.UUID     `json:"ownerId"`
	MaxPlayers int           `json:"maxPlayers"`
	Status     RoomStatus    `json:"status"`
	Pool       ClipPool      `json:"pool"`
	History    []uuid.UUID   `json:"history"`
	Players    []PlayerState `json:"players"`
	Round      *Round        `json:"round,omitempty"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}
