// internal/game/events.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/guessop/server/internal/models"
)

// EventType is an enum-like type for messages sent to players.
type EventType string

const (
	EventMembershipUpdate EventType = "membership-update"
	EventRoundStarted     EventType = "round-started"
	EventGuessingOpen     EventType = "guessing-open"
	EventRoundRevealed    EventType = "round-revealed"
	EventScoreUpdate      EventType = "score-update"
	EventChat             EventType = "chat"
	EventPing             EventType = "ping"
	EventRoomState        EventType = "room-state"
	EventUnauthorized     EventType = "unauthorized"
	EventRoomClosing      EventType = "room-closing"
)

// RosterEntry is one player's public view in a membership payload.
type RosterEntry struct {
	UserID    uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Score     int       `json:"score"`
	RTTMillis int64     `json:"rtt"`
}

// MembershipPayload carries the full roster after any join/leave/ready change.
type MembershipPayload struct {
	Players []RosterEntry `json:"players"`
}

// RoundStartedPayload announces a new clip and its answer candidates.
// The correct answer is never included; clients only get the media ref.
type RoundStartedPayload struct {
	RoundID    uuid.UUID             `json:"roundId"`
	ClipRef    string                `json:"clipRef"`
	Candidates []models.AnswerOption `json:"candidates"`
}

// GuessingOpenPayload opens the guess window with an absolute deadline.
type GuessingOpenPayload struct {
	RoundID  uuid.UUID `json:"roundId"`
	Deadline time.Time `json:"deadline"`
}

// RoundRevealedPayload carries the correct answer and the scoreboard.
type RoundRevealedPayload struct {
	RoundID uuid.UUID           `json:"roundId"`
	Correct models.AnswerOption `json:"correct"`
	Scores  []RosterEntry       `json:"scores"`
}

// ScoreUpdatePayload is broadcast when a guess lands.
type ScoreUpdatePayload struct {
	UserID uuid.UUID `json:"userId"`
	Score  int       `json:"score"`
}

// ChatPayload is a relayed chat line.
type ChatPayload struct {
	UserID uuid.UUID `json:"userId"`
	Name   string    `json:"name"`
	Text   string    `json:"text"`
	SentAt int64     `json:"ts"`
}

// PingPayload is an application-level liveness probe; clients echo Seq
// back in a pong message.
type PingPayload struct {
	Seq int64 `json:"seq"`
}

// Event is the tagged union sent over the wire. Exactly one payload field
// matching Type is set; the rest are omitted from the JSON encoding.
type Event struct {
	Type       EventType             `json:"type"`
	Membership *MembershipPayload    `json:"membership,omitempty"`
	Round      *RoundStartedPayload  `json:"round,omitempty"`
	Guessing   *GuessingOpenPayload  `json:"guessing,omitempty"`
	Reveal     *RoundRevealedPayload `json:"reveal,omitempty"`
	Score      *ScoreUpdatePayload   `json:"score,omitempty"`
	Chat       *ChatPayload          `json:"chat,omitempty"`
	Ping       *PingPayload          `json:"ping,omitempty"`
	State      *models.RoomSnapshot  `json:"state,omitempty"`
}

// ClientMessage is the fixed schema for inbound messages. The gateway
// decodes each frame exactly once and dispatches on Type.
type ClientMessage struct {
	Type     string     `json:"type"` // mark-ready, mark-loaded, submit-guess, chat, pong
	AnswerID *uuid.UUID `json:"answerId,omitempty"`
	Text     string     `json:"text,omitempty"`
	Seq      int64      `json:"seq,omitempty"`
}

const (
	MsgMarkReady   = "mark-ready"
	MsgMarkLoaded  = "mark-loaded"
	MsgSubmitGuess = "submit-guess"
	MsgChat        = "chat"
	MsgPong        = "pong"
)
