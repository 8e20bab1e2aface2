package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundPhase tracks where a single clip-guess cycle currently is.
type RoundPhase string

const (
	PhaseSelecting RoundPhase = "selecting"
	PhaseLoading   RoundPhase = "loading"
	PhaseGuessing  RoundPhase = "guessing"
	PhaseRevealed  RoundPhase = "revealed"
)

// Clip is one opening video in the catalog. AnimeID identifies the
// correct answer and is stripped from anything sent mid-round.
type Clip struct {
	ID       uuid.UUID `json:"id"`
	AnimeID  uuid.UUID `json:"-"`
	MediaURL string    `json:"mediaUrl"`
}

// AnswerOption is one selectable answer: an anime id plus its display name.
type AnswerOption struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Round is one clip-guess cycle within a room. The correct answer is the
// anime the selected clip belongs to; Candidates always contains it,
// shuffled among the decoys.
type Round struct {
	ID         uuid.UUID      `json:"id"`
	Clip       Clip           `json:"clip"`
	Correct    AnswerOption   `json:"-"`
	Candidates []AnswerOption `json:"candidates"`
	Phase      RoundPhase     `json:"phase"`
	StartedAt  time.Time      `json:"startedAt"`
	Deadline   time.Time      `json:"deadline,omitempty"`
}
