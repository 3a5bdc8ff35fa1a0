package storage

import (
	"context"
	"time"
)

type EventKind string

const (
	EventGameStarted    EventKind = "game_started"
	EventRoundCompleted EventKind = "round_completed"
	EventGuess          EventKind = "guess"
	EventGameStopped    EventKind = "game_stopped"
	EventGameExpired    EventKind = "game_expired"
)

// Event is a single entry of the game log. Round events carry the question
// and both answers, guess events carry the choice and its outcome.
// Events are expected to be appended in chronological order.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	Kind          EventKind `json:"kind"`
	GameID        string    `json:"game_id"`
	CommunityID   int64     `json:"community_id"`
	UserID        int64     `json:"user_id,omitempty"`
	UserName      string    `json:"user_name,omitempty"`
	Round         int       `json:"round,omitempty"`
	Question      string    `json:"question,omitempty"`
	HumanAnswer   string    `json:"human_answer,omitempty"`
	BotAnswer     string    `json:"bot_answer,omitempty"`
	HumanTimedOut bool      `json:"human_timed_out,omitempty"`
	AIFallback    bool      `json:"ai_fallback,omitempty"`
	Player1IsAI   *bool     `json:"player1_is_ai,omitempty"`
	Choice        int       `json:"choice,omitempty"`
	Correct       *bool     `json:"correct,omitempty"`
}

// Recorder abstracts persistence of game events.
// Implementations can be file-based, database, etc.
// LoadEvents should return events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendEvent(ctx context.Context, event Event) error
	LoadEvents(ctx context.Context) ([]Event, error)
}
