package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"turing-game/internal/llm"
)

const MaxRounds = 10

const (
	LabelPlayer1 = "Player 1"
	LabelPlayer2 = "Player 2"
)

type SessionParams struct {
	CommunityID      int64
	GameChatID       int64
	ReplyChatID      int64
	InterrogatorID   int64
	InterrogatorName string
}

// Session is one game: a fixed AI/human slot assignment and the rounds
// played so far.
//
// Round processing is serialized by Acquire/Release, which must be held
// across a whole question cycle. The inner mutex only protects reads of the
// round list from outside that cycle (status commands, the HTTP API).
type Session struct {
	ID               string
	CommunityID      int64
	GameChatID       int64
	ReplyChatID      int64
	InterrogatorID   int64
	InterrogatorName string
	StartedAt        time.Time

	player1IsAI bool
	guard       chan struct{}

	mu           sync.RWMutex
	rounds       []Round
	lastActivity time.Time
}

// NewSession assigns the AI to Player 1 or Player 2 with equal probability.
func NewSession(p SessionParams) *Session {
	return newSession(p, rand.IntN(2) == 0, time.Now())
}

func newSession(p SessionParams, player1IsAI bool, now time.Time) *Session {
	return &Session{
		ID:               uuid.NewString(),
		CommunityID:      p.CommunityID,
		GameChatID:       p.GameChatID,
		ReplyChatID:      p.ReplyChatID,
		InterrogatorID:   p.InterrogatorID,
		InterrogatorName: p.InterrogatorName,
		StartedAt:        now,
		player1IsAI:      player1IsAI,
		guard:            make(chan struct{}, 1),
		lastActivity:     now,
	}
}

// Acquire takes the round guard. It is not reentrant.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.guard <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Release() {
	<-s.guard
}

// InFlight reports whether a question cycle currently holds the round guard.
func (s *Session) InFlight() bool {
	return len(s.guard) == 1
}

func (s *Session) Player1IsAI() bool { return s.player1IsAI }

// LabelFor returns the public label of the AI (isAI) or of the human.
func (s *Session) LabelFor(isAI bool) string {
	if isAI == s.player1IsAI {
		return LabelPlayer1
	}
	return LabelPlayer2
}

// AISlot is the guess (1 or 2) that identifies the AI.
func (s *Session) AISlot() int {
	if s.player1IsAI {
		return 1
	}
	return 2
}

func (s *Session) RoundsPlayed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rounds)
}

func (s *Session) RoundsRemaining() int {
	return MaxRounds - s.RoundsPlayed()
}

func (s *Session) IsAtRoundLimit() bool {
	return s.RoundsPlayed() >= MaxRounds
}

// Rounds returns a copy of the round history.
func (s *Session) Rounds() []Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Round, len(s.rounds))
	copy(out, s.rounds)
	return out
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// RecordRound appends r and returns its 1-based round number. Callers hold
// the round guard, check the limit first and touch activity themselves.
func (s *Session) RecordRound(r Round) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rounds) >= MaxRounds {
		return 0, ErrRoundLimitReached
	}
	s.rounds = append(s.rounds, r)
	return len(s.rounds), nil
}

// BuildHistoryContext replays past rounds for the AI: per round a user block
// with the question and the other participant's answer, then an assistant
// block with what the AI said. Placeholder answers are left out.
func (s *Session) BuildHistoryContext() []llm.Message {
	rounds := s.Rounds()
	msgs := make([]llm.Message, 0, 2*len(rounds))
	for i, r := range rounds {
		prior := fmt.Sprintf("Round %d context:\nQuestion: %s", i+1, r.Question)
		if r.HumanAnswer != "" && !r.HumanTimedOut {
			prior += "\nOther participant's answer: " + r.HumanAnswer
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prior})
		if r.BotAnswer != "" && !r.AIFallback {
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: r.BotAnswer})
		}
	}
	return msgs
}

// ResolveGuess reports whether choice names the AI's slot.
func (s *Session) ResolveGuess(guesserID int64, choice int) (bool, error) {
	if guesserID != s.InterrogatorID {
		return false, ErrUnauthorized
	}
	if choice != 1 && choice != 2 {
		return false, ErrInvalidChoice
	}
	s.touch(time.Now())
	return choice == s.AISlot(), nil
}

// Info is a snapshot safe to show to players: it never includes the slot
// assignment.
type Info struct {
	ID               string    `json:"id"`
	CommunityID      int64     `json:"community_id"`
	InterrogatorID   int64     `json:"interrogator_id"`
	InterrogatorName string    `json:"interrogator_name"`
	RoundsPlayed     int       `json:"rounds_played"`
	RoundsRemaining  int       `json:"rounds_remaining"`
	StartedAt        time.Time `json:"started_at"`
	LastActivity     time.Time `json:"last_activity"`
}

func (s *Session) Info() Info {
	s.mu.RLock()
	played, last := len(s.rounds), s.lastActivity
	s.mu.RUnlock()
	return Info{
		ID:               s.ID,
		CommunityID:      s.CommunityID,
		InterrogatorID:   s.InterrogatorID,
		InterrogatorName: s.InterrogatorName,
		RoundsPlayed:     played,
		RoundsRemaining:  MaxRounds - played,
		StartedAt:        s.StartedAt,
		LastActivity:     last,
	}
}
