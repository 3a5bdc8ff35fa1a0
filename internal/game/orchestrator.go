package game

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"turing-game/internal/storage"
)

const guessHint = "Guess anytime with /guess 1 or /guess 2."

// RoundResult describes a completed round.
type RoundResult struct {
	Number int
	Round  Round
	Final  bool
}

// Orchestrator is the command surface of the game: it starts and stops
// sessions, runs question cycles and resolves guesses.
type Orchestrator struct {
	registry  *Registry
	collector *Collector
	messenger Messenger
	recorder  storage.Recorder

	// newSession is replaced in tests to pin the slot assignment.
	newSession func(SessionParams) *Session
	now        func() time.Time
}

// NewOrchestrator builds an orchestrator. recorder may be nil.
func NewOrchestrator(registry *Registry, collector *Collector, messenger Messenger, recorder storage.Recorder) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		collector:  collector,
		messenger:  messenger,
		recorder:   recorder,
		newSession: NewSession,
		now:        time.Now,
	}
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

// StartGame opens a session for the community and posts the instructions to
// both chats. With ErrAlreadyActive the existing session is returned.
func (o *Orchestrator) StartGame(ctx context.Context, p SessionParams) (*Session, error) {
	s, err := o.registry.TryStart(p.CommunityID, func() *Session { return o.newSession(p) })
	if err != nil {
		return s, err
	}
	log.Printf("game %s started in community %d by %d (@%s)", s.ID, s.CommunityID, s.InterrogatorID, s.InterrogatorName)

	p1 := s.Player1IsAI()
	o.record(ctx, storage.Event{
		Kind:        storage.EventGameStarted,
		GameID:      s.ID,
		CommunityID: s.CommunityID,
		UserID:      s.InterrogatorID,
		UserName:    s.InterrogatorName,
		Player1IsAI: &p1,
	})

	if err := o.send(ctx, s.GameChatID, Announcement{
		Title: "Turing Game Started",
		Fields: []Field{
			{Label: "Interrogator", Text: s.InterrogatorName},
			{Label: "Rounds", Text: strconv.Itoa(MaxRounds)},
			{Label: "How to play", Text: "Ask a question in this chat. I will fetch a human reply from the reply chat and generate the other reply."},
			{Label: "Guess anytime", Text: "/guess 1 or /guess 2"},
			{Label: "Stop game", Text: "/stop_game"},
		},
	}); err != nil {
		return s, err
	}
	if err := o.send(ctx, s.ReplyChatID, Announcement{
		Title: "Reply Channel Ready",
		Fields: []Field{
			{Label: "Instructions", Text: "When the bot posts a Round prompt here, the first human message will be used as that round's human answer."},
			{Label: "Be Anonymous", Text: "Don't reveal who you are; keep it natural. Keep answers concise."},
		},
	}); err != nil {
		return s, err
	}
	return s, nil
}

// SubmitQuestion runs one full round for a question from the interrogator.
// The session's round guard is held for the whole cycle.
func (o *Orchestrator) SubmitQuestion(ctx context.Context, communityID, chatID, authorID int64, text string) (RoundResult, error) {
	s, ok := o.registry.Current(communityID)
	if !ok {
		return RoundResult{}, ErrNoActiveGame
	}
	if chatID != s.GameChatID {
		return RoundResult{}, ErrWrongChannel
	}
	if authorID != s.InterrogatorID {
		return RoundResult{}, ErrUnauthorized
	}
	question := strings.TrimSpace(text)
	if question == "" {
		return RoundResult{}, ErrEmptyQuestion
	}

	if err := s.Acquire(ctx); err != nil {
		return RoundResult{}, err
	}
	defer s.Release()

	// The game may have been stopped while this question waited for the guard.
	if cur, ok := o.registry.Current(communityID); !ok || cur != s {
		return RoundResult{}, ErrNoActiveGame
	}

	if s.IsAtRoundLimit() {
		if err := o.send(ctx, s.GameChatID, Announcement{
			Title: "Maximum rounds reached",
			Fields: []Field{
				{Label: "Make your guess", Text: "/guess 1 or /guess 2"},
			},
		}); err != nil {
			log.Printf("game %s: %v", s.ID, err)
		}
		return RoundResult{}, ErrRoundLimitReached
	}
	s.touch(o.now())

	number := s.RoundsPlayed() + 1
	if err := o.send(ctx, s.ReplyChatID, Announcement{
		Title: fmt.Sprintf("Round %d", number),
		Fields: []Field{
			{Label: "Question", Text: question},
			{Label: "How to reply", Text: "Type your answer as a normal message below. The first human message within the timeout will be used."},
		},
	}); err != nil {
		return RoundResult{}, err
	}

	round := Round{Question: question}
	round.HumanAnswer, round.HumanTimedOut = o.collector.AwaitHumanAnswer(ctx, s.ReplyChatID)
	if err := ctx.Err(); err != nil {
		log.Printf("game %s: round %d abandoned: %v", s.ID, number, err)
		return RoundResult{}, err
	}
	if round.HumanTimedOut {
		if err := o.send(ctx, s.ReplyChatID, Announcement{
			Title: "Timeout",
			Fields: []Field{
				{Label: "No human reply received", Text: "Proceeding with the other answer only."},
			},
		}); err != nil {
			return RoundResult{}, err
		}
	}
	round.BotAnswer, round.AIFallback = o.collector.RequestAIAnswer(ctx, s, question)
	if err := ctx.Err(); err != nil {
		log.Printf("game %s: round %d abandoned: %v", s.ID, number, err)
		return RoundResult{}, err
	}

	recorded, err := s.RecordRound(round)
	if err != nil {
		return RoundResult{}, err
	}
	s.touch(o.now())
	final := recorded >= MaxRounds
	log.Printf("game %s: round %d recorded (human_timeout=%t, ai_fallback=%t)", s.ID, recorded, round.HumanTimedOut, round.AIFallback)

	o.record(ctx, storage.Event{
		Kind:          storage.EventRoundCompleted,
		GameID:        s.ID,
		CommunityID:   s.CommunityID,
		UserID:        authorID,
		Round:         recorded,
		Question:      round.Question,
		HumanAnswer:   round.HumanAnswer,
		BotAnswer:     round.BotAnswer,
		HumanTimedOut: round.HumanTimedOut,
		AIFallback:    round.AIFallback,
	})

	result := RoundResult{Number: recorded, Round: round, Final: final}
	if err := o.send(ctx, s.GameChatID, ResultsAnnouncement(s, result)); err != nil {
		return result, err
	}
	if final {
		if err := o.send(ctx, s.GameChatID, Announcement{Title: "That was the final round. Make your guess!"}); err != nil {
			return result, err
		}
	}
	return result, nil
}

// ResultsAnnouncement lists both answers under their labels, Player 1 first.
func ResultsAnnouncement(s *Session, r RoundResult) Announcement {
	byLabel := map[string]string{
		s.LabelFor(true):  r.Round.BotAnswer,
		s.LabelFor(false): r.Round.HumanAnswer,
	}
	footer := guessHint
	if r.Final {
		footer += " (Max rounds reached.)"
	}
	return Announcement{
		Title:       fmt.Sprintf("Round %d Answers", r.Number),
		Description: "Question: " + r.Round.Question,
		Fields: []Field{
			{Label: LabelPlayer1, Text: byLabel[LabelPlayer1]},
			{Label: LabelPlayer2, Text: byLabel[LabelPlayer2]},
		},
		Footer: footer,
	}
}

// SubmitGuess resolves a guess from the game chat. A correct guess ends the
// session; a wrong one leaves it running.
func (o *Orchestrator) SubmitGuess(ctx context.Context, communityID, chatID, guesserID int64, choice int) (bool, error) {
	s, ok := o.registry.Current(communityID)
	if !ok {
		return false, ErrNoActiveGame
	}
	if chatID != s.GameChatID {
		return false, ErrWrongChannel
	}
	correct, err := s.ResolveGuess(guesserID, choice)
	if err != nil {
		return false, err
	}
	o.record(ctx, storage.Event{
		Kind:        storage.EventGuess,
		GameID:      s.ID,
		CommunityID: s.CommunityID,
		UserID:      guesserID,
		Round:       s.RoundsPlayed(),
		Choice:      choice,
		Correct:     &correct,
	})
	if correct {
		o.registry.EndSession(s)
		log.Printf("game %s: solved after %d rounds", s.ID, s.RoundsPlayed())
	}
	return correct, nil
}

// StopGame ends the community's session. A round still in flight completes
// against the discarded session.
func (o *Orchestrator) StopGame(ctx context.Context, communityID, chatID, requesterID int64) (*Session, error) {
	s, ok := o.registry.Current(communityID)
	if !ok {
		return nil, ErrNoActiveGame
	}
	if chatID != s.GameChatID {
		return nil, ErrWrongChannel
	}
	if s = o.registry.End(communityID); s == nil {
		return nil, ErrNoActiveGame
	}
	log.Printf("game %s stopped by %d", s.ID, requesterID)
	o.record(ctx, storage.Event{
		Kind:        storage.EventGameStopped,
		GameID:      s.ID,
		CommunityID: s.CommunityID,
		UserID:      requesterID,
		Round:       s.RoundsPlayed(),
	})
	return s, nil
}

// ExpireIdle ends sessions idle for longer than maxIdle and tells their chats.
func (o *Orchestrator) ExpireIdle(ctx context.Context, maxIdle time.Duration) []*Session {
	ended := o.registry.EndIdle(o.now(), maxIdle)
	for _, s := range ended {
		log.Printf("game %s expired after %s without activity", s.ID, maxIdle)
		o.record(ctx, storage.Event{
			Kind:        storage.EventGameExpired,
			GameID:      s.ID,
			CommunityID: s.CommunityID,
			Round:       s.RoundsPlayed(),
		})
		if err := o.send(ctx, s.GameChatID, Announcement{
			Title: "Game expired",
			Fields: []Field{
				{Label: "Reason", Text: fmt.Sprintf("No activity for %s. Start a new game with /start_game.", maxIdle)},
			},
		}); err != nil {
			log.Printf("game %s: %v", s.ID, err)
		}
	}
	return ended
}

func (o *Orchestrator) send(ctx context.Context, chatID int64, a Announcement) error {
	if err := o.messenger.SendAnnouncement(ctx, chatID, a); err != nil {
		return fmt.Errorf("%w: %q to chat %d: %v", ErrMessagingDelivery, a.Title, chatID, err)
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, ev storage.Event) {
	if o.recorder == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.now().UTC()
	}
	if err := o.recorder.AppendEvent(ctx, ev); err != nil {
		log.Printf("failed to record %s event for game %s: %v", ev.Kind, ev.GameID, err)
	}
}
