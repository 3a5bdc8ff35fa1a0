package game

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"turing-game/internal/llm"
)

const (
	HumanTimeoutAnswer = "*No human reply received in time.*"
	AIFallbackAnswer   = "*No reply this round.*"

	DefaultHumanTimeout = 180 * time.Second
	DefaultAITimeout    = 60 * time.Second
)

const DefaultSystemPrompt = "You are one of two anonymous participants answering an interrogator in a Turing-style game. " +
	"Answer each question naturally and concisely (70 words or fewer). " +
	"Do not reveal that you are an AI or not human. " +
	"Keep a consistent tone with your past responses, and feel free to mimic the style of the other participant."

type CollectorOptions struct {
	SystemPrompt string
	HumanTimeout time.Duration
	AITimeout    time.Duration
}

// Collector gathers the two answers of a round. Neither a missing human
// reply nor an AI failure is an error: both turn into placeholder text.
type Collector struct {
	messenger    Messenger
	ai           llm.Client
	systemPrompt string
	humanTimeout time.Duration
	aiTimeout    time.Duration
}

func NewCollector(messenger Messenger, ai llm.Client, opts CollectorOptions) *Collector {
	c := &Collector{
		messenger:    messenger,
		ai:           ai,
		systemPrompt: opts.SystemPrompt,
		humanTimeout: opts.HumanTimeout,
		aiTimeout:    opts.AITimeout,
	}
	if strings.TrimSpace(c.systemPrompt) == "" {
		c.systemPrompt = DefaultSystemPrompt
	}
	if c.humanTimeout <= 0 {
		c.humanTimeout = DefaultHumanTimeout
	}
	if c.aiTimeout <= 0 {
		c.aiTimeout = DefaultAITimeout
	}
	return c
}

// AwaitHumanAnswer waits for the first qualifying message in the reply chat.
// On ctx cancellation it also returns the placeholder; callers check ctx.
func (c *Collector) AwaitHumanAnswer(ctx context.Context, replyChatID int64) (string, bool) {
	msg, err := c.messenger.AwaitMessage(ctx, replyChatID, QualifyingReply(replyChatID), c.humanTimeout)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			log.Printf("waiting for human reply in chat %d cancelled: %v", replyChatID, err)
		case !errors.Is(err, ErrWaitTimeout):
			log.Printf("waiting for human reply in chat %d failed: %v", replyChatID, err)
		default:
			log.Printf("no human reply in chat %d within %s", replyChatID, c.humanTimeout)
		}
		return HumanTimeoutAnswer, true
	}
	return strings.TrimSpace(msg.Text), false
}

// RequestAIAnswer asks the AI with the replayed history plus the new question.
func (c *Collector) RequestAIAnswer(ctx context.Context, s *Session, question string) (string, bool) {
	if c.ai == nil {
		log.Printf("game %s: no llm client configured, using fallback answer", s.ID)
		return AIFallbackAnswer, true
	}

	msgs := []llm.Message{{Role: llm.RoleSystem, Content: c.systemPrompt}}
	msgs = append(msgs, s.BuildHistoryContext()...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "New question: " + question + "\nAnswer directly."})

	ctx, cancel := context.WithTimeout(ctx, c.aiTimeout)
	defer cancel()

	resp, err := c.ai.Generate(ctx, msgs)
	if err != nil {
		log.Printf("game %s: llm request failed, using fallback answer: %v", s.ID, err)
		return AIFallbackAnswer, true
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		log.Printf("game %s: llm returned empty answer, using fallback", s.ID)
		return AIFallbackAnswer, true
	}
	log.Printf("game %s: llm answer [model=%s, tokens: prompt=%d, completion=%d, total=%d]",
		s.ID, resp.Model, resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)
	return answer, false
}
