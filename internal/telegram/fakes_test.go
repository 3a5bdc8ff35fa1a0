package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"turing-game/internal/game"
	"turing-game/internal/llm"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.msgs = append(f.msgs, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.msgs {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) last(chatID int64) string {
	t := f.texts(chatID)
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type stubLLM struct{ text string }

func (s stubLLM) Generate(context.Context, []llm.Message) (llm.Response, error) {
	return llm.Response{Content: s.text}, nil
}

const (
	testGameChat  int64 = -1001
	testReplyChat int64 = -1002
	testAdmin     int64 = 1
)

func newTestBot(t *testing.T, humanTimeout time.Duration) (*Bot, *fakeSender) {
	t.Helper()
	fs := &fakeSender{}
	b := &Bot{
		s:           fs,
		waiters:     newDispatcher(),
		gameChatID:  testGameChat,
		replyChatID: testReplyChat,
		adminUserID: testAdmin,
	}
	collector := game.NewCollector(b, stubLLM{text: "Blue, like the deep sea, matey."}, game.CollectorOptions{
		HumanTimeout: humanTimeout,
		AITimeout:    time.Second,
	})
	b.game = game.NewOrchestrator(game.NewRegistry(), collector, b, nil)
	return b, fs
}

func textMsg(chatID, userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: userID, UserName: "user"},
		Text:      text,
	}
}

func commandMsg(chatID, userID int64, command, args string) *tgbotapi.Message {
	text := "/" + command
	if args != "" {
		text += " " + args
	}
	m := textMsg(chatID, userID, text)
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command) + 1}}
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
