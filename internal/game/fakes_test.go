package game

import (
	"context"
	"sync"
	"time"

	"turing-game/internal/llm"
	"turing-game/internal/storage"
)

type sentAnnouncement struct {
	chatID int64
	a      Announcement
}

type fakeMessenger struct {
	mu         sync.Mutex
	sent       []sentAnnouncement
	sendErr    error
	replies    chan IncomingMessage
	awaitDelay time.Duration
	waiting    int
	maxWaiting int
	waits      int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{replies: make(chan IncomingMessage, 32)}
}

func (f *fakeMessenger) SendAnnouncement(_ context.Context, chatID int64, a Announcement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentAnnouncement{chatID: chatID, a: a})
	return nil
}

func (f *fakeMessenger) AwaitMessage(ctx context.Context, chatID int64, match func(IncomingMessage) bool, timeout time.Duration) (IncomingMessage, error) {
	f.mu.Lock()
	f.waiting++
	f.waits++
	if f.waiting > f.maxWaiting {
		f.maxWaiting = f.waiting
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.waiting--
		f.mu.Unlock()
	}()

	if f.awaitDelay > 0 {
		time.Sleep(f.awaitDelay)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case m := <-f.replies:
			if m.ChatID == chatID && match(m) {
				return m, nil
			}
		case <-timer.C:
			return IncomingMessage{}, ErrWaitTimeout
		case <-ctx.Done():
			return IncomingMessage{}, ctx.Err()
		}
	}
}

func (f *fakeMessenger) waitStats() (waiting, maxWaiting, waits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting, f.maxWaiting, f.waits
}

func (f *fakeMessenger) sentTo(chatID int64) []Announcement {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Announcement
	for _, s := range f.sent {
		if s.chatID == chatID {
			out = append(out, s.a)
		}
	}
	return out
}

type fakeLLM struct {
	mu    sync.Mutex
	resp  llm.Response
	err   error
	calls [][]llm.Message
	// onGenerate runs before the response is returned.
	onGenerate func()
}

func (f *fakeLLM) Generate(_ context.Context, msgs []llm.Message) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	if f.onGenerate != nil {
		f.onGenerate()
	}
	return f.resp, f.err
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memRecorder struct {
	mu     sync.Mutex
	events []storage.Event
}

func (m *memRecorder) AppendEvent(_ context.Context, ev storage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRecorder) LoadEvents(_ context.Context) ([]storage.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Event{}, m.events...), nil
}

func (m *memRecorder) kinds() []storage.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.EventKind, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Kind)
	}
	return out
}

func reply(chatID int64, text string) IncomingMessage {
	return IncomingMessage{ChatID: chatID, AuthorID: 500, AuthorName: "volunteer", Text: text}
}
