package game

import (
	"context"
	"strings"
	"time"
)

type Field struct {
	Label string
	Text  string
}

// Announcement is structured content posted to a chat: a title and an
// ordered list of labelled fields.
type Announcement struct {
	Title       string
	Description string
	Fields      []Field
	Footer      string
}

type IncomingMessage struct {
	ChatID      int64
	AuthorID    int64
	AuthorName  string
	AuthorIsBot bool
	Text        string
}

// Messenger is the chat platform as seen by the game.
//
// AwaitMessage blocks until the first message in chatID accepted by match, the
// timeout (ErrWaitTimeout) or ctx cancellation. Implementations must drop the
// subscription on every return path.
type Messenger interface {
	SendAnnouncement(ctx context.Context, chatID int64, a Announcement) error
	AwaitMessage(ctx context.Context, chatID int64, match func(IncomingMessage) bool, timeout time.Duration) (IncomingMessage, error)
}

// QualifyingReply accepts non-empty messages from humans in the reply chat.
func QualifyingReply(replyChatID int64) func(IncomingMessage) bool {
	return func(m IncomingMessage) bool {
		return m.ChatID == replyChatID &&
			!m.AuthorIsBot &&
			strings.TrimSpace(m.Text) != ""
	}
}
