package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"turing-game/internal/auth"
	"turing-game/internal/game"
)

type Options struct {
	GameChatID    int64
	ReplyChatID   int64
	AdminUserID   int64
	ParseMode     string
	RestrictHosts bool
}

// Bot is the Telegram side of the game: it delivers announcements, feeds
// replies to pending waits and turns chat messages into game commands.
type Bot struct {
	api     *tgbotapi.BotAPI
	s       sender
	game    *game.Orchestrator
	authSvc *auth.Service
	waiters *dispatcher
	wg      sync.WaitGroup

	gameChatID    int64
	replyChatID   int64
	adminUserID   int64
	parseMode     string
	restrictHosts bool
}

func New(botToken string, authSvc *auth.Service, opts Options) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	log.Printf("Authorized on account @%s", api.Self.UserName)
	return &Bot{
		api:           api,
		s:             botAPISender{api: api},
		authSvc:       authSvc,
		waiters:       newDispatcher(),
		gameChatID:    opts.GameChatID,
		replyChatID:   opts.ReplyChatID,
		adminUserID:   opts.AdminUserID,
		parseMode:     opts.ParseMode,
		restrictHosts: opts.RestrictHosts,
	}, nil
}

// Start consumes updates until ctx is done, then waits for in-flight rounds.
func (b *Bot) Start(ctx context.Context, g *game.Orchestrator) {
	b.game = g

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return
			}
			if update.Message != nil {
				b.handleIncomingMessage(ctx, update.Message)
			}
		}
	}
}

// SendAnnouncement implements game.Messenger.
func (b *Bot) SendAnnouncement(_ context.Context, chatID int64, a game.Announcement) error {
	msg := tgbotapi.NewMessage(chatID, renderAnnouncement(a, b.parseMode))
	msg.ParseMode = b.parseModeValue()
	_, err := b.s.Send(msg)
	return err
}

// AwaitMessage implements game.Messenger.
func (b *Bot) AwaitMessage(ctx context.Context, chatID int64, match func(game.IncomingMessage) bool, timeout time.Duration) (game.IncomingMessage, error) {
	id, ch := b.waiters.subscribe(chatID, match)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-ch:
		return m, nil
	case <-timer.C:
	case <-ctx.Done():
	}
	// Once unsubscribed no dispatch can reach ch, so a message handed over
	// just as the wait ended is still in the buffer.
	b.waiters.unsubscribe(id)
	select {
	case m := <-ch:
		return m, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return game.IncomingMessage{}, err
	}
	return game.IncomingMessage{}, game.ErrWaitTimeout
}

// SendText sends a plain message, used for admin reports.
func (b *Bot) SendText(_ context.Context, chatID int64, text string) error {
	_, err := b.s.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	if msg.IsCommand() {
		if !msg.From.IsBot {
			b.handleCommand(ctx, msg)
		}
		return
	}

	in := game.IncomingMessage{
		ChatID:      msg.Chat.ID,
		AuthorID:    msg.From.ID,
		AuthorName:  displayName(msg.From),
		AuthorIsBot: msg.From.IsBot,
		Text:        msg.Text,
	}
	if b.waiters.dispatch(in) {
		log.Printf("reply from %d captured in chat %d", in.AuthorID, in.ChatID)
		return
	}
	if msg.From.IsBot || msg.Chat.ID != b.gameChatID || b.game == nil {
		return
	}
	s, ok := b.game.Registry().Current(b.gameChatID)
	if !ok || msg.From.ID != s.InterrogatorID {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handleQuestion(ctx, msg)
	}()
}

func (b *Bot) handleQuestion(ctx context.Context, msg *tgbotapi.Message) {
	log.Printf("Question from %d (@%s): %q", msg.From.ID, msg.From.UserName, msg.Text)
	res, err := b.game.SubmitQuestion(ctx, b.gameChatID, msg.Chat.ID, msg.From.ID, msg.Text)
	switch {
	case err == nil:
		log.Printf("round %d completed", res.Number)
	case errors.Is(err, game.ErrRoundLimitReached):
		// the orchestrator already posted the notice
	case errors.Is(err, game.ErrMessagingDelivery):
		log.Printf("round aborted: %v", err)
	default:
		log.Printf("question rejected: %v", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		b.reply(msg, "pong")
	case "start_game":
		b.handleStartGame(ctx, msg)
	case "guess":
		b.handleGuess(ctx, msg)
	case "stop_game":
		b.handleStopGame(ctx, msg)
	case "status":
		b.handleStatus(msg)
	case "allow", "deny":
		b.handleAllowlist(msg)
	}
}

func (b *Bot) handleStartGame(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat.ID == b.replyChatID {
		b.reply(msg, "You cannot start a game in the reply chat.")
		return
	}
	if msg.Chat.ID != b.gameChatID {
		b.reply(msg, "You can only start a game in the game chat.")
		return
	}
	if b.restrictHosts && (b.authSvc == nil || !b.authSvc.IsAllowed(msg.From.ID)) {
		log.Printf("Unauthorized start attempt by user ID: %d, username: @%s", msg.From.ID, msg.From.UserName)
		b.reply(msg, "You are not allowed to host games.")
		return
	}

	s, err := b.game.StartGame(ctx, game.SessionParams{
		CommunityID:      b.gameChatID,
		GameChatID:       b.gameChatID,
		ReplyChatID:      b.replyChatID,
		InterrogatorID:   msg.From.ID,
		InterrogatorName: displayName(msg.From),
	})
	switch {
	case errors.Is(err, game.ErrAlreadyActive):
		b.reply(msg, fmt.Sprintf("Game already started by %s (%d/%d rounds played), use /stop_game to stop it.",
			s.InterrogatorName, s.RoundsPlayed(), game.MaxRounds))
	case err != nil:
		log.Printf("failed to announce game start: %v", err)
	}
}

func (b *Bot) handleGuess(ctx context.Context, msg *tgbotapi.Message) {
	choice, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		choice = 0
	}
	correct, err := b.game.SubmitGuess(ctx, b.gameChatID, msg.Chat.ID, msg.From.ID, choice)
	switch {
	case errors.Is(err, game.ErrNoActiveGame):
		b.reply(msg, "No active game.")
	case errors.Is(err, game.ErrWrongChannel):
		b.reply(msg, "You can only guess in the game chat.")
	case errors.Is(err, game.ErrUnauthorized):
		b.reply(msg, "Only the interrogator who started the game can guess.")
	case errors.Is(err, game.ErrInvalidChoice):
		b.reply(msg, "Please guess 1 or 2.")
	case err != nil:
		log.Printf("guess failed: %v", err)
	case correct:
		b.reply(msg, fmt.Sprintf("Correct! Player %d was the AI. Thanks for playing.", choice))
	default:
		b.reply(msg, "Incorrect!")
	}
}

func (b *Bot) handleStopGame(ctx context.Context, msg *tgbotapi.Message) {
	_, err := b.game.StopGame(ctx, b.gameChatID, msg.Chat.ID, msg.From.ID)
	switch {
	case errors.Is(err, game.ErrWrongChannel):
		b.reply(msg, "You cannot stop a game outside the game chat.")
	case errors.Is(err, game.ErrNoActiveGame):
		b.reply(msg, "No active game in this chat.")
	case err != nil:
		log.Printf("stop failed: %v", err)
	default:
		b.reply(msg, "Game stopped.")
	}
}

func (b *Bot) handleStatus(msg *tgbotapi.Message) {
	s, ok := b.game.Registry().Current(b.gameChatID)
	if !ok {
		b.reply(msg, "No active game.")
		return
	}
	info := s.Info()
	b.reply(msg, fmt.Sprintf("Interrogator: %s\nRounds played: %d/%d\nRounds remaining: %d",
		info.InterrogatorName, info.RoundsPlayed, game.MaxRounds, info.RoundsRemaining))
}

func (b *Bot) handleAllowlist(msg *tgbotapi.Message) {
	if msg.From.ID != b.adminUserID || b.authSvc == nil {
		b.reply(msg, "This command is only available to the administrator.")
		return
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		b.reply(msg, fmt.Sprintf("Usage: /%s <user_id>", msg.Command()))
		return
	}
	uid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(msg, "Invalid user_id")
		return
	}
	if msg.Command() == "allow" {
		err = b.authSvc.Upsert(auth.User{ID: uid})
	} else {
		err = b.authSvc.Remove(uid)
	}
	if err != nil {
		b.reply(msg, fmt.Sprintf("Allowlist update failed: %v", err))
		return
	}
	b.reply(msg, fmt.Sprintf("Allowlist updated: /%s %d", msg.Command(), uid))
}

func (b *Bot) reply(to *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(to.Chat.ID, text)
	msg.ReplyToMessageID = to.MessageID
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) parseModeValue() string {
	if strings.EqualFold(b.parseMode, parseModeHTML) {
		return tgbotapi.ModeHTML
	}
	return ""
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return strconv.FormatInt(u.ID, 10)
	}
	return name
}
