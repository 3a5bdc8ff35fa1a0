package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"turing-game/internal/llm"
	"turing-game/internal/storage"
)

type harness struct {
	o   *Orchestrator
	m   *fakeMessenger
	ai  *fakeLLM
	rec *memRecorder
	p   SessionParams
}

func newHarness(t *testing.T, player1IsAI bool, humanTimeout time.Duration) *harness {
	t.Helper()
	m := newFakeMessenger()
	ai := &fakeLLM{resp: llm.Response{Content: "Blue, like the deep sea, matey.", Model: "fake"}}
	rec := &memRecorder{}
	c := NewCollector(m, ai, CollectorOptions{HumanTimeout: humanTimeout, AITimeout: time.Second})
	o := NewOrchestrator(NewRegistry(), c, m, rec)
	o.newSession = func(p SessionParams) *Session { return newSession(p, player1IsAI, time.Now()) }
	return &harness{o: o, m: m, ai: ai, rec: rec, p: testParams()}
}

func (h *harness) start(t *testing.T) *Session {
	t.Helper()
	s, err := h.o.StartGame(context.Background(), h.p)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	return s
}

func (h *harness) ask(question string) (RoundResult, error) {
	return h.o.SubmitQuestion(context.Background(), h.p.CommunityID, h.p.GameChatID, h.p.InterrogatorID, question)
}

func TestStartGamePostsInstructions(t *testing.T) {
	h := newHarness(t, true, time.Second)
	h.start(t)

	game := h.m.sentTo(h.p.GameChatID)
	replyChat := h.m.sentTo(h.p.ReplyChatID)
	if len(game) != 1 || game[0].Title != "Turing Game Started" {
		t.Fatalf("unexpected game chat posts: %+v", game)
	}
	if len(replyChat) != 1 || replyChat[0].Title != "Reply Channel Ready" {
		t.Fatalf("unexpected reply chat posts: %+v", replyChat)
	}
	if kinds := h.rec.kinds(); len(kinds) != 1 || kinds[0] != storage.EventGameStarted {
		t.Fatalf("unexpected events: %v", kinds)
	}
}

func TestStartGameAlreadyActive(t *testing.T) {
	h := newHarness(t, true, time.Second)
	first := h.start(t)
	existing, err := h.o.StartGame(context.Background(), h.p)
	if !errors.Is(err, ErrAlreadyActive) || existing != first {
		t.Fatalf("expected ErrAlreadyActive with existing session, got %v", err)
	}
}

func TestSubmitQuestion_EndToEnd(t *testing.T) {
	h := newHarness(t, true, time.Second)
	s := h.start(t)
	h.m.replies <- reply(h.p.ReplyChatID, "Blue")

	res, err := h.ask("What is your favorite color?")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := Round{Question: "What is your favorite color?", HumanAnswer: "Blue", BotAnswer: "Blue, like the deep sea, matey."}
	if res.Number != 1 || res.Round != want || res.Final {
		t.Fatalf("unexpected result: %+v", res)
	}
	if s.RoundsPlayed() != 1 || s.Rounds()[0] != want {
		t.Fatalf("unexpected session rounds: %+v", s.Rounds())
	}

	prompts := h.m.sentTo(h.p.ReplyChatID)
	if len(prompts) != 2 || prompts[1].Title != "Round 1" || prompts[1].Fields[0].Text != "What is your favorite color?" {
		t.Fatalf("round prompt not posted to reply chat: %+v", prompts)
	}

	game := h.m.sentTo(h.p.GameChatID)
	results := game[len(game)-1]
	if results.Title != "Round 1 Answers" {
		t.Fatalf("unexpected results title: %q", results.Title)
	}
	if results.Fields[0] != (Field{Label: "Player 1", Text: "Blue, like the deep sea, matey."}) ||
		results.Fields[1] != (Field{Label: "Player 2", Text: "Blue"}) {
		t.Fatalf("unexpected results fields: %+v", results.Fields)
	}
	if !strings.Contains(results.Footer, "/guess 1") {
		t.Fatalf("footer lacks guess hint: %q", results.Footer)
	}
}

func TestSubmitQuestion_LabelsFollowAssignment(t *testing.T) {
	h := newHarness(t, false, time.Second)
	h.start(t)
	h.m.replies <- reply(h.p.ReplyChatID, "Blue")

	if _, err := h.ask("Favorite color?"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	game := h.m.sentTo(h.p.GameChatID)
	results := game[len(game)-1]
	if results.Fields[0].Text != "Blue" || results.Fields[1].Text != "Blue, like the deep sea, matey." {
		t.Fatalf("labels not mapped to player2=AI: %+v", results.Fields)
	}
}

func TestSubmitQuestion_Preconditions(t *testing.T) {
	h := newHarness(t, true, time.Second)
	ctx := context.Background()

	if _, err := h.ask("hello?"); !errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("expected ErrNoActiveGame, got %v", err)
	}
	s := h.start(t)
	if _, err := h.o.SubmitQuestion(ctx, h.p.CommunityID, h.p.GameChatID, 999, "hello?"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.o.SubmitQuestion(ctx, h.p.CommunityID, h.p.ReplyChatID, h.p.InterrogatorID, "hello?"); !errors.Is(err, ErrWrongChannel) {
		t.Fatalf("expected ErrWrongChannel, got %v", err)
	}
	if _, err := h.ask("   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if s.RoundsPlayed() != 0 || h.ai.callCount() != 0 {
		t.Fatalf("rejected questions mutated state")
	}
}

func TestSubmitQuestion_RoundLimit(t *testing.T) {
	h := newHarness(t, true, time.Second)
	s := h.start(t)

	for i := 1; i <= MaxRounds; i++ {
		h.m.replies <- reply(h.p.ReplyChatID, fmt.Sprintf("answer %d", i))
		res, err := h.ask(fmt.Sprintf("question %d", i))
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if res.Number != i || s.RoundsPlayed() != i {
			t.Fatalf("round %d: number=%d played=%d", i, res.Number, s.RoundsPlayed())
		}
		if res.Final != (i == MaxRounds) {
			t.Fatalf("round %d: final=%t", i, res.Final)
		}
	}
	game := h.m.sentTo(h.p.GameChatID)
	if game[len(game)-1].Title != "That was the final round. Make your guess!" {
		t.Fatalf("final round notice missing: %q", game[len(game)-1].Title)
	}
	if !strings.Contains(game[len(game)-2].Footer, "Max rounds reached") {
		t.Fatalf("last results footer lacks max rounds note: %q", game[len(game)-2].Footer)
	}

	calls := h.ai.callCount()
	if _, err := h.ask("one more?"); !errors.Is(err, ErrRoundLimitReached) {
		t.Fatalf("expected ErrRoundLimitReached, got %v", err)
	}
	if s.RoundsPlayed() != MaxRounds || h.ai.callCount() != calls {
		t.Fatalf("11th question changed state: rounds=%d", s.RoundsPlayed())
	}
	game = h.m.sentTo(h.p.GameChatID)
	if game[len(game)-1].Title != "Maximum rounds reached" {
		t.Fatalf("limit notice missing: %q", game[len(game)-1].Title)
	}
}

func TestSubmitQuestion_HumanTimeout(t *testing.T) {
	h := newHarness(t, true, 20*time.Millisecond)
	s := h.start(t)

	res, err := h.ask("Anyone there?")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Round.HumanTimedOut || res.Round.HumanAnswer != HumanTimeoutAnswer {
		t.Fatalf("expected timeout sentinel, got %+v", res.Round)
	}
	if res.Round.BotAnswer == "" || s.RoundsPlayed() != 1 {
		t.Fatalf("round not completed after timeout: %+v", res.Round)
	}
	prompts := h.m.sentTo(h.p.ReplyChatID)
	if prompts[len(prompts)-1].Title != "Timeout" {
		t.Fatalf("timeout notice missing: %+v", prompts)
	}
}

func TestSubmitQuestion_AIAlwaysFails(t *testing.T) {
	h := newHarness(t, true, time.Second)
	h.ai.err = errors.New("provider down")
	s := h.start(t)
	h.m.replies <- reply(h.p.ReplyChatID, "Blue")

	res, err := h.ask("Favorite color?")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Round.AIFallback || res.Round.BotAnswer != AIFallbackAnswer || res.Round.HumanAnswer != "Blue" {
		t.Fatalf("unexpected round: %+v", res.Round)
	}
	if s.RoundsPlayed() != 1 {
		t.Fatalf("round not recorded")
	}
}

func TestSubmitQuestion_HumanWaitPrecedesAI(t *testing.T) {
	h := newHarness(t, true, time.Second)
	h.start(t)
	h.m.replies <- reply(h.p.ReplyChatID, "Blue")
	var ordered bool
	h.ai.onGenerate = func() {
		waiting, _, waits := h.m.waitStats()
		ordered = waiting == 0 && waits == 1
	}
	if _, err := h.ask("Favorite color?"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !ordered {
		t.Fatalf("AI was asked before the human wait finished")
	}
}

func TestSubmitQuestion_ConcurrentQuestionsAreSerialized(t *testing.T) {
	h := newHarness(t, true, time.Second)
	h.m.awaitDelay = 10 * time.Millisecond
	s := h.start(t)
	h.m.replies <- reply(h.p.ReplyChatID, "first")
	h.m.replies <- reply(h.p.ReplyChatID, "second")

	var wg sync.WaitGroup
	numbers := make([]int, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.ask(fmt.Sprintf("question %d", i))
			numbers[i], errs[i] = res.Number, err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	sort.Ints(numbers)
	if numbers[0] != 1 || numbers[1] != 2 {
		t.Fatalf("round numbers collided: %v", numbers)
	}
	if s.RoundsPlayed() != 2 {
		t.Fatalf("want 2 rounds, got %d", s.RoundsPlayed())
	}
	if _, maxWaiting, _ := h.m.waitStats(); maxWaiting != 1 {
		t.Fatalf("two rounds were in flight at once")
	}
}

func TestSubmitQuestion_DeliveryFailure(t *testing.T) {
	h := newHarness(t, true, time.Second)
	s := h.start(t)
	h.m.mu.Lock()
	h.m.sendErr = errors.New("chat unreachable")
	h.m.mu.Unlock()

	if _, err := h.ask("Favorite color?"); !errors.Is(err, ErrMessagingDelivery) {
		t.Fatalf("expected ErrMessagingDelivery, got %v", err)
	}
	if s.RoundsPlayed() != 0 {
		t.Fatalf("round recorded despite delivery failure")
	}
	// The guard must have been released.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx); err != nil {
		t.Fatalf("guard leaked after failure: %v", err)
	}
	s.Release()
}

func TestSubmitGuess(t *testing.T) {
	h := newHarness(t, true, time.Second)
	ctx := context.Background()
	s := h.start(t)
	_, _ = s.RecordRound(Round{Question: "q", HumanAnswer: "h", BotAnswer: "b"})

	if _, err := h.o.SubmitGuess(ctx, h.p.CommunityID, h.p.GameChatID, 999, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, ok := h.o.Registry().Current(h.p.CommunityID); !ok || s.RoundsPlayed() != 1 {
		t.Fatalf("unauthorized guess changed state")
	}
	if _, err := h.o.SubmitGuess(ctx, h.p.CommunityID, h.p.GameChatID, h.p.InterrogatorID, 3); !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("expected ErrInvalidChoice, got %v", err)
	}
	if _, err := h.o.SubmitGuess(ctx, h.p.CommunityID, h.p.ReplyChatID, h.p.InterrogatorID, 1); !errors.Is(err, ErrWrongChannel) {
		t.Fatalf("expected ErrWrongChannel, got %v", err)
	}

	correct, err := h.o.SubmitGuess(ctx, h.p.CommunityID, h.p.GameChatID, h.p.InterrogatorID, 2)
	if err != nil || correct {
		t.Fatalf("wrong guess: correct=%t err=%v", correct, err)
	}
	if _, ok := h.o.Registry().Current(h.p.CommunityID); !ok {
		t.Fatalf("wrong guess ended the game")
	}

	correct, err = h.o.SubmitGuess(ctx, h.p.CommunityID, h.p.GameChatID, h.p.InterrogatorID, s.AISlot())
	if err != nil || !correct {
		t.Fatalf("correct guess: correct=%t err=%v", correct, err)
	}
	if _, ok := h.o.Registry().Current(h.p.CommunityID); ok {
		t.Fatalf("correct guess did not clear the session")
	}
	if _, err := h.o.StartGame(ctx, h.p); err != nil {
		t.Fatalf("start after solved game: %v", err)
	}

	events, _ := h.rec.LoadEvents(ctx)
	guesses := 0
	for _, ev := range events {
		if ev.Kind == storage.EventGuess {
			guesses++
		}
	}
	if guesses != 2 {
		t.Fatalf("want 2 recorded guesses, got %d", guesses)
	}
}

func TestStopGame(t *testing.T) {
	h := newHarness(t, true, time.Second)
	ctx := context.Background()
	if _, err := h.o.StopGame(ctx, h.p.CommunityID, h.p.GameChatID, 1); !errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("expected ErrNoActiveGame, got %v", err)
	}
	s := h.start(t)
	if _, err := h.o.StopGame(ctx, h.p.CommunityID, h.p.ReplyChatID, 1); !errors.Is(err, ErrWrongChannel) {
		t.Fatalf("expected ErrWrongChannel, got %v", err)
	}
	stopped, err := h.o.StopGame(ctx, h.p.CommunityID, h.p.GameChatID, 1)
	if err != nil || stopped != s {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := h.o.Registry().Current(h.p.CommunityID); ok {
		t.Fatalf("session still active")
	}
}

func TestStopGameDuringRoundOrphansTheRound(t *testing.T) {
	h := newHarness(t, true, time.Second)
	s := h.start(t)

	done := make(chan RoundResult, 1)
	go func() {
		res, _ := h.ask("Still there?")
		done <- res
	}()
	for {
		if waiting, _, _ := h.m.waitStats(); waiting == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := h.o.StopGame(context.Background(), h.p.CommunityID, h.p.GameChatID, 1); err != nil {
		t.Fatalf("stop while round in flight: %v", err)
	}
	h.m.replies <- reply(h.p.ReplyChatID, "late answer")

	select {
	case res := <-done:
		if res.Number != 1 || s.RoundsPlayed() != 1 {
			t.Fatalf("in-flight round did not complete: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("in-flight round never finished")
	}
	if _, ok := h.o.Registry().Current(h.p.CommunityID); ok {
		t.Fatalf("stopped session came back")
	}
}

func TestStopGameRejectsQueuedQuestion(t *testing.T) {
	h := newHarness(t, true, time.Second)
	s := h.start(t)

	first := make(chan error, 1)
	go func() {
		_, err := h.ask("First?")
		first <- err
	}()
	for {
		if waiting, _, _ := h.m.waitStats(); waiting == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	second := make(chan error, 1)
	go func() {
		_, err := h.ask("Second?")
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if _, err := h.o.StopGame(context.Background(), h.p.CommunityID, h.p.GameChatID, 1); err != nil {
		t.Fatalf("stop: %v", err)
	}
	h.m.replies <- reply(h.p.ReplyChatID, "answer for the first round")

	if err := <-first; err != nil {
		t.Fatalf("in-flight round failed: %v", err)
	}
	select {
	case err := <-second:
		if !errors.Is(err, ErrNoActiveGame) {
			t.Fatalf("queued question: expected ErrNoActiveGame, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queued question never returned")
	}
	if s.RoundsPlayed() != 1 {
		t.Fatalf("stopped session gained rounds: %d", s.RoundsPlayed())
	}
	if _, _, waits := h.m.waitStats(); waits != 1 {
		t.Fatalf("queued question waited for a reply on a stopped game (waits=%d)", waits)
	}
	for _, a := range h.m.sentTo(h.p.ReplyChatID) {
		if a.Title == "Round 2" {
			t.Fatalf("round prompt posted for a stopped game")
		}
	}
}

func TestSubmitQuestion_CancelledContextRecordsNothing(t *testing.T) {
	h := newHarness(t, true, 5*time.Second)
	s := h.start(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := h.o.SubmitQuestion(ctx, h.p.CommunityID, h.p.GameChatID, h.p.InterrogatorID, "Anyone?")
		done <- err
	}()
	for {
		if waiting, _, _ := h.m.waitStats(); waiting == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled round never returned")
	}
	if s.RoundsPlayed() != 0 {
		t.Fatalf("cancelled round was recorded")
	}
	if h.ai.callCount() != 0 {
		t.Fatalf("AI asked after cancellation")
	}
	for _, a := range h.m.sentTo(h.p.ReplyChatID) {
		if a.Title == "Timeout" {
			t.Fatalf("cancellation announced as a timeout")
		}
	}
	for _, a := range h.m.sentTo(h.p.GameChatID) {
		if strings.HasSuffix(a.Title, "Answers") {
			t.Fatalf("results posted for a cancelled round")
		}
	}
	for _, k := range h.rec.kinds() {
		if k == storage.EventRoundCompleted {
			t.Fatalf("cancelled round written to the event log")
		}
	}
	if s.InFlight() {
		t.Fatalf("round guard not released")
	}
}

func TestSubmitQuestion_ActivityUsesOrchestratorClock(t *testing.T) {
	h := newHarness(t, true, time.Second)
	s := h.start(t)

	begin := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	end := begin.Add(3 * time.Minute)
	clock := begin
	h.o.now = func() time.Time { return clock }
	h.ai.onGenerate = func() { clock = end }

	h.m.replies <- reply(h.p.ReplyChatID, "Blue")
	if _, err := h.ask("Favorite color?"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got := s.LastActivity(); !got.Equal(end) {
		t.Fatalf("last activity %v, want round end %v", got, end)
	}
}

func TestExpireIdle(t *testing.T) {
	h := newHarness(t, true, time.Second)
	h.start(t)
	h.o.now = func() time.Time { return time.Now().Add(time.Hour) }

	ended := h.o.ExpireIdle(context.Background(), 30*time.Minute)
	if len(ended) != 1 {
		t.Fatalf("want 1 expired session, got %d", len(ended))
	}
	game := h.m.sentTo(h.p.GameChatID)
	if game[len(game)-1].Title != "Game expired" {
		t.Fatalf("expiry not announced: %+v", game)
	}
	kinds := h.rec.kinds()
	if kinds[len(kinds)-1] != storage.EventGameExpired {
		t.Fatalf("expiry not recorded: %v", kinds)
	}
}
