package analytics

import (
	"fmt"
	"strings"

	"turing-game/internal/storage"
)

// Transcript renders every event of one game in log order. Until the game is
// over (solved, stopped or expired) answers are shown under their seat labels
// only, so the transcript never gives away which player is the AI.
// ok is false when the log has no events for gameID.
func Transcript(events []storage.Event, gameID string) (text string, ok bool) {
	var (
		game     []storage.Event
		p1IsAI   *bool
		finished bool
	)
	for _, ev := range events {
		if ev.GameID != gameID {
			continue
		}
		game = append(game, ev)
		switch ev.Kind {
		case storage.EventGameStarted:
			p1IsAI = ev.Player1IsAI
		case storage.EventGuess:
			finished = finished || (ev.Correct != nil && *ev.Correct)
		case storage.EventGameStopped, storage.EventGameExpired:
			finished = true
		}
	}
	if len(game) == 0 {
		return "", false
	}
	reveal := finished && p1IsAI != nil

	var b strings.Builder
	for _, ev := range game {
		ts := ev.Timestamp.UTC().Format("2006-01-02 15:04:05")
		switch ev.Kind {
		case storage.EventGameStarted:
			fmt.Fprintf(&b, "[%s] Game %s started by %s\n", ts, gameID, userLabel(ev))
		case storage.EventRoundCompleted:
			fmt.Fprintf(&b, "\n[%s] Round %d\nQ: %s\n", ts, ev.Round, ev.Question)
			switch {
			case reveal:
				fmt.Fprintf(&b, "Human: %s\nAI: %s\n", ev.HumanAnswer, ev.BotAnswer)
			case p1IsAI != nil && *p1IsAI:
				fmt.Fprintf(&b, "Player 1: %s\nPlayer 2: %s\n", ev.BotAnswer, ev.HumanAnswer)
			default:
				fmt.Fprintf(&b, "Player 1: %s\nPlayer 2: %s\n", ev.HumanAnswer, ev.BotAnswer)
			}
		case storage.EventGuess:
			verdict := "incorrect"
			if ev.Correct != nil && *ev.Correct {
				verdict = "correct"
			}
			fmt.Fprintf(&b, "\n[%s] Guess: player %d (%s)\n", ts, ev.Choice, verdict)
		case storage.EventGameStopped:
			fmt.Fprintf(&b, "\n[%s] Game stopped by %s after %d round(s)\n", ts, userLabel(ev), ev.Round)
		case storage.EventGameExpired:
			fmt.Fprintf(&b, "\n[%s] Game expired after %d round(s)\n", ts, ev.Round)
		}
	}
	if reveal {
		slot := 2
		if *p1IsAI {
			slot = 1
		}
		fmt.Fprintf(&b, "\nThe AI was player %d.\n", slot)
	}
	return b.String(), true
}

func userLabel(ev storage.Event) string {
	if ev.UserName != "" {
		return ev.UserName
	}
	return fmt.Sprintf("%d", ev.UserID)
}
