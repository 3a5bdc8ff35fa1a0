package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"turing-game/internal/storage"
)

// DailyStats aggregates one UTC day of the game log.
type DailyStats struct {
	Date           string                      `json:"date"`
	GamesStarted   int                         `json:"games_started"`
	GamesSolved    int                         `json:"games_solved"`
	GamesStopped   int                         `json:"games_stopped"`
	GamesExpired   int                         `json:"games_expired"`
	Rounds         int                         `json:"rounds"`
	HumanTimeouts  int                         `json:"human_timeouts"`
	AIFallbacks    int                         `json:"ai_fallbacks"`
	Guesses        int                         `json:"guesses"`
	CorrectGuesses int                         `json:"correct_guesses"`
	Interrogators  map[int64]InterrogatorStats `json:"interrogators"`
}

// InterrogatorStats is the per-user part of DailyStats.
type InterrogatorStats struct {
	UserID         int64  `json:"user_id"`
	UserName       string `json:"user_name,omitempty"`
	Games          int    `json:"games"`
	Guesses        int    `json:"guesses"`
	CorrectGuesses int    `json:"correct_guesses"`
}

// DetectionRate is the share of guesses that found the AI, 0 without guesses.
func (ds *DailyStats) DetectionRate() float64 {
	if ds.Guesses == 0 {
		return 0
	}
	return float64(ds.CorrectGuesses) / float64(ds.Guesses)
}

// AnalyzeDailyGames computes statistics for the day containing targetDate.
func AnalyzeDailyGames(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:          startOfDay.Format("2006-01-02"),
		Interrogators: make(map[int64]InterrogatorStats),
	}

	for _, ev := range events {
		if ev.Timestamp.Before(startOfDay) || !ev.Timestamp.Before(endOfDay) {
			continue
		}
		switch ev.Kind {
		case storage.EventGameStarted:
			stats.GamesStarted++
			us := stats.interrogator(ev.UserID)
			if ev.UserName != "" {
				us.UserName = ev.UserName
			}
			us.Games++
			stats.Interrogators[ev.UserID] = us
		case storage.EventRoundCompleted:
			stats.Rounds++
			if ev.HumanTimedOut {
				stats.HumanTimeouts++
			}
			if ev.AIFallback {
				stats.AIFallbacks++
			}
		case storage.EventGuess:
			stats.Guesses++
			us := stats.interrogator(ev.UserID)
			us.Guesses++
			if ev.Correct != nil && *ev.Correct {
				stats.CorrectGuesses++
				stats.GamesSolved++
				us.CorrectGuesses++
			}
			stats.Interrogators[ev.UserID] = us
		case storage.EventGameStopped:
			stats.GamesStopped++
		case storage.EventGameExpired:
			stats.GamesExpired++
		}
	}
	return stats
}

func (ds *DailyStats) interrogator(id int64) InterrogatorStats {
	us, ok := ds.Interrogators[id]
	if !ok {
		us = InterrogatorStats{UserID: id}
	}
	return us
}

// GenerateReportSummary renders the stats as the admin's daily report.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Turing Game report for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Games:\n- started: %d\n- solved: %d\n- stopped: %d\n- expired: %d\n\n",
		ds.GamesStarted, ds.GamesSolved, ds.GamesStopped, ds.GamesExpired)
	fmt.Fprintf(&b, "Rounds: %d (human timeouts: %d, AI fallbacks: %d)\n", ds.Rounds, ds.HumanTimeouts, ds.AIFallbacks)
	fmt.Fprintf(&b, "Guesses: %d, correct: %d (%.0f%%)\n", ds.Guesses, ds.CorrectGuesses, ds.DetectionRate()*100)

	if len(ds.Interrogators) == 0 {
		return b.String()
	}
	ids := make([]int64, 0, len(ds.Interrogators))
	for id := range ds.Interrogators {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Fprintf(&b, "\nInterrogators (%d):\n", len(ids))
	for _, id := range ids {
		us := ds.Interrogators[id]
		name := us.UserName
		if name == "" {
			name = fmt.Sprintf("%d", id)
		}
		fmt.Fprintf(&b, "- %s: %d game(s), %d/%d correct guesses\n", name, us.Games, us.CorrectGuesses, us.Guesses)
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
