package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"turing-game/internal/analytics"
	"turing-game/internal/game"
	"turing-game/internal/storage"
)

// Router serves read-only game state: active sessions from the registry and
// statistics or transcripts from the event log.
func Router(reg *game.Registry, rec storage.Recorder) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Get("/api/games", func(w http.ResponseWriter, r *http.Request) {
		sessions := reg.All()
		out := make([]game.Info, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, s.Info())
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		day := time.Now().UTC()
		if q := r.URL.Query().Get("date"); q != "" {
			parsed, err := time.Parse("2006-01-02", q)
			if err != nil {
				writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
				return
			}
			day = parsed
		}
		events, ok := loadEvents(w, r, rec)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, analytics.AnalyzeDailyGames(events, day))
	})

	r.Get("/api/games/{id}/transcript", func(w http.ResponseWriter, r *http.Request) {
		events, ok := loadEvents(w, r, rec)
		if !ok {
			return
		}
		text, found := analytics.Transcript(events, chi.URLParam(r, "id"))
		if !found {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(text))
	})

	return r
}

func loadEvents(w http.ResponseWriter, r *http.Request, rec storage.Recorder) ([]storage.Event, bool) {
	if rec == nil {
		writeError(w, http.StatusServiceUnavailable, "event log disabled")
		return nil, false
	}
	events, err := rec.LoadEvents(r.Context())
	if err != nil {
		log.Printf("http: load events: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return nil, false
	}
	return events, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
