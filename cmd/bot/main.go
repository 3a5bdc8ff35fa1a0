package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"turing-game/internal/analytics"
	"turing-game/internal/auth"
	"turing-game/internal/config"
	"turing-game/internal/game"
	"turing-game/internal/httpapi"
	"turing-game/internal/llm"
	"turing-game/internal/scheduler"
	"turing-game/internal/storage"
	"turing-game/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var allowRepo auth.Repository
	if cfg.AllowlistFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			log.Printf("failed to init allowlist repo: %v", err)
		} else {
			allowRepo = repo
		}
	}
	authSvc, err := auth.NewWithRepo(allowRepo, cfg.AllowedUsers)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	llmClient, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider), cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	rec, closeRec := openRecorder(ctx, cfg)
	defer closeRec()

	bot, err := telegram.New(cfg.TelegramBotToken, authSvc, telegram.Options{
		GameChatID:    cfg.GameChatID,
		ReplyChatID:   cfg.ReplyChatID,
		AdminUserID:   cfg.AdminUserID,
		ParseMode:     cfg.MessageParseMode,
		RestrictHosts: cfg.RestrictHosts,
	})
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	registry := game.NewRegistry()
	collector := game.NewCollector(bot, llmClient, game.CollectorOptions{
		SystemPrompt: readSystemPrompt(cfg.SystemPromptPath),
		HumanTimeout: cfg.HumanReplyTimeout,
		AITimeout:    cfg.AIRequestTimeout,
	})
	orchestrator := game.NewOrchestrator(registry, collector, bot, rec)

	sched := scheduler.New()
	if cfg.GameIdleTimeout > 0 {
		if err := sched.AddJob(cfg.SweepSchedule, "idle-sweep", func(ctx context.Context) error {
			orchestrator.ExpireIdle(ctx, cfg.GameIdleTimeout)
			return nil
		}); err != nil {
			log.Fatalf("failed to schedule idle sweep: %v", err)
		}
	}
	if cfg.AdminUserID != 0 && rec != nil {
		if err := sched.AddJob(cfg.ReportSchedule, "daily-report", func(ctx context.Context) error {
			events, err := rec.LoadEvents(ctx)
			if err != nil {
				return err
			}
			stats := analytics.AnalyzeDailyGames(events, time.Now().UTC())
			return bot.SendText(ctx, cfg.AdminUserID, stats.GenerateReportSummary())
		}); err != nil {
			log.Fatalf("failed to schedule daily report: %v", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      httpapi.Router(registry, rec),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			log.Printf("status API listening on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("status API stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Printf("Turing game bot running (game chat %d, reply chat %d)", cfg.GameChatID, cfg.ReplyChatID)
	bot.Start(ctx, orchestrator)
	log.Println("bot stopped")
}

// openRecorder prefers Postgres when DATABASE_URL is set and falls back to the
// JSONL file. A nil recorder disables the event log.
func openRecorder(ctx context.Context, cfg *config.Config) (storage.Recorder, func()) {
	if cfg.DatabaseURL != "" {
		db, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("failed to connect to postgres, using file log: %v", err)
		} else if err := db.Migrate(ctx); err != nil {
			log.Printf("failed to migrate postgres, using file log: %v", err)
			db.Close()
		} else {
			log.Println("event log: postgres")
			return db, db.Close
		}
	}
	if cfg.LogFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			log.Printf("failed to init file recorder: %v", err)
		} else {
			log.Printf("event log: %s", cfg.LogFilePath)
			return fr, func() {}
		}
	}
	return nil, func() {}
}

func readSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return string(data)
}
