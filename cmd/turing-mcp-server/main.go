package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"turing-game/internal/analytics"
	"turing-game/internal/storage"
)

type DailyStatsParams struct {
	Date string `json:"date,omitempty" mcp:"day to analyze in YYYY-MM-DD format (default: today, UTC)"`
}

type TranscriptParams struct {
	GameID string `json:"game_id" mcp:"ID of the game, as shown by the status API"`
}

// TuringMCPServer exposes the game event log to MCP clients.
type TuringMCPServer struct {
	events storage.Recorder
	now    func() time.Time
}

func NewTuringMCPServer(events storage.Recorder) *TuringMCPServer {
	return &TuringMCPServer{events: events, now: time.Now}
}

func (s *TuringMCPServer) DailyStats(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[DailyStatsParams]) (*mcp.CallToolResultFor[any], error) {
	day := s.now().UTC()
	if d := params.Arguments.Date; d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			return errorResult(fmt.Sprintf("❌ Invalid date %q, expected YYYY-MM-DD", d)), nil
		}
		day = parsed
	}

	events, err := s.events.LoadEvents(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("❌ Failed to load game log: %v", err)), nil
	}
	stats := analytics.AnalyzeDailyGames(events, day)
	details, err := stats.ToJSON()
	if err != nil {
		return errorResult(fmt.Sprintf("❌ Failed to encode stats: %v", err)), nil
	}

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: stats.GenerateReportSummary()},
			&mcp.TextContent{Text: details},
		},
	}, nil
}

func (s *TuringMCPServer) GameTranscript(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[TranscriptParams]) (*mcp.CallToolResultFor[any], error) {
	id := params.Arguments.GameID
	if id == "" {
		return errorResult("❌ game_id is required"), nil
	}
	events, err := s.events.LoadEvents(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("❌ Failed to load game log: %v", err)), nil
	}
	text, ok := analytics.Transcript(events, id)
	if !ok {
		return errorResult(fmt.Sprintf("❌ Game %s not found", id)), nil
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil
}

func errorResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	ctx := context.Background()
	var rec storage.Recorder
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := storage.OpenPostgres(ctx, dsn)
		if err != nil {
			log.Fatalf("❌ Failed to connect to postgres: %v", err)
		}
		defer db.Close()
		rec = db
	} else {
		path := os.Getenv("LOG_FILE_PATH")
		if path == "" {
			path = "logs/games.jsonl"
		}
		fr, err := storage.NewFileRecorder(path)
		if err != nil {
			log.Fatalf("❌ Failed to open game log %s: %v", path, err)
		}
		rec = fr
	}

	log.Printf("🚀 Starting Turing Game MCP Server")

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "turing-game-mcp",
		Version: "1.0.0",
	}, nil)

	turingServer := NewTuringMCPServer(rec)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "daily_stats",
		Description: "Returns Turing game statistics for one day: games, rounds, guesses and detection rate",
	}, turingServer.DailyStats)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "game_transcript",
		Description: "Returns the transcript of one game; seats are revealed only once the game is over",
	}, turingServer.GameTranscript)

	log.Printf("📋 Registered tools: daily_stats, game_transcript")

	transport := mcp.NewStdioTransport()
	if err := server.Run(ctx, transport); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
