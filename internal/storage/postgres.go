package storage

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema embed.FS

// PostgresRecorder stores events in the game_events table.
type PostgresRecorder struct{ *pgxpool.Pool }

func OpenPostgres(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRecorder{p}, nil
}

func (db *PostgresRecorder) Close() { db.Pool.Close() }

func (db *PostgresRecorder) Migrate(ctx context.Context) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

func (db *PostgresRecorder) AppendEvent(ctx context.Context, ev Event) error {
	_, err := db.Exec(ctx, `
		INSERT INTO game_events(ts, kind, game_id, community_id, user_id, user_name, round,
		                        question, human_answer, bot_answer, human_timed_out, ai_fallback,
		                        player1_is_ai, choice, correct)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, ev.Timestamp, string(ev.Kind), ev.GameID, ev.CommunityID, ev.UserID, ev.UserName, ev.Round,
		ev.Question, ev.HumanAnswer, ev.BotAnswer, ev.HumanTimedOut, ev.AIFallback,
		ev.Player1IsAI, ev.Choice, ev.Correct)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (db *PostgresRecorder) LoadEvents(ctx context.Context) ([]Event, error) {
	rows, err := db.Query(ctx, `
		SELECT ts, kind, game_id, community_id, user_id, user_name, round,
		       question, human_answer, bot_answer, human_timed_out, ai_fallback,
		       player1_is_ai, choice, correct
		  FROM game_events
		 ORDER BY ts, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var kind string
		if err := rows.Scan(&ev.Timestamp, &kind, &ev.GameID, &ev.CommunityID, &ev.UserID, &ev.UserName, &ev.Round,
			&ev.Question, &ev.HumanAnswer, &ev.BotAnswer, &ev.HumanTimedOut, &ev.AIFallback,
			&ev.Player1IsAI, &ev.Choice, &ev.Correct); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = EventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}
