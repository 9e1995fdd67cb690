// Package store persists conversation state and serves the canned content
// tables: knowledge base entries, qualification questions, and objection
// responses.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Init creates the schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			stage TEXT NOT NULL DEFAULT 'greeting',
			facts JSONB NOT NULL DEFAULT '{}',
			agent_asked_demo BOOLEAN NOT NULL DEFAULT FALSE,
			booking_mode BOOLEAN NOT NULL DEFAULT FALSE,
			booking_state JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
			speaker TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS chat_history_session_idx ON chat_history (session_id, id)`,
		`CREATE TABLE IF NOT EXISTS media_interactions (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			media_type TEXT NOT NULL,
			topic TEXT NOT NULL,
			shown_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge_base (
			id BIGSERIAL PRIMARY KEY,
			category TEXT NOT NULL,
			keywords TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS qualification_questions (
			id BIGSERIAL PRIMARY KEY,
			persona TEXT NOT NULL DEFAULT 'general',
			category TEXT NOT NULL,
			question TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS objection_responses (
			id BIGSERIAL PRIMARY KEY,
			category TEXT NOT NULL UNIQUE,
			response TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
