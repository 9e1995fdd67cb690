package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/willowlabs/jane/internal/lead"
	"github.com/willowlabs/jane/internal/session"
)

// UpsertSession writes the session row. Chat history is appended separately
// per message via AddMessage.
func (s *Store) UpsertSession(ctx context.Context, sess *session.Context) error {
	facts, err := json.Marshal(sess.Facts)
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}
	bookingState, err := json.Marshal(sess.Booking)
	if err != nil {
		return fmt.Errorf("marshal booking state: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, stage, facts, agent_asked_demo, booking_mode, booking_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (session_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			facts = EXCLUDED.facts,
			agent_asked_demo = EXCLUDED.agent_asked_demo,
			booking_mode = EXCLUDED.booking_mode,
			booking_state = EXCLUDED.booking_state,
			updated_at = now()`,
		sess.ID, string(sess.Stage), facts, sess.AgentAskedDemo, sess.BookingMode, bookingState, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// LoadSession rebuilds a session context, including its chat history, from
// the database. Returns session.ErrNotFound for unknown ids.
func (s *Store) LoadSession(ctx context.Context, id string) (*session.Context, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, stage, facts, agent_asked_demo, booking_mode, booking_state, created_at, updated_at
		FROM sessions WHERE session_id = $1`, id)

	var (
		sess         session.Context
		stage        string
		facts        []byte
		bookingState []byte
	)
	err := row.Scan(&sess.ID, &stage, &facts, &sess.AgentAskedDemo, &sess.BookingMode, &bookingState, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess.Stage = session.Stage(stage)
	if err := json.Unmarshal(facts, &sess.Facts); err != nil {
		return nil, fmt.Errorf("unmarshal facts: %w", err)
	}
	if err := json.Unmarshal(bookingState, &sess.Booking); err != nil {
		return nil, fmt.Errorf("unmarshal booking state: %w", err)
	}
	if sess.Booking.Stage == "" {
		sess.Booking.Stage = session.BookingNone
	}

	history, err := s.ChatHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.History = history

	return &sess, nil
}

// AddMessage appends one message to the persistent chat history.
func (s *Store) AddMessage(ctx context.Context, sessionID, speaker, message string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_history (session_id, speaker, message)
		VALUES ($1, $2, $3)`,
		sessionID, speaker, message,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ChatHistory returns the full ordered message history for a session.
func (s *Store) ChatHistory(ctx context.Context, sessionID string) ([]session.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT speaker, message, created_at
		FROM chat_history WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer rows.Close()

	var history []session.Message
	for rows.Next() {
		var m session.Message
		if err := rows.Scan(&m.Speaker, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// LogMediaInteraction records that a piece of media was shown in a session.
func (s *Store) LogMediaInteraction(ctx context.Context, sessionID, mediaType, topic string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO media_interactions (session_id, media_type, topic)
		VALUES ($1, $2, $3)`,
		sessionID, mediaType, topic,
	)
	if err != nil {
		return fmt.Errorf("insert media interaction: %w", err)
	}
	return nil
}

// SessionRow is the admin read-model of one stored session.
type SessionRow struct {
	SessionID    string     `json:"session_id"`
	Stage        string     `json:"stage"`
	Completion   int        `json:"completion"`
	Facts        lead.Facts `json:"facts"`
	MessageCount int        `json:"message_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ListSessions returns stored sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.session_id, s.stage, s.facts, s.created_at, s.updated_at,
			(SELECT count(*) FROM chat_history h WHERE h.session_id = s.session_id) AS message_count
		FROM sessions s ORDER BY s.updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var (
			r     SessionRow
			facts []byte
		)
		if err := rows.Scan(&r.SessionID, &r.Stage, &facts, &r.CreatedAt, &r.UpdatedAt, &r.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal(facts, &r.Facts); err != nil {
			return nil, fmt.Errorf("unmarshal facts: %w", err)
		}
		r.Completion = r.Facts.Completion()
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteSession removes a session row and, via cascade, its history.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
