//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/willowlabs/jane/internal/lead"
	"github.com/willowlabs/jane/internal/session"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	if err := s.SeedDefaults(ctx); err != nil {
		t.Fatalf("failed to seed defaults: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_SessionRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	sessionID := "integration-test-" + uuid.New().String()[:8]

	sess := session.New(sessionID)
	sess.Stage = session.StageQualifying
	sess.Facts = lead.Facts{CompanyName: "Acme", Domain: "saas"}
	sess.AgentAskedDemo = true

	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("upsert session: %v", err)
	}
	if err := s.AddMessage(ctx, sessionID, session.SpeakerUser, "we're a saas company"); err != nil {
		t.Fatalf("add message: %v", err)
	}
	if err := s.AddMessage(ctx, sessionID, session.SpeakerAgent, "great, tell me more"); err != nil {
		t.Fatalf("add message: %v", err)
	}

	loaded, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if loaded.Stage != session.StageQualifying {
		t.Errorf("stage = %q", loaded.Stage)
	}
	if loaded.Facts.CompanyName != "Acme" || loaded.Facts.Domain != "saas" {
		t.Errorf("facts = %+v", loaded.Facts)
	}
	if !loaded.AgentAskedDemo {
		t.Error("agent_asked_demo not persisted")
	}
	if loaded.Booking.Stage != session.BookingNone {
		t.Errorf("booking stage = %q", loaded.Booking.Stage)
	}
	if len(loaded.History) != 2 {
		t.Fatalf("history = %d messages", len(loaded.History))
	}
	if loaded.History[0].Speaker != session.SpeakerUser {
		t.Errorf("history[0].speaker = %q", loaded.History[0].Speaker)
	}

	// Update path.
	sess.Stage = session.StageDemoShown
	sess.Facts.DemoShown = true
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("upsert session again: %v", err)
	}
	loaded, err = s.LoadSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if loaded.Stage != session.StageDemoShown || !loaded.Facts.DemoShown {
		t.Errorf("update not applied: stage=%q facts=%+v", loaded.Stage, loaded.Facts)
	}

	if err := s.DeleteSession(ctx, sessionID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.LoadSession(ctx, sessionID); err != session.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestIntegration_KnowledgeLookups(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entries, err := s.SearchKnowledge(ctx, "how does pricing work", 3)
	if err != nil {
		t.Fatalf("search knowledge: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no knowledge entries for pricing query")
	}

	questions, err := s.QualificationQuestions(ctx, "vp_sales", "pain_points")
	if err != nil {
		t.Fatalf("qualification questions: %v", err)
	}
	if len(questions) == 0 {
		t.Fatal("no qualification questions for vp_sales/pain_points")
	}

	response, err := s.ObjectionResponse(ctx, "already_have_chatbot")
	if err != nil {
		t.Fatalf("objection response: %v", err)
	}
	if response == "" {
		t.Error("empty objection response for seeded category")
	}

	response, err = s.ObjectionResponse(ctx, "no_such_category")
	if err != nil {
		t.Fatalf("objection response (missing): %v", err)
	}
	if response != "" {
		t.Errorf("expected empty response for unknown category, got %q", response)
	}
}
