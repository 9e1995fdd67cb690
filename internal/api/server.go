// Package api exposes the assistant over HTTP and WebSocket: session
// lifecycle, text and audio turns, summaries, and admin reads.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/willowlabs/jane/internal/events"
	"github.com/willowlabs/jane/internal/groq"
	"github.com/willowlabs/jane/internal/metrics"
	"github.com/willowlabs/jane/internal/policy"
	"github.com/willowlabs/jane/internal/session"
	"github.com/willowlabs/jane/internal/store"
)

// Persistence is the subset of the database used by the transport. It is
// optional: a nil Persistence runs the assistant memory-only.
type Persistence interface {
	UpsertSession(ctx context.Context, sess *session.Context) error
	AddMessage(ctx context.Context, sessionID, speaker, message string) error
	LogMediaInteraction(ctx context.Context, sessionID, mediaType, topic string) error
	LoadSession(ctx context.Context, id string) (*session.Context, error)
	ListSessions(ctx context.Context, limit int) ([]store.SessionRow, error)
}

type Server struct {
	router    *chi.Mux
	port      int
	apiToken  string
	engine    *policy.Engine
	sessions  session.Store
	db        Persistence
	publisher events.Publisher
	speech    *groq.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Options carries the optional collaborators. Any of them may be nil; the
// corresponding feature degrades rather than failing.
type Options struct {
	DB        Persistence
	Publisher events.Publisher
	Speech    *groq.Client
	Metrics   *metrics.Metrics
}

func NewServer(port int, apiToken string, engine *policy.Engine, sessions session.Store, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		apiToken:  apiToken,
		engine:    engine,
		sessions:  sessions,
		db:        opts.DB,
		publisher: opts.Publisher,
		speech:    opts.Speech,
		metrics:   opts.Metrics,
		logger:    logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/jane/status", s.status)

	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Post("/{sessionID}/start", s.startSession)
		r.Post("/{sessionID}/turn", s.turn)
		r.Post("/{sessionID}/audio", s.audioTurn)
		r.Get("/{sessionID}/summary", s.summary)
		r.Delete("/{sessionID}", s.closeSession)

		r.With(BearerAuthMiddleware(apiToken)).Get("/", s.listSessions)
	})

	router.Get("/ws/{sessionID}", s.handleWebSocket)

	if opts.Metrics != nil {
		router.Get("/metrics", opts.Metrics.Handler().ServeHTTP)
	}

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  "jane",
		"status": "ready",
	})
}

// BearerAuthMiddleware rejects requests without the configured bearer token.
// An empty configured token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// applyDecision applies the persistence and event side effects of one turn.
// All effects are best effort: the conversational response never fails
// because a write or a publish did.
func (s *Server) applyDecision(ctx context.Context, sessionID, userMessage string, d policy.Decision, elapsed time.Duration) {
	if s.db != nil {
		if sess, err := s.sessions.Get(ctx, sessionID); err == nil {
			if err := s.db.UpsertSession(ctx, sess); err != nil {
				s.logger.Warn("persist session failed", "session_id", sessionID, "error", err)
			}
		}
		if userMessage != "" {
			if err := s.db.AddMessage(ctx, sessionID, session.SpeakerUser, userMessage); err != nil {
				s.logger.Warn("persist user message failed", "session_id", sessionID, "error", err)
			}
		}
		if err := s.db.AddMessage(ctx, sessionID, session.SpeakerAgent, d.Text); err != nil {
			s.logger.Warn("persist agent message failed", "session_id", sessionID, "error", err)
		}
		if d.Media != nil {
			if err := s.db.LogMediaInteraction(ctx, sessionID, d.Media.Type, d.Media.Topic); err != nil {
				s.logger.Warn("persist media interaction failed", "session_id", sessionID, "error", err)
			}
		}
	}

	failed := events.Apply(s.publisher, d.Events, s.logger)

	if s.metrics != nil {
		s.metrics.RecordTurn(string(d.Kind), elapsed)
		if failed > 0 {
			s.metrics.EventPublishErrors.Add(float64(failed))
		}
		switch d.Kind {
		case policy.KindFallback:
			s.metrics.RecordFallback(true)
		case policy.KindApology:
			s.metrics.RecordFallback(false)
		}
		if d.Media != nil {
			s.metrics.RecordMediaShown(d.Media.Type)
		}
		if d.Facts.MeetingBooked && d.Kind == policy.KindBookingStep {
			for _, evt := range d.Events {
				if evt.Subject == events.SubjectMeetingBooked {
					s.metrics.MeetingsBooked.Inc()
				}
			}
		}
	}
}
