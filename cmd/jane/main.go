package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/willowlabs/jane/internal/api"
	"github.com/willowlabs/jane/internal/booking"
	"github.com/willowlabs/jane/internal/calcom"
	"github.com/willowlabs/jane/internal/config"
	"github.com/willowlabs/jane/internal/events"
	"github.com/willowlabs/jane/internal/groq"
	"github.com/willowlabs/jane/internal/metrics"
	"github.com/willowlabs/jane/internal/policy"
	"github.com/willowlabs/jane/internal/session"
	"github.com/willowlabs/jane/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("jane starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Init(ctx); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if err := db.SeedDefaults(ctx); err != nil {
		slog.Error("failed to seed content tables", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready")

	// Groq client
	if cfg.GroqAPIKey == "" {
		slog.Error("GROQ_API_KEY is required")
		os.Exit(1)
	}
	llm := groq.NewClient(cfg.GroqAPIKey, groq.Models{
		Chat:    cfg.GroqModel,
		Whisper: cfg.WhisperModel,
		TTS:     cfg.TTSModel,
		Voice:   cfg.TTSVoice,
	})
	responder := groq.NewResponder(llm, slog.Default())
	slog.Info("groq client ready", "model", cfg.GroqModel)

	// Calendar provider (optional — bookings fall back to the direct link path)
	var calendar booking.Calendar
	if cfg.CalComAPIKey != "" && cfg.CalComEventTypeID != 0 {
		calendar = calcom.NewClient(cfg.CalComAPIKey, cfg.CalComEventTypeID)
		slog.Info("cal.com client ready", "event_type_id", cfg.CalComEventTypeID)
	} else {
		calendar = unavailableCalendar{}
		slog.Warn("cal.com not configured — guided booking will hand out the scheduling link")
	}
	flow := booking.NewFlow(calendar, cfg.SchedulingLink, slog.Default())

	// NATS events (optional — the assistant works without a broker)
	var publisher events.Publisher
	if cfg.NatsURL != "" {
		eventsClient, err := events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Warn("failed to connect to NATS — events disabled", "error", err)
		} else {
			defer eventsClient.Close()
			publisher = eventsClient
			slog.Info("NATS connected", "url", cfg.NatsURL)
		}
	}

	// Policy engine over the in-memory session store
	sessions := session.NewMemoryStore()
	engine := policy.NewEngine(sessions, db, responder, flow, slog.Default())

	// Metrics
	m := metrics.NewMetrics()

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, engine, sessions, api.Options{
		DB:        db,
		Publisher: publisher,
		Speech:    llm,
		Metrics:   m,
	}, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("jane ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("jane stopped")
}

// unavailableCalendar makes every commit fail, which the booking flow turns
// into the scheduling-link fallback.
type unavailableCalendar struct{}

func (unavailableCalendar) ListAvailability(ctx context.Context, date string) ([]booking.Slot, error) {
	return nil, errors.New("calendar provider not configured")
}

func (unavailableCalendar) Book(ctx context.Context, req booking.Request) (booking.Confirmation, error) {
	return booking.Confirmation{}, errors.New("calendar provider not configured")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
