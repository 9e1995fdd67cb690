package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/willowlabs/jane/internal/classify"
	"github.com/willowlabs/jane/internal/events"
	"github.com/willowlabs/jane/internal/policy"
	"github.com/willowlabs/jane/internal/session"
)

const maxAudioBytes = 10 << 20 // 10 MiB per audio turn

// TurnRequest is the body of POST /api/v1/sessions/{id}/turn.
type TurnRequest struct {
	Message string `json:"message"`
}

// TurnResponse is the assistant's reply to one turn.
type TurnResponse struct {
	SessionID  string                 `json:"session_id"`
	Text       string                 `json:"text"`
	Kind       string                 `json:"kind"`
	Stage      string                 `json:"stage"`
	Completion int                    `json:"completion"`
	Missing    []string               `json:"missing_info"`
	Media      *classify.MediaTrigger `json:"media,omitempty"`
	Transcript string                 `json:"transcript,omitempty"`
	Audio      []byte                 `json:"audio_b64,omitempty"`
}

func turnResponse(sessionID string, d policy.Decision) TurnResponse {
	return TurnResponse{
		SessionID:  sessionID,
		Text:       d.Text,
		Kind:       string(d.Kind),
		Stage:      string(d.Stage),
		Completion: d.Facts.Completion(),
		Missing:    d.Facts.Missing(),
		Media:      d.Media,
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.New().String()
	if s.metrics != nil {
		s.metrics.SessionsStarted.Inc()
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	restore := r.URL.Query().Get("restore") == "true"

	_, getErr := s.sessions.Get(r.Context(), sessionID)
	wasActive := getErr == nil

	// A restore request hydrates the in-memory session from the database
	// before the engine sees it.
	if restore && s.db != nil && !wasActive {
		stored, err := s.db.LoadSession(r.Context(), sessionID)
		if err == nil {
			if err := s.sessions.Put(r.Context(), stored); err != nil {
				s.logger.Warn("hydrate session failed", "session_id", sessionID, "error", err)
			}
		} else if !errors.Is(err, session.ErrNotFound) {
			s.logger.Warn("load stored session failed", "session_id", sessionID, "error", err)
		}
	}

	start := time.Now()
	d, err := s.engine.StartSession(r.Context(), sessionID, restore)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "start session failed")
		return
	}
	if s.metrics != nil && !wasActive {
		s.metrics.SessionsActive.Inc()
	}
	s.applyDecision(r.Context(), sessionID, "", d, time.Since(start))

	writeJSON(w, http.StatusOK, turnResponse(sessionID, d))
}

func (s *Server) turn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	start := time.Now()
	d, err := s.engine.HandleTurn(r.Context(), sessionID, req.Message)
	if err != nil {
		s.writeTurnError(w, sessionID, err)
		return
	}
	s.applyDecision(r.Context(), sessionID, req.Message, d, time.Since(start))

	writeJSON(w, http.StatusOK, turnResponse(sessionID, d))
}

func (s *Server) audioTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if s.speech == nil {
		writeError(w, http.StatusNotImplemented, "audio is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read audio failed")
		return
	}

	transcript, err := s.speech.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		s.logger.Error("transcription failed", "session_id", sessionID, "error", err)
		if s.metrics != nil {
			s.metrics.RecordAudioTurn(false)
		}
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	start := time.Now()
	d, err := s.engine.HandleTurn(r.Context(), sessionID, transcript)
	if err != nil {
		s.writeTurnError(w, sessionID, err)
		return
	}
	s.applyDecision(r.Context(), sessionID, transcript, d, time.Since(start))

	resp := turnResponse(sessionID, d)
	resp.Transcript = transcript

	// Spoken reply is best effort; the text response stands on its own.
	if speech, err := s.speech.Synthesize(r.Context(), d.Text); err != nil {
		s.logger.Warn("speech synthesis failed", "session_id", sessionID, "error", err)
	} else {
		resp.Audio = speech
	}
	if s.metrics != nil {
		s.metrics.RecordAudioTurn(true)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sum, err := s.engine.Summary(r.Context(), sessionID)
	if err != nil {
		s.writeTurnError(w, sessionID, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// Flush the final state before eviction.
	if s.db != nil {
		if sess, err := s.sessions.Get(r.Context(), sessionID); err == nil {
			if err := s.db.UpsertSession(r.Context(), sess); err != nil {
				s.logger.Warn("persist session failed", "session_id", sessionID, "error", err)
			}
		}
	}

	evts, err := s.engine.Close(r.Context(), sessionID)
	if err != nil {
		s.writeTurnError(w, sessionID, err)
		return
	}
	if failed := events.Apply(s.publisher, evts, s.logger); failed > 0 && s.metrics != nil {
		s.metrics.EventPublishErrors.Add(float64(failed))
	}
	if s.metrics != nil {
		s.metrics.SessionsClosed.Inc()
		s.metrics.SessionsActive.Dec()
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotImplemented, "persistence is not configured")
		return
	}
	rows, err := s.db.ListSessions(r.Context(), 100)
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": rows,
		"count":    len(rows),
	})
}

func (s *Server) writeTurnError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, session.ErrTurnInFlight):
		writeError(w, http.StatusConflict, "a turn is already in progress for this session")
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	default:
		s.logger.Error("turn failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
