package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/willowlabs/jane/internal/classify"
	"github.com/willowlabs/jane/internal/events"
	"github.com/willowlabs/jane/internal/policy"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientFrame is one inbound WebSocket message.
type clientFrame struct {
	Type     string `json:"type"` // "message" or "audio"
	Text     string `json:"text,omitempty"`
	AudioB64 string `json:"audio_b64,omitempty"`
}

// agentFrame is one outbound WebSocket message.
type agentFrame struct {
	Type       string                 `json:"type"` // "agent_response" or "error"
	Text       string                 `json:"text,omitempty"`
	Kind       string                 `json:"kind,omitempty"`
	Stage      string                 `json:"stage,omitempty"`
	Completion int                    `json:"completion"`
	Missing    []string               `json:"missing_info,omitempty"`
	Media      *classify.MediaTrigger `json:"media,omitempty"`
	Transcript string                 `json:"transcript,omitempty"`
	Audio      []byte                 `json:"audio_b64,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func agentResponse(d policy.Decision) agentFrame {
	return agentFrame{
		Type:       "agent_response",
		Text:       d.Text,
		Kind:       string(d.Kind),
		Stage:      string(d.Stage),
		Completion: d.Facts.Completion(),
		Missing:    d.Facts.Missing(),
		Media:      d.Media,
	}
}

// handleWebSocket runs a full conversation over one connection: greeting on
// connect, one agent_response per client frame, flush and close on
// disconnect. Turns are strictly sequential per the session contract, so the
// loop is synchronous.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	restore := r.URL.Query().Get("restore") == "true"
	ctx := r.Context()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	_, getErr := s.sessions.Get(ctx, sessionID)
	wasActive := getErr == nil

	if restore && s.db != nil && !wasActive {
		if stored, err := s.db.LoadSession(ctx, sessionID); err == nil {
			if err := s.sessions.Put(ctx, stored); err != nil {
				s.logger.Warn("hydrate session failed", "session_id", sessionID, "error", err)
			}
		}
	}

	start := time.Now()
	d, err := s.engine.StartSession(ctx, sessionID, restore)
	if err != nil {
		conn.WriteJSON(agentFrame{Type: "error", Error: "start session failed"})
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsStarted.Inc()
		if !wasActive {
			s.metrics.SessionsActive.Inc()
		}
	}
	s.applyDecision(ctx, sessionID, "", d, time.Since(start))
	if err := conn.WriteJSON(agentResponse(d)); err != nil {
		return
	}

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}

		var (
			utterance  string
			transcript string
		)
		switch frame.Type {
		case "message":
			utterance = frame.Text
		case "audio":
			if s.speech == nil {
				conn.WriteJSON(agentFrame{Type: "error", Error: "audio is not configured"})
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(frame.AudioB64)
			if err != nil {
				conn.WriteJSON(agentFrame{Type: "error", Error: "invalid audio_b64"})
				continue
			}
			transcript, err = s.speech.Transcribe(ctx, audio, "turn.wav")
			if err != nil {
				s.logger.Error("transcription failed", "session_id", sessionID, "error", err)
				if s.metrics != nil {
					s.metrics.RecordAudioTurn(false)
				}
				conn.WriteJSON(agentFrame{Type: "error", Error: "transcription failed"})
				continue
			}
			utterance = transcript
		default:
			conn.WriteJSON(agentFrame{Type: "error", Error: "unknown frame type"})
			continue
		}

		if utterance == "" {
			conn.WriteJSON(agentFrame{Type: "error", Error: "empty message"})
			continue
		}

		turnStart := time.Now()
		d, err := s.engine.HandleTurn(ctx, sessionID, utterance)
		if err != nil {
			conn.WriteJSON(agentFrame{Type: "error", Error: "turn failed"})
			continue
		}
		s.applyDecision(ctx, sessionID, utterance, d, time.Since(turnStart))

		resp := agentResponse(d)
		resp.Transcript = transcript
		if frame.Type == "audio" {
			if speech, err := s.speech.Synthesize(ctx, d.Text); err != nil {
				s.logger.Warn("speech synthesis failed", "session_id", sessionID, "error", err)
			} else {
				resp.Audio = speech
			}
			if s.metrics != nil {
				s.metrics.RecordAudioTurn(true)
			}
		}

		if err := conn.WriteJSON(resp); err != nil {
			break
		}
	}

	// Disconnect: flush the final state, then evict.
	if s.db != nil {
		if sess, err := s.sessions.Get(ctx, sessionID); err == nil {
			if err := s.db.UpsertSession(ctx, sess); err != nil {
				s.logger.Warn("persist session failed", "session_id", sessionID, "error", err)
			}
		}
	}
	if evts, err := s.engine.Close(ctx, sessionID); err == nil {
		if failed := events.Apply(s.publisher, evts, s.logger); failed > 0 && s.metrics != nil {
			s.metrics.EventPublishErrors.Add(float64(failed))
		}
		if s.metrics != nil {
			s.metrics.SessionsClosed.Inc()
			s.metrics.SessionsActive.Dec()
		}
	}
}
