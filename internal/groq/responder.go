package groq

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/willowlabs/jane/internal/classify"
	"github.com/willowlabs/jane/internal/policy"
	"github.com/willowlabs/jane/internal/session"
)

const fallbackMaxTokens = 300

// Responder adapts the chat-completion client to the policy engine. The
// model is instructed to request media via an inline JSON fragment; that
// wire detail stays here, the engine only ever sees structured replies.
type Responder struct {
	client *Client
	logger *slog.Logger
}

func NewResponder(client *Client, logger *slog.Logger) *Responder {
	return &Responder{client: client, logger: logger}
}

func (r *Responder) Respond(ctx context.Context, system string, history []session.Message, userInput string) (policy.Reply, error) {
	messages := make([]Message, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Speaker == session.SpeakerAgent {
			role = "assistant"
		}
		messages = append(messages, Message{Role: role, Content: m.Text})
	}
	messages = append(messages, Message{Role: "user", Content: userInput})

	text, err := r.client.ChatCompletion(ctx, system, messages, fallbackMaxTokens)
	if err != nil {
		return policy.Reply{}, err
	}

	clean, media := extractMediaDirective(text)
	if clean == "" && media == nil {
		r.logger.Warn("empty completion after sentinel stripping")
	}
	return policy.Reply{Text: clean, Media: media}, nil
}

const mediaSentinel = `{"show_media"`

// extractMediaDirective strips every show_media JSON fragment from the text
// and returns the first well-formed one as a trigger. Malformed fragments
// are dropped from the prose and otherwise ignored.
func extractMediaDirective(text string) (string, *classify.MediaTrigger) {
	var media *classify.MediaTrigger

	for {
		start := strings.Index(text, mediaSentinel)
		if start < 0 {
			break
		}
		end := matchingBrace(text, start)
		if end < 0 {
			// Unterminated fragment: everything from the sentinel on is noise.
			text = text[:start]
			break
		}

		var payload struct {
			ShowMedia json.RawMessage `json:"show_media"`
			Topic     string          `json:"topic"`
		}
		if err := json.Unmarshal([]byte(text[start:end]), &payload); err == nil && media == nil {
			media = decodeMediaDirective(payload.ShowMedia, payload.Topic)
		}
		text = text[:start] + text[end:]
	}

	return strings.TrimSpace(text), media
}

// decodeMediaDirective handles both directive shapes models emit: the nested
// {"show_media": {"type": "demo", "topic": "x"}} and the flat
// {"show_media": "demo", "topic": "x"}.
func decodeMediaDirective(raw json.RawMessage, topic string) *classify.MediaTrigger {
	var nested struct {
		Type  string `json:"type"`
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Type != "" {
		return &classify.MediaTrigger{Type: nested.Type, Topic: nested.Topic}
	}

	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil && flat != "" {
		return &classify.MediaTrigger{Type: flat, Topic: topic}
	}
	return nil
}

// matchingBrace returns the index just past the brace that closes the one at
// start, or -1 when the fragment never closes.
func matchingBrace(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
