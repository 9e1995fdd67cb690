package policy

import (
	"context"

	"github.com/willowlabs/jane/internal/classify"
	"github.com/willowlabs/jane/internal/events"
	"github.com/willowlabs/jane/internal/lead"
	"github.com/willowlabs/jane/internal/session"
)

// Kind tags the branch that produced a decision. Exactly one branch fires
// per turn; formatting and persistence switch on this tag instead of
// probing optional fields.
type Kind string

const (
	KindGreeting            Kind = "greeting"
	KindObjection           Kind = "objection"
	KindDemoOffer           Kind = "demo_offer"
	KindDemoResponse        Kind = "demo_response"
	KindMeetingOffer        Kind = "meeting_offer"
	KindBookingStep         Kind = "booking_step"
	KindKnowledgeAnswer     Kind = "knowledge_answer"
	KindQualificationPrompt Kind = "qualification_prompt"
	KindFallback            Kind = "fallback"
	KindApology             Kind = "apology"
)

// Decision is the single per-turn contract between the policy and the
// transport: the response text, an optional media directive, the updated
// facts and stage, and the side effects for the transport to apply.
type Decision struct {
	Kind  Kind
	Text  string
	Media *classify.MediaTrigger

	Facts lead.Facts
	Stage session.Stage

	Events []events.Event
}

// Summary is the read-model of a session's qualification progress.
type Summary struct {
	SessionID string            `json:"session_id"`
	Stage     session.Stage     `json:"stage"`
	Collected map[string]string `json:"collected_info"`
	Missing   []string          `json:"missing_info"`
	TurnCount int               `json:"turn_count"`
}

// KnowledgeEntry is one knowledge-base answer candidate.
type KnowledgeEntry struct {
	Category string
	Content  string
	Priority int
}

// KnowledgeBase supplies the canned content the deterministic branches draw
// from: product answers, persona-specific qualification questions, and
// objection rebuttals.
type KnowledgeBase interface {
	SearchKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeEntry, error)
	QualificationQuestions(ctx context.Context, persona, category string) ([]string, error)
	ObjectionResponse(ctx context.Context, category string) (string, error)
}

// Reply is the structured output of the generative fallback. Any media
// directive the provider wants to show arrives here as data, never embedded
// in the prose.
type Reply struct {
	Text  string
	Media *classify.MediaTrigger
}

// Responder is the external chat-completion collaborator, used only when no
// deterministic branch produces output.
type Responder interface {
	Respond(ctx context.Context, system string, history []session.Message, userInput string) (Reply, error)
}
