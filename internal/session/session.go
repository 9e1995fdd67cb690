// Package session holds per-conversation mutable state and the store
// abstraction that owns it. Each session is an independent unit of state;
// there is no cross-session sharing.
package session

import (
	"time"

	"github.com/willowlabs/jane/internal/lead"
)

// Stage is the qualification funnel position of a conversation.
type Stage string

const (
	StageGreeting       Stage = "greeting"
	StageQualifying     Stage = "qualifying"
	StageDemoOffered    Stage = "demo_offered"
	StageDemoShown      Stage = "demo_shown"
	StageMeetingOffered Stage = "meeting_offered"
	StageBooking        Stage = "booking"
	StageBooked         Stage = "booked"
)

// BookingStage is the position inside the guided booking sub-flow.
type BookingStage string

const (
	BookingNone            BookingStage = "none"
	BookingCollectingEmail BookingStage = "collecting_email"
	BookingCollectingName  BookingStage = "collecting_name"
	BookingCollectingDate  BookingStage = "collecting_date"
	BookingCollectingTime  BookingStage = "collecting_time"
	BookingConfirming      BookingStage = "confirming"
	BookingCommitted       BookingStage = "committed"
)

// Message is one entry in the ordered conversation history.
type Message struct {
	Speaker   string    `json:"speaker"` // "user" or "agent"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SpeakerUser  = "user"
	SpeakerAgent = "agent"
)

// BookingState carries the values collected by the guided booking sub-flow.
// Email and Name survive a negative-confirmation reset; Date and Time are
// re-collected.
type BookingState struct {
	Stage BookingStage `json:"stage"`
	Email string       `json:"email,omitempty"`
	Name  string       `json:"name,omitempty"`
	Date  string       `json:"date,omitempty"`
	Time  string       `json:"time,omitempty"`
}

// Context is the mutable state of one conversation. It is owned by exactly
// one session and mutated only between turns.
type Context struct {
	ID      string
	Stage   Stage
	Facts   lead.Facts
	History []Message

	AgentAskedDemo bool
	BookingMode    bool
	Booking        BookingState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns an empty session context at the greeting stage.
func New(id string) *Context {
	now := time.Now().UTC()
	return &Context{
		ID:        id,
		Stage:     StageGreeting,
		Booking:   BookingState{Stage: BookingNone},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the conversation history.
func (c *Context) Append(speaker, text string) {
	c.History = append(c.History, Message{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	c.UpdatedAt = time.Now().UTC()
}

// UserTurns counts user messages in the history.
func (c *Context) UserTurns() int {
	n := 0
	for _, m := range c.History {
		if m.Speaker == SpeakerUser {
			n++
		}
	}
	return n
}

// RecentHistory returns up to limit most recent messages.
func (c *Context) RecentHistory(limit int) []Message {
	if len(c.History) <= limit {
		return c.History
	}
	return c.History[len(c.History)-limit:]
}
