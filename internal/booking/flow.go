// Package booking implements the guided meeting-booking sub-flow: a strictly
// ordered collection of email, name, date and time, a confirmation step, and
// the commit against the external calendar provider.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/willowlabs/jane/internal/session"
)

// Slot is one available meeting start time.
type Slot struct {
	Start string `json:"start"`
}

// Request is the payload for committing a booking.
type Request struct {
	Name      string
	Email     string
	StartTime string
	Company   string
}

// Confirmation identifies a committed booking.
type Confirmation struct {
	ID  string
	URL string
}

// Calendar is the external scheduling provider.
type Calendar interface {
	ListAvailability(ctx context.Context, date string) ([]Slot, error)
	Book(ctx context.Context, req Request) (Confirmation, error)
}

// Result is the outcome of advancing the sub-flow by one utterance.
type Result struct {
	Text      string
	Committed bool
	Booking   *Confirmation
}

// Flow drives the booking state machine. It mutates the session's booking
// state and, on commit, the session facts and stage.
type Flow struct {
	calendar       Calendar
	schedulingLink string
	logger         *slog.Logger
}

func NewFlow(calendar Calendar, schedulingLink string, logger *slog.Logger) *Flow {
	return &Flow{calendar: calendar, schedulingLink: schedulingLink, logger: logger}
}

var directLinkKeywords = []string{"link", "book myself", "on my own", "send me the calendar", "directly"}

var affirmativeKeywords = []string{
	"yes", "yeah", "yep", "correct", "that's right", "sounds good", "sure", "confirm", "book it", "perfect",
}

var negativeKeywords = []string{"no", "not right", "wrong", "incorrect", "change", "different"}

// Advance processes one utterance inside the booking sub-flow. The forward
// path never skips a stage: email, name, date, time, confirmation, commit.
func (f *Flow) Advance(ctx context.Context, sess *session.Context, utterance string) Result {
	lower := strings.ToLower(utterance)

	switch sess.Booking.Stage {
	case session.BookingNone:
		if containsAny(lower, directLinkKeywords) {
			// Direct-link path: hand over the scheduling link, keep booking
			// mode so a follow-up can still go guided.
			return Result{Text: fmt.Sprintf(
				"Absolutely — you can grab any time that works for you here: %s. Everything we've discussed will be attached to the invite.",
				f.schedulingLink)}
		}
		sess.Booking.Stage = session.BookingCollectingEmail
		return Result{Text: "Great, I can set that up right here. What's the best email for the calendar invite?"}

	case session.BookingCollectingEmail:
		email := strings.TrimSpace(utterance)
		if !strings.Contains(email, "@") {
			return Result{Text: "That doesn't look like an email address — what's the best email for the invite?"}
		}
		sess.Booking.Email = email
		sess.Booking.Stage = session.BookingCollectingName
		return Result{Text: "Got it. And what name should I put on the invite?"}

	case session.BookingCollectingName:
		sess.Booking.Name = strings.TrimSpace(utterance)
		sess.Booking.Stage = session.BookingCollectingDate
		return Result{Text: fmt.Sprintf("Thanks, %s. What day works best for you?", sess.Booking.Name)}

	case session.BookingCollectingDate:
		sess.Booking.Date = strings.TrimSpace(utterance)
		sess.Booking.Stage = session.BookingCollectingTime
		return Result{Text: fmt.Sprintf("And what time works best on %s?", sess.Booking.Date)}

	case session.BookingCollectingTime:
		sess.Booking.Time = strings.TrimSpace(utterance)
		sess.Booking.Stage = session.BookingConfirming
		return Result{Text: f.confirmationSummary(sess)}

	case session.BookingConfirming:
		if containsAny(lower, negativeKeywords) {
			// Intentional re-ask of date and time only; email and name are
			// kept across the reset.
			sess.Booking.Date = ""
			sess.Booking.Time = ""
			sess.Booking.Stage = session.BookingCollectingDate
			return Result{Text: "No problem, let's adjust. What day works best for you?"}
		}
		if containsAny(lower, affirmativeKeywords) {
			return f.commit(ctx, sess)
		}
		return Result{Text: f.confirmationSummary(sess)}
	}

	// Committed or unknown stage: nothing left to collect.
	return Result{Text: "You're all set — your meeting is booked. Is there anything else I can help with?"}
}

func (f *Flow) confirmationSummary(sess *session.Context) string {
	return fmt.Sprintf("Perfect. I'll book a 30-minute meeting for %s (%s) on %s %s — is that correct?",
		sess.Booking.Name, sess.Booking.Email, sess.Booking.Date, sess.Booking.Time)
}

func (f *Flow) commit(ctx context.Context, sess *session.Context) Result {
	startTime := strings.TrimSpace(sess.Booking.Date + " " + sess.Booking.Time)
	req := Request{
		Name:      sess.Booking.Name,
		Email:     sess.Booking.Email,
		StartTime: startTime,
		Company:   sess.Facts.CompanyName,
	}

	conf, err := f.calendar.Book(ctx, req)
	if err != nil {
		// Retryable: state is unchanged, the user can confirm again or take
		// the direct link.
		f.logger.Error("booking commit failed", "session_id", sess.ID, "error", err)
		return Result{Text: fmt.Sprintf(
			"I'm having trouble booking that right now. You can grab a time directly here: %s — or we can try again in a moment.",
			f.schedulingLink)}
	}

	sess.Booking.Stage = session.BookingCommitted
	sess.BookingMode = false
	sess.Stage = session.StageBooked
	sess.Facts.MeetingBooked = true
	sess.Facts.MeetingID = conf.ID
	sess.Facts.MeetingTime = startTime
	sess.Facts.MeetingName = sess.Booking.Name
	sess.Facts.MeetingEmail = sess.Booking.Email

	f.logger.Info("meeting booked",
		"session_id", sess.ID,
		"booking_id", conf.ID,
		"start_time", startTime,
	)

	return Result{
		Text: fmt.Sprintf(
			"You're all set! I've booked your 30-minute meeting for %s. A calendar invite is on its way to %s.",
			startTime, sess.Booking.Email),
		Committed: true,
		Booking:   &conf,
	}
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if containsPhrase(lower, kw) {
			return true
		}
	}
	return false
}

// containsPhrase matches on word boundaries: "no" never matches inside
// "now" and "correct" never matches inside "incorrect".
func containsPhrase(lower, phrase string) bool {
	for from := 0; ; {
		i := strings.Index(lower[from:], phrase)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(phrase)
		if (start == 0 || !isWordByte(lower[start-1])) && (end == len(lower) || !isWordByte(lower[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(c byte) bool {
	return 'a' <= c && c <= 'z' || '0' <= c && c <= '9'
}
