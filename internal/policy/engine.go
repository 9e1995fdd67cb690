// Package policy is the conversation decision engine: given an utterance and
// the accumulated session state, it classifies, extracts facts, and picks
// exactly one response strategy per turn.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/willowlabs/jane/internal/booking"
	"github.com/willowlabs/jane/internal/classify"
	"github.com/willowlabs/jane/internal/events"
	"github.com/willowlabs/jane/internal/extract"
	"github.com/willowlabs/jane/internal/lead"
	"github.com/willowlabs/jane/internal/session"
)

// The account executive offered for scheduling calls.
const accountExecutive = "Sarah Kim"

// Meeting offers require this much of the funnel plus a shown demo.
const meetingOfferThreshold = 75

// At most this many qualification questions per turn.
const maxQuestionsPerTurn = 2

const (
	greetingText = "Hi there! I'm Jane, a virtual sales rep for Willow AI. " +
		"I'd love to learn about your company and see how we might help. " +
		"Could you tell me the name of your company?"

	demoOfferText = "It sounds like Willow AI could really help with that. " +
		"Would you like to see a quick demo of how it works?"

	demoPresentationText = "Great! Here's Willow AI in action — it engages your inbound leads " +
		"the moment they land, qualifies them with natural conversation, and books meetings " +
		"straight onto your team's calendar. Let me know what you think!"

	readyForDemoText = "It sounds like Willow AI could be a great fit for your team! " +
		"Would you like to see a quick demo of how it works?"

	apologyText = "I'm sorry, I'm having trouble processing that. Could you please repeat?"

	// Defaults by completion bracket, used when no question is available.
	lowCompletionText = "I'd love to learn more about your current setup. " +
		"Can you tell me about your company and what you do?"
	midCompletionText = "Thanks for sharing that. Let me ask you one more thing " +
		"to better understand your needs."
)

var affirmativeKeywords = []string{
	"yes", "yeah", "yep", "sure", "absolutely", "sounds good", "ok", "okay",
	"let's do it", "go ahead", "please do", "love to", "i'd like that", "show me",
}

// Forward-moving sentiment after a demo: phrases that signal fit.
var positiveFitKeywords = []string{
	"great fit", "good fit", "sounds perfect", "exactly what we need", "that's great",
	"love it", "looks great", "sounds great", "impressive", "amazing", "perfect",
}

// Engine evaluates one conversation turn at a time. Turns within a session
// are strictly sequential; concurrent requests for the same session are
// rejected with session.ErrTurnInFlight.
type Engine struct {
	sessions  session.Store
	locks     *session.TurnLocks
	kb        KnowledgeBase
	responder Responder
	flow      *booking.Flow
	logger    *slog.Logger
}

func NewEngine(sessions session.Store, kb KnowledgeBase, responder Responder, flow *booking.Flow, logger *slog.Logger) *Engine {
	return &Engine{
		sessions:  sessions,
		locks:     session.NewTurnLocks(),
		kb:        kb,
		responder: responder,
		flow:      flow,
		logger:    logger,
	}
}

// StartSession begins (or resumes) a conversation and returns the greeting.
// "Welcome back" is only ever produced for restore=true on a session with at
// least one prior user turn.
func (e *Engine) StartSession(ctx context.Context, sessionID string, restore bool) (Decision, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil || sess == nil {
		sess = session.New(sessionID)
	}

	text := greetingText
	if restore && sess.UserTurns() > 0 {
		text = e.resumeGreeting(ctx, sess)
	}

	sess.Append(session.SpeakerAgent, text)
	if err := e.sessions.Put(ctx, sess); err != nil {
		return Decision{}, fmt.Errorf("store session: %w", err)
	}

	return Decision{
		Kind:  KindGreeting,
		Text:  text,
		Facts: sess.Facts,
		Stage: sess.Stage,
	}, nil
}

func (e *Engine) resumeGreeting(ctx context.Context, sess *session.Context) string {
	missing := sess.Facts.Missing()
	if len(missing) == 0 {
		return "Welcome back! Last time we covered everything I needed — " +
			"would you like to pick up where we left off?"
	}
	questions := e.nextQuestions(ctx, classify.PersonaGeneral, missing, 1)
	if len(questions) == 0 {
		return "Welcome back! Let's pick up where we left off."
	}
	return "Welcome back! Let's pick up where we left off. " + questions[0]
}

// HandleTurn processes one utterance. Collaborator failures never escape:
// the returned decision always carries conversational text.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, utterance string) (Decision, error) {
	release, err := e.locks.Acquire(sessionID)
	if err != nil {
		return Decision{}, err
	}
	defer release()

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return Decision{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	sess.Append(session.SpeakerUser, utterance)

	result := classify.Classify(utterance)
	wasQualified := sess.Facts.Completion() == 100
	sess.Facts = sess.Facts.Merge(extract.Extract(utterance, sess.Facts))

	decision := e.decide(ctx, sess, utterance, result)
	decision.Facts = sess.Facts
	decision.Stage = sess.Stage

	if !wasQualified && sess.Facts.Completion() == 100 {
		decision.Events = append(decision.Events, events.Event{
			Subject: events.SubjectLeadQualified,
			Payload: map[string]any{
				"session_id":   sess.ID,
				"company_name": sess.Facts.CompanyName,
				"domain":       sess.Facts.Domain,
				"budget":       sess.Facts.Budget,
			},
		})
	}
	if decision.Media != nil {
		decision.Events = append(decision.Events, events.Event{
			Subject: events.SubjectMediaShown,
			Payload: map[string]any{
				"session_id": sess.ID,
				"media_type": decision.Media.Type,
				"topic":      decision.Media.Topic,
			},
		})
	}

	sess.Append(session.SpeakerAgent, decision.Text)
	if err := e.sessions.Put(ctx, sess); err != nil {
		return Decision{}, fmt.Errorf("store session: %w", err)
	}

	e.logger.Info("turn decided",
		"session_id", sess.ID,
		"kind", string(decision.Kind),
		"intent", result.Intent,
		"persona", result.Persona,
		"completion", sess.Facts.Completion(),
		"stage", string(sess.Stage),
	)

	return decision, nil
}

// decide evaluates the branch precedence. The first matching branch
// short-circuits the rest.
func (e *Engine) decide(ctx context.Context, sess *session.Context, utterance string, result classify.Result) Decision {
	lower := strings.ToLower(utterance)

	// 1. Objection rebuttal. No stage change, no flag change.
	if result.Objection != "" {
		rebuttal, err := e.kb.ObjectionResponse(ctx, result.Objection)
		if err == nil && rebuttal != "" {
			return Decision{Kind: KindObjection, Text: rebuttal}
		}
		if err != nil {
			e.logger.Error("objection lookup failed", "category", result.Objection, "error", err)
		}
		// No rebuttal on file: fall through to the remaining branches.
	}

	// 2. Demo was offered and the user agreed: present it. This is the only
	// place demo media is ever emitted.
	if sess.AgentAskedDemo && containsAny(lower, affirmativeKeywords) {
		sess.AgentAskedDemo = false
		sess.Facts.DemoShown = true
		sess.Stage = session.StageDemoShown
		return Decision{
			Kind:  KindDemoResponse,
			Text:  demoPresentationText,
			Media: &classify.MediaTrigger{Type: "demo", Topic: "product_overview"},
		}
	}

	// 3. Demo interest without a prior offer: offer, don't show.
	if !sess.Facts.DemoShown && !sess.AgentAskedDemo && result.Intent == classify.IntentDemoRequest {
		sess.AgentAskedDemo = true
		sess.Stage = session.StageDemoOffered
		return Decision{Kind: KindDemoOffer, Text: demoOfferText}
	}

	// 4. Qualified, demo shown, positive sentiment: offer the AE call.
	if sess.Facts.Completion() >= meetingOfferThreshold &&
		sess.Facts.DemoShown && !sess.Facts.MeetingBooked && !sess.BookingMode &&
		containsAny(lower, positiveFitKeywords) {
		sess.Stage = session.StageMeetingOffered
		return Decision{
			Kind: KindMeetingOffer,
			Text: fmt.Sprintf(
				"That's great to hear! I'd love to get you some time with %s, our account executive, "+
					"to talk through next steps. Would you like to schedule a quick call?",
				accountExecutive),
		}
	}

	// The meeting offer was accepted: enter the booking sub-flow. The same
	// utterance is processed by the sub-flow's entry stage.
	if sess.Stage == session.StageMeetingOffered && !sess.BookingMode &&
		(containsAny(lower, affirmativeKeywords) || result.Intent == classify.IntentMeetingInterest || result.Intent == classify.IntentInterest) {
		sess.BookingMode = true
		sess.Stage = session.StageBooking
	}

	// 5. Inside the booking sub-flow: delegate.
	if sess.BookingMode {
		res := e.flow.Advance(ctx, sess, utterance)
		d := Decision{Kind: KindBookingStep, Text: res.Text}
		if res.Committed {
			d.Events = append(d.Events, events.Event{
				Subject: events.SubjectMeetingBooked,
				Payload: map[string]any{
					"session_id": sess.ID,
					"booking_id": res.Booking.ID,
					"start_time": sess.Facts.MeetingTime,
					"attendee":   sess.Facts.MeetingEmail,
				},
			})
		}
		return d
	}

	// 6. Product or pricing question: answer from the knowledge base with a
	// qualification follow-up.
	if result.Intent == classify.IntentProductQuestion || result.Intent == classify.IntentPricingQuestion {
		entries, err := e.kb.SearchKnowledge(ctx, utterance, 3)
		if err != nil {
			e.logger.Error("knowledge search failed", "error", err)
		}
		if len(entries) > 0 {
			text := entries[0].Content
			if questions := e.nextQuestions(ctx, result.Persona, sess.Facts.Missing(), 1); len(questions) > 0 {
				text += "\n\n" + questions[0]
			}
			return Decision{Kind: KindKnowledgeAnswer, Text: text, Media: result.Media}
		}
		// Nothing usable deterministically: defer to the generative fallback.
		return e.fallback(ctx, sess, utterance)
	}

	// 7. Default: keep qualifying.
	if missing := sess.Facts.Missing(); len(missing) > 0 {
		if sess.Stage == session.StageGreeting {
			sess.Stage = session.StageQualifying
		}
		questions := e.nextQuestions(ctx, result.Persona, missing, maxQuestionsPerTurn)
		if len(questions) > 0 {
			return Decision{Kind: KindQualificationPrompt, Text: joinQuestions(questions), Media: result.Media}
		}
		return Decision{Kind: KindQualificationPrompt, Text: completionBracketText(sess.Facts.Completion()), Media: result.Media}
	}

	// Fully qualified with nothing else to do: nudge toward the demo.
	if !sess.Facts.DemoShown {
		sess.AgentAskedDemo = true
		sess.Stage = session.StageDemoOffered
		return Decision{Kind: KindDemoOffer, Text: readyForDemoText}
	}

	return e.fallback(ctx, sess, utterance)
}

// fallback invokes the external chat-completion collaborator. Its failure is
// the last stop before the generic apology.
func (e *Engine) fallback(ctx context.Context, sess *session.Context, utterance string) Decision {
	system := buildSystemPrompt(sess.Facts)
	// History excludes the user message appended this turn; the responder
	// receives it separately as the current input.
	history := sess.RecentHistory(11)
	if n := len(history); n > 0 && history[n-1].Speaker == session.SpeakerUser {
		history = history[:n-1]
	}

	reply, err := e.responder.Respond(ctx, system, history, utterance)
	if err != nil {
		e.logger.Error("fallback responder failed", "session_id", sess.ID, "error", err)
		return Decision{Kind: KindApology, Text: apologyText}
	}

	media := reply.Media
	if media != nil && media.Type == "demo" && !sess.Facts.DemoShown {
		// The generative side cannot bypass the offer-and-agreement gate.
		media = nil
	}
	return Decision{Kind: KindFallback, Text: reply.Text, Media: media}
}

// nextQuestions maps missing fields to question categories and picks the top
// persona question for each, at most limit in total.
func (e *Engine) nextQuestions(ctx context.Context, persona string, missing []string, limit int) []string {
	var questions []string
	for _, field := range missing {
		if len(questions) >= limit {
			break
		}
		category := questionCategory(field)
		if category == "" {
			continue
		}
		results, err := e.kb.QualificationQuestions(ctx, persona, category)
		if err != nil {
			e.logger.Error("question lookup failed", "persona", persona, "category", category, "error", err)
			continue
		}
		if len(results) > 0 {
			questions = append(questions, results[0])
		}
	}
	return questions
}

func questionCategory(field string) string {
	switch field {
	case lead.FieldCompanyName, lead.FieldDomain:
		return "business_fit"
	case lead.FieldProblem:
		return "pain_points"
	case lead.FieldBudget:
		return "budget"
	}
	return ""
}

func joinQuestions(questions []string) string {
	if len(questions) == 1 {
		return questions[0]
	}
	return questions[0] + " Also, " + lowerFirst(questions[1])
}

func completionBracketText(completion int) string {
	switch {
	case completion >= meetingOfferThreshold:
		return readyForDemoText
	case completion >= 50:
		return midCompletionText
	default:
		return lowCompletionText
	}
}

// Summary reports collected and missing qualification info for a session.
func (e *Engine) Summary(ctx context.Context, sessionID string) (Summary, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return Summary{
		SessionID: sess.ID,
		Stage:     sess.Stage,
		Collected: sess.Facts.Collected(),
		Missing:   sess.Facts.Missing(),
		TurnCount: sess.UserTurns(),
	}, nil
}

// Close flushes and evicts a session, returning the closing event for the
// transport to publish.
func (e *Engine) Close(ctx context.Context, sessionID string) ([]events.Event, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	evts := []events.Event{{
		Subject: events.SubjectSessionClosed,
		Payload: map[string]any{
			"session_id": sess.ID,
			"completion": sess.Facts.Completion(),
			"stage":      string(sess.Stage),
		},
	}}
	if err := e.sessions.Evict(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("evict session %s: %w", sessionID, err)
	}
	e.locks.Forget(sessionID)
	return evts, nil
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if containsPhrase(lower, kw) {
			return true
		}
	}
	return false
}

// containsPhrase matches on word boundaries: "ok" never matches inside
// "look" and "no" never matches inside "now".
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

func lowerFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
