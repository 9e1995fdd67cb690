// Package classify tags an utterance with a buyer persona, a conversational
// intent, an optional named objection, and an optional media trigger.
// Matching is case-insensitive substring containment over ordered keyword
// tables; the first matching rule wins, so table order is significant and
// must not be reordered casually.
package classify

import "strings"

// Persona tags.
const (
	PersonaVPSales         = "vp_sales"
	PersonaSalesOps        = "sales_ops"
	PersonaMarketingLeader = "marketing_leader"
	PersonaPLGFounder      = "plg_founder"
	PersonaGeneral         = "general"
)

// Intent tags.
const (
	IntentProductQuestion   = "product_question"
	IntentPricingQuestion   = "pricing_question"
	IntentObjection         = "objection"
	IntentInterest          = "interest"
	IntentDemoRequest       = "demo_request"
	IntentMeetingInterest   = "meeting_interest"
	IntentQualificationInfo = "qualification_info"
	IntentGeneralInquiry    = "general_inquiry"
)

// Objection categories.
const (
	ObjectionAlreadyHaveChatbot = "already_have_chatbot"
	ObjectionPreferHumanSDRs    = "prefer_human_sdrs"
	ObjectionNoBudget           = "no_budget"
	ObjectionNotReady           = "not_ready"
	ObjectionNeedApproval       = "need_approval"
)

// MediaTrigger asks the transport to display a piece of supporting media.
type MediaTrigger struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// Result is the per-turn classification. It is recomputed from the current
// utterance only and never persisted.
type Result struct {
	Persona   string
	Intent    string
	Objection string        // empty when no objection detected
	Media     *MediaTrigger // nil when no media trigger matched
}

type rule struct {
	tag      string
	keywords []string
}

var personaRules = []rule{
	{PersonaVPSales, []string{"vp", "vice president", "head of sales", "sales director", "sales manager", "sales lead"}},
	{PersonaSalesOps, []string{"sales ops", "revenue ops", "revops", "sales operations", "revenue operations"}},
	{PersonaMarketingLeader, []string{"cmo", "marketing", "demand gen", "growth", "pmm", "product marketing"}},
	{PersonaPLGFounder, []string{"founder", "ceo", "plg", "product-led", "self-serve", "freemium"}},
}

// Intent table order carries meaning: "demo" appears under both interest and
// demo_request, and budget words under both pricing_question and
// qualification phrasing. The first category listed wins, matching the
// shipped behavior.
var intentRules = []rule{
	{IntentProductQuestion, []string{"how does", "what is", "can you", "do you", "features", "capabilities"}},
	{IntentPricingQuestion, []string{"cost", "price", "pricing", "expensive", "cheap"}},
	{IntentObjection, []string{"but", "however", "already have", "don't need", "not interested", "too expensive"}},
	{IntentInterest, []string{"interested", "tell me more", "sounds good", "like that"}},
	{IntentDemoRequest, []string{"demo", "show me", "see it in action", "walkthrough"}},
	{IntentMeetingInterest, []string{"meeting", "schedule a call", "talk to someone", "speak with", "book a time"}},
	{IntentQualificationInfo, []string{"we use", "our company", "we have", "currently", "right now"}},
}

var objectionRules = []rule{
	{ObjectionAlreadyHaveChatbot, []string{"already have a chatbot", "already use", "we use intercom", "intercom", "drift", "existing chatbot"}},
	{ObjectionPreferHumanSDRs, []string{"human sdr", "real person", "prefer humans", "human touch", "our reps"}},
	{ObjectionNoBudget, []string{"no budget", "can't afford", "too expensive", "not in the budget", "out of budget"}},
	{ObjectionNotReady, []string{"not ready", "too early", "maybe later", "next quarter", "not right now"}},
	{ObjectionNeedApproval, []string{"need approval", "ask my boss", "check with", "decision maker", "talk to my team"}},
}

type mediaRule struct {
	keyword string
	media   MediaTrigger
}

// Media triggers fire on keyword mention alone, except demo: demo media is
// gated behind an explicit offer-and-agreement exchange in the policy, so
// no rule here produces type "demo".
var mediaRules = []mediaRule{
	{"features", MediaTrigger{Type: "features", Topic: "core_features"}},
	{"pricing", MediaTrigger{Type: "pricing", Topic: "pricing_overview"}},
	{"testimonials", MediaTrigger{Type: "testimonials", Topic: "customer_success"}},
	{"case study", MediaTrigger{Type: "testimonials", Topic: "case_studies"}},
	{"integration", MediaTrigger{Type: "features", Topic: "integrations"}},
	{"security", MediaTrigger{Type: "features", Topic: "security"}},
}

// Classify tags the utterance. It is stateless across turns.
func Classify(utterance string) Result {
	lower := strings.ToLower(utterance)
	return Result{
		Persona:   matchFirst(personaRules, lower, PersonaGeneral),
		Intent:    matchFirst(intentRules, lower, IntentGeneralInquiry),
		Objection: matchFirst(objectionRules, lower, ""),
		Media:     matchMedia(lower),
	}
}

func matchFirst(rules []rule, lower, fallback string) string {
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.tag
			}
		}
	}
	return fallback
}

func matchMedia(lower string) *MediaTrigger {
	for _, r := range mediaRules {
		if strings.Contains(lower, r.keyword) {
			m := r.media
			return &m
		}
	}
	return nil
}
