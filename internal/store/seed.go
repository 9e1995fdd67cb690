package store

import (
	"context"
	"fmt"
)

type knowledgeSeed struct {
	category string
	keywords string
	content  string
	priority int
}

type questionSeed struct {
	persona  string
	category string
	question string
	priority int
}

var knowledgeSeeds = []knowledgeSeed{
	{"features", "features capabilities how work engage qualify", "Willow AI engages inbound leads the moment they land on your site, qualifies them with natural conversation, and books meetings directly onto your team's calendar.", 10},
	{"features", "crm context handoff lead data", "Willow AI integrates with your CRM so every qualified lead arrives with full context: company, industry, pain points, and budget.", 8},
	{"pricing", "pricing price cost plans expensive", "Willow AI pricing scales with conversation volume. Plans start at $500/month for early-stage teams and include unlimited seats.", 10},
	{"integrations", "integration salesforce hubspot slack webhook calendar", "Willow AI connects to Salesforce, HubSpot, Slack, and your calendar out of the box. Custom integrations are available via webhooks.", 7},
	{"security", "security soc2 compliance encryption privacy data", "Willow AI is SOC 2 Type II certified. Conversation data is encrypted in transit and at rest, and is never used to train shared models.", 7},
	{"results", "results roi meetings conversion performance", "Teams using Willow AI typically see 3x more qualified meetings booked from the same inbound traffic within the first month.", 9},
}

var questionSeeds = []questionSeed{
	{"general", "business_fit", "Could you tell me a bit about your company and what you do?", 10},
	{"general", "business_fit", "What industry are you in?", 8},
	{"general", "pain_points", "What's the biggest challenge with your current lead process?", 10},
	{"general", "budget", "Do you have a budget range in mind for a solution like this?", 10},
	{"vp_sales", "pain_points", "Where do you see the most leads slipping through the cracks today?", 10},
	{"vp_sales", "budget", "What kind of investment range has your team allocated for pipeline tooling?", 10},
	{"sales_ops", "pain_points", "What does your current lead routing and qualification workflow look like?", 10},
	{"marketing_leader", "pain_points", "How are you converting the traffic your campaigns generate today?", 10},
	{"plg_founder", "pain_points", "How are you handling sales conversations while keeping the product self-serve?", 10},
}

var objectionSeeds = map[string]string{
	"already_have_chatbot": "That's actually common among our customers! Most switched from a basic chatbot because Willow AI goes beyond scripted FAQ flows: it qualifies leads with real conversation and books meetings on its own.",
	"prefer_human_sdrs":    "Willow AI isn't meant to replace your reps. It handles the top of the funnel around the clock so your SDRs spend their time on conversations that are already qualified.",
	"no_budget":            "Completely understand. Many teams find Willow AI pays for itself within the first month through meetings that would otherwise be lost. Would it help to see the typical ROI numbers?",
	"not_ready":            "No pressure at all! Would it be helpful if I shared a quick overview you can revisit when the timing is right?",
	"need_approval":        "Of course. I can put together a short summary with pricing and typical results that's easy to share with your team. Would that help?",
}

// SeedDefaults populates the content tables when they are empty. Existing
// content is never modified.
func (s *Store) SeedDefaults(ctx context.Context) error {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_base`).Scan(&n); err != nil {
		return fmt.Errorf("count knowledge base: %w", err)
	}
	if n == 0 {
		for _, k := range knowledgeSeeds {
			if _, err := s.pool.Exec(ctx, `
				INSERT INTO knowledge_base (category, keywords, content, priority) VALUES ($1, $2, $3, $4)`,
				k.category, k.keywords, k.content, k.priority,
			); err != nil {
				return fmt.Errorf("seed knowledge base: %w", err)
			}
		}
	}

	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM qualification_questions`).Scan(&n); err != nil {
		return fmt.Errorf("count qualification questions: %w", err)
	}
	if n == 0 {
		for _, q := range questionSeeds {
			if _, err := s.pool.Exec(ctx, `
				INSERT INTO qualification_questions (persona, category, question, priority) VALUES ($1, $2, $3, $4)`,
				q.persona, q.category, q.question, q.priority,
			); err != nil {
				return fmt.Errorf("seed qualification questions: %w", err)
			}
		}
	}

	for category, response := range objectionSeeds {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO objection_responses (category, response) VALUES ($1, $2)
			ON CONFLICT (category) DO NOTHING`,
			category, response,
		); err != nil {
			return fmt.Errorf("seed objection responses: %w", err)
		}
	}
	return nil
}
