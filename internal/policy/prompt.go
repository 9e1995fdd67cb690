package policy

import (
	"fmt"
	"strings"

	"github.com/willowlabs/jane/internal/lead"
)

// buildSystemPrompt renders the dynamic system prompt for the generative
// fallback from the current qualification state.
func buildSystemPrompt(facts lead.Facts) string {
	var b strings.Builder

	b.WriteString("You are Jane, an AI SDR for Willow AI. You are professional, helpful, ")
	b.WriteString("and focused on qualifying B2B leads.\n\n")
	b.WriteString("CURRENT SESSION STATUS:\n")

	completion := facts.Completion()
	fmt.Fprintf(&b, "Lead Qualification: %d%% complete\n", completion)
	if missing := facts.Missing(); len(missing) > 0 {
		fmt.Fprintf(&b, "Missing Information: %s\n", strings.Join(missing, ", "))
	}
	if facts.CompanyName != "" {
		fmt.Fprintf(&b, "Prospect Company: %s\n", facts.CompanyName)
	}
	if facts.Domain != "" {
		fmt.Fprintf(&b, "Industry/Domain: %s\n", facts.Domain)
	}

	b.WriteString("\nRULES:\n")
	b.WriteString("1. Keep responses conversational and natural\n")
	b.WriteString("2. Ask only ONE qualification question at a time\n")
	b.WriteString("3. Listen for objections and address them with empathy\n")
	b.WriteString("4. Focus on the prospect's specific pain points\n")
	b.WriteString("5. Be concise - maximum 2-3 sentences per response\n")
	b.WriteString("6. Use the knowledge base to answer product questions accurately\n")

	switch {
	case completion < 25:
		b.WriteString("\nCURRENT FOCUS: Build rapport and understand their business\n")
	case completion < 75:
		b.WriteString("\nCURRENT FOCUS: Qualify their needs and pain points\n")
	default:
		b.WriteString("\nCURRENT FOCUS: Confirm fit and move toward demo booking\n")
	}

	return b.String()
}
