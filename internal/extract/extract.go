// Package extract pulls structured qualification facts out of free-text
// utterances using ordered pattern rules. Extraction is pure: absence of a
// match leaves a field unset, and fields already set on the current facts
// are never re-extracted.
package extract

import (
	"regexp"
	"strings"

	"github.com/willowlabs/jane/internal/lead"
)

// Company-name patterns, tried in order; first match wins.
var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:work at|from|with|at)\s+([A-Z][A-Za-z\s&.]+?)(?:\s|\.|,|!|\?|$)`),
	regexp.MustCompile(`(?:company is|company:)\s+([A-Z][A-Za-z\s&.]+?)(?:\s|\.|,|!|\?|$)`),
	regexp.MustCompile(`(?:I'm|I am)\s+(?:at|with|from)\s+([A-Z][A-Za-z\s&.]+?)(?:\s|\.|,|!|\?|$)`),
}

// Matches that are noise words rather than company names.
var companyStopwords = map[string]bool{
	"the": true,
	"and": true,
	"inc": true,
	"llc": true,
}

type industryRule struct {
	domain   string
	keywords []string
}

// Industry categories in declaration order; ties in keyword-hit count are
// broken by this order.
var industryRules = []industryRule{
	{"saas", []string{"saas", "software", "platform", "app", "application"}},
	{"ecommerce", []string{"ecommerce", "e-commerce", "retail", "online store", "marketplace"}},
	{"fintech", []string{"fintech", "financial", "banking", "payment", "finance"}},
	{"healthcare", []string{"healthcare", "medical", "health", "hospital", "clinic"}},
	{"education", []string{"education", "edtech", "learning", "school", "university"}},
	{"marketing", []string{"marketing", "advertising", "agency", "digital marketing"}},
	{"consulting", []string{"consulting", "services", "advisory", "consultancy"}},
}

var painIndicators = []string{
	"problem", "issue", "challenge", "struggle", "struggling", "difficult", "hard",
	"frustrating", "painful", "bottleneck", "gap", "missing", "lack",
}

// Numeric budget patterns, tried in order; the whole match is the value.
var budgetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\$[\d,]+(?:\.\d+)?\s?[km]?(?:\s*(?:per|/)\s*(?:month|year|annually))?`),
	regexp.MustCompile(`(?i)budget[^$]*\$[\d,]+\s?[km]?`),
	regexp.MustCompile(`(?i)(?:around|about|up to|less than|more than)\s*\$[\d,]+\s?[km]?`),
}

type budgetRange struct {
	bucket     string
	indicators []string
}

// Qualitative budget buckets, used only when no numeric pattern matches.
var budgetRanges = []budgetRange{
	{"under 10k", []string{"small budget", "tight budget", "limited budget", "startup budget"}},
	{"10k-50k", []string{"mid-range", "moderate budget", "reasonable budget"}},
	{"50k+", []string{"enterprise budget", "significant budget", "large budget", "substantial investment"}},
}

// Extract runs the per-field rules against the utterance, skipping fields
// already set on current. The caller merges the returned partial into the
// session facts.
func Extract(utterance string, current lead.Facts) lead.Partial {
	var p lead.Partial
	if current.CompanyName == "" {
		p.CompanyName = companyName(utterance)
	}
	if current.Domain == "" {
		p.Domain = domain(utterance)
	}
	if current.Problem == "" {
		p.Problem = painPoint(utterance)
	}
	if current.Budget == "" {
		p.Budget = budget(utterance)
	}
	return p
}

func companyName(text string) string {
	for _, pattern := range companyPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if len(name) <= 2 || companyStopwords[strings.ToLower(name)] {
			continue
		}
		return name
	}
	return ""
}

func domain(text string) string {
	lower := strings.ToLower(text)

	best, bestScore := "", 0
	for _, rule := range industryRules {
		score := 0
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		// Strict comparison keeps declaration order on ties.
		if score > bestScore {
			best, bestScore = rule.domain, score
		}
	}
	return best
}

func painPoint(text string) string {
	lower := strings.ToLower(text)
	for _, indicator := range painIndicators {
		if !strings.Contains(lower, indicator) {
			continue
		}
		for _, sentence := range strings.Split(text, ".") {
			if strings.Contains(strings.ToLower(sentence), indicator) {
				return strings.TrimSpace(sentence)
			}
		}
	}
	return ""
}

func budget(text string) string {
	for _, pattern := range budgetPatterns {
		if m := pattern.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}

	lower := strings.ToLower(text)
	for _, rng := range budgetRanges {
		for _, indicator := range rng.indicators {
			if strings.Contains(lower, indicator) {
				return rng.bucket
			}
		}
	}
	return ""
}
