package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/willowlabs/jane/internal/policy"
)

// SearchKnowledge matches knowledge entries by keyword overlap with the
// query, highest priority first.
func (s *Store) SearchKnowledge(ctx context.Context, query string, limit int) ([]policy.KnowledgeEntry, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT category, content, priority
		FROM knowledge_base
		WHERE keywords ILIKE ANY($1) OR content ILIKE ANY($1) OR category ILIKE ANY($1)
		ORDER BY priority DESC, id
		LIMIT $2`, terms, limit)
	if err != nil {
		return nil, fmt.Errorf("query knowledge base: %w", err)
	}
	defer rows.Close()

	var entries []policy.KnowledgeEntry
	for rows.Next() {
		var e policy.KnowledgeEntry
		if err := rows.Scan(&e.Category, &e.Content, &e.Priority); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// QualificationQuestions returns questions for the persona and category,
// falling back to the general persona, highest priority first.
func (s *Store) QualificationQuestions(ctx context.Context, persona, category string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT question
		FROM qualification_questions
		WHERE category = $2 AND persona IN ($1, 'general')
		ORDER BY (persona = $1) DESC, priority DESC, id`, persona, category)
	if err != nil {
		return nil, fmt.Errorf("query qualification questions: %w", err)
	}
	defer rows.Close()

	var questions []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ObjectionResponse returns the canned rebuttal for an objection category, or
// empty when none is on file.
func (s *Store) ObjectionResponse(ctx context.Context, category string) (string, error) {
	var response string
	err := s.pool.QueryRow(ctx, `
		SELECT response FROM objection_responses WHERE category = $1`, category,
	).Scan(&response)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query objection response: %w", err)
	}
	return response, nil
}

// stopwords excluded from knowledge search terms.
var searchStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true,
	"how": true, "does": true, "can": true, "you": true, "your": true,
	"about": true, "that": true, "this": true, "have": true,
}

func searchTerms(query string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,!?\"'")
		if len(word) < 3 || searchStopwords[word] {
			continue
		}
		terms = append(terms, "%"+word+"%")
	}
	return terms
}
