// Package suggest proposes new categorizer keyword rules from item texts that
// fell through to the "Other" bucket. It calls Gemini offline, producing
// suggestions for a human to review; the ingest-path categorizer itself stays
// a fixed deterministic rule table and never calls a model.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for rule suggestions.
const DefaultModelName = "gemini-2.5-flash"

// RuleSuggestion is one proposed keyword→category rule.
type RuleSuggestion struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

// SuggestRules asks the model to propose keyword rules covering the given
// uncategorized item texts, constrained to the known category labels.
func SuggestRules(ctx context.Context, items []string, knownCategories []string) ([]RuleSuggestion, error) {
	if len(items) == 0 {
		return nil, nil
	}

	prompt :=
		"You are helping maintain a keyword-based transaction categorizer for small-business sales data.\n\n" +
			"Task:\n" +
			"- Below is a list of item descriptions that the current keyword table could not categorize.\n" +
			"- Propose keyword rules that would categorize them.\n" +
			"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
			"- Output a JSON array of objects.\n\n" +
			"Each object must have these fields:\n" +
			"- \"category\": string, one of: " + strings.Join(knownCategories, ", ") + "\n" +
			"- \"keywords\": array of lowercase keyword strings\n\n" +
			"Rules:\n" +
			"- Keywords must be substrings that would actually appear in the item descriptions.\n" +
			"- Do not invent categories outside the list.\n" +
			"- Return ONLY valid raw JSON, beginning with \"[\" and ending with \"]\".\n" +
			"- Do NOT wrap the response in code fences.\n\n" +
			"Item descriptions:\n- " + strings.Join(items, "\n- ") + "\n"

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("SuggestRules: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, DefaultModelName, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("SuggestRules: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("SuggestRules: empty response from model")
	}

	clean := cleanModelJSON(rawText)

	var suggestions []RuleSuggestion
	if err := json.Unmarshal([]byte(clean), &suggestions); err != nil {
		return nil, fmt.Errorf("SuggestRules: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}

	return suggestions, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk when the model
// ignores the raw-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
