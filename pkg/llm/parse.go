package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/moecapital/refinery/pkg/models"
)

// ParseEntries parses model output as a JSON array of analysis entries.
// Tolerates a single-object response (wrapped into a one-element array) and
// markdown code fences around the JSON.
func ParseEntries(raw string) ([]models.AnalysisEntry, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response text", ErrMalformed)
	}

	var entries []models.AnalysisEntry
	if err := json.Unmarshal([]byte(text), &entries); err == nil {
		return entries, nil
	}

	var single models.AnalysisEntry
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return []models.AnalysisEntry{single}, nil
}

// stripCodeFence removes a surrounding ```json ... ``` fence if present.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
