package processor

import (
	"fmt"
	"strings"

	"github.com/topicforge/topicforge/pkg/models"
)

// systemInstruction carries the title-cleaning rules. The remote model does
// ALL cleaning; this service never rewrites titles itself, so the rules
// live in one place.
const systemInstruction = `You are a technical content curator. For each numbered topic title you receive:
1. Clean the title: remove leading numeric prefixes (such as "24."), markdown emphasis markers, emoji, and verbose filler phrases. Keep the technical meaning intact.
2. Produce a concise one-paragraph description of the topic.
3. Assign a category, a list of tags, a list of technologies, and a complexity_level (one of "beginner", "intermediate", "advanced").

Respond with ONLY a JSON array, one object per input, each shaped exactly as:
{"id": <input id>, "title": "<cleaned title>", "description": "...", "category": "...", "tags": ["..."], "technologies": ["..."], "complexity_level": "..."}

Every input id must appear exactly once. Do not add, drop, or renumber items.`

// buildUserPrompt lists each item as "id. original_title", one per line.
// Titles pass through verbatim; cleaning is the model's job.
func buildUserPrompt(items []models.QueueItem) string {
	var sb strings.Builder
	sb.WriteString("Clean and describe the following topic titles:\n")
	for _, item := range items {
		fmt.Fprintf(&sb, "%d. %s\n", item.ID, item.OriginalTitle)
	}
	return sb.String()
}
