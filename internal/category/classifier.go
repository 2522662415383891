package category

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// TextProcessor is the slice of the AI orchestrator the classifier needs.
// An empty result means processing failed or was disabled.
type TextProcessor interface {
	ProcessWithPrompt(ctx context.Context, content, prompt string) string
}

// Classifier resolves a category for content by asking the active AI
// provider to pick one category name, with a bounded response cache in
// front of the paid request.
type Classifier struct {
	proc  TextProcessor
	cache *responseCache
	log   zerolog.Logger
}

func NewClassifier(proc TextProcessor, log zerolog.Logger) *Classifier {
	return &Classifier{
		proc:  proc,
		cache: newResponseCache(),
		log:   log,
	}
}

// Classify asks the provider which of the enabled categories fits content.
// A cache hit is re-resolved against the current category set, so a renamed
// or disabled category invalidates a stale answer without re-invoking the
// provider. Returns nil when nothing fits.
func (c *Classifier) Classify(ctx context.Context, content string, categories []Category) *Match {
	enabled := make([]Category, 0, len(categories))
	for _, cat := range categories {
		if cat.Enabled {
			enabled = append(enabled, cat)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	key := c.cache.key(content, enabled)
	if cached, ok := c.cache.get(key); ok {
		match := resolveResponse(cached, enabled)
		if match != nil {
			match.MatchedRule = "ai_cached"
			match.Confidence = 0.8
		}
		return match
	}

	prompt := buildClassificationPrompt(content, enabled)
	answer := c.proc.ProcessWithPrompt(ctx, content, prompt)
	if strings.TrimSpace(answer) == "" {
		return nil
	}

	c.cache.put(key, answer)
	return resolveResponse(answer, enabled)
}

// ClearCache drops all cached answers.
func (c *Classifier) ClearCache() {
	c.cache.clear()
}

// CacheStats returns current and maximum cache size.
func (c *Classifier) CacheStats() (size, maxSize int) {
	return c.cache.len(), cacheCapacity
}

func buildClassificationPrompt(content string, categories []Category) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following content and determine which category it belongs to.\n\n")
	sb.WriteString("Available categories:\n")
	for i, cat := range categories {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("- **" + cat.Name + "**: " + cat.Description)
		if len(cat.Keywords) > 0 {
			sb.WriteString("\n  Keywords: " + strings.Join(cat.Keywords, ", "))
		}
		if cat.NotePathTemplate != "" {
			sb.WriteString("\n  Note path: " + cat.NotePathTemplate)
		}
	}
	sb.WriteString("\n\nContent to analyze:\n")
	sb.WriteString(content)
	sb.WriteString("\n\nRespond with only the name of the most suitable category or \"none\" if none fits.")
	return sb.String()
}

// resolveResponse maps a raw provider answer to a category, in match order:
// exact case-insensitive name, keyword containment, fuzzy name containment.
func resolveResponse(response string, categories []Category) *Match {
	normalized := strings.ToLower(strings.TrimSpace(response))
	if normalized == "" || normalized == "none" || normalized == "no" {
		return nil
	}

	for _, cat := range categories {
		if strings.ToLower(cat.Name) == normalized {
			return &Match{CategoryID: cat.ID, Confidence: 0.9, MatchedRule: "ai_exact_match"}
		}
	}

	for _, cat := range categories {
		for _, keyword := range cat.Keywords {
			if strings.Contains(normalized, strings.ToLower(keyword)) {
				return &Match{
					CategoryID:      cat.ID,
					Confidence:      0.7,
					MatchedRule:     "ai_keyword_match",
					MatchedKeywords: []string{keyword},
				}
			}
		}
	}

	for _, cat := range categories {
		name := strings.ToLower(cat.Name)
		if strings.Contains(normalized, name) || strings.Contains(name, normalized) {
			return &Match{CategoryID: cat.ID, Confidence: 0.6, MatchedRule: "ai_fuzzy_match"}
		}
	}

	return nil
}
