package category

import "time"

// Category is one user-defined note category.
type Category struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Color            string    `json:"color"`
	NotePathTemplate string    `json:"notePathTemplate"`
	FilePathOverride string    `json:"filePathOverride,omitempty"`
	Keywords         []string  `json:"keywords"`
	Enabled          bool      `json:"enabled"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// RuleType selects how a categorization rule evaluates content.
type RuleType string

const (
	RuleKeywords RuleType = "keywords"
	RuleAI       RuleType = "ai"
)

// Rule maps content to a category. Keyword rules carry a comma-separated
// keyword list in Condition; AI rules restrict classification to the target
// category.
type Rule struct {
	ID         string   `json:"id"`
	CategoryID string   `json:"categoryId"`
	Type       RuleType `json:"type"`
	Condition  string   `json:"condition"`
	Priority   int      `json:"priority"`
	Enabled    bool     `json:"enabled"`
}

// Match is the result of a single classification call.
type Match struct {
	CategoryID      string
	Confidence      float64
	MatchedRule     string
	MatchedKeywords []string
}

// DefaultCategories are seeded on first run when the category table is empty.
func DefaultCategories(now time.Time) []Category {
	defs := []Category{
		{
			Name:             "Work",
			Description:      "Work notes, projects, meetings",
			Color:            "#3498db",
			NotePathTemplate: "Work/{{date:YYYY}}/{{date:MM}}/{{date:DD-HH-mm}}.md",
			Keywords:         []string{"work", "project", "meeting", "task", "deadline", "client", "colleague", "report"},
			Enabled:          true,
		},
		{
			Name:             "Personal",
			Description:      "Personal notes, thoughts, plans",
			Color:            "#e74c3c",
			NotePathTemplate: "Personal/{{date:YYYY-MM}}/{{date:DD-HH-mm}}.md",
			Keywords:         []string{"personal", "family", "friends", "hobby", "health", "shopping", "home"},
			Enabled:          true,
		},
		{
			Name:             "Ideas",
			Description:      "Creative ideas, concepts, inspiration",
			Color:            "#f39c12",
			NotePathTemplate: "Ideas/{{date:YYYY}}/{{content:30}}.md",
			Keywords:         []string{"idea", "concept", "inspiration", "creativity", "innovation", "solution"},
			Enabled:          true,
		},
		{
			Name:             "Learning",
			Description:      "Educational materials, study notes",
			Color:            "#9b59b6",
			NotePathTemplate: "Learning/{{date:YYYY}}/{{content:20}}/{{date:MM-DD}}.md",
			Keywords:         []string{"learning", "education", "course", "lesson", "knowledge", "skill", "practice"},
			Enabled:          true,
		},
	}
	for i := range defs {
		defs[i].ID = newID()
		defs[i].CreatedAt = now
		defs[i].UpdatedAt = now
	}
	return defs
}
