package category

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newID() string {
	return uuid.NewString()
}

// PersistFunc writes the category and rule tables back to settings after a
// mutation.
type PersistFunc func(categories []Category, rules []Rule) error

// Options configure an Engine.
type Options struct {
	Enabled           bool
	AIClassification  bool
	DefaultCategoryID string
	Classifier        *Classifier
	Persist           PersistFunc
	Log               zerolog.Logger
}

// Engine resolves one category per content item by blending deterministic
// rules with cached AI classification. The rule list and category table are
// swapped wholesale on every mutation so concurrent readers never observe a
// partially-updated list.
type Engine struct {
	mu         sync.RWMutex
	categories map[string]Category
	order      []string // category ids in insertion order
	rules      []Rule   // stable-sorted by descending priority

	enabled    bool
	aiEnabled  bool
	defaultID  string
	classifier *Classifier
	persist    PersistFunc
	log        zerolog.Logger
}

func NewEngine(opts Options, categories []Category, rules []Rule) *Engine {
	e := &Engine{
		enabled:    opts.Enabled,
		aiEnabled:  opts.AIClassification,
		defaultID:  opts.DefaultCategoryID,
		classifier: opts.Classifier,
		persist:    opts.Persist,
		log:        opts.Log,
	}
	if len(categories) == 0 {
		categories = DefaultCategories(time.Now())
		if e.persist != nil {
			if err := e.persist(categories, rules); err != nil {
				e.log.Warn().Err(err).Msg("persist default categories failed")
			}
		}
	}
	e.swap(categories, rules)
	return e
}

// swap replaces both tables at once. Callers hold no lock.
func (e *Engine) swap(categories []Category, rules []Rule) {
	table := make(map[string]Category, len(categories))
	order := make([]string, 0, len(categories))
	for _, cat := range categories {
		table[cat.ID] = cat
		order = append(order, cat.ID)
	}

	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	// Ties keep their original insertion order.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	e.mu.Lock()
	e.categories = table
	e.order = order
	e.rules = sorted
	e.mu.Unlock()
}

// Reload swaps in tables loaded from fresh settings.
func (e *Engine) Reload(opts Options, categories []Category, rules []Rule) {
	e.mu.Lock()
	e.enabled = opts.Enabled
	e.aiEnabled = opts.AIClassification
	e.defaultID = opts.DefaultCategoryID
	e.mu.Unlock()
	e.swap(categories, rules)
}

// Category returns the category with the given id.
func (e *Engine) Category(id string) (Category, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cat, ok := e.categories[id]
	return cat, ok
}

// Categories returns all categories in insertion order.
func (e *Engine) Categories() []Category {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Category, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.categories[id])
	}
	return out
}

// EnabledCategories returns the enabled subset in insertion order.
func (e *Engine) EnabledCategories() []Category {
	var out []Category
	for _, cat := range e.Categories() {
		if cat.Enabled {
			out = append(out, cat)
		}
	}
	return out
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Categorize resolves one category for content. forceCategoryID, when set,
// bypasses rule evaluation entirely. Returns nil when no category applies.
func (e *Engine) Categorize(ctx context.Context, content string, forceCategoryID string) *Category {
	e.mu.RLock()
	enabled := e.enabled
	aiEnabled := e.aiEnabled
	defaultID := e.defaultID
	rules := e.rules
	e.mu.RUnlock()

	if !enabled {
		return nil
	}

	if forceCategoryID != "" {
		if cat, ok := e.Category(forceCategoryID); ok {
			return &cat
		}
	}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		categoryID := e.applyRule(ctx, rule, content)
		if categoryID == "" {
			continue
		}
		if cat, ok := e.Category(categoryID); ok && cat.Enabled {
			e.log.Debug().
				Str("rule", rule.ID).
				Str("type", string(rule.Type)).
				Str("category", cat.Name).
				Msg("rule matched")
			return &cat
		}
	}

	if aiEnabled && e.classifier != nil {
		if match := e.classifier.Classify(ctx, content, e.EnabledCategories()); match != nil {
			if cat, ok := e.Category(match.CategoryID); ok {
				return &cat
			}
		}
	}

	if defaultID != "" {
		if cat, ok := e.Category(defaultID); ok {
			return &cat
		}
	}

	return nil
}

// applyRule evaluates one rule. Failures are logged and count as no match;
// they never abort the categorization chain.
func (e *Engine) applyRule(ctx context.Context, rule Rule, content string) string {
	switch rule.Type {
	case RuleKeywords:
		return applyKeywordRule(rule, content)
	case RuleAI:
		if e.classifier == nil {
			return ""
		}
		cat, ok := e.Category(rule.CategoryID)
		if !ok {
			return ""
		}
		// Restrict classification to the rule's single target category.
		if match := e.classifier.Classify(ctx, content, []Category{cat}); match != nil {
			return match.CategoryID
		}
		return ""
	default:
		e.log.Warn().Str("rule", rule.ID).Str("type", string(rule.Type)).Msg("unknown rule type skipped")
		return ""
	}
}

func applyKeywordRule(rule Rule, content string) string {
	contentLower := strings.ToLower(content)
	for _, raw := range strings.Split(rule.Condition, ",") {
		keyword := strings.ToLower(strings.TrimSpace(raw))
		if keyword == "" {
			continue
		}
		if strings.Contains(contentLower, keyword) {
			return rule.CategoryID
		}
	}
	return ""
}

// CreateCategory adds a category, persists, and swaps the tables.
func (e *Engine) CreateCategory(cat Category) (Category, error) {
	now := time.Now()
	cat.ID = newID()
	cat.CreatedAt = now
	cat.UpdatedAt = now

	cats := append(e.Categories(), cat)
	if err := e.store(cats, e.Rules()); err != nil {
		return Category{}, err
	}
	return cat, nil
}

// UpdateCategory replaces the category with upd.ID, keeping its creation
// time.
func (e *Engine) UpdateCategory(upd Category) (Category, error) {
	cats := e.Categories()
	found := false
	for i := range cats {
		if cats[i].ID == upd.ID {
			upd.CreatedAt = cats[i].CreatedAt
			upd.UpdatedAt = time.Now()
			cats[i] = upd
			found = true
			break
		}
	}
	if !found {
		return Category{}, fmt.Errorf("category %s not found", upd.ID)
	}
	if err := e.store(cats, e.Rules()); err != nil {
		return Category{}, err
	}
	return upd, nil
}

// DeleteCategory removes a category and every rule targeting it.
func (e *Engine) DeleteCategory(id string) error {
	var cats []Category
	for _, cat := range e.Categories() {
		if cat.ID != id {
			cats = append(cats, cat)
		}
	}
	var rules []Rule
	for _, rule := range e.Rules() {
		if rule.CategoryID != id {
			rules = append(rules, rule)
		}
	}
	return e.store(cats, rules)
}

// CreateRule adds a categorization rule.
func (e *Engine) CreateRule(rule Rule) (Rule, error) {
	rule.ID = newID()
	if err := e.store(e.Categories(), append(e.Rules(), rule)); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// UpdateRule replaces the rule with upd.ID.
func (e *Engine) UpdateRule(upd Rule) (Rule, error) {
	rules := e.Rules()
	found := false
	for i := range rules {
		if rules[i].ID == upd.ID {
			rules[i] = upd
			found = true
			break
		}
	}
	if !found {
		return Rule{}, fmt.Errorf("rule %s not found", upd.ID)
	}
	if err := e.store(e.Categories(), rules); err != nil {
		return Rule{}, err
	}
	return upd, nil
}

// DeleteRule removes a rule.
func (e *Engine) DeleteRule(id string) error {
	var rules []Rule
	for _, rule := range e.Rules() {
		if rule.ID != id {
			rules = append(rules, rule)
		}
	}
	return e.store(e.Categories(), rules)
}

// store persists then swaps, so readers only see what settings hold.
func (e *Engine) store(categories []Category, rules []Rule) error {
	if e.persist != nil {
		if err := e.persist(categories, rules); err != nil {
			return fmt.Errorf("persist categories: %w", err)
		}
	}
	e.swap(categories, rules)
	return nil
}

// Stats summarizes the current tables.
type Stats struct {
	TotalCategories   int
	EnabledCategories int
	TotalRules        int
	EnabledRules      int
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Stats{TotalCategories: len(e.categories), TotalRules: len(e.rules)}
	for _, cat := range e.categories {
		if cat.Enabled {
			s.EnabledCategories++
		}
	}
	for _, rule := range e.rules {
		if rule.Enabled {
			s.EnabledRules++
		}
	}
	return s
}
