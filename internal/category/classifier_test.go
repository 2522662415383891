package category

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

type fakeProcessor struct {
	answer string
	calls  int
}

func (f *fakeProcessor) ProcessWithPrompt(ctx context.Context, content, prompt string) string {
	f.calls++
	return f.answer
}

func testCategories() []Category {
	return []Category{
		{ID: "w", Name: "Work", Keywords: []string{"meeting", "project"}, Enabled: true},
		{ID: "p", Name: "Personal", Keywords: []string{"family"}, Enabled: true},
		{ID: "d", Name: "Disabled", Enabled: false},
	}
}

func TestClassifyExactMatch(t *testing.T) {
	proc := &fakeProcessor{answer: "Work"}
	c := NewClassifier(proc, zerolog.Nop())

	m := c.Classify(context.Background(), "quarterly planning", testCategories())
	if m == nil {
		t.Fatal("expected match")
	}
	if m.CategoryID != "w" || m.MatchedRule != "ai_exact_match" || m.Confidence != 0.9 {
		t.Errorf("match = %+v", m)
	}
}

func TestClassifyKeywordMatch(t *testing.T) {
	proc := &fakeProcessor{answer: "this looks like a meeting note"}
	c := NewClassifier(proc, zerolog.Nop())

	m := c.Classify(context.Background(), "content", testCategories())
	if m == nil || m.CategoryID != "w" || m.MatchedRule != "ai_keyword_match" {
		t.Errorf("match = %+v", m)
	}
}

func TestClassifyFuzzyMatch(t *testing.T) {
	proc := &fakeProcessor{answer: "probably personal stuff"}
	c := NewClassifier(proc, zerolog.Nop())

	m := c.Classify(context.Background(), "content", testCategories())
	if m == nil || m.CategoryID != "p" || m.MatchedRule != "ai_fuzzy_match" {
		t.Errorf("match = %+v", m)
	}
}

func TestClassifyNone(t *testing.T) {
	proc := &fakeProcessor{answer: "none"}
	c := NewClassifier(proc, zerolog.Nop())

	if m := c.Classify(context.Background(), "content", testCategories()); m != nil {
		t.Errorf("match = %+v, want nil", m)
	}
}

func TestClassifyCacheHitSkipsProvider(t *testing.T) {
	proc := &fakeProcessor{answer: "Work"}
	c := NewClassifier(proc, zerolog.Nop())

	first := c.Classify(context.Background(), "same content", testCategories())
	second := c.Classify(context.Background(), "same content", testCategories())

	if proc.calls != 1 {
		t.Errorf("provider called %d times, want 1", proc.calls)
	}
	if first == nil || second == nil {
		t.Fatal("expected matches")
	}
	if second.MatchedRule != "ai_cached" || second.Confidence != 0.8 {
		t.Errorf("cached match = %+v", second)
	}
	if first.CategoryID != second.CategoryID {
		t.Errorf("cached hit resolved to %s, first to %s", second.CategoryID, first.CategoryID)
	}
}

// A "none" answer is cached too: the at-most-one-call property holds even
// when the provider finds no category.
func TestClassifyNoneAnswerCached(t *testing.T) {
	proc := &fakeProcessor{answer: "none"}
	c := NewClassifier(proc, zerolog.Nop())

	c.Classify(context.Background(), "same content", testCategories())
	c.Classify(context.Background(), "same content", testCategories())
	if proc.calls != 1 {
		t.Errorf("provider called %d times for a cached none, want 1", proc.calls)
	}
}

func TestClassifyRenamedCategoryInvalidatesHit(t *testing.T) {
	proc := &fakeProcessor{answer: "Work"}
	c := NewClassifier(proc, zerolog.Nop())

	cats := testCategories()
	if m := c.Classify(context.Background(), "content", cats); m == nil {
		t.Fatal("expected initial match")
	}

	// Same id set, different name: the cached raw answer no longer resolves.
	cats[0].Name = "Office"
	cats[0].Keywords = nil
	m := c.Classify(context.Background(), "content", cats)
	if m != nil {
		t.Errorf("stale cached answer resolved to %+v", m)
	}
	if proc.calls != 1 {
		t.Errorf("provider called %d times, want 1 (hit re-resolved, not re-asked)", proc.calls)
	}
}

func TestClassifyEmptyAnswerNotCached(t *testing.T) {
	proc := &fakeProcessor{answer: ""}
	c := NewClassifier(proc, zerolog.Nop())

	c.Classify(context.Background(), "content", testCategories())
	c.Classify(context.Background(), "content", testCategories())
	if proc.calls != 2 {
		t.Errorf("provider called %d times, want 2 (failures are not cached)", proc.calls)
	}
	if size, _ := c.CacheStats(); size != 0 {
		t.Errorf("cache size = %d, want 0", size)
	}
}

func TestClassifyDisabledCategoriesExcluded(t *testing.T) {
	proc := &fakeProcessor{answer: "Disabled"}
	c := NewClassifier(proc, zerolog.Nop())

	if m := c.Classify(context.Background(), "content", testCategories()); m != nil {
		t.Errorf("matched a disabled category: %+v", m)
	}
}

func TestClassifyNoEnabledCategories(t *testing.T) {
	proc := &fakeProcessor{answer: "Work"}
	c := NewClassifier(proc, zerolog.Nop())

	if m := c.Classify(context.Background(), "content", []Category{{ID: "d", Enabled: false}}); m != nil {
		t.Errorf("match = %+v, want nil", m)
	}
	if proc.calls != 0 {
		t.Error("provider called with no enabled categories")
	}
}
