package note

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

var testTime = time.Date(2024, 3, 7, 9, 5, 42, 0, time.UTC)

func testData() TemplateData {
	return TemplateData{
		Now:         testTime,
		MessageDate: testTime.Add(-24 * time.Hour),
		Content:     "Buy milk and eggs",
		Category:    "Personal",
		Chat:        "Saved Messages",
		User:        "alice",
		MessageID:   421,
		AIParams:    map[string]string{"title": "Groceries"},
	}
}

func TestRenderDateTokens(t *testing.T) {
	cases := []struct {
		template string
		want     string
	}{
		{"{{date:YYYY-MM-DD}}", "2024-03-07"},
		{"{{date:YYYY}}/{{date:MM}}", "2024/03"},
		{"{{date:YY}}", "24"},
		{"{{time:HH-mm-ss}}", "09-05-42"},
		{"{{date}}", "2024-03-07"},
		{"{{time}}", "09-05-42"},
		{"{{messageDate:YYYY-MM-DD}}", "2024-03-06"},
	}
	for _, c := range cases {
		if got := Render(c.template, testData()); got != c.want {
			t.Errorf("Render(%q) = %q, want %q", c.template, got, c.want)
		}
	}
}

func TestRenderVariables(t *testing.T) {
	data := testData()
	cases := []struct {
		template string
		want     string
	}{
		{"{{content}}", "Buy milk and eggs"},
		{"{{content:7}}", "Buy mil"},
		{"{{category}}", "Personal"},
		{"{{chat}}", "Saved Messages"},
		{"{{user}}", "alice"},
		{"{{messageId}}", "421"},
		{"{{ai:title}}", "Groceries"},
		{"{{ai:missing}}", ""},
		{"{{unknown}}", ""},
		{"plain text", "plain text"},
	}
	for _, c := range cases {
		if got := Render(c.template, data); got != c.want {
			t.Errorf("Render(%q) = %q, want %q", c.template, got, c.want)
		}
	}
}

func TestRenderContentTruncationRunes(t *testing.T) {
	data := testData()
	data.Content = "привет мир"
	if got := Render("{{content:6}}", data); got != "привет" {
		t.Errorf("got %q", got)
	}
}

func TestRenderPathSanitizesAndAddsExtension(t *testing.T) {
	data := testData()
	data.Content = "What? A note: with/bad*chars"

	got := RenderPath("Notes/{{content:40}}", data)
	if !strings.HasSuffix(got, ".md") {
		t.Errorf("path %q missing .md", got)
	}
	if strings.ContainsAny(strings.TrimPrefix(got, "Notes/"), `\:*?"<>|`) {
		t.Errorf("path %q contains invalid chars", got)
	}
	if strings.Count(got, "/") != 1 {
		t.Errorf("content introduced path separators: %q", got)
	}
}

func TestRenderPathKeepsExistingExtension(t *testing.T) {
	got := RenderPath("Telegram/{{date:YYYY-MM-DD}}.md", testData())
	if got != "Telegram/2024-03-07.md" {
		t.Errorf("got %q", got)
	}
}

func TestRenderPathEmptyTemplateFallsBack(t *testing.T) {
	got := RenderPath("", testData())
	if got != "Telegram/2024-03-07.md" {
		t.Errorf("got %q", got)
	}
}

func TestRenderPathUsesFirstContentLine(t *testing.T) {
	data := testData()
	data.Content = "first line\nsecond line"
	got := RenderPath("{{content}}", data)
	if got != "first line.md" {
		t.Errorf("got %q", got)
	}
}

func TestAIParamNames(t *testing.T) {
	got := AIParamNames(
		"Notes/{{ai:title}}/{{date:YYYY}}",
		"{{ai:topic}} and {{ai:title}} again",
		"no params here",
	)
	want := []string{"title", "topic"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AIParamNames = %v, want %v", got, want)
	}

	if got := AIParamNames("plain"); got != nil {
		t.Errorf("AIParamNames(plain) = %v, want nil", got)
	}
}
