// Package note renders note paths and bodies from user templates and
// assembles finished note content for single messages and media groups.
package note

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TemplateData carries everything a path or content template can reference.
type TemplateData struct {
	Now         time.Time
	MessageDate time.Time
	Content     string
	Category    string
	Chat        string
	User        string
	MessageID   int
	AIParams    map[string]string
}

var variablePattern = regexp.MustCompile(`\{\{([a-zA-Z]+)(?::([^}]*))?\}\}`)

// momentLayout translates moment.js-style date tokens into a Go time layout.
// Longer tokens are listed first so YYYY is not consumed as two YY.
var momentLayout = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"HH", "15",
	"mm", "04",
	"ss", "05",
)

const (
	defaultDateFormat = "YYYY-MM-DD"
	defaultTimeFormat = "HH-mm-ss"
)

func formatMoment(t time.Time, format string) string {
	return t.Format(momentLayout.Replace(format))
}

// Render substitutes all {{...}} variables in template. Unknown variables
// render as empty strings rather than surviving as literal braces.
func Render(template string, data TemplateData) string {
	return variablePattern.ReplaceAllStringFunc(template, func(token string) string {
		parts := variablePattern.FindStringSubmatch(token)
		name, arg := parts[1], parts[2]
		switch name {
		case "date":
			if arg == "" {
				arg = defaultDateFormat
			}
			return formatMoment(data.Now, arg)
		case "time":
			if arg == "" {
				arg = defaultTimeFormat
			}
			return formatMoment(data.Now, arg)
		case "messageDate":
			if arg == "" {
				arg = defaultDateFormat
			}
			return formatMoment(data.MessageDate, arg)
		case "content":
			if arg == "" {
				return data.Content
			}
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				return data.Content
			}
			return truncate(data.Content, n)
		case "category":
			return data.Category
		case "chat":
			return data.Chat
		case "user":
			return data.User
		case "messageId":
			return strconv.Itoa(data.MessageID)
		case "ai":
			return data.AIParams[arg]
		default:
			return ""
		}
	})
}

// RenderPath renders a note path template, sanitizes each path segment and
// guarantees a .md extension.
func RenderPath(template string, data TemplateData) string {
	// Path-bound variables must not introduce separators of their own.
	clean := data
	clean.Content = sanitizeSegment(firstLine(data.Content))
	clean.Category = sanitizeSegment(data.Category)
	clean.Chat = sanitizeSegment(data.Chat)
	clean.User = sanitizeSegment(data.User)

	path := Render(template, clean)
	path = strings.Trim(path, "/")
	if path == "" {
		path = "Telegram/" + formatMoment(data.Now, defaultDateFormat)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".md") {
		path += ".md"
	}
	return path
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return s
}

var aiParamPattern = regexp.MustCompile(`\{\{ai:([^}]+)\}\}`)

// AIParamNames collects the distinct {{ai:name}} parameter names referenced
// by the given templates, in first-appearance order.
func AIParamNames(templates ...string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, tpl := range templates {
		for _, m := range aiParamPattern.FindAllStringSubmatch(tpl, -1) {
			name := strings.TrimSpace(m[1])
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

var invalidSegmentChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// sanitizeSegment strips characters that are invalid in file names.
func sanitizeSegment(s string) string {
	s = invalidSegmentChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
