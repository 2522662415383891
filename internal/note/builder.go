package note

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/tgvault/internal/bus"
	"github.com/stellarlinkco/tgvault/internal/category"
	"github.com/stellarlinkco/tgvault/internal/config"
	"github.com/stellarlinkco/tgvault/internal/group"
)

// Note is a finished (path, body) pair ready for the vault.
type Note struct {
	Path string
	Body string
}

// Builder assembles note bodies and resolves note paths from templates,
// applying category-driven path rewrites and tag prefixes.
type Builder struct {
	notePathTemplate string
	filePathTemplate string
	tagsEnabled      bool
	foldersEnabled   bool
	log              zerolog.Logger
}

func NewBuilder(notes config.NotesConfig, cats config.CategoriesConfig, log zerolog.Logger) *Builder {
	return &Builder{
		notePathTemplate: notes.NotePathTemplate,
		filePathTemplate: notes.FilePathTemplate,
		tagsEnabled:      cats.Enabled && cats.TagsEnabled,
		foldersEnabled:   cats.Enabled && cats.FoldersEnabled,
		log:              log,
	}
}

func (b *Builder) data(item bus.ContentItem, content string, cat *category.Category, params map[string]string) TemplateData {
	data := TemplateData{
		Now:         item.ReceivedAt,
		MessageDate: item.ReceivedAt,
		Content:     content,
		Chat:        item.ChatName,
		User:        item.Sender,
		MessageID:   item.MessageID,
		AIParams:    params,
	}
	if cat != nil {
		data.Category = cat.Name
	}
	return data
}

// NotePath resolves where the note goes. An enabled category with its own
// path template wins when folder routing is on.
func (b *Builder) NotePath(item bus.ContentItem, content string, cat *category.Category, params map[string]string) string {
	template := b.notePathTemplate
	if b.foldersEnabled && cat != nil && cat.NotePathTemplate != "" {
		template = cat.NotePathTemplate
	}
	return RenderPath(template, b.data(item, content, cat, params))
}

// AttachmentPath resolves where an attachment's bytes go inside the vault.
func (b *Builder) AttachmentPath(item bus.ContentItem, fileName string, cat *category.Category) string {
	template := b.filePathTemplate
	if cat != nil && cat.FilePathOverride != "" {
		template = cat.FilePathOverride
	}
	dir := Render(template, b.data(item, "", cat, nil))
	dir = strings.Trim(dir, "/")
	return path.Join(dir, sanitizeSegment(fileName))
}

// BuildText assembles a note for a plain text message. content is the AI
// output when processing succeeded, otherwise the raw message text.
func (b *Builder) BuildText(item bus.ContentItem, content string, cat *category.Category, params map[string]string) Note {
	body := b.applyTag(strings.TrimSpace(content), cat)
	return Note{
		Path: b.NotePath(item, item.Text, cat, params),
		Body: body,
	}
}

// BuildFile assembles a note for a single message with one attachment.
// filePath is the vault-relative saved path, empty when the download failed.
func (b *Builder) BuildFile(item bus.ContentItem, filePath, content string, cat *category.Category, params map[string]string, downloadErr error) Note {
	var sections []string
	if text := strings.TrimSpace(content); text != "" {
		sections = append(sections, text)
	}
	sections = append(sections, attachmentBlock(filePath, item, downloadErr))

	body := b.applyTag(strings.Join(sections, "\n\n"), cat)
	pathSeed := item.Text
	if pathSeed == "" {
		pathSeed = item.Attachment
	}
	return Note{
		Path: b.NotePath(item, pathSeed, cat, params),
		Body: body,
	}
}

// BuildGroup assembles one note for a committed media group. Files keep
// their arrival order; a failed download renders an inline error marker in
// place of its embed link.
func (b *Builder) BuildGroup(entry *group.Entry, content string, cat *category.Category, params map[string]string) Note {
	primary := entry.Primary()

	var sections []string
	if text := strings.TrimSpace(content); text != "" {
		sections = append(sections, text)
	}
	for _, it := range entry.Items {
		sections = append(sections, attachmentBlock(it.FilePath, it.Content, entry.Err))
	}

	body := b.applyTag(strings.Join(sections, "\n\n"), cat)
	return Note{
		Path: b.NotePath(primary, entry.CombinedText(), cat, params),
		Body: body,
	}
}

// attachmentBlock renders an embed link for a saved file or an error marker
// for a failed one.
func attachmentBlock(filePath string, item bus.ContentItem, err error) string {
	if filePath != "" {
		return fmt.Sprintf("![[%s]]", filePath)
	}
	name := item.Attachment
	if name == "" {
		name = string(item.ContentType)
	}
	if err != nil {
		return fmt.Sprintf("> ⚠️ File %s could not be saved: %v", name, err)
	}
	return fmt.Sprintf("> ⚠️ File %s could not be saved", name)
}

// applyTag prepends the category tag when tagging is enabled. Content that
// already carries the tag, e.g. an earlier entry appended to the same note,
// is left alone.
func (b *Builder) applyTag(body string, cat *category.Category) string {
	if !b.tagsEnabled || cat == nil {
		return body
	}
	tag := "#" + strings.ReplaceAll(strings.ToLower(strings.TrimSpace(cat.Name)), " ", "-")
	if strings.Contains(body, tag) {
		return body
	}
	return tag + "\n\n" + body
}

// IsURLOnly reports whether text is nothing but a single http(s) link. Such
// messages skip AI processing and land in the default category.
func IsURLOnly(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\r\n") {
		return false
	}
	u, err := url.Parse(text)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
