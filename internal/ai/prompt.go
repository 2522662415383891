package ai

import (
	"github.com/stellarlinkco/tgvault/internal/bus"
	"github.com/stellarlinkco/tgvault/internal/config"
)

const genericPrompt = "Process and structure this content in a clear format."

var defaultPrompts = map[bus.ContentType]string{
	bus.ContentText:     "Process and structure this text, make it more readable and informative.",
	bus.ContentVoice:    "Transcribe and structure the content of this voice recording.",
	bus.ContentPhoto:    "Describe the content of this image in detail and in a structured way.",
	bus.ContentVideo:    "Describe the content of this video and its key moments.",
	bus.ContentAudio:    "Transcribe and structure the content of this audio recording.",
	bus.ContentDocument: "Analyze and structure the content of this document.",
}

// PromptComposer builds hierarchical prompts from content-type-specific and
// general instructions. Stateless; configuration comes in per call.
type PromptComposer struct {
	prompts config.PromptsConfig
}

func NewPromptComposer(prompts config.PromptsConfig) *PromptComposer {
	return &PromptComposer{prompts: prompts}
}

// ForContentType returns the configured prompt for a content type, or ""
// when unset. Voice, video and audio share one instruction slot.
func (p *PromptComposer) ForContentType(ct bus.ContentType) string {
	switch ct {
	case bus.ContentText:
		return p.prompts.Text
	case bus.ContentVoice, bus.ContentVideo, bus.ContentAudio:
		return p.prompts.AudioVideo
	case bus.ContentPhoto:
		return p.prompts.Photo
	case bus.ContentDocument:
		return p.prompts.Document
	default:
		return ""
	}
}

// Compose builds the prompt for one request. Final requests append the
// general formatting instruction; intermediate requests deliberately omit it
// so a later final request does not double-format the content.
func (p *PromptComposer) Compose(ct bus.ContentType, final bool) string {
	specific := p.ForContentType(ct)
	if specific == "" {
		specific = DefaultPrompt(ct)
	}
	if !final {
		return specific
	}
	return composeFinal(specific, p.prompts.General)
}

func composeFinal(specific, general string) string {
	if specific != "" && general != "" {
		return specific + "\n\n---\n\nAdditional formatting requirements:\n" + general
	}
	if specific != "" {
		return specific
	}
	if general != "" {
		return general
	}
	return genericPrompt
}

// DefaultPrompt returns the built-in prompt for a content type.
func DefaultPrompt(ct bus.ContentType) string {
	if prompt, ok := defaultPrompts[ct]; ok {
		return prompt
	}
	return genericPrompt
}
