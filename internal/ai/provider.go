package ai

import (
	"context"
	"net/http"
)

// ImagePayload is an inline-encoded image attached to a vision request.
type ImagePayload struct {
	MimeType string
	Base64   string
}

// Request is one logical provider call. Image is nil for text-only requests.
type Request struct {
	Content string
	Prompt  string
	Image   *ImagePayload
}

// Provider wraps one vendor's request/response shape. Complete performs a
// single attempt; retries live in the orchestrator's retry policy.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// registry resolves the closed provider set. Adding a vendor means adding a
// constructor here and nothing else.
type registry struct {
	providers map[string]Provider
}

func newRegistry(providers ...Provider) *registry {
	r := &registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// resolve returns the named provider, defaulting to openai for unknown names.
func (r *registry) resolve(name string) Provider {
	if p, ok := r.providers[name]; ok {
		return p
	}
	return r.providers["openai"]
}

func defaultHTTPClient() *http.Client {
	// No client-level timeout: each attempt is bounded by its own context.
	return &http.Client{}
}
