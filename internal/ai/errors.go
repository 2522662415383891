package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrKind classifies a provider failure for the retry policy.
type ErrKind int

const (
	// KindTransient failures are retried: HTTP 429/5xx, timeouts, network
	// conditions.
	KindTransient ErrKind = iota
	// KindAuth means an invalid or revoked API key. Never retried.
	KindAuth
	// KindQuota means the account ran out of quota. Never retried.
	KindQuota
	// KindEmpty means the provider answered with a well-formed but empty
	// result. Terminal for the whole attempt chain.
	KindEmpty
	// KindPermanent covers every other non-retryable failure.
	KindPermanent
	// KindConfig means the active provider has no API key configured.
	// Surfaced once, no attempt is made.
	KindConfig
)

// configError reports a missing API key for the active provider.
func configError(provider string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     KindConfig,
		Message:  "API key not set, configure it in settings",
	}
}

// ProviderError is a classified failure from one provider attempt.
type ProviderError struct {
	Provider string
	Status   int
	Kind     ErrKind
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (http %d)", e.Provider, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

var retryableStatuses = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

// classifyHTTPError maps an error response to a ProviderError. errType and
// errCode come from the provider's error body when it parses; message is the
// best available description. The error body's type/code fields decide
// regardless of status; otherwise a retryable status stays transient, and
// the message-text heuristics cover only the rest.
func classifyHTTPError(provider string, status int, errType, errCode, message string) *ProviderError {
	switch {
	case errType == "insufficient_quota" || errCode == "insufficient_quota":
		return quotaError(provider, status)
	case errType == "invalid_api_key" || errType == "access_terminated" ||
		errCode == "invalid_api_key" || errCode == "access_terminated":
		return authError(provider, status)
	case retryableStatuses[status]:
		return &ProviderError{Provider: provider, Status: status, Kind: KindTransient, Message: message}
	}

	lower := strings.ToLower(message)
	switch {
	case status == 402 || strings.Contains(lower, "quota"):
		return quotaError(provider, status)
	case status == 401 || strings.Contains(lower, "invalid") || strings.Contains(lower, "terminated"):
		return authError(provider, status)
	default:
		return &ProviderError{Provider: provider, Status: status, Kind: KindPermanent, Message: message}
	}
}

func quotaError(provider string, status int) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Status:   status,
		Kind:     KindQuota,
		Message:  "quota exceeded, top up your provider balance",
	}
}

func authError(provider string, status int) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Status:   status,
		Kind:     KindAuth,
		Message:  "API key is invalid or revoked",
	}
}

// emptyResponseError marks a parsed-but-empty provider answer.
func emptyResponseError(provider string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindEmpty, Message: "returned empty response"}
}

// retryable reports whether a failed attempt may be followed by another one.
// Statusless errors fall back to message heuristics, matching the behavior
// of network-level failures that never produced an HTTP response.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == KindTransient
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "rate limit")
}
