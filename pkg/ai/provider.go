// Package ai abstracts conversational AI providers behind a single interface.
package ai

import (
	"context"
	"errors"
)

// Well-known provider failures, mapped from upstream HTTP statuses so
// handlers can pick the right user-facing reply.
var (
	// ErrNotConfigured means no API key is set.
	ErrNotConfigured = errors.New("ai: provider not configured")

	// ErrInvalidAPIKey means the upstream rejected the credentials.
	ErrInvalidAPIKey = errors.New("ai: invalid API key")

	// ErrInsufficientCredits means the upstream account is out of credits.
	ErrInsufficientCredits = errors.New("ai: insufficient credits")

	// ErrRateLimited means the upstream throttled the request.
	ErrRateLimited = errors.New("ai: rate limited")
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Provider generates chat completions.
type Provider interface {
	// Complete returns the assistant reply for the conversation so far.
	// The system prompt, if any, is prepended by the implementation.
	Complete(ctx context.Context, messages []Message) (string, error)

	// TestConnection verifies credentials and reachability with a minimal
	// request. Used by 'tgforge status' and the readiness probe.
	TestConnection(ctx context.Context) error

	// Model returns the model identifier in use.
	Model() string
}
