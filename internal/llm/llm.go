// Package llm defines the chat-completion contract the rest of the service
// talks to, plus its OpenAI-backed implementation.
//
// The API key travels with each request rather than living in the client:
// every caller brings their own key and the service never stores one.
package llm

import (
	"context"
	"errors"
)

// Message roles, matching the chat-completion wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sentinel errors. Check with errors.Is().
var (
	// ErrMissingAPIKey indicates the request carried no API key.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")

	// ErrInvalidAPIKey indicates the upstream provider rejected the key.
	ErrInvalidAPIKey = errors.New("invalid OpenAI API key")

	// ErrEmptyResponse indicates the model returned no usable text.
	ErrEmptyResponse = errors.New("model returned empty response")
)

// IsAuthError reports whether err stems from a missing or rejected API key.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrInvalidAPIKey)
}

// Message is a single chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call. Model and MaxTokens are optional;
// zero values fall back to the client's configured defaults.
type Request struct {
	APIKey    string
	Model     string
	MaxTokens int
	Messages  []Message
}

// Client produces a single completion for a chat request.
//
// Implementations return the text of the first choice. They do not retry:
// a failed call surfaces to the caller, who decides what a failure means
// for the turn in progress.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
