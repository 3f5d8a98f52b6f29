// Package llm defines the completion-provider contract the director
// consumes and the negotiation tools offered to the model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Role is the provider-facing author of a context message.
type Role string

const (
	// RoleSelf marks the speaking agent's own earlier lines.
	RoleSelf Role = "self"
	// RoleOther marks everything else: the counterpart and director notes.
	RoleOther Role = "other"
)

// Message is one entry of the conversation context.
type Message struct {
	Role Role
	Text string
}

// ToolSpec describes a callable tool with a JSON schema.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion call.
type Request struct {
	APIKey    string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// ToolCall is a tool invocation returned by the model. Arguments is the
// raw JSON object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Completion is the model's reply.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider is a tool-calling chat completion backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// ErrRateLimited is matched by every rate-limit failure.
var ErrRateLimited = errors.New("llm: rate limited")

// RateLimitError carries the provider's retry hint, when it sent one.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s: %v", ErrRateLimited, e.Err)
}

// Unwrap exposes both the sentinel and the provider error.
func (e *RateLimitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRateLimited}
	}
	return []error{ErrRateLimited, e.Err}
}

// IsRateLimit reports whether err is a rate-limit failure.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
