// Package llm talks to OpenAI-compatible chat completion endpoints.
package llm

import (
	"context"
	"errors"
)

var (
	ErrRateLimited         = errors.New("llm: rate limited by provider")
	ErrAuthFailed          = errors.New("llm: authentication failed")
	ErrInvalidRequest      = errors.New("llm: invalid request")
	ErrProviderUnavailable = errors.New("llm: provider unavailable")
	ErrEmptyCompletion     = errors.New("llm: empty completion")
	ErrNotConfigured       = errors.New("llm: no api key configured")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is one chat turn: the new user message on top of prior history.
type CompletionRequest struct {
	SystemPrompt string
	History      []Message
	Message      string
}

// Messages flattens the request into the provider's message list.
func (r CompletionRequest) Messages() []Message {
	msgs := make([]Message, 0, len(r.History)+2)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	msgs = append(msgs, r.History...)
	return append(msgs, Message{Role: RoleUser, Content: r.Message})
}

type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type Response struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        Usage
}

// Completer produces one assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Response, error)
}
