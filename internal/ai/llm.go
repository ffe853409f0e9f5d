// Package ai holds the chat completion and embedding providers.
package ai

import (
	"context"
	"errors"
)

var ErrProviderUnavailable = errors.New("language model temporarily unavailable")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// LLM produces a single completion for an ordered message list.
type LLM interface {
	Complete(ctx context.Context, messages []Message) (*Completion, error)
}

// Generation settings shared by every provider.
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 2500
)

// estimateTokens uses the rough 4 characters per token rule.
func estimateTokens(messages []Message) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return n / 4
}
