// Package generator talks to the external generative completion service and
// turns its output into program content.
package generator

import (
	"context"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Completion is the service's answer. Content is opaque text that
// ParseContent turns into domain content.
type Completion struct {
	Content       string
	Model         string
	Usage         Usage
	EstimatedCost float64
}

// Completer produces structured text from prompt messages. Implementations do
// not retry; callers own the timeout.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error)
}
