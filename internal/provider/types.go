// Package provider builds OpenAI-compatible chat-completion request bodies
// from an assembled message list and a preset's sampling settings.
// It performs no network I/O.
package provider

import "github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"

// Sampling holds the generation parameters stored alongside a preset.
// Field names follow the community preset file format.
type Sampling struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	MaxTokens        int      `json:"openai_max_tokens,omitempty"`
	MaxContext       int      `json:"openai_max_context,omitempty"`
	Stream           bool     `json:"stream_openai,omitempty"`
}

// CompletionRequest is the body of a chat-completion call.
type CompletionRequest struct {
	Model            string            `json:"model,omitempty"`
	Messages         []message.Message `json:"messages"`
	Stream           bool              `json:"stream,omitempty"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	TopP             *float64          `json:"top_p,omitempty"`
	TopK             *int              `json:"top_k,omitempty"`
	FrequencyPenalty *float64          `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64          `json:"presence_penalty,omitempty"`
}

// BuildRequest combines the assembled messages with sampling settings.
// A nil message list is sent as an empty array.
func BuildRequest(model string, s Sampling, msgs []message.Message) CompletionRequest {
	if msgs == nil {
		msgs = []message.Message{}
	}
	return CompletionRequest{
		Model:            model,
		Messages:         msgs,
		Stream:           s.Stream,
		MaxTokens:        s.MaxTokens,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		TopK:             s.TopK,
		FrequencyPenalty: s.FrequencyPenalty,
		PresencePenalty:  s.PresencePenalty,
	}
}

// Float returns a pointer to v, for populating optional sampling fields.
func Float(v float64) *float64 { return &v }
