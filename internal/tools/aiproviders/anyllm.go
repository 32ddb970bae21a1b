package aiproviders

import (
	"context"
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// anyLLMBackend implements [Backend] on top of any-llm-go, which gives
// all three chat providers one completion interface.
type anyLLMBackend struct {
	backend anyllmlib.Provider
}

func newAnyLLMBackend(provider, key string) (Backend, error) {
	var (
		backend anyllmlib.Provider
		err     error
	)
	switch provider {
	case ProviderClaude:
		backend, err = anthropic.New(anyllmlib.WithAPIKey(key))
	case ProviderGPT:
		backend, err = anyllmoai.New(anyllmlib.WithAPIKey(key))
	case ProviderGemini:
		backend, err = gemini.New(anyllmlib.WithAPIKey(key))
	default:
		return nil, fmt.Errorf("aiproviders: no backend for provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("aiproviders: create %s backend: %w", provider, err)
	}
	return anyLLMBackend{backend: backend}, nil
}

// Complete implements [Backend].
func (b anyLLMBackend) Complete(ctx context.Context, model, prompt, contextText string, maxTokens int) (Completion, error) {
	var messages []anyllmlib.Message
	if contextText != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: "Conversation context:\n" + contextText,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: prompt,
	})

	params := anyllmlib.CompletionParams{
		Model:    model,
		Messages: messages,
	}
	if maxTokens > 0 {
		params.MaxTokens = &maxTokens
	}

	resp, err := b.backend.Completion(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("aiproviders: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("aiproviders: empty choices in response")
	}

	choice := resp.Choices[0]
	completion := Completion{
		Content:      choice.Message.ContentString(),
		FinishReason: string(choice.FinishReason),
	}
	if resp.Usage != nil {
		completion.InputTokens = resp.Usage.PromptTokens
		completion.OutputTokens = resp.Usage.CompletionTokens
	}
	return completion, nil
}
