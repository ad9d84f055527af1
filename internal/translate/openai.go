package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAITranslator implements Translator with a chat completion model.
type OpenAITranslator struct {
	client *openai.Client
	model  string
}

// OpenAIConfig holds configuration for the OpenAI translator.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible servers
	Model   string // e.g., "gpt-4o-mini"
}

// NewOpenAITranslator creates a new chat-completion translator.
func NewOpenAITranslator(cfg OpenAIConfig) *OpenAITranslator {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAITranslator{
		client: openai.NewClientWithConfig(oc),
		model:  model,
	}
}

func systemPrompt(targetLang, sourceLang string) string {
	from := "the source language"
	if sourceLang != "" {
		from = fmt.Sprintf("language %q", sourceLang)
	}
	return fmt.Sprintf("You translate live speech transcripts from %s into language %q. "+
		"Reply with the translation only, no quotes, notes or explanations. "+
		"Keep names and numbers as spoken.", from, targetLang)
}

// Translate sends one transcript line for translation.
func (t *OpenAITranslator) Translate(ctx context.Context, text, targetLang, sourceLang string) (string, error) {
	if targetLang == "" {
		return "", errors.New("translate: target language is required")
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(targetLang, sourceLang)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("translate: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("translate: empty response")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("translate: empty translation")
	}
	return out, nil
}
